// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Output defaults to stderr; stdout belongs to the running script.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Component("executor").Info("loop started")
//	logger.Op("op_read_file", 7).Error("contract violation", zap.Error(err))
package logging
