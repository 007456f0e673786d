// Package config provides 12-factor configuration for the op bridge.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override individual values.
//
// Configuration Sections:
//   - Runtime: worker pool size, contract strictness, fail-fast, script timeout
//   - Permissions: read/write globs, network hosts, subprocess spawning
//   - Server: remote host channel (port, host, enabled)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting for the remote host channel
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	loop := executor.New(executor.WithBlockingThreads(cfg.Runtime.BlockingThreads))
//
// Environment Variables:
//   - OPS_BLOCKING_THREADS, OPS_STRICT_CONTRACT, OPS_FAIL_FAST, OPS_SCRIPT_TIMEOUT, OPS_UNSTABLE
//   - OPS_ALLOW_ALL, OPS_ALLOW_READ, OPS_ALLOW_WRITE, OPS_ALLOW_NET, OPS_ALLOW_RUN
//   - PORT, HOST, SERVER_ENABLED
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
