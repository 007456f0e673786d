/*
Package monitoring provides metrics collection for the op bridge.

# Overview

This package implements Prometheus-based metrics collection covering op
dispatch, response envelopes, executor pending counts, broken promises and
the remote host channel.

# Usage

	// Create metrics collector on a registry
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Feed executor bookkeeping
	loop := executor.New(executor.WithRecorder(metrics))

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time an op
	timer := monitoring.NewTimer(metrics, "op_read_file")
	// ... op settles ...
	timer.Stop("ok", len(buf))

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
