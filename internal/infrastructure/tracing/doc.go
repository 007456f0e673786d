/*
Package tracing records spans for calls that cross the host channel.

HTTP requests get a span from HTTPMiddleware; op calls made while serving
them get child spans. Finished spans are logged at debug level and the most
recent ones are kept in memory for GET /debug/traces.

	tracer := tracing.New("opbridge", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "op op_stat")
	defer tracer.Finish(span)

Context travels in the X-Trace-ID and X-Span-ID headers.
*/
package tracing
