// Package http serves the host channel over plain HTTP.
//
// Routes:
//
//	GET  /               service banner
//	GET  /health         liveness plus loop and registry stats
//	GET  /ops            registered ops and their ids
//	POST /ops/:name      call one op; the body is the control object
//	GET  /metrics/json   counters snapshot
//
// POST /ops/:name answers with the response envelope verbatim. Transport
// failures (unknown op, broken promise, contract violation, timeout) map to
// HTTP status codes; op errors stay inside the envelope with a 200.
package http
