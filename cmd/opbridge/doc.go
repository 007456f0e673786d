// Package main is the opbridge command.
//
// opbridge runs JavaScript against the native op bridge, or serves the same
// ops to remote callers over HTTP and WebSocket.
//
// Usage:
//
//	opbridge run [flags] script.js [args...]
//	opbridge eval [flags] 'Deno.readTextFileSync("go.mod")'
//	opbridge serve [-host 127.0.0.1] [-port 8000]
//	opbridge ops
//
// Permission flags (run, eval, serve):
//
//	-allow-all            grant everything
//	-allow-read=a,b       readable path patterns
//	-allow-write=a,b      writable path patterns
//	-allow-net=host:port  reachable hosts
//	-allow-run            allow subprocesses
//
// Environment variables (OPS_*, LOG_*, PORT, HOST, RATE_LIMIT_*)
// provide defaults; flags override them.
//
// Signals:
//   - SIGINT, SIGTERM: cancel the running script or shut the server down
package main
