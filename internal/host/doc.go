// Package host exposes an op registry to remote callers.
//
// A Channel owns one op state and one executor loop. Calls arrive from any
// goroutine (HTTP handlers, WebSocket readers) and are serialized onto the
// loop, so handlers observe the same single cooperative thread a script
// isolate gives them.
//
//	ch := host.New(reg, host.WithStateOptions(ops.WithPermissions(perms)))
//	go ch.Run(ctx)
//	reply, err := ch.CallName(ctx, "op_stat", []byte(`{"path":"."}`), nil)
package host
