// Package ops holds the native operations exposed to scripts and the
// registry that assigns them op ids.
//
// Every op is a dispatch.Handler over *State and is wrapped with
// dispatch.JSON when registered, so all of them speak the JSON envelope
// protocol. Ids are dense and start at 1; id 0 is never assigned.
//
// Example Usage:
//
//	reg := ops.NewRegistry(dispatch.WithStrict(cfg.Runtime.StrictContract))
//	ops.RegisterBuiltins(reg)
//	id, _ := reg.Lookup("op_read_file")
//	op, err := reg.Dispatch(state, id, control, nil)
package ops
