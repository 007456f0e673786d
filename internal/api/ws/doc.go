// Package ws serves the host channel over WebSocket binary frames.
//
// Request frame:
//
//	[u32 opId][u32 controlLen][control][zeroCopy]
//
// Response frame:
//
//	[u32 opId][response envelope]
//
// Integers are big endian. Sync responses are written before the next
// frame is read; async responses are written as they settle and carry the
// caller's promiseId inside the envelope.
package ws
