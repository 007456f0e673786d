// Package codec encodes and decodes the op bridge envelopes.
//
// Request (control buffer, JSON object, plus an optional raw zero-copy
// segment that is never parsed here):
//
//	{ ...op specific fields..., "promiseId": 7 }
//
// A missing promiseId means the caller waits for a synchronous reply.
//
// Response (JSON object only):
//
//	{ "ok": <value>, "promiseId": 7 }
//	{ "err": { "message": "...", "kind": 2 }, "promiseId": null }
//
// The discriminant always comes first and promiseId is always written,
// as null when absent. Encoding never fails.
package codec
