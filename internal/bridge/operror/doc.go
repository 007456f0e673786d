// Package operror defines the single error shape that crosses the op bridge.
//
// Every failure surfaced to a script, whether it came from a malformed
// envelope, an argument that failed validation or the op itself, is
// normalized into an Error before it is encoded:
//
//	{ "message": "<free text>", "kind": <Kind> }
//
// Kind values are numbered for wire compatibility with the script-side
// prelude, which maps them to error classes. The enumeration is closed.
//
// Example Usage:
//
//	if _, err := os.Stat(path); err != nil {
//		return nil, operror.From(err) // NotFound, PermissionDenied, ...
//	}
//	return nil, operror.TypeError("path must be absolute")
package operror
