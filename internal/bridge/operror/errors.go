package operror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// Kind categorizes a failure reported to a script.
type Kind uint32

const (
	KindNotFound          Kind = 1
	KindPermissionDenied  Kind = 2
	KindConnectionRefused Kind = 3
	KindConnectionReset   Kind = 4
	KindConnectionAborted Kind = 5
	KindNotConnected      Kind = 6
	KindAddrInUse         Kind = 7
	KindAddrNotAvailable  Kind = 8
	KindBrokenPipe        Kind = 9
	KindAlreadyExists     Kind = 10
	KindInvalidData       Kind = 13
	KindTimedOut          Kind = 14
	KindInterrupted       Kind = 15
	KindWriteZero         Kind = 16
	KindUnexpectedEOF     Kind = 17
	KindBadResource       Kind = 18
	KindHTTP              Kind = 19
	KindURIError          Kind = 20
	KindTypeError         Kind = 21 // argument shape or validation failure
	KindOther             Kind = 22
	KindBusy              Kind = 23
	KindInternal          Kind = 24
)

var kindNames = map[Kind]string{
	KindNotFound:          "NotFound",
	KindPermissionDenied:  "PermissionDenied",
	KindConnectionRefused: "ConnectionRefused",
	KindConnectionReset:   "ConnectionReset",
	KindConnectionAborted: "ConnectionAborted",
	KindNotConnected:      "NotConnected",
	KindAddrInUse:         "AddrInUse",
	KindAddrNotAvailable:  "AddrNotAvailable",
	KindBrokenPipe:        "BrokenPipe",
	KindAlreadyExists:     "AlreadyExists",
	KindInvalidData:       "InvalidData",
	KindTimedOut:          "TimedOut",
	KindInterrupted:       "Interrupted",
	KindWriteZero:         "WriteZero",
	KindUnexpectedEOF:     "UnexpectedEof",
	KindBadResource:       "BadResource",
	KindHTTP:              "Http",
	KindURIError:          "URIError",
	KindTypeError:         "TypeError",
	KindOther:             "Other",
	KindBusy:              "Busy",
	KindInternal:          "Internal",
}

// String returns the class name the script side uses for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// Valid reports whether k belongs to the enumeration.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Error is the normalized failure record written to the wire.
type Error struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error record.
func New(kind Kind, msg string) *Error {
	return &Error{Message: msg, Kind: kind}
}

// Newf creates an error record with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Kind: kind}
}

func NotFound(msg string) *Error         { return New(KindNotFound, msg) }
func PermissionDenied(msg string) *Error { return New(KindPermissionDenied, msg) }
func InvalidData(msg string) *Error      { return New(KindInvalidData, msg) }
func TypeError(msg string) *Error        { return New(KindTypeError, msg) }
func BadResource(msg string) *Error      { return New(KindBadResource, msg) }
func Internal(msg string) *Error         { return New(KindInternal, msg) }
func Other(msg string) *Error            { return New(KindOther, msg) }

// BadResourceID reports a resource id that is not in the table.
func BadResourceID(rid uint32) *Error {
	return Newf(KindBadResource, "bad resource id %d", rid)
}

var errnoKinds = []struct {
	errno syscall.Errno
	kind  Kind
}{
	{syscall.ECONNREFUSED, KindConnectionRefused},
	{syscall.ECONNRESET, KindConnectionReset},
	{syscall.ECONNABORTED, KindConnectionAborted},
	{syscall.ENOTCONN, KindNotConnected},
	{syscall.EADDRINUSE, KindAddrInUse},
	{syscall.EADDRNOTAVAIL, KindAddrNotAvailable},
	{syscall.EPIPE, KindBrokenPipe},
	{syscall.EINTR, KindInterrupted},
}

// From normalizes any error into an error record. A nil error yields nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var rec *Error
	if errors.As(err, &rec) {
		return rec
	}

	return &Error{Message: err.Error(), Kind: classify(err)}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, fs.ErrClosed), errors.Is(err, net.ErrClosed):
		return KindBadResource
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimedOut
	case errors.Is(err, context.Canceled):
		return KindInterrupted
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindUnexpectedEOF
	case errors.Is(err, io.ErrShortWrite):
		return KindWriteZero
	}

	for _, ek := range errnoKinds {
		if errors.Is(err, ek.errno) {
			return ek.kind
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimedOut
	}

	return KindOther
}
