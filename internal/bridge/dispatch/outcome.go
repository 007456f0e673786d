package dispatch

import (
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
)

// Outcome is the closed set of results a handler can produce: Immediate,
// Deferred or DeferredUnref.
type Outcome interface {
	outcome() string
}

// Immediate is a value available before the dispatch returns.
type Immediate struct {
	Value any
}

// Deferred is a result that arrives later and keeps the executor alive.
type Deferred struct {
	Future *future.Future[any]
}

// DeferredUnref is a result that arrives later but must not, by itself,
// keep the process alive.
type DeferredUnref struct {
	Future *future.Future[any]
}

func (Immediate) outcome() string     { return "immediate" }
func (Deferred) outcome() string      { return "deferred" }
func (DeferredUnref) outcome() string { return "deferred-unref" }

// Mode tells the host channel how a response will be delivered.
type Mode int

const (
	ModeSync Mode = iota
	ModeAsync
	ModeAsyncUnref
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	case ModeAsyncUnref:
		return "async_unref"
	default:
		return "unknown"
	}
}

// Op is what the host channel receives from one dispatch. Buf is set for
// ModeSync, Future for the async modes.
type Op struct {
	Mode   Mode
	Buf    []byte
	Future *future.Future[[]byte]
}

// IsAsync reports whether the response travels the asynchronous path.
func (o Op) IsAsync() bool {
	return o.Mode != ModeSync
}
