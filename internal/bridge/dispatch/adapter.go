package dispatch

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

// Handler is a native op. c is the execution context handle; the adapter
// never inspects it.
type Handler[C any] func(c C, args codec.Args, zeroCopy []byte) (Outcome, error)

// OpFunc is the uniform callable the host channel invokes.
type OpFunc[C any] func(c C, control []byte, zeroCopy []byte) Op

// ContractViolation is raised when a handler's outcome disagrees with the
// caller's promiseId expectation.
type ContractViolation struct {
	Op        string
	PromiseID *uint64
	Outcome   string
}

func (v *ContractViolation) Error() string {
	if v.PromiseID == nil {
		return fmt.Sprintf("op %s: returned %s outcome for a synchronous call", v.Op, v.Outcome)
	}
	return fmt.Sprintf("op %s: returned %s outcome for asynchronous call (promiseId %d)", v.Op, v.Outcome, *v.PromiseID)
}

type options struct {
	strict bool
	logger *zap.Logger
}

// Option configures JSON.
type Option func(*options)

// WithStrict sets whether contract violations panic (true, the default) or
// degrade to an Internal error response.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithLogger sets the logger used for non-strict contract violations.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// JSON wraps h into an OpFunc speaking the JSON envelope protocol.
func JSON[C any](name string, h Handler[C], opts ...Option) OpFunc[C] {
	o := options{strict: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c C, control []byte, zeroCopy []byte) Op {
		req, err := codec.DecodeRequest(control)
		if err != nil {
			return Op{Mode: ModeSync, Buf: codec.EncodeErr(nil, err)}
		}
		promiseID := req.PromiseID

		out, err := h(c, req.Args, zeroCopy)
		if err != nil {
			return reply(promiseID, codec.EncodeErr(promiseID, err))
		}

		switch out := out.(type) {
		case nil:
			return o.immediate(name, promiseID, nil)
		case Immediate:
			return o.immediate(name, promiseID, out.Value)
		case Deferred:
			return o.deferred(name, promiseID, out.Future, ModeAsync, out.outcome())
		case DeferredUnref:
			return o.deferred(name, promiseID, out.Future, ModeAsyncUnref, out.outcome())
		default:
			return o.violate(name, promiseID, fmt.Sprintf("%T", out))
		}
	}
}

func (o *options) immediate(name string, promiseID *uint64, value any) Op {
	if promiseID != nil {
		return o.violate(name, promiseID, Immediate{}.outcome())
	}
	return Op{Mode: ModeSync, Buf: codec.EncodeOk(nil, value)}
}

func (o *options) deferred(name string, promiseID *uint64, fut *future.Future[any], mode Mode, kind string) Op {
	if promiseID == nil || fut == nil {
		return o.violate(name, promiseID, kind)
	}

	encoded := future.Then(fut, func(v any, err error) ([]byte, error) {
		if future.IsBroken(err) {
			return nil, err
		}
		return codec.Encode(promiseID, v, err), nil
	})
	return Op{Mode: mode, Future: encoded}
}

func (o *options) violate(name string, promiseID *uint64, kind string) Op {
	v := &ContractViolation{Op: name, PromiseID: promiseID, Outcome: kind}
	if o.strict {
		panic(v)
	}

	o.logger.Error("op contract violation",
		zap.String("op", name),
		zap.String("outcome", kind),
		zap.Bool("async_call", promiseID != nil),
	)
	return reply(promiseID, codec.EncodeErr(promiseID, operror.Internal(v.Error())))
}

// reply routes an already encoded response onto the channel the caller is
// waiting on.
func reply(promiseID *uint64, buf []byte) Op {
	if promiseID == nil {
		return Op{Mode: ModeSync, Buf: buf}
	}
	return Op{Mode: ModeAsync, Future: future.Ready(buf, nil)}
}
