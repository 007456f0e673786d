package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

var ErrClosed = errors.New("host channel is closed")

// Reply is the response to one call.
type Reply struct {
	OpID uint32
	Op   string
	Mode dispatch.Mode
	Buf  []byte
}

// Channel dispatches calls onto a registry from any goroutine.
type Channel struct {
	reg     *ops.Registry
	loop    *executor.Loop
	state   *ops.State
	logger  *zap.Logger
	metrics *monitoring.Metrics

	stateOpts []ops.StateOption
	release   func()
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records dispatches on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithLoop runs calls on an existing loop.
func WithLoop(loop *executor.Loop) Option {
	return func(c *Channel) { c.loop = loop }
}

// WithStateOptions passes options to the op state.
func WithStateOptions(opts ...ops.StateOption) Option {
	return func(c *Channel) { c.stateOpts = append(c.stateOpts, opts...) }
}

// New creates a channel over reg. The loop is held open until Close.
func New(reg *ops.Registry, opts ...Option) *Channel {
	c := &Channel{
		reg:    reg,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loop == nil {
		loopOpts := []executor.Option{executor.WithLogger(c.logger)}
		if c.metrics != nil {
			loopOpts = append(loopOpts, executor.WithRecorder(c.metrics))
		}
		c.loop = executor.New(loopOpts...)
	}
	c.state = ops.NewState(c.loop, append([]ops.StateOption{ops.WithLogger(c.logger)}, c.stateOpts...)...)
	c.release = c.loop.Hold()
	return c
}

// Run drives the loop until Close or ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.state.Context(), cancel)
	defer stop()

	err := c.loop.Run(ctx)
	if errors.Is(err, context.Canceled) && c.state.Context().Err() != nil {
		return nil
	}
	return err
}

// Registry returns the registry calls are dispatched on.
func (c *Channel) Registry() *ops.Registry {
	return c.reg
}

// State returns the op state shared by every call.
func (c *Channel) State() *ops.State {
	return c.state
}

// Pending returns the number of ref and unref async calls in flight.
func (c *Channel) Pending() (ref, unref int) {
	return c.loop.Pending()
}

// CallName resolves name and calls it.
func (c *Channel) CallName(ctx context.Context, name string, control, zeroCopy []byte) (Reply, error) {
	id, ok := c.reg.Lookup(name)
	if !ok {
		return Reply{Op: name}, fmt.Errorf("%w: %s", ops.ErrUnknownOp, name)
	}
	return c.Call(ctx, id, control, zeroCopy)
}

// Call dispatches one op and waits for its response, async ones included.
func (c *Channel) Call(ctx context.Context, id uint32, control, zeroCopy []byte) (Reply, error) {
	pending, err := c.Start(id, control, zeroCopy)
	if err != nil {
		return Reply{OpID: id}, err
	}
	return pending.Wait(ctx)
}

// Pending is a call whose response has not been awaited yet.
type Pending struct {
	base       Reply
	fut        *future.Future[Reply]
	mode       dispatch.Mode
	dispatched chan struct{}
	closed     <-chan struct{}
}

// Dispatched waits until the handler has run and returns the call's mode.
// Sync calls are settled by then.
func (p *Pending) Dispatched(ctx context.Context) (dispatch.Mode, error) {
	select {
	case <-p.dispatched:
		return p.mode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.closed:
		return 0, ErrClosed
	}
}

// Wait blocks until the response is available or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Reply, error) {
	r, err := p.fut.Await(ctx)
	if r.Op == "" {
		r = p.base
	}
	return r, err
}

// Start queues a call on the loop and returns without waiting for it.
// Handlers run on the loop goroutine; a contract violation fails the call
// instead of the loop.
func (c *Channel) Start(id uint32, control, zeroCopy []byte) (*Pending, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	name, ok := c.reg.Name(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ops.ErrUnknownOp, id)
	}

	p := &Pending{
		base:       Reply{OpID: id, Op: name},
		fut:        future.New[Reply](),
		dispatched: make(chan struct{}),
		closed:     c.done,
	}
	task := func() {
		defer close(p.dispatched)
		defer func() {
			if r := recover(); r != nil {
				v, ok := r.(*dispatch.ContractViolation)
				if !ok {
					panic(r)
				}
				c.logger.Error("op contract violation", zap.Error(v))
				p.fut.Complete(p.base, v)
			}
		}()
		c.dispatch(p, control, zeroCopy)
	}
	if err := c.loop.Submit(task); err != nil {
		return nil, ErrClosed
	}
	return p, nil
}

// dispatch runs on the loop goroutine.
func (c *Channel) dispatch(p *Pending, control, zeroCopy []byte) {
	name := p.base.Op
	timer := monitoring.NewTimer(c.metrics, name)

	op, err := c.reg.Dispatch(c.state, p.base.OpID, control, zeroCopy)
	if err != nil {
		p.fut.Complete(p.base, err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordDispatch(name, op.Mode.String())
	}

	p.mode = op.Mode
	reply := p.base
	reply.Mode = op.Mode
	if !op.IsAsync() {
		timer.Stop(outcome(op.Buf), len(op.Buf))
		reply.Buf = op.Buf
		p.fut.Complete(reply, nil)
		return
	}

	// A broken future never reaches deliver.
	op.Future.OnSettled(func(_ []byte, err error) {
		if err != nil {
			p.fut.Complete(reply, err)
		}
	})
	c.loop.Spawn(op.Future, op.Mode == dispatch.ModeAsyncUnref, func(buf []byte) {
		timer.Stop(outcome(buf), len(buf))
		r := reply
		r.Buf = buf
		p.fut.Complete(r, nil)
	})
}

func outcome(buf []byte) string {
	if codec.IsErr(buf) {
		return "err"
	}
	return "ok"
}

// Close releases the loop and every resource the state holds.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.state.Close()
	c.release()
	c.loop.Close()
}
