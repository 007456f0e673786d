package isolate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

//go:embed prelude.js
var preludeSource string

var (
	ErrClosed  = errors.New("isolate is closed")
	ErrTimeout = errors.New("script execution timed out")
)

// ScriptError is an exception that escaped a script.
type ScriptError struct {
	Script  string
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Stack != "" {
		return e.Stack
	}
	return e.Message
}

// Isolate is one script execution context.
type Isolate struct {
	vm      *goja.Runtime
	loop    *executor.Loop
	reg     *ops.Registry
	state   *ops.State
	logger  *zap.Logger
	metrics *monitoring.Metrics
	stdout  io.Writer
	stderr  io.Writer
	timeout time.Duration

	stateOpts []ops.StateOption
	counters  opCounters

	// Touched only from the goroutine running Execute.
	handlers   map[uint32]goja.Callable
	rejections map[*goja.Promise]struct{}
	uncaught   error
	ctx        context.Context
	stop       context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Option configures an Isolate.
type Option func(*Isolate)

// WithLogger sets the isolate logger. It is shared with the loop, the
// registry and the op state unless those are supplied explicitly.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Isolate) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics records dispatches and responses on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(i *Isolate) { i.metrics = m }
}

// WithStdout sets where console.log output goes.
func WithStdout(w io.Writer) Option {
	return func(i *Isolate) {
		if w != nil {
			i.stdout = w
		}
	}
}

// WithStderr sets where console.error output goes.
func WithStderr(w io.Writer) Option {
	return func(i *Isolate) {
		if w != nil {
			i.stderr = w
		}
	}
}

// WithTimeout bounds each Execute call, loop included. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(i *Isolate) { i.timeout = d }
}

// WithLoop runs ops on an existing loop.
func WithLoop(loop *executor.Loop) Option {
	return func(i *Isolate) { i.loop = loop }
}

// WithRegistry replaces the builtin op registry.
func WithRegistry(reg *ops.Registry) Option {
	return func(i *Isolate) { i.reg = reg }
}

// WithStateOptions passes options to the op state (permissions, start info,
// HTTP client).
func WithStateOptions(opts ...ops.StateOption) Option {
	return func(i *Isolate) { i.stateOpts = append(i.stateOpts, opts...) }
}

// New creates an isolate and runs the prelude.
func New(opts ...Option) (*Isolate, error) {
	i := &Isolate{
		logger:     zap.NewNop(),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		handlers:   make(map[uint32]goja.Callable),
		rejections: make(map[*goja.Promise]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.loop == nil {
		loopOpts := []executor.Option{executor.WithLogger(i.logger)}
		if i.metrics != nil {
			loopOpts = append(loopOpts, executor.WithRecorder(i.metrics))
		}
		i.loop = executor.New(loopOpts...)
	}
	if i.reg == nil {
		i.reg = ops.NewDefaultRegistry(dispatch.WithLogger(i.logger))
	}

	stateOpts := []ops.StateOption{
		ops.WithLogger(i.logger),
		ops.WithMetricsSource(func() any { return i.OpMetrics() }),
	}
	i.state = ops.NewState(i.loop, append(stateOpts, i.stateOpts...)...)

	i.vm = goja.New()
	i.vm.SetPromiseRejectionTracker(i.trackRejection)
	if err := i.installCore(); err != nil {
		return nil, fmt.Errorf("isolate: install core: %w", err)
	}
	if _, err := i.vm.RunScript("prelude.js", preludeSource); err != nil {
		return nil, fmt.Errorf("isolate: prelude: %w", i.scriptErr(context.Background(), "prelude.js", err))
	}
	return i, nil
}

// Execute runs source, then drives the loop until no ref'ed op is pending.
// If the script evaluates to a promise, its settled value is returned.
func (i *Isolate) Execute(ctx context.Context, name, source string) (result any, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, ErrClosed
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	i.ctx, i.stop = ctx, stop
	i.uncaught = nil
	i.vm.ClearInterrupt()

	done, exited := make(chan struct{}), make(chan struct{})
	defer func() {
		close(done)
		<-exited
	}()
	go func() {
		defer close(exited)
		select {
		case <-runCtx.Done():
			i.vm.Interrupt(runCtx.Err())
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			v, ok := r.(*dispatch.ContractViolation)
			if !ok {
				panic(r)
			}
			// The VM unwound mid-call and cannot be trusted again.
			i.closed = true
			i.logger.Error("op contract violation", zap.Error(v))
			result, err = nil, fmt.Errorf("isolate: fatal: %w", v)
		}
	}()

	start := time.Now()
	val, err := i.vm.RunScript(name, source)
	if err != nil {
		var v *dispatch.ContractViolation
		if errors.As(err, &v) {
			panic(v)
		}
		return nil, i.scriptErr(ctx, name, err)
	}
	if err := i.checkRejections(); err != nil {
		return nil, err
	}

	if err := i.loop.Run(runCtx); err != nil {
		if i.uncaught != nil {
			return nil, i.uncaught
		}
		if ctx.Err() != nil {
			return nil, i.ctxErr(ctx)
		}
		return nil, err
	}
	if i.uncaught != nil {
		return nil, i.uncaught
	}

	i.logger.Debug("script finished",
		zap.String("script", name),
		zap.Duration("duration", time.Since(start)),
	)
	return i.settle(name, val)
}

// OpMetrics returns bridge traffic counters.
func (i *Isolate) OpMetrics() OpMetrics {
	return i.counters.snapshot()
}

// State returns the op state handle.
func (i *Isolate) State() *ops.State {
	return i.state
}

// Loop returns the executor driving this isolate.
func (i *Isolate) Loop() *executor.Loop {
	return i.loop
}

// Close releases resources. Pending ops are dropped.
func (i *Isolate) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.closed = true
	i.state.Close()
	i.loop.Close()
	return nil
}

func (i *Isolate) settle(name string, val goja.Value) (any, error) {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}

	p, ok := val.Export().(*goja.Promise)
	if !ok {
		return val.Export(), nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		if res := p.Result(); res != nil && !goja.IsUndefined(res) && !goja.IsNull(res) {
			return res.Export(), nil
		}
		return nil, nil
	case goja.PromiseStateRejected:
		return nil, i.reasonErr(name, p.Result())
	default:
		return nil, &ScriptError{Script: name, Message: "script promise never settled"}
	}
}

// fail records the first uncaught error and stops the run.
func (i *Isolate) fail(err error) {
	if i.uncaught == nil {
		i.uncaught = err
		i.logger.Error("uncaught script error", zap.Error(err))
	}
	if i.stop != nil {
		i.stop()
	}
}

func (i *Isolate) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		i.rejections[p] = struct{}{}
	case goja.PromiseRejectionHandle:
		delete(i.rejections, p)
	}
}

func (i *Isolate) checkRejections() error {
	for p := range i.rejections {
		delete(i.rejections, p)
		err := i.reasonErr("", p.Result())
		if se, ok := err.(*ScriptError); ok {
			se.Message = "Uncaught (in promise) " + se.Message
		}
		return err
	}
	return nil
}

func (i *Isolate) reasonErr(name string, reason goja.Value) error {
	se := &ScriptError{Script: name}
	if reason == nil {
		se.Message = "undefined"
		return se
	}
	se.Message = reason.String()
	if obj, ok := reason.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			se.Stack = stack.String()
		}
	}
	return se
}

func (i *Isolate) scriptErr(ctx context.Context, name string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if i.uncaught != nil {
			return i.uncaught
		}
		if ctx.Err() != nil {
			return i.ctxErr(ctx)
		}
		return err
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{Script: name, Message: ex.Value().String(), Stack: ex.String()}
	}
	return err
}

func (i *Isolate) ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
