package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
)

var (
	ErrClosed  = errors.New("executor is closed")
	ErrRunning = errors.New("executor is already running")
)

// DefaultBlockingThreads bounds the worker pool when no size is configured.
const DefaultBlockingThreads = 512

// Recorder observes loop activity. Implemented by the monitoring package.
type Recorder interface {
	SetPending(ref, unref int)
	RecordBrokenPromise()
}

type nopRecorder struct{}

func (nopRecorder) SetPending(int, int)  {}
func (nopRecorder) RecordBrokenPromise() {}

// Loop is a single-goroutine cooperative executor.
type Loop struct {
	logger   *zap.Logger
	recorder Recorder
	onFault  func(error)
	failFast bool

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	running atomic.Bool
	refs    atomic.Int64
	unrefs  atomic.Int64
	holds   atomic.Int64
	faults  atomic.Int64

	faultMu  sync.Mutex
	firstErr error

	pool *semaphore.Weighted
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithBlockingThreads bounds the number of concurrently running blocking tasks.
func WithBlockingThreads(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.pool = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithFaultHandler registers a hook for broken futures. It runs on the loop.
func WithFaultHandler(fn func(error)) Option {
	return func(l *Loop) { l.onFault = fn }
}

// WithFailFast makes Run return on the first broken future.
func WithFailFast(enabled bool) Option {
	return func(l *Loop) { l.failFast = enabled }
}

// New creates a loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		wake:     make(chan struct{}, 1),
		pool:     semaphore.NewWeighted(DefaultBlockingThreads),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit queues fn to run on the loop goroutine.
func (l *Loop) Submit(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Spawn tracks fut until it settles, then queues deliver with its value.
// Unref futures do not keep Run alive.
func (l *Loop) Spawn(fut *future.Future[[]byte], unref bool, deliver func([]byte)) {
	counter := &l.refs
	if unref {
		counter = &l.unrefs
	}
	counter.Add(1)
	l.publishPending()

	fut.OnSettled(func(buf []byte, err error) {
		settle := func() {
			counter.Add(-1)
			l.publishPending()
			if err != nil {
				l.fault(err)
				return
			}
			deliver(buf)
		}
		if serr := l.Submit(settle); serr != nil {
			// Closed: the response is dropped together with the context.
			counter.Add(-1)
			l.publishPending()
		}
	})
}

// SpawnBlocking runs work on the worker pool. Work runs to completion even
// if nobody waits for the future anymore.
func (l *Loop) SpawnBlocking(work func() (any, error)) *future.Future[any] {
	fut := future.New[any]()
	go func() {
		if err := l.pool.Acquire(context.Background(), 1); err != nil {
			fut.Complete(nil, err)
			return
		}
		defer l.pool.Release(1)

		defer func() {
			if r := recover(); r != nil {
				fut.Complete(nil, &future.BrokenPromise{Value: r, Stack: debug.Stack()})
			}
		}()
		fut.Complete(work())
	}()
	return fut
}

// Hold keeps Run alive until the returned release func is called.
func (l *Loop) Hold() (release func()) {
	l.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.holds.Add(-1)
			l.Submit(func() {})
		})
	}
}

// Pending returns the number of ref and unref futures in flight.
func (l *Loop) Pending() (ref, unref int) {
	return int(l.refs.Load()), int(l.unrefs.Load())
}

// Faults returns the number of broken futures observed.
func (l *Loop) Faults() int {
	return int(l.faults.Load())
}

// Run executes tasks until no ref work, holds or queued tasks remain, ctx is
// done, or (fail-fast) a future breaks.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	for {
		if err := l.drain(); err != nil {
			return err
		}

		if l.idle() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunOnce executes the tasks queued so far without waiting for more.
func (l *Loop) RunOnce() error {
	return l.drain()
}

// Close rejects further tasks. Futures still pending are dropped without a
// response.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}

func (l *Loop) drain() error {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return nil
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for i, task := range batch {
			task()
			if !l.failFast {
				continue
			}
			if err := l.takeFault(); err != nil {
				l.requeue(batch[i+1:])
				return err
			}
		}
	}
}

// requeue puts tasks back at the front of the queue so their settlements
// still run on the next Run.
func (l *Loop) requeue(tasks []func()) {
	if len(tasks) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(append(make([]func(), 0, len(tasks)+len(l.queue)), tasks...), l.queue...)
}

func (l *Loop) idle() bool {
	l.mu.Lock()
	queued := len(l.queue)
	l.mu.Unlock()
	return queued == 0 && l.refs.Load() == 0 && l.holds.Load() == 0
}

func (l *Loop) fault(err error) {
	l.faults.Add(1)
	l.recorder.RecordBrokenPromise()

	fields := []zap.Field{zap.Error(err)}
	var bp *future.BrokenPromise
	if errors.As(err, &bp) {
		fields = append(fields, zap.ByteString("stack", bp.Stack))
	}
	l.logger.Error("broken promise", fields...)

	l.faultMu.Lock()
	if l.firstErr == nil {
		l.firstErr = fmt.Errorf("executor: %w", err)
	}
	l.faultMu.Unlock()

	if l.onFault != nil {
		l.onFault(err)
	}
}

// takeFault returns and clears the first fault since it was last taken.
func (l *Loop) takeFault() error {
	l.faultMu.Lock()
	defer l.faultMu.Unlock()
	err := l.firstErr
	l.firstErr = nil
	return err
}

func (l *Loop) publishPending() {
	l.recorder.SetPending(int(l.refs.Load()), int(l.unrefs.Load()))
}
