package ops

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
)

type signalResource struct {
	signo int
	ch    chan os.Signal
	done  chan struct{}
	once  sync.Once
}

func (r *signalResource) Name() string { return "signal" }

func (r *signalResource) Close() error {
	r.once.Do(func() {
		signal.Stop(r.ch)
		close(r.done)
	})
	return nil
}

type signalBindArgs struct {
	Signo int `json:"signo" validate:"required,gt=0"`
}

func opSignalBind(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a signalBindArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	r := &signalResource{
		signo: a.Signo,
		ch:    make(chan os.Signal, 1),
		done:  make(chan struct{}),
	}
	signal.Notify(r.ch, syscall.Signal(a.Signo))
	return immediate(map[string]uint32{"rid": s.Resources.Add(r)})
}

type signalPollArgs struct {
	codec.AsyncArgs
	RID uint32 `json:"rid" validate:"required"`
}

type signalPollResult struct {
	Done bool `json:"done"`
}

// opSignalPoll waits for the next delivery of a bound signal. A pending poll
// never keeps the executor alive.
func opSignalPoll(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a signalPollArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := requireAsync("op_signal_poll", a.AsyncArgs); err != nil {
		return nil, err
	}
	r, err := GetAs[*signalResource](s.Resources, a.RID)
	if err != nil {
		return nil, err
	}

	fut := future.New[any]()
	go func() {
		select {
		case <-r.ch:
			fut.Complete(signalPollResult{Done: false}, nil)
		case <-r.done:
			fut.Complete(signalPollResult{Done: true}, nil)
		}
	}()
	return dispatch.DeferredUnref{Future: fut}, nil
}

func opSignalUnbind(s *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a ridArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if _, err := GetAs[*signalResource](s.Resources, a.RID); err != nil {
		return nil, err
	}
	if err := s.Resources.Close(a.RID); err != nil {
		return nil, err
	}
	return immediate(nil)
}
