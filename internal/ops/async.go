package ops

import (
	"math"
	"time"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

// requireAsync rejects synchronous calls to ops that can only defer.
func requireAsync(name string, a codec.AsyncArgs) error {
	if a.IsSync() {
		return operror.Newf(operror.KindTypeError, "%s must be called asynchronously", name)
	}
	return nil
}

type timerArgs struct {
	codec.AsyncArgs
	Timeout float64 `json:"timeout" validate:"gte=0"`
}

// timerDelay converts milliseconds to a duration, saturating instead of
// overflowing into a negative delay.
func timerDelay(ms float64) time.Duration {
	if ms >= float64(math.MaxInt64)/float64(time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// opGlobalTimer settles after timeout milliseconds.
func opGlobalTimer(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a timerArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if err := requireAsync("op_global_timer", a.AsyncArgs); err != nil {
		return nil, err
	}

	fut := future.New[any]()
	time.AfterFunc(timerDelay(a.Timeout), func() {
		fut.Complete(nil, nil)
	})
	return dispatch.Deferred{Future: fut}, nil
}
