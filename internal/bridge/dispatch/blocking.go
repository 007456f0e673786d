package dispatch

import (
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
)

// Work is a unit of blocking native work.
type Work func() (any, error)

// BlockingPool runs work off the cooperative thread. A panic inside work
// must settle the future with a *future.BrokenPromise.
type BlockingPool interface {
	SpawnBlocking(work func() (any, error)) *future.Future[any]
}

// Blocking runs work inline when isSync, blocking the cooperative thread for
// its duration, and on pool otherwise.
func Blocking(pool BlockingPool, isSync bool, work Work) (Outcome, error) {
	if isSync {
		v, err := work()
		if err != nil {
			return nil, err
		}
		return Immediate{Value: v}, nil
	}
	return Deferred{Future: pool.SpawnBlocking(work)}, nil
}
