package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

func deferOnSync(_ *ops.State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return dispatch.Deferred{Future: future.Ready[any](true, nil)}, nil
}

func panicAsync(s *ops.State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return dispatch.Blocking(s.Loop, false, func() (any, error) {
		panic("worker exploded")
	})
}

func newChannel(t *testing.T) *Channel {
	t.Helper()
	reg := ops.NewDefaultRegistry()
	reg.MustRegister("op_bad", deferOnSync)
	reg.MustRegister("op_panic", panicAsync)

	ch := New(reg, WithStateOptions(ops.WithPermissions(ops.AllowAll())))
	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()
	t.Cleanup(func() {
		ch.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("loop did not stop after Close")
		}
	})
	return ch
}

func call(t *testing.T, ch *Channel, name, control string) Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := ch.CallName(ctx, name, []byte(control), nil)
	require.NoError(t, err)
	return r
}

func decode(t *testing.T, buf []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, sonic.Unmarshal(buf, &m))
	return m
}

func TestSyncCall(t *testing.T) {
	ch := newChannel(t)

	r := call(t, ch, "op_stats", `{"values":[1,2,3]}`)
	assert.Equal(t, dispatch.ModeSync, r.Mode)
	assert.Equal(t, "op_stats", r.Op)
	ok := decode(t, r.Buf)["ok"].(map[string]any)
	assert.Equal(t, 2.0, ok["mean"])
}

func TestAsyncCall(t *testing.T) {
	ch := newChannel(t)

	r := call(t, ch, "op_stat", `{"path":".","promiseId":42}`)
	assert.Equal(t, dispatch.ModeAsync, r.Mode)
	m := decode(t, r.Buf)
	assert.Equal(t, 42.0, m["promiseId"])
	assert.Contains(t, m, "ok")

	r = call(t, ch, "op_stat", `{"path":"/does/not/exist","promiseId":43}`)
	assert.True(t, codec.IsErr(r.Buf))
	m = decode(t, r.Buf)
	assert.Equal(t, 43.0, m["promiseId"])
}

func TestUnknownOp(t *testing.T) {
	ch := newChannel(t)

	_, err := ch.CallName(context.Background(), "op_nope", []byte(`{}`), nil)
	assert.ErrorIs(t, err, ops.ErrUnknownOp)

	_, err = ch.Call(context.Background(), 9999, []byte(`{}`), nil)
	assert.ErrorIs(t, err, ops.ErrUnknownOp)
}

func TestContractViolationFailsOnlyTheCall(t *testing.T) {
	ch := newChannel(t)

	_, err := ch.CallName(context.Background(), "op_bad", []byte(`{}`), nil)
	var v *dispatch.ContractViolation
	require.True(t, errors.As(err, &v), "got %v", err)
	assert.Equal(t, "op_bad", v.Op)

	r := call(t, ch, "op_random_uuid", `{}`)
	assert.False(t, codec.IsErr(r.Buf))
}

func TestBrokenPromiseReachesCaller(t *testing.T) {
	ch := newChannel(t)

	_, err := ch.CallName(context.Background(), "op_panic", []byte(`{"promiseId":1}`), nil)
	assert.True(t, future.IsBroken(err), "got %v", err)
}

func TestConcurrentCalls(t *testing.T) {
	ch := newChannel(t)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			control := fmt.Sprintf(`{"path":".","promiseId":%d}`, i)
			r, err := ch.CallName(context.Background(), "op_stat", []byte(control), nil)
			if err != nil {
				errs <- err
				return
			}
			if codec.IsErr(r.Buf) {
				errs <- fmt.Errorf("call %d: %s", i, r.Buf)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ch := newChannel(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.CallName(ctx, "op_global_timer", []byte(`{"timeout":5000,"promiseId":1}`), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedChannel(t *testing.T) {
	ch := newChannel(t)
	ch.Close()

	_, err := ch.CallName(context.Background(), "op_random_uuid", []byte(`{}`), nil)
	assert.ErrorIs(t, err, ErrClosed)
}
