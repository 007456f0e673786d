package ops

import (
	"context"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
)

const testPromiseID uint64 = 7

type harness struct {
	t     *testing.T
	reg   *Registry
	loop  *executor.Loop
	state *State
}

func newHarness(t *testing.T, opts ...StateOption) *harness {
	t.Helper()
	loop := executor.New(executor.WithBlockingThreads(4))
	opts = append([]StateOption{WithPermissions(AllowAll())}, opts...)
	state := NewState(loop, opts...)
	t.Cleanup(func() {
		state.Close()
		loop.Close()
	})
	return &harness{t: t, reg: NewDefaultRegistry(), loop: loop, state: state}
}

func (h *harness) control(args map[string]any, async bool) []byte {
	h.t.Helper()
	msg := map[string]any{}
	for k, v := range args {
		msg[k] = v
	}
	if async {
		msg["promiseId"] = testPromiseID
	}
	buf, err := sonic.Marshal(msg)
	require.NoError(h.t, err)
	return buf
}

func (h *harness) dispatch(name string, control, zeroCopy []byte) dispatch.Op {
	h.t.Helper()
	id, ok := h.reg.Lookup(name)
	require.True(h.t, ok, "op %s not registered", name)
	op, err := h.reg.Dispatch(h.state, id, control, zeroCopy)
	require.NoError(h.t, err)
	return op
}

// sync calls name without a promiseId and decodes the immediate response.
func (h *harness) sync(name string, args map[string]any, zeroCopy []byte) *codec.Response {
	h.t.Helper()
	op := h.dispatch(name, h.control(args, false), zeroCopy)
	require.Equal(h.t, dispatch.ModeSync, op.Mode)

	resp, err := codec.DecodeResponse(op.Buf)
	require.NoError(h.t, err)
	require.Nil(h.t, resp.PromiseID)
	return resp
}

// async calls name with a promiseId and waits for the deferred response.
func (h *harness) async(name string, args map[string]any, zeroCopy []byte) *codec.Response {
	h.t.Helper()
	op := h.dispatch(name, h.control(args, true), zeroCopy)
	require.True(h.t, op.IsAsync())
	return h.await(op)
}

func (h *harness) await(op dispatch.Op) *codec.Response {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buf, err := op.Future.Await(ctx)
	require.NoError(h.t, err)
	resp, err := codec.DecodeResponse(buf)
	require.NoError(h.t, err)
	require.NotNil(h.t, resp.PromiseID)
	require.Equal(h.t, testPromiseID, *resp.PromiseID)
	return resp
}

func into[T any](t *testing.T, resp *codec.Response) T {
	t.Helper()
	var v T
	require.NoError(t, resp.Into(&v))
	return v
}
