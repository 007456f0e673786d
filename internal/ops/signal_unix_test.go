//go:build unix

package ops

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

func TestSignalPollIsUnref(t *testing.T) {
	h := newHarness(t)

	bound := into[map[string]uint32](t, h.sync("op_signal_bind", map[string]any{"signo": int(syscall.SIGUSR1)}, nil))
	rid := bound["rid"]
	require.NotZero(t, rid)

	op := h.dispatch("op_signal_poll", h.control(map[string]any{"rid": rid}, true), nil)
	assert.Equal(t, dispatch.ModeAsyncUnref, op.Mode)

	require.True(t, h.sync("op_signal_unbind", map[string]any{"rid": rid}, nil).IsOk())
	res := into[signalPollResult](t, h.await(op))
	assert.True(t, res.Done)

	resp := h.sync("op_signal_unbind", map[string]any{"rid": rid}, nil)
	require.NotNil(t, resp.Err)
	assert.Equal(t, operror.KindBadResource, resp.Err.Kind)
}

func TestSignalDelivery(t *testing.T) {
	h := newHarness(t)

	bound := into[map[string]uint32](t, h.sync("op_signal_bind", map[string]any{"signo": int(syscall.SIGUSR2)}, nil))
	op := h.dispatch("op_signal_poll", h.control(map[string]any{"rid": bound["rid"]}, true), nil)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	res := into[signalPollResult](t, h.await(op))
	assert.False(t, res.Done)
}
