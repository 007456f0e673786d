package ops

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

func TestGlobalTimer(t *testing.T) {
	h := newHarness(t)

	start := time.Now()
	op := h.dispatch("op_global_timer", h.control(map[string]any{"timeout": 20}, true), nil)
	assert.Equal(t, dispatch.ModeAsync, op.Mode)
	resp := h.await(op)
	assert.True(t, resp.IsOk())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimerDelaySaturates(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, timerDelay(20))
	assert.Equal(t, time.Duration(1500)*time.Microsecond, timerDelay(1.5))
	assert.Equal(t, time.Duration(math.MaxInt64), timerDelay(1e300))
	assert.Equal(t, time.Duration(math.MaxInt64), timerDelay(float64(math.MaxInt64)))
}

func TestGlobalTimerHugeTimeoutStaysPending(t *testing.T) {
	h := newHarness(t)

	op := h.dispatch("op_global_timer", h.control(map[string]any{"timeout": 1e300}, true), nil)
	require.Equal(t, dispatch.ModeAsync, op.Mode)
	select {
	case <-op.Future.Done():
		t.Fatal("timer with a huge timeout settled immediately")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestAsyncOnlyOpsRejectSyncCalls(t *testing.T) {
	h := newHarness(t)

	for _, name := range []string{"op_global_timer", "op_fetch", "op_fs_events_poll", "op_signal_poll"} {
		args := map[string]any{"timeout": 1, "url": "http://localhost", "rid": 1}
		resp := h.sync(name, args, nil)
		require.NotNil(t, resp.Err, name)
		assert.Equal(t, operror.KindTypeError, resp.Err.Kind, name)
	}
}

func TestFsWatch(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	watched := into[map[string]uint32](t, h.sync("op_fs_watch", map[string]any{"paths": []string{dir}, "recursive": true}, nil))
	rid := watched["rid"]

	op := h.dispatch("op_fs_events_poll", h.control(map[string]any{"rid": rid}, true), nil)
	assert.Equal(t, dispatch.ModeAsync, op.Mode)

	target := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	ev := into[fsEvent](t, h.await(op))
	assert.Equal(t, "create", ev.Kind)
	assert.Equal(t, []string{target}, ev.Paths)

	require.True(t, h.sync("op_close", map[string]any{"rid": rid}, nil).IsOk())
}

func TestFsEventsPollSettlesOnClose(t *testing.T) {
	h := newHarness(t)

	watched := into[map[string]uint32](t, h.sync("op_fs_watch", map[string]any{"paths": []string{t.TempDir()}}, nil))
	rid := watched["rid"]

	op := h.dispatch("op_fs_events_poll", h.control(map[string]any{"rid": rid}, true), nil)
	require.True(t, h.sync("op_close", map[string]any{"rid": rid}, nil).IsOk())

	resp := h.await(op)
	require.True(t, resp.IsOk())
	assert.JSONEq(t, "null", string(resp.Ok))
}

func TestFsWatchMissingPath(t *testing.T) {
	h := newHarness(t)
	resp := h.sync("op_fs_watch", map[string]any{"paths": []string{filepath.Join(t.TempDir(), "nope")}}, nil)
	require.NotNil(t, resp.Err)
	assert.Equal(t, operror.KindNotFound, resp.Err.Kind)
}
