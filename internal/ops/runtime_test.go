package ops

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

func TestOpStart(t *testing.T) {
	info := DefaultStartInfo([]string{"a", "b"})
	info.NoColor = true
	h := newHarness(t, WithStartInfo(info))

	got := into[StartInfo](t, h.sync("op_start", nil, nil))
	assert.Equal(t, os.Getpid(), got.PID)
	assert.Equal(t, []string{"a", "b"}, got.Args)
	assert.True(t, got.NoColor)
	assert.Equal(t, Version, got.Versions.Opbridge)
	assert.Equal(t, "goja", got.Versions.Engine)
	assert.NotEmpty(t, got.Cwd)
}

func TestDefaultStartInfoHasEmptyArgs(t *testing.T) {
	assert.Equal(t, []string{}, DefaultStartInfo(nil).Args)
}

func TestOpMetrics(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, map[string]any{}, into[map[string]any](t, h.sync("op_metrics", nil, nil)))

	h = newHarness(t, WithMetricsSource(func() any { return map[string]int{"opsDispatched": 3} }))
	assert.Equal(t, map[string]int{"opsDispatched": 3}, into[map[string]int](t, h.sync("op_metrics", nil, nil)))
}

func TestVersionSatisfies(t *testing.T) {
	h := newHarness(t)

	assert.True(t, into[bool](t, h.sync("op_version_satisfies", map[string]any{"version": "1.4.2", "constraint": "^1.2"}, nil)))
	assert.False(t, into[bool](t, h.sync("op_version_satisfies", map[string]any{"version": "2.0.0", "constraint": "~1.4"}, nil)))

	resp := h.sync("op_version_satisfies", map[string]any{"version": "one", "constraint": "^1"}, nil)
	require.NotNil(t, resp.Err)
	assert.Equal(t, operror.KindTypeError, resp.Err.Kind)
}

func TestOSRelease(t *testing.T) {
	h := newHarness(t)
	assert.NotEmpty(t, into[string](t, h.sync("op_os_release", nil, nil)))
}

func TestRandomUUID(t *testing.T) {
	h := newHarness(t)
	a := into[string](t, h.sync("op_random_uuid", nil, nil))
	b := into[string](t, h.sync("op_random_uuid", nil, nil))

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSyncOpCalledAsyncViolatesContract(t *testing.T) {
	h := newHarness(t)
	assert.Panics(t, func() {
		h.dispatch("op_random_uuid", h.control(nil, true), nil)
	})
}
