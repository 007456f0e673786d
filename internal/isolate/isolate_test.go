package isolate

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/future"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

func newIsolate(t *testing.T, opts ...Option) (*Isolate, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	base := []Option{
		WithStdout(&out),
		WithStderr(&out),
		WithTimeout(10 * time.Second),
		WithStateOptions(ops.WithPermissions(ops.AllowAll())),
	}
	iso, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { iso.Close() })
	return iso, &out
}

func run(t *testing.T, iso *Isolate, src string) any {
	t.Helper()
	v, err := iso.Execute(context.Background(), "test.js", src)
	require.NoError(t, err)
	return v
}

func TestSyncOps(t *testing.T) {
	iso, _ := newIsolate(t)

	assert.Equal(t, int64(36), run(t, iso, `Deno.randomUUID().length`))
	assert.Equal(t, int64(2), run(t, iso, `core.jsonOpSync("op_stats", { values: [1, 2, 3] }).mean`))
	assert.Equal(t, true, run(t, iso, `Deno.versionSatisfies("1.2.3", ">=1.0.0")`))
}

func TestOpsMapIsDense(t *testing.T) {
	iso, _ := newIsolate(t)
	v := run(t, iso, `const m = core.ops(); Object.values(m).sort((a, b) => a - b)[0]`)
	assert.Equal(t, int64(1), v)
}

func TestAsyncFileRoundTrip(t *testing.T) {
	iso, _ := newIsolate(t)
	path := filepath.Join(t.TempDir(), "f.txt")

	v := run(t, iso, `(async () => {
		await Deno.writeTextFile(`+quote(path)+`, "hello");
		return await Deno.readTextFile(`+quote(path)+`);
	})()`)
	assert.Equal(t, "hello", v)

	v = run(t, iso, `(async () => {
		await Deno.writeFile(`+quote(path)+`, core.encode("bytes"));
		return core.decode(Deno.readFileSync(`+quote(path)+`));
	})()`)
	assert.Equal(t, "bytes", v)

	m := iso.OpMetrics()
	assert.GreaterOrEqual(t, m.OpsDispatchedAsync, uint64(3))
	assert.Equal(t, m.OpsDispatched, m.OpsCompleted)
	assert.NotZero(t, m.BytesSentData)
}

func TestErrorKindsReachScripts(t *testing.T) {
	iso, _ := newIsolate(t)
	missing := filepath.Join(t.TempDir(), "missing")

	v := run(t, iso, `(async () => {
		try {
			await Deno.readTextFile(`+quote(missing)+`);
		} catch (e) {
			return [e.name, e.kind, e instanceof core.OpError];
		}
	})()`)
	assert.Equal(t, []any{"NotFound", int64(1), true}, v)

	v = run(t, iso, `try { core.jsonOpSync("op_stat", {}); false } catch (e) { e instanceof TypeError }`)
	assert.Equal(t, true, v)

	v = run(t, iso, `try { core.jsonOpSync("op_nope"); false } catch (e) { e instanceof TypeError }`)
	assert.Equal(t, true, v)
}

func TestConsole(t *testing.T) {
	iso, out := newIsolate(t)
	run(t, iso, `console.log("hello", { a: 1 }); console.error("oops")`)
	assert.Equal(t, "hello {\"a\":1}\noops\n", out.String())
}

func TestTimersOrder(t *testing.T) {
	iso, _ := newIsolate(t)
	v := run(t, iso, `
		const out = [];
		setTimeout(() => out.push(2), 30);
		setTimeout(() => out.push(1), 5);
		const cancelled = setTimeout(() => out.push(3), 10);
		clearTimeout(cancelled);
		new Promise((resolve) => setTimeout(() => resolve(out), 60));
	`)
	assert.Equal(t, []any{int64(1), int64(2)}, v)
}

func TestStartInfo(t *testing.T) {
	iso, _ := newIsolate(t, WithStateOptions(ops.WithStartInfo(ops.DefaultStartInfo([]string{"x", "y"}))))
	assert.Equal(t, []any{"x", "y"}, run(t, iso, `Deno.args.slice()`))
	assert.Equal(t, "goja", run(t, iso, `Deno.version.engine`))
}

func TestTimeout(t *testing.T) {
	iso, _ := newIsolate(t, WithTimeout(50*time.Millisecond))

	_, err := iso.Execute(context.Background(), "spin.js", `while (true) {}`)
	assert.ErrorIs(t, err, ErrTimeout)

	// the isolate stays usable after an interrupt
	assert.Equal(t, int64(2), run(t, iso, `1 + 1`))

	_, err = iso.Execute(context.Background(), "wait.js", `setTimeout(() => {}, 10000)`)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestContextCancel(t *testing.T) {
	iso, _ := newIsolate(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := iso.Execute(ctx, "wait.js", `setTimeout(() => {}, 10000)`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUncaughtErrors(t *testing.T) {
	iso, _ := newIsolate(t)

	_, err := iso.Execute(context.Background(), "throw.js", `setTimeout(() => { throw new Error("boom") }, 1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = iso.Execute(context.Background(), "reject.js", `Promise.reject(new Error("nope"))`)
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.True(t, strings.HasPrefix(se.Message, "Uncaught (in promise)"), se.Message)

	_, err = iso.Execute(context.Background(), "syntax.js", `let = ;`)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "syntax.js", se.Script)

	_, err = iso.Execute(context.Background(), "rejected.js", `(async () => { throw new Error("async fail") })()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "async fail")
}

func deferOnSync(_ *ops.State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return dispatch.Deferred{Future: future.Ready[any](1, nil)}, nil
}

func TestStrictContractViolationIsFatal(t *testing.T) {
	reg := ops.NewDefaultRegistry()
	reg.MustRegister("op_bad", deferOnSync)
	iso, _ := newIsolate(t, WithRegistry(reg))

	_, err := iso.Execute(context.Background(), "bad.js", `core.jsonOpSync("op_bad")`)
	var v *dispatch.ContractViolation
	require.True(t, errors.As(err, &v), "got %v", err)
	assert.Equal(t, "op_bad", v.Op)

	_, err = iso.Execute(context.Background(), "after.js", `1`)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLenientContractViolationThrowsInternal(t *testing.T) {
	reg := ops.NewDefaultRegistry(dispatch.WithStrict(false))
	reg.MustRegister("op_bad", deferOnSync)
	iso, _ := newIsolate(t, WithRegistry(reg))

	v := run(t, iso, `try { core.jsonOpSync("op_bad"); null } catch (e) { [e.name, e.kind] }`)
	assert.Equal(t, []any{"Internal", int64(24)}, v)
}

func panicAsync(s *ops.State, _ codec.Args, _ []byte) (dispatch.Outcome, error) {
	return dispatch.Blocking(s.Loop, false, func() (any, error) {
		panic("worker exploded")
	})
}

func TestBrokenPromiseFailsFast(t *testing.T) {
	reg := ops.NewDefaultRegistry()
	reg.MustRegister("op_panic", panicAsync)
	loop := executor.New(executor.WithFailFast(true))
	iso, _ := newIsolate(t, WithRegistry(reg), WithLoop(loop))

	_, err := iso.Execute(context.Background(), "panic.js", `core.jsonOpAsync("op_panic")`)
	var bp *future.BrokenPromise
	require.True(t, errors.As(err, &bp), "got %v", err)
	assert.Equal(t, "worker exploded", bp.Value)
	assert.Equal(t, 1, loop.Faults())

	// the fault is consumed; later scripts run on the same loop
	assert.Equal(t, int64(3), run(t, iso, `new Promise((resolve) => setTimeout(() => resolve(3), 1))`))
}

func TestPrometheusMetrics(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	iso, _ := newIsolate(t, WithMetrics(m))

	run(t, iso, `Deno.randomUUID(); Deno.stat(".")`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsDispatched.WithLabelValues("op_random_uuid", "sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsDispatched.WithLabelValues("op_stat", "async")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpResponses.WithLabelValues("op_stat", "ok")))
}

func TestMetricsOp(t *testing.T) {
	iso, _ := newIsolate(t)
	v := run(t, iso, `Deno.randomUUID(); Deno.metrics().opsDispatchedSync > 0`)
	assert.Equal(t, true, v)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, `\`, `\\`) + "'"
}
