package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := execute(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage:")

	code, _, stderr = execute(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "bogus"`)
}

func TestEval(t *testing.T) {
	code, stdout, stderr := execute(t, "eval", "Deno.stats([1, 2, 3]).mean")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "2\n", stdout)

	code, stdout, _ = execute(t, "eval", `({ a: [1, "x"] })`)
	require.Equal(t, 0, code)
	assert.Equal(t, "{\"a\":[1,\"x\"]}\n", stdout)
}

func TestEvalArgs(t *testing.T) {
	code, stdout, stderr := execute(t, "eval", "Deno.args.join('+')", "a", "b")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "a+b\n", stdout)
}

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(data, []byte("from disk"), 0o644))

	script := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(script, []byte(`(async () => {
		const text = await Deno.readTextFile(Deno.args[0]);
		console.log(text.toUpperCase());
	})()`), 0o644))

	code, stdout, stderr := execute(t, "run", "-allow-read="+dir, script, data)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "FROM DISK\n", stdout)
}

func TestRunPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(script, []byte(`Deno.readTextFileSync("/etc/hostname")`), 0o644))

	code, _, stderr := execute(t, "run", script)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")
	assert.Contains(t, stderr, "PermissionDenied")
}

func TestRunMissingScript(t *testing.T) {
	code, _, stderr := execute(t, "run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing script path")
}

func TestListOps(t *testing.T) {
	code, stdout, _ := execute(t, "ops")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "   1  op_start\n")
	assert.Contains(t, stdout, "op_read_file")
}

func TestListFlag(t *testing.T) {
	var dst []string
	f := listFlag{&dst}
	require.NoError(t, f.Set("a, b,,c"))
	assert.Equal(t, []string{"a", "b", "c"}, dst)
	assert.Equal(t, "a,b,c", f.String())
}
