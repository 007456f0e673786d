package ops

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/httpclient"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{Timeout: 5 * time.Second, UserAgent: "ops-test"})
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Write(body)
	}))
	defer srv.Close()

	h := newHarness(t, WithHTTPClient(testClient()))

	resp := h.async("op_fetch", map[string]any{"url": srv.URL, "method": "POST"}, []byte("ping"))
	res := into[httpclient.Response](t, resp)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ping", res.Body)
	assert.Equal(t, "POST", res.Headers["x-method"])

	res = into[httpclient.Response](t, h.async("op_fetch", map[string]any{"url": srv.URL, "method": "PUT", "body": "text"}, nil))
	assert.Equal(t, "text", res.Body)
}

func TestFetchPermissionDenied(t *testing.T) {
	h := newHarness(t, WithPermissions(NewPermissions(PermissionSet{Net: []string{"example.com"}})))

	resp := h.async("op_fetch", map[string]any{"url": "http://127.0.0.1:1/"}, nil)
	require.NotNil(t, resp.Err)
	assert.Equal(t, operror.KindPermissionDenied, resp.Err.Kind)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := newHarness(t, WithHTTPClient(testClient()))
	resp := h.async("op_fetch", map[string]any{"url": url}, nil)
	require.NotNil(t, resp.Err)
	assert.Equal(t, operror.KindConnectionRefused, resp.Err.Kind)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	h := newHarness(t, WithHTTPClient(testClient()))
	dest := filepath.Join(t.TempDir(), "out.bin")

	res := into[downloadResult](t, h.async("op_download", map[string]any{"url": srv.URL, "path": dest}, nil))
	assert.EqualValues(t, 7, res.Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
