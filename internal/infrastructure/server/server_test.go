package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/logging"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg,
		WithLogger(logging.Nop()),
		WithPrometheusRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Channel().Run(ctx)
	}()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		srv.Close()
	})
	return ts
}

func post(t *testing.T, ts *httptest.Server, op, control string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/ops/"+op, "application/json", strings.NewReader(control))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, sonic.Unmarshal(body, &m), string(body))
	return resp, m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, m := func() (*http.Response, map[string]any) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		var m map[string]any
		require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&m))
		return resp, m
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", m["status"])
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestListOps(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/ops")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Ops []struct {
			ID   uint32 `json:"id"`
			Name string `json:"name"`
		} `json:"ops"`
	}
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Ops)
	assert.Equal(t, uint32(1), body.Ops[0].ID)
	assert.Equal(t, "op_start", body.Ops[0].Name)
}

func TestCallSyncOp(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, m := post(t, ts, "op_stats", `{"values":[1,2,3]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sync", resp.Header.Get(middleware.OpModeHeader))
	assert.Equal(t, 2.0, m["ok"].(map[string]any)["mean"])
}

func TestCallAsyncOpErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	// default permissions deny reads
	resp, m := post(t, ts, "op_read_text_file", `{"path":"/etc/hostname","promiseId":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5.0, m["promiseId"])
	errRec := m["err"].(map[string]any)
	assert.Equal(t, 2.0, errRec["kind"])
}

func TestCallEmptyBodyIsMalformedEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, m := post(t, ts, "op_stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sync", resp.Header.Get(middleware.OpModeHeader))
	assert.Contains(t, m, "promiseId")
	assert.Nil(t, m["promiseId"])
	assert.NotContains(t, m, "ok")
	assert.Equal(t, 17.0, m["err"].(map[string]any)["kind"])
}

func TestCallUnknownOp(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, m := post(t, ts, "op_nope", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, m["error"], "unknown op")
}

func TestCallWithZeroCopyBody(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/ops/op_compress", strings.NewReader("hello hello hello"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Op-Control", `{"format":"gzip","promiseId":1}`)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "async", resp.Header.Get(middleware.OpModeHeader))

	var env struct {
		Ok []byte `json:"ok"`
	}
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&env))

	zr, err := gzip.NewReader(bytes.NewReader(env.Ok))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "hello hello hello", string(out))
}

func TestCallWithZeroCopyHeader(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/ops/op_compress", strings.NewReader(`{"format":"gzip","promiseId":1}`))
	require.NoError(t, err)
	req.Header.Set(middleware.ZeroCopyHeader, "!!!")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/ops/op_compress", strings.NewReader(`{"format":"gzip","promiseId":1}`))
	require.NoError(t, err)
	req.Header.Set(middleware.ZeroCopyHeader, base64.StdEncoding.EncodeToString([]byte("abc")))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPrometheusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	post(t, ts, "op_random_uuid", `{}`)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `opbridge_ops_dispatched_total{mode="sync",op="op_random_uuid"} 1`)
	assert.Contains(t, string(body), "opbridge_http_requests_total")
}

func TestTracesEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	post(t, ts, "op_random_uuid", `{}`)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/debug/traces")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), "op op_random_uuid")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRateLimitEnabled(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1}
	})

	first, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	first.Body.Close()
	second, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	second.Body.Close()

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func opID(t *testing.T, ts *httptest.Server, name string) uint32 {
	t.Helper()
	resp, err := http.Get(ts.URL + "/ops")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Ops []struct {
			ID   uint32 `json:"id"`
			Name string `json:"name"`
		} `json:"ops"`
	}
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&body))
	for _, op := range body.Ops {
		if op.Name == name {
			return op.ID
		}
	}
	t.Fatalf("op %s not registered", name)
	return 0
}

func readReply(t *testing.T, conn *websocket.Conn) (uint32, *codec.Response) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)

	id, buf, err := ws.DecodeReply(frame)
	require.NoError(t, err)
	resp, err := codec.DecodeResponse(buf)
	require.NoError(t, err)
	return id, resp
}

func TestWebSocketSyncAndAsync(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	timer := opID(t, ts, "op_global_timer")
	stats := opID(t, ts, "op_stats")

	// the timer settles after the sync call answered
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		ws.EncodeCall(timer, []byte(`{"timeout":50,"promiseId":9}`), nil)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		ws.EncodeCall(stats, []byte(`{"values":[2,4]}`), nil)))

	id, resp := readReply(t, conn)
	assert.Equal(t, stats, id)
	assert.True(t, resp.IsOk())
	assert.Nil(t, resp.PromiseID)

	id, resp = readReply(t, conn)
	assert.Equal(t, timer, id)
	require.NotNil(t, resp.PromiseID)
	assert.Equal(t, uint64(9), *resp.PromiseID)
}

func TestWebSocketUnknownOp(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		ws.EncodeCall(9999, []byte(`{"promiseId":3}`), nil)))

	id, resp := readReply(t, conn)
	assert.Equal(t, uint32(9999), id)
	assert.False(t, resp.IsOk())
	require.NotNil(t, resp.PromiseID)
	assert.Equal(t, uint64(3), *resp.PromiseID)
}

func TestWebSocketRejectsTextFrames(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
}
