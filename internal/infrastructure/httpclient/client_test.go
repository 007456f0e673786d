package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/resilience"
)

func testOptions() Options {
	return Options{
		Timeout:   5 * time.Second,
		MinWait:   time.Millisecond,
		MaxWait:   time.Millisecond,
		UserAgent: "opbridge-test",
	}
}

func TestDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "opbridge-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		w.Write(append([]byte(r.Method+":"), body...))
	}))
	defer srv.Close()

	c := New(testOptions())
	resp, err := c.Do(context.Background(), Request{
		Method:  "post",
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
		Body:    []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)
	assert.Equal(t, "POST:hello", resp.Body)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Headers["content-type"])
}

func TestDoTranscodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer srv.Close()

	resp, err := New(testOptions()).Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "café", resp.Body)
}

func TestDoServerErrorIsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testOptions())
	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, uint32(1), c.Breaker().Counts().TotalFailures)
}

func TestDoRejectsWhileBreakerOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testOptions())
	for i := 0; i < 10; i++ {
		c.Do(context.Background(), Request{URL: srv.URL})
	}
	require.Equal(t, resilience.StateOpen, c.Breaker().State())

	_, err := c.Do(context.Background(), Request{URL: srv.URL})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := New(testOptions()).Download(context.Background(), srv.URL, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	var buf bytes.Buffer
	_, err := New(testOptions()).Download(context.Background(), srv.URL, &buf)
	assert.Error(t, err)
}

func TestRateLimitHonorsContext(t *testing.T) {
	c := New(testOptions())
	c.SetRateLimit(0.001)
	// First token is available immediately.
	require.NoError(t, c.admit(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.admit(ctx))
}
