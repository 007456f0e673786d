package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/resilience"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("external service unavailable: circuit breaker open")

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
	// RateLimit in requests per second; zero or less disables limiting.
	RateLimit float64
	UserAgent string
	Logger    *zap.Logger
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		MinWait:    1 * time.Second,
		MaxWait:    30 * time.Second,
		UserAgent:  "opbridge/1.0",
	}
}

// Client wraps resty with rate limiting and a circuit breaker.
type Client struct {
	resty   *resty.Client
	retry   *retryablehttp.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	mu      sync.RWMutex
}

// Request is an outbound request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a fully read response. Body is UTF-8.
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Size       int               `json:"size"`
	TimeMillis int64             `json:"timeMs"`
}

// New creates a client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = opts.MinWait
	retryClient.RetryWaitMax = opts.MaxWait
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.MinWait).
		SetRetryMaxWaitTime(opts.MaxWait).
		SetTransport(retryClient.HTTPClient.Transport)
	if opts.UserAgent != "" {
		restyClient.SetHeader("User-Agent", opts.UserAgent)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	breaker := resilience.New("http-external", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Client{
		resty:   restyClient,
		retry:   retryClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// SetRateLimit replaces the limiter (requests per second).
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
}

func (c *Client) admit(ctx context.Context) error {
	if c.breaker.State() == resilience.StateOpen {
		return ErrUnavailable
	}

	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}
	return nil
}

// Do executes req under rate limiting and circuit breaker protection.
// Server errors (5xx) count as breaker failures but are still returned as
// responses.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var resp *resty.Response
	_, err := resilience.Run(c.breaker, func() (*resty.Response, error) {
		r := c.resty.R().SetContext(ctx).SetHeaders(req.Headers)
		if len(req.Body) > 0 {
			r.SetBody(req.Body)
		}

		res, err := r.Execute(method, req.URL)
		if err != nil {
			return nil, err
		}
		resp = res
		if res.StatusCode() >= http.StatusInternalServerError {
			return res, fmt.Errorf("upstream status %d", res.StatusCode())
		}
		return res, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	if resp == nil {
		return nil, err
	}

	return toResponse(resp)
}

// Download streams url into w using the retrying client and returns the
// number of bytes written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	if err := c.admit(ctx); err != nil {
		return 0, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	n, err := resilience.Run(c.breaker, func() (int64, error) {
		resp, err := c.retry.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return 0, fmt.Errorf("download failed: status %d", resp.StatusCode)
		}
		return io.Copy(w, resp.Body)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return 0, ErrUnavailable
	}
	return n, err
}

func toResponse(resp *resty.Response) (*Response, error) {
	body, err := decodeBody(resp.Body(), resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	return &Response{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		Headers:    headers,
		Body:       body,
		Size:       len(resp.Body()),
		TimeMillis: resp.Time().Milliseconds(),
	}, nil
}

// decodeBody transcodes raw to UTF-8 using the declared or sniffed charset.
func decodeBody(raw []byte, contentType string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return string(out), nil
}
