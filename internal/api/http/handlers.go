package http

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/host"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

// MaxControlSize bounds request bodies.
const MaxControlSize = 64 << 20

// ControlHeader carries the control object when the body is the zero-copy
// buffer (Content-Type application/octet-stream).
const ControlHeader = "X-Op-Control"

// Handlers contains all HTTP handlers.
type Handlers struct {
	ch      *host.Channel
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *zap.Logger
	timeout time.Duration
	started time.Time
}

// NewHandlers creates handlers over ch. metrics and tracer may be nil.
// timeout bounds each op call; zero leaves only the client's own deadline.
func NewHandlers(ch *host.Channel, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *zap.Logger, timeout time.Duration) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		ch:      ch,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger,
		timeout: timeout,
		started: time.Now(),
	}
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "opbridge",
		"version": ops.Version,
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	ref, unref := h.ch.Pending()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"ops":    h.ch.Registry().Len(),
		"pending": gin.H{
			"ref":   ref,
			"unref": unref,
		},
		"resources": h.ch.State().Resources.Len(),
	})
}

// ListOps lists registered ops in id order.
func (h *Handlers) ListOps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ops": h.ch.Registry().Definitions()})
}

// MetricsJSON returns the counters snapshot.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// Traces returns recently finished spans.
func (h *Handlers) Traces(c *gin.Context) {
	if h.tracer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tracing disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"spans": h.tracer.Recent()})
}

// CallOp dispatches one op and writes its response envelope.
func (h *Handlers) CallOp(c *gin.Context) {
	name := c.Param("name")
	control, zeroCopy, err := readCall(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, "op "+name)
		defer h.tracer.Finish(span)
	}

	reply, err := h.ch.CallName(ctx, name, control, zeroCopy)
	if span != nil {
		span.SetTag("op.mode", reply.Mode.String())
		span.SetError(err)
	}
	if err != nil {
		status := statusFor(err)
		h.logger.Warn("op call failed",
			zap.String("op", name),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Int("status", status),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header(middleware.OpModeHeader, reply.Mode.String())
	c.Data(http.StatusOK, "application/json", reply.Buf)
}

// readCall extracts the control object and the zero-copy buffer.
func readCall(c *gin.Context) (control, zeroCopy []byte, err error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxControlSize))
	if err != nil {
		return nil, nil, err
	}

	if c.ContentType() == "application/octet-stream" {
		control = []byte(c.GetHeader(ControlHeader))
		zeroCopy = body
	} else {
		control = body
		if enc := c.GetHeader(middleware.ZeroCopyHeader); enc != "" {
			if zeroCopy, err = base64.StdEncoding.DecodeString(enc); err != nil {
				return nil, nil, errors.New("invalid " + middleware.ZeroCopyHeader + " header: not base64")
			}
		}
	}

	return control, zeroCopy, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ops.ErrUnknownOp):
		return http.StatusNotFound
	case errors.Is(err, host.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
