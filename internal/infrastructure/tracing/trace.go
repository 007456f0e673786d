package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/shared/id"
)

const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"

	defaultBuffer = 1024
	defaultKeep   = 256
)

type TraceID string
type SpanID string

// Span is one timed operation.
type Span struct {
	TraceID    TraceID           `json:"traceId"`
	SpanID     SpanID            `json:"spanId"`
	ParentID   SpanID            `json:"parentId,omitempty"`
	Name       string            `json:"name"`
	Service    string            `json:"service"`
	StartTime  time.Time         `json:"startTime"`
	Duration   time.Duration     `json:"duration"`
	Tags       map[string]string `json:"tags,omitempty"`
	Error      string            `json:"error,omitempty"`
	StatusCode int               `json:"statusCode,omitempty"`
}

// SetTag records a key/value on the span.
func (s *Span) SetTag(key, value string) {
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

// SetError marks the span failed.
func (s *Span) SetError(err error) {
	if err != nil {
		s.Error = err.Error()
	}
}

func (s *Span) SetStatus(code int) { s.StatusCode = code }

// Tracer collects finished spans on a background goroutine.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan Span
	done    chan struct{}

	mu     sync.Mutex
	recent []Span
	next   int
	keep   int
	closed bool
}

// New starts a tracer.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan Span, defaultBuffer),
		done:    make(chan struct{}),
		keep:    defaultKeep,
	}
	go t.collect()
	return t
}

// StartSpan starts a span, child of the span carried by ctx if any.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(id.Default().Generate().String())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.Default().Generate().String()),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
	}
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Finish stamps the duration and hands the span to the collector. Spans
// are dropped when the buffer is full or the tracer is closed.
func (t *Tracer) Finish(span *Span) {
	if t == nil || span == nil {
		return
	}
	span.Duration = time.Since(span.StartTime)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.spans <- *span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("name", span.Name),
		)
	}
}

// Recent returns the retained spans, oldest first.
func (t *Tracer) Recent() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Span, 0, len(t.recent))
	if len(t.recent) < t.keep {
		return append(out, t.recent...)
	}
	out = append(out, t.recent[t.next:]...)
	return append(out, t.recent[:t.next]...)
}

// Close stops the collector after draining buffered spans.
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.retain(span)

		fields := []zap.Field{
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
			zap.String("name", span.Name),
			zap.Duration("duration", span.Duration),
		}
		if span.ParentID != "" {
			fields = append(fields, zap.String("parent_id", string(span.ParentID)))
		}
		if span.Error != "" {
			t.logger.Debug("span failed", append(fields, zap.String("error", span.Error))...)
		} else {
			t.logger.Debug("span completed", fields...)
		}
	}
}

func (t *Tracer) retain(span Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.recent) < t.keep {
		t.recent = append(t.recent, span)
		return
	}
	t.recent[t.next] = span
	t.next = (t.next + 1) % t.keep
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithTrace seeds ctx with incoming trace context.
func WithTrace(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

func GetTraceID(ctx context.Context) TraceID {
	v, _ := ctx.Value(traceIDKey).(TraceID)
	return v
}

func GetSpanID(ctx context.Context) SpanID {
	v, _ := ctx.Value(spanIDKey).(SpanID)
	return v
}
