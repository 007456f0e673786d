package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Op metrics
	OpsDispatched  *prometheus.CounterVec
	OpResponses    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	ResponseBytes  *prometheus.HistogramVec
	BrokenPromises prometheus.Counter

	// Executor metrics
	PendingRef   prometheus.Gauge
	PendingUnref prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	Dispatched     int64 `json:"dispatched"`
	Errors         int64 `json:"errors"`
	BrokenPromises int64 `json:"brokenPromises"`
	PendingRef     int64 `json:"pendingRef"`
	PendingUnref   int64 `json:"pendingUnref"`
	HTTPRequests   int64 `json:"httpRequests"`
}

// NewMetrics creates a metrics collector registered on reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		OpsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opbridge_ops_dispatched_total",
				Help: "Total number of op dispatches",
			},
			[]string{"op", "mode"},
		),
		OpResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opbridge_op_responses_total",
				Help: "Total number of op responses by outcome",
			},
			[]string{"op", "outcome"},
		),
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opbridge_op_duration_seconds",
				Help:    "Time from dispatch to response in seconds",
				Buckets: []float64{.0001, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"op"},
		),
		ResponseBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opbridge_op_response_bytes",
				Help:    "Encoded response envelope size in bytes",
				Buckets: []float64{16, 64, 256, 1024, 16384, 262144, 4194304},
			},
			[]string{"op"},
		),
		BrokenPromises: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "opbridge_broken_promises_total",
				Help: "Total number of deferred results that panicked",
			},
		),

		PendingRef: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "opbridge_pending_ref",
				Help: "Pending deferred ops that keep the executor alive",
			},
		),
		PendingUnref: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "opbridge_pending_unref",
				Help: "Pending deferred ops that do not keep the executor alive",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "opbridge_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opbridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HTTPRequests++
	m.mu.Unlock()
}

// RecordDispatch records one op dispatch in the given mode.
func (m *Metrics) RecordDispatch(op, mode string) {
	m.OpsDispatched.WithLabelValues(op, mode).Inc()

	m.mu.Lock()
	m.snapshot.Dispatched++
	m.mu.Unlock()
}

// RecordResponse records a response envelope. outcome is "ok" or "err".
func (m *Metrics) RecordResponse(op, outcome string, size int) {
	m.OpResponses.WithLabelValues(op, outcome).Inc()
	m.ResponseBytes.WithLabelValues(op).Observe(float64(size))

	if outcome == "err" {
		m.mu.Lock()
		m.snapshot.Errors++
		m.mu.Unlock()
	}
}

// SetPending implements executor.Recorder.
func (m *Metrics) SetPending(ref, unref int) {
	m.PendingRef.Set(float64(ref))
	m.PendingUnref.Set(float64(unref))

	m.mu.Lock()
	m.snapshot.PendingRef = int64(ref)
	m.snapshot.PendingUnref = int64(unref)
	m.mu.Unlock()
}

// RecordBrokenPromise implements executor.Recorder.
func (m *Metrics) RecordBrokenPromise() {
	m.BrokenPromises.Inc()

	m.mu.Lock()
	m.snapshot.BrokenPromises++
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket frame ("in" or "out").
func (m *Metrics) RecordWSMessage(direction string) {
	m.WSMessages.WithLabelValues(direction).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns a copy of the current values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
