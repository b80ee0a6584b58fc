package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/ledger"
)

// Metrics holds the server's Prometheus collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	rpcRequests  *prometheus.CounterVec
	transactions *prometheus.CounterVec
	rateLimited  prometheus.Counter
	sseClients   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paywall",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"method", "route"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total number of unary RPCs handled.",
		}, []string{"method", "code"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Submitted transactions by instruction kind and result code.",
		}, []string{"kind", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paywall",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paywall",
			Subsystem: "sse",
			Name:      "clients",
			Help:      "Connected event stream clients.",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.rpcRequests,
		m.transactions,
		m.rateLimited,
		m.sseClients,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request counts and latency by route pattern.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		// The mux fills in Pattern on the shared request.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// observeTransaction counts a submitted transaction by its result code.
func (m *Metrics) observeTransaction(kind instruction.Kind, err error) {
	result := "ok"
	if err != nil {
		result = string(ledger.CodeOf(err))
		if result == "" {
			result = "error"
		}
	}
	if !kind.IsValid() {
		kind = "unknown"
	}
	m.transactions.WithLabelValues(string(kind), result).Inc()
}

// trackSSEClients wires the hub's client count into the gauge.
func (m *Metrics) trackSSEClients(h *EventHub) {
	h.onClients = func(n int) { m.sseClients.Set(float64(n)) }
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE responses stream through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
