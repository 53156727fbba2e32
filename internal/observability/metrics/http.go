package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	batchUnitsTotal   *prometheus.CounterVec
	batchUnitDuration *prometheus.HistogramVec
	batchSettledTotal *prometheus.CounterVec
	batchInFlight     prometheus.Gauge
	batchSize         *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adtrack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adtrack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adtrack",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchUnitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adtrack",
			Subsystem: "batch",
			Name:      "units_total",
			Help:      "Total settled request units by outcome.",
		},
		[]string{"service", "model", "outcome"},
	)
	batchUnitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adtrack",
			Subsystem: "batch",
			Name:      "unit_duration_seconds",
			Help:      "Inference round trip per request unit in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"service", "model"},
	)
	batchSettledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adtrack",
			Subsystem: "batch",
			Name:      "settled_total",
			Help:      "Total batches that finished, by whether they were still current.",
		},
		[]string{"service", "status"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adtrack",
			Subsystem: "batch",
			Name:      "in_flight",
			Help:      "Number of batches still issuing request units.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adtrack",
			Subsystem: "batch",
			Name:      "units",
			Help:      "Distribution of request units per batch.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "adtrack",
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		batchUnitsTotal,
		batchUnitDuration,
		batchSettledTotal,
		batchInFlight,
		batchSize,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		service:           service,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		batchUnitsTotal:   batchUnitsTotal,
		batchUnitDuration: batchUnitDuration,
		batchSettledTotal: batchSettledTotal,
		batchInFlight:     batchInFlight,
		batchSize:         batchSize,
		breakerState:      breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/batch/results/"):
		return "/v1/batch/results/{index}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) BatchStarted(units int) {
	m.batchInFlight.Inc()
	m.batchSize.WithLabelValues(m.service).Observe(float64(units))
}

func (m *HTTPServerMetrics) UnitSettled(model string, failed bool, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	outcome := "success"
	if failed {
		outcome = "failed"
	}
	m.batchUnitsTotal.WithLabelValues(m.service, model, outcome).Inc()
	m.batchUnitDuration.WithLabelValues(m.service, model).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) BatchSettled(_ domain.BatchSummary, _ time.Duration, superseded bool) {
	m.batchInFlight.Dec()
	status := "current"
	if superseded {
		status = "superseded"
	}
	m.batchSettledTotal.WithLabelValues(m.service, status).Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *HTTPServerMetrics) ObserveBreakerState(operation string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
