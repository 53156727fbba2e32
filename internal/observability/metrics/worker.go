package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	eventDuration  *prometheus.HistogramVec
	eventsInFlight prometheus.Gauge
	queueLag       *prometheus.HistogramVec
	resultsTotal   *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adtrack",
			Subsystem: "worker",
			Name:      "batch_events_total",
			Help:      "Total consumed settled-batch notifications by status.",
		},
		[]string{"service", "status"},
	)
	eventDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adtrack",
			Subsystem: "worker",
			Name:      "batch_event_duration_seconds",
			Help:      "Notification handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adtrack",
			Subsystem: "worker",
			Name:      "batch_events_in_flight",
			Help:      "Number of notifications being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adtrack",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between a batch settling and the worker receiving it.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	resultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adtrack",
			Subsystem: "worker",
			Name:      "batch_results_total",
			Help:      "Results reported by settled batches, by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(eventsTotal, eventDuration, eventsInFlight, queueLag, resultsTotal)

	return &WorkerMetrics{
		registry:       registry,
		eventsTotal:    eventsTotal,
		eventDuration:  eventDuration,
		eventsInFlight: eventsInFlight,
		queueLag:       queueLag,
		resultsTotal:   resultsTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.eventsInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service string, duration time.Duration, err error) {
	m.eventsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.eventsTotal.WithLabelValues(service, status).Inc()
	m.eventDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordSummary(service string, summary domain.BatchSummary) {
	m.resultsTotal.WithLabelValues(service, "positive").Add(float64(summary.Positive))
	m.resultsTotal.WithLabelValues(service, "negative").Add(float64(summary.Negative))
	m.resultsTotal.WithLabelValues(service, "failed").Add(float64(summary.Failed))
}
