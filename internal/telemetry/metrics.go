// Package telemetry provides the engine's Prometheus metrics,
// grounded on the teacher's observability.Metrics singleton pattern.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every nyxsentry Prometheus metric.
type Metrics struct {
	TickDuration     prometheus.Histogram
	TickErrors       *prometheus.CounterVec
	TrackedProcesses prometheus.Gauge

	AlertsGenerated *prometheus.CounterVec
	AlertsActive    prometheus.Gauge

	EventStoreSize  prometheus.Gauge
	EventsProcessed *prometheus.CounterVec

	ResponseActions      *prometheus.CounterVec
	ResponseActionsDenied *prometheus.CounterVec

	SensorStatus   *prometheus.GaugeVec
	SignatureProbes prometheus.Counter
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the process-wide metrics instance, initializing
// it on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = initializeMetrics()
	})
	return globalMetrics
}

func initializeMetrics() *Metrics {
	m := &Metrics{}

	m.TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nyxsentry",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single scheduler tick",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	m.TickErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nyxsentry",
			Subsystem: "scheduler",
			Name:      "tick_errors_total",
			Help:      "Total sensor errors observed during tick execution",
		},
		[]string{"sensor"},
	)

	m.TrackedProcesses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nyxsentry",
			Subsystem: "scheduler",
			Name:      "tracked_processes",
			Help:      "Number of processes in the current snapshot",
		},
	)

	m.AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nyxsentry",
			Subsystem: "alerts",
			Name:      "generated_total",
			Help:      "Total alerts generated, by type and severity",
		},
		[]string{"alert_type", "severity"},
	)

	m.AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nyxsentry",
			Subsystem: "alerts",
			Name:      "active",
			Help:      "Current number of active (non-dismissed) alerts",
		},
	)

	m.EventStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nyxsentry",
			Subsystem: "events",
			Name:      "store_size",
			Help:      "Current number of rows retained in the event store",
		},
	)

	m.EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nyxsentry",
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Total events inserted into the event store, by sensor and type",
		},
		[]string{"sensor", "event_type"},
	)

	m.ResponseActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nyxsentry",
			Subsystem: "response",
			Name:      "actions_total",
			Help:      "Total response actions dispatched, by action type and outcome",
		},
		[]string{"action_type", "automatic", "success"},
	)

	m.ResponseActionsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nyxsentry",
			Subsystem: "response",
			Name:      "actions_denied_total",
			Help:      "Total response actions denied by a precondition, by action type",
		},
		[]string{"action_type"},
	)

	m.SensorStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nyxsentry",
			Subsystem: "sensors",
			Name:      "status",
			Help:      "Per-sensor health status (1 = ok, 0 = degraded)",
		},
		[]string{"sensor"},
	)

	m.SignatureProbes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nyxsentry",
			Subsystem: "sensors",
			Name:      "signature_probes_total",
			Help:      "Total fresh authenticode signature probes dispatched",
		},
	)

	return m
}

// Handler returns the Prometheus HTTP handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick records a completed tick's duration.
func RecordTick(seconds float64) {
	GetMetrics().TickDuration.Observe(seconds)
}

// RecordTickError records a sensor error observed during a tick.
func RecordTickError(sensor string) {
	GetMetrics().TickErrors.WithLabelValues(sensor).Inc()
}

// RecordAlertGenerated records one accepted alert.
func RecordAlertGenerated(alertType, severity string) {
	GetMetrics().AlertsGenerated.WithLabelValues(alertType, severity).Inc()
}

// RecordResponseAction records a dispatched response action and its
// outcome; denied attempts go to RecordResponseActionDenied.
func RecordResponseAction(actionType string, automatic, success bool) {
	GetMetrics().ResponseActions.WithLabelValues(actionType, boolLabel(automatic), boolLabel(success)).Inc()
}

// RecordResponseActionDenied records a response action rejected by a
// precondition (safe mode, cooldown, policy gate).
func RecordResponseActionDenied(actionType string) {
	GetMetrics().ResponseActionsDenied.WithLabelValues(actionType).Inc()
}

// RecordEventProcessed records one event inserted into the event store.
func RecordEventProcessed(sensor, eventType string) {
	GetMetrics().EventsProcessed.WithLabelValues(sensor, eventType).Inc()
}

// RecordAlertsActive sets the current active-alert count.
func RecordAlertsActive(count int) {
	GetMetrics().AlertsActive.Set(float64(count))
}

// RecordEventStoreSize sets the current event-store row count.
func RecordEventStoreSize(count uint64) {
	GetMetrics().EventStoreSize.Set(float64(count))
}

// RecordSensorStatus updates a sensor's health gauge.
func RecordSensorStatus(sensor string, ok bool) {
	value := 0.0
	if ok {
		value = 1.0
	}
	GetMetrics().SensorStatus.WithLabelValues(sensor).Set(value)
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
