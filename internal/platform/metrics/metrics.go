package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Submissions       *prometheus.CounterVec
	GateEvaluations   *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	NotifyDropped     prometheus.Counter
	NotifyInFlight    prometheus.Gauge
	Logins            *prometheus.CounterVec
	EndpointLatency   *prometheus.HistogramVec
	StoreOperationDur *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enlist_submissions_total",
			Help: "Application submissions by outcome",
		}, []string{"outcome"}),
		GateEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enlist_gate_evaluations_total",
			Help: "Cooldown gate decisions",
		}, []string{"decision"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enlist_notifications_total",
			Help: "Notification deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
		NotifyDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "enlist_notifications_dropped_total",
			Help: "Notifications dropped because the dispatcher was saturated",
		}),
		NotifyInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "enlist_notifications_in_flight",
			Help: "Notifications currently being delivered",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enlist_logins_total",
			Help: "Login handshakes by outcome",
		}, []string{"outcome"}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enlist_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		StoreOperationDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enlist_cooldown_store_duration_seconds",
			Help:    "Cooldown store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"}),
	}
}

// IncrementSubmission counts a submission outcome (accepted, cooldown, rejected, error).
func (m *Metrics) IncrementSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementGateDecision(eligible bool) {
	if m == nil {
		return
	}
	decision := "blocked"
	if eligible {
		decision = "eligible"
	}
	m.GateEvaluations.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementNotification(sink, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(sink, outcome).Inc()
}

func (m *Metrics) IncrementNotifyDropped() {
	if m == nil {
		return
	}
	m.NotifyDropped.Inc()
}

func (m *Metrics) AddNotifyInFlight(delta float64) {
	if m == nil {
		return
	}
	m.NotifyInFlight.Add(delta)
}

func (m *Metrics) IncrementLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEndpointLatency(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveStoreOperation(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperationDur.WithLabelValues(op).Observe(d.Seconds())
}
