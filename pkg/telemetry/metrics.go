package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled turns collection on; when false every method is a no-op.
	Enabled bool

	// Namespace prefixes every metric name. Defaults to "flotilla".
	Namespace string
}

// Metrics collects run-engine Prometheus metrics.
type Metrics struct {
	config MetricsConfig

	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	playsTotal    *prometheus.CounterVec
	playDuration  prometheus.Histogram
	dialsTotal    *prometheus.CounterVec
	leasesActive  prometheus.Gauge
	notifications prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "flotilla"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total task executions by module and status",
			},
			[]string{"module", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"module"},
		),
		playsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_total",
				Help:      "Total plays executed by outcome",
			},
			[]string{"status"},
		),
		playDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "play_duration_seconds",
				Help:      "Duration of whole plays",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		dialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_dials_total",
				Help:      "Connection dial attempts by outcome",
			},
			[]string{"status"},
		),
		leasesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_leases_active",
				Help:      "Currently held connection leases",
			},
		),
		notifications: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_notifications_total",
				Help:      "Handler notifications recorded",
			},
		),
	}

	registry.MustRegister(
		m.tasksTotal, m.taskDuration, m.playsTotal, m.playDuration,
		m.dialsTotal, m.leasesActive, m.notifications,
	)
	return m
}

// RecordTask tallies one task execution.
func (m *Metrics) RecordTask(module, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.tasksTotal.WithLabelValues(module, status).Inc()
	m.taskDuration.WithLabelValues(module).Observe(duration.Seconds())
}

// RecordPlay tallies one whole play.
func (m *Metrics) RecordPlay(status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.playsTotal.WithLabelValues(status).Inc()
	m.playDuration.Observe(duration.Seconds())
}

// RecordDial tallies one dial attempt.
func (m *Metrics) RecordDial(status string) {
	if m.registry == nil {
		return
	}
	m.dialsTotal.WithLabelValues(status).Inc()
}

// LeaseAcquired and LeaseReleased track held leases.
func (m *Metrics) LeaseAcquired() {
	if m.registry == nil {
		return
	}
	m.leasesActive.Inc()
}

func (m *Metrics) LeaseReleased() {
	if m.registry == nil {
		return
	}
	m.leasesActive.Dec()
}

// RecordNotification tallies one handler notification.
func (m *Metrics) RecordNotification() {
	if m.registry == nil {
		return
	}
	m.notifications.Inc()
}

// Handler returns the scrape endpoint, or nil when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
