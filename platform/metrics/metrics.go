// Package metrics exposes Prometheus collectors for the cascade engine and
// the HTTP surface. Collectors live on a caller-owned registry so tests and
// the two binaries never share global state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	TickDuration      prometheus.Histogram
	TickFailures      prometheus.Counter
	TicksSkipped      *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	AssignmentsOpened *prometheus.CounterVec
	RetentionDeleted  prometheus.Counter
	ReportsDelivered  *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascade_tick_duration_seconds",
			Help:    "Duration of one scheduler tick",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		TickFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascade_tick_failures_total",
			Help: "Ticks aborted by a ledger failure",
		}),
		TicksSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_ticks_skipped_total",
				Help: "Ticks skipped because another tick held the slot",
			},
			[]string{"reason"}, // in_flight, locked
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_transitions_total",
				Help: "Assignment status transitions applied",
			},
			[]string{"from", "to"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_notifications_total",
				Help: "Notification attempts per level and outcome",
			},
			[]string{"level", "outcome"}, // delivered, failed, skipped
		),
		AssignmentsOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_assignments_opened_total",
				Help: "Assignments opened by intake or redistribution",
			},
			[]string{"source"}, // intake, continuity, redistribution, manual
		),
		RetentionDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascade_retention_deleted_total",
			Help: "Terminal assignments purged by the retention sweeper",
		}),
		ReportsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_reports_delivered_total",
				Help: "Daily report deliveries per outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency using the route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
	if failed {
		m.TickFailures.Inc()
	}
}

// RecordTickSkipped counts a tick that did not run.
func (m *Metrics) RecordTickSkipped(reason string) {
	if m == nil {
		return
	}
	m.TicksSkipped.WithLabelValues(reason).Inc()
}

// RecordTransition counts one applied status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordNotification counts one notification outcome.
func (m *Metrics) RecordNotification(level, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(level, outcome).Inc()
}

// RecordAssignmentOpened counts a new open assignment.
func (m *Metrics) RecordAssignmentOpened(source string) {
	if m == nil {
		return
	}
	m.AssignmentsOpened.WithLabelValues(source).Inc()
}

// RecordRetentionDeleted adds n purged rows.
func (m *Metrics) RecordRetentionDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionDeleted.Add(float64(n))
}

// RecordReportDelivery counts one manager report delivery.
func (m *Metrics) RecordReportDelivery(success bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "delivered"
	}
	m.ReportsDelivered.WithLabelValues(outcome).Inc()
}
