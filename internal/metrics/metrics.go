package metrics

import (
	"net/http"
	"strconv"
	"time"

	"coldcall-platform/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the call session tracker.
// A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	OutcomesSelectedTotal     *prometheus.CounterVec
	PersistenceFailuresTotal  *prometheus.CounterVec
	FollowUpsSavedTotal       *prometheus.CounterVec
	NotesAutosavesTotal       prometheus.Counter
	SessionsActiveGauge       prometheus.Gauge
	HTTPRequestsTotal         *prometheus.CounterVec
	HTTPRequestDurationSecond *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		OutcomesSelectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coldcall_outcomes_selected_total",
				Help: "Outcomes selected by callers, including re-selections",
			},
			[]string{"outcome"},
		),
		PersistenceFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coldcall_persistence_failures_total",
				Help: "Writes to the persistence gateway that failed after retries",
			},
			[]string{"op"},
		),
		FollowUpsSavedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coldcall_followups_saved_total",
				Help: "Follow-ups and callbacks saved",
			},
			[]string{"kind"},
		),
		NotesAutosavesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coldcall_notes_autosaves_total",
			Help: "Successful notes saves",
		}),
		SessionsActiveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coldcall_sessions_active",
			Help: "Call sessions live in this process",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coldcall_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDurationSecond: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coldcall_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.OutcomesSelectedTotal,
		m.PersistenceFailuresTotal,
		m.FollowUpsSavedTotal,
		m.NotesAutosavesTotal,
		m.SessionsActiveGauge,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSecond,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the private registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OutcomeSelected(o calls.Outcome) {
	if m == nil {
		return
	}
	m.OutcomesSelectedTotal.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) PersistenceFailed(op string) {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) FollowUpSaved(kind calls.FollowUpKind) {
	if m == nil {
		return
	}
	m.FollowUpsSavedTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) NotesAutosaved() {
	if m == nil {
		return
	}
	m.NotesAutosavesTotal.Inc()
}

func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActiveGauge.Set(float64(n))
}

// GinMiddleware records request counts and latency keyed by the matched
// route template, so ids in the path do not explode cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDurationSecond.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
