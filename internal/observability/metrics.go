package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one bot instance.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	openTickets     prometheus.Gauge
	pendingSelects  prometheus.Gauge
	closures        *prometheus.CounterVec
	deletions       *prometheus.CounterVec
	selections      *prometheus.CounterVec
	forwards        prometheus.Counter
	staffReplies    *prometheus.CounterVec
	errors          *prometheus.CounterVec
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		openTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_tickets_open",
			Help: "Tickets currently held in the registry (open or closing).",
		}),
		pendingSelects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_pending_selections",
			Help: "Category selections waiting for a follow-up message.",
		}),
		closures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_ticket_closures_total",
			Help: "Tickets that entered the closing state, by reason.",
		}, []string{"reason"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_ticket_deletions_total",
			Help: "Ticket channel teardowns, by outcome.",
		}, []string{"outcome"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_selections_total",
			Help: "Category selections made by users.",
		}, []string{"category"}),
		forwards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_forwards_total",
			Help: "Private messages forwarded to the staff channel.",
		}),
		staffReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_staff_replies_total",
			Help: "Staff replies delivered to users, by outcome.",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_errors_total",
			Help: "Errors reported back to users or HTTP clients, by source and code.",
		}, []string{"source", "code"}),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_http_requests_total",
			Help: "HTTP requests served by the keep-alive server.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "support_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.openTickets,
		m.pendingSelects,
		m.closures,
		m.deletions,
		m.selections,
		m.forwards,
		m.staffReplies,
		m.errors,
		m.requestCount,
		m.requestDuration,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetOpenTickets records the registry size.
func (m *Metrics) SetOpenTickets(n int) {
	if m == nil {
		return
	}
	m.openTickets.Set(float64(n))
}

// SetPendingSelections records the pending-selection table size.
func (m *Metrics) SetPendingSelections(n int) {
	if m == nil {
		return
	}
	m.pendingSelects.Set(float64(n))
}

func (m *Metrics) RecordClosure(reason string) {
	if m == nil {
		return
	}
	m.closures.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordDeletion(ok bool) {
	if m == nil {
		return
	}
	outcome := "deleted"
	if !ok {
		outcome = "failed"
	}
	m.deletions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSelection(category string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordForward() {
	if m == nil {
		return
	}
	m.forwards.Inc()
}

func (m *Metrics) RecordStaffReply(outcome string) {
	if m == nil {
		return
	}
	m.staffReplies.WithLabelValues(outcome).Inc()
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError counts an error surfaced by source, an HTTP path or an interaction kind.
func (m *Metrics) RecordError(source, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(source, code).Inc()
}
