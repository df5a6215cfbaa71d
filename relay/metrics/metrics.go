// Package metrics exposes Prometheus metrics for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wricardo/session-relay/relay/session"
)

// Metrics holds all Prometheus metrics for the relay
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	ConsumersActive prometheus.Gauge

	// Fan-out metrics
	PayloadsTotal     prometheus.Counter
	DeliveriesTotal   prometheus.Counter
	SendFailuresTotal prometheus.Counter

	// Connection metrics
	RejectionsTotal *prometheus.CounterVec
}

var _ session.Observer = (*Metrics)(nil)

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_sessions_active",
				Help: "Number of sessions with a connected producer",
			},
		),
		SessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		ConsumersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_consumers_active",
				Help: "Number of consumers attached to a live session",
			},
		),
		PayloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_payloads_total",
				Help: "Total number of payloads received from producers",
			},
		),
		DeliveriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_deliveries_total",
				Help: "Total number of payloads queued to consumers",
			},
		),
		SendFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_send_failures_total",
				Help: "Total number of payloads that could not be queued to a consumer",
			},
		),
		RejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rejections_total",
				Help: "Total number of connections rejected, by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsActive,
		m.SessionsCreated,
		m.ConsumersActive,
		m.PayloadsTotal,
		m.DeliveriesTotal,
		m.SendFailuresTotal,
		m.RejectionsTotal,
	)

	return m
}

// Handler returns an HTTP handler serving this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Rejected counts a connection refused for reason
func (m *Metrics) Rejected(reason string) {
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionCreated(string) {
	m.SessionsActive.Inc()
	m.SessionsCreated.Inc()
}

func (m *Metrics) SessionDestroyed(_ string, consumers int) {
	m.SessionsActive.Dec()
	m.ConsumersActive.Sub(float64(consumers))
}

func (m *Metrics) ConsumerJoined(string) {
	m.ConsumersActive.Inc()
}

func (m *Metrics) ConsumerLeft(string) {
	m.ConsumersActive.Dec()
}

func (m *Metrics) Broadcasted(_ string, d session.Delivery) {
	m.PayloadsTotal.Inc()
	m.DeliveriesTotal.Add(float64(d.Recipients - d.Failed))
	m.SendFailuresTotal.Add(float64(d.Failed))
}
