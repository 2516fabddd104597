package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the gateway's Prometheus series.
//
// The gateway tracks:
//   - Live transport connections and present identities
//   - Presence updates broadcast, by resulting status
//   - Inbound client events by name and outcome
//   - Welcome messages created by the bot
//   - Duration of each presence sweep
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// ActiveConnections is the number of registered connections.
	ActiveConnections prometheus.Gauge

	// PresentIdentities is the number of identities holding at least one connection.
	PresentIdentities prometheus.Gauge

	// PresenceUpdates counts presence.update broadcasts.
	// Labels: status (online|idle|offline)
	PresenceUpdates *prometheus.CounterVec

	// InboundEvents counts client events.
	// Labels: event, outcome (ok|rejected|error)
	InboundEvents *prometheus.CounterVec

	// WelcomeMessages counts welcome messages actually inserted.
	WelcomeMessages prometheus.Counter

	// SweepDuration measures one presence sweep in seconds.
	// Buckets: 1ms .. 1s
	SweepDuration prometheus.Histogram
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "chatterbox_active_connections",
			Help: "Number of live WebSocket connections",
		}),
		PresentIdentities: f.NewGauge(prometheus.GaugeOpts{
			Name: "chatterbox_present_identities",
			Help: "Number of identities with at least one live connection",
		}),
		PresenceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatterbox_presence_updates_total",
			Help: "Total presence.update broadcasts by status",
		}, []string{"status"}),
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatterbox_inbound_events_total",
			Help: "Total inbound client events by event name and outcome",
		}, []string{"event", "outcome"}),
		WelcomeMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "chatterbox_welcome_messages_total",
			Help: "Total welcome messages created",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatterbox_presence_sweep_duration_seconds",
			Help:    "Duration of presence sweeps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) SetConnections(conns, identities int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(conns))
	m.PresentIdentities.Set(float64(identities))
}

func (m *Metrics) PresenceUpdate(status string) {
	if m == nil {
		return
	}
	m.PresenceUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) InboundEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) WelcomeCreated() {
	if m == nil {
		return
	}
	m.WelcomeMessages.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}
