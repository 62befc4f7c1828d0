package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded by the read pump.
const (
	DropMalformed   = "malformed"
	DropUnknown     = "unknown"
	DropNotJoined   = "not_joined"
	DropRejected    = "rejected"
	DropRateLimited = "rate_limited"
)

// Metrics holds the hub's Prometheus collectors. All methods are safe on a
// nil receiver.
type Metrics struct {
	activeSessions prometheus.Gauge
	shapes         prometheus.Gauge
	messages       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	reaped         prometheus.Counter
}

// NewMetrics registers the hub collectors with reg. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whiteboard_active_sessions",
			Help: "Number of joined sessions.",
		}),
		shapes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whiteboard_shapes",
			Help: "Number of shapes on the board.",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whiteboard_messages_total",
			Help: "Outbound messages fanned out by the hub, by kind.",
		}, []string{"kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whiteboard_dropped_messages_total",
			Help: "Inbound messages dropped, by reason.",
		}, []string{"reason"}),
		reaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "whiteboard_reaped_connections_total",
			Help: "Connections removed after a failed delivery.",
		}),
	}
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) SetShapes(n int) {
	if m == nil {
		return
	}
	m.shapes.Set(float64(n))
}

func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordReap() {
	if m == nil {
		return
	}
	m.reaped.Inc()
}
