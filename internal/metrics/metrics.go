package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livechat"

// Transport holds the collectors updated by the connection manager.
type Transport struct {
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	FramesSent     prometheus.Counter
	Reconnects     prometheus.Counter
	OutboxPending  prometheus.Gauge
	ConnectionOpen prometheus.Gauge
}

// NewTransport creates the transport collectors and registers them on reg.
// A nil reg leaves them unregistered, which is what tests and the TUI use.
func NewTransport(reg prometheus.Registerer) *Transport {
	m := &Transport{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames read from the chat socket.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the chat socket, keepalives included.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after an unexpected close.",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Frames buffered while the socket is not open.",
		}),
		ConnectionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_open",
			Help:      "1 while the chat socket is open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.FramesDropped,
			m.FramesSent,
			m.Reconnects,
			m.OutboxPending,
			m.ConnectionOpen,
		)
	}
	return m
}
