package signaling

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Drop reasons reported on meshroom_relay_dropped_messages_total.
const (
	DropReasonRoutingMiss = "routing_miss"
	DropReasonQueueFull   = "queue_full"
	DropReasonClosed      = "closed"
	DropReasonProtocol    = "protocol_error"
)

// receivedTypeUnknown labels messages whose type has no handler, so client
// input cannot grow the label set.
const receivedTypeUnknown = "unknown"

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Received    *prometheus.CounterVec
	Delivered   *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
}

// NewMetrics creates the relay collectors and registers them on reg. The
// room and member gauges are computed from registry on scrape.
func NewMetrics(reg prometheus.Registerer, registry *room.Registry) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshroom",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open signaling websocket connections.",
		}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshroom",
			Subsystem: "relay",
			Name:      "received_messages_total",
			Help:      "Signaling messages received from participants, by type.",
		}, []string{"type"}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshroom",
			Subsystem: "relay",
			Name:      "delivered_messages_total",
			Help:      "Signaling messages queued to participants, by type.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshroom",
			Subsystem: "relay",
			Name:      "dropped_messages_total",
			Help:      "Signaling messages dropped by the relay, by reason.",
		}, []string{"reason"}),
	}

	if reg == nil {
		return m
	}

	reg.MustRegister(m.Connections, m.Received, m.Delivered, m.Dropped)
	if registry != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "meshroom",
				Subsystem: "relay",
				Name:      "rooms",
				Help:      "Rooms with at least one member.",
			}, func() float64 { return float64(registry.Len()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "meshroom",
				Subsystem: "relay",
				Name:      "members",
				Help:      "Participants that have joined a room.",
			}, func() float64 {
				n := 0
				for _, info := range registry.Rooms() {
					n += len(info.Members)
				}
				return float64(n)
			}),
		)
	}
	return m
}
