// Package metrics exposes the broker's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the broker's collectors on a private Prometheus registry so
// multiple instances (tests, mainly) never collide.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	MessagesDelivered prometheus.Counter
	BroadcastDropped  prometheus.Counter
	RoomsActive       prometheus.Gauge
}

// NewRegistry creates the collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of live client connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_connections_total",
			Help: "Total connections accepted since start.",
		}),
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_delivered_total",
			Help: "Total lines enqueued to peers.",
		}),
		BroadcastDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_dropped_total",
			Help: "Total lines dropped because a peer was dead or too slow.",
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_rooms_active",
			Help: "Number of live rooms, including the Lobby.",
		}),
	}
}

// Handler returns an HTTP handler exposing this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
