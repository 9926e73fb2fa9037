// Package metrics exposes the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayConnections counts currently open gateway connections,
	// authenticated or not.
	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concord_gateway_connections",
		Help: "Open gateway connections.",
	})

	// RegisteredSessions counts sessions currently present in the registry.
	RegisteredSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concord_gateway_registered_sessions",
		Help: "Authenticated sessions present in the session registry.",
	})

	// EventsDispatched counts event deliveries (one per recipient session),
	// labelled by event variant.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_gateway_events_dispatched_total",
		Help: "Events enqueued to recipient sessions.",
	}, []string{"event"})

	// WriteFailures counts transport write errors that tore a session down.
	WriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concord_gateway_write_failures_total",
		Help: "Failed transport writes.",
	})
)
