// Package monitoring exposes the relay's prometheus collectors.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "callsignal",
		Name:      "active_connections",
		Help:      "Live WebSocket connections registered with the relay.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "callsignal",
		Name:      "active_sessions",
		Help:      "Call sessions currently holding at least one member.",
	})

	RelayedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "callsignal",
		Name:      "relayed_messages_total",
		Help:      "Signaling messages forwarded between session members.",
	})

	RejectedOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callsignal",
		Name:      "rejected_operations_total",
		Help:      "Client operations rejected by reason.",
	}, []string{"reason"})
)
