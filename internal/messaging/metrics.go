// internal/messaging/metrics.go

package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Messages persisted, by kind",
		},
		[]string{"kind"},
	)

	conversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_conversations_started_total",
			Help: "New conversations created",
		},
	)

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_broadcasts_total",
			Help: "Room broadcasts, by event type",
		},
		[]string{"event"},
	)

	fallbackNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_fallback_notifications_total",
			Help: "Fallback notifications fired for offline recipients, by outcome",
		},
		[]string{"outcome"},
	)

	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_connections_total",
			Help: "Gateway connection events",
		},
		[]string{"event"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_active_connections",
			Help: "Currently registered live connections",
		},
	)
)
