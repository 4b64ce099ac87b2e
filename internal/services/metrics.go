package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// messagesSent counts committed sends.
	messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Total number of messages sent.",
	})

	// messageEdits counts accepted edits (one history row each).
	messageEdits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "message_edits_total",
		Help: "Total number of accepted message edits.",
	})

	// notificationsDispatched counts stored notifications.
	notificationsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Total number of notifications stored for recipients.",
	})

	// notificationsFailed counts recipients whose notification could not be
	// stored. The message itself is never rolled back.
	notificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notifications that failed to be stored.",
	})
)

func init() {
	prometheus.MustRegister(messagesSent, messageEdits, notificationsDispatched, notificationsFailed)
}

// loggerFrom returns the logger carried by ctx, or the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
