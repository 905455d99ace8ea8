package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tarschat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_users_synced_total",
			Help: "Total profile sync operations",
		},
	)

	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarschat_conversations_created_total",
			Help: "Total conversations created",
		},
		[]string{"kind"}, // "direct" or "group"
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	ReactionsToggled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_reactions_toggled_total",
			Help: "Total reaction toggles",
		},
	)

	TypingUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_typing_updates_total",
			Help: "Total typing indicator updates",
		},
	)

	ReadAcknowledgements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarschat_read_acks_total",
			Help: "Total read acknowledgements",
		},
	)
)
