// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of rendered messages handed off to transport",
		},
		[]string{"event_type", "channel"},
	)

	NotificationsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_skipped_total",
			Help: "Total number of channels skipped before rendering",
		},
		[]string{"event_type", "channel", "reason"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of channels that failed during dispatch",
		},
		[]string{"event_type", "channel", "reason"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_render_duration_seconds",
			Help:    "Duration of template rendering in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"channel"},
	)

	PreferenceCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preference_cache_hits_total",
			Help: "Total number of preference lookups served from cache",
		},
	)

	PreferenceCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preference_cache_misses_total",
			Help: "Total number of preference lookups that fell through to the store",
		},
	)

	IntakeEventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_events_malformed_total",
			Help: "Total number of stream entries that could not be decoded",
		},
	)
)
