// Package metrics defines the Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ActivePublishers tracks currently connected publisher connections
	ActivePublishers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_publishers",
			Help: "Number of currently connected publisher connections",
		},
	)

	// ActiveSubscribers tracks currently connected subscriber connections
	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_subscribers",
			Help: "Number of currently connected subscriber connections",
		},
	)

	// ConnectionsRejectedTotal tracks connections rejected by the per-role cap
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_rejected_total",
			Help: "Connections rejected because the per-role limit was reached",
		},
		[]string{"role"},
	)
)

// Frame Metrics
var (
	// FramesReceivedTotal tracks frames read from publisher connections
	FramesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Total frames received from publishers",
		},
	)

	// FramesSentTotal tracks frames written to subscriber connections
	FramesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_sent_total",
			Help: "Total frames sent to subscribers",
		},
	)

	// BytesReceivedTotal tracks payload bytes read from publishers
	BytesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_bytes_received_total",
			Help: "Total payload bytes received from publishers",
		},
	)

	// BytesSentTotal tracks payload bytes written to subscribers
	BytesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_bytes_sent_total",
			Help: "Total payload bytes sent to subscribers",
		},
	)
)

// Channel Metrics
var (
	// LagEventsTotal tracks how often a subscriber fell behind retained history
	LagEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_lag_events_total",
			Help: "Total times a subscriber lagged behind the channel buffer",
		},
	)

	// FramesSkippedTotal tracks frames lost to lagging subscribers
	FramesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_skipped_total",
			Help: "Total frames skipped by lagging subscribers",
		},
	)

	// PublishFanout observes how many subscriptions each publish reached
	PublishFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_publish_fanout",
			Help:    "Subscriptions reached without lag per published frame",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)
)
