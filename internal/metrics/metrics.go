// Package metrics holds the prometheus collectors shared by the watcher,
// relay, broker and storage stub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Watcher metrics
	WatchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_watch_events_total",
		Help: "Filesystem events seen by the watcher, by outcome (queued, filtered, rejected)",
	}, []string{"outcome"})
	Heartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libretto_heartbeats_total",
		Help: "Liveness ticks of the watcher loop",
	})

	// Bridge metrics
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "libretto_queue_depth",
		Help: "Events waiting between the notification callback and the publisher",
	})
	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libretto_queue_dropped_total",
		Help: "Events dropped by the queue overflow policy",
	})

	// Transport metrics
	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_published_total",
		Help: "Frames published, by topic",
	}, []string{"topic"})
	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_publish_errors_total",
		Help: "Failed publishes, by topic",
	}, []string{"topic"})
	FramesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_frames_discarded_total",
		Help: "Received frames dropped because the payload did not decode, by topic",
	}, []string{"topic"})

	// Relay metrics
	Classified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_classified_total",
		Help: "Events classified by the relay, by action (none for observe-only)",
	}, []string{"action"})

	// Broker metrics
	BrokerSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "libretto_broker_subscribers",
		Help: "Connected subscribers",
	})
	BrokerFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_broker_frames_total",
		Help: "Frames routed by the broker, by topic",
	}, []string{"topic"})

	// Storage stub metrics
	DFSCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libretto_dfs_calls_total",
		Help: "Storage RPCs acknowledged, by method",
	}, []string{"method"})
)

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
