// Package observability provides Prometheus metrics for the application.
package observability

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_redis_errors_total",
		Help: "Number of Redis command errors",
	}, []string{"command"})

	// CacheHits counts cache-aside hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_cache_hits_total",
		Help: "Number of cache-aside hits",
	})

	// CacheMisses counts cache-aside misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_cache_misses_total",
		Help: "Number of cache-aside misses",
	})

	// PublishFailures counts fire-and-forget real-time publish failures by
	// event kind. These never fail the originating command.
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_realtime_publish_failures_total",
		Help: "Number of failed real-time event publishes",
	}, []string{"kind"})

	// OutboxPending gauges the number of unpublished outbox entries seen by
	// the last relay sweep.
	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_outbox_pending",
		Help: "Unpublished outbox entries at the last relay sweep",
	})

	// OutboxPublished counts outbox entries successfully published by topic.
	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_outbox_published_total",
		Help: "Outbox entries published to the event log",
	}, []string{"topic"})

	// ActiveWebSockets gauges currently open websocket connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_active_websockets",
		Help: "Currently open websocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped because a client's
	// send buffer was full or closed.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_websocket_backpressure_drops_total",
		Help: "Messages dropped due to websocket backpressure",
	}, []string{"hub", "reason"})
)

// InitMetrics creates the fiberprometheus middleware for HTTP metrics.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}
