// Package metrics provides Prometheus instrumentation for the cache
// coordinator, mutation engine, and subscription engine.
//
// Mount the registry once in your own process:
//
//	http.Handle("/metrics", metrics.Handler())
//
// Then scrape it from Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueryHits counts caller queries served entirely from the local store.
	QueryHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "graphcache",
		Subsystem: "query",
		Name:      "hits_total",
		Help:      "Queries served entirely from the local normalized store.",
	})

	// QueryMisses counts caller queries that required a server fetch
	// (partial or full).
	QueryMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "graphcache",
		Subsystem: "query",
		Name:      "misses_total",
		Help:      "Queries that required at least one server fetch.",
	})

	// PendingInFlight tracks the number of distinct minimized query strings
	// currently awaiting a transport response.
	PendingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "graphcache",
		Subsystem: "query",
		Name:      "pending_in_flight",
		Help:      "Distinct minimized queries currently in flight.",
	})

	// DedupedJoins counts callers that joined an already-pending request
	// instead of triggering a second transport call.
	DedupedJoins = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "graphcache",
		Subsystem: "query",
		Name:      "deduped_joins_total",
		Help:      "Callers that joined an in-flight request instead of issuing a new one.",
	})

	// MutationsApplied counts mutations whose optimistic or authoritative
	// pass resulted in a store merge.
	MutationsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphcache",
			Subsystem: "mutation",
			Name:      "applied_total",
			Help:      "Mutation passes applied to the store.",
		},
		[]string{"phase"}, // "optimistic" | "authoritative"
	)

	// MutationInvalidations counts handler-requested refetches (the
	// invalidate() outcome) per mutation.
	MutationInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "graphcache",
		Subsystem: "mutation",
		Name:      "invalidations_total",
		Help:      "Mutation handler outcomes that triggered a caller refetch.",
	})

	// SubscriptionPatches counts applied add/update/remove patches.
	SubscriptionPatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphcache",
			Subsystem: "subscription",
			Name:      "patches_total",
			Help:      "Subscription patches applied, by kind.",
		},
		[]string{"kind"}, // "add" | "update" | "remove"
	)

	// DependencyFlushes counts callers whose cached denormalized response
	// was cleared by a dependency flush.
	DependencyFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "graphcache",
		Subsystem: "deps",
		Name:      "flushes_total",
		Help:      "Cached caller responses cleared by a dependency flush.",
	})
)

// DefaultRegistry is the Prometheus registry used by this module.
// Register your own collectors against it if you embed graphcache.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		QueryHits,
		QueryMisses,
		PendingInFlight,
		DedupedJoins,
		MutationsApplied,
		MutationInvalidations,
		SubscriptionPatches,
		DependencyFlushes,
	)
}

// Register lets you add your own prometheus.Collector to this registry.
func Register(c prometheus.Collector) error {
	return DefaultRegistry.Register(c)
}

// MustRegister panics if registration fails.
func MustRegister(c ...prometheus.Collector) {
	DefaultRegistry.MustRegister(c...)
}

// Handler exposes the Prometheus metrics page. Mount it on GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
