// Package metrics exposes Prometheus collectors for every distributed
// control-plane component: package-level vars, registered once in init(),
// served through the standard promhttp handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet composition
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_nodes_total",
			Help: "Total number of known nodes by status",
		},
		[]string{"status"},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_instances_total",
			Help: "Total number of instances by lifecycle status",
		},
		[]string{"status"},
	)

	// State Store (MODULE B)
	StateStoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_state_store_ops_total",
			Help: "Total number of CRDT ops applied by entity kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	StateStoreOrphanedOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_state_store_orphaned_ops_total",
			Help: "Total number of ops buffered awaiting a missing predecessor",
		},
		[]string{"kind"},
	)

	// Event Queue (MODULE C)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_queue_depth",
			Help: "Next unassigned offset per topic (monotonic write count)",
		},
		[]string{"topic"},
	)

	QueueWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcore_queue_write_duration_seconds",
			Help:    "Time taken to durably append a queue entry",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	// Gossip Transport (MODULE D)
	GossipBroadcastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcore_gossip_broadcast_duration_seconds",
			Help:    "Time taken to broadcast an op to every active peer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	GossipBroadcastFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_gossip_broadcast_failures_total",
			Help: "Total number of per-peer broadcast failures",
		},
		[]string{"topic"},
	)

	// Proof-of-Claim Scheduler (MODULE E)
	PoCClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_poc_claims_total",
			Help: "Total number of tasks this node claimed responsibility for",
		},
		[]string{"outcome"},
	)

	PoCClaimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshcore_poc_claim_latency_seconds",
			Help:    "Time taken to evaluate responsibility for one task",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Overlay Membership (MODULE F)
	PeersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_peers_total",
			Help: "Total number of overlay peers by redeemed/disabled state",
		},
		[]string{"state"},
	)

	// NAT Traversal & Relay (MODULE G)
	NATTraversalOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_nat_traversal_outcomes_total",
			Help: "Total number of NAT traversal attempts by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	NATTraversalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcore_nat_traversal_duration_seconds",
			Help:    "Time taken to establish a peer connection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Connection Cache (MODULE H)
	ConnCacheEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshcore_conncache_entries_total",
			Help: "Total number of cached endpoint entries across all peers",
		},
	)

	// DNS Zone Store (MODULE I)
	DNSQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_dns_queries_total",
			Help: "Total number of DNS queries by record type and outcome",
		},
		[]string{"qtype", "outcome"},
	)

	// Authorization (MODULE J)
	AuthRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_auth_requests_total",
			Help: "Total number of admission attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RateLimitedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter by window",
		},
		[]string{"window"},
	)

	// HTTP API gateway
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_api_requests_total",
			Help: "Total number of API requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcore_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		InstancesTotal,
		StateStoreOpsTotal,
		StateStoreOrphanedOpsTotal,
		QueueDepth,
		QueueWriteDuration,
		GossipBroadcastDuration,
		GossipBroadcastFailuresTotal,
		PoCClaimsTotal,
		PoCClaimLatency,
		PeersTotal,
		NATTraversalOutcomesTotal,
		NATTraversalDuration,
		ConnCacheEntriesTotal,
		DNSQueriesTotal,
		AuthRequestsTotal,
		RateLimitedRequestsTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
