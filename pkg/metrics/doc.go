// Package metrics exposes the fleet's Prometheus metrics and health/readiness
// endpoints. metrics.go registers one collector per distributed component
// (fleet composition, State Store ops, Event Queue depth, Gossip fanout,
// Proof-of-Claim claims, peer state, NAT traversal outcomes, connection-cache
// size, DNS queries, auth/rate-limiting, API requests); Collector samples
// the State Store, Event Queue, and Overlay Membership on a fixed tick to
// keep the gauges current; health.go tracks this node's own subsystem
// health for /health and /ready.
package metrics
