/*
Package api implements the fleet's JSON HTTP control-plane surface. One chi router exposes account, instance, node, agent,
overlay (CIDR/association), queue, and bootstrap routes; every mutating
route accepts either a direct payload (applied locally then gossiped) or a
pre-built CRDT op (applied only, never re-broadcast, and only from
signature-authenticated peers).

Requests are authenticated by pkg/auth.Authenticator (signature, API key,
or JWT) before reaching any handler; role and rate-limit enforcement ride
along in the same middleware. A separate, unauthenticated HealthServer
exposes /health, /ready, and /metrics on its own listener so orchestration
tooling never needs API credentials to probe liveness.
*/
package api
