// Package api implements the control plane's HTTP surface: a JSON API,
// authenticated per pkg/auth, that fronts the State Store, Event Queue,
// Overlay Membership, NAT Traversal, Connection Cache, and DNS Zone
// Store behind one gateway wired to every subsystem, routed with
// go-chi/chi.
package api

import (
	"net/http"
	"time"

	"github.com/cuemby/meshcore/pkg/auth"
	"github.com/cuemby/meshcore/pkg/conncache"
	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/dnszone"
	"github.com/cuemby/meshcore/pkg/log"
	"github.com/cuemby/meshcore/pkg/nat"
	"github.com/cuemby/meshcore/pkg/overlay"
	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Topic names for the Event Queue's per-entity logs. This
// server never needs more than one subtopic per entity kind, so subtopic
// is always 0.
const (
	topicAccounts = "accounts"
	topicInstances = "instances"
	topicNodes = "nodes"
	topicAgents = "agents"
	topicCIDRs = "cidrs"
	topicAssociations = "associations"
	topicDNS = "dns"
	topicTasks = "tasks"
)

// TopicTasks is the Event Queue topic Task{BuildImage,LaunchInstance} ops
// are logged and gossiped under, exported so the standalone Proof-of-Claim
// claim loop (cmd/meshcore) can enqueue its own task-state transitions
// through the same topic every other peer's gossip handler expects.
const TopicTasks = topicTasks

// Topics returns every Event Queue topic this gateway writes to, for
// collaborators (the metrics collector, gossip subscribers) that need the
// full topic set without depending on the unexported constants directly.
func Topics() []string {
	return []string{
		topicAccounts, topicInstances, topicNodes, topicAgents,
		topicCIDRs, topicAssociations, topicDNS, topicTasks,
	}
}

// Server is the fleet's HTTP gateway: every route is a thin adapter from
// JSON request to a State Store mutation (or Overlay/NAT/ConnCache/DNS
// call), queued and gossiped exactly once.
type Server struct {
	store *crdt.Store
	queue *queue.Queue
	membership *overlay.Membership
	traverser *nat.Traverser
	relays *nat.RelayRegistry
	conncache *conncache.Cache
	zone *dnszone.Store
	authr *auth.Authenticator
	access *auth.ProjectAccessStore
	nodeID types.Address
}

// Deps bundles every collaborator the API server dispatches to.
type Deps struct {
	Store *crdt.Store
	Queue *queue.Queue
	Membership *overlay.Membership
	Traverser *nat.Traverser
	Relays *nat.RelayRegistry
	ConnCache *conncache.Cache
	Zone *dnszone.Store
	Authr *auth.Authenticator
	Access *auth.ProjectAccessStore
	NodeID types.Address
}

// NewServer wires a Server over deps.
func NewServer(deps Deps) *Server {
	return &Server{
		store: deps.Store,
		queue: deps.Queue,
		membership: deps.Membership,
		traverser: deps.Traverser,
		relays: deps.Relays,
		conncache: deps.ConnCache,
		zone: deps.Zone,
		authr: deps.Authr,
		access: deps.Access,
		nodeID: deps.NodeID,
	}
}

// Router builds the chi mux for the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)
	r.Use(s.authr.Middleware)

	r.Route("/account", func(r chi.Router) {
		r.Post("/create", s.handleAccountCreate)
		r.Post("/update", s.handleAccountUpdate)
		r.Post("/{addr}/transfer_ownership", s.handleAccountTransferOwnership)
		r.Get("/list", s.handleAccountList)
		r.Get("/{addr}/get", s.handleAccountGet)
	})

	r.Route("/instance", func(r chi.Router) {
		r.Post("/create", s.handleInstanceCreate)
		r.Post("/update", s.handleInstanceUpdate)
		r.Post("/delete", s.handleInstanceDelete)
		r.Post("/control", s.handleInstanceControl)
		r.Get("/{id}/get", s.handleInstanceGet)
	})
	r.Get("/instances/list", s.handleInstanceList)

	r.Route("/node", func(r chi.Router) {
		r.Post("/create", s.handleNodeCreate)
		r.Post("/update", s.handleNodeUpdate)
		r.Post("/{id}/delete", s.handleNodeDelete)
		r.Get("/{id}/get", s.handleNodeGet)
		r.Get("/list", s.handleNodeList)
		r.Get("/{id}/metrics", s.handleNodeMetrics)
	})

	r.Route("/agent", func(r chi.Router) {
		r.Post("/create", s.handleAgentCreate)
		r.Post("/update", s.handleAgentUpdate)
	})

	r.Route("/cidr", func(r chi.Router) {
		r.Post("/create", s.handleCIDRCreate)
		r.Post("/update", s.handleCIDRUpdate)
		r.Post("/delete", s.handleCIDRDelete)
	})

	r.Route("/assoc", func(r chi.Router) {
		r.Post("/create", s.handleAssocCreate)
		r.Post("/delete", s.handleAssocDelete)
		r.Get("/list", s.handleAssocList)
		r.Get("/{cidr}/relationships", s.handleAssocRelationships)
	})

	r.Post("/queue/write_local", s.handleQueueWriteLocal)

	r.Route("/bootstrap", func(r chi.Router) {
		r.Post("/add", s.handleBootstrapAdd)
		r.Post("/remove", s.handleBootstrapRemove)
		r.Get("/list", s.handleBootstrapList)
	})

	r.Post("/gossip/{topic}", s.handleGossipReceive)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithComponent("api").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
