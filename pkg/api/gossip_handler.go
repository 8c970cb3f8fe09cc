package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/auth"
	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/go-chi/chi/v5"
)

// handleGossipReceive is the receiving half of pkg/gossip's broadcast.
// The signature middleware has already recovered the
// sender; this handler only needs to refuse non-peer callers, apply the
// carried op to the matching State Store map, and log the message to the
// local Event Queue without re-broadcasting it (the sender already did
// that for every other peer).
func (s *Server) handleGossipReceive(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.Method != auth.MethodSignature {
		writeError(w, apierr.Unauthorized("gossip requires peer signature authentication"))
		return
	}
	if !s.membership.IsKnownNonDisabled(principal.Address) {
		writeError(w, apierr.Forbidden("sender is not an active peer"))
		return
	}

	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var msg queue.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeError(w, apierr.InvalidRequest("malformed gossip message: %v", err))
		return
	}

	topic := chi.URLParam(r, "topic")
	if err := s.applyGossipped(topic, msg.Content); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.queue.Write(topic, msg.Subtopic, msg.Content); err != nil {
		writeError(w, enqueueErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// applyGossipped dispatches content to the map backing topic.
func (s *Server) applyGossipped(topic string, content []byte) error {
	switch topic {
	case topicAccounts:
		return applyGossipOp(s.store.Accounts, content)
	case topicInstances:
		return applyGossipOp(s.store.Instances, content)
	case topicNodes:
		return applyGossipOp(s.store.Nodes, content)
	case topicAgents:
		return applyGossipOp(s.store.Agents, content)
	case topicCIDRs:
		return applyGossipOp(s.store.CIDRs, content)
	case topicAssociations:
		return applyGossipOp(s.store.Associations, content)
	case topicDNS:
		return applyGossipOp(s.store.DNSRecords, content)
	case topicTasks:
		return applyGossipOp(s.store.Tasks, content)
	default:
		return apierr.NotFound("unknown gossip topic %q", topic)
	}
}

func applyGossipOp[V any](m *crdt.Map[V], content []byte) error {
	var op crdt.Op[V]
	if err := json.Unmarshal(content, &op); err != nil {
		return apierr.InvalidRequest("malformed op: %v", err)
	}
	if _, err := m.Apply(op); err != nil {
		return apierr.InvalidRequest("op rejected: %v", err)
	}
	return nil
}
