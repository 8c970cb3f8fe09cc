package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/auth"
	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/cuemby/meshcore/pkg/types"
)

// enqueueErr classifies a queue write/operation failure: a full topic log
// is a rate-limited condition the caller can retry, not an internal
// failure.
func enqueueErr(err error) error {
	if errors.Is(err, queue.ErrQueueFull) {
		return apierr.RateLimited("queue full: %v", err)
	}
	return apierr.Internal(err, "enqueue op")
}

// applyLocal signs, applies, and durably logs+gossips a local update to one
// entity map, the shared tail of every "direct" mutating route: direct
// requests are broadcast after local apply. On success it writes the
// resulting value as the response body.
func applyLocal[V any](w http.ResponseWriter, m *crdt.Map[V], q *queue.Queue, topic string, subtopic byte, nodeID types.Address, key string, value V) {
	if err := commitLocal(m, q, topic, subtopic, nodeID, key, value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// commitLocal is applyLocal without the response write, for handlers that
// must mutate more than one entity map before replying once.
func commitLocal[V any](m *crdt.Map[V], q *queue.Queue, topic string, subtopic byte, nodeID types.Address, key string, value V) error {
	op, err := m.UpdateLocal(key, value)
	if err != nil {
		return apierr.Internal(err, "apply local update")
	}
	content, err := json.Marshal(op)
	if err != nil {
		return apierr.Internal(err, "encode op")
	}
	if _, err := q.Operation(topic, subtopic, content, nodeID); err != nil {
		return enqueueErr(err)
	}
	return nil
}

// applyLocalRemove tombstones key and gossips the removal op.
func applyLocalRemove[V any](w http.ResponseWriter, m *crdt.Map[V], q *queue.Queue, topic string, subtopic byte, nodeID types.Address, key string) {
	op, err := m.RemoveLocal(key)
	if err != nil {
		writeError(w, apierr.Internal(err, "apply local removal"))
		return
	}
	content, err := json.Marshal(op)
	if err != nil {
		writeError(w, apierr.Internal(err, "encode op"))
		return
	}
	if _, err := q.Operation(topic, subtopic, content, nodeID); err != nil {
		writeError(w, enqueueErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": key})
}

// applyRemoteOp decodes a pre-built CRDT op from raw and applies it
// directly, without re-broadcasting: op requests are accepted only from
// authenticated peers and never re-broadcast. Only signature-authenticated
// principals (peer-to-peer admission) may submit ops this way.
func applyRemoteOp[V any](w http.ResponseWriter, r *http.Request, raw []byte, m *crdt.Map[V]) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.Method != auth.MethodSignature {
		writeError(w, apierr.Unauthorized("op submission requires peer signature authentication"))
		return
	}

	var op crdt.Op[V]
	if err := json.Unmarshal(raw, &op); err != nil {
		writeError(w, apierr.InvalidRequest("malformed op: %v", err))
		return
	}

	outcome, err := m.Apply(op)
	if err != nil {
		writeError(w, apierr.InvalidRequest("op rejected: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": outcomeString(outcome)})
}

// looksLikeOp reports whether raw is a pre-built CRDT op rather than a
// direct payload, by checking for the op envelope's discriminant field.
func looksLikeOp(raw []byte) bool {
	var probe struct {
		Kind crdt.OpKind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Kind == crdt.OpUp || probe.Kind == crdt.OpRm
}

func outcomeString(o crdt.ApplyOutcome) string {
	switch o {
	case crdt.Applied:
		return "applied"
	case crdt.Buffered:
		return "buffered"
	default:
		return "no_op"
	}
}
