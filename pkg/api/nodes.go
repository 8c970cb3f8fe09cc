package api

import (
	"net/http"
	"time"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/go-chi/chi/v5"
)

// CreateNodeRequest registers a new peer with its declared capabilities.
type CreateNodeRequest struct {
	ID           types.Address          `json:"id"`
	Endpoints    []string               `json:"endpoints"`
	Capabilities types.NodeCapabilities `json:"capabilities"`
	Annotations  types.NodeAnnotations  `json:"annotations"`
	OperatorKeys []string               `json:"operator_keys,omitempty"`
}

// UpdateNodeRequest reports a heartbeat or annotation change.
type UpdateNodeRequest struct {
	ID          types.Address          `json:"id"`
	Endpoints   []string               `json:"endpoints,omitempty"`
	Metrics     *types.NodeMetrics     `json:"metrics,omitempty"`
	Annotations *types.NodeAnnotations `json:"annotations,omitempty"`
}

func (s *Server) handleNodeCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Node](w, r, raw, s.store.Nodes)
		return
	}

	var req CreateNodeRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, apierr.InvalidRequest("id is required"))
		return
	}

	now := time.Now().UTC()
	node := types.Node{
		ID:            req.ID,
		Endpoints:     req.Endpoints,
		Capabilities:  req.Capabilities,
		Annotations:   req.Annotations,
		OperatorKeys:  req.OperatorKeys,
		LastHeartbeat: now,
		CreatedAt:     now,
	}
	applyLocal(w, s.store.Nodes, s.queue, topicNodes, 0, s.nodeID, string(req.ID), node)
}

func (s *Server) handleNodeUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Node](w, r, raw, s.store.Nodes)
		return
	}

	var req UpdateNodeRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	node, ok := s.store.Nodes.Get(string(req.ID))
	if !ok {
		writeError(w, apierr.NotFound("node %s not found", req.ID))
		return
	}
	if req.Endpoints != nil {
		node.Endpoints = req.Endpoints
	}
	if req.Metrics != nil {
		node.Metrics = *req.Metrics
	}
	if req.Annotations != nil {
		node.Annotations = *req.Annotations
	}
	node.LastHeartbeat = time.Now().UTC()
	applyLocal(w, s.store.Nodes, s.queue, topicNodes, 0, s.nodeID, string(req.ID), node)
}

func (s *Server) handleNodeDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.store.Nodes.Get(id); !ok {
		writeError(w, apierr.NotFound("node %s not found", id))
		return
	}
	applyLocalRemove[types.Node](w, s.store.Nodes, s.queue, topicNodes, 0, s.nodeID, id)
}

func (s *Server) handleNodeGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := s.store.Nodes.Get(id)
	if !ok {
		writeError(w, apierr.NotFound("node %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleNodeList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Nodes.List())
}

func (s *Server) handleNodeMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := s.store.Nodes.Get(id)
	if !ok {
		writeError(w, apierr.NotFound("node %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, node.Metrics)
}
