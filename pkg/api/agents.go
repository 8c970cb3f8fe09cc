package api

import (
	"net/http"
	"time"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/google/uuid"
)

// CreateAgentRequest publishes a new hireable agent to the registry.
type CreateAgentRequest struct {
	Owner            types.Address           `json:"owner"`
	Name             string                  `json:"name"`
	Version          string                  `json:"version"`
	Description      string                  `json:"description"`
	Framework        types.AgentFramework    `json:"framework"`
	Runtime          types.AgentRuntime      `json:"runtime"`
	Tags             []string                `json:"tags,omitempty"`
	Capabilities     []string                `json:"capabilities,omitempty"`
	FormfileTemplate string                  `json:"formfile_template"`
	Resources        types.ResourceAllotment `json:"resources"`
}

// UpdateAgentRequest patches an existing agent's metadata.
type UpdateAgentRequest struct {
	ID          string   `json:"id"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (s *Server) handleAgentCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Agent](w, r, raw, s.store.Agents)
		return
	}

	var req CreateAgentRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" || req.Name == "" {
		writeError(w, apierr.InvalidRequest("owner and name are required"))
		return
	}

	now := time.Now().UTC()
	agent := types.Agent{
		ID:               uuid.NewString(),
		Owner:            req.Owner,
		Name:             req.Name,
		Version:          req.Version,
		Description:      req.Description,
		Framework:        req.Framework,
		Runtime:          req.Runtime,
		Tags:             req.Tags,
		Capabilities:     req.Capabilities,
		FormfileTemplate: req.FormfileTemplate,
		Resources:        req.Resources,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	applyLocal(w, s.store.Agents, s.queue, topicAgents, 0, s.nodeID, agent.ID, agent)
}

func (s *Server) handleAgentUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Agent](w, r, raw, s.store.Agents)
		return
	}

	var req UpdateAgentRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	agent, ok := s.store.Agents.Get(req.ID)
	if !ok {
		writeError(w, apierr.NotFound("agent %s not found", req.ID))
		return
	}
	if req.Version != "" {
		agent.Version = req.Version
	}
	if req.Description != "" {
		agent.Description = req.Description
	}
	if req.Tags != nil {
		agent.Tags = req.Tags
	}
	agent.UpdatedAt = time.Now().UTC()
	applyLocal(w, s.store.Agents, s.queue, topicAgents, 0, s.nodeID, agent.ID, agent)
}
