package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/go-chi/chi/v5"
)

// CreateCIDRRequest declares a named IP network in the overlay tree.
type CreateCIDRRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Network  string `json:"network"`
	ParentID string `json:"parent_id,omitempty"`
}

// UpdateCIDRRequest patches a CIDR's display name.
type UpdateCIDRRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeleteCIDRRequest removes a CIDR with no remaining descendants.
type DeleteCIDRRequest struct {
	ID string `json:"id"`
}

// CreateAssociationRequest grants reachability between two CIDRs.
type CreateAssociationRequest struct {
	CIDRA string `json:"cidr_a"`
	CIDRB string `json:"cidr_b"`
}

// DeleteAssociationRequest retracts an association by its canonical key.
type DeleteAssociationRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleCIDRCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.CIDR](w, r, raw, s.store.CIDRs)
		return
	}

	var req CreateCIDRRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" || req.Network == "" {
		writeError(w, apierr.InvalidRequest("id and network are required"))
		return
	}

	cidr := types.CIDR{ID: req.ID, Name: req.Name, Network: req.Network, ParentID: req.ParentID}
	op, err := s.membership.CreateCIDR(cidr)
	if err != nil {
		writeError(w, apierr.InvalidRequest("%v", err))
		return
	}
	if err := s.gossipOp(topicCIDRs, op); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cidr)
}

func (s *Server) handleCIDRUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.CIDR](w, r, raw, s.store.CIDRs)
		return
	}

	var req UpdateCIDRRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	cidr, ok := s.store.CIDRs.Get(req.ID)
	if !ok {
		writeError(w, apierr.NotFound("cidr %s not found", req.ID))
		return
	}
	if req.Name != "" {
		cidr.Name = req.Name
	}
	applyLocal(w, s.store.CIDRs, s.queue, topicCIDRs, 0, s.nodeID, cidr.ID, cidr)
}

func (s *Server) handleCIDRDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteCIDRRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	op, err := s.membership.DeleteCIDR(req.ID)
	if err != nil {
		writeError(w, apierr.InvalidRequest("%v", err))
		return
	}
	if err := s.gossipOp(topicCIDRs, op); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": req.ID})
}

func (s *Server) handleAssocCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Association](w, r, raw, s.store.Associations)
		return
	}

	var req CreateAssociationRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CIDRA == "" || req.CIDRB == "" {
		writeError(w, apierr.InvalidRequest("cidr_a and cidr_b are required"))
		return
	}

	op, err := s.membership.CreateAssociation(req.CIDRA, req.CIDRB)
	if err != nil {
		writeError(w, apierr.InvalidRequest("%v", err))
		return
	}
	assoc, _ := s.store.Associations.Get(types.AssociationKey(req.CIDRA, req.CIDRB))
	if op.Key != "" {
		if err := s.gossipOp(topicAssociations, op); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, assoc)
}

func (s *Server) handleAssocDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteAssociationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, ok := s.store.Associations.Get(req.ID); !ok {
		writeError(w, apierr.NotFound("association %s not found", req.ID))
		return
	}
	applyLocalRemove[types.Association](w, s.store.Associations, s.queue, topicAssociations, 0, s.nodeID, req.ID)
}

func (s *Server) handleAssocList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Associations.List())
}

func (s *Server) handleAssocRelationships(w http.ResponseWriter, r *http.Request) {
	cidr := chi.URLParam(r, "cidr")
	var related []types.Association
	for _, a := range s.store.Associations.List() {
		if a.CIDRA == cidr || a.CIDRB == cidr {
			related = append(related, a)
		}
	}
	writeJSON(w, http.StatusOK, related)
}

// gossipOp marshals and broadcasts an already-applied local op. Handlers
// that go through pkg/overlay's invariant checks (CreateCIDR, DeleteCIDR,
// CreateAssociation) apply locally inside that package, so only the
// broadcast half of commitLocal applies here.
func (s *Server) gossipOp(topic string, op any) error {
	content, err := json.Marshal(op)
	if err != nil {
		return apierr.Internal(err, "encode op")
	}
	if _, err := s.queue.Operation(topic, 0, content, s.nodeID); err != nil {
		return enqueueErr(err)
	}
	return nil
}
