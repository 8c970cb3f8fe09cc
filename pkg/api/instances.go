package api

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// instanceID derives the stable instance id from (node_id, build_id), per
// Identity: stable id derived by hashing (node_id, build_id).
// Grounded on pkg/queue's topicBucket Keccak256 idiom.
func instanceID(nodeID types.Address, buildID string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(nodeID))
	h.Write([]byte{0})
	h.Write([]byte(buildID))
	return hex.EncodeToString(h.Sum(nil))
}

// CreateInstanceRequest launches (or re-launches) a workload on a node.
type CreateInstanceRequest struct {
	Owner types.Address `json:"owner"`
	NodeID types.Address `json:"node_id"`
	BuildID string `json:"build_id"`
	Resources types.ResourceAllotment `json:"resources"`
	Domain string `json:"domain,omitempty"`
}

// UpdateInstanceRequest patches a running instance's status or addressing.
type UpdateInstanceRequest struct {
	ID string `json:"id"`
	Status types.InstanceStatus `json:"status,omitempty"`
	Domain string `json:"domain,omitempty"`
	FormnetIP string `json:"formnet_ip,omitempty"`
}

// DeleteInstanceRequest removes an instance record entirely.
type DeleteInstanceRequest struct {
	ID string `json:"id"`
}

// InstanceControlAction is a lifecycle command distinct from a raw status
// overwrite, so the API can enforce the absorbing-state invariant
// (Failed/CriticalError are absorbing except for operator
// cleanup) rather than trusting the caller to pick a valid status.
type InstanceControlAction string

const (
	ControlStart InstanceControlAction = "start"
	ControlStop InstanceControlAction = "stop"
	ControlCleanup InstanceControlAction = "cleanup"
)

// ControlInstanceRequest issues a lifecycle command to an instance.
type ControlInstanceRequest struct {
	ID string `json:"id"`
	Action InstanceControlAction `json:"action"`
}

func (s *Server) handleInstanceCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Instance](w, r, raw, s.store.Instances)
		return
	}

	var req CreateInstanceRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" || req.NodeID == "" || req.BuildID == "" {
		writeError(w, apierr.InvalidRequest("owner, node_id, and build_id are required"))
		return
	}

	now := time.Now().UTC()
	instance := types.Instance{
		ID: instanceID(req.NodeID, req.BuildID),
		Owner: req.Owner,
		NodeID: req.NodeID,
		BuildID: req.BuildID,
		Status: types.InstanceBuilding,
		Resources: req.Resources,
		Domain: req.Domain,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := commitLocal(s.store.Instances, s.queue, topicInstances, 0, s.nodeID, instance.ID, instance); err != nil {
		writeError(w, err)
		return
	}

	// Launching an instance submits a LaunchInstance task for Proof-of-Claim
	// assignment: the task op goes to the State Store and is enqueued and
	// gossiped, so every peer runs PoC against it independently once they
	// observe it.
	task := types.Task{
		ID: uuid.NewString(),
		Variant: types.TaskLaunchInstance,
		Status: types.TaskPendingPoCAssessment,
		TargetRedundancy: 1,
		Submitter: req.Owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := commitLocal(s.store.Tasks, s.queue, topicTasks, 0, s.nodeID, task.ID, task); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instance)
}

func (s *Server) handleInstanceUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Instance](w, r, raw, s.store.Instances)
		return
	}

	var req UpdateInstanceRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	instance, ok := s.store.Instances.Get(req.ID)
	if !ok {
		writeError(w, apierr.NotFound("instance %s not found", req.ID))
		return
	}
	if req.Status != "" {
		instance.Status = req.Status
	}
	if req.Domain != "" {
		instance.Domain = req.Domain
	}
	if ip := parseIP(req.FormnetIP); ip != nil {
		instance.FormnetIP = ip
	}
	instance.UpdatedAt = time.Now().UTC()
	applyLocal(w, s.store.Instances, s.queue, topicInstances, 0, s.nodeID, instance.ID, instance)
}

func (s *Server) handleInstanceDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteInstanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, ok := s.store.Instances.Get(req.ID); !ok {
		writeError(w, apierr.NotFound("instance %s not found", req.ID))
		return
	}
	applyLocalRemove[types.Instance](w, s.store.Instances, s.queue, topicInstances, 0, s.nodeID, req.ID)
}

func (s *Server) handleInstanceControl(w http.ResponseWriter, r *http.Request) {
	var req ControlInstanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	instance, ok := s.store.Instances.Get(req.ID)
	if !ok {
		writeError(w, apierr.NotFound("instance %s not found", req.ID))
		return
	}
	if instance.Status.Absorbing() && req.Action != ControlCleanup {
		writeError(w, apierr.InvalidRequest("instance %s is in an absorbing state %s; only cleanup is allowed", req.ID, instance.Status))
		return
	}

	switch req.Action {
	case ControlStart:
		instance.Status = types.InstanceStarted
	case ControlStop:
		instance.Status = types.InstanceStopped
	case ControlCleanup:
		instance.Status = types.InstanceDeleting
	default:
		writeError(w, apierr.InvalidRequest("unknown control action %q", req.Action))
		return
	}
	instance.UpdatedAt = time.Now().UTC()
	applyLocal(w, s.store.Instances, s.queue, topicInstances, 0, s.nodeID, instance.ID, instance)
}

func (s *Server) handleInstanceGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	instance, ok := s.store.Instances.Get(id)
	if !ok {
		writeError(w, apierr.NotFound("instance %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (s *Server) handleInstanceList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	all := s.store.Instances.List()
	if userID == "" {
		writeJSON(w, http.StatusOK, all)
		return
	}

	filtered := make([]types.Instance, 0, len(all))
	for _, inst := range all {
		if string(inst.Owner) == userID {
			filtered = append(filtered, inst)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}
