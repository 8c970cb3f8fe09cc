package api

import (
	"net/http"
	"time"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/auth"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/go-chi/chi/v5"
)

// CreateAccountRequest registers a new account at the given address.
type CreateAccountRequest struct {
	ID types.Address `json:"id"`
	Tier types.SubscriptionTier `json:"tier"`
}

// UpdateAccountRequest patches the mutable subset of an existing account.
type UpdateAccountRequest struct {
	ID types.Address `json:"id"`
	Tier types.SubscriptionTier `json:"tier,omitempty"`
	SubscriptionActive *bool `json:"subscription_active,omitempty"`
	CreditBalanceCents *int64 `json:"credit_balance_cents,omitempty"`
}

// TransferOwnershipRequest moves an instance from its current owner to
// NewOwner; only the current Owner-level grantee may do this.
type TransferOwnershipRequest struct {
	InstanceID string `json:"instance_id"`
	NewOwner types.Address `json:"new_owner"`
}

func (s *Server) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Account](w, r, raw, s.store.Accounts)
		return
	}

	var req CreateAccountRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, apierr.InvalidRequest("id is required"))
		return
	}
	if req.Tier == "" {
		req.Tier = types.TierFree
	}

	account := types.Account{
		ID: req.ID,
		Tier: req.Tier,
		SubscriptionActive: true,
		Grants: map[string]types.AuthLevel{},
		CreatedAt: time.Now().UTC(),
	}
	applyLocal(w, s.store.Accounts, s.queue, topicAccounts, 0, s.nodeID, string(req.ID), account)
}

func (s *Server) handleAccountUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if looksLikeOp(raw) {
		applyRemoteOp[types.Account](w, r, raw, s.store.Accounts)
		return
	}

	var req UpdateAccountRequest
	if err := unmarshalStrict(raw, &req); err != nil {
		writeError(w, err)
		return
	}
	account, ok := s.store.Accounts.Get(string(req.ID))
	if !ok {
		writeError(w, apierr.NotFound("account %s not found", req.ID))
		return
	}
	if req.Tier != "" {
		account.Tier = req.Tier
	}
	if req.SubscriptionActive != nil {
		account.SubscriptionActive = *req.SubscriptionActive
	}
	if req.CreditBalanceCents != nil {
		account.CreditBalanceCents = *req.CreditBalanceCents
	}
	applyLocal(w, s.store.Accounts, s.queue, topicAccounts, 0, s.nodeID, string(req.ID), account)
}

func (s *Server) handleAccountTransferOwnership(w http.ResponseWriter, r *http.Request) {
	fromAddr := types.Address(chi.URLParam(r, "addr"))

	var req TransferOwnershipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	instance, ok := s.store.Instances.Get(req.InstanceID)
	if !ok {
		writeError(w, apierr.NotFound("instance %s not found", req.InstanceID))
		return
	}
	if instance.Owner != fromAddr {
		writeError(w, apierr.Forbidden("only the instance owner may transfer ownership"))
		return
	}

	fromAccount, ok := s.store.Accounts.Get(string(fromAddr))
	if !ok {
		writeError(w, apierr.NotFound("account %s not found", fromAddr))
		return
	}
	toAccount, ok := s.store.Accounts.Get(string(req.NewOwner))
	if !ok {
		writeError(w, apierr.NotFound("account %s not found", req.NewOwner))
		return
	}

	instance.Owner = req.NewOwner
	instance.UpdatedAt = time.Now().UTC()
	if err := commitLocal(s.store.Instances, s.queue, topicInstances, 0, s.nodeID, instance.ID, instance); err != nil {
		writeError(w, err)
		return
	}

	fromAccount.OwnedInstances = removeString(fromAccount.OwnedInstances, instance.ID)
	delete(fromAccount.Grants, instance.ID)
	if err := commitLocal(s.store.Accounts, s.queue, topicAccounts, 0, s.nodeID, string(fromAddr), fromAccount); err != nil {
		writeError(w, err)
		return
	}

	toAccount.OwnedInstances = appendUnique(toAccount.OwnedInstances, instance.ID)
	if toAccount.Grants == nil {
		toAccount.Grants = map[string]types.AuthLevel{}
	}
	toAccount.Grants[instance.ID] = types.AuthOwner
	if err := commitLocal(s.store.Accounts, s.queue, topicAccounts, 0, s.nodeID, string(req.NewOwner), toAccount); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instance)
}

func (s *Server) handleAccountList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Accounts.List())
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	account, ok := s.store.Accounts.Get(addr)
	if !ok {
		writeError(w, apierr.NotFound("account %s not found", addr))
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// accountsDirectory exposes the State Store's Accounts map through
// pkg/auth's storage-agnostic AccountDirectory interface.
func (s *Server) accountsDirectory() auth.AccountDirectory {
	return auth.AccountsFromMap(s.store.Accounts)
}

func removeString(list []string, target string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func appendUnique(list []string, target string) []string {
	for _, v := range list {
		if v == target {
			return list
		}
	}
	return append(list, target)
}
