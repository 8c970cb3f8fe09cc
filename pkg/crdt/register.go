package crdt

import (
	"time"

	"github.com/cuemby/meshcore/pkg/types"
)

// head is one concurrent DAG head held by a register: a value, the actor
// that proposed it, and the parent hashes it was built on top of.
type head[V any] struct {
	hash string
	value V
	actor types.Address
	parents []string
	time time.Time
}

// mergeResult reports what applying an update did to a register.
type mergeResult int

const (
	// resultApplied means the update became a head (possibly superseding
	// one or more prior heads, possibly concurrent alongside others).
	resultApplied mergeResult = iota
	// resultDuplicate means this exact update hash was already applied;
	// applying it again is an idempotent no-op.
	resultDuplicate
	// resultOrphan means at least one parent hash is unknown; the caller
	// must buffer the update and request the missing predecessor.
	resultOrphan
)

// BFTRegister is a single entity's replicated value: a DAG of signed
// updates, merged deterministically regardless of arrival order.
type BFTRegister[V any] struct {
	heads map[string]head[V]
	seen map[string]bool // every hash ever accepted as a head, current or superseded
	tombstoned map[string]bool
}

// NewBFTRegister returns an empty register.
func NewBFTRegister[V any]() *BFTRegister[V] {
	return &BFTRegister[V]{
		heads: make(map[string]head[V]),
		seen: make(map[string]bool),
		tombstoned: make(map[string]bool),
	}
}

// applyUpdate merges a new head into the register.
func (r *BFTRegister[V]) applyUpdate(h head[V]) mergeResult {
	if r.seen[h.hash] {
		return resultDuplicate
	}
	for _, parent := range h.parents {
		if !r.seen[parent] {
			return resultOrphan
		}
	}

	r.seen[h.hash] = true
	for _, parent := range h.parents {
		// A late-arriving update whose parent was tombstoned resurrects
		// it: the update is concurrent with the remove and didn't observe
		// it, so the remove must not win (explicit design
		// choice to avoid losing acks in flight).
		delete(r.tombstoned, parent)
		delete(r.heads, parent)
	}
	r.heads[h.hash] = h
	return resultApplied
}

// applyRemove tombstones every hash in rmCtx that the register actually
// knows about; heads outside rmCtx (concurrent updates not observed by the
// remover) survive untouched.
func (r *BFTRegister[V]) applyRemove(rmCtx []string) {
	for _, hash := range rmCtx {
		if r.seen[hash] {
			r.tombstoned[hash] = true
			delete(r.heads, hash)
		}
	}
}

// currentHeads returns the hashes of every live (non-tombstoned) head,
// i.e. the add_ctx/rm_ctx a new local op should be built against.
func (r *BFTRegister[V]) currentHeads() []string {
	hashes := make([]string, 0, len(r.heads))
	for hash := range r.heads {
		hashes = append(hashes, hash)
	}
	return hashes
}

// value resolves the register's current read value: most-recent-by-
// timestamp among live heads, lexicographic hash as a deterministic
// tiebreak.
func (r *BFTRegister[V]) value() (v V, ok bool) {
	var best *head[V]
	for hash, h := range r.heads {
		h := h
		if best == nil || h.time.After(best.time) || (h.time.Equal(best.time) && hash < best.hash) {
			best = &h
		}
	}
	if best == nil {
		return v, false
	}
	return best.value, true
}

// hasSeenHash reports whether hash was ever accepted by this register,
// current, superseded, or tombstoned — used by op_success to recognize
// acknowledged orphans once they've been folded in.
func (r *BFTRegister[V]) hasSeenHash(hash string) bool {
	return r.seen[hash]
}

// isHead reports whether hash is one of the register's current live heads.
func (r *BFTRegister[V]) isHead(hash string) bool {
	_, ok := r.heads[hash]
	return ok
}
