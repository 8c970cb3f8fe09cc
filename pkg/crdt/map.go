package crdt

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
)

// ApplyOutcome classifies what Apply did with an incoming op, so callers
// (the gossip receiver, snapshot replay) can decide whether to log, ack, or
// re-gossip.
type ApplyOutcome int

const (
	Applied ApplyOutcome = iota
	NoOp
	Buffered
)

// RequestPredecessorFunc is called when an orphan op's missing parent needs
// to be fetched from its originator. The caller (pkg/gossip) owns the
// actual network round trip; crdt only decides when to ask.
type RequestPredecessorFunc func(actor types.Address, key string, missingParent string)

// Map is one entity kind's replicated store: id -> BFTRegister[V].
// Guarded by its own mutex, not shared with other maps: this map's writes
// are serialized, and reads take the same lock but hold it only briefly.
type Map[V any] struct {
	mu sync.Mutex
	actor types.Address
	signer *signing.KeyPair
	entries map[string]*BFTRegister[V]
	orphans map[string][]Op[V] // keyed by the missing parent hash they're waiting on
	onOrphan RequestPredecessorFunc
}

// NewMap constructs an empty map whose local ops are signed by signer.
func NewMap[V any](signer *signing.KeyPair, onOrphan RequestPredecessorFunc) *Map[V] {
	return &Map[V]{
		actor: signer.Address,
		signer: signer,
		entries: make(map[string]*BFTRegister[V]),
		orphans: make(map[string][]Op[V]),
		onOrphan: onOrphan,
	}
}

func (m *Map[V]) register(key string) *BFTRegister[V] {
	reg, ok := m.entries[key]
	if !ok {
		reg = NewBFTRegister[V]()
		m.entries[key] = reg
	}
	return reg
}

// UpdateLocal builds, signs, and applies an Up op for key carrying value,
// and returns it for the caller to hand to the Event Queue / Gossip layer.
func (m *Map[V]) UpdateLocal(key string, value V) (Op[V], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.register(key)
	update := Update[V]{
		Actor: m.actor,
		Value: value,
		Parents: reg.currentHeads(),
		Time: time.Now().UTC(),
	}
	hash, err := update.hash()
	if err != nil {
		return Op[V]{}, err
	}

	op := Op[V]{Kind: OpUp, Key: key, AddCtx: update.Parents, Update: update}
	op, err = signOp(m.signer, op)
	if err != nil {
		return Op[V]{}, err
	}

	reg.applyUpdate(head[V]{
		hash: hash,
		value: update.Value,
		actor: update.Actor,
		parents: update.Parents,
		time: update.Time,
	})
	return op, nil
}

// RemoveLocal tombstones key's current heads and returns the Rm op for
// propagation.
func (m *Map[V]) RemoveLocal(key string) (Op[V], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.register(key)
	rmCtx := reg.currentHeads()
	op := Op[V]{Kind: OpRm, Key: key, RmCtx: rmCtx}
	op, err := signOp(m.signer, op)
	if err != nil {
		return Op[V]{}, err
	}
	reg.applyRemove(rmCtx)
	return op, nil
}

// Apply merges a (possibly remote) op into the map. Malformed or
// unverifiable ops are rejected with an error; the caller is expected to
// log and drop them. A verification failure is fatal only for that op.
func (m *Map[V]) Apply(op Op[V]) (ApplyOutcome, error) {
	if err := verifyOp(op); err != nil {
		return NoOp, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(op)
}

func (m *Map[V]) applyLocked(op Op[V]) (ApplyOutcome, error) {
	reg := m.register(op.Key)

	switch op.Kind {
	case OpRm:
		reg.applyRemove(op.RmCtx)
		return Applied, nil

	case OpUp:
		hash, err := op.Update.hash()
		if err != nil {
			return NoOp, err
		}
		h := head[V]{
			hash: hash,
			value: op.Update.Value,
			actor: op.Update.Actor,
			parents: op.Update.Parents,
			time: op.Update.Time,
		}
		switch reg.applyUpdate(h) {
		case resultDuplicate:
			return NoOp, nil
		case resultOrphan:
			missing := firstUnknown(reg, h.parents)
			m.orphans[missing] = append(m.orphans[missing], op)
			if m.onOrphan != nil {
				m.onOrphan(op.Signer, op.Key, missing)
			}
			return Buffered, nil
		default: // resultApplied
			m.resolveOrphansLocked(hash)
			return Applied, nil
		}

	default:
		return NoOp, fmt.Errorf("crdt: unknown op kind %q", op.Kind)
	}
}

// resolveOrphansLocked re-applies any buffered ops that were waiting on
// newlyKnown as their missing parent, cascading through the chain.
func (m *Map[V]) resolveOrphansLocked(newlyKnown string) {
	waiting, ok := m.orphans[newlyKnown]
	if !ok {
		return
	}
	delete(m.orphans, newlyKnown)
	for _, op := range waiting {
		m.applyLocked(op) //nolint:errcheck // best-effort replay; already-verified op
	}
}

func firstUnknown[V any](reg *BFTRegister[V], parents []string) string {
	for _, p := range parents {
		if !reg.hasSeenHash(p) {
			return p
		}
	}
	return ""
}

// OpSuccess is the post-apply check the gateway uses to decide whether to
// ack the original caller.
func (m *Map[V]) OpSuccess(key string, update Update[V]) (bool, V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	reg, ok := m.entries[key]
	if !ok {
		return false, zero
	}

	if current, ok := reg.value(); ok && reflect.DeepEqual(current, update.Value) {
		return true, current
	}

	hash, err := update.hash()
	if err != nil {
		return false, zero
	}
	if reg.isHead(hash) {
		return true, update.Value
	}
	if reg.hasSeenHash(hash) {
		// Acknowledged orphan: folded in, possibly later superseded.
		return true, update.Value
	}
	return false, zero
}

// Get returns key's current merged value.
func (m *Map[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	reg, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	return reg.value()
}

// List returns every key with a live (non-removed) value, in unspecified
// order — two replicas with the same applied ops converge to the same
// entries regardless of their maps' internal insertion order.
func (m *Map[V]) List() []V {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]V, 0, len(m.entries))
	for _, reg := range m.entries {
		if v, ok := reg.value(); ok {
			out = append(out, v)
		}
	}
	return out
}

// Snapshot returns every key with a resolved live value, for persistence.
func (m *Map[V]) Snapshot() map[string]V {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]V, len(m.entries))
	for key, reg := range m.entries {
		if v, ok := reg.value(); ok {
			out[key] = v
		}
	}
	return out
}

// Restore seeds the map from a snapshot taken by Snapshot, as a single
// root update per key (used at startup, before the queue tail is
// re-applied on top).
func (m *Map[V]) Restore(snapshot map[string]V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range snapshot {
		reg := m.register(key)
		update := Update[V]{Actor: m.actor, Value: value, Time: time.Now().UTC()}
		hash, err := update.hash()
		if err != nil {
			return err
		}
		reg.applyUpdate(head[V]{hash: hash, value: value, actor: m.actor, time: update.Time})
	}
	return nil
}
