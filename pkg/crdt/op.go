package crdt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
)

// OpKind distinguishes the two op shapes a register accepts.
type OpKind string

const (
	OpUp OpKind = "Up"
	OpRm OpKind = "Rm"
)

// Update is the payload of an Up op: the new value, the actor proposing it,
// and the hash-chained parent set it was built on top of.
type Update[V any] struct {
	Actor types.Address `json:"actor"`
	Value V `json:"value"`
	Parents []string `json:"parents"`
	Time time.Time `json:"time"`
}

// hash returns the content-addressed id of this update, used as the head
// hash in the register's DAG.
func (u Update[V]) hash() (string, error) {
	// Parents are sorted so two updates built from the same observed heads
	// hash identically regardless of map-iteration order.
	parents := append([]string(nil), u.Parents...)
	sort.Strings(parents)
	canonical := u
	canonical.Parents = parents
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("crdt: encode update: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// Op is a signed mutation submitted to a Map: either an Up (new value) or
// an Rm (tombstone of currently-observed heads).
type Op[V any] struct {
	Kind OpKind `json:"kind"`
	Key string `json:"key"`
	AddCtx []string `json:"add_ctx,omitempty"` // Up: heads observed when update_local ran
	RmCtx []string `json:"rm_ctx,omitempty"` // Rm: heads observed when remove_local ran
	Update Update[V] `json:"update,omitempty"`

	Signer types.Address `json:"signer"`
	Sig []byte `json:"sig"`
	RecoveryID byte `json:"recovery_id"`
}

// signingBytes returns the canonical bytes a node signs over, and that a
// receiving peer re-derives to verify the signature.
func (op Op[V]) signingBytes() ([]byte, error) {
	unsigned := struct {
		Kind OpKind `json:"kind"`
		Key string `json:"key"`
		AddCtx []string `json:"add_ctx,omitempty"`
		RmCtx []string `json:"rm_ctx,omitempty"`
		Update Update[V] `json:"update,omitempty"`
	}{op.Kind, op.Key, op.AddCtx, op.RmCtx, op.Update}
	encoded, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("crdt: encode op for signing: %w", err)
	}
	return encoded, nil
}

// signOp produces a fully signed Op from an unsigned one.
func signOp[V any](kp *signing.KeyPair, op Op[V]) (Op[V], error) {
	body, err := op.signingBytes()
	if err != nil {
		return op, err
	}
	sig, recID, err := signing.Sign(kp.Private, body)
	if err != nil {
		return op, fmt.Errorf("crdt: sign op: %w", err)
	}
	op.Signer = kp.Address
	op.Sig = sig
	op.RecoveryID = recID
	return op, nil
}

// verifyOp checks an incoming op's signature against its claimed signer.
// A node never applies an op whose signature does not verify against the
// claimed actor's public key.
func verifyOp[V any](op Op[V]) error {
	body, err := op.signingBytes()
	if err != nil {
		return err
	}
	if !signing.Verify(op.Sig, op.RecoveryID, body, op.Signer) {
		return fmt.Errorf("crdt: signature does not verify for signer %s", op.Signer)
	}
	return nil
}
