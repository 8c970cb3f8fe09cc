package crdt

import (
	"testing"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/stretchr/testify/require"
)

func newTestMap(t *testing.T) (*Map[string], *signing.KeyPair) {
	t.Helper()
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	return NewMap[string](kp, nil), kp
}

func TestUpdateLocalThenGet(t *testing.T) {
	m, _ := newTestMap(t)

	op, err := m.UpdateLocal("node-1", "hello")
	require.NoError(t, err)
	require.Equal(t, OpUp, op.Kind)

	v, ok := m.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestApplyIsIdempotent(t *testing.T) {
	m, _ := newTestMap(t)
	op, err := m.UpdateLocal("node-1", "hello")
	require.NoError(t, err)

	outcome, err := m.Apply(op)
	require.NoError(t, err)
	require.Equal(t, NoOp, outcome) // already applied locally by UpdateLocal

	v, ok := m.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestApplyConvergesRegardlessOfOrder(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	// Build a chain of three updates on one map, capturing each op.
	origin := NewMap[string](kp, nil)
	op1, err := origin.UpdateLocal("node-1", "v1")
	require.NoError(t, err)
	op2, err := origin.UpdateLocal("node-1", "v2")
	require.NoError(t, err)
	op3, err := origin.UpdateLocal("node-1", "v3")
	require.NoError(t, err)

	// Replica A applies in order.
	replicaA := NewMap[string](kp, nil)
	_, err = replicaA.Apply(op1)
	require.NoError(t, err)
	_, err = replicaA.Apply(op2)
	require.NoError(t, err)
	_, err = replicaA.Apply(op3)
	require.NoError(t, err)

	// Replica B applies out of order; op2/op3 buffer as orphans until their
	// parent arrives.
	replicaB := NewMap[string](kp, nil)
	outcome, err := replicaB.Apply(op3)
	require.NoError(t, err)
	require.Equal(t, Buffered, outcome)
	outcome, err = replicaB.Apply(op2)
	require.NoError(t, err)
	require.Equal(t, Buffered, outcome)
	outcome, err = replicaB.Apply(op1)
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	vA, okA := replicaA.Get("node-1")
	vB, okB := replicaB.Get("node-1")
	require.True(t, okA)
	require.True(t, okB)
	require.Equal(t, vA, vB)
	require.Equal(t, "v3", vB)
}

func TestApplyRejectsBadSignature(t *testing.T) {
	m, _ := newTestMap(t)
	op, err := m.UpdateLocal("node-1", "hello")
	require.NoError(t, err)

	tampered := op
	tampered.Update.Value = "forged"

	_, err = m.Apply(tampered)
	require.Error(t, err)
}

func TestRemoveLocalThenConcurrentUpdateSurvives(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	origin := NewMap[string](kp, nil)
	createOp, err := origin.UpdateLocal("node-1", "v1")
	require.NoError(t, err)

	// Two replicas both start from createOp.
	replicaA := NewMap[string](kp, nil)
	_, err = replicaA.Apply(createOp)
	require.NoError(t, err)
	replicaB := NewMap[string](kp, nil)
	_, err = replicaB.Apply(createOp)
	require.NoError(t, err)

	// replicaA removes it.
	rmOp, err := replicaA.RemoveLocal("node-1")
	require.NoError(t, err)
	_, ok := replicaA.Get("node-1")
	require.False(t, ok)

	// replicaB, concurrently (without observing the removal), issues an
	// update built on the same parent.
	updateOp, err := replicaB.UpdateLocal("node-1", "v2-concurrent")
	require.NoError(t, err)

	// replicaA now receives the concurrent update: the tombstoned entry
	// must become visible again.
	_, err = replicaA.Apply(updateOp)
	require.NoError(t, err)
	v, ok := replicaA.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "v2-concurrent", v)

	// replicaB applies the remove op too; its own concurrent update
	// (already a later head) is unaffected since it wasn't in rm_ctx.
	_, err = replicaB.Apply(rmOp)
	require.NoError(t, err)
	v, ok = replicaB.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "v2-concurrent", v)
}

func TestOpSuccess(t *testing.T) {
	m, _ := newTestMap(t)
	op, err := m.UpdateLocal("node-1", "hello")
	require.NoError(t, err)

	ok, v := m.OpSuccess("node-1", op.Update)
	require.True(t, ok)
	require.Equal(t, "hello", v)

	ok, _ = m.OpSuccess("node-unknown", op.Update)
	require.False(t, ok)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	m := NewMap[string](kp, nil)
	_, err = m.UpdateLocal("node-1", "v1")
	require.NoError(t, err)
	_, err = m.UpdateLocal("node-2", "v2")
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	restored := NewMap[string](kp, nil)
	require.NoError(t, restored.Restore(snap))

	v, ok := restored.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "v1", v)
}
