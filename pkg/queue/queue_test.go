package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWriteReadFromPreservesOrder(t *testing.T) {
	q := New(newTestDB(t), nil, 0)

	_, err := q.Write("instances", 0x04, []byte("one"))
	require.NoError(t, err)
	_, err = q.Write("instances", 0x04, []byte("two"))
	require.NoError(t, err)
	_, err = q.Write("instances", 0x04, []byte("three"))
	require.NoError(t, err)

	msgs, err := q.ReadFrom("instances", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []byte("one"), msgs[0].Content)
	require.Equal(t, []byte("two"), msgs[1].Content)
	require.Equal(t, []byte("three"), msgs[2].Content)
	require.Equal(t, uint64(0), msgs[0].Offset)
	require.Equal(t, uint64(2), msgs[2].Offset)
}

func TestReadFromOffsetSkipsEarlier(t *testing.T) {
	q := New(newTestDB(t), nil, 0)
	_, _ = q.Write("accounts", 0x07, []byte("a"))
	_, _ = q.Write("accounts", 0x07, []byte("b"))
	_, _ = q.Write("accounts", 0x07, []byte("c"))

	msgs, err := q.ReadFrom("accounts", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, []byte("b"), msgs[0].Content)
}

func TestSubscribeFiltersBySubtopic(t *testing.T) {
	q := New(newTestDB(t), nil, 0)
	ch, cancel := q.Subscribe("accounts", 0x07)
	defer cancel()

	otherCh, otherCancel := q.Subscribe("accounts", 0x04)
	defer otherCancel()

	_, err := q.Write("accounts", 0x07, []byte("matches"))
	require.NoError(t, err)

	select {
	case msg := <-ch:
		require.Equal(t, []byte("matches"), msg.Content)
	default:
		t.Fatal("expected a message on the matching subtopic channel")
	}

	select {
	case <-otherCh:
		t.Fatal("non-matching subtopic channel should not have received anything")
	default:
	}
}

type fakeBroadcaster struct {
	calls chan Message
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, msg Message) error {
	f.calls <- msg
	return nil
}

func TestOperationSchedulesGossip(t *testing.T) {
	bc := &fakeBroadcaster{calls: make(chan Message, 1)}
	q := New(newTestDB(t), bc, 0)

	q.SetLogf(func(string, ...interface{}) {})

	offset, err := q.Operation("tasks", 0x02, []byte("payload"), types.Address("0xabc"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), offset)

	// Broadcast runs in a goroutine; wait for it to land, then assert.
	select {
	case msg := <-bc.calls:
		require.Equal(t, offset, msg.Offset)
		require.Equal(t, types.Address("0xabc"), msg.NodeID)
	case <-time.After(time.Second):
		t.Fatal("expected Operation to broadcast the op")
	}

	msgs, err := q.ReadFrom("tasks", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestWriteRefusesOnceLogFull(t *testing.T) {
	q := New(newTestDB(t), nil, 0)
	_, err := q.Write("instances", 0, []byte("a"))
	require.NoError(t, err)
	msgs, err := q.ReadFrom("instances", 0)
	require.NoError(t, err)
	encoded, err := encodeMessage(msgs[0])
	require.NoError(t, err)
	oneEntrySize := uint64(len(offsetKey(0)) + len(encoded))

	q = New(newTestDB(t), nil, oneEntrySize)
	_, err = q.Write("instances", 0, []byte("a"))
	require.NoError(t, err)

	_, err = q.Write("instances", 0, []byte("this entry pushes the topic past its byte ceiling"))
	require.ErrorIs(t, err, ErrQueueFull)

	msgs, err = q.ReadFrom("instances", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "the rejected write must not have been appended")
}

func TestWriteUnboundedWhenMaxBytesZero(t *testing.T) {
	q := New(newTestDB(t), nil, 0)
	for i := 0; i < 50; i++ {
		_, err := q.Write("instances", 0, []byte("payload"))
		require.NoError(t, err)
	}
}

func TestNewMeasuresExistingLogSize(t *testing.T) {
	db := newTestDB(t)
	q := New(db, nil, 1<<20)
	_, err := q.Write("instances", 0, []byte("persisted"))
	require.NoError(t, err)

	reopened := New(db, nil, 1<<20)
	_, err = reopened.Write("instances", 0, []byte("more"))
	require.NoError(t, err)
	require.Greater(t, reopened.logSize[string(topicBucket("instances"))], uint64(0))
}

func TestConsumerCommitAndCatchup(t *testing.T) {
	db := newTestDB(t)
	q := New(db, nil, 0)
	_, _ = q.Write("instances", 0, []byte("a"))
	_, _ = q.Write("instances", 0, []byte("b"))

	consumer, err := NewConsumer(q, db, "resolver-1", "instances")
	require.NoError(t, err)

	msgs, err := consumer.Catchup()
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NoError(t, consumer.Commit(msgs[len(msgs)-1].Offset))

	_, _ = q.Write("instances", 0, []byte("c"))
	msgs, err = consumer.Catchup()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, []byte("c"), msgs[0].Content)
}
