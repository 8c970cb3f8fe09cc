// Package queue implements the Event Queue, a topic-partitioned
// append-only log that is locally authoritative and best-effort gossiped
// to peers. Durable append uses one bbolt bucket per topic, keyed by
// offset; the subscriber fan-out uses buffered channels with a
// non-blocking, select-default broadcast. Each topic's log is bounded by
// a configurable byte ceiling; once full, writes fail rather than
// growing the log without limit.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/types"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"
)

// Message is one entry in a topic's log.
type Message struct {
	Topic string `json:"topic"`
	Subtopic byte `json:"subtopic"`
	Content []byte `json:"content"`
	NodeID types.Address `json:"node_id,omitempty"`
	Offset uint64 `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster gossips an Operation write to every active, non-disabled
// peer. pkg/gossip supplies the real implementation; the queue only needs
// the narrow interface so it never imports the transport layer.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message) error
}

// ErrQueueFull is returned by Write/Operation when appending content would
// push a topic's on-disk log past its configured byte ceiling. Callers map
// this to a rate-limited response rather than a generic failure: the log
// is not corrupt, it is just full. Nothing in this package removes entries
// or lowers a topic's tracked size, so it stays full.
var ErrQueueFull = fmt.Errorf("queue: log full")

// Subscriber is a channel fed matching messages.
type Subscriber chan Message

type subscription struct {
	topic string
	subtopic byte // 0 means "all subtopics"
	ch Subscriber
}

// Queue is the fleet's Event Queue: durable per-topic append logs plus
// in-process subtopic-routed fan-out.
type Queue struct {
	db *bolt.DB
	broadcaster Broadcaster

	mu sync.Mutex
	offset map[string]uint64 // topic -> next offset to assign
	logSize map[string]uint64 // bucket name -> bytes currently on disk
	maxLogBytes uint64 // 0 means unbounded

	subMu sync.RWMutex
	subs map[*subscription]bool

	logf func(format string, args ...interface{})
}

// topicBucket is the on-disk bucket name for a topic: Keccak256(topic),
// hex-encoded.
func topicBucket(topic string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(topic))
	return []byte(hex.EncodeToString(h.Sum(nil)))
}

// New opens the queue over db. broadcaster may be nil, in which case
// Operation behaves exactly like Write (local-only). maxLogBytes bounds
// the on-disk size of any single topic's log; 0 leaves it unbounded.
// Existing bucket sizes are measured up front so a restart doesn't reset
// a topic's budget.
func New(db *bolt.DB, broadcaster Broadcaster, maxLogBytes uint64) *Queue {
	q := &Queue{
		db: db,
		broadcaster: broadcaster,
		offset: make(map[string]uint64),
		logSize: make(map[string]uint64),
		maxLogBytes: maxLogBytes,
		subs: make(map[*subscription]bool),
		logf: func(string, ...interface{}) {},
	}
	_ = db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			var size uint64
			_ = b.ForEach(func(k, v []byte) error {
				size += uint64(len(k) + len(v))
				return nil
			})
			q.logSize[string(name)] = size
			return nil
		})
	})
	return q
}

// SetLogf installs a logging hook invoked on gossip/broadcast failures.
func (q *Queue) SetLogf(logf func(format string, args ...interface{})) {
	q.logf = logf
}

func (q *Queue) ensureBucket(tx *bolt.Tx, topic string) (*bolt.Bucket, error) {
	return tx.CreateBucketIfNotExists(topicBucket(topic))
}

// Write durably appends content to topic and returns its assigned offset.
// Local-only: no gossip. Fails with ErrQueueFull once topic's on-disk log
// would exceed maxLogBytes, rather than growing it without bound.
func (q *Queue) Write(topic string, subtopic byte, content []byte) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	bucketName := string(topicBucket(topic))
	offset, known := q.offset[topic]
	if !known {
		// Resume after the last offset already on disk, so a reopened
		// queue appends instead of overwriting earlier entries.
		err := q.db.View(func(tx *bolt.Tx) error {
			if b := tx.Bucket([]byte(bucketName)); b != nil {
				if k, _ := b.Cursor().Last(); k != nil {
					offset = binary.BigEndian.Uint64(k) + 1
				}
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("queue: read %s: %w", topic, err)
		}
	}
	msg := Message{Topic: topic, Subtopic: subtopic, Content: content, Offset: offset, Timestamp: time.Now().UTC()}

	encoded, err := encodeMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("queue: encode %s: %w", topic, err)
	}
	key := offsetKey(offset)
	entrySize := uint64(len(key) + len(encoded))
	if q.maxLogBytes > 0 && q.logSize[bucketName]+entrySize > q.maxLogBytes {
		return 0, fmt.Errorf("queue: %s: %w", topic, ErrQueueFull)
	}

	err = q.db.Update(func(tx *bolt.Tx) error {
		b, err := q.ensureBucket(tx, topic)
		if err != nil {
			return err
		}
		return b.Put(key, encoded)
	})
	if err != nil {
		return 0, fmt.Errorf("queue: write %s: %w", topic, err)
	}

	q.offset[topic] = offset + 1
	q.logSize[bucketName] += entrySize
	q.fanOut(msg)
	return offset, nil
}

// Operation durably appends content to topic (as Write does) and then
// schedules a fire-and-forget gossip broadcast of the op to every active
// peer. Each op is broadcast once; broadcast failures are logged and not
// retried.
func (q *Queue) Operation(topic string, subtopic byte, content []byte, nodeID types.Address) (uint64, error) {
	offset, err := q.Write(topic, subtopic, content)
	if err != nil {
		return 0, err
	}
	if q.broadcaster == nil {
		return offset, nil
	}

	msg := Message{Topic: topic, Subtopic: subtopic, Content: content, NodeID: nodeID, Offset: offset, Timestamp: time.Now().UTC()}
	go func() {
		if err := q.broadcaster.Broadcast(context.Background(), msg); err != nil {
			q.logf("queue: broadcast %s offset %d failed: %v", topic, offset, err)
		}
	}()
	return offset, nil
}

// Subscribe registers a consumer for topic; if subtopic is non-zero, only
// messages carrying that subtopic are delivered. The returned channel is
// buffered; a slow consumer drops messages rather than blocking the
// writer (no subsystem may hold an exclusive lock across a
// suspension point).
func (q *Queue) Subscribe(topic string, subtopic byte) (Subscriber, func()) {
	sub := &subscription{topic: topic, subtopic: subtopic, ch: make(Subscriber, 64)}

	q.subMu.Lock()
	q.subs[sub] = true
	q.subMu.Unlock()

	cancel := func() {
		q.subMu.Lock()
		defer q.subMu.Unlock()
		if _, ok := q.subs[sub]; ok {
			delete(q.subs, sub)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

func (q *Queue) fanOut(msg Message) {
	q.subMu.RLock()
	defer q.subMu.RUnlock()

	for sub := range q.subs {
		if sub.topic != msg.Topic {
			continue
		}
		if sub.subtopic != 0 && sub.subtopic != msg.Subtopic {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Consumer buffer full; it will catch up by reading from its
			// own tracked offset after restart.
		}
	}
}

// ReadFrom returns every message in topic's log at or after offset, in
// write order: within a topic, reads are in write order on the
// originating peer.
func (q *Queue) ReadFrom(topic string, offset uint64) ([]Message, error) {
	var out []Message
	err := q.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(topicBucket(topic))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(offsetKey(offset)); k != nil; k, v = c.Next() {
			msg, err := decodeMessage(v)
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue: read %s from %d: %w", topic, offset, err)
	}
	return out, nil
}

func offsetKey(offset uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, offset)
	return buf
}
