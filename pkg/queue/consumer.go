package queue

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketConsumerOffsets = []byte("consumer_offsets")

// Consumer tracks a durable read position for one (consumer id, topic)
// pair, so a restarted consumer resumes where it left off.
type Consumer struct {
	queue *Queue
	db *bolt.DB
	id string
	topic string
}

// NewConsumer opens a durable consumer, creating its offset bucket if
// necessary.
func NewConsumer(q *Queue, db *bolt.DB, id, topic string) (*Consumer, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConsumerOffsets)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("queue: open consumer offsets: %w", err)
	}
	return &Consumer{queue: q, db: db, id: id, topic: topic}, nil
}

func (c *Consumer) offsetKey() []byte {
	return []byte(c.id + "|" + c.topic)
}

// Offset returns the consumer's last-committed read position (0 if never
// committed).
func (c *Consumer) Offset() (uint64, error) {
	var offset uint64
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConsumerOffsets).Get(c.offsetKey())
		if data == nil {
			return nil
		}
		offset = binary.BigEndian.Uint64(data)
		return nil
	})
	return offset, err
}

// Commit durably records that every message up to and including offset has
// been processed.
func (c *Consumer) Commit(offset uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, offset+1)
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConsumerOffsets).Put(c.offsetKey(), buf)
	})
}

// Catchup reads every message the consumer hasn't yet committed.
func (c *Consumer) Catchup() ([]Message, error) {
	offset, err := c.Offset()
	if err != nil {
		return nil, err
	}
	return c.queue.ReadFrom(c.topic, offset)
}
