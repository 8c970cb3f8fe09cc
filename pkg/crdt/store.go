package crdt

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes = []byte("nodes")
	bucketInstances = []byte("instances")
	bucketAccounts = []byte("accounts")
	bucketTasks = []byte("tasks")
	bucketPeers = []byte("peers")
	bucketCIDRs = []byte("cidrs")
	bucketAssociations = []byte("associations")
	bucketDNSRecords = []byte("dns_records")
	bucketAgents = []byte("agents")

	snapshotKey = []byte("snapshot")
)

// Store is the fleet's full State Store: one replicated Map per entity
// kind, snapshotted to a single bbolt database with one bucket per kind
// and JSON-encoded values. Recovery reloads the latest snapshot then
// re-applies the queue tail.
type Store struct {
	Nodes *Map[types.Node]
	Instances *Map[types.Instance]
	Accounts *Map[types.Account]
	Tasks *Map[types.Task]
	Peers *Map[types.Peer]
	CIDRs *Map[types.CIDR]
	Associations *Map[types.Association]
	DNSRecords *Map[types.DNSRecord]
	Agents *Map[types.Agent]

	db *bolt.DB
}

// NewStore opens (creating if absent) the on-disk snapshot database under
// dataDir and wires up one Map per entity kind. onOrphan is invoked by
// every map whenever an op arrives with an unknown parent hash; wire it to
// the gossip transport to fetch the missing predecessor from its
// originator.
func NewStore(dataDir string, signer *signing.KeyPair, onOrphan RequestPredecessorFunc) (*Store, error) {
	dbPath := filepath.Join(dataDir, "meshcore.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("crdt: open snapshot db: %w", err)
	}

	buckets := [][]byte{
		bucketNodes, bucketInstances, bucketAccounts, bucketTasks,
		bucketPeers, bucketCIDRs, bucketAssociations, bucketDNSRecords, bucketAgents,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		Nodes: NewMap[types.Node](signer, onOrphan),
		Instances: NewMap[types.Instance](signer, onOrphan),
		Accounts: NewMap[types.Account](signer, onOrphan),
		Tasks: NewMap[types.Task](signer, onOrphan),
		Peers: NewMap[types.Peer](signer, onOrphan),
		CIDRs: NewMap[types.CIDR](signer, onOrphan),
		Associations: NewMap[types.Association](signer, onOrphan),
		DNSRecords: NewMap[types.DNSRecord](signer, onOrphan),
		Agents: NewMap[types.Agent](signer, onOrphan),
		db: db,
	}, nil
}

// Close closes the snapshot database.
func (s *Store) Close() error {
	return s.db.Close()
}

// snapshotBucket persists one map's current read values under bucket as a
// single JSON blob, the cheapest encoding that still lets RestoreFromDisk
// seed every key with one root update before the queue tail replays on top.
func snapshotBucket[V any](db *bolt.DB, bucket []byte, m *Map[V]) error {
	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		return fmt.Errorf("crdt: encode snapshot for %s: %w", bucket, err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(snapshotKey, data)
	})
}

func restoreBucket[V any](db *bolt.DB, bucket []byte, m *Map[V]) error {
	var snapshot map[string]V
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(snapshotKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &snapshot)
	})
	if err != nil {
		return fmt.Errorf("crdt: decode snapshot for %s: %w", bucket, err)
	}
	if snapshot == nil {
		return nil
	}
	return m.Restore(snapshot)
}

// SnapshotToDisk persists every map's current state. The node calls it
// periodically (cmd/meshcore's snapshotLoop), not after each local op.
func (s *Store) SnapshotToDisk() error {
	if err := snapshotBucket(s.db, bucketNodes, s.Nodes); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketInstances, s.Instances); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketAccounts, s.Accounts); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketTasks, s.Tasks); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketPeers, s.Peers); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketCIDRs, s.CIDRs); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketAssociations, s.Associations); err != nil {
		return err
	}
	if err := snapshotBucket(s.db, bucketDNSRecords, s.DNSRecords); err != nil {
		return err
	}
	return snapshotBucket(s.db, bucketAgents, s.Agents)
}

// RestoreFromDisk reloads the latest snapshot for every map. The caller is
// responsible for re-applying the Event Queue tail afterward.
func (s *Store) RestoreFromDisk() error {
	if err := restoreBucket(s.db, bucketNodes, s.Nodes); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketInstances, s.Instances); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketAccounts, s.Accounts); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketTasks, s.Tasks); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketPeers, s.Peers); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketCIDRs, s.CIDRs); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketAssociations, s.Associations); err != nil {
		return err
	}
	if err := restoreBucket(s.db, bucketDNSRecords, s.DNSRecords); err != nil {
		return err
	}
	return restoreBucket(s.db, bucketAgents, s.Agents)
}
