// Package conncache implements the Connection Cache, a bounded per-peer
// history of endpoint dial success used to steer NAT traversal's future
// dial order: a 7-day retention window, a 5-entry-per-peer cap, and
// (success_count desc, last_success desc) prioritization.
package conncache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/types"
)

const (
	maxEntriesPerPeer = 5
	maxEntryAge = 7 * 24 * time.Hour
)

// Cache is a per-interface, JSON-persisted history of endpoint dial
// successes, keyed by peer public key.
type Cache struct {
	mu sync.Mutex
	path string
	entries map[string][]types.ConnectionEntry
}

// New constructs an empty cache that persists to path on Flush.
func New(path string) *Cache {
	return &Cache{path: path, entries: make(map[string][]types.ConnectionEntry)}
}

// Load reads path (if it exists) and returns a populated Cache, reloading
// prior dial history on start.
func Load(path string) (*Cache, error) {
	c := New(path)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conncache: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("conncache: decode %s: %w", path, err)
	}
	return c, nil
}

// Flush persists the cache to its backing JSON file with mode 0600.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("conncache: encode: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("conncache: mkdir %s: %w", dir, err)
		}
	}
	return os.WriteFile(c.path, data, 0600)
}

// RecordSuccess upserts an (endpoint) entry for peerPubkey: increments its
// success count and sets last_success to now, then prunes.
func (c *Cache) RecordSuccess(peerPubkey, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entries[peerPubkey]
	now := time.Now().UTC()
	found := false
	for i := range entries {
		if entries[i].Endpoint == endpoint {
			entries[i].SuccessCount++
			entries[i].LastSuccess = now
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, types.ConnectionEntry{Endpoint: endpoint, LastSuccess: now, SuccessCount: 1})
	}
	c.entries[peerPubkey] = entries
	c.pruneLocked()
}

// Prioritize returns candidates reordered: known-good endpoints (in the
// intersection of the cache and candidates) first, sorted by
// (success_count desc, last_success desc), followed by any candidates not
// in the cache, in their original order.
func (c *Cache) Prioritize(peerPubkey string, candidates []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	known := make(map[string]types.ConnectionEntry)
	for _, e := range c.entries[peerPubkey] {
		known[e.Endpoint] = e
	}

	var goodKnown []types.ConnectionEntry
	var unknown []string
	for _, candidate := range candidates {
		if e, ok := known[candidate]; ok {
			goodKnown = append(goodKnown, e)
		} else {
			unknown = append(unknown, candidate)
		}
	}

	sort.SliceStable(goodKnown, func(i, j int) bool {
		if goodKnown[i].SuccessCount != goodKnown[j].SuccessCount {
			return goodKnown[i].SuccessCount > goodKnown[j].SuccessCount
		}
		return goodKnown[i].LastSuccess.After(goodKnown[j].LastSuccess)
	})

	ordered := make([]string, 0, len(candidates))
	for _, e := range goodKnown {
		ordered = append(ordered, e.Endpoint)
	}
	ordered = append(ordered, unknown...)
	return ordered
}

// prune drops entries older than 7 days, then caps each peer's history at
// 5 entries (highest success count, then most recent).
func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
}

func (c *Cache) pruneLocked() {
	cutoff := time.Now().UTC().Add(-maxEntryAge)
	for peer, entries := range c.entries {
		fresh := entries[:0]
		for _, e := range entries {
			if e.LastSuccess.After(cutoff) {
				fresh = append(fresh, e)
			}
		}

		sort.SliceStable(fresh, func(i, j int) bool {
			if fresh[i].SuccessCount != fresh[j].SuccessCount {
				return fresh[i].SuccessCount > fresh[j].SuccessCount
			}
			return fresh[i].LastSuccess.After(fresh[j].LastSuccess)
		})
		if len(fresh) > maxEntriesPerPeer {
			fresh = fresh[:maxEntriesPerPeer]
		}

		if len(fresh) == 0 {
			delete(c.entries, peer)
		} else {
			c.entries[peer] = fresh
		}
	}
}
