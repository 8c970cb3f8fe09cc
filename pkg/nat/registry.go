// Package nat implements NAT traversal with relay fallback: a minimum
// number of direct attempts before falling back to a relay, a
// direct-then-relay state machine, and per-peer attempt coalescing.
package nat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/types"
)

const relayStaleAfter = time.Hour

// RelayRegistry is the thread-safe `pubkey_hex -> RelayNodeInfo` map of
// known relay nodes available for fallback.
type RelayRegistry struct {
	mu sync.RWMutex
	relays map[string]types.RelayNodeInfo
}

// NewRelayRegistry returns an empty registry.
func NewRelayRegistry() *RelayRegistry {
	return &RelayRegistry{relays: make(map[string]types.RelayNodeInfo)}
}

// Upsert registers or refreshes a candidate relay.
func (r *RelayRegistry) Upsert(info types.RelayNodeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info.LastSeen = time.Now().UTC()
	r.relays[info.PublicKey] = info
}

// DecrementReliability lowers a relay's reliability score after a failed
// session attempt.
func (r *RelayRegistry) DecrementReliability(pubkeyHex string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.relays[pubkeyHex]; ok {
		info.Reliability--
		r.relays[pubkeyHex] = info
	}
}

// Prune drops entries unseen for more than an hour.
func (r *RelayRegistry) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-relayStaleAfter)
	for key, info := range r.relays {
		if info.LastSeen.Before(cutoff) {
			delete(r.relays, key)
		}
	}
}

// FindRelays returns relays in region (empty region matches any) with at
// least the given capabilities, sorted by (load asc, latency asc), capped
// at maxCount.
func (r *RelayRegistry) FindRelays(region string, minCapabilities []string, maxCount int) []types.RelayNodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []types.RelayNodeInfo
	for _, info := range r.relays {
		if region != "" && info.Region != region {
			continue
		}
		if !hasAllCapabilities(info.Capabilities, minCapabilities) {
			continue
		}
		candidates = append(candidates, info)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Load != candidates[j].Load {
			return candidates[i].Load < candidates[j].Load
		}
		return candidates[i].LatencyMS < candidates[j].LatencyMS
	})

	if maxCount > 0 && len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	return candidates
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[strings.ToLower(c)] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[strings.ToLower(c)]; !ok {
			return false
		}
	}
	return true
}
