// Package dnszone implements the DNS Zone Store.
// Records are kept in the shared CRDT State Store, flat-keyed by their
// fully-qualified label, so the usual op signature/authorization rules
// apply to every write; the zone only exposes reads to the resolver.
// ExportZone reconstructs the recursive Zone view (records plus
// sub-zones) that API responses need.
package dnszone

import (
	"fmt"
	"strings"

	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/types"
)

// Store is the authoritative DNS zone, backed by the State Store's
// DNSRecords map.
type Store struct {
	records *crdt.Map[types.DNSRecord]
}

// New wraps an existing records map (typically crdt.Store.DNSRecords).
func New(records *crdt.Map[types.DNSRecord]) *Store {
	return &Store{records: records}
}

// Publish writes a record under its label, through the State Store so the
// normal signed-op path applies. Only the record's current owner (if one
// already exists) may overwrite it.
func (s *Store) Publish(owner types.Address, record types.DNSRecord) (crdt.Op[types.DNSRecord], error) {
	if existing, ok := s.records.Get(record.Label); ok && existing.Owner != owner {
		return crdt.Op[types.DNSRecord]{}, fmt.Errorf("dnszone: %s is owned by %s, not %s", record.Label, existing.Owner, owner)
	}
	record.Owner = owner
	return s.records.UpdateLocal(record.Label, record)
}

// Remove retracts a record the caller owns.
func (s *Store) Remove(owner types.Address, label string) (crdt.Op[types.DNSRecord], error) {
	existing, ok := s.records.Get(label)
	if !ok {
		return crdt.Op[types.DNSRecord]{}, fmt.Errorf("dnszone: %s has no record", label)
	}
	if existing.Owner != owner {
		return crdt.Op[types.DNSRecord]{}, fmt.Errorf("dnszone: %s is owned by %s, not %s", label, existing.Owner, owner)
	}
	return s.records.RemoveLocal(label)
}

// Lookup resolves a single fully-qualified label.
func (s *Store) Lookup(label string) (types.DNSRecord, bool) {
	return s.records.Get(strings.TrimSuffix(label, "."))
}

// ExportZone builds the recursive Zone view: every record whose label
// lives under zoneName, nested by its remaining label components.
func (s *Store) ExportZone(zoneName string, owner types.Address) types.Zone {
	root := &types.Zone{Name: zoneName, Owner: owner, Records: map[string]types.DNSRecord{}, SubZones: map[string]*types.Zone{}}

	suffix := "." + strings.TrimSuffix(zoneName, ".")
	for _, rec := range s.records.List() {
		label := strings.TrimSuffix(rec.Label, ".")
		if label != zoneName && !strings.HasSuffix(label, suffix) {
			continue
		}
		remainder := strings.TrimSuffix(strings.TrimSuffix(label, zoneName), ".")
		insertRecord(root, remainder, rec)
	}
	return *root
}

// insertRecord walks remainder's dot-separated labels from the last one
// inward, creating one nested sub-zone per label as needed ("www.alice"
// becomes sub-zone "alice" holding sub-zone "www"), and stores rec in the
// innermost sub-zone under its full label.
func insertRecord(zone *types.Zone, remainder string, rec types.DNSRecord) {
	if remainder == "" {
		zone.Records[rec.Label] = rec
		return
	}
	parts := strings.Split(remainder, ".")
	last := parts[len(parts)-1]
	child, ok := zone.SubZones[last]
	if !ok {
		child = &types.Zone{Name: last, Owner: rec.Owner, Records: map[string]types.DNSRecord{}, SubZones: map[string]*types.Zone{}}
		zone.SubZones[last] = child
	}
	insertRecord(child, strings.TrimSuffix(strings.TrimSuffix(remainder, last), "."), rec)
}
