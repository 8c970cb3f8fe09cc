// Package types defines the core data structures replicated across the
// fleet: nodes, instances, accounts, tasks, the overlay graph (peers,
// CIDRs, associations), and DNS zones. Every mutable entity here is wrapped
// by a CRDT register in pkg/crdt; this package only carries plain values.
package types
