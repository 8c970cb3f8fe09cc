// Package crdt implements the State Store, a Byzantine-tolerant CRDT map
// replicating every fleet entity. Each entity kind gets its own Map[V],
// a BFT-Register keyed by entity id; registers merge signed, hash-chained
// updates deterministically, without coordination. Each Map has its own
// mutex, which serializes that map's writes; writes to different maps are
// not serialized with each other. Readers must never block on network I/O.
// Snapshots persist to one bbolt bucket per entity kind, JSON-encoded.
package crdt
