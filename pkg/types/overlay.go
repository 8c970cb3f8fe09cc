package types

import (
	"net"
	"time"
)

// Peer is an overlay (WireGuard) identity: distinct from the node
// control-plane identity though keyed by the same address space.
type Peer struct {
	PublicKey string `json:"public_key"` // invariant once set
	NodeID Address `json:"node_id"`
	MeshIP net.IP `json:"mesh_ip"`
	CIDRID string `json:"cidr_id"`
	IsAdmin bool `json:"is_admin"`
	Disabled bool `json:"disabled"`
	Redeemed bool `json:"redeemed"`
	InviteExpires time.Time `json:"invite_expires,omitempty"`
	Candidates []string `json:"candidates"` // host:port endpoint candidates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CIDR is a named IP network in the overlay address tree.
type CIDR struct {
	ID string `json:"id"`
	Name string `json:"name"`
	Network string `json:"network"` // CIDR notation, e.g. "10.0.0.0/16"
	ParentID string `json:"parent_id,omitempty"`
}

// Contains reports whether ip falls within the CIDR's declared network.
func (c CIDR) Contains(ip net.IP) bool {
	_, network, err := net.ParseCIDR(c.Network)
	if err != nil {
		return false
	}
	return network.Contains(ip)
}

// AssociationKey is the canonical, order-independent identifier for an
// association between two CIDRs (smaller id first).
func AssociationKey(a, b string) string {
	if a <= b {
		return a + "|" + b
	}
	return b + "|" + a
}

// Association grants inter-CIDR reachability; stored under its
// AssociationKey so duplicate adds are no-ops regardless of argument order.
type Association struct {
	ID string `json:"id"`
	CIDRA string `json:"cidr_a"`
	CIDRB string `json:"cidr_b"`
}

// Key returns the canonical storage key for this association.
func (a Association) Key() string { return AssociationKey(a.CIDRA, a.CIDRB) }

// RecordType is the DNS resource record type the zone store carries.
type RecordType string

const (
	RecordA RecordType = "A"
	RecordAAAA RecordType = "AAAA"
	RecordCNAME RecordType = "CNAME"
)

// Entrypoint is a reachable address/protocol pair for a DNS record,
// optionally with a port mapping.
type Entrypoint struct {
	Addr string `json:"addr"`
	Protocol string `json:"protocol"`
	Port int `json:"port,omitempty"`
}

// DNSRecord is a single entry owned by an account address.
type DNSRecord struct {
	Label string `json:"label"`
	Type RecordType `json:"type"`
	TTL uint32 `json:"ttl"`
	IP net.IP `json:"ip,omitempty"`
	Target string `json:"target,omitempty"` // CNAME target
	Entrypoints []Entrypoint `json:"entrypoints,omitempty"`
	Owner Address `json:"owner"`
}

// Zone is a recursive DNS namespace: records plus named sub-zones.
type Zone struct {
	Name string `json:"name"`
	Owner Address `json:"owner"`
	Records map[string]DNSRecord `json:"records"`
	SubZones map[string]*Zone `json:"sub_zones"`
}

// ConnectionEntry is a single (endpoint, success history) record kept by
// the Connection Cache for one peer.
type ConnectionEntry struct {
	Endpoint string `json:"endpoint"`
	LastSuccess time.Time `json:"last_success"`
	SuccessCount uint32 `json:"success_count"`
}

// RelayNodeInfo describes a candidate relay in the Relay Registry.
type RelayNodeInfo struct {
	PublicKey string `json:"pubkey"`
	Endpoints []string `json:"endpoints"`
	Region string `json:"region"`
	Capabilities []string `json:"capabilities"`
	Load float64 `json:"load"`
	LatencyMS int `json:"latency_ms"`
	Reliability int `json:"reliability"` // higher is better
	LastSeen time.Time `json:"last_seen"`
}
