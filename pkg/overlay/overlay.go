// Package overlay implements Overlay Membership — Peer/CIDR/Association
// lifecycle and the admin-mediated invite flow — layered on top of the
// State Store's CRDT maps. WireGuard device synchronization wraps
// golang.zx2c4.com/wireguard/wgctrl; the invite/redemption flow follows
// an admin-mediated CIDR/association schema with join-request handling.
package overlay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
)

// ErrCIDRHasDescendants is returned when deleting a CIDR that still has
// child CIDRs or peers attached (invariant).
var ErrCIDRHasDescendants = fmt.Errorf("overlay: cidr has descendant cidrs or peers")

// ErrUnknownCIDR is returned when an association references a CIDR id the
// store has no record of.
var ErrUnknownCIDR = fmt.Errorf("overlay: association references unknown cidr")

// ErrPeerOutsideCIDR is returned when a peer's mesh IP does not fall
// within its declared CIDR's network.
var ErrPeerOutsideCIDR = fmt.Errorf("overlay: peer ip does not lie within its cidr")

// Membership manages the overlay graph on top of the shared State Store.
type Membership struct {
	store *crdt.Store
	signer *signing.KeyPair
}

// New wraps store's Peers/CIDRs/Associations maps with overlay invariants.
func New(store *crdt.Store, signer *signing.KeyPair) *Membership {
	return &Membership{store: store, signer: signer}
}

// CreateCIDR adds a named IP network to the overlay tree. If parentID is
// non-empty, it must already exist.
func (m *Membership) CreateCIDR(cidr types.CIDR) (crdt.Op[types.CIDR], error) {
	if cidr.ParentID != "" {
		if _, ok := m.store.CIDRs.Get(cidr.ParentID); !ok {
			return crdt.Op[types.CIDR]{}, ErrUnknownCIDR
		}
	}
	if _, _, err := net.ParseCIDR(cidr.Network); err != nil {
		return crdt.Op[types.CIDR]{}, fmt.Errorf("overlay: invalid cidr network %q: %w", cidr.Network, err)
	}
	return m.store.CIDRs.UpdateLocal(cidr.ID, cidr)
}

// DeleteCIDR removes a CIDR, enforcing that no descendant CIDR or peer
// still references it.
func (m *Membership) DeleteCIDR(id string) (crdt.Op[types.CIDR], error) {
	for _, c := range m.store.CIDRs.List() {
		if c.ParentID == id {
			return crdt.Op[types.CIDR]{}, ErrCIDRHasDescendants
		}
	}
	for _, p := range m.store.Peers.List() {
		if p.CIDRID == id {
			return crdt.Op[types.CIDR]{}, ErrCIDRHasDescendants
		}
	}
	return m.store.CIDRs.RemoveLocal(id)
}

// Invite is an admin-issued binding of a new peer's public key to a
// reserved mesh IP, with an expiry.
type Invite struct {
	PublicKey string
	CIDRID string
	ReservedIP net.IP
	InviteExpires time.Time
}

// IssueInvite is called by an existing admin peer. It publishes an
// un-redeemed Peer record; the joining peer later redeems it by presenting
// a signature over the invite (RedeemInvite).
func (m *Membership) IssueInvite(issuer types.Address, invite Invite) (crdt.Op[types.Peer], error) {
	adminPeer, ok := m.findPeerByNodeID(issuer)
	if !ok || !adminPeer.IsAdmin {
		return crdt.Op[types.Peer]{}, fmt.Errorf("overlay: %s is not a registered admin peer", issuer)
	}
	cidr, ok := m.store.CIDRs.Get(invite.CIDRID)
	if !ok {
		return crdt.Op[types.Peer]{}, ErrUnknownCIDR
	}
	if !cidr.Contains(invite.ReservedIP) {
		return crdt.Op[types.Peer]{}, ErrPeerOutsideCIDR
	}

	peer := types.Peer{
		PublicKey: invite.PublicKey,
		MeshIP: invite.ReservedIP,
		CIDRID: invite.CIDRID,
		Redeemed: false,
		InviteExpires: invite.InviteExpires,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	return m.store.Peers.UpdateLocal(invite.PublicKey, peer)
}

// RedeemInvite is called by the joining peer once it has verified the
// invite signature out of band (pkg/auth handles the signature check at
// the HTTP boundary). It marks the peer record redeemed and binds it to
// the joining node's control-plane identity.
func (m *Membership) RedeemInvite(publicKey string, nodeID types.Address, candidates []string) (crdt.Op[types.Peer], error) {
	peer, ok := m.store.Peers.Get(publicKey)
	if !ok {
		return crdt.Op[types.Peer]{}, fmt.Errorf("overlay: no invite outstanding for %s", publicKey)
	}
	if peer.Redeemed {
		return crdt.Op[types.Peer]{}, fmt.Errorf("overlay: invite for %s already redeemed", publicKey)
	}
	if time.Now().After(peer.InviteExpires) {
		return crdt.Op[types.Peer]{}, fmt.Errorf("overlay: invite for %s has expired", publicKey)
	}

	peer.NodeID = nodeID
	peer.Redeemed = true
	peer.Candidates = candidates
	peer.UpdatedAt = time.Now().UTC()
	return m.store.Peers.UpdateLocal(publicKey, peer)
}

// CreateAssociation grants reachability between two CIDRs, storing it
// under its canonical key so duplicate adds (in either argument order) are
// no-ops.
func (m *Membership) CreateAssociation(cidrA, cidrB string) (crdt.Op[types.Association], error) {
	if _, ok := m.store.CIDRs.Get(cidrA); !ok {
		return crdt.Op[types.Association]{}, ErrUnknownCIDR
	}
	if _, ok := m.store.CIDRs.Get(cidrB); !ok {
		return crdt.Op[types.Association]{}, ErrUnknownCIDR
	}

	if cidrB < cidrA {
		cidrA, cidrB = cidrB, cidrA
	}
	key := types.AssociationKey(cidrA, cidrB)
	if _, ok := m.store.Associations.Get(key); ok {
		return crdt.Op[types.Association]{}, nil // already present: no-op
	}

	assoc := types.Association{ID: key, CIDRA: cidrA, CIDRB: cidrB}
	return m.store.Associations.UpdateLocal(key, assoc)
}

// ActivePeers returns every redeemed, non-disabled peer — the set the
// gossip transport should broadcast to.
func (m *Membership) ActivePeers() []types.Peer {
	var active []types.Peer
	for _, p := range m.store.Peers.List() {
		if p.Redeemed && !p.Disabled {
			active = append(active, p)
		}
	}
	return active
}

// IsKnownNonDisabled reports whether addr is a redeemed, non-disabled
// peer's node identity — the check pkg/gossip's AuthMiddleware needs.
func (m *Membership) IsKnownNonDisabled(addr types.Address) bool {
	peer, ok := m.findPeerByNodeID(addr)
	return ok && peer.Redeemed && !peer.Disabled
}

func (m *Membership) findPeerByNodeID(nodeID types.Address) (types.Peer, bool) {
	for _, p := range m.store.Peers.List() {
		if p.NodeID == nodeID {
			return p, true
		}
	}
	return types.Peer{}, false
}

// GenerateInviteToken produces a random 32-byte token hex-encoded for an
// out-of-band invite channel (the admin communicates this to the joining
// operator; the actual signature check happens via pkg/auth).
func GenerateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("overlay: generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
