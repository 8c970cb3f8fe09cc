package main

import (
	"github.com/cuemby/meshcore/pkg/gossip"
	"github.com/cuemby/meshcore/pkg/overlay"
	"github.com/cuemby/meshcore/pkg/types"
)

// membershipDirectory adapts pkg/overlay's Peer-shaped membership view to
// the narrow gossip.Directory the transport needs, resolving each active
// peer's first candidate endpoint as its HTTP base URL.
type membershipDirectory struct {
	membership *overlay.Membership
}

func (d membershipDirectory) ActivePeers() []gossip.PeerEndpoint {
	active := d.membership.ActivePeers()
	peers := make([]gossip.PeerEndpoint, 0, len(active))
	for _, p := range active {
		if len(p.Candidates) == 0 {
			continue
		}
		peers = append(peers, gossip.PeerEndpoint{
			Address: p.NodeID,
			BaseURL: "https://" + p.Candidates[0],
		})
	}
	return peers
}

func (d membershipDirectory) IsKnownNonDisabled(addr types.Address) bool {
	return d.membership.IsKnownNonDisabled(addr)
}
