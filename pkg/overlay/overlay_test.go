package overlay

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestMembership(t *testing.T) (*Membership, *signing.KeyPair) {
	t.Helper()
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	store, err := crdt.NewStore(t.TempDir(), kp, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, kp), kp
}

func TestCreateCIDRRejectsUnknownParent(t *testing.T) {
	m, _ := newTestMembership(t)
	_, err := m.CreateCIDR(types.CIDR{ID: "child", Network: "10.0.1.0/24", ParentID: "missing-parent"})
	require.ErrorIs(t, err, ErrUnknownCIDR)
}

func TestDeleteCIDRFailsWithDescendants(t *testing.T) {
	m, _ := newTestMembership(t)
	_, err := m.CreateCIDR(types.CIDR{ID: "root", Network: "10.0.0.0/16"})
	require.NoError(t, err)
	_, err = m.CreateCIDR(types.CIDR{ID: "child", Network: "10.0.1.0/24", ParentID: "root"})
	require.NoError(t, err)

	_, err = m.DeleteCIDR("root")
	require.ErrorIs(t, err, ErrCIDRHasDescendants)
}

func TestInviteFlowRedemption(t *testing.T) {
	m, adminKP := newTestMembership(t)
	_, err := m.CreateCIDR(types.CIDR{ID: "root", Network: "10.0.0.0/16"})
	require.NoError(t, err)

	// Register the issuer as an admin peer first.
	_, err = m.store.Peers.UpdateLocal("admin-pubkey", types.Peer{
		PublicKey: "admin-pubkey", NodeID: adminKP.Address, CIDRID: "root", IsAdmin: true, Redeemed: true,
	})
	require.NoError(t, err)

	_, err = m.IssueInvite(adminKP.Address, Invite{
		PublicKey:     "new-peer-pubkey",
		CIDRID:        "root",
		ReservedIP:    net.ParseIP("10.0.0.42"),
		InviteExpires: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	joiningKP, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	_, err = m.RedeemInvite("new-peer-pubkey", joiningKP.Address, []string{"1.2.3.4:51820"})
	require.NoError(t, err)

	require.True(t, m.IsKnownNonDisabled(joiningKP.Address))
}

func TestInviteFlowRejectsExpired(t *testing.T) {
	m, adminKP := newTestMembership(t)
	_, err := m.CreateCIDR(types.CIDR{ID: "root", Network: "10.0.0.0/16"})
	require.NoError(t, err)
	_, err = m.store.Peers.UpdateLocal("admin-pubkey", types.Peer{
		PublicKey: "admin-pubkey", NodeID: adminKP.Address, CIDRID: "root", IsAdmin: true, Redeemed: true,
	})
	require.NoError(t, err)

	_, err = m.IssueInvite(adminKP.Address, Invite{
		PublicKey:     "late-peer",
		CIDRID:        "root",
		ReservedIP:    net.ParseIP("10.0.0.43"),
		InviteExpires: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	joiningKP, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	_, err = m.RedeemInvite("late-peer", joiningKP.Address, nil)
	require.Error(t, err)
}

func TestCreateAssociationIsOrderIndependent(t *testing.T) {
	m, _ := newTestMembership(t)
	_, err := m.CreateCIDR(types.CIDR{ID: "a", Network: "10.0.0.0/24"})
	require.NoError(t, err)
	_, err = m.CreateCIDR(types.CIDR{ID: "b", Network: "10.0.1.0/24"})
	require.NoError(t, err)

	_, err = m.CreateAssociation("b", "a")
	require.NoError(t, err)

	assoc, ok := m.store.Associations.Get(types.AssociationKey("a", "b"))
	require.True(t, ok)
	require.Equal(t, "a", assoc.CIDRA)
	require.Equal(t, "b", assoc.CIDRB)
}
