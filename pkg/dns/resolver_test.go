package dns

import (
	"net"
	"testing"

	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/dnszone"
	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, *dnszone.Store, types.Address) {
	t.Helper()
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	store, err := crdt.NewStore(t.TempDir(), kp, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	zone := dnszone.New(store.DNSRecords)
	return NewResolver(zone, "mesh"), zone, kp.Address
}

func TestResolverStripDomain(t *testing.T) {
	r, _, _ := newTestResolver(t)
	require.Equal(t, "nginx", r.stripDomain("nginx.mesh"))
	require.Equal(t, "nginx", r.stripDomain("nginx"))
	require.Equal(t, "web.api", r.stripDomain("web.api.mesh"))
}

func TestResolverMakeFQDN(t *testing.T) {
	r, _, _ := newTestResolver(t)
	require.Equal(t, "nginx.", r.makeFQDN("nginx"))
	require.Equal(t, "nginx.", r.makeFQDN("nginx."))
}

func TestResolveReturnsARecord(t *testing.T) {
	r, zone, owner := newTestResolver(t)
	_, err := zone.Publish(owner, types.DNSRecord{
		Label: "api.mesh", Type: types.RecordA, TTL: 30, IP: net.IPv4(10, 0, 0, 5),
	})
	require.NoError(t, err)

	answers, err := r.Resolve("api.mesh.", dns.TypeA)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	a, ok := answers[0].(*dns.A)
	require.True(t, ok)
	require.True(t, a.A.Equal(net.IPv4(10, 0, 0, 5)))
}

func TestResolveRejectsMismatchedType(t *testing.T) {
	r, zone, owner := newTestResolver(t)
	_, err := zone.Publish(owner, types.DNSRecord{
		Label: "api.mesh", Type: types.RecordA, TTL: 30, IP: net.IPv4(10, 0, 0, 5),
	})
	require.NoError(t, err)

	_, err = r.Resolve("api.mesh.", dns.TypeAAAA)
	require.Error(t, err)
}

func TestResolveCNAMEFollowsTarget(t *testing.T) {
	r, zone, owner := newTestResolver(t)
	_, err := zone.Publish(owner, types.DNSRecord{
		Label: "www.mesh", Type: types.RecordCNAME, TTL: 30, Target: "api.mesh",
	})
	require.NoError(t, err)

	answers, err := r.Resolve("www.mesh.", dns.TypeCNAME)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	cname, ok := answers[0].(*dns.CNAME)
	require.True(t, ok)
	require.Equal(t, "api.mesh.", cname.Target)
}

func TestResolveUnknownNameErrors(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, err := r.Resolve("ghost.mesh.", dns.TypeA)
	require.Error(t, err)
}
