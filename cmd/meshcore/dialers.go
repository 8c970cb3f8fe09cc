package main

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// udpReachabilityDialer is the standalone binary's DirectDialer: it only
// confirms the candidate endpoint resolves and accepts a local route. The
// WireGuard handshake itself is carried by the kernel device pkg/overlay's
// DeviceSync configures, not by this process.
type udpReachabilityDialer struct {
	dialer net.Dialer
}

func (d *udpReachabilityDialer) DialDirect(ctx context.Context, endpoint string) error {
	conn, err := d.dialer.DialContext(ctx, "udp", endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn.Close()
}

// relaySessionDialer issues relay session bookkeeping IDs; the relayed
// tunnel itself is carried by the WireGuard device, not reimplemented here.
type relaySessionDialer struct{}

func (relaySessionDialer) ConnectViaRelay(ctx context.Context, relayPubkey, peerPubkey string, capabilities []string, region string) (string, error) {
	return uuid.NewString(), nil
}
