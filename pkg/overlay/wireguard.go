package overlay

import (
	"fmt"
	"net"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// DeviceSync pushes the overlay's current Peer set onto a local WireGuard
// interface using wgctrl.New() and wgtypes.Config.
type DeviceSync struct {
	client    *wgctrl.Client
	ifaceName string
}

// NewDeviceSync opens a wgctrl client for the named interface (e.g. "wg0").
func NewDeviceSync(ifaceName string) (*DeviceSync, error) {
	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("overlay: open wgctrl client: %w", err)
	}
	return &DeviceSync{client: client, ifaceName: ifaceName}, nil
}

// Close releases the underlying wgctrl client.
func (d *DeviceSync) Close() error {
	return d.client.Close()
}

// PeerEndpoint is the minimal shape DeviceSync needs to reconcile one
// active peer onto the interface.
type PeerEndpoint struct {
	PublicKeyHex string
	MeshIP       net.IP
	Endpoint     *net.UDPAddr // nil if not yet reachable
}

// Reconcile replaces the interface's peer list with exactly the given
// active peers (full-reconciliation, not incremental — the overlay's
// active-peer set already changes rarely relative to the traversal loop).
func (d *DeviceSync) Reconcile(listenPort int, active []PeerEndpoint) error {
	peerConfigs := make([]wgtypes.PeerConfig, 0, len(active))
	for _, p := range active {
		pubKey, err := wgtypes.ParseKey(p.PublicKeyHex)
		if err != nil {
			return fmt.Errorf("overlay: parse peer public key %q: %w", p.PublicKeyHex, err)
		}
		allowedIPs := []net.IPNet{{IP: p.MeshIP, Mask: net.CIDRMask(32, 32)}}
		peerConfigs = append(peerConfigs, wgtypes.PeerConfig{
			PublicKey:         pubKey,
			Endpoint:          p.Endpoint,
			AllowedIPs:        allowedIPs,
			ReplaceAllowedIPs: true,
		})
	}

	cfg := wgtypes.Config{
		ListenPort:   &listenPort,
		ReplacePeers: true,
		Peers:        peerConfigs,
	}
	if err := d.client.ConfigureDevice(d.ifaceName, cfg); err != nil {
		return fmt.Errorf("overlay: configure device %s: %w", d.ifaceName, err)
	}
	return nil
}
