// Package gossip implements the authenticated HTTP broadcast transport
// that carries Event Queue ops between peers. Every outgoing op is
// signed with the local node's secp256k1 key; every incoming op is
// verified and attributed to its recovered signer before reaching a
// handler. Broadcast is fire-and-forget: best-effort per subscriber,
// failures logged rather than retried.
package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
)

// PeerEndpoint is one broadcast destination.
type PeerEndpoint struct {
	Address types.Address
	BaseURL string // e.g. "https://10.8.0.4:7946"
}

// Directory is the narrow peer-membership view gossip needs: who to
// broadcast to, and who is allowed to broadcast to us. cmd/meshcore
// supplies the real implementation (membershipDirectory), adapting
// overlay.Membership's peer view.
type Directory interface {
	ActivePeers() []PeerEndpoint
	IsKnownNonDisabled(addr types.Address) bool
}

// Transport is the authenticated broadcast channel. It implements
// queue.Broadcaster so an Event Queue can gossip its Operation writes
// without depending on this package directly.
type Transport struct {
	signer *signing.KeyPair
	peers Directory
	client *http.Client
	logf func(format string, args ...interface{})
}

// New constructs a Transport signing outgoing ops with signer and
// resolving destinations through peers.
func New(signer *signing.KeyPair, peers Directory) *Transport {
	return &Transport{
		signer: signer,
		peers: peers,
		client: &http.Client{},
		logf: func(string, ...interface{}) {},
	}
}

// SetLogf installs a logging hook for per-peer broadcast failures.
func (t *Transport) SetLogf(logf func(format string, args ...interface{})) {
	t.logf = logf
}

// Broadcast serializes msg, signs the body, and POSTs it to every active,
// non-disabled peer's broadcast endpoint for msg.Topic, concurrently and
// fire-and-forget. Individual peer failures are logged and otherwise
// ignored; a failed delivery is not re-sent.
func (t *Transport) Broadcast(ctx context.Context, msg queue.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gossip: encode message: %w", err)
	}
	sig, recID, err := signing.Sign(t.signer.Private, body)
	if err != nil {
		return fmt.Errorf("gossip: sign broadcast body: %w", err)
	}
	header := signing.HeaderValue(sig, recID, body)

	var wg sync.WaitGroup
	for _, peer := range t.peers.ActivePeers() {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.postTo(ctx, peer, msg.Topic, body, header); err != nil {
				t.logf("gossip: broadcast to %s (%s) failed: %v", peer.Address, peer.BaseURL, err)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (t *Transport) postTo(ctx context.Context, peer PeerEndpoint, topic string, body []byte, header string) error {
	url := fmt.Sprintf("%s/gossip/%s", peer.BaseURL, topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}
