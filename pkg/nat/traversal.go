package nat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/conncache"
)

// minDirectAttempts: once a peer has accumulated this many failed
// direct-dial attempts, traversal switches to relay mode.
const minDirectAttempts = 3

const directDialTimeout = 3 * time.Second

// DirectDialer performs a UDP handshake against a single endpoint.
type DirectDialer interface {
	DialDirect(ctx context.Context, endpoint string) error
}

// RelayDialer establishes a relayed session through a candidate relay.
type RelayDialer interface {
	ConnectViaRelay(ctx context.Context, relayPubkey, peerPubkey string, capabilities []string, region string) (sessionID string, err error)
}

// Result is what a successful traversal established.
type Result struct {
	Direct bool
	Endpoint string // direct: the dialed endpoint; relay: the relay's endpoint
	SessionID string // set only for relay sessions
}

// Traverser orchestrates direct-dial-then-relay-fallback connectivity.
type Traverser struct {
	cache *conncache.Cache
	registry *RelayRegistry
	direct DirectDialer
	relay RelayDialer

	mu sync.Mutex
	failedAttempts map[string]int // peer pubkey -> cumulative failed direct attempts
	inFlight map[string]*inflightCall // peer pubkey -> coalesced attempt
}

type inflightCall struct {
	done chan struct{}
	result Result
	err error
}

// NewTraverser wires a Traverser to its Connection Cache, Relay Registry,
// and dial implementations.
func NewTraverser(cache *conncache.Cache, registry *RelayRegistry, direct DirectDialer, relay RelayDialer) *Traverser {
	return &Traverser{
		cache: cache,
		registry: registry,
		direct: direct,
		relay: relay,
		failedAttempts: make(map[string]int),
		inFlight: make(map[string]*inflightCall),
	}
}

// Traverse establishes connectivity to peerPubkey, trying cache-prioritized
// direct endpoints first and falling back to a relay once the peer has
// accumulated minDirectAttempts failures. Concurrent calls for the same
// peer coalesce onto a single in-flight attempt.
func (t *Traverser) Traverse(ctx context.Context, peerPubkey string, candidates []string, requiredCapabilities []string, region string) (Result, error) {
	t.mu.Lock()
	if existing, ok := t.inFlight[peerPubkey]; ok {
		t.mu.Unlock()
		select {
		case <-existing.done:
			return existing.result, existing.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	t.inFlight[peerPubkey] = call
	t.mu.Unlock()

	call.result, call.err = t.traverseOnce(ctx, peerPubkey, candidates, requiredCapabilities, region)

	t.mu.Lock()
	delete(t.inFlight, peerPubkey)
	t.mu.Unlock()
	close(call.done)

	return call.result, call.err
}

func (t *Traverser) traverseOnce(ctx context.Context, peerPubkey string, candidates []string, requiredCapabilities []string, region string) (Result, error) {
	t.mu.Lock()
	attemptsSoFar := t.failedAttempts[peerPubkey]
	t.mu.Unlock()

	if attemptsSoFar < minDirectAttempts {
		ordered := t.cache.Prioritize(peerPubkey, candidates)
		if endpoint, ok := t.attemptDirect(ctx, ordered); ok {
			t.cache.RecordSuccess(peerPubkey, endpoint)
			t.mu.Lock()
			delete(t.failedAttempts, peerPubkey)
			t.mu.Unlock()
			return Result{Direct: true, Endpoint: endpoint}, nil
		}

		t.mu.Lock()
		t.failedAttempts[peerPubkey] += len(ordered)
		attemptsSoFar = t.failedAttempts[peerPubkey]
		t.mu.Unlock()

		if attemptsSoFar < minDirectAttempts {
			return Result{}, fmt.Errorf("nat: direct dial failed for %s, retrying before relay fallback", peerPubkey)
		}
	}

	return t.attemptRelay(ctx, peerPubkey, requiredCapabilities, region)
}

// attemptDirect races up to len(candidates) direct dials and returns the
// first to succeed.
func (t *Traverser) attemptDirect(ctx context.Context, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	type attemptResult struct {
		endpoint string
		ok bool
	}
	results := make(chan attemptResult, len(candidates))

	var wg sync.WaitGroup
	for _, endpoint := range candidates {
		endpoint := endpoint
		wg.Add(1)
		go func() {
			defer wg.Done()
			dialCtx, cancel := context.WithTimeout(ctx, directDialTimeout)
			defer cancel()
			err := t.direct.DialDirect(dialCtx, endpoint)
			results <- attemptResult{endpoint: endpoint, ok: err == nil}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.ok {
			return res.endpoint, true
		}
	}
	return "", false
}

func (t *Traverser) attemptRelay(ctx context.Context, peerPubkey string, requiredCapabilities []string, region string) (Result, error) {
	relays := t.registry.FindRelays(region, requiredCapabilities, 0)
	sort.Slice(relays, func(i, j int) bool {
		return relays[i].Reliability > relays[j].Reliability
	})

	for _, relay := range relays {
		sessionID, err := t.relay.ConnectViaRelay(ctx, relay.PublicKey, peerPubkey, requiredCapabilities, region)
		if err != nil {
			t.registry.DecrementReliability(relay.PublicKey)
			continue
		}
		endpoint := ""
		if len(relay.Endpoints) > 0 {
			endpoint = relay.Endpoints[0]
		}
		t.cache.RecordSuccess(peerPubkey, endpoint)
		return Result{Endpoint: endpoint, SessionID: sessionID}, nil
	}

	return Result{}, fmt.Errorf("nat: no relay reachable for %s", peerPubkey)
}
