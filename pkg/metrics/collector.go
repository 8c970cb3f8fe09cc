package metrics

import (
	"time"

	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/overlay"
	"github.com/cuemby/meshcore/pkg/queue"
)

// nodeStaleAfter is how long since a node's last heartbeat before the
// collector buckets it as "stale" rather than "alive".
const nodeStaleAfter = 90 * time.Second

// Collector periodically samples the State Store, Event Queue, and
// Overlay Membership into gauge metrics on a fixed ticker. There's no
// central service/secret registry to poll here; every gauge is derived
// from the CRDT store's own maps instead.
type Collector struct {
	store      *crdt.Store
	queue      *queue.Queue
	membership *overlay.Membership
	topics     []string
	stopCh     chan struct{}
}

// NewCollector builds a Collector sampling store/q/membership, reporting
// queue depth for each of topics.
func NewCollector(store *crdt.Store, q *queue.Queue, membership *overlay.Membership, topics []string) *Collector {
	return &Collector{
		store:      store,
		queue:      q,
		membership: membership,
		topics:     topics,
		stopCh:     make(chan struct{}),
	}
}

// Start begins sampling on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectInstanceMetrics()
	c.collectPeerMetrics()
	c.collectQueueMetrics()
}

func (c *Collector) collectNodeMetrics() {
	now := time.Now()
	counts := map[string]int{"alive": 0, "stale": 0}
	for _, node := range c.store.Nodes.List() {
		if now.Sub(node.LastHeartbeat) > nodeStaleAfter {
			counts["stale"]++
		} else {
			counts["alive"]++
		}
	}
	for status, count := range counts {
		NodesTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectInstanceMetrics() {
	counts := make(map[string]int)
	for _, instance := range c.store.Instances.List() {
		counts[string(instance.Status)]++
	}
	for status, count := range counts {
		InstancesTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectPeerMetrics() {
	counts := map[string]int{"redeemed": 0, "pending": 0, "disabled": 0}
	for _, peer := range c.store.Peers.List() {
		switch {
		case peer.Disabled:
			counts["disabled"]++
		case peer.Redeemed:
			counts["redeemed"]++
		default:
			counts["pending"]++
		}
	}
	for state, count := range counts {
		PeersTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectQueueMetrics() {
	for _, topic := range c.topics {
		msgs, err := c.queue.ReadFrom(topic, 0)
		if err != nil {
			continue
		}
		QueueDepth.WithLabelValues(topic).Set(float64(len(msgs)))
	}
}
