package bus

import (
	"context"
	"sync"

	"netban/internal/punish/models"

	"netban/pkg/platform/sentinel"
)

// MemoryNetwork connects any number of in-process bus endpoints. One
// endpoint per simulated node; publishing on any endpoint delivers to every
// endpoint, the origin included, which is exactly what Redis pub/sub does.
// Used in tests and single-node deployments.
type MemoryNetwork struct {
	mu    sync.Mutex
	nodes []*MemoryBus
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{}
}

// Join creates a new endpoint on the network.
func (n *MemoryNetwork) Join() *MemoryBus {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := &MemoryBus{network: n, connected: true}
	n.nodes = append(n.nodes, b)
	return b
}

func (n *MemoryNetwork) broadcast(ev models.InvalidationEvent) {
	n.mu.Lock()
	nodes := make([]*MemoryBus, len(n.nodes))
	copy(nodes, n.nodes)
	n.mu.Unlock()

	for _, node := range nodes {
		node.deliver(ev)
	}
}

// MemoryBus is one node's endpoint on a MemoryNetwork. Delivery is
// synchronous and in publish order, which keeps tests deterministic.
type MemoryBus struct {
	mu        sync.Mutex
	network   *MemoryNetwork
	handlers  []Handler
	connected bool
}

func (b *MemoryBus) Publish(ctx context.Context, ev models.InvalidationEvent) error {
	b.mu.Lock()
	up := b.connected
	b.mu.Unlock()
	if !up {
		return sentinel.ErrBusDisconnected
	}
	b.network.broadcast(ev)
	return nil
}

func (b *MemoryBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *MemoryBus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// SetConnected simulates transport loss for tests.
func (b *MemoryBus) SetConnected(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = up
}

func (b *MemoryBus) Close() error {
	b.SetConnected(false)
	return nil
}

func (b *MemoryBus) deliver(ev models.InvalidationEvent) {
	b.mu.Lock()
	up := b.connected
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	if !up {
		return
	}
	for _, h := range handlers {
		h(ev)
	}
}
