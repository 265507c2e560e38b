// Package bus is the invalidation transport between nodes. It is a pure
// pipe: it does not interpret payloads, does not persist them, and a node
// that was disconnected simply misses what was published meanwhile — the
// cache TTL bounds the damage.
package bus

import (
	"context"

	"netban/internal/punish/models"
)

// Handler receives one event per delivery, in the order received on the
// node's connection. Handlers must not block.
type Handler func(models.InvalidationEvent)

// Bus is the publish/subscribe contract. Delivery is best-effort,
// at-least-once while connected; no cross-node total order.
type Bus interface {
	Publish(ctx context.Context, ev models.InvalidationEvent) error
	Subscribe(h Handler)
	// Connected reports whether the transport is currently up. The service
	// shortens the cache TTL while it is not.
	Connected() bool
	Close() error
}
