package bus

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"netban/internal/punish/models"
	"netban/pkg/platform/sentinel"
)

// Channel is the single logical pub/sub channel per deployment.
const Channel = "netban:events"

const (
	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 30 * time.Second
)

// RedisBus broadcasts invalidation events over one Redis pub/sub channel.
// Redis pub/sub delivers to every subscriber including the publisher's own
// subscription, so the origin node updates its cache through the same path
// as everyone else.
type RedisBus struct {
	client    *redis.Client
	logger    *slog.Logger
	connected atomic.Bool

	mu       sync.Mutex
	handlers []Handler
}

// NewRedis builds a bus endpoint over an existing Redis client. Run must be
// started for events to be received.
func NewRedis(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, ev models.InvalidationEvent) error {
	payload, err := models.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation event: %w: %v", sentinel.ErrBusDisconnected, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *RedisBus) Connected() bool {
	return b.connected.Load()
}

func (b *RedisBus) Close() error {
	b.connected.Store(false)
	return nil
}

// Run consumes the channel until ctx is cancelled, reconnecting with
// exponential backoff and jitter on connection loss. While disconnected,
// Connected reports false and the service tightens its cache TTL.
func (b *RedisBus) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sub := b.client.Subscribe(ctx, Channel)
		// Wait for the subscription to be confirmed before reporting up.
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			b.logger.Warn("bus subscribe failed, retrying",
				"attempt", attempt, "error", err)
			if !sleepCtx(ctx, backoffDelay(attempt)) {
				return ctx.Err()
			}
			continue
		}

		b.connected.Store(true)
		attempt = 0
		b.logger.Info("bus connected", "channel", Channel)

		err := b.receive(ctx, sub)
		_ = sub.Close()
		b.connected.Store(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		b.logger.Warn("bus connection lost, reconnecting",
			"attempt", attempt, "error", err)
		if !sleepCtx(ctx, backoffDelay(attempt)) {
			return ctx.Err()
		}
	}
}

func (b *RedisBus) receive(ctx context.Context, sub *redis.PubSub) error {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			ev, err := models.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed bus event", "error", err)
				continue
			}
			b.dispatch(ev)
		}
	}
}

func (b *RedisBus) dispatch(ev models.InvalidationEvent) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func backoffDelay(attempt int) time.Duration {
	d := reconnectBase << min(attempt-1, 6)
	if d > reconnectMax {
		d = reconnectMax
	}
	// Full jitter keeps reconnect storms off a recovering Redis.
	return time.Duration(rand.Int63n(int64(d))) + reconnectBase/2
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
