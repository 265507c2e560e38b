package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"netban/pkg/domain"
)

const subjectKeyPrefix = "netban:subject:"

// RedisCache is the shared cache tier: several proxies in front of the same
// network can point at one Redis and share fills. It satisfies the same
// contract as the in-process LRU; Redis handles both the TTL and the size
// bound (maxmemory policy). Errors degrade to misses — a flaky cache tier
// must never fail a read, the durable store remains the fallback.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	now func() time.Time
}

// NewRedis builds a Redis-backed cache with the given per-entry TTL.
func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger, now: time.Now}
}

func (c *RedisCache) Get(subject domain.SubjectKey) (Entry, bool) {
	return c.GetWithin(subject, c.ttl)
}

func (c *RedisCache) GetWithin(subject domain.SubjectKey, maxAge time.Duration) (Entry, bool) {
	if maxAge > c.ttl {
		maxAge = c.ttl
	}
	ctx, cancel := c.opContext()
	defer cancel()

	raw, err := c.client.Get(ctx, subjectKeyPrefix+subject.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		c.logger.Warn("shared cache read failed", "subject", subject, "error", err)
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("shared cache entry corrupt, dropping", "subject", subject, "error", err)
		c.Invalidate(subject)
		return Entry{}, false
	}
	if c.now().Sub(entry.StoredAt) >= maxAge {
		return Entry{}, false
	}
	return entry, true
}

func (c *RedisCache) Put(subject domain.SubjectKey, entry Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("shared cache entry encode failed", "subject", subject, "error", err)
		return
	}
	ctx, cancel := c.opContext()
	defer cancel()
	if err := c.client.Set(ctx, subjectKeyPrefix+subject.String(), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("shared cache write failed", "subject", subject, "error", err)
	}
}

func (c *RedisCache) Invalidate(subject domain.SubjectKey) {
	ctx, cancel := c.opContext()
	defer cancel()
	if err := c.client.Del(ctx, subjectKeyPrefix+subject.String()).Err(); err != nil {
		c.logger.Warn("shared cache invalidate failed", "subject", subject, "error", err)
	}
}

// InvalidateIfStale does a read-compare-delete. The window between compare
// and delete is benign here: the worst case is deleting an entry a newer
// writer just stored, which costs one refill.
func (c *RedisCache) InvalidateIfStale(subject domain.SubjectKey, revision int64) bool {
	entry, ok := c.Get(subject)
	if !ok {
		return true
	}
	if entry.Revision >= revision {
		return false
	}
	c.Invalidate(subject)
	return true
}

func (c *RedisCache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 250*time.Millisecond)
}
