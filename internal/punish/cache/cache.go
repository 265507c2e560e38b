// Package cache holds the per-node read-optimized projection of punishment
// state. Entries are disposable: losing the whole cache costs latency, never
// data.
package cache

import (
	"time"

	"netban/internal/punish/models"
	"netban/pkg/domain"
)

// Entry wraps a resolved effective-punishment view (which may be empty), the
// time it was stored, and the revision it reflects.
type Entry struct {
	View     *models.Effective `json:"view"`
	StoredAt time.Time         `json:"storedAt"`
	Revision int64             `json:"revision"`
}

// Cache is the local-cache contract. Implementations must be safe for
// concurrent use. TTL enforcement happens on read: entries older than the
// bound are treated as absent.
type Cache interface {
	// Get returns the entry under the implementation's configured TTL.
	Get(subject domain.SubjectKey) (Entry, bool)
	// GetWithin applies a stricter age bound than the configured TTL. The
	// service uses this while the invalidation bus is disconnected.
	GetWithin(subject domain.SubjectKey, maxAge time.Duration) (Entry, bool)
	Put(subject domain.SubjectKey, entry Entry)
	Invalidate(subject domain.SubjectKey)
	// InvalidateIfStale evicts only if the cached revision is below the
	// given one, so a late-arriving stale event cannot clobber a newer
	// entry. Reports whether the key is now absent.
	InvalidateIfStale(subject domain.SubjectKey, revision int64) bool
}
