package cache

import (
	"container/list"
	"sync"
	"time"

	"netban/pkg/domain"
)

// LRU is a bounded in-memory cache with least-recently-used eviction and a
// per-entry TTL. The TTL is the safety net against missed invalidation
// events: an entry is never served past it without revalidation. All
// critical sections are O(1) pointer moves, so writers stall readers only
// momentarily; the expensive work on a miss happens outside the lock, in the
// service's singleflight group.
type LRU struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	items      map[domain.SubjectKey]*list.Element

	now func() time.Time // test hook
}

type lruItem struct {
	key   domain.SubjectKey
	entry Entry
}

// NewLRU builds a cache holding at most maxEntries entries, each valid for
// at most ttl after insertion.
func NewLRU(maxEntries int, ttl time.Duration) *LRU {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &LRU{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[domain.SubjectKey]*list.Element),
		now:        time.Now,
	}
}

func (c *LRU) Get(subject domain.SubjectKey) (Entry, bool) {
	return c.GetWithin(subject, c.ttl)
}

func (c *LRU) GetWithin(subject domain.SubjectKey, maxAge time.Duration) (Entry, bool) {
	if maxAge > c.ttl {
		maxAge = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[subject]
	if !ok {
		return Entry{}, false
	}
	item := el.Value.(*lruItem)
	if c.now().Sub(item.entry.StoredAt) >= maxAge {
		c.removeLocked(el)
		return Entry{}, false
	}
	c.ll.MoveToFront(el)
	return item.entry, true
}

func (c *LRU) Put(subject domain.SubjectKey, entry Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[subject]; ok {
		el.Value.(*lruItem).entry = entry
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruItem{key: subject, entry: entry})
	c.items[subject] = el
	if c.ll.Len() > c.maxEntries {
		c.removeLocked(c.ll.Back())
	}
}

func (c *LRU) Invalidate(subject domain.SubjectKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[subject]; ok {
		c.removeLocked(el)
	}
}

func (c *LRU) InvalidateIfStale(subject domain.SubjectKey, revision int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[subject]
	if !ok {
		return true
	}
	if el.Value.(*lruItem).entry.Revision >= revision {
		return false
	}
	c.removeLocked(el)
	return true
}

// Len reports the current entry count.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruItem).key)
}
