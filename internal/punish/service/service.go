// Package service orchestrates the punishment core: read-through and
// write-through between the local cache and the durable store, invalidation
// fan-out over the bus, and effective-punishment resolution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"netban/internal/audit"
	"netban/internal/punish/bus"
	"netban/internal/punish/cache"
	"netban/internal/punish/metrics"
	"netban/internal/punish/models"
	"netban/internal/punish/store"
	"netban/pkg/domain"
	"netban/pkg/platform/sentinel"
)

// Config carries the per-node knobs the service does not own.
type Config struct {
	// NodeID identifies this node in event origins and the audit journal.
	NodeID string
	// DegradedTTL is the tighter cache bound applied while the bus is down.
	DegradedTTL time.Duration
	// FetchTimeout bounds the detached store fetch behind a cache miss.
	FetchTimeout time.Duration
}

// Service is constructed once per process with explicit handles to its
// collaborators and threaded to adapters; there is no ambient singleton.
type Service struct {
	cfg     Config
	store   store.Store
	cache   cache.Cache
	bus     bus.Bus
	journal audit.Journal
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	group singleflight.Group

	// applyMu serializes event application so the revision compare and the
	// cache write behave as one step. Events arrive concurrently from the
	// bus receive loop and from local publishes.
	applyMu sync.Mutex

	mu          sync.RWMutex
	subscribers []func(models.InvalidationEvent)

	now func() time.Time
}

// New wires the service and registers its event handler on the bus.
func New(cfg Config, st store.Store, c cache.Cache, b bus.Bus, journal audit.Journal, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.DegradedTTL <= 0 {
		cfg.DegradedTTL = 5 * time.Second
	}
	if journal == nil {
		journal = audit.Nop{}
	}
	s := &Service{
		cfg:     cfg,
		store:   st,
		cache:   c,
		bus:     b,
		journal: journal,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("netban/punish"),
		now:     time.Now,
	}
	b.Subscribe(s.handleEvent)
	return s
}

// CheckActive resolves the subject's effective punishments, serving from the
// local cache when fresh and falling back to the durable store on a miss.
// Concurrent misses for one key share a single store fetch; the fetch runs
// on a detached context so one caller giving up does not strand the others.
func (s *Service) CheckActive(ctx context.Context, subject domain.SubjectKey) (*models.Effective, error) {
	ctx, span := s.tracer.Start(ctx, "punish.CheckActive")
	defer span.End()

	start := s.now()
	defer func() { s.metrics.ObserveCheck(s.now().Sub(start)) }()

	if entry, ok := s.cacheGet(subject); ok {
		s.count(func(m *metrics.Metrics) { m.CacheHits.Inc() })
		return entry.View.Prune(s.now()), nil
	}
	s.count(func(m *metrics.Metrics) { m.CacheMisses.Inc() })

	ch := s.group.DoChan(subject.String(), func() (any, error) {
		return s.fetchAndFill(subject)
	})

	select {
	case <-ctx.Done():
		// The singleflight fill keeps running and will populate the cache
		// for the remaining waiters.
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Effective).Prune(s.now()), nil
	}
}

// fetchAndFill is the single in-flight fetch per subject. It deliberately
// does not inherit any caller's context.
func (s *Service) fetchAndFill(subject domain.SubjectKey) (*models.Effective, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	s.count(func(m *metrics.Metrics) { m.StoreFetches.Inc() })
	records, err := s.store.GetActive(ctx, subject)
	if err != nil {
		s.count(func(m *metrics.Metrics) { m.StoreFailures.Inc() })
		return nil, fmt.Errorf("check active %s: %w", subject, err)
	}

	view := &models.Effective{Subject: subject, Records: records}

	// An event applied while the fetch was in flight may have left a newer
	// entry behind; the fill must not roll it back.
	s.applyMu.Lock()
	if existing, ok := s.cache.Get(subject); !ok || existing.Revision <= view.MaxRevision() {
		s.cache.Put(subject, cache.Entry{
			View:     view,
			StoredAt: s.now(),
			Revision: view.MaxRevision(),
		})
	}
	s.applyMu.Unlock()
	return view, nil
}

// Issue persists a punishment and broadcasts its invalidation event. The
// event is published only after the durable write commits; a failed write
// publishes nothing and surfaces the typed failure. Kick is ephemeral: it
// skips the store and is broadcast only.
func (s *Service) Issue(ctx context.Context, p *models.Punishment) (*models.Punishment, error) {
	ctx, span := s.tracer.Start(ctx, "punish.Issue")
	defer span.End()

	if p.Reason == "" {
		p.Reason = models.DefaultReason(p.Kind)
	}
	if p.IssuedAt.IsZero() {
		p.IssuedAt = s.now()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if !p.Kind.Persistent() {
		ev := models.InvalidationEvent{
			Subject: p.Subject,
			Kind:    p.Kind,
			Op:      models.OpUpsert,
			Origin:  s.cfg.NodeID,
			Record:  p,
		}
		s.publish(ctx, ev)
		s.journal.Record(ctx, s.auditEvent(audit.ActionIssue, p))
		return p, nil
	}

	stored, err := s.store.Put(ctx, p)
	if err != nil {
		s.count(func(m *metrics.Metrics) { m.StoreFailures.Inc() })
		return nil, fmt.Errorf("issue %s %s: %w", p.Kind, p.Subject, err)
	}

	ev := models.InvalidationEvent{
		Subject:  stored.Subject,
		Kind:     stored.Kind,
		Revision: stored.Revision,
		Op:       models.OpUpsert,
		Origin:   s.cfg.NodeID,
		Record:   stored,
	}
	s.publish(ctx, ev)
	s.journal.Record(ctx, s.auditEvent(audit.ActionIssue, stored))
	return stored, nil
}

// Lift revokes the active record of the given kind. Revocation is
// idempotent: losing the race to another lifter, or lifting a subject that
// was never punished, both count as success — the punishment is not active
// either way.
func (s *Service) Lift(ctx context.Context, subject domain.SubjectKey, kind models.Kind, by domain.Operator) error {
	ctx, span := s.tracer.Start(ctx, "punish.Lift")
	defer span.End()

	at := s.now()
	lifted, err := s.store.Lift(ctx, subject, kind, by, at)
	if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
		s.logger.Debug("lift was a no-op", "subject", subject, "kind", kind, "reason", err)
		return nil
	}
	if err != nil {
		s.count(func(m *metrics.Metrics) { m.StoreFailures.Inc() })
		return fmt.Errorf("lift %s %s: %w", kind, subject, err)
	}

	ev := models.InvalidationEvent{
		Subject:  subject,
		Kind:     kind,
		Revision: lifted.Revision,
		Op:       models.OpLift,
		Origin:   s.cfg.NodeID,
	}
	s.publish(ctx, ev)
	s.journal.Record(ctx, s.auditEvent(audit.ActionLift, lifted))
	return nil
}

// Subscribe registers an adapter callback invoked after an event has been
// applied to the local cache. Used for things like kicking an online player
// the moment a global ban lands from another node.
func (s *Service) Subscribe(fn func(models.InvalidationEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// publish broadcasts the event and applies it locally through the same
// handler remote nodes run. The local application makes read-your-writes
// hold on the origin even when bus delivery is asynchronous; handleEvent
// drops the origin's own bus echo by node ID.
func (s *Service) publish(ctx context.Context, ev models.InvalidationEvent) {
	s.applyEvent(ev)
	if err := s.bus.Publish(ctx, ev); err != nil {
		// The write is durably committed; other nodes will converge via
		// their cache TTL at the latest.
		s.count(func(m *metrics.Metrics) { m.PublishErrors.Inc() })
		s.logger.Warn("invalidation publish failed",
			"subject", ev.Subject, "op", ev.Op, "error", err)
	}
}

// handleEvent is the bus subscription entry point. It never queries the
// durable store: the handler must stay non-blocking. The origin's own
// publishes echo back on the bus; those were already applied synchronously
// in publish, so replaying them would notify subscribers twice.
func (s *Service) handleEvent(ev models.InvalidationEvent) {
	s.count(func(m *metrics.Metrics) { m.EventsReceived.Inc() })
	if ev.Origin == s.cfg.NodeID {
		return
	}
	s.applyEvent(ev)
}

func (s *Service) applyEvent(ev models.InvalidationEvent) {
	if ev.Kind == models.KindKick {
		s.notify(ev)
		return
	}

	s.applyMu.Lock()
	applied := s.applyToCache(ev)
	s.applyMu.Unlock()
	if !applied {
		s.count(func(m *metrics.Metrics) { m.EventsStale.Inc() })
		return
	}
	s.notify(ev)
}

// applyToCache updates the cached view in place from the event payload.
// Reports false when the revision guard rejected the event as stale.
func (s *Service) applyToCache(ev models.InvalidationEvent) bool {
	entry, ok := s.cacheGet(ev.Subject)
	if !ok {
		// Nothing cached; the next read fills from the store. Expire events
		// for uncached subjects are still fresh news for subscribers.
		return true
	}

	switch ev.Op {
	case models.OpUpsert:
		if entry.Revision >= ev.Revision {
			return false
		}
		if ev.Record == nil {
			// Payload-less upsert: all we can do is drop the entry.
			s.cache.InvalidateIfStale(ev.Subject, ev.Revision)
			return true
		}
		kept := make([]*models.Punishment, 0, len(entry.View.Records)+1)
		for _, r := range entry.View.Records {
			if r.Kind != ev.Kind {
				kept = append(kept, r)
			}
		}
		kept = append(kept, ev.Record)
		s.cache.Put(ev.Subject, cache.Entry{
			View:     &models.Effective{Subject: ev.Subject, Records: kept},
			StoredAt: s.now(),
			Revision: ev.Revision,
		})
		return true

	case models.OpLift:
		if entry.Revision >= ev.Revision {
			return false
		}
		kept := make([]*models.Punishment, 0, len(entry.View.Records))
		for _, r := range entry.View.Records {
			if r.Kind != ev.Kind {
				kept = append(kept, r)
			}
		}
		s.cache.Put(ev.Subject, cache.Entry{
			View:     &models.Effective{Subject: ev.Subject, Records: kept},
			StoredAt: s.now(),
			Revision: ev.Revision,
		})
		return true

	case models.OpExpire:
		// Expiry does not mint a new revision: it is derived from time, and
		// pruning by the local clock can only remove records any read would
		// prune anyway. No staleness guard needed.
		s.cache.Put(ev.Subject, cache.Entry{
			View:     entry.View.Prune(s.now()),
			StoredAt: s.now(),
			Revision: entry.Revision,
		})
		return true
	}
	return false
}

func (s *Service) notify(ev models.InvalidationEvent) {
	s.mu.RLock()
	subs := make([]func(models.InvalidationEvent), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// cacheGet applies the degraded TTL while the bus is disconnected, bounding
// staleness when invalidation events may be getting lost.
func (s *Service) cacheGet(subject domain.SubjectKey) (cache.Entry, bool) {
	if !s.bus.Connected() {
		return s.cache.GetWithin(subject, s.cfg.DegradedTTL)
	}
	return s.cache.Get(subject)
}

func (s *Service) auditEvent(action audit.Action, p *models.Punishment) audit.Event {
	op := p.IssuedBy
	if action == audit.ActionLift && p.LiftedBy != nil {
		op = *p.LiftedBy
	}
	return audit.Event{
		Action:    action,
		Subject:   p.Subject,
		Kind:      p.Kind,
		Scope:     p.Scope,
		ServerID:  p.ServerID,
		Reason:    p.Reason,
		Operator:  op,
		Revision:  p.Revision,
		Node:      s.cfg.NodeID,
		Timestamp: s.now(),
	}
}

func (s *Service) count(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}
