// Package memory is the in-memory store used by tests and single-node
// development runs. It mirrors the postgres store's observable behavior,
// including supersede-on-put and conditional lifts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"netban/internal/punish/models"
	"netban/pkg/domain"
	"netban/pkg/platform/sentinel"
)

type record struct {
	p     models.Punishment
	swept bool
}

// Store keeps full punishment history per subject behind one mutex. The
// mutex also stands in for the database's transactional guarantees.
type Store struct {
	mu        sync.Mutex
	records   map[domain.SubjectKey][]*record
	revisions map[domain.SubjectKey]int64
}

func New() *Store {
	return &Store{
		records:   make(map[domain.SubjectKey][]*record),
		revisions: make(map[domain.SubjectKey]int64),
	}
}

func (s *Store) Put(ctx context.Context, p *models.Punishment) (*models.Punishment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := p.IssuedAt
	// Supersede the active record of the same kind, if any.
	for _, r := range s.records[p.Subject] {
		if r.p.Kind == p.Kind && r.p.Active(now) {
			at := now
			by := p.IssuedBy
			r.p.LiftedAt = &at
			r.p.LiftedBy = &by
		}
	}

	s.revisions[p.Subject]++
	stored := *p
	stored.Revision = s.revisions[p.Subject]
	s.records[p.Subject] = append(s.records[p.Subject], &record{p: stored})

	out := stored
	return &out, nil
}

func (s *Store) GetActive(ctx context.Context, subject domain.SubjectKey) ([]*models.Punishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var active []*models.Punishment
	for _, r := range s.records[subject] {
		if r.p.Active(now) {
			p := r.p
			active = append(active, &p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Revision < active[j].Revision })
	return active, nil
}

func (s *Store) Lift(ctx context.Context, subject domain.SubjectKey, kind models.Kind, by domain.Operator, at time.Time) (*models.Punishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *record
	for _, r := range s.records[subject] {
		if r.p.Kind != kind {
			continue
		}
		if latest == nil || r.p.Revision > latest.p.Revision {
			latest = r
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	if !latest.p.Active(at) {
		return nil, sentinel.ErrConflict
	}

	// Lifting mints a new per-subject revision so the lift event outranks
	// cache entries that reflect the record's issue.
	s.revisions[subject]++
	latest.p.Revision = s.revisions[subject]
	latest.p.LiftedAt = &at
	liftedBy := by
	latest.p.LiftedBy = &liftedBy

	out := latest.p
	return &out, nil
}

func (s *Store) FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Punishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.Punishment
	for _, recs := range s.records {
		for _, r := range recs {
			if r.swept || r.p.LiftedAt != nil {
				continue
			}
			if r.p.ExpiresAt != nil && !r.p.ExpiresAt.After(before) {
				r.swept = true
				p := r.p
				expired = append(expired, &p)
				if limit > 0 && len(expired) >= limit {
					return expired, nil
				}
			}
		}
	}
	return expired, nil
}
