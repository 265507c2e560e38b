// Package store defines the durable punishment repository contract. The
// store is the single source of truth; caches are disposable projections of
// it. Implementations assign revisions — nothing else is allowed to.
package store

import (
	"context"
	"time"

	"netban/internal/punish/models"
	"netban/pkg/domain"
)

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

// Store is the durable store contract. Every implementation maps backend
// outages to sentinel.ErrStoreUnavailable (wrapped) — an unreachable store
// must never read as "no punishment".
type Store interface {
	// Put inserts a record, atomically superseding any active record of the
	// same subject and kind. Returns the stored record carrying its assigned
	// revision. Two genuinely concurrent Puts for the same subject and kind
	// commit exactly one; the loser gets sentinel.ErrConflict.
	Put(ctx context.Context, p *models.Punishment) (*models.Punishment, error)

	// GetActive returns all records for the subject that are neither lifted
	// nor expired at read time, across kinds. An empty slice is a normal
	// result, not an error.
	GetActive(ctx context.Context, subject domain.SubjectKey) ([]*models.Punishment, error)

	// Lift marks the active record of the given kind as lifted, conditioned
	// on it still being active. sentinel.ErrConflict when a race already
	// lifted or expired it; sentinel.ErrNotFound when no record exists.
	Lift(ctx context.Context, subject domain.SubjectKey, kind models.Kind, by domain.Operator, at time.Time) (*models.Punishment, error)

	// FindExpired returns up to limit records whose natural expiry has
	// passed and that have not yet been swept, marking them swept so each is
	// returned once.
	FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Punishment, error)
}
