// Package postgres is the production durable store. A partial unique index
// on (subject_key, kind) WHERE active enforces the single-active invariant
// at the database, not in process: concurrent writers race on the index and
// exactly one commits.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"netban/internal/punish/models"
	"netban/pkg/domain"
	"netban/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS punishments (
    id             BIGSERIAL PRIMARY KEY,
    subject_key    TEXT        NOT NULL,
    kind           TEXT        NOT NULL,
    scope          TEXT        NOT NULL,
    server_id      TEXT        NOT NULL DEFAULT '',
    reason         TEXT        NOT NULL,
    issued_by_name TEXT        NOT NULL,
    issued_by_id   UUID        NOT NULL,
    issued_at      TIMESTAMPTZ NOT NULL,
    expires_at     TIMESTAMPTZ,
    lifted_at      TIMESTAMPTZ,
    lifted_by_name TEXT,
    lifted_by_id   UUID,
    revision       BIGINT      NOT NULL,
    active         BOOLEAN     NOT NULL DEFAULT TRUE,
    CONSTRAINT punishments_subject_revision UNIQUE (subject_key, revision)
);

CREATE UNIQUE INDEX IF NOT EXISTS punishments_one_active
    ON punishments (subject_key, kind) WHERE active;

CREATE INDEX IF NOT EXISTS punishments_active_subject
    ON punishments (subject_key) WHERE active;

CREATE INDEX IF NOT EXISTS punishments_expiry
    ON punishments (expires_at) WHERE active AND expires_at IS NOT NULL;
`

// EnsureSchema creates the punishments table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrapErr("ensure schema", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, p *models.Punishment) (*models.Punishment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("begin put", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Supersede the currently-active record of the same kind, if any. The
	// new record's issuer is recorded as the lifter.
	_, err = tx.ExecContext(ctx, `
		UPDATE punishments
		SET active = FALSE, lifted_at = $1, lifted_by_name = $2, lifted_by_id = $3
		WHERE subject_key = $4 AND kind = $5 AND active`,
		p.IssuedAt, p.IssuedBy.Name, p.IssuedBy.ID, p.Subject.String(), string(p.Kind))
	if err != nil {
		return nil, wrapErr("supersede active record", err)
	}

	stored := *p
	err = tx.QueryRowContext(ctx, `
		INSERT INTO punishments (
			subject_key, kind, scope, server_id, reason,
			issued_by_name, issued_by_id, issued_at, expires_at, revision
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			(SELECT COALESCE(MAX(revision), 0) + 1 FROM punishments WHERE subject_key = $1))
		RETURNING revision`,
		p.Subject.String(), string(p.Kind), string(p.Scope), p.ServerID, p.Reason,
		p.IssuedBy.Name, p.IssuedBy.ID, p.IssuedAt, nullTime(p.ExpiresAt),
	).Scan(&stored.Revision)
	if err != nil {
		return nil, wrapErr("insert punishment", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("commit put", err)
	}
	return &stored, nil
}

func (s *Store) GetActive(ctx context.Context, subject domain.SubjectKey) ([]*models.Punishment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_key, kind, scope, server_id, reason,
		       issued_by_name, issued_by_id, issued_at, expires_at,
		       lifted_at, lifted_by_name, lifted_by_id, revision
		FROM punishments
		WHERE subject_key = $1 AND active
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY revision`,
		subject.String())
	if err != nil {
		return nil, wrapErr("query active punishments", err)
	}
	defer rows.Close()

	var active []*models.Punishment
	for rows.Next() {
		p, err := scanPunishment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan punishment: %w", err)
		}
		active = append(active, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate active punishments", err)
	}
	return active, nil
}

func (s *Store) Lift(ctx context.Context, subject domain.SubjectKey, kind models.Kind, by domain.Operator, at time.Time) (*models.Punishment, error) {
	// Lifting mints a new per-subject revision so the lift event outranks
	// cache entries that reflect the record's issue.
	row := s.db.QueryRowContext(ctx, `
		UPDATE punishments
		SET active = FALSE, lifted_at = $1, lifted_by_name = $2, lifted_by_id = $3,
		    revision = (SELECT COALESCE(MAX(revision), 0) + 1
		                FROM punishments WHERE subject_key = $4)
		WHERE subject_key = $4 AND kind = $5 AND active
		  AND (expires_at IS NULL OR expires_at > $1)
		RETURNING subject_key, kind, scope, server_id, reason,
		          issued_by_name, issued_by_id, issued_at, expires_at,
		          lifted_at, lifted_by_name, lifted_by_id, revision`,
		at, by.Name, by.ID, subject.String(), string(kind))

	p, err := scanPunishment(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish "never punished" from "a race got there first".
		var exists bool
		checkErr := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM punishments WHERE subject_key = $1 AND kind = $2
			)`, subject.String(), string(kind)).Scan(&exists)
		if checkErr != nil {
			return nil, wrapErr("check lifted record", checkErr)
		}
		if exists {
			return nil, sentinel.ErrConflict
		}
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("lift punishment", err)
	}
	return p, nil
}

func (s *Store) FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Punishment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		UPDATE punishments
		SET active = FALSE
		WHERE id IN (
			SELECT id FROM punishments
			WHERE active AND expires_at IS NOT NULL AND expires_at <= $1
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING subject_key, kind, scope, server_id, reason,
		          issued_by_name, issued_by_id, issued_at, expires_at,
		          lifted_at, lifted_by_name, lifted_by_id, revision`,
		before, limit)
	if err != nil {
		return nil, wrapErr("sweep expired punishments", err)
	}
	defer rows.Close()

	var expired []*models.Punishment
	for rows.Next() {
		p, err := scanPunishment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired punishment: %w", err)
		}
		expired = append(expired, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate expired punishments", err)
	}
	return expired, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPunishment(row rowScanner) (*models.Punishment, error) {
	var (
		p            models.Punishment
		subject      string
		kind, scope  string
		issuedByID   uuid.UUID
		expiresAt    sql.NullTime
		liftedAt     sql.NullTime
		liftedByName sql.NullString
		liftedByID   uuid.NullUUID
	)
	err := row.Scan(&subject, &kind, &scope, &p.ServerID, &p.Reason,
		&p.IssuedBy.Name, &issuedByID, &p.IssuedAt, &expiresAt,
		&liftedAt, &liftedByName, &liftedByID, &p.Revision)
	if err != nil {
		return nil, err
	}
	p.Subject = domain.SubjectKey(subject)
	p.Kind = models.Kind(kind)
	p.Scope = models.Scope(scope)
	p.IssuedBy.ID = issuedByID
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	if liftedAt.Valid {
		t := liftedAt.Time
		p.LiftedAt = &t
	}
	if liftedByName.Valid || liftedByID.Valid {
		op := domain.Operator{Name: liftedByName.String}
		if liftedByID.Valid {
			op.ID = liftedByID.UUID
		}
		p.LiftedBy = &op
	}
	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// wrapErr classifies driver failures into the sentinel taxonomy. Unique
// violations mean a concurrent writer won the race; connection-class
// failures must surface as ErrStoreUnavailable so callers never mistake an
// outage for an empty result.
func wrapErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return fmt.Errorf("%s: %w: %v", op, sentinel.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
