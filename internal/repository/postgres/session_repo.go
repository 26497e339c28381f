package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ateliero/configurator/internal/domain/session"
)

var _ session.Registry = (*SessionRepo)(nil)

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const (
	qSessionInsert = `
INSERT INTO sessions (id, user_id, user_agent, ip, refresh_jti, created_at, last_active_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6, $6, $7, FALSE);`

	qSessionByID = `
SELECT id, user_id, user_agent, ip, refresh_jti, created_at, last_active_at, expires_at, revoked
FROM sessions
WHERE id = $1;`

	qSessionIsActive = `
SELECT NOT revoked AND expires_at > NOW()
FROM sessions
WHERE id = $1;`

	qSessionTouch = `
UPDATE sessions SET last_active_at = $2 WHERE id = $1;`

	qSessionListActive = `
SELECT id, user_id, user_agent, ip, refresh_jti, created_at, last_active_at, expires_at, revoked
FROM sessions
WHERE user_id = $1 AND revoked = FALSE AND expires_at > NOW()
ORDER BY last_active_at DESC;`

	qSessionRevoke = `
UPDATE sessions SET revoked = TRUE WHERE id = $1;`

	qSessionRevokeAll = `
UPDATE sessions SET revoked = TRUE
WHERE user_id = $1 AND revoked = FALSE;`

	// Rotation is a compare-and-swap on the stored refresh jti so that two
	// racing refresh calls admit at most one winner.
	qSessionRotateJTI = `
UPDATE sessions SET refresh_jti = $3
WHERE id = $1 AND refresh_jti = $2 AND revoked = FALSE AND expires_at > NOW();`
)

func (r *SessionRepo) Create(ctx context.Context, s *session.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.querier(ctx).Exec(ctx, qSessionInsert,
		s.ID, s.UserID, s.UserAgent, s.IP, s.RefreshJTI, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	s.LastActiveAt = s.CreatedAt
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanSession(r.db.querier(ctx).QueryRow(ctx, qSessionByID, id))
}

func (r *SessionRepo) IsActive(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var active bool
	if err := r.db.querier(ctx).QueryRow(ctx, qSessionIsActive, id).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("session is_active: %w", err)
	}
	return active, nil
}

func (r *SessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.querier(ctx).Exec(ctx, qSessionTouch, id, at)
	if err != nil {
		return fmt.Errorf("session touch: %w", err)
	}
	return nil
}

func (r *SessionRepo) ListActive(ctx context.Context, userID string) ([]*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.querier(ctx).Query(ctx, qSessionListActive, userID)
	if err != nil {
		return nil, fmt.Errorf("session list: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessionRevoke, id)
	if err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) RevokeAll(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessionRevokeAll, userID)
	if err != nil {
		return 0, fmt.Errorf("session revoke all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) RotateRefreshJTI(ctx context.Context, id, oldJTI, newJTI string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.querier(ctx).Exec(ctx, qSessionRotateJTI, id, oldJTI, newJTI)
	if err != nil {
		return fmt.Errorf("session rotate jti: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrStaleRefresh
	}
	return nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	err := row.Scan(&s.ID, &s.UserID, &s.UserAgent, &s.IP, &s.RefreshJTI,
		&s.CreatedAt, &s.LastActiveAt, &s.ExpiresAt, &s.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
