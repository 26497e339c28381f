package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")

	// ErrStaleRefresh means the presented refresh token lost a rotation
	// race or was already rotated away; the caller must fail closed.
	ErrStaleRefresh = errors.New("stale refresh token")
)

type Registry interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	IsActive(ctx context.Context, id string) (bool, error)

	// Touch bumps last_active_at. Called on refresh only, not on every
	// authenticated request.
	Touch(ctx context.Context, id string, at time.Time) error

	// ListActive returns the user's live sessions, most recently active first.
	ListActive(ctx context.Context, userID string) ([]*Session, error)

	// Revoke is idempotent: revoking an already-revoked or expired session
	// succeeds; only an unknown id yields ErrNotFound.
	Revoke(ctx context.Context, id string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)

	// RotateRefreshJTI swaps the stored refresh jti from oldJTI to newJTI,
	// but only if the session is still active and still holds oldJTI.
	// A concurrent rotation admits exactly one winner; losers get
	// ErrStaleRefresh.
	RotateRefreshJTI(ctx context.Context, id, oldJTI, newJTI string) error
}

// RevocationIndex is the TTL-bounded denylist of access-token ids that were
// logged out before their natural expiry. Entries never outlive the token
// they guard.
type RevocationIndex interface {
	Blacklist(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// Consume marks a single-use token id as spent. It returns true on the
	// first call for a given jti and false on every replay.
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
