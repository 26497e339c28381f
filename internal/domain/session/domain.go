package session

import "time"

// Session is one authenticated client (one browser or device) of a user.
// Access and refresh tokens are signed snapshots of a session; the session
// row is the single revocable source of truth for all of them.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserAgent    string    `json:"userAgent"`
	IP           string    `json:"ip"`
	RefreshJTI   string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Revoked      bool      `json:"revoked"`
}

// ActiveAt reports whether the session is usable at the given instant.
func (s *Session) ActiveAt(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
