package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ateliero/configurator/internal/domain/session"
	"github.com/ateliero/configurator/internal/domain/user"
)

// In-memory ports for unit tests. Semantics mirror the postgres and redis
// adapters, including the rotation CAS and idempotent revoke.

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*user.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*user.User)}
}

func (f *memUsers) Create(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *memUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*session.Session
	now  func() time.Time
}

func newMemSessions(now func() time.Time) *memSessions {
	return &memSessions{byID: make(map[string]*session.Session), now: now}
}

func (f *memSessions) Create(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	if cp.LastActiveAt.IsZero() {
		cp.LastActiveAt = cp.CreatedAt
	}
	f.byID[s.ID] = &cp
	return nil
}

func (f *memSessions) GetByID(_ context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *memSessions) IsActive(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	return s.ActiveAt(f.now()), nil
}

func (f *memSessions) Touch(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return session.ErrNotFound
	}
	s.LastActiveAt = at
	return nil
}

func (f *memSessions) ListActive(_ context.Context, userID string) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*session.Session
	for _, s := range f.byID {
		if s.UserID == userID && s.ActiveAt(f.now()) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (f *memSessions) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return session.ErrNotFound
	}
	s.Revoked = true
	return nil
}

func (f *memSessions) RevokeAll(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.byID {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			n++
		}
	}
	return n, nil
}

func (f *memSessions) RotateRefreshJTI(_ context.Context, id, oldJTI, newJTI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.RefreshJTI != oldJTI || !s.ActiveAt(f.now()) {
		return session.ErrStaleRefresh
	}
	s.RefreshJTI = newJTI
	return nil
}

type memRevocation struct {
	mu       sync.Mutex
	denied   map[string]time.Time
	consumed map[string]struct{}
	now      func() time.Time
}

func newMemRevocation(now func() time.Time) *memRevocation {
	return &memRevocation{
		denied:   make(map[string]time.Time),
		consumed: make(map[string]struct{}),
		now:      now,
	}
}

func (f *memRevocation) Blacklist(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[jti] = f.now().Add(ttl)
	return nil
}

func (f *memRevocation) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.denied[jti]
	return ok && f.now().Before(until), nil
}

func (f *memRevocation) Consume(_ context.Context, jti string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.consumed[jti]; ok {
		return false, nil
	}
	f.consumed[jti] = struct{}{}
	return true, nil
}

// countingLimiter approves the first limit hits per key and rejects the rest.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{counts: make(map[string]int)}
}

func (f *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key] <= limit, nil
}
