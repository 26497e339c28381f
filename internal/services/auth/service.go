package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ateliero/configurator/internal/domain/session"
	"github.com/ateliero/configurator/internal/domain/user"
	"github.com/ateliero/configurator/internal/obs"
	"github.com/ateliero/configurator/internal/token"
)

// Transactor runs fn atomically. Register uses it so a user row never exists
// without its first session.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type nopTransactor struct{}

func (nopTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type TokenPair struct {
	Access         string
	Refresh        string
	AccessExpires  time.Time
	RefreshExpires time.Time
}

type Config struct {
	BcryptCost int
	Now        func() time.Time
}

// Service orchestrates login, registration, refresh rotation and logout over
// the session registry and revocation index.
type Service struct {
	users    user.Repo
	sessions session.Registry
	revoked  session.RevocationIndex
	codec    *token.Codec
	tx       Transactor
	audit    Auditor
	log      *zap.Logger

	bcryptCost int
	now        func() time.Time
}

func NewService(
	users user.Repo,
	sessions session.Registry,
	revoked session.RevocationIndex,
	codec *token.Codec,
	tx Transactor,
	audit Auditor,
	log *zap.Logger,
	cfg Config,
) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if tx == nil {
		tx = nopTransactor{}
	}
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		revoked:    revoked,
		codec:      codec,
		tx:         tx,
		audit:      audit,
		log:        log,
		bcryptCost: cfg.BcryptCost,
		now:        cfg.Now,
	}
}

// dummyHash keeps the bcrypt cost of a login against an unknown email equal
// to one against a known email, so response timing does not leak which.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (in *RegisterInput) validate() error {
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return validationError("first and last name are required")
	}
	if _, err := mail.ParseAddress(normalizeEmail(in.Email)); err != nil {
		return validationError("invalid email address")
	}
	if len(in.Password) < 8 {
		return validationError("password must be at least 8 characters")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput, userAgent, ip string) (*user.User, *TokenPair, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	u := &user.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        normalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         user.RoleCustomer,
	}

	var pair *TokenPair
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		pair, _, err = s.openSession(ctx, u, userAgent, ip)
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}

	s.audit.Publish(ctx, AuditEvent{Type: AuditRegister, UserID: u.ID, IP: ip, UserAgent: userAgent, At: s.now()})
	return u, pair, nil
}

func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (*user.User, *TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// burn the same bcrypt cost as a real comparison
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			mLogins.WithLabelValues(outcomeRejected).Inc()
			return nil, nil, ErrInvalidCredentials
		}
		mLogins.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		mLogins.WithLabelValues(outcomeRejected).Inc()
		return nil, nil, ErrInvalidCredentials
	}

	pair, sid, err := s.openSession(ctx, u, userAgent, ip)
	if err != nil {
		mLogins.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}

	mLogins.WithLabelValues(outcomeOK).Inc()
	s.audit.Publish(ctx, AuditEvent{Type: AuditLogin, UserID: u.ID, SessionID: sid, IP: ip, UserAgent: userAgent, At: s.now()})
	return u, pair, nil
}

// openSession creates a session row and mints the token pair bound to it.
func (s *Service) openSession(ctx context.Context, u *user.User, userAgent, ip string) (*TokenPair, string, error) {
	now := s.now()
	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}

	refresh, refreshJTI, refreshExp, err := s.codec.IssueRefresh(u.ID, sess.ID)
	if err != nil {
		return nil, "", err
	}
	sess.RefreshJTI = refreshJTI
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	access, _, accessExp, err := s.codec.IssueAccess(u.ID, string(u.Role), sess.ID)
	if err != nil {
		return nil, "", err
	}
	return &TokenPair{
		Access:         access,
		Refresh:        refresh,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, sess.ID, nil
}

// Refresh validates the presented refresh token against the session registry
// and rotates it. A stale jti (already rotated away, or lost the race to a
// concurrent refresh) fails closed with ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*user.User, *TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(rawRefresh)
	if err != nil {
		mRefreshes.WithLabelValues(outcomeRejected).Inc()
		return nil, nil, ErrInvalidToken
	}

	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			mRefreshes.WithLabelValues(outcomeRejected).Inc()
			return nil, nil, ErrSessionRevoked
		}
		mRefreshes.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}
	now := s.now()
	if !sess.ActiveAt(now) {
		mRefreshes.WithLabelValues(outcomeRejected).Inc()
		return nil, nil, ErrSessionRevoked
	}

	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		mRefreshes.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}

	refresh, newJTI, refreshExp, err := s.codec.IssueRefresh(u.ID, sess.ID)
	if err != nil {
		mRefreshes.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}
	if err := s.sessions.RotateRefreshJTI(ctx, sess.ID, claims.ID, newJTI); err != nil {
		if errors.Is(err, session.ErrStaleRefresh) {
			mRefreshes.WithLabelValues(outcomeRejected).Inc()
			return nil, nil, ErrInvalidToken
		}
		mRefreshes.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}
	if err := s.sessions.Touch(ctx, sess.ID, now); err != nil {
		obs.WithTrace(ctx, s.log).Warn("session touch failed", zap.String("session_id", sess.ID), zap.Error(err))
	}

	access, _, accessExp, err := s.codec.IssueAccess(u.ID, string(u.Role), sess.ID)
	if err != nil {
		mRefreshes.WithLabelValues(outcomeError).Inc()
		return nil, nil, err
	}

	mRefreshes.WithLabelValues(outcomeOK).Inc()
	return u, &TokenPair{
		Access:         access,
		Refresh:        refresh,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, nil
}

// Logout blacklists the current access token for its remaining life and
// revokes the session behind it, killing every outstanding token of that
// session at once.
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.Blacklist(ctx, claims.ID, ttl); err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}

	mRevocations.WithLabelValues("single").Inc()
	s.audit.Publish(ctx, AuditEvent{Type: AuditLogout, UserID: claims.Subject, SessionID: claims.SessionID, At: s.now()})
	return nil
}

// LogoutAll revokes every session of the user and blacklists the access
// token that carried the request.
func (s *Service) LogoutAll(ctx context.Context, claims *token.Claims) (int64, error) {
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.Blacklist(ctx, claims.ID, ttl); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAll(ctx, claims.Subject)
	if err != nil {
		return 0, err
	}

	mRevocations.WithLabelValues("all").Inc()
	s.audit.Publish(ctx, AuditEvent{Type: AuditLogoutAll, UserID: claims.Subject, At: s.now()})
	return n, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

type SessionView struct {
	ID           string    `json:"id"`
	UserAgent    string    `json:"userAgent"`
	IP           string    `json:"ip"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsCurrent    bool      `json:"isCurrent"`
}

// Sessions lists the user's active sessions, most recently active first,
// marking the one the caller is speaking through.
func (s *Service) Sessions(ctx context.Context, userID, currentSessionID string) ([]SessionView, error) {
	list, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionView{
			ID:           sess.ID,
			UserAgent:    sess.UserAgent,
			IP:           sess.IP,
			CreatedAt:    sess.CreatedAt,
			LastActiveAt: sess.LastActiveAt,
			ExpiresAt:    sess.ExpiresAt,
			IsCurrent:    sess.ID == currentSessionID,
		})
	}
	return out, nil
}

// RevokeSession revokes one named session. Callers may only revoke their own.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if sess.UserID != userID {
		return ErrNotFound
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}

	mRevocations.WithLabelValues("single").Inc()
	s.audit.Publish(ctx, AuditEvent{Type: AuditSessionRevoke, UserID: userID, SessionID: sessionID, At: s.now()})
	return nil
}

// RequestPasswordReset mints a single-use reset token for the account, or
// returns empty without error when the email is unknown. The HTTP response
// is identical either way; only the mailer call differs.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	reset, _, _, err := s.codec.IssueReset(u.ID)
	if err != nil {
		return "", err
	}
	return reset, nil
}

// ResetPassword consumes a reset token, installs the new password hash and
// revokes every existing session: a password change is a trust boundary.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < 8 {
		return validationError("password must be at least 8 characters")
	}
	claims, err := s.codec.VerifyReset(rawToken)
	if err != nil {
		return ErrInvalidToken
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	first, err := s.revoked.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return err
	}
	if !first {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, claims.Subject, string(hash)); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, claims.Subject); err != nil {
		return err
	}

	s.audit.Publish(ctx, AuditEvent{Type: AuditPasswordReset, UserID: claims.Subject, At: s.now()})
	return nil
}
