package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the signed payload carried by every token class. Subject is the
// user id, ID the per-token jti; SessionID binds the token to its session row.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid"`
	Purpose   string `json:"purpose,omitempty"`
}

const purposeReset = "password_reset"

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	ResetSecret   []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
	Issuer        string
	Now           func() time.Time
}

// Codec signs and verifies access, refresh and password-reset tokens.
// Each class has its own secret so that a leaked secret forges only one class.
// Verification is pure: no store lookups happen here.
type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.ResetSecret) == 0 {
		return nil, errors.New("token: all three secrets are required")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Codec{cfg: cfg}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.cfg.AccessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// IssueAccess mints a short-lived access token for the session snapshot.
func (c *Codec) IssueAccess(userID, role, sessionID string) (token, jti string, expiresAt time.Time, err error) {
	return c.issue(c.cfg.AccessSecret, c.cfg.AccessTTL, Claims{
		Role:      role,
		SessionID: sessionID,
	}, userID)
}

// IssueRefresh mints a refresh token. The returned jti must be stored on the
// session; rotation swaps it so the previous refresh token stops verifying
// against the registry even before its natural expiry.
func (c *Codec) IssueRefresh(userID, sessionID string) (token, jti string, expiresAt time.Time, err error) {
	return c.issue(c.cfg.RefreshSecret, c.cfg.RefreshTTL, Claims{
		SessionID: sessionID,
	}, userID)
}

// IssueReset mints a single-use password-reset token. Single use is enforced
// by the revocation index, not here.
func (c *Codec) IssueReset(userID string) (token, jti string, expiresAt time.Time, err error) {
	return c.issue(c.cfg.ResetSecret, c.cfg.ResetTTL, Claims{
		Purpose: purposeReset,
	}, userID)
}

func (c *Codec) issue(secret []byte, ttl time.Duration, claims Claims, userID string) (string, string, time.Time, error) {
	now := c.cfg.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    c.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, expiresAt, nil
}

func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	return c.verify(raw, c.cfg.AccessSecret, "")
}

func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	return c.verify(raw, c.cfg.RefreshSecret, "")
}

func (c *Codec) VerifyReset(raw string) (*Claims, error) {
	return c.verify(raw, c.cfg.ResetSecret, purposeReset)
}

func (c *Codec) verify(raw string, secret []byte, wantPurpose string) (*Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != wantPurpose {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
