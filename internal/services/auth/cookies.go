package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
	AuthPath    string
	Secure      bool
	Secret      []byte
}

// CookieManager writes and reads the auth cookies. Values are HMAC-signed at
// the transport layer on top of the token's own signature, so a cookie
// spliced together outside this service is rejected before token parsing.
// The refresh cookie is scoped to the auth route prefix to keep it off every
// other request.
type CookieManager struct {
	cfg CookieConfig
}

func NewCookieManager(cfg CookieConfig) *CookieManager {
	if cfg.AccessName == "" {
		cfg.AccessName = "accessToken"
	}
	if cfg.RefreshName == "" {
		cfg.RefreshName = "refreshToken"
	}
	if cfg.AuthPath == "" {
		cfg.AuthPath = "/auth"
	}
	return &CookieManager{cfg: cfg}
}

func (m *CookieManager) SetPair(w http.ResponseWriter, pair *TokenPair, now time.Time) {
	m.set(w, m.cfg.AccessName, pair.Access, "/", pair.AccessExpires, now)
	m.set(w, m.cfg.RefreshName, pair.Refresh, m.cfg.AuthPath, pair.RefreshExpires, now)
}

func (m *CookieManager) Clear(w http.ResponseWriter) {
	m.clear(w, m.cfg.AccessName, "/")
	m.clear(w, m.cfg.RefreshName, m.cfg.AuthPath)
}

func (m *CookieManager) ReadAccess(r *http.Request) string {
	return m.read(r, m.cfg.AccessName)
}

func (m *CookieManager) ReadRefresh(r *http.Request) string {
	return m.read(r, m.cfg.RefreshName)
}

func (m *CookieManager) set(w http.ResponseWriter, name, value, path string, expires, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    m.sign(value),
		Path:     path,
		Domain:   m.cfg.Domain,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(expires.Sub(now).Seconds()),
		Expires:  expires,
	})
}

func (m *CookieManager) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   m.cfg.Domain,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func (m *CookieManager) read(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return m.unsign(c.Value)
}

func (m *CookieManager) sign(value string) string {
	if len(m.cfg.Secret) == 0 {
		return value
	}
	mac := hmac.New(sha256.New, m.cfg.Secret)
	mac.Write([]byte(value))
	return value + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *CookieManager) unsign(signed string) string {
	if len(m.cfg.Secret) == 0 {
		return signed
	}
	i := strings.LastIndexByte(signed, '.')
	if i < 0 {
		return ""
	}
	value, sigB64 := signed[:i], signed[i+1:]
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return ""
	}
	mac := hmac.New(sha256.New, m.cfg.Secret)
	mac.Write([]byte(value))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return ""
	}
	return value
}
