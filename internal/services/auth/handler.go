package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ateliero/configurator/internal/obs"
)

// Per-route sliding-window limits. The password-reset pair is limited harder
// than login because it is an account-discovery surface.
const (
	limitWindow     = 15 * time.Minute
	limitLogin      = 10
	limitRegister   = 5
	limitRefresh    = 30
	limitReset      = 3
	maxRequestBytes = 1 << 20
)

// ResetSender delivers password-reset tokens out of band. The mail backend
// is an external collaborator; the default just logs that a token was issued.
type ResetSender interface {
	SendPasswordReset(ctx context.Context, email, resetToken string)
}

type logResetSender struct{ log *zap.Logger }

func (s logResetSender) SendPasswordReset(ctx context.Context, email, _ string) {
	obs.WithTrace(ctx, s.log).Info("password reset token issued", zap.String("email", email))
}

type Handler struct {
	svc        *Service
	gate       *Gate
	cookies    *CookieManager
	limiter    RateLimiter
	reset      ResetSender
	log        *zap.Logger
	now        func() time.Time
	trustProxy bool
}

type HandlerOpts struct {
	Limiter     RateLimiter
	ResetSender ResetSender
	Now         func() time.Time
	// TrustProxyHeaders enables X-Forwarded-For as the client address.
	// Leave off unless every request arrives through a proxy that strips
	// the client-supplied header.
	TrustProxyHeaders bool
}

func NewHandler(svc *Service, gate *Gate, cookies *CookieManager, log *zap.Logger, opts HandlerOpts) *Handler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.ResetSender == nil {
		opts.ResetSender = logResetSender{log: log}
	}
	return &Handler{
		svc:        svc,
		gate:       gate,
		cookies:    cookies,
		limiter:    opts.Limiter,
		reset:      opts.ResetSender,
		log:        log,
		now:        opts.Now,
		trustProxy: opts.TrustProxyHeaders,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.With(h.rateLimit("register", limitRegister, limitWindow)).Post("/register", h.handleRegister)
		r.With(h.rateLimit("login", limitLogin, limitWindow)).Post("/login", h.handleLogin)
		r.With(h.rateLimit("refresh", limitRefresh, limitWindow)).Post("/refresh", h.handleRefresh)
		r.With(h.rateLimit("password-reset", limitReset, limitWindow)).
			Post("/request-password-reset", h.handleRequestPasswordReset)
		r.With(h.rateLimit("password-reset", limitReset, limitWindow)).
			Post("/reset-password", h.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.gate.Authenticate)
			r.Post("/logout", h.handleLogout)
			r.Post("/logout-all", h.handleLogoutAll)
			r.Get("/me", h.handleMe)
			r.Get("/sessions", h.handleSessions)
			r.Delete("/sessions/{sessionID}", h.handleRevokeSession)
		})
	})
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	u, pair, err := h.svc.Register(r.Context(), in, r.UserAgent(), h.clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cookies.SetPair(w, pair, h.now())
	writeData(w, http.StatusCreated, "registered", u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	u, pair, err := h.svc.Login(r.Context(), in.Email, in.Password, r.UserAgent(), h.clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cookies.SetPair(w, pair, h.now())
	writeData(w, http.StatusOK, "logged in", u)
}

// handleRefresh reads the refresh token from its cookie. The JSON body
// fallback is a migration shim for pre-cookie clients and is meant to be
// removed; see DESIGN.md.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := h.cookies.ReadRefresh(r)
	if raw == "" {
		var in struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeJSON(r, &in); err == nil {
			raw = in.RefreshToken
		}
	}
	if raw == "" {
		writeError(w, ErrRefreshTokenRequired)
		return
	}

	u, pair, err := h.svc.Refresh(r.Context(), raw)
	if err != nil {
		// only a rejected token clears cookies; a store outage must not
		// log the client out
		if asError(err).Status == http.StatusUnauthorized {
			h.cookies.Clear(w)
		}
		writeError(w, err)
		return
	}
	h.cookies.SetPair(w, pair, h.now())
	writeData(w, http.StatusOK, "refreshed", u)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, ErrTokenRequired)
		return
	}
	if err := h.svc.Logout(r.Context(), id.Claims); err != nil {
		writeError(w, err)
		return
	}
	h.cookies.Clear(w)
	writeData(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, ErrTokenRequired)
		return
	}
	n, err := h.svc.LogoutAll(r.Context(), id.Claims)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cookies.Clear(w)
	writeData(w, http.StatusOK, "logged out everywhere", map[string]int64{"revoked": n})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	u, err := h.svc.Me(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", u)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	list, err := h.svc.Sessions(r.Context(), id.UserID, id.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.RevokeSession(r.Context(), id.UserID, sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "session revoked", nil)
}

// handleRequestPasswordReset answers identically whether or not the account
// exists, to keep the endpoint useless for enumeration.
func (h *Handler) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	resetToken, err := h.svc.RequestPasswordReset(r.Context(), in.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if resetToken != "" {
		h.reset.SendPasswordReset(r.Context(), normalizeEmail(in.Email), resetToken)
	}
	writeData(w, http.StatusOK, "if the account exists, a reset link has been sent", nil)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, "password updated", nil)
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return validationError("unreadable request body")
	}
	if len(body) == 0 {
		return validationError("empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return validationError("malformed JSON")
		}
		return validationError("invalid request body")
	}
	return nil
}
