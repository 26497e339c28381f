package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ateliero/configurator/internal/obs"
)

// RateLimiter is the sliding-window counter backing per-route limits.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// rateLimit guards a route with limit hits per window per client IP. A
// limiter outage fails open: losing rate limiting during an infrastructure
// hiccup is preferable to locking out every client.
func (h *Handler) rateLimit(route string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := route + ":" + h.clientIP(r)
			ok, err := h.limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				obs.WithTrace(r.Context(), h.log).Warn("rate limiter unavailable",
					zap.String("route", route), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				mRateLimited.WithLabelValues(route).Inc()
				writeError(w, ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address. X-Forwarded-For is spoofable by
// a direct client, so it is honored only when the server is configured as
// sitting behind a trusted proxy.
func (h *Handler) clientIP(r *http.Request) string {
	if h.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				return strings.TrimSpace(fwd[:i])
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
