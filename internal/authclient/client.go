// Package authclient is the client half of the token-refresh protocol. It
// wraps an http.Client with a cookie jar and transparently recovers from an
// expired access token: the first request to observe a 401 performs the one
// refresh call for that outage window, every concurrent request waits on
// that same flight, and each original request is replayed at most once.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"go.uber.org/zap"
)

// ErrSessionExpired means the refresh call itself was rejected; local auth
// state has been cleared and the user must sign in again.
var ErrSessionExpired = errors.New("authclient: session expired, sign in required")

// ErrNotReplayable means the request failed auth and its body cannot be
// rebuilt for the retry. Use requests with GetBody set (http.NewRequest
// does this for byte and string readers).
var ErrNotReplayable = errors.New("authclient: request body cannot be replayed")

// Endpoints that must never recurse into a refresh.
var nonRefreshable = map[string]bool{
	"/auth/login":      true,
	"/auth/register":   true,
	"/auth/refresh":    true,
	"/auth/logout":     true,
	"/auth/logout-all": true,
}

type Client struct {
	baseURL string
	hc      *http.Client
	log     *zap.Logger

	sf singleflight.Group

	// mu guards gen and jar replacement. gen counts completed refresh
	// windows; a request that observed a 401 under an older generation
	// does not trigger a new refresh, it just replays.
	mu  sync.Mutex
	gen uint64
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Jar: jar, Timeout: 30 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPClient exposes the underlying client (cookie jar included) for calls
// that should bypass the refresh protocol, e.g. login.
func (c *Client) HTTPClient() *http.Client { return c.hc }

// Do executes the request. On a 401 from a refreshable endpoint it joins the
// single refresh flight for the current outage window and replays the
// request once with renewed credentials. A second 401 on the replay is
// returned as-is; there is no retry loop.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	observedGen := c.generation()

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || nonRefreshable[req.URL.Path] {
		return resp, nil
	}

	// the 401 body is never surfaced; drain it so the connection is reused
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if err := c.refreshOnce(req.Context(), observedGen); err != nil {
		return nil, err
	}

	retry, err := replayableClone(req)
	if err != nil {
		return nil, err
	}
	return c.hc.Do(retry)
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// refreshOnce performs at most one refresh call per outage window. The
// singleflight group is keyed by the observed generation, so concurrent
// observers of the same stale token share one flight, while a caller whose
// 401 predates an already-completed refresh skips straight to the replay.
func (c *Client) refreshOnce(ctx context.Context, observedGen uint64) error {
	c.mu.Lock()
	current := c.gen
	c.mu.Unlock()
	if current != observedGen {
		return nil
	}

	_, err, _ := c.sf.Do(strconv.FormatUint(observedGen, 10), func() (any, error) {
		return nil, c.refreshFlight(ctx, observedGen)
	})
	return err
}

// refreshFlight is the body of the singleflight call. It re-checks the
// generation under the lock: singleflight drops the key once the flight
// returns, so a late caller holding a stale generation can still start a
// flight after the window has already closed.
func (c *Client) refreshFlight(ctx context.Context, observedGen uint64) error {
	c.mu.Lock()
	closed := c.gen != observedGen
	c.mu.Unlock()
	if closed {
		return nil
	}

	err := c.refresh(ctx)

	c.mu.Lock()
	c.gen++
	if err != nil {
		// terminal for this window: drop all local credentials
		if jar, jarErr := cookiejar.New(nil); jarErr == nil {
			c.hc.Jar = jar
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Debug("token refresh failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh rejected: %s", resp.Status)
	}
	return nil
}

func replayableClone(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	// the first send stamped the jar's cookies onto the header; strip them
	// so the jar supplies the renewed ones on the replay
	clone.Header.Del("Cookie")
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, ErrNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
