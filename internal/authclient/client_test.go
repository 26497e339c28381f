package authclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	staleToken = "stale"
	freshToken = "fresh"
)

// authServer accepts only the fresh access cookie and counts refresh calls.
type authServer struct {
	refreshCalls atomic.Int64
	refreshOK    bool
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if !s.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: freshToken, Path: "/"})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("access_token")
		if err != nil || ck.Value != freshToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *url.URL) {
	t.Helper()
	c, err := New(srv.URL)
	require.NoError(t, err)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return c, u
}

func seedStaleCookie(c *Client, u *url.URL) {
	c.HTTPClient().Jar.SetCookies(u, []*http.Cookie{
		{Name: "access_token", Value: staleToken, Path: "/"},
	})
}

func TestConcurrentExpiryTriggersSingleRefresh(t *testing.T) {
	backend := &authServer{refreshOK: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c, u := newTestClient(t, srv)
	seedStaleCookie(c, u)

	const goroutines = 16
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	codes := make([]int, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp, err := c.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, codes[i])
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load())
}

// The first send stamps the jar's cookies onto the request header, and the
// replay clone inherits that header. The replay must carry only the renewed
// cookie, never the stale one alongside it.
func TestReplayCarriesOnlyRenewedCookie(t *testing.T) {
	var mu sync.Mutex
	var lastAccess []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: freshToken, Path: "/"})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		var vals []string
		for _, ck := range r.Cookies() {
			if ck.Name == "access_token" {
				vals = append(vals, ck.Value)
			}
		}
		mu.Lock()
		lastAccess = vals
		mu.Unlock()
		if len(vals) != 1 || vals[0] != freshToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, u := newTestClient(t, srv)
	seedStaleCookie(c, u)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{freshToken}, lastAccess)
}

// A caller that observed the old generation can reach the flight after the
// winner finished and the singleflight key was dropped. The flight re-checks
// the generation and must not refresh a second time.
func TestClosedWindowFlightDoesNotRefreshAgain(t *testing.T) {
	backend := &authServer{refreshOK: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c, u := newTestClient(t, srv)
	seedStaleCookie(c, u)

	ctx := context.Background()
	require.NoError(t, c.refreshOnce(ctx, 0))
	require.EqualValues(t, 1, backend.refreshCalls.Load())
	require.EqualValues(t, 1, c.generation())

	require.NoError(t, c.refreshFlight(ctx, 0))
	require.EqualValues(t, 1, backend.refreshCalls.Load())
	require.EqualValues(t, 1, c.generation())
}

func TestRefreshFailureFailsAllAndClearsState(t *testing.T) {
	backend := &authServer{refreshOK: false}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c, u := newTestClient(t, srv)
	seedStaleCookie(c, u)

	const goroutines = 8
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp, err := c.Do(req)
			if err == nil {
				resp.Body.Close()
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.ErrorIs(t, errs[i], ErrSessionExpired)
	}
	require.Empty(t, c.HTTPClient().Jar.Cookies(u), "cookie jar should be cleared after a failed refresh")
}

func TestAuthEndpointsNeverRecurseIntoRefresh(t *testing.T) {
	backend := &authServer{refreshOK: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, backend.refreshCalls.Load())
}

func TestRequestReplayedAtMostOnce(t *testing.T) {
	// refresh succeeds but the protected endpoint keeps rejecting: the
	// second 401 must be returned to the caller, not retried again.
	var meCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: freshToken, Path: "/"})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, u := newTestClient(t, srv)
	seedStaleCookie(c, u)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 2, meCalls.Load())
}

func TestReplayRequiresRebuildableBody(t *testing.T) {
	backend := &authServer{refreshOK: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c, u := newTestClient(t, srv)
	seedStaleCookie(c, u)

	pr, pw := io.Pipe()
	go pw.Close()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", pr)
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	_, err = c.Do(req)
	require.ErrorIs(t, err, ErrNotReplayable)
}
