package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-storefront/apiclient"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	tokenrepofake "github.com/jrsteele09/go-storefront/token/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	oldAccess  = "old-access"
	newAccess  = "new-access"
	refreshTok = "refresh-1"
)

type invalidations struct {
	count atomic.Int32
}

func (i *invalidations) InvalidateSession() { i.count.Add(1) }

func newBearerClient(t *testing.T, baseURL string, store *tokenrepofake.FakeTokenStore, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Config{BaseURL: baseURL}, apiclient.NewBearerCredentials(store), opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// expiringAPI rejects oldAccess on /data/ and issues newAccess from /refresh/.
// The refresh handler waits until `stale` requests have been rejected so every
// caller is inside the same refresh episode.
type expiringAPI struct {
	stale        int32
	rejected     atomic.Int32
	refreshCalls atomic.Int32
	refreshBody  atomic.Value
	refreshFails bool
	allRejected  chan struct{}
	once         sync.Once
}

func newExpiringAPI(stale int) *expiringAPI {
	return &expiringAPI{stale: int32(stale), allRejected: make(chan struct{})}
}

func (a *expiringAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+newAccess {
			if a.rejected.Add(1) == a.stale {
				a.once.Do(func() { close(a.allRejected) })
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	})
	mux.HandleFunc("POST /refresh/", func(w http.ResponseWriter, r *http.Request) {
		a.refreshCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.refreshBody.Store(body["refresh"])

		select {
		case <-a.allRejected:
		case <-time.After(5 * time.Second):
		}
		if a.refreshFails {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is blacklisted"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": newAccess})
	})
	return mux
}

func TestClient_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	const callers = 8
	api := newExpiringAPI(callers)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	store := tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok)
	inv := &invalidations{}
	metrics, err := apiclient.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c := newBearerClient(t, srv.URL, store, apiclient.WithSessionInvalidator(inv), apiclient.WithMetrics(metrics))

	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out map[string]string
			results[i] = c.Get(context.Background(), "/data/", nil, &out)
			if results[i] == nil && out["ok"] != "yes" {
				results[i] = errs.New("unexpected body")
			}
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.Equal(t, refreshTok, api.refreshBody.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Refreshes.WithLabelValues("success")))
	require.Zero(t, inv.count.Load())

	pair, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, newAccess, pair.AccessToken)
	require.Equal(t, refreshTok, pair.RefreshToken)
}

func TestClient_RefreshFailureFailsEveryone(t *testing.T) {
	const callers = 5
	api := newExpiringAPI(callers)
	api.refreshFails = true
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	store := tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok)
	inv := &invalidations{}
	c := newBearerClient(t, srv.URL, store, apiclient.WithSessionInvalidator(inv))

	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "/data/", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		require.Error(t, err)
		require.ErrorIs(t, err, errs.ErrSessionExpired)
	}
	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.Equal(t, int32(1), inv.count.Load())

	_, err := store.Load()
	require.Error(t, err)
}

func TestClient_TerminalCases(t *testing.T) {
	t.Run("anonymous probe is a plain rejection", func(t *testing.T) {
		var refreshes atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /me/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		})
		mux.HandleFunc("POST /refresh/", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		inv := &invalidations{}
		c := newBearerClient(t, srv.URL, tokenrepofake.NewFakeTokenStore(), apiclient.WithSessionInvalidator(inv))

		err := c.Get(context.Background(), "/me/", nil, nil)
		require.ErrorIs(t, err, errs.ErrNotAuthenticated)
		require.NotErrorIs(t, err, errs.ErrSessionExpired)
		require.Equal(t, http.StatusUnauthorized, apiclient.StatusOf(err))
		require.Zero(t, inv.count.Load())
		require.Zero(t, refreshes.Load())
	})

	t.Run("credentials not provided keeps stored tokens", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		}))
		defer srv.Close()

		store := tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok)
		inv := &invalidations{}
		c := newBearerClient(t, srv.URL, store, apiclient.WithSessionInvalidator(inv))

		err := c.Get(context.Background(), "/me/", nil, nil)
		require.ErrorIs(t, err, errs.ErrNotAuthenticated)
		require.Zero(t, store.Clears())
		require.Zero(t, inv.count.Load())
	})

	t.Run("no refresh token logs out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		}))
		defer srv.Close()

		store := tokenrepofake.NewFakeTokenStoreWith(oldAccess, "")
		inv := &invalidations{}
		c := newBearerClient(t, srv.URL, store, apiclient.WithSessionInvalidator(inv))

		err := c.Get(context.Background(), "/cart/", nil, nil)
		require.ErrorIs(t, err, errs.ErrSessionExpired)
		require.ErrorIs(t, err, errs.ErrNoRefreshToken)
		require.Equal(t, int32(1), inv.count.Load())
		require.Equal(t, 1, store.Clears())
	})

	t.Run("401 with no credential at all logs out", func(t *testing.T) {
		var refreshes atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /cart/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Session has expired."})
		})
		mux.HandleFunc("POST /refresh/", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		store := tokenrepofake.NewFakeTokenStore()
		inv := &invalidations{}
		c := newBearerClient(t, srv.URL, store, apiclient.WithSessionInvalidator(inv))

		err := c.Get(context.Background(), "/cart/", nil, nil)
		require.ErrorIs(t, err, errs.ErrSessionExpired)
		require.ErrorIs(t, err, errs.ErrNoRefreshToken)
		require.Equal(t, int32(1), inv.count.Load())
		require.Zero(t, refreshes.Load())
	})

	t.Run("401 after replay is terminal", func(t *testing.T) {
		var refreshes atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /orders/my/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User is inactive"})
		})
		mux.HandleFunc("POST /refresh/", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"access": newAccess})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		inv := &invalidations{}
		c := newBearerClient(t, srv.URL, tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok), apiclient.WithSessionInvalidator(inv))

		err := c.Get(context.Background(), "/orders/my/", nil, nil)
		require.ErrorIs(t, err, errs.ErrSessionExpired)
		require.Equal(t, int32(1), refreshes.Load())
		require.Equal(t, int32(1), inv.count.Load())
	})

	t.Run("401 from the refresh endpoint is terminal", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is blacklisted"})
		}))
		defer srv.Close()

		inv := &invalidations{}
		c := newBearerClient(t, srv.URL, tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok), apiclient.WithSessionInvalidator(inv))

		err := c.Post(context.Background(), apiclient.DefaultRefreshPath, map[string]string{"refresh": refreshTok}, nil)
		require.ErrorIs(t, err, errs.ErrSessionExpired)
		require.Equal(t, int32(1), calls.Load())
		require.Equal(t, int32(1), inv.count.Load())
	})
}

func TestClient_ReplayedRejectionsTerminateOnce(t *testing.T) {
	const callers = 6
	var rejected, refreshes atomic.Int32
	firstRound := make(chan struct{})
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("GET /data/", func(w http.ResponseWriter, r *http.Request) {
		if rejected.Add(1) == callers {
			once.Do(func() { close(firstRound) })
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User is inactive"})
	})
	mux.HandleFunc("POST /refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		select {
		case <-firstRound:
		case <-time.After(5 * time.Second):
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": newAccess})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok)
	inv := &invalidations{}
	c := newBearerClient(t, srv.URL, store, apiclient.WithSessionInvalidator(inv))

	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "/data/", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		require.ErrorIs(t, err, errs.ErrSessionExpired)
	}
	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, int32(1), inv.count.Load())
	require.Equal(t, 1, store.Clears())
}

func TestClient_OrdinaryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/99":
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		case "/register/":
			writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"user with this email already exists."}})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
		}
	}))
	defer srv.Close()

	inv := &invalidations{}
	c := newBearerClient(t, srv.URL, tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok), apiclient.WithSessionInvalidator(inv))

	err := c.Get(context.Background(), "/products/99", nil, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, "Not found.", apiclient.MessageOf(err, "fallback"))

	err = c.Post(context.Background(), "/register/", map[string]string{"email": "a@example.com"}, nil)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, "user with this email already exists.", apiclient.MessageOf(err, "fallback"))

	err = c.Delete(context.Background(), "/anything/")
	require.Equal(t, http.StatusInternalServerError, apiclient.StatusOf(err))
	require.Equal(t, "boom", apiclient.MessageOf(err, "fallback"))
	require.Zero(t, inv.count.Load())
}

func TestHTTPError_Message(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"detail wins", `{"detail":"d","message":"m","error":"e"}`, "d"},
		{"message before error", `{"message":"m","error":"e"}`, "m"},
		{"error", `{"error":"e"}`, "e"},
		{"field list", `{"password":["too short"]}`, "too short"},
		{"plain text", `Bad Gateway`, "Bad Gateway"},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := &apiclient.HTTPError{Status: http.StatusBadRequest, Method: http.MethodPost, Path: "/x/", Payload: json.RawMessage(tt.payload)}
			require.Equal(t, tt.want, he.Message())
		})
	}
}

func TestClient_Headers(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		writeJSON(w, http.StatusOK, []string{})
	}))
	defer srv.Close()

	c := newBearerClient(t, srv.URL+"/", tokenrepofake.NewFakeTokenStoreWith(oldAccess, refreshTok))
	require.Equal(t, srv.URL, c.BaseURL())

	var out []string
	require.NoError(t, c.Get(context.Background(), "products/", map[string][]string{"category": {"shoes"}}, &out))

	require.Equal(t, "/products/", got.URL.Path)
	require.Equal(t, "shoes", got.URL.Query().Get("category"))
	require.Equal(t, "Bearer "+oldAccess, got.Header.Get("Authorization"))
	require.Equal(t, "application/json", got.Header.Get("Accept"))
	_, err := uuid.Parse(got.Header.Get(apiclient.RequestIDHeader))
	require.NoError(t, err)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := apiclient.New(apiclient.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond},
		apiclient.NewBearerCredentials(tokenrepofake.NewFakeTokenStore()))
	require.NoError(t, err)

	err = c.Get(context.Background(), "/slow/", nil, nil)
	require.Error(t, err)
	require.Zero(t, apiclient.StatusOf(err))

	t.Run("supplied client gets the timeout", func(t *testing.T) {
		supplied := &http.Client{}
		c, err := apiclient.New(apiclient.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, HTTPClient: supplied},
			apiclient.NewBearerCredentials(tokenrepofake.NewFakeTokenStore()))
		require.NoError(t, err)

		start := time.Now()
		err = c.Get(context.Background(), "/slow/", nil, nil)
		require.Error(t, err)
		require.Less(t, time.Since(start), time.Second)
		require.Zero(t, supplied.Timeout)
	})

	t.Run("supplied client keeps its jar", func(t *testing.T) {
		supplied := &http.Client{}
		creds, err := apiclient.NewCookieCredentials(apiclient.CookieConfig{BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = apiclient.New(apiclient.Config{BaseURL: srv.URL, HTTPClient: supplied}, creds)
		require.NoError(t, err)
		require.Nil(t, supplied.Jar)
	})
}

func TestNew_Validation(t *testing.T) {
	creds := apiclient.NewBearerCredentials(tokenrepofake.NewFakeTokenStore())

	_, err := apiclient.New(apiclient.Config{}, creds)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = apiclient.New(apiclient.Config{BaseURL: "not a url"}, creds)
	require.Error(t, err)

	_, err = apiclient.New(apiclient.Config{BaseURL: "http://localhost:8000/api"}, nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestCookieCredentials(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /csrf/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-1", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "stale", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /cart/add/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRFToken") != "csrf-1" {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed"})
			return
		}
		if ck, err := r.Cookie("sessionid"); err != nil || ck.Value != "fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Session expired"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"id": 1})
	})
	mux.HandleFunc("POST /refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		if r.Header.Get("X-CSRFToken") != "csrf-1" {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "fresh", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds, err := apiclient.NewCookieCredentials(apiclient.CookieConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	inv := &invalidations{}
	c, err := apiclient.New(apiclient.Config{BaseURL: srv.URL}, creds, apiclient.WithSessionInvalidator(inv))
	require.NoError(t, err)

	require.False(t, creds.CanRefresh())
	require.NoError(t, c.Get(context.Background(), "/csrf/", nil, nil))
	require.True(t, creds.CanRefresh())

	var out map[string]int
	require.NoError(t, c.Post(context.Background(), "/cart/add/", map[string]int{"product_id": 3}, &out))
	require.Equal(t, 1, out["id"])
	require.Equal(t, int32(1), refreshes.Load())
	require.Zero(t, inv.count.Load())

	require.NoError(t, c.ClearCredentials())
	require.False(t, creds.CanRefresh())
}
