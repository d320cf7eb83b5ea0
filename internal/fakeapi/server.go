// Package fakeapi is an in-memory storefront backend. It speaks the same REST
// contract as the real API (JWT bearer or session-cookie auth, cart, catalog,
// orders, notifications, admin panel) and exists for end-to-end tests and
// local demos of the client.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var errEmailTaken = errors.New("email already registered")

// Cookie names used when the server runs with session cookies.
const (
	SessionCookie = "sessionid"
	RefreshCookie = "refresh_token"
	CSRFCookie    = "csrftoken"
	CSRFHeader    = "X-CSRFToken"
)

type Server struct {
	env           string
	mux           *http.ServeMux
	routes        []string
	logger        zerolog.Logger
	issuer        *issuer
	db            *db
	cookieMode    bool
	accessTTL     time.Duration
	passwordCost  int
	refreshes     atomic.Int64
	requests      atomic.Int64
	failRefreshes atomic.Bool
}

type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// WithCookieSessions switches authentication from bearer tokens in the
// response body to session, refresh and CSRF cookies.
func WithCookieSessions() Option {
	return func(s *Server) {
		s.cookieMode = true
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithEnv sets the environment name; "DEV" logs every route and request.
func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

// WithPasswordCost sets the bcrypt cost used for stored passwords.
func WithPasswordCost(cost int) Option {
	return func(s *Server) {
		s.passwordCost = cost
	}
}

// New returns a seeded server: one staff account, one customer (see the
// AdminEmail and CustomerEmail constants) and a few products.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		mux:          http.NewServeMux(),
		logger:       log.Logger,
		accessTTL:    defaultAccessTTL,
		passwordCost: bcrypt.MinCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	iss, err := newIssuer(s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("[FakeAPI New] failed to create token issuer: %w", err)
	}
	s.issuer = iss
	s.db = newDB(s.passwordCost)
	if err := s.db.seed(); err != nil {
		return nil, fmt.Errorf("[FakeAPI New] failed to seed data: %w", err)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.logger.Debug().Str("method", method).Str("path", path).Msg("route")
	}
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all reached their exp claim. Refresh tokens keep working.
func (s *Server) ExpireAccessTokens() {
	s.issuer.ExpireAccessTokens()
}

// FailRefreshes makes /refresh/ reject every token while on is true.
func (s *Server) FailRefreshes(on bool) {
	s.failRefreshes.Store(on)
}

// RefreshCount is the number of successful refreshes served.
func (s *Server) RefreshCount() int64 {
	return s.refreshes.Load()
}

// RequestCount is the number of requests received.
func (s *Server) RequestCount() int64 {
	return s.requests.Load()
}

// JWKS exposes the public signing key, also served at /.well-known/jwks.json.
func (s *Server) JWKS() JWKS {
	return s.issuer.JWKS()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFieldError answers 400 with a field error document such as
// {"email": ["This field is required."]}.
func writeFieldError(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, map[string][]string{field: {reason}})
}

// readJSON decodes the request body into v. An empty body leaves v alone.
func readJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
