package fakeapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jrsteele09/go-storefront/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated *users.Profile
	ContextKeyUser ContextKey = "user"
)

const (
	detailNoCredentials = "Authentication credentials were not provided."
	detailInvalidToken  = "Given token not valid for any token type"
	detailBlocked       = "Your account has been blocked."
	detailNotStaff      = "You do not have permission to perform this action."
	detailCSRF          = "CSRF Failed: CSRF token missing or incorrect."
)

type middleware = func(http.HandlerFunc) http.HandlerFunc

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...middleware) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the stack every route gets, followed by mw.
func (s *Server) APIMiddleware(mw ...middleware) []middleware {
	chained := []middleware{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
	}
	return append(chained, mw...)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env != "DEV" {
			next(w, r)
			return
		}
		start := time.Now()
		next(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Str("path", r.URL.Path).Msg("Recovered from panic")
				writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			}
		}()
		next(w, r)
	}
}

// RequireAuth accepts a Bearer access token, or in cookie mode the session
// cookie plus a matching CSRF header on unsafe methods, and puts the user in
// the request context.
func (s *Server) RequireAuth() middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, fromCookie := s.credential(r)
			if raw == "" {
				writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
				return
			}
			if fromCookie && !safeMethod(r.Method) && !csrfMatches(r) {
				writeDetail(w, http.StatusForbidden, detailCSRF)
				return
			}

			userID, err := s.issuer.ParseAccessToken(raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": detailInvalidToken, "code": "token_not_valid"})
				return
			}
			user, ok := s.db.Account(userID)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found", "code": "user_not_found"})
				return
			}
			if user.IsBlock {
				writeDetail(w, http.StatusForbidden, detailBlocked)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin must be chained after RequireAuth.
func (s *Server) RequireAdmin() middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !currentUser(r).IsAdmin() {
				writeDetail(w, http.StatusForbidden, detailNotStaff)
				return
			}
			next(w, r)
		}
	}
}

// credential returns the raw access token and whether it came from a cookie.
func (s *Server) credential(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, tok, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", false
		}
		return strings.TrimSpace(tok), false
	}
	if !s.cookieMode {
		return "", false
	}
	ck, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	return ck.Value, true
}

func currentUser(r *http.Request) *users.Profile {
	u, _ := r.Context().Value(ContextKeyUser).(*users.Profile)
	return u
}

func csrfMatches(r *http.Request) bool {
	ck, err := r.Cookie(CSRFCookie)
	return err == nil && ck.Value != "" && r.Header.Get(CSRFHeader) == ck.Value
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
