package token

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Pair is the bearer credential material issued by /login/, /register/ and
// /google/, and partially renewed by /refresh/ (which only returns a new
// access token; the refresh token is kept).
type Pair struct {
	*oauth2.Token
}

// NewPair builds a Pair from the raw access and refresh strings.
func NewPair(access, refresh string) Pair {
	p := Pair{Token: &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}}
	if exp, err := p.AccessExpiry(); err == nil {
		p.Expiry = exp
	}
	return p
}

// Empty reports whether no access token is held.
func (p Pair) Empty() bool {
	return p.Token == nil || strings.TrimSpace(p.AccessToken) == ""
}

// HasRefresh reports whether the pair can be used against /refresh/.
func (p Pair) HasRefresh() bool {
	return p.Token != nil && strings.TrimSpace(p.RefreshToken) != ""
}

// WithAccess returns a copy carrying a renewed access token and the same
// refresh token.
func (p Pair) WithAccess(access string) Pair {
	refresh := ""
	if p.Token != nil {
		refresh = p.RefreshToken
	}
	return NewPair(access, refresh)
}

// Apply sets the Authorization header on req.
func (p Pair) Apply(req *http.Request) {
	if p.Empty() {
		return
	}
	p.SetAuthHeader(req)
}

// AccessExpiry reads the exp claim of the access token. The signature is NOT
// verified; the value is informational (logging, CLI status) and the server
// stays the authority on expiry.
func (p Pair) AccessExpiry() (time.Time, error) {
	if p.Empty() {
		return time.Time{}, fmt.Errorf("no access token")
	}
	claims := jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(p.AccessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// Subject returns the sub claim of the access token, unverified.
func (p Pair) Subject() string {
	if p.Empty() {
		return ""
	}
	claims := jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(p.AccessToken, &claims); err != nil {
		return ""
	}
	return claims.Subject
}
