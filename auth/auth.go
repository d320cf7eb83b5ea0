// Package auth holds the operations that change who is logged in: identity
// probe, password and Google login, registration and logout. The resulting
// identity lives in a sessions.State.
package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-storefront/apiclient"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	googleIssuer  = "https://accounts.google.com"
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// API is the client surface the auth store needs: requests plus control of
// the stored credential material.
type API interface {
	apiclient.API
	SaveCredentials(access, refresh string) error
	ClearCredentials() error
}

// IDTokenVerifier checks a Google ID token locally. *oidc.IDTokenVerifier
// implements it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// NewGoogleVerifier returns a verifier for ID tokens issued to clientID. Keys
// are fetched lazily on first use.
func NewGoogleVerifier(ctx context.Context, clientID string) *oidc.IDTokenVerifier {
	keys := oidc.NewRemoteKeySet(ctx, googleJWKSURL)
	return oidc.NewVerifier(googleIssuer, keys, &oidc.Config{ClientID: clientID})
}

// credentialResponse is returned by /login/, /register/ and /google/. The
// cookie-based API omits access and refresh and sets cookies instead.
type credentialResponse struct {
	Access  string         `json:"access"`
	Refresh string         `json:"refresh"`
	User    *users.Profile `json:"user"`
}

// Store is the single source of truth for the logged-in identity.
type Store struct {
	api      API
	session  *sessions.State
	verifier IDTokenVerifier
	logger   zerolog.Logger
}

// StoreOption configures optional Store dependencies.
type StoreOption func(*Store)

// WithGoogleVerifier makes GoogleLogin verify ID tokens before sending them.
func WithGoogleVerifier(v IDTokenVerifier) StoreOption {
	return func(s *Store) {
		s.verifier = v
	}
}

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

func NewStore(api API, session *sessions.State, opts ...StoreOption) *Store {
	s := &Store{api: api, session: session, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User returns a copy of the current profile, nil when logged out.
func (s *Store) User() *users.Profile {
	return s.session.User()
}

func (s *Store) IsAuthenticated() bool {
	return s.session.IsAuthenticated()
}

// IsAdmin reports whether the current user is staff.
func (s *Store) IsAdmin() bool {
	return s.session.User().IsAdmin()
}

// Loading is true until the first identity probe or login settles.
func (s *Store) Loading() bool {
	return s.session.Loading()
}

// LoadUser probes /me/. Any failure, including the expected 401 of a guest,
// means "no session": the result is nil and no error is reported.
func (s *Store) LoadUser(ctx context.Context) *users.Profile {
	var profile users.Profile
	if err := s.api.Get(ctx, "/me/", nil, &profile); err != nil {
		s.logger.Debug().Err(err).Msg("identity probe returned no user")
		s.session.Clear()
		return nil
	}
	s.session.Set(&profile)
	return profile.Clone()
}

// Login exchanges email and password for a session.
func (s *Store) Login(ctx context.Context, email, password string) (*users.Profile, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errs.Invalid("password", "is required")
	}
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	return s.establish(ctx, "[Auth Login]", "/login/", body)
}

// Register creates an account and logs it in.
func (s *Store) Register(ctx context.Context, reg users.Registration) (*users.Profile, error) {
	switch {
	case strings.TrimSpace(reg.FirstName) == "":
		return nil, errs.Invalid("first_name", "is required")
	case strings.TrimSpace(reg.LastName) == "":
		return nil, errs.Invalid("last_name", "is required")
	case reg.Password == "":
		return nil, errs.Invalid("password", "is required")
	}
	if err := validateEmail(reg.Email); err != nil {
		return nil, err
	}
	reg.Email = strings.TrimSpace(reg.Email)
	return s.establish(ctx, "[Auth Register]", "/register/", reg)
}

// GoogleLogin exchanges a Google ID token for a session. With a verifier
// configured, a token that fails local verification is rejected without a
// request.
func (s *Store) GoogleLogin(ctx context.Context, idToken string) (*users.Profile, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, errs.Invalid("id_token", "is required")
	}
	if s.verifier != nil {
		tok, err := s.verifier.Verify(ctx, idToken)
		if err != nil {
			s.logger.Warn().Err(err).Msg("google id token failed local verification")
			return nil, errs.Join(errs.Invalid("id_token", "failed verification"), IDTokenVerificationErr, err)
		}
		s.logger.Debug().Str("subject", tok.Subject).Msg("google id token verified")
	}
	return s.establish(ctx, "[Auth GoogleLogin]", "/google/", map[string]string{"id_token": idToken})
}

// establish posts to a credential-issuing endpoint, keeps the returned
// credential material and sets the session.
func (s *Store) establish(ctx context.Context, op, path string, body any) (*users.Profile, error) {
	var resp credentialResponse
	if err := s.api.Post(ctx, path, body, &resp); err != nil {
		return nil, fmt.Errorf("%s %w", op, err)
	}
	if resp.Access != "" && resp.Refresh != "" {
		if err := s.api.SaveCredentials(resp.Access, resp.Refresh); err != nil {
			return nil, fmt.Errorf("%s failed to store credentials: %w", op, err)
		}
	}

	if resp.User == nil {
		// Cookie deployments answer with the cookie only; ask who we are.
		user := s.LoadUser(ctx)
		if user == nil {
			return nil, fmt.Errorf("%s %w", op, NoUserErr)
		}
		return user, nil
	}
	s.session.Set(resp.User)
	s.logger.Info().Int64("user_id", resp.User.ID).Msg("logged in")
	return resp.User.Clone(), nil
}

// Logout tells the server (best effort) and then always clears local
// credentials and the session.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Post(ctx, "/logout/", nil, nil); err != nil {
		s.logger.Warn().Err(err).Str("message", apiclient.MessageOf(err, "Logout failed")).Msg("Logout failed")
	}
	if err := s.api.ClearCredentials(); err != nil {
		s.logger.Err(err).Msg("failed to clear credentials")
	}
	s.session.Clear()
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errs.Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errs.Invalid("email", "is not a valid address")
	}
	return nil
}
