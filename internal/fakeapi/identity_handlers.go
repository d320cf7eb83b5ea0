package fakeapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/mail"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-storefront/users"
)

type credentialResponse struct {
	Access  string         `json:"access,omitempty"`
	Refresh string         `json:"refresh,omitempty"`
	User    *users.Profile `json:"user,omitempty"`
	Message string         `json:"message,omitempty"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeDetail(w, http.StatusBadRequest, "Email and password are required.")
			return
		}
		user, ok := s.db.Authenticate(req.Email, req.Password)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if user.IsBlock {
			writeDetail(w, http.StatusForbidden, detailBlocked)
			return
		}
		s.issueCredentials(w, user, http.StatusOK)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.Registration
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		for field, v := range map[string]string{"first_name": req.FirstName, "last_name": req.LastName, "email": req.Email, "password": req.Password} {
			if strings.TrimSpace(v) == "" {
				writeFieldError(w, field, "This field is required.")
				return
			}
		}
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeFieldError(w, "email", "Enter a valid email address.")
			return
		}

		user, err := s.db.AddAccount(users.Profile{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}, req.Password)
		if err == errEmailTaken {
			writeFieldError(w, "email", "user with this email already exists.")
			return
		}
		if err != nil {
			s.logger.Err(err).Msg("register failed")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		s.issueCredentials(w, user, http.StatusCreated)
	}
}

// GoogleHandler trusts the ID token's claims without checking the signature;
// clients verify it against Google's keys before calling.
func (s *Server) GoogleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDToken string `json:"id_token"`
		}
		if err := readJSON(r, &req); err != nil || req.IDToken == "" {
			writeDetail(w, http.StatusBadRequest, "id_token is required")
			return
		}
		claims := jwtlib.MapClaims{}
		if _, _, err := jwtlib.NewParser().ParseUnverified(req.IDToken, claims); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid Google token")
			return
		}
		email, _ := claims["email"].(string)
		if email == "" {
			writeDetail(w, http.StatusBadRequest, "Invalid Google token")
			return
		}

		user, ok := s.db.AccountByEmail(email)
		if !ok {
			given, _ := claims["given_name"].(string)
			family, _ := claims["family_name"].(string)
			var err error
			user, err = s.db.AddAccount(users.Profile{Email: email, FirstName: given, LastName: family}, uuid.NewString())
			if err != nil {
				s.logger.Err(err).Msg("google signup failed")
				writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
				return
			}
		}
		if user.IsBlock {
			writeDetail(w, http.StatusForbidden, detailBlocked)
			return
		}
		s.issueCredentials(w, user, http.StatusOK)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Refresh string `json:"refresh"`
		}
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if req.Refresh == "" && s.cookieMode {
			if ck, err := r.Cookie(RefreshCookie); err == nil {
				req.Refresh = ck.Value
			}
		}
		if req.Refresh == "" {
			writeFieldError(w, "refresh", "This field is required.")
			return
		}

		userID, ok := s.issuer.LookupRefreshToken(req.Refresh)
		if !ok || s.failRefreshes.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
			return
		}
		user, ok := s.db.Account(userID)
		if !ok || user.IsBlock {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
			return
		}
		access, err := s.issuer.CreateAccessToken(&account{Profile: *user})
		if err != nil {
			s.logger.Err(err).Msg("refresh failed")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		s.refreshes.Add(1)
		if s.cookieMode {
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: access, Path: "/", HttpOnly: true})
			writeJSON(w, http.StatusOK, map[string]string{"detail": "Token refreshed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": access})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.issuer.RevokeUser(currentUser(r).ID)
		if s.cookieMode {
			for _, name := range []string{SessionCookie, RefreshCookie} {
				http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
			}
		}
		writeDetail(w, http.StatusOK, "Logged out")
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, currentUser(r))
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.issuer.JWKS())
	}
}

// issueCredentials answers a successful login. Bearer mode returns the token
// pair and the user in the body; cookie mode sets cookies and returns neither.
func (s *Server) issueCredentials(w http.ResponseWriter, user *users.Profile, status int) {
	access, err := s.issuer.CreateAccessToken(&account{Profile: *user})
	if err != nil {
		s.logger.Err(err).Msg("failed to create access token")
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	refresh, err := s.issuer.CreateRefreshToken(user.ID)
	if err != nil {
		s.logger.Err(err).Msg("failed to create refresh token")
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}

	if !s.cookieMode {
		writeJSON(w, status, credentialResponse{Access: access, Refresh: refresh, User: user})
		return
	}
	csrf := make([]byte, 16)
	_, _ = rand.Read(csrf)
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: access, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: refresh, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: hex.EncodeToString(csrf), Path: "/"})
	writeJSON(w, status, credentialResponse{Message: "Login successful"})
}
