package fakeapi

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	defaultIssuer     = "fakeapi"
	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	refreshTokenBytes = 32
)

// accessClaims is what the fake puts in an access token. Version ties the
// token to the issuer's current key generation so tests can expire every
// outstanding token at once.
type accessClaims struct {
	jwtlib.RegisteredClaims
	Staff   bool `json:"is_staff,omitempty"`
	Version int  `json:"ver"`
}

type storedRefreshToken struct {
	Token  string
	UserID int64
	Iat    time.Time
}

// issuer signs RS256 access tokens and keeps opaque refresh tokens, one per
// user.
type issuer struct {
	keyID      string
	key        *rsa.PrivateKey
	name       string
	accessTTL  time.Duration
	refreshTTL time.Duration

	version  int
	refresh  map[string]*storedRefreshToken
	byUserID map[int64]string
	lock     sync.RWMutex
}

func newIssuer(accessTTL time.Duration) (*issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	return &issuer{
		keyID:      uuid.NewString(),
		key:        key,
		name:       defaultIssuer,
		accessTTL:  accessTTL,
		refreshTTL: defaultRefreshTTL,
		refresh:    make(map[string]*storedRefreshToken),
		byUserID:   make(map[int64]string),
	}, nil
}

// CreateAccessToken signs a short-lived access token for user.
func (i *issuer) CreateAccessToken(u *account) (string, error) {
	i.lock.RLock()
	version := i.version
	i.lock.RUnlock()

	now := NowTimeFunc()
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    i.name,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
		Staff:   u.IsStaff,
		Version: version,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = i.keyID

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, expiry and key generation and returns
// the user ID.
func (i *issuer) ParseAccessToken(raw string) (int64, error) {
	claims := &accessClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		return &i.key.PublicKey, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithIssuer(i.name),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return 0, err
	}

	i.lock.RLock()
	current := i.version
	i.lock.RUnlock()
	if claims.Version != current {
		return 0, fmt.Errorf("token issued under a retired key generation")
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

// ExpireAccessTokens retires every access token issued so far. Refresh
// tokens stay valid.
func (i *issuer) ExpireAccessTokens() {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.version++
}

// CreateRefreshToken replaces the user's refresh token with a new one.
func (i *issuer) CreateRefreshToken(userID int64) (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	tok := hex.EncodeToString(b)

	i.lock.Lock()
	defer i.lock.Unlock()
	if existing, ok := i.byUserID[userID]; ok {
		delete(i.refresh, existing)
	}
	i.refresh[tok] = &storedRefreshToken{Token: tok, UserID: userID, Iat: NowTimeFunc()}
	i.byUserID[userID] = tok
	return tok, nil
}

// LookupRefreshToken returns the owner of a live refresh token.
func (i *issuer) LookupRefreshToken(tok string) (int64, bool) {
	i.lock.RLock()
	defer i.lock.RUnlock()
	rt, ok := i.refresh[tok]
	if !ok || NowTimeFunc().Sub(rt.Iat) > i.refreshTTL {
		return 0, false
	}
	return rt.UserID, true
}

// RevokeUser deletes the user's refresh token, if any.
func (i *issuer) RevokeUser(userID int64) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if tok, ok := i.byUserID[userID]; ok {
		delete(i.refresh, tok)
		delete(i.byUserID, userID)
	}
}

// JWK is the public half of the signing key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

func (i *issuer) JWKS() JWKS {
	pub := i.key.PublicKey
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: i.keyID,
		Alg: jwtlib.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}
