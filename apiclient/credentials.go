package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/token"
)

// Credentials is the credential transport a Client uses. The two schemes
// (bearer pair, cookie + CSRF) are alternatives; a Client holds exactly one.
type Credentials interface {
	// Attach adds credentials to req and reports whether any were attached.
	Attach(req *http.Request) bool

	// CanRefresh reports whether a refresh-capable credential is present.
	CanRefresh() bool

	// RefreshBody returns the JSON body of the refresh call, nil for none.
	RefreshBody() (any, error)

	// DecorateRefresh adds scheme-specific headers to the refresh call.
	DecorateRefresh(req *http.Request)

	// Refreshed applies a successful refresh response body.
	Refreshed(body []byte) error

	// Save stores credential material returned by a login-style endpoint.
	Save(access, refresh string) error

	// Clear forgets all credential material.
	Clear() error

	// Jar is installed on the underlying http.Client, nil if unused.
	Jar() http.CookieJar
}

// BearerCredentials reads the access token from a token.Store and refreshes
// it by posting the refresh token.
type BearerCredentials struct {
	store token.Store
}

var _ Credentials = (*BearerCredentials)(nil)

func NewBearerCredentials(store token.Store) *BearerCredentials {
	return &BearerCredentials{store: store}
}

func (b *BearerCredentials) load() token.Pair {
	pair, err := b.store.Load()
	if err != nil {
		return token.Pair{}
	}
	return pair
}

func (b *BearerCredentials) Attach(req *http.Request) bool {
	pair := b.load()
	if pair.Empty() {
		return false
	}
	pair.Apply(req)
	return true
}

func (b *BearerCredentials) CanRefresh() bool {
	return b.load().HasRefresh()
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (b *BearerCredentials) RefreshBody() (any, error) {
	pair := b.load()
	if !pair.HasRefresh() {
		return nil, errs.ErrNoRefreshToken
	}
	return refreshRequest{Refresh: pair.RefreshToken}, nil
}

func (b *BearerCredentials) DecorateRefresh(*http.Request) {}

func (b *BearerCredentials) Refreshed(body []byte) error {
	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if resp.Access == "" {
		return errors.New("refresh response has no access token")
	}
	next := b.load().WithAccess(resp.Access)
	// Servers that rotate refresh tokens return the new one alongside.
	if resp.Refresh != "" {
		next = token.NewPair(resp.Access, resp.Refresh)
	}
	return b.store.Save(next)
}

func (b *BearerCredentials) Save(access, refresh string) error {
	if access == "" || refresh == "" {
		return nil
	}
	return b.store.Save(token.NewPair(access, refresh))
}

func (b *BearerCredentials) Clear() error {
	return b.store.Clear()
}

func (b *BearerCredentials) Jar() http.CookieJar {
	return nil
}

// CookieConfig names the cookies and header of the session-cookie scheme.
// Defaults follow Django.
type CookieConfig struct {
	BaseURL       string
	CSRFCookie    string // default "csrftoken"
	CSRFHeader    string // default "X-CSRFToken"
	RefreshCookie string // when set, CanRefresh requires this cookie
}

// CookieCredentials relies on a browser-style cookie jar holding the server's
// session cookie, and echoes the CSRF cookie in a header on unsafe methods.
type CookieCredentials struct {
	cfg  CookieConfig
	base *url.URL
	jar  *resettableJar
}

var _ Credentials = (*CookieCredentials)(nil)

func NewCookieCredentials(cfg CookieConfig) (*CookieCredentials, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.CSRFCookie == "" {
		cfg.CSRFCookie = "csrftoken"
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = "X-CSRFToken"
	}
	jar, err := newResettableJar()
	if err != nil {
		return nil, err
	}
	return &CookieCredentials{cfg: cfg, base: base, jar: jar}, nil
}

func (c *CookieCredentials) cookie(name string) *http.Cookie {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func (c *CookieCredentials) Attach(req *http.Request) bool {
	if !isSafeMethod(req.Method) {
		if csrf := c.cookie(c.cfg.CSRFCookie); csrf != nil {
			req.Header.Set(c.cfg.CSRFHeader, csrf.Value)
		}
	}
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name != c.cfg.CSRFCookie {
			return true
		}
	}
	return false
}

func (c *CookieCredentials) CanRefresh() bool {
	if c.cfg.RefreshCookie != "" {
		return c.cookie(c.cfg.RefreshCookie) != nil
	}
	return len(c.jar.Cookies(c.base)) > 0
}

func (c *CookieCredentials) RefreshBody() (any, error) {
	return nil, nil
}

func (c *CookieCredentials) DecorateRefresh(req *http.Request) {
	if csrf := c.cookie(c.cfg.CSRFCookie); csrf != nil {
		req.Header.Set(c.cfg.CSRFHeader, csrf.Value)
	}
}

// Refreshed is a no-op: the server sets the renewed cookie on the response.
func (c *CookieCredentials) Refreshed([]byte) error {
	return nil
}

func (c *CookieCredentials) Save(string, string) error {
	return nil
}

func (c *CookieCredentials) Clear() error {
	return c.jar.Reset()
}

func (c *CookieCredentials) Jar() http.CookieJar {
	return c.jar
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// resettableJar lets logout drop every cookie while the http.Client keeps the
// same Jar value.
type resettableJar struct {
	jar  *cookiejar.Jar
	lock sync.RWMutex
}

func newResettableJar() (*resettableJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &resettableJar{jar: jar}, nil
}

func (r *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	r.jar.SetCookies(u, cookies)
}

func (r *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.jar.Cookies(u)
}

func (r *resettableJar) Reset() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	r.lock.Lock()
	r.jar = jar
	r.lock.Unlock()
	return nil
}
