// Package apiclient is the HTTP layer between the storefront stores and the
// REST API: base URL, timeout, credential attachment, typed errors and the
// transparent refresh of expired credentials.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultRefreshPath = "/refresh/"
	RequestIDHeader    = "X-Request-ID"

	defaultUserAgent = "go-storefront/0.1"
	maxBodyBytes     = 8 << 20
)

// SessionInvalidator is told when the session ended for good (terminal auth
// failure). sessions.State implements it.
type SessionInvalidator interface {
	InvalidateSession()
}

// InvalidatorFunc adapts a function to SessionInvalidator.
type InvalidatorFunc func()

func (f InvalidatorFunc) InvalidateSession() { f() }

// API is the request surface the stores and services depend on. *Client
// implements it.
type API interface {
	Get(ctx context.Context, path string, query url.Values, dest any) error
	Post(ctx context.Context, path string, body, dest any) error
	Patch(ctx context.Context, path string, body, dest any) error
	Delete(ctx context.Context, path string) error
}

var _ API = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	RefreshPath string
	HTTPClient  *http.Client
}

// Client issues requests against a single base URL.
type Client struct {
	baseURL     string
	userAgent   string
	refreshPath string
	http        *http.Client
	creds       Credentials
	invalidator SessionInvalidator
	limiter     *rate.Limiter
	metrics     *Metrics
	logger      zerolog.Logger
	refresher   *refresher
}

// Option configures optional Client dependencies.
type Option func(*Client)

// WithSessionInvalidator sets the handler run on terminal auth failures.
func WithSessionInvalidator(inv SessionInvalidator) Option {
	return func(c *Client) {
		c.invalidator = inv
	}
}

// WithRateLimit paces outgoing requests to rps per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMetrics records request and refresh counters.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger replaces the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client. creds is required; pick BearerCredentials or
// CookieCredentials.
func New(cfg Config, creds Credentials, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errs.Wrapf(errs.ErrInvalidConfig, "[apiclient New] base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("[apiclient New] parse base URL %q: %w", cfg.BaseURL, err)
	}
	if creds == nil {
		return nil, errs.Wrapf(errs.ErrInvalidConfig, "[apiclient New] credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The caller's client is copied, never modified.
	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		*httpClient = *cfg.HTTPClient
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeout
	}
	if jar := creds.Jar(); jar != nil {
		httpClient.Jar = jar
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		refreshPath: cfg.RefreshPath,
		http:        httpClient,
		creds:       creds,
		logger:      log.Logger,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.refreshPath == "" {
		c.refreshPath = DefaultRefreshPath
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.invalidator == nil {
		c.invalidator = InvalidatorFunc(func() {
			c.logger.Error().Msg("session invalidated but no invalidator is configured")
		})
	}
	c.refresher = &refresher{client: c}
	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials returns the active credential transport.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// SaveCredentials stores credential material from a login-style response.
func (c *Client) SaveCredentials(access, refresh string) error {
	return c.refresher.replace(func() error {
		return c.creds.Save(access, refresh)
	})
}

// ClearCredentials drops all local credential material.
func (c *Client) ClearCredentials() error {
	return c.refresher.replace(c.creds.Clear)
}

// Get decodes the response of GET path into dest.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dest any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, dest)
}

// Post sends body as JSON and decodes the response into dest.
func (c *Client) Post(ctx context.Context, path string, body, dest any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, dest)
}

// Patch sends body as JSON and decodes the response into dest.
func (c *Client) Patch(ctx context.Context, path string, body, dest any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, dest)
}

// Delete issues a DELETE and discards any response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do sends one logical request. A 401 caused by an expired credential is
// recovered by a single shared refresh and one replay; callers only see the
// error if recovery is impossible.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req := &call{method: method, path: path, query: query, body: payload}
	respBody, err := c.refresher.execute(ctx, req)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// call is one logical request, possibly sent twice.
type call struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	retried bool
}

// attempt is the outcome of sending a call once.
type attempt struct {
	body       []byte
	err        error
	attached   bool
	generation uint64
}

func (c *Client) url(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// send performs exactly one HTTP exchange. withCreds false is used for the
// refresh call, which carries its own credential in the body or cookie.
func (c *Client) send(ctx context.Context, cl *call, withCreds bool, decorate func(*http.Request)) attempt {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return attempt{err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	var bodyReader io.Reader
	if cl.body != nil {
		bodyReader = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.url(cl.path, cl.query), bodyReader)
	if err != nil {
		return attempt{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	var out attempt
	out.generation = c.refresher.currentGeneration()
	if withCreds {
		out.attached = c.creds.Attach(req)
	}
	if decorate != nil {
		decorate(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observeRequest(cl.method, 0, elapsed)
		c.logger.Debug().Err(err).Str("request_id", requestID).Str("method", cl.method).Str("path", cl.path).Msg("request failed")
		out.err = fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.observeRequest(cl.method, resp.StatusCode, elapsed)
	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", cl.method).
		Str("path", cl.path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("api request")
	if err != nil {
		out.err = fmt.Errorf("read %s %s response: %w", cl.method, cl.path, err)
		return out
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.err = &HTTPError{Status: resp.StatusCode, Method: cl.method, Path: cl.path, Payload: body}
		return out
	}
	out.body = body
	return out
}
