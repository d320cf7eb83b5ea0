// Package storefront assembles the client layer for one application instance:
// a single session, the API client bound to it, and every store and service
// that shares them.
package storefront

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-storefront/admin"
	"github.com/jrsteele09/go-storefront/apiclient"
	"github.com/jrsteele09/go-storefront/auth"
	"github.com/jrsteele09/go-storefront/cart"
	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/jrsteele09/go-storefront/internal/config"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/notifications"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/token"
	"github.com/jrsteele09/go-storefront/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App is the application context. Everything hanging off it shares one
// sessions.State; there are no package-level instances.
type App struct {
	Config        config.Config
	Session       *sessions.State
	Client        *apiclient.Client
	Metrics       *apiclient.Metrics
	Auth          *auth.Store
	Cart          *cart.Store
	Catalog       *catalog.Service
	Orders        *orders.Service
	Admin         *admin.Service
	Notifications *notifications.Store

	logger zerolog.Logger
}

type options struct {
	httpClient *http.Client
	tokens     token.Store
	notifier   cart.Notifier
	registerer prometheus.Registerer
	verifier   auth.IDTokenVerifier
	logger     zerolog.Logger
}

type Option func(*options)

// WithHTTPClient supplies the http.Client to copy. The config timeout applies
// when the client sets none.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTokenStore replaces the token file named by the config. Ignored in
// cookie mode.
func WithTokenStore(s token.Store) Option {
	return func(o *options) {
		o.tokens = s
	}
}

// WithNotifier receives the user-facing cart and wishlist failure messages.
func WithNotifier(n cart.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithRegisterer registers the client metrics with reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithGoogleVerifier overrides the verifier built from the Google client ID.
func WithGoogleVerifier(v auth.IDTokenVerifier) Option {
	return func(o *options) {
		o.verifier = v
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}

	creds, err := newCredentials(cfg, o)
	if err != nil {
		return nil, fmt.Errorf("[Storefront New] %w", err)
	}
	metrics, err := apiclient.NewMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("[Storefront New] %w", err)
	}

	session := sessions.New()
	client, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.GetBaseURL(),
		Timeout:    cfg.GetTimeout(),
		UserAgent:  cfg.GetUserAgent(),
		HTTPClient: o.httpClient,
	}, creds,
		apiclient.WithSessionInvalidator(session),
		apiclient.WithRateLimit(cfg.GetRateLimit()),
		apiclient.WithMetrics(metrics),
		apiclient.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[Storefront New] %w", err)
	}

	authOpts := []auth.StoreOption{auth.WithLogger(o.logger)}
	switch {
	case o.verifier != nil:
		authOpts = append(authOpts, auth.WithGoogleVerifier(o.verifier))
	case cfg.GetGoogleClientID() != "":
		authOpts = append(authOpts, auth.WithGoogleVerifier(auth.NewGoogleVerifier(context.Background(), cfg.GetGoogleClientID())))
	}

	cartOpts := []cart.Option{cart.WithLogger(o.logger)}
	if o.notifier != nil {
		cartOpts = append(cartOpts, cart.WithNotifier(o.notifier))
	}

	app := &App{
		Config:        cfg,
		Session:       session,
		Client:        client,
		Metrics:       metrics,
		Auth:          auth.NewStore(client, session, authOpts...),
		Cart:          cart.New(client, session, cartOpts...),
		Catalog:       catalog.NewService(client),
		Orders:        orders.NewService(client),
		Admin:         admin.NewService(client),
		Notifications: notifications.NewStore(client),
		logger:        o.logger,
	}
	session.Subscribe(app.Cart)
	session.Subscribe(sessions.ObserverFuncs{Logout: app.Notifications.Reset})
	return app, nil
}

func newCredentials(cfg config.Config, o options) (apiclient.Credentials, error) {
	if cfg.GetCredentialMode() == config.CredentialCookie {
		return apiclient.NewCookieCredentials(apiclient.CookieConfig{BaseURL: cfg.GetBaseURL()})
	}
	store := o.tokens
	if store == nil {
		path, err := config.ExpandPath(cfg.GetTokenFile())
		if err != nil {
			return nil, err
		}
		store = token.NewFileStore(path, cfg.GetTokenPassphrase())
	}
	return apiclient.NewBearerCredentials(store), nil
}

// Start runs the identity probe. A nil profile means the caller is a guest.
func (a *App) Start(ctx context.Context) *users.Profile {
	return a.Auth.LoadUser(ctx)
}

// Checkout places an order for everything in the cart replica. Cash orders
// clear the cart straight away; card orders keep it until ConfirmPayment.
func (a *App) Checkout(ctx context.Context, address orders.Address, method orders.PaymentMethod) (*orders.CheckoutResult, error) {
	if !a.Session.IsAuthenticated() {
		return nil, fmt.Errorf("[Storefront Checkout] %w", errs.ErrNotAuthenticated)
	}
	items := a.Cart.Items()
	if len(items) == 0 {
		return nil, errs.Invalid("cart", "is empty")
	}

	lines := make([]orders.CheckoutLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, orders.CheckoutLine{ID: it.Product.ID, Name: it.Product.Name, Price: it.Product.Price, Quantity: it.Quantity})
	}
	res, err := a.Orders.Create(ctx, orders.CheckoutRequest{Address: address, PaymentMethod: method, Cart: lines})
	if err != nil {
		return nil, err
	}
	if method == orders.PaymentCOD && !a.Cart.ClearCart(ctx) {
		a.logger.Warn().Int64("order_id", res.OrderID).Msg("order placed but the cart could not be cleared")
	}
	return res, nil
}

// ConfirmPayment checks a card payment session and clears the cart once it
// is paid.
func (a *App) ConfirmPayment(ctx context.Context, sessionID string) (*orders.PaymentVerification, error) {
	v, err := a.Orders.VerifyPayment(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if v.PaymentVerified {
		a.Cart.ClearCart(ctx)
	}
	return v, nil
}
