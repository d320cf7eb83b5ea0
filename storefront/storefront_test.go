package storefront_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-storefront/admin"
	"github.com/jrsteele09/go-storefront/cart"
	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/jrsteele09/go-storefront/internal/config"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/internal/fakeapi"
	"github.com/jrsteele09/go-storefront/internal/utils"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/storefront"
	tokenrepofake "github.com/jrsteele09/go-storefront/token/repofake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL string
	mode    config.CredentialMode
}

var _ config.Config = testConfig{}

func (c testConfig) GetBaseURL() string                       { return c.baseURL }
func (c testConfig) GetTimeout() time.Duration                { return 5 * time.Second }
func (c testConfig) GetUserAgent() string                     { return "storefront-test" }
func (c testConfig) GetRateLimit() float64                    { return 0 }
func (c testConfig) GetCredentialMode() config.CredentialMode { return c.mode }
func (c testConfig) GetTokenFile() string                     { return "" }
func (c testConfig) GetTokenPassphrase() string               { return "" }
func (c testConfig) GetGoogleClientID() string                { return "" }
func (c testConfig) GetLogLevel() string                      { return "error" }
func (c testConfig) GetEnv() string                           { return "TEST" }
func (c testConfig) GetAppName() string                       { return "storefront" }

type messages struct {
	list []string
	lock sync.Mutex
}

func (m *messages) NotifyError(msg string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.list = append(m.list, msg)
}

func (m *messages) All() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.list...)
}

type fixture struct {
	api    *fakeapi.Server
	url    string
	app    *storefront.App
	tokens *tokenrepofake.FakeTokenStore
	notes  *messages
}

func newFixture(t *testing.T, mode config.CredentialMode, opts ...fakeapi.Option) *fixture {
	t.Helper()
	api, err := fakeapi.New(opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	f := &fixture{api: api, url: srv.URL}
	f.app, f.tokens, f.notes = f.newApp(t, mode)
	return f
}

// newApp builds another client instance against the same backend.
func (f *fixture) newApp(t *testing.T, mode config.CredentialMode) (*storefront.App, *tokenrepofake.FakeTokenStore, *messages) {
	t.Helper()
	tokens := tokenrepofake.NewFakeTokenStore()
	notes := &messages{}
	app, err := storefront.New(testConfig{baseURL: f.url, mode: mode},
		storefront.WithTokenStore(tokens),
		storefront.WithNotifier(notes),
	)
	require.NoError(t, err)
	return app, tokens, notes
}

var home = orders.Address{FullName: "Ann Lee", Phone: "9876543210", Street: "1 Main St", City: "Pune", Pincode: "411001"}

func product(t *testing.T, app *storefront.App, id int64) catalog.Product {
	t.Helper()
	p, err := app.Catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return *p
}

func TestApp_GuestProbe(t *testing.T) {
	f := newFixture(t, config.CredentialBearer)
	logouts := 0
	f.app.Session.Subscribe(sessions.ObserverFuncs{Logout: func() { logouts++ }})

	require.True(t, f.app.Session.Loading())
	require.Nil(t, f.app.Start(context.Background()))
	require.False(t, f.app.Session.Loading())
	require.False(t, f.app.Auth.IsAuthenticated())
	require.Zero(t, logouts)
	require.Empty(t, f.notes.All())
	require.Zero(t, f.api.RefreshCount())
}

func TestApp_ShoppingFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CredentialBearer)
	app := f.app

	user, err := app.Auth.Login(ctx, fakeapi.CustomerEmail, fakeapi.CustomerPassword)
	require.NoError(t, err)
	require.Equal(t, "Ann Lee", user.FullName())
	require.False(t, app.Auth.IsAdmin())
	require.Equal(t, 1, f.tokens.Saves())

	shirt, tote, beanie := product(t, app, 1), product(t, app, 3), product(t, app, 4)

	t.Run("adds reload and merge on the server", func(t *testing.T) {
		app.Cart.AddToCart(ctx, shirt, 1)
		app.Cart.AddToCart(ctx, shirt, 1)
		app.Cart.AddToCart(ctx, tote, 0)
		require.Len(t, app.Cart.Items(), 2)
		require.Equal(t, 3, app.Cart.Count())
		require.True(t, app.Cart.Total().Equal(decimal.RequireFromString("3097")))
	})

	t.Run("server rejection is surfaced as a notification", func(t *testing.T) {
		app.Cart.AddToCart(ctx, beanie, 1)
		require.Equal(t, []string{"Only 0 left in stock"}, f.notes.All())
		require.Len(t, app.Cart.Items(), 2)
	})

	t.Run("quantity below one removes the line", func(t *testing.T) {
		toteLine := app.Cart.Items()[1]
		require.Equal(t, tote.ID, toteLine.Product.ID)
		app.Cart.UpdateQuantity(ctx, toteLine.ID, 0)
		require.Len(t, app.Cart.Items(), 1)
		require.True(t, app.Cart.Total().Equal(decimal.RequireFromString("2598")))
	})

	t.Run("wishlist toggle", func(t *testing.T) {
		app.Cart.ToggleWishlist(ctx, tote)
		require.True(t, app.Cart.IsProductWishlisted(tote.ID))
		app.Cart.ToggleWishlist(ctx, tote)
		require.False(t, app.Cart.IsProductWishlisted(tote.ID))
		before := f.api.RequestCount()
		app.Cart.RemoveFromWishlist(ctx, tote.ID)
		require.Equal(t, before, f.api.RequestCount())
	})

	t.Run("cash checkout clears the cart", func(t *testing.T) {
		res, err := app.Checkout(ctx, home, orders.PaymentCOD)
		require.NoError(t, err)
		require.NotZero(t, res.OrderID)
		require.Empty(t, app.Cart.Items())

		mine, err := app.Orders.ListMine(ctx)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		require.True(t, mine[0].TotalAmount.Equal(decimal.RequireFromString("2598")))
		require.True(t, mine[0].Cancellable())

		_, err = app.Checkout(ctx, home, orders.PaymentCOD)
		require.ErrorIs(t, err, errs.ErrValidation, "empty cart")
	})

	t.Run("notifications", func(t *testing.T) {
		require.NoError(t, app.Notifications.Fetch(ctx))
		require.Equal(t, 1, app.Notifications.UnreadCount())
		require.NoError(t, app.Notifications.MarkAllAsRead(ctx))
		require.Zero(t, app.Notifications.UnreadCount())
	})

	t.Run("logout empties every replica", func(t *testing.T) {
		app.Cart.AddToCart(ctx, tote, 2)
		require.NotEmpty(t, app.Cart.Items())

		app.Auth.Logout(ctx)
		require.False(t, app.Session.IsAuthenticated())
		require.Empty(t, app.Cart.Items())
		require.Empty(t, app.Notifications.All())
		require.Equal(t, 1, f.tokens.Clears())
	})
}

func TestApp_CardCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CredentialBearer)
	app := f.app

	_, err := app.Auth.Login(ctx, fakeapi.CustomerEmail, fakeapi.CustomerPassword)
	require.NoError(t, err)
	app.Cart.AddToCart(ctx, product(t, app, 2), 1)

	res, err := app.Checkout(ctx, home, orders.PaymentStripe)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.CheckoutURL, fakeapi.StripeCheckoutBase))
	require.Len(t, app.Cart.Items(), 1, "card orders keep the cart until paid")

	v, err := app.ConfirmPayment(ctx, f.api.SessionIDOf(res.OrderID))
	require.NoError(t, err)
	require.True(t, v.PaymentVerified)
	require.Equal(t, orders.PaymentPaid, v.Status)
	require.Empty(t, app.Cart.Items())

	order, err := app.Orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, orders.PaymentPaid, order.PaymentStatus)

	cancelled, err := app.Orders.Cancel(ctx, res.OrderID)
	require.NoError(t, err)
	require.NotEmpty(t, cancelled.RefundInfo)
}

func TestApp_ExpiredAccessTokenRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CredentialBearer)
	_, err := f.app.Auth.Login(ctx, fakeapi.CustomerEmail, fakeapi.CustomerPassword)
	require.NoError(t, err)

	f.api.ExpireAccessTokens()

	const callers = 6
	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.app.Orders.ListMine(ctx)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), f.api.RefreshCount())
	require.True(t, f.app.Session.IsAuthenticated())
}

func TestApp_RefreshFailureEndsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CredentialBearer)
	_, err := f.app.Auth.Login(ctx, fakeapi.CustomerEmail, fakeapi.CustomerPassword)
	require.NoError(t, err)
	f.app.Cart.AddToCart(ctx, product(t, f.app, 1), 1)
	require.NotEmpty(t, f.app.Cart.Items())

	f.api.FailRefreshes(true)
	f.api.ExpireAccessTokens()

	_, err = f.app.Orders.ListMine(ctx)
	require.ErrorIs(t, err, errs.ErrSessionExpired)
	require.False(t, f.app.Session.IsAuthenticated())
	require.Empty(t, f.app.Cart.Items())
	_, err = f.tokens.Load()
	require.Error(t, err)
}

func TestApp_CookieSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CredentialCookie, fakeapi.WithCookieSessions())
	app := f.app

	user, err := app.Auth.Login(ctx, fakeapi.CustomerEmail, fakeapi.CustomerPassword)
	require.NoError(t, err)
	require.Equal(t, fakeapi.CustomerEmail, user.Email)
	require.Zero(t, f.tokens.Saves(), "cookie mode keeps no token pair")

	app.Cart.AddToCart(ctx, product(t, app, 3), 1)
	require.Len(t, app.Cart.Items(), 1, "unsafe methods carry the CSRF header")

	f.api.ExpireAccessTokens()
	app.Cart.LoadCart(ctx)
	require.Len(t, app.Cart.Items(), 1)
	require.Equal(t, int64(1), f.api.RefreshCount())

	app.Auth.Logout(ctx)
	require.Nil(t, app.Start(ctx))
}

func TestApp_BackOffice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CredentialBearer)
	shopper := f.app
	_, err := shopper.Auth.Login(ctx, fakeapi.CustomerEmail, fakeapi.CustomerPassword)
	require.NoError(t, err)
	shopper.Cart.AddToCart(ctx, product(t, shopper, 1), 1)
	placed, err := shopper.Checkout(ctx, home, orders.PaymentCOD)
	require.NoError(t, err)

	staff, _, _ := f.newApp(t, config.CredentialBearer)
	_, err = staff.Auth.Login(ctx, fakeapi.AdminEmail, fakeapi.AdminPassword)
	require.NoError(t, err)
	require.True(t, staff.Auth.IsAdmin())

	t.Run("customers are refused", func(t *testing.T) {
		_, err := shopper.Admin.Dashboard(ctx)
		require.ErrorIs(t, err, errs.ErrForbidden)
	})

	t.Run("dashboard and reports", func(t *testing.T) {
		d, err := staff.Admin.Dashboard(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, d.TotalUsers)
		require.Equal(t, 1, d.TotalOrders)
		require.True(t, d.TotalRevenue.Equal(decimal.RequireFromString("1299")))
		require.Len(t, d.RecentOrders, 1)

		r, err := staff.Admin.Reports(ctx)
		require.NoError(t, err)
		require.JSONEq(t, `{"cod":1}`, string(r.PaymentDistribution))
	})

	t.Run("order status", func(t *testing.T) {
		err := staff.Admin.UpdateOrderStatus(ctx, placed.OrderID, admin.StatusUpdate{OrderStatus: utils.Ptr(orders.StatusShipped)})
		require.NoError(t, err)

		o, err := shopper.Orders.Get(ctx, placed.OrderID)
		require.NoError(t, err)
		require.Equal(t, orders.StatusShipped, o.OrderStatus)
		require.False(t, o.Cancellable())
		_, err = shopper.Orders.Cancel(ctx, placed.OrderID)
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("catalog maintenance", func(t *testing.T) {
		created, err := staff.Catalog.Create(ctx, catalog.Draft{Name: "Silk Scarf", Price: decimal.RequireFromString("899"), Category: "accessories", Stock: 4, Image: "/media/scarf.jpg"})
		require.NoError(t, err)

		list, err := shopper.Catalog.List(ctx, catalog.Filter{Category: "Accessories"})
		require.NoError(t, err)
		require.Len(t, list, 2)

		_, err = staff.Catalog.Update(ctx, created.ID, catalog.Draft{Name: "Silk Scarf", Price: decimal.RequireFromString("799"), Category: "accessories", Stock: 4, Image: "/media/scarf.jpg"})
		require.NoError(t, err)
		require.NoError(t, staff.Catalog.Delete(ctx, created.ID))
		_, err = shopper.Catalog.Get(ctx, created.ID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("blocking a user", func(t *testing.T) {
		all, err := staff.Admin.Users(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		blocked, err := staff.Admin.ToggleBlock(ctx, shopper.Auth.User().ID)
		require.NoError(t, err)
		require.True(t, blocked)

		_, err = shopper.Orders.ListMine(ctx)
		require.ErrorIs(t, err, errs.ErrForbidden)
	})
}

var _ cart.Notifier = (*messages)(nil)
