// Package cart keeps a client-side replica of the server-owned cart and
// wishlist. The server is the source of truth: every mutation is followed by
// a reload, never by a local patch.
package cart

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/jrsteele09/go-storefront/apiclient"
	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	msgLoadCart       = "Failed to load cart"
	msgLoadWishlist   = "Failed to load wishlist"
	msgAddToCart      = "Failed to add item to cart"
	msgRemoveFromCart = "Failed to remove item from cart"
	msgUpdateQuantity = "Failed to update quantity"
	msgClearCart      = "Failed to clear cart"
	msgAddWishlist    = "Failed to add to wishlist"
	msgRemoveWishlist = "Failed to remove from wishlist"
)

// Item is one cart line. ID is the server's line identity, not the product's.
type Item struct {
	ID       int64           `json:"id"`
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Subtotal is price × quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type WishlistItem struct {
	ID      int64           `json:"id"`
	Product catalog.Product `json:"product"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// SessionView tells the store whether a session exists. sessions.State
// implements it.
type SessionView interface {
	IsAuthenticated() bool
}

// Notifier receives the user-facing message of a failed operation. It is a
// side channel: the store never returns those failures to its caller.
type Notifier interface {
	NotifyError(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) NotifyError(message string) { f(message) }

// Snapshot is a point-in-time copy of the replica.
type Snapshot struct {
	Items    []Item
	Wishlist []WishlistItem
}

// Store is the cart and wishlist replica. Register it with
// sessions.State.Subscribe so it loads on login and empties on logout.
type Store struct {
	api      apiclient.API
	session  SessionView
	notifier Notifier
	logger   zerolog.Logger

	items    []Item
	wishlist []WishlistItem
	loading  bool
	// epoch is bumped by Reset; a load that started in an older epoch is
	// discarded so a logged-out view never sees a late response.
	epoch uint64
	lock  sync.RWMutex
}

var _ sessions.Observer = (*Store)(nil)

type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func New(api apiclient.API, session SessionView, opts ...Option) *Store {
	s := &Store{api: api, session: session, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) authenticated() bool {
	return s.session != nil && s.session.IsAuthenticated()
}

func (s *Store) currentEpoch() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.epoch
}

// fail logs err and, when notify is set, publishes the best message for it.
func (s *Store) fail(err error, fallback string, notify bool) {
	msg := apiclient.MessageOf(err, fallback)
	s.logger.Err(err).Str("message", msg).Msg(fallback)
	if notify && s.notifier != nil {
		s.notifier.NotifyError(msg)
	}
}

// LoadCart replaces the cart with the server's, ordered by line ID.
func (s *Store) LoadCart(ctx context.Context) {
	s.loadCart(ctx, false)
}

func (s *Store) loadCart(ctx context.Context, silent bool) {
	if !s.authenticated() {
		s.lock.Lock()
		s.items = nil
		s.lock.Unlock()
		return
	}

	epoch := s.currentEpoch()
	if !silent {
		s.setLoading(true)
		defer s.setLoading(false)
	}

	var resp itemsResponse[Item]
	if err := s.api.Get(ctx, "/cart/", nil, &resp); err != nil {
		s.fail(err, msgLoadCart, !silent)
		return
	}
	slices.SortStableFunc(resp.Items, func(a, b Item) int {
		return cmp.Compare(a.ID, b.ID)
	})

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.epoch != epoch {
		return
	}
	s.items = resp.Items
}

// LoadWishlist replaces the wishlist with the server's. A failed load leaves
// the wishlist empty.
func (s *Store) LoadWishlist(ctx context.Context) {
	if !s.authenticated() {
		s.lock.Lock()
		s.wishlist = nil
		s.lock.Unlock()
		return
	}

	epoch := s.currentEpoch()
	var resp itemsResponse[WishlistItem]
	err := s.api.Get(ctx, "/cart/wishlist/", nil, &resp)
	if err != nil {
		s.fail(err, msgLoadWishlist, false)
		resp.Items = nil
	}
	slices.SortStableFunc(resp.Items, func(a, b WishlistItem) int {
		return cmp.Compare(a.ID, b.ID)
	})

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.epoch != epoch {
		return
	}
	s.wishlist = resp.Items
}

// AddToCart asks the server to add quantity units of product, then reloads.
// A quantity below one adds a single unit.
func (s *Store) AddToCart(ctx context.Context, product catalog.Product, quantity int) {
	if !s.authenticated() {
		return
	}
	if quantity < 1 {
		quantity = 1
	}
	body := map[string]any{"product_id": product.ID, "quantity": quantity}
	if err := s.api.Post(ctx, "/cart/add/", body, nil); err != nil {
		s.fail(err, msgAddToCart, true)
		return
	}
	s.loadCart(ctx, false)
}

func (s *Store) RemoveFromCart(ctx context.Context, itemID int64) {
	if !s.authenticated() {
		return
	}
	if err := s.api.Delete(ctx, "/cart/remove/"+strconv.FormatInt(itemID, 10)+"/"); err != nil {
		s.fail(err, msgRemoveFromCart, true)
		return
	}
	s.loadCart(ctx, true)
}

// UpdateQuantity sets the quantity of a cart line. Anything below one
// removes the line instead.
func (s *Store) UpdateQuantity(ctx context.Context, itemID int64, quantity int) {
	if quantity < 1 {
		s.RemoveFromCart(ctx, itemID)
		return
	}
	if !s.authenticated() {
		return
	}
	path := "/cart/update/" + strconv.FormatInt(itemID, 10) + "/"
	if err := s.api.Patch(ctx, path, map[string]int{"quantity": quantity}, nil); err != nil {
		s.fail(err, msgUpdateQuantity, true)
		return
	}
	s.loadCart(ctx, true)
}

// ClearCart empties the cart on the server and reports whether it succeeded.
// Unlike the other mutators its failure is returned to the caller.
func (s *Store) ClearCart(ctx context.Context) bool {
	if !s.authenticated() {
		return false
	}
	if err := s.api.Delete(ctx, "/cart/clear/"); err != nil {
		s.fail(err, msgClearCart, false)
		return false
	}
	s.loadCart(ctx, true)
	return true
}

func (s *Store) AddToWishlist(ctx context.Context, product catalog.Product) {
	if !s.authenticated() {
		return
	}
	if err := s.api.Post(ctx, "/cart/wishlist/add/", map[string]int64{"product_id": product.ID}, nil); err != nil {
		s.fail(err, msgAddWishlist, true)
		return
	}
	s.LoadWishlist(ctx)
}

// RemoveFromWishlist removes the wishlist entry holding productID. Nothing is
// sent when the replica has no such entry.
func (s *Store) RemoveFromWishlist(ctx context.Context, productID int64) {
	if !s.authenticated() {
		return
	}
	item, ok := s.wishlistEntry(productID)
	if !ok {
		return
	}
	if err := s.api.Delete(ctx, "/cart/wishlist/remove/"+strconv.FormatInt(item.ID, 10)+"/"); err != nil {
		s.fail(err, msgRemoveWishlist, true)
		return
	}
	s.LoadWishlist(ctx)
}

// ToggleWishlist adds product when absent and removes it when present.
func (s *Store) ToggleWishlist(ctx context.Context, product catalog.Product) {
	if s.IsProductWishlisted(product.ID) {
		s.RemoveFromWishlist(ctx, product.ID)
		return
	}
	s.AddToWishlist(ctx, product)
}

func (s *Store) wishlistEntry(productID int64) (WishlistItem, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, it := range s.wishlist {
		if it.Product.ID == productID {
			return it, true
		}
	}
	return WishlistItem{}, false
}

func (s *Store) IsProductWishlisted(productID int64) bool {
	_, ok := s.wishlistEntry(productID)
	return ok
}

// Reset empties both collections.
func (s *Store) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items = nil
	s.wishlist = nil
	s.epoch++
}

func (s *Store) setLoading(v bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.loading = v
}

// Loading is true while a non-silent cart load is in flight.
func (s *Store) Loading() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.loading
}

func (s *Store) Snapshot() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return Snapshot{Items: slices.Clone(s.items), Wishlist: slices.Clone(s.wishlist)}
}

func (s *Store) Items() []Item {
	return s.Snapshot().Items
}

func (s *Store) Wishlist() []WishlistItem {
	return s.Snapshot().Wishlist
}

// Count is the total number of units in the cart.
func (s *Store) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Total is the sum of price × quantity over the cart.
func (s *Store) Total() decimal.Decimal {
	s.lock.RLock()
	defer s.lock.RUnlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (s *Store) WishlistCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.wishlist)
}

// OnLogin loads cart and wishlist once for the new session.
func (s *Store) OnLogin(user *users.Profile) {
	ctx := context.Background()
	s.logger.Debug().Int64("user_id", user.ID).Msg("loading cart for new session")
	s.LoadCart(ctx)
	s.LoadWishlist(ctx)
}

// OnLogout empties the replica before the logout call returns.
func (s *Store) OnLogout() {
	s.Reset()
}
