// Package orders covers order history, checkout, cancellation, payment
// verification and the saved address book.
package orders

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-storefront/apiclient"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentStripe PaymentMethod = "stripe"
)

// Order and payment states used by the back office.
const (
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"

	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

var (
	phonePattern   = regexp.MustCompile(`^\d{10}$`)
	pincodePattern = regexp.MustCompile(`^\d{6}$`)
)

// Address is a shipping address, either saved in the address book or sent
// inline with a new order.
type Address struct {
	ID       int64  `json:"id,omitempty"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	City     string `json:"city"`
	Pincode  string `json:"pincode"`
}

// Validate checks the address before it is sent anywhere.
func (a Address) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"full_name", a.FullName},
		{"phone", a.Phone},
		{"street", a.Street},
		{"city", a.City},
		{"pincode", a.Pincode},
	} {
		if strings.TrimSpace(f.value) == "" {
			return errs.Invalid(f.name, "all address fields are required")
		}
	}
	if !phonePattern.MatchString(a.Phone) {
		return errs.Invalid("phone", "must be 10 digits")
	}
	if !pincodePattern.MatchString(a.Pincode) {
		return errs.Invalid("pincode", "must be 6 digits")
	}
	return nil
}

// LineItem is one product of an order as it appears in order history.
type LineItem struct {
	ID          int64           `json:"id"`
	ProductName string          `json:"product_name"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type Order struct {
	ID            int64           `json:"id"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OrderStatus   string          `json:"order_status"`
	PaymentStatus string          `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Address       *Address        `json:"address,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

// Cancellable reports whether the order may still be cancelled by its owner:
// only until it ships.
func (o Order) Cancellable() bool {
	return strings.EqualFold(o.OrderStatus, StatusProcessing)
}

// CheckoutLine is the cart summary sent with a new order.
type CheckoutLine struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type CheckoutRequest struct {
	Address       Address        `json:"address"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	Cart          []CheckoutLine `json:"cart"`
}

// Validate rejects a checkout that cannot succeed without contacting the
// server.
func (r CheckoutRequest) Validate() error {
	if err := r.Address.Validate(); err != nil {
		return err
	}
	switch r.PaymentMethod {
	case PaymentCOD, PaymentStripe:
	default:
		return errs.Invalid("payment_method", fmt.Sprintf("unsupported method %q", r.PaymentMethod))
	}
	if len(r.Cart) == 0 {
		return errs.Invalid("cart", "is empty")
	}
	return nil
}

// CheckoutResult is the server's answer to a new order. CheckoutURL is set
// for card payments and is where the buyer completes payment.
type CheckoutResult struct {
	OrderID     int64  `json:"order_id"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

type CancelResult struct {
	Message    string `json:"message"`
	RefundInfo string `json:"refund_info,omitempty"`
}

type PaymentVerification struct {
	Status          string `json:"status"`
	PaymentVerified bool   `json:"payment_verified"`
}

// Service is the orders API.
type Service struct {
	api apiclient.API
}

func NewService(api apiclient.API) *Service {
	return &Service{api: api}
}

// ListMine returns the current user's orders.
func (s *Service) ListMine(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := s.api.Get(ctx, "/orders/my/", nil, &out); err != nil {
		return nil, fmt.Errorf("[Orders ListMine] %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	var o Order
	if err := s.api.Get(ctx, orderPath(id, ""), nil, &o); err != nil {
		return nil, fmt.Errorf("[Orders Get] order %d: %w", id, err)
	}
	return &o, nil
}

// Create places an order. Address and payment method are validated locally
// first; a card order without a checkout URL in the reply is an error.
func (s *Service) Create(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var res CheckoutResult
	if err := s.api.Post(ctx, "/orders/create/", req, &res); err != nil {
		return nil, fmt.Errorf("[Orders Create] %w", err)
	}
	if req.PaymentMethod == PaymentStripe && res.CheckoutURL == "" {
		return nil, fmt.Errorf("[Orders Create] stripe session not created")
	}
	return &res, nil
}

func (s *Service) Cancel(ctx context.Context, id int64) (*CancelResult, error) {
	var res CancelResult
	if err := s.api.Post(ctx, orderPath(id, "cancel/"), nil, &res); err != nil {
		return nil, fmt.Errorf("[Orders Cancel] order %d: %w", id, err)
	}
	if res.Message == "" {
		res.Message = "Order cancelled successfully!"
	}
	return &res, nil
}

// VerifyPayment asks whether the payment session has been paid.
func (s *Service) VerifyPayment(ctx context.Context, sessionID string) (*PaymentVerification, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errs.Invalid("session_id", "is required")
	}
	var res PaymentVerification
	q := url.Values{"session_id": {sessionID}}
	if err := s.api.Get(ctx, "/orders/verify-payment/", q, &res); err != nil {
		return nil, fmt.Errorf("[Orders VerifyPayment] %w", err)
	}
	return &res, nil
}

func (s *Service) ListAddresses(ctx context.Context) ([]Address, error) {
	var out []Address
	if err := s.api.Get(ctx, "/orders/addresses/", nil, &out); err != nil {
		return nil, fmt.Errorf("[Orders ListAddresses] %w", err)
	}
	return out, nil
}

func (s *Service) CreateAddress(ctx context.Context, a Address) (*Address, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ID = 0
	var out Address
	if err := s.api.Post(ctx, "/orders/addresses/", a, &out); err != nil {
		return nil, fmt.Errorf("[Orders CreateAddress] %w", err)
	}
	return &out, nil
}

func (s *Service) UpdateAddress(ctx context.Context, id int64, a Address) (*Address, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ID = 0
	var out Address
	if err := s.api.Patch(ctx, addressPath(id), a, &out); err != nil {
		return nil, fmt.Errorf("[Orders UpdateAddress] address %d: %w", id, err)
	}
	return &out, nil
}

func (s *Service) DeleteAddress(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, addressPath(id)); err != nil {
		return fmt.Errorf("[Orders DeleteAddress] address %d: %w", id, err)
	}
	return nil
}

func orderPath(id int64, suffix string) string {
	return "/orders/" + strconv.FormatInt(id, 10) + "/" + suffix
}

func addressPath(id int64) string {
	return "/orders/addresses/" + strconv.FormatInt(id, 10) + "/"
}
