// Package admin is the back-office API: dashboard figures, reports, user
// moderation and order status changes. Every call requires a staff session.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-storefront/apiclient"
	"github.com/jrsteele09/go-storefront/catalog"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/shopspring/decimal"
)

// Dashboard holds the headline figures. Chart series are passed through
// undecoded.
type Dashboard struct {
	TotalUsers       int               `json:"total_users"`
	TotalProducts    int               `json:"total_products"`
	TotalOrders      int               `json:"total_orders"`
	TotalRevenue     decimal.Decimal   `json:"total_revenue"`
	RecentOrders     []orders.Order    `json:"recent_orders"`
	CategoryData     json.RawMessage   `json:"category_data,omitempty"`
	LowStockProducts []catalog.Product `json:"low_stock_products"`
}

type Report struct {
	TotalOrders         int             `json:"total_orders"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	RevenueTimeline     json.RawMessage `json:"revenue_timeline,omitempty"`
	PaymentDistribution json.RawMessage `json:"payment_distribution,omitempty"`
	StatusDistribution  json.RawMessage `json:"status_distribution,omitempty"`
}

// User is an account as listed in the back office.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	IsBlock bool   `json:"isBlock"`
}

// StatusUpdate changes one or both order states. Nil fields are left alone.
type StatusUpdate struct {
	OrderStatus   *string `json:"order_status,omitempty"`
	PaymentStatus *string `json:"payment_status,omitempty"`
}

func (u StatusUpdate) Validate() error {
	if u.OrderStatus == nil && u.PaymentStatus == nil {
		return errs.Invalid("status", "nothing to update")
	}
	if u.OrderStatus != nil {
		switch *u.OrderStatus {
		case orders.StatusProcessing, orders.StatusShipped, orders.StatusDelivered, orders.StatusCancelled:
		default:
			return errs.Invalid("order_status", fmt.Sprintf("unknown status %q", *u.OrderStatus))
		}
	}
	if u.PaymentStatus != nil {
		switch *u.PaymentStatus {
		case orders.PaymentUnpaid, orders.PaymentPaid:
		default:
			return errs.Invalid("payment_status", fmt.Sprintf("unknown status %q", *u.PaymentStatus))
		}
	}
	return nil
}

type Service struct {
	api apiclient.API
}

func NewService(api apiclient.API) *Service {
	return &Service{api: api}
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := s.api.Get(ctx, "/panel/dashboard/", nil, &d); err != nil {
		return nil, fmt.Errorf("[Admin Dashboard] %w", err)
	}
	return &d, nil
}

func (s *Service) Reports(ctx context.Context) (*Report, error) {
	var r Report
	if err := s.api.Get(ctx, "/panel/reports/", nil, &r); err != nil {
		return nil, fmt.Errorf("[Admin Reports] %w", err)
	}
	return &r, nil
}

func (s *Service) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := s.api.Get(ctx, "/panel/users/", nil, &out); err != nil {
		return nil, fmt.Errorf("[Admin Users] %w", err)
	}
	return out, nil
}

func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.api.Get(ctx, userPath(id, ""), nil, &u); err != nil {
		return nil, fmt.Errorf("[Admin User] user %d: %w", id, err)
	}
	return &u, nil
}

// ToggleBlock flips the blocked flag of a user and returns the new value.
func (s *Service) ToggleBlock(ctx context.Context, id int64) (bool, error) {
	var res struct {
		IsBlock bool `json:"isBlock"`
	}
	if err := s.api.Post(ctx, userPath(id, "toggle-block/"), nil, &res); err != nil {
		return false, fmt.Errorf("[Admin ToggleBlock] user %d: %w", id, err)
	}
	return res.IsBlock, nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, userPath(id, "delete/")); err != nil {
		return fmt.Errorf("[Admin DeleteUser] user %d: %w", id, err)
	}
	return nil
}

// AllOrders lists every customer's orders.
func (s *Service) AllOrders(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	if err := s.api.Get(ctx, "/orders/admin/all/", nil, &out); err != nil {
		return nil, fmt.Errorf("[Admin AllOrders] %w", err)
	}
	return out, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, u StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	path := "/orders/" + strconv.FormatInt(id, 10) + "/status/"
	if err := s.api.Patch(ctx, path, u, nil); err != nil {
		return fmt.Errorf("[Admin UpdateOrderStatus] order %d: %w", id, err)
	}
	return nil
}

func userPath(id int64, suffix string) string {
	return "/panel/users/" + strconv.FormatInt(id, 10) + "/" + suffix
}
