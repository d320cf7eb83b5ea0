// Package catalog reads the product catalogue and, for staff accounts,
// creates, edits and deletes products.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-storefront/apiclient"
	errs "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/shopspring/decimal"
)

// Product is the read-only projection of a catalogue entry embedded in cart
// and wishlist items. Price arrives as either a JSON string or number.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
	Stock       int             `json:"stock"`
	Description string          `json:"description,omitempty"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Filter narrows List. Zero fields are not sent.
type Filter struct {
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// Query encodes the filter as the query string GET /products/ expects.
func (f Filter) Query() url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", f.Search)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		q.Set("category", strings.ToLower(c))
	}
	if f.MinPrice != nil {
		q.Set("min_price", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("max_price", f.MaxPrice.String())
	}
	return q
}

// Draft is the body of product create and update calls.
type Draft struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
	Description string          `json:"description,omitempty"`
}

// Validate applies the checks the admin forms make before submitting.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return errs.Invalid("name", "is required")
	case strings.TrimSpace(d.Category) == "":
		return errs.Invalid("category", "is required")
	case strings.TrimSpace(d.Image) == "":
		return errs.Invalid("image", "is required")
	case !d.Price.IsPositive():
		return errs.Invalid("price", "must be greater than zero")
	case d.Stock < 0:
		return errs.Invalid("stock", "must not be negative")
	}
	return nil
}

// Service is the catalogue API.
type Service struct {
	api apiclient.API
}

func NewService(api apiclient.API) *Service {
	return &Service{api: api}
}

// List returns the products matching f in server order.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	var products []Product
	if err := s.api.Get(ctx, "/products/", f.Query(), &products); err != nil {
		return nil, fmt.Errorf("[Catalog List] %w", err)
	}
	return products, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	var p Product
	if err := s.api.Get(ctx, productPath(id, false), nil, &p); err != nil {
		return nil, fmt.Errorf("[Catalog Get] product %d: %w", id, err)
	}
	return &p, nil
}

// Create adds a product. Staff only.
func (s *Service) Create(ctx context.Context, d Draft) (*Product, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var p Product
	if err := s.api.Post(ctx, "/products", d, &p); err != nil {
		return nil, fmt.Errorf("[Catalog Create] %w", err)
	}
	return &p, nil
}

// Update replaces the editable fields of product id. Staff only.
func (s *Service) Update(ctx context.Context, id int64, d Draft) (*Product, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var p Product
	if err := s.api.Patch(ctx, productPath(id, false), d, &p); err != nil {
		return nil, fmt.Errorf("[Catalog Update] product %d: %w", id, err)
	}
	return &p, nil
}

// Delete removes product id. Staff only.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, productPath(id, true)); err != nil {
		return fmt.Errorf("[Catalog Delete] product %d: %w", id, err)
	}
	return nil
}

// productPath mirrors the API's routes, which differ on the trailing slash.
func productPath(id int64, slash bool) string {
	p := "/products/" + strconv.FormatInt(id, 10)
	if slash {
		p += "/"
	}
	return p
}
