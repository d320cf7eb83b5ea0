package fakeapi

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-storefront/cart"
	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/shopspring/decimal"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) ListProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		search := strings.ToLower(q.Get("search"))
		category := strings.ToLower(q.Get("category"))
		minPrice, minErr := decimal.NewFromString(q.Get("min_price"))
		maxPrice, maxErr := decimal.NewFromString(q.Get("max_price"))

		s.db.lock.RLock()
		all := s.db.sortedProducts()
		s.db.lock.RUnlock()

		out := make([]catalog.Product, 0, len(all))
		for _, p := range all {
			switch {
			case search != "" && !strings.Contains(strings.ToLower(p.Name), search):
			case category != "" && strings.ToLower(p.Category) != category:
			case minErr == nil && p.Price.LessThan(minPrice):
			case maxErr == nil && p.Price.GreaterThan(maxPrice):
			default:
				out = append(out, p)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) GetProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		s.db.lock.RLock()
		p, ok := s.db.product(id)
		s.db.lock.RUnlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) CreateProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d catalog.Draft
		if err := readJSON(r, &d); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if err := d.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		p := s.db.AddProduct(catalog.Product{
			Name: d.Name, Price: d.Price, Category: d.Category, Stock: d.Stock, Image: d.Image, Description: d.Description,
		})
		writeJSON(w, http.StatusCreated, p)
	}
}

func (s *Server) UpdateProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		var d catalog.Draft
		if err := readJSON(r, &d); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if err := d.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		p, ok := s.db.products[id]
		if !ok {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		p.Name, p.Price, p.Category, p.Stock, p.Image, p.Description = d.Name, d.Price, d.Category, d.Stock, d.Image, d.Description
		writeJSON(w, http.StatusOK, *p)
	}
}

func (s *Server) DeleteProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		if _, ok := s.db.products[id]; !ok {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		delete(s.db.products, id)
		for uid, lines := range s.db.carts {
			s.db.carts[uid] = slices.DeleteFunc(lines, func(l cartLine) bool { return l.ProductID == id })
		}
		for uid, lines := range s.db.wishlists {
			s.db.wishlists[uid] = slices.DeleteFunc(lines, func(l wishLine) bool { return l.ProductID == id })
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CartHandler lists the cart newest line first, the way the upstream API
// orders it.
func (s *Server) CartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := currentUser(r).ID
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()

		items := make([]cart.Item, 0, len(s.db.carts[uid]))
		for _, l := range slices.Backward(s.db.carts[uid]) {
			p, _ := s.db.product(l.ProductID)
			items = append(items, cart.Item{ID: l.ID, Product: p, Quantity: l.Quantity})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (s *Server) CartAddHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductID int64 `json:"product_id"`
			Quantity  int   `json:"quantity"`
		}
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if req.Quantity < 1 {
			writeFieldError(w, "quantity", "Ensure this value is greater than or equal to 1.")
			return
		}
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		p, ok := s.db.product(req.ProductID)
		if !ok {
			writeDetail(w, http.StatusNotFound, "Product not found")
			return
		}
		lines := s.db.carts[uid]
		i := slices.IndexFunc(lines, func(l cartLine) bool { return l.ProductID == p.ID })
		want := req.Quantity
		if i >= 0 {
			want += lines[i].Quantity
		}
		if want > p.Stock {
			writeDetail(w, http.StatusBadRequest, "Only "+strconv.Itoa(p.Stock)+" left in stock")
			return
		}
		if i >= 0 {
			lines[i].Quantity = want
		} else {
			s.db.carts[uid] = append(lines, cartLine{ID: s.db.next("cart"), ProductID: p.ID, Quantity: want})
		}
		writeDetail(w, http.StatusOK, "Item added to cart")
	}
}

func (s *Server) CartRemoveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		lines := s.db.carts[uid]
		i := slices.IndexFunc(lines, func(l cartLine) bool { return l.ID == id })
		if i < 0 {
			writeDetail(w, http.StatusNotFound, "Item not found in cart")
			return
		}
		s.db.carts[uid] = slices.Delete(lines, i, i+1)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) CartUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if req.Quantity < 1 {
			writeFieldError(w, "quantity", "Ensure this value is greater than or equal to 1.")
			return
		}
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		lines := s.db.carts[uid]
		i := slices.IndexFunc(lines, func(l cartLine) bool { return l.ID == id })
		if i < 0 {
			writeDetail(w, http.StatusNotFound, "Item not found in cart")
			return
		}
		if p, ok := s.db.product(lines[i].ProductID); ok && req.Quantity > p.Stock {
			writeDetail(w, http.StatusBadRequest, "Only "+strconv.Itoa(p.Stock)+" left in stock")
			return
		}
		lines[i].Quantity = req.Quantity
		writeDetail(w, http.StatusOK, "Cart updated")
	}
}

func (s *Server) CartClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.db.lock.Lock()
		delete(s.db.carts, currentUser(r).ID)
		s.db.lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) WishlistHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := currentUser(r).ID
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()

		items := make([]cart.WishlistItem, 0, len(s.db.wishlists[uid]))
		for _, l := range s.db.wishlists[uid] {
			p, _ := s.db.product(l.ProductID)
			items = append(items, cart.WishlistItem{ID: l.ID, Product: p})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (s *Server) WishlistAddHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductID int64 `json:"product_id"`
		}
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		if _, ok := s.db.product(req.ProductID); !ok {
			writeDetail(w, http.StatusNotFound, "Product not found")
			return
		}
		if slices.ContainsFunc(s.db.wishlists[uid], func(l wishLine) bool { return l.ProductID == req.ProductID }) {
			writeDetail(w, http.StatusBadRequest, "Product already in wishlist")
			return
		}
		s.db.wishlists[uid] = append(s.db.wishlists[uid], wishLine{ID: s.db.next("wishlist"), ProductID: req.ProductID})
		writeDetail(w, http.StatusCreated, "Added to wishlist")
	}
}

func (s *Server) WishlistRemoveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		lines := s.db.wishlists[uid]
		i := slices.IndexFunc(lines, func(l wishLine) bool { return l.ID == id })
		if i < 0 {
			writeDetail(w, http.StatusNotFound, "Item not found in wishlist")
			return
		}
		s.db.wishlists[uid] = slices.Delete(lines, i, i+1)
		w.WriteHeader(http.StatusNoContent)
	}
}
