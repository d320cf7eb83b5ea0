package fakeapi

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/shopspring/decimal"
)

// StripeCheckoutBase prefixes the checkout URLs handed out for card orders.
const StripeCheckoutBase = "https://checkout.stripe.com/c/pay/"

func (s *Server) MyOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := currentUser(r).ID
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()

		out := make([]orders.Order, 0)
		for _, o := range slices.Backward(s.db.orders) {
			if o.UserID == uid {
				out = append(out, o.Order)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) GetOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		user := currentUser(r)
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()

		o := s.db.order(id)
		if o == nil || (o.UserID != user.ID && !user.IsAdmin()) {
			writeDetail(w, http.StatusNotFound, "Order not found")
			return
		}
		writeJSON(w, http.StatusOK, o.Order)
	}
}

// CreateOrderHandler prices the order from the catalog, not from the prices
// the client sent.
func (s *Server) CreateOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orders.CheckoutRequest
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if err := req.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		rec := &orderRecord{UserID: uid}
		total := decimal.Zero
		for _, line := range req.Cart {
			p, ok := s.db.product(line.ID)
			if !ok {
				writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Product %d no longer exists", line.ID))
				return
			}
			if line.Quantity > p.Stock {
				writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Only %d of %s left in stock", p.Stock, p.Name))
				return
			}
			rec.Items = append(rec.Items, orders.LineItem{
				ID: s.db.next("order_item"), ProductName: p.Name, Image: p.Image, Category: p.Category,
				Quantity: line.Quantity, Price: p.Price,
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		for _, line := range req.Cart {
			s.db.products[line.ID].Stock -= line.Quantity
		}

		address := req.Address
		rec.ID = s.db.next("order")
		rec.Address = &address
		rec.TotalAmount = total
		rec.OrderStatus = orders.StatusProcessing
		rec.PaymentStatus = orders.PaymentUnpaid
		rec.PaymentMethod = req.PaymentMethod
		rec.CreatedAt = NowTimeFunc().UTC().Format("2006-01-02T15:04:05Z")
		s.db.orders = append(s.db.orders, rec)

		if req.PaymentMethod == orders.PaymentStripe {
			rec.SessionID = "cs_test_" + uuid.NewString()
			writeJSON(w, http.StatusCreated, orders.CheckoutResult{OrderID: rec.ID, CheckoutURL: StripeCheckoutBase + rec.SessionID})
			return
		}
		s.db.unreadFor(uid, fmt.Sprintf("Order #%d placed successfully", rec.ID))
		writeJSON(w, http.StatusCreated, orders.CheckoutResult{OrderID: rec.ID, Message: "Order placed successfully"})
	}
}

// SessionIDOf returns the payment session of a card order, for tests that
// play the payment provider.
func (s *Server) SessionIDOf(orderID int64) string {
	s.db.lock.RLock()
	defer s.db.lock.RUnlock()
	if o := s.db.order(orderID); o != nil {
		return o.SessionID
	}
	return ""
}

func (s *Server) VerifyPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		for _, o := range s.db.orders {
			if o.SessionID == "" || o.SessionID != sessionID || o.UserID != uid {
				continue
			}
			if o.PaymentStatus != orders.PaymentPaid {
				o.PaymentStatus = orders.PaymentPaid
				s.db.unreadFor(uid, fmt.Sprintf("Payment received for order #%d", o.ID))
			}
			writeJSON(w, http.StatusOK, orders.PaymentVerification{Status: o.PaymentStatus, PaymentVerified: true})
			return
		}
		writeDetail(w, http.StatusNotFound, "Payment session not found")
	}
}

func (s *Server) CancelOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		uid := currentUser(r).ID

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		o := s.db.order(id)
		if o == nil || o.UserID != uid {
			writeDetail(w, http.StatusNotFound, "Order not found")
			return
		}
		if !o.Cancellable() {
			writeDetail(w, http.StatusBadRequest, "Only processing orders can be cancelled")
			return
		}
		o.OrderStatus = orders.StatusCancelled
		res := orders.CancelResult{Message: "Order cancelled successfully!"}
		if o.PaymentStatus == orders.PaymentPaid {
			res.RefundInfo = "Refund will be credited within 5-7 business days"
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) AllOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()
		out := make([]orders.Order, 0, len(s.db.orders))
		for _, o := range slices.Backward(s.db.orders) {
			out = append(out, o.Order)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PatchOrdersHandler serves PATCH /orders/addresses/{id}/ and
// PATCH /orders/{id}/status/.
func (s *Server) PatchOrdersHandler() http.HandlerFunc {
	updateAddress := s.UpdateAddressHandler()
	updateStatus := ChainMiddleware(s.UpdateOrderStatusHandler(), s.RequireAdmin())
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.PathValue("a") == "addresses":
			r.SetPathValue("id", r.PathValue("b"))
			updateAddress(w, r)
		case r.PathValue("b") == "status":
			r.SetPathValue("id", r.PathValue("a"))
			updateStatus(w, r)
		default:
			writeDetail(w, http.StatusNotFound, "Not found.")
		}
	}
}

func (s *Server) UpdateOrderStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		var req struct {
			OrderStatus   *string `json:"order_status"`
			PaymentStatus *string `json:"payment_status"`
		}
		if err := readJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}

		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		o := s.db.order(id)
		if o == nil {
			writeDetail(w, http.StatusNotFound, "Order not found")
			return
		}
		if req.OrderStatus != nil && *req.OrderStatus != o.OrderStatus {
			o.OrderStatus = *req.OrderStatus
			s.db.unreadFor(o.UserID, fmt.Sprintf("Order #%d is now %s", o.ID, o.OrderStatus))
		}
		if req.PaymentStatus != nil {
			o.PaymentStatus = *req.PaymentStatus
		}
		writeJSON(w, http.StatusOK, o.Order)
	}
}

func (s *Server) ListAddressesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := currentUser(r).ID
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()
		out := make([]orders.Address, 0)
		for _, a := range s.db.addresses {
			if a.UserID == uid {
				out = append(out, a.Address)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) CreateAddressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a orders.Address
		if err := readJSON(r, &a); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if err := a.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		a.ID = s.db.next("address")
		s.db.addresses = append(s.db.addresses, &addressRecord{Address: a, UserID: currentUser(r).ID})
		writeJSON(w, http.StatusCreated, a)
	}
}

func (s *Server) UpdateAddressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		var a orders.Address
		if err := readJSON(r, &a); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if err := a.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		rec := s.db.address(id, currentUser(r).ID)
		if rec == nil {
			writeDetail(w, http.StatusNotFound, "Address not found")
			return
		}
		a.ID = id
		rec.Address = a
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) DeleteAddressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		uid := currentUser(r).ID
		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		if s.db.address(id, uid) == nil {
			writeDetail(w, http.StatusNotFound, "Address not found")
			return
		}
		s.db.addresses = slices.DeleteFunc(s.db.addresses, func(a *addressRecord) bool { return a.ID == id })
		w.WriteHeader(http.StatusNoContent)
	}
}

func (d *db) order(id int64) *orderRecord {
	for _, o := range d.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (d *db) address(id, userID int64) *addressRecord {
	for _, a := range d.addresses {
		if a.ID == id && a.UserID == userID {
			return a
		}
	}
	return nil
}
