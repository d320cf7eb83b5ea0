package fakeapi

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/jrsteele09/go-storefront/admin"
	"github.com/jrsteele09/go-storefront/notifications"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/shopspring/decimal"
)

const lowStockThreshold = 5

func (s *Server) NotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := currentUser(r).ID
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()
		out := make([]notifications.Notification, 0)
		for _, n := range slices.Backward(s.db.notifications) {
			if n.UserID == uid {
				out = append(out, n.Notification)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) MarkReadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		uid := currentUser(r).ID
		s.db.lock.Lock()
		defer s.db.lock.Unlock()
		for _, n := range s.db.notifications {
			if n.ID == id && n.UserID == uid {
				n.IsRead = true
				writeDetail(w, http.StatusOK, "Marked as read")
				return
			}
		}
		writeDetail(w, http.StatusNotFound, "Notification not found")
	}
}

// Notify adds an unread notification for the account with email.
func (s *Server) Notify(email, message string) bool {
	user, ok := s.db.AccountByEmail(email)
	if !ok {
		return false
	}
	s.db.lock.Lock()
	defer s.db.lock.Unlock()
	s.db.unreadFor(user.ID, message)
	return true
}

func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()

		d := admin.Dashboard{
			TotalUsers:    len(s.db.accounts),
			TotalProducts: len(s.db.products),
			TotalOrders:   len(s.db.orders),
			TotalRevenue:  s.db.revenue(),
		}
		for _, o := range slices.Backward(s.db.orders) {
			if len(d.RecentOrders) == 5 {
				break
			}
			d.RecentOrders = append(d.RecentOrders, o.Order)
		}
		categories := map[string]int{}
		for _, p := range s.db.sortedProducts() {
			categories[p.Category]++
			if p.Stock < lowStockThreshold {
				d.LowStockProducts = append(d.LowStockProducts, p)
			}
		}
		d.CategoryData = mustRaw(categories)
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) ReportsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()

		timeline := map[string]decimal.Decimal{}
		payments := map[orders.PaymentMethod]int{}
		statuses := map[string]int{}
		for _, o := range s.db.orders {
			payments[o.PaymentMethod]++
			statuses[o.OrderStatus]++
			if o.OrderStatus != orders.StatusCancelled && len(o.CreatedAt) >= 10 {
				day := o.CreatedAt[:10]
				timeline[day] = timeline[day].Add(o.TotalAmount)
			}
		}
		writeJSON(w, http.StatusOK, admin.Report{
			TotalOrders:         len(s.db.orders),
			TotalRevenue:        s.db.revenue(),
			RevenueTimeline:     mustRaw(timeline),
			PaymentDistribution: mustRaw(payments),
			StatusDistribution:  mustRaw(statuses),
		})
	}
}

func (s *Server) UsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()
		out := make([]admin.User, 0, len(s.db.accounts))
		for _, a := range s.db.accounts {
			out = append(out, adminView(a))
		}
		slices.SortFunc(out, func(a, b admin.User) int { return int(a.ID - b.ID) })
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) UserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		s.db.lock.RLock()
		defer s.db.lock.RUnlock()
		a, ok := s.db.accounts[id]
		if !ok {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, adminView(a))
	}
}

func (s *Server) ToggleBlockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		if id == currentUser(r).ID {
			writeDetail(w, http.StatusBadRequest, "You cannot block yourself")
			return
		}
		s.db.lock.Lock()
		a, ok := s.db.accounts[id]
		blocked := false
		if ok {
			a.IsBlock = !a.IsBlock
			blocked = a.IsBlock
		}
		s.db.lock.Unlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		if blocked {
			s.issuer.RevokeUser(id)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"isBlock": blocked})
	}
}

func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := pathID(r, "id")
		if id == currentUser(r).ID {
			writeDetail(w, http.StatusBadRequest, "You cannot delete yourself")
			return
		}
		s.db.lock.Lock()
		_, ok := s.db.accounts[id]
		delete(s.db.accounts, id)
		delete(s.db.carts, id)
		delete(s.db.wishlists, id)
		s.db.lock.Unlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		s.issuer.RevokeUser(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func adminView(a *account) admin.User {
	role := "customer"
	if a.IsStaff {
		role = "admin"
	}
	return admin.User{ID: a.ID, Name: a.FullName(), Email: a.Email, Role: role, IsBlock: a.IsBlock}
}

// revenue sums every order that was not cancelled. Callers hold the lock.
func (d *db) revenue() decimal.Decimal {
	total := decimal.Zero
	for _, o := range d.orders {
		if o.OrderStatus != orders.StatusCancelled {
			total = total.Add(o.TotalAmount)
		}
	}
	return total
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
