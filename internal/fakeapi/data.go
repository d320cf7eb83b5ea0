package fakeapi

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/jrsteele09/go-storefront/notifications"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/users"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Demo accounts created by New.
const (
	AdminEmail       = "admin@example.com"
	AdminPassword    = "admin-pass-1"
	CustomerEmail    = "ann@example.com"
	CustomerPassword = "ann-pass-1"
)

type account struct {
	users.Profile
	PasswordHash []byte
}

type cartLine struct {
	ID        int64
	ProductID int64
	Quantity  int
}

type wishLine struct {
	ID        int64
	ProductID int64
}

type orderRecord struct {
	orders.Order
	UserID    int64
	SessionID string
}

type addressRecord struct {
	orders.Address
	UserID int64
}

type notificationRecord struct {
	notifications.Notification
	UserID int64
}

// db is the fake's whole state. Every field is guarded by lock.
type db struct {
	passwordCost int

	accounts      map[int64]*account
	products      map[int64]*catalog.Product
	carts         map[int64][]cartLine
	wishlists     map[int64][]wishLine
	orders        []*orderRecord
	addresses     []*addressRecord
	notifications []*notificationRecord
	ids           map[string]int64
	lock          sync.RWMutex
}

func newDB(passwordCost int) *db {
	return &db{
		passwordCost: passwordCost,
		accounts:     make(map[int64]*account),
		products:     make(map[int64]*catalog.Product),
		carts:        make(map[int64][]cartLine),
		wishlists:    make(map[int64][]wishLine),
		ids:          make(map[string]int64),
	}
}

// next returns the next ID of kind. Callers hold the write lock.
func (d *db) next(kind string) int64 {
	d.ids[kind]++
	return d.ids[kind]
}

func (d *db) seed() error {
	if _, err := d.AddAccount(users.Profile{Email: AdminEmail, FirstName: "Ada", LastName: "Admin", IsStaff: true}, AdminPassword); err != nil {
		return err
	}
	if _, err := d.AddAccount(users.Profile{Email: CustomerEmail, FirstName: "Ann", LastName: "Lee"}, CustomerPassword); err != nil {
		return err
	}
	for _, p := range []catalog.Product{
		{Name: "Linen Shirt", Price: decimal.RequireFromString("1299.00"), Category: "shirts", Stock: 12, Image: "/media/shirt.jpg"},
		{Name: "Denim Jacket", Price: decimal.RequireFromString("2499.50"), Category: "jackets", Stock: 3, Image: "/media/jacket.jpg"},
		{Name: "Canvas Tote", Price: decimal.RequireFromString("499.00"), Category: "bags", Stock: 40, Image: "/media/tote.jpg"},
		{Name: "Wool Beanie", Price: decimal.RequireFromString("350.00"), Category: "accessories", Stock: 0, Image: "/media/beanie.jpg"},
	} {
		d.AddProduct(p)
	}
	return nil
}

// AddAccount stores a new account with a bcrypt password hash.
func (d *db) AddAccount(p users.Profile, password string) (*users.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	for _, a := range d.accounts {
		if strings.EqualFold(a.Email, p.Email) {
			return nil, errEmailTaken
		}
	}
	p.ID = d.next("user")
	if p.DateJoined == "" {
		p.DateJoined = NowTimeFunc().UTC().Format("2006-01-02")
	}
	d.accounts[p.ID] = &account{Profile: p, PasswordHash: hash}
	return p.Clone(), nil
}

// Authenticate checks an email/password pair.
func (d *db) Authenticate(email, password string) (*users.Profile, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, a := range d.accounts {
		if !strings.EqualFold(a.Email, email) {
			continue
		}
		if bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) != nil {
			return nil, false
		}
		return a.Profile.Clone(), true
	}
	return nil, false
}

func (d *db) Account(id int64) (*users.Profile, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, false
	}
	return a.Profile.Clone(), true
}

func (d *db) AccountByEmail(email string) (*users.Profile, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, a := range d.accounts {
		if strings.EqualFold(a.Email, email) {
			return a.Profile.Clone(), true
		}
	}
	return nil, false
}

// AddProduct stores p under a fresh ID and returns the stored copy.
func (d *db) AddProduct(p catalog.Product) catalog.Product {
	d.lock.Lock()
	defer d.lock.Unlock()
	p.ID = d.next("product")
	d.products[p.ID] = &p
	return p
}

func (d *db) product(id int64) (catalog.Product, bool) {
	p, ok := d.products[id]
	if !ok {
		return catalog.Product{}, false
	}
	return *p, true
}

func (d *db) sortedProducts() []catalog.Product {
	out := make([]catalog.Product, 0, len(d.products))
	for _, p := range d.products {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b catalog.Product) int { return int(a.ID - b.ID) })
	return out
}

func (d *db) unreadFor(userID int64, message string) {
	d.notifications = append(d.notifications, &notificationRecord{
		Notification: notifications.Notification{
			ID:        d.next("notification"),
			Message:   message,
			CreatedAt: NowTimeFunc().UTC().Format("2006-01-02T15:04:05Z"),
		},
		UserID: userID,
	})
}
