package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jrsteele09/go-storefront/admin"
	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/jrsteele09/go-storefront/internal/utils"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/storefront"
	"github.com/jrsteele09/go-storefront/users"
	"github.com/shopspring/decimal"
)

var errNotLoggedIn = errors.New("not logged in, run `storefront login` first")

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, app *storefront.App, out *printer, args []string) error
}

var commands = []command{
	{"login", "-email <email> [-password <password>]", "log in and keep the session", loginCmd},
	{"register", "-first <name> -last <name> -email <email> [-password <password>]", "create an account", registerCmd},
	{"logout", "", "end the session", logoutCmd},
	{"me", "", "show the logged in account", meCmd},
	{"products", "[-search s] [-category c] [-min p] [-max p]", "list the catalogue", productsCmd},
	{"product", "<product-id>", "show one product", productCmd},
	{"cart", "", "show the cart", cartCmd},
	{"add", "[-qty n] <product-id>", "add a product to the cart", addCmd},
	{"update", "<line-id> <qty>", "change the quantity of a cart line", updateCmd},
	{"remove", "<line-id>", "remove a cart line", removeCmd},
	{"clear", "", "empty the cart", clearCmd},
	{"wishlist", "[toggle <product-id>]", "show or toggle wishlist entries", wishlistCmd},
	{"addresses", "", "list saved addresses", addressesCmd},
	{"checkout", "-method cod|stripe (-address-id n | -name .. -phone .. -street .. -city .. -pincode ..)", "place an order for the cart", checkoutCmd},
	{"confirm", "<session-id>", "confirm a card payment", confirmCmd},
	{"orders", "", "list your orders", ordersCmd},
	{"order", "<order-id>", "show one order", orderCmd},
	{"cancel", "<order-id>", "cancel a processing order", cancelCmd},
	{"notifications", "[-read-all]", "show notifications", notificationsCmd},
	{"dashboard", "", "show back-office figures (staff only)", dashboardCmd},
	{"set-status", "[-status S] [-payment P] <order-id>", "change an order's status (staff only)", setStatusCmd},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if fs.NArg() != positional {
		return nil, errUsage
	}
	return fs.Args(), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", s)
	}
	return id, nil
}

func requireUser(app *storefront.App) error {
	if !app.Auth.IsAuthenticated() {
		return errNotLoggedIn
	}
	return nil
}

func money(d decimal.Decimal) string {
	return "₹" + d.StringFixed(2)
}

func loginCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "")
	password := fs.String("password", os.Getenv("STOREFRONT_PASSWORD"), "")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	user, err := app.Auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	out.Success("Logged in as %s", user.FullName())
	return nil
}

func registerCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("register")
	var reg users.Registration
	fs.StringVar(&reg.FirstName, "first", "", "")
	fs.StringVar(&reg.LastName, "last", "", "")
	fs.StringVar(&reg.Email, "email", "", "")
	fs.StringVar(&reg.Password, "password", os.Getenv("STOREFRONT_PASSWORD"), "")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	user, err := app.Auth.Register(ctx, reg)
	if err != nil {
		return err
	}
	out.Success("Welcome, %s", user.FullName())
	return nil
}

func logoutCmd(ctx context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	app.Auth.Logout(ctx)
	out.Success("Logged out")
	return nil
}

func meCmd(_ context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	u := app.Auth.User()
	role := "customer"
	if u.IsAdmin() {
		role = "staff"
	}
	out.Fields("ID", strconv.FormatInt(u.ID, 10), "Name", u.FullName(), "Email", u.Email, "Role", role, "Joined", u.DateJoined)
	return nil
}

func productsCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("products")
	var f catalog.Filter
	var minPrice, maxPrice string
	fs.StringVar(&f.Search, "search", "", "")
	fs.StringVar(&f.Category, "category", "", "")
	fs.StringVar(&minPrice, "min", "", "")
	fs.StringVar(&maxPrice, "max", "", "")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	for _, p := range []struct {
		raw string
		dst **decimal.Decimal
	}{{minPrice, &f.MinPrice}, {maxPrice, &f.MaxPrice}} {
		if p.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(p.raw)
		if err != nil {
			return fmt.Errorf("%q is not a price", p.raw)
		}
		*p.dst = &d
	}

	products, err := app.Catalog.List(ctx, f)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		stock := strconv.Itoa(p.Stock)
		if !p.InStock() {
			stock = "out of stock"
		}
		rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Name, p.Category, money(p.Price), stock})
	}
	out.Table([]string{"ID", "NAME", "CATEGORY", "PRICE", "STOCK"}, rows)
	return nil
}

func productCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	pos, err := parse(newFlags("product"), args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(pos[0])
	if err != nil {
		return err
	}
	p, err := app.Catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	out.Fields("ID", strconv.FormatInt(p.ID, 10), "Name", p.Name, "Category", p.Category,
		"Price", money(p.Price), "Stock", strconv.Itoa(p.Stock), "Description", p.Description)
	if app.Auth.IsAuthenticated() && app.Cart.IsProductWishlisted(p.ID) {
		out.Note("on your wishlist")
	}
	return nil
}

func cartCmd(_ context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	printCart(app, out)
	return nil
}

func printCart(app *storefront.App, out *printer) {
	items := app.Cart.Items()
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			strconv.FormatInt(it.ID, 10), it.Product.Name, strconv.Itoa(it.Quantity),
			money(it.Product.Price), money(it.Subtotal()),
		})
	}
	out.Table([]string{"LINE", "PRODUCT", "QTY", "PRICE", "SUBTOTAL"}, rows)
	if len(items) > 0 {
		out.Fields("Items", strconv.Itoa(app.Cart.Count()), "Total", money(app.Cart.Total()))
	}
}

func addCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("add")
	qty := fs.Int("qty", 1, "")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	id, err := parseID(pos[0])
	if err != nil {
		return err
	}
	p, err := app.Catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	app.Cart.AddToCart(ctx, *p, *qty)
	printCart(app, out)
	return nil
}

func updateCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	pos, err := parse(newFlags("update"), args, 2)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	line, err := parseID(pos[0])
	if err != nil {
		return err
	}
	qty, err := strconv.Atoi(pos[1])
	if err != nil {
		return fmt.Errorf("%q is not a quantity", pos[1])
	}
	app.Cart.UpdateQuantity(ctx, line, qty)
	printCart(app, out)
	return nil
}

func removeCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	pos, err := parse(newFlags("remove"), args, 1)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	line, err := parseID(pos[0])
	if err != nil {
		return err
	}
	app.Cart.RemoveFromCart(ctx, line)
	printCart(app, out)
	return nil
}

func clearCmd(ctx context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	if !app.Cart.ClearCart(ctx) {
		return errors.New("the cart could not be cleared")
	}
	out.Success("Cart cleared")
	return nil
}

func wishlistCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	switch {
	case len(args) == 2 && args[0] == "toggle":
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		p, err := app.Catalog.Get(ctx, id)
		if err != nil {
			return err
		}
		app.Cart.ToggleWishlist(ctx, *p)
	case len(args) != 0:
		return errUsage
	}

	items := app.Cart.Wishlist()
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{strconv.FormatInt(it.Product.ID, 10), it.Product.Name, money(it.Product.Price)})
	}
	out.Table([]string{"PRODUCT", "NAME", "PRICE"}, rows)
	return nil
}

func addressesCmd(ctx context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	list, err := app.Orders.ListAddresses(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{strconv.FormatInt(a.ID, 10), a.FullName, a.Street + ", " + a.City + " " + a.Pincode, a.Phone})
	}
	out.Table([]string{"ID", "NAME", "ADDRESS", "PHONE"}, rows)
	return nil
}

func checkoutCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("checkout")
	method := fs.String("method", string(orders.PaymentCOD), "")
	addressID := fs.Int64("address-id", 0, "")
	var addr orders.Address
	fs.StringVar(&addr.FullName, "name", "", "")
	fs.StringVar(&addr.Phone, "phone", "", "")
	fs.StringVar(&addr.Street, "street", "", "")
	fs.StringVar(&addr.City, "city", "", "")
	fs.StringVar(&addr.Pincode, "pincode", "", "")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}

	if *addressID != 0 {
		saved, err := app.Orders.ListAddresses(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, a := range saved {
			if a.ID == *addressID {
				addr, found = a, true
			}
		}
		if !found {
			return fmt.Errorf("no saved address %d", *addressID)
		}
	}

	res, err := app.Checkout(ctx, addr, orders.PaymentMethod(*method))
	if err != nil {
		return err
	}
	if res.CheckoutURL != "" {
		out.Success("Order #%d created, complete payment at:", res.OrderID)
		fmt.Fprintln(out.w, res.CheckoutURL)
		out.Note("then run `storefront confirm <session-id>`")
		return nil
	}
	out.Success("Order #%d placed", res.OrderID)
	return nil
}

func confirmCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	pos, err := parse(newFlags("confirm"), args, 1)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	v, err := app.ConfirmPayment(ctx, pos[0])
	if err != nil {
		return err
	}
	if !v.PaymentVerified {
		return fmt.Errorf("payment not completed (status %s)", v.Status)
	}
	out.Success("Payment confirmed")
	return nil
}

func ordersCmd(ctx context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	list, err := app.Orders.ListMine(ctx)
	if err != nil {
		return err
	}
	printOrders(out, list)
	return nil
}

func printOrders(out *printer, list []orders.Order) {
	rows := make([][]string, 0, len(list))
	for _, o := range list {
		rows = append(rows, []string{
			strconv.FormatInt(o.ID, 10), o.CreatedAt, strconv.Itoa(len(o.Items)),
			money(o.TotalAmount), o.OrderStatus, o.PaymentStatus, string(o.PaymentMethod),
		})
	}
	out.Table([]string{"ID", "PLACED", "ITEMS", "TOTAL", "STATUS", "PAYMENT", "METHOD"}, rows)
}

func orderCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	pos, err := parse(newFlags("order"), args, 1)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	id, err := parseID(pos[0])
	if err != nil {
		return err
	}
	o, err := app.Orders.Get(ctx, id)
	if err != nil {
		return err
	}
	out.Fields("Order", "#"+strconv.FormatInt(o.ID, 10), "Placed", o.CreatedAt, "Status", o.OrderStatus,
		"Payment", o.PaymentStatus+" ("+string(o.PaymentMethod)+")", "Total", money(o.TotalAmount))
	rows := make([][]string, 0, len(o.Items))
	for _, it := range o.Items {
		rows = append(rows, []string{it.ProductName, strconv.Itoa(it.Quantity), money(it.Price)})
	}
	out.Table([]string{"PRODUCT", "QTY", "PRICE"}, rows)
	if o.Cancellable() {
		out.Note("can still be cancelled")
	}
	return nil
}

func cancelCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	pos, err := parse(newFlags("cancel"), args, 1)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	id, err := parseID(pos[0])
	if err != nil {
		return err
	}
	res, err := app.Orders.Cancel(ctx, id)
	if err != nil {
		return err
	}
	out.Success("%s", res.Message)
	if res.RefundInfo != "" {
		out.Note("%s", res.RefundInfo)
	}
	return nil
}

func notificationsCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("notifications")
	readAll := fs.Bool("read-all", false, "")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	if err := app.Notifications.Fetch(ctx); err != nil {
		return err
	}
	if *readAll {
		if err := app.Notifications.MarkAllAsRead(ctx); err != nil {
			return err
		}
	}
	rows := [][]string{}
	for _, n := range app.Notifications.All() {
		mark := "•"
		if n.IsRead {
			mark = " "
		}
		rows = append(rows, []string{mark, n.CreatedAt, n.Message})
	}
	out.Table([]string{"", "WHEN", "MESSAGE"}, rows)
	out.Note("%d unread", app.Notifications.UnreadCount())
	return nil
}

func dashboardCmd(ctx context.Context, app *storefront.App, out *printer, _ []string) error {
	if err := requireUser(app); err != nil {
		return err
	}
	d, err := app.Admin.Dashboard(ctx)
	if err != nil {
		return err
	}
	out.Fields("Users", strconv.Itoa(d.TotalUsers), "Products", strconv.Itoa(d.TotalProducts),
		"Orders", strconv.Itoa(d.TotalOrders), "Revenue", money(d.TotalRevenue))
	printOrders(out, d.RecentOrders)
	if len(d.LowStockProducts) > 0 {
		out.Note("low stock:")
		for _, p := range d.LowStockProducts {
			out.Note("  %s (%d left)", p.Name, p.Stock)
		}
	}
	return nil
}

func setStatusCmd(ctx context.Context, app *storefront.App, out *printer, args []string) error {
	fs := newFlags("set-status")
	status := fs.String("status", "", "")
	payment := fs.String("payment", "", "")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if err := requireUser(app); err != nil {
		return err
	}
	id, err := parseID(pos[0])
	if err != nil {
		return err
	}

	var update admin.StatusUpdate
	if *status != "" {
		update.OrderStatus = utils.Ptr(*status)
	}
	if *payment != "" {
		update.PaymentStatus = utils.Ptr(*payment)
	}
	if err := app.Admin.UpdateOrderStatus(ctx, id, update); err != nil {
		return err
	}
	out.Success("Order #%d updated", id)
	return nil
}
