package fakeapi

// Route path constants
const (
	// Identity
	RouteLogin    = "/login/"
	RouteRegister = "/register/"
	RouteGoogle   = "/google/"
	RouteRefresh  = "/refresh/"
	RouteLogout   = "/logout/"
	RouteMe       = "/me/"

	// Catalog
	RouteProducts = "/products/"

	// Cart and wishlist
	RouteCart           = "/cart/"
	RouteCartAdd        = "/cart/add/"
	RouteCartClear      = "/cart/clear/"
	RouteWishlist       = "/cart/wishlist/"
	RouteWishlistAdd    = "/cart/wishlist/add/"
	RouteWishlistRemove = "/cart/wishlist/remove/{id}/"
	RouteCartRemove     = "/cart/remove/{id}/"
	RouteCartUpdate     = "/cart/update/{id}/"

	// Orders
	RouteOrdersMine     = "/orders/my/"
	RouteOrdersCreate   = "/orders/create/"
	RouteVerifyPayment  = "/orders/verify-payment/"
	RouteAddresses      = "/orders/addresses/"
	RouteOrder          = "/orders/{id}/"
	RouteOrderCancel    = "/orders/{id}/cancel/"
	RouteOrdersAdminAll = "/orders/admin/all/"

	// Notifications
	RouteNotifications    = "/accounts/notifications/"
	RouteNotificationRead = "/accounts/notifications/{id}/read/"

	// Admin panel
	RoutePanelDashboard   = "/panel/dashboard/"
	RoutePanelReports     = "/panel/reports/"
	RoutePanelUsers       = "/panel/users/"
	RoutePanelUser        = "/panel/users/{id}/"
	RoutePanelToggleBlock = "/panel/users/{id}/toggle-block/"
	RoutePanelDeleteUser  = "/panel/users/{id}/delete/"

	RouteJWKS = "/.well-known/jwks.json"
)

func (s *Server) initRoutes() {
	api := s.APIMiddleware
	authed := func(mw ...middleware) []middleware {
		return s.APIMiddleware(append([]middleware{s.RequireAuth()}, mw...)...)
	}
	staff := authed(s.RequireAdmin())

	// Identity
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), api()...))
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), api()...))
	s.RegisterRouteFunc("POST "+RouteGoogle, ChainMiddleware(s.GoogleHandler(), api()...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), api()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteJWKS, ChainMiddleware(s.JWKSHandler(), api()...))

	// Catalog. Item routes have no trailing slash except delete, as upstream.
	s.RegisterRouteFunc("GET "+RouteProducts+"{$}", ChainMiddleware(s.ListProductsHandler(), api()...))
	s.RegisterRouteFunc("GET /products/{id}", ChainMiddleware(s.GetProductHandler(), api()...))
	s.RegisterRouteFunc("POST /products", ChainMiddleware(s.CreateProductHandler(), staff...))
	s.RegisterRouteFunc("PATCH /products/{id}", ChainMiddleware(s.UpdateProductHandler(), staff...))
	s.RegisterRouteFunc("DELETE /products/{id}/{$}", ChainMiddleware(s.DeleteProductHandler(), staff...))

	// Cart and wishlist
	s.RegisterRouteFunc("GET "+RouteCart+"{$}", ChainMiddleware(s.CartHandler(), authed()...))
	s.RegisterRouteFunc("POST "+RouteCartAdd+"{$}", ChainMiddleware(s.CartAddHandler(), authed()...))
	s.RegisterRouteFunc("DELETE "+RouteCartRemove+"{$}", ChainMiddleware(s.CartRemoveHandler(), authed()...))
	s.RegisterRouteFunc("PATCH "+RouteCartUpdate+"{$}", ChainMiddleware(s.CartUpdateHandler(), authed()...))
	s.RegisterRouteFunc("DELETE "+RouteCartClear+"{$}", ChainMiddleware(s.CartClearHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteWishlist+"{$}", ChainMiddleware(s.WishlistHandler(), authed()...))
	s.RegisterRouteFunc("POST "+RouteWishlistAdd+"{$}", ChainMiddleware(s.WishlistAddHandler(), authed()...))
	s.RegisterRouteFunc("DELETE "+RouteWishlistRemove+"{$}", ChainMiddleware(s.WishlistRemoveHandler(), authed()...))

	// Orders. Address updates and status changes share one PATCH shape,
	// /orders/{a}/{b}/, so they are dispatched by a single handler.
	s.RegisterRouteFunc("GET "+RouteOrdersMine+"{$}", ChainMiddleware(s.MyOrdersHandler(), authed()...))
	s.RegisterRouteFunc("POST "+RouteOrdersCreate+"{$}", ChainMiddleware(s.CreateOrderHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteVerifyPayment+"{$}", ChainMiddleware(s.VerifyPaymentHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteAddresses+"{$}", ChainMiddleware(s.ListAddressesHandler(), authed()...))
	s.RegisterRouteFunc("POST "+RouteAddresses+"{$}", ChainMiddleware(s.CreateAddressHandler(), authed()...))
	s.RegisterRouteFunc("DELETE /orders/addresses/{id}/{$}", ChainMiddleware(s.DeleteAddressHandler(), authed()...))
	s.RegisterRouteFunc("PATCH /orders/{a}/{b}/{$}", ChainMiddleware(s.PatchOrdersHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteOrder+"{$}", ChainMiddleware(s.GetOrderHandler(), authed()...))
	s.RegisterRouteFunc("POST "+RouteOrderCancel+"{$}", ChainMiddleware(s.CancelOrderHandler(), authed()...))
	s.RegisterRouteFunc("GET "+RouteOrdersAdminAll+"{$}", ChainMiddleware(s.AllOrdersHandler(), staff...))

	// Notifications
	s.RegisterRouteFunc("GET "+RouteNotifications+"{$}", ChainMiddleware(s.NotificationsHandler(), authed()...))
	s.RegisterRouteFunc("POST "+RouteNotificationRead+"{$}", ChainMiddleware(s.MarkReadHandler(), authed()...))

	// Admin panel
	s.RegisterRouteFunc("GET "+RoutePanelDashboard+"{$}", ChainMiddleware(s.DashboardHandler(), staff...))
	s.RegisterRouteFunc("GET "+RoutePanelReports+"{$}", ChainMiddleware(s.ReportsHandler(), staff...))
	s.RegisterRouteFunc("GET "+RoutePanelUsers+"{$}", ChainMiddleware(s.UsersHandler(), staff...))
	s.RegisterRouteFunc("GET "+RoutePanelUser+"{$}", ChainMiddleware(s.UserHandler(), staff...))
	s.RegisterRouteFunc("POST "+RoutePanelToggleBlock+"{$}", ChainMiddleware(s.ToggleBlockHandler(), staff...))
	s.RegisterRouteFunc("DELETE "+RoutePanelDeleteUser+"{$}", ChainMiddleware(s.DeleteUserHandler(), staff...))
}
