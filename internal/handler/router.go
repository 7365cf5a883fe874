package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/techshop-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина techshop.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{sku}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddToCart)
			r.Put("/cart/items/{key}", h.UpdateCartLine)
			r.Delete("/cart/items/{key}", h.RemoveCartLine)
			r.Delete("/cart", h.ClearCart)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{number}", h.GetOrder)

			r.Get("/wishlist", h.GetWishlist)
			r.Post("/wishlist", h.AddToWishlist)
			r.Delete("/wishlist/{sku}", h.RemoveFromWishlist)

			r.Get("/admin/orders", h.GetAllOrders)
			r.Post("/admin/inventory/adjust", h.AdjustStock)
			r.Get("/admin/inventory/low-stock", h.GetLowStock)
			r.Get("/admin/inventory/movements/{sku}", h.GetMovements)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
