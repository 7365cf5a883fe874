// Package handler содержит HTTP-обработчики API магазина techshop.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/techshop-system/internal/middleware"
	"github.com/mmeshcher/techshop-system/internal/model"
	"github.com/mmeshcher/techshop-system/internal/repository"
	"github.com/mmeshcher/techshop-system/internal/service"
	"github.com/mmeshcher/techshop-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCustomer(ctx context.Context, login, password string) (int64, error)
	AuthenticateCustomer(ctx context.Context, login, password string) (int64, error)

	ListProducts(ctx context.Context) ([]service.CatalogProduct, error)
	GetProduct(ctx context.Context, sku string) (*service.CatalogProduct, error)

	GetCart(ctx context.Context, customerID int64) (*service.CartView, error)
	AddToCart(ctx context.Context, customerID int64, sku string, variantID *int64, quantity int64) (int64, error)
	UpdateCartLine(ctx context.Context, customerID int64, key string, quantity int64) error
	RemoveCartLine(ctx context.Context, customerID int64, key string) error
	ClearCart(ctx context.Context, customerID int64) error

	AddToWishlist(ctx context.Context, customerID int64, sku string) error
	RemoveFromWishlist(ctx context.Context, customerID int64, sku string) error
	GetWishlist(ctx context.Context, customerID int64) ([]model.WishlistItem, error)

	Checkout(ctx context.Context, customerID int64, shipping validation.ShippingInput, clientIP string) (*service.CheckoutResult, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, customerID int64, number string) (*service.OrderDetails, error)

	GetAllOrders(ctx context.Context, customerID int64, limit int) ([]model.Order, error)
	AdjustStock(ctx context.Context, customerID int64, sku string, delta int64, reference string) (int64, error)
	GetLowStockProducts(ctx context.Context, customerID int64) ([]repository.LowStockProduct, error)
	GetMovements(ctx context.Context, customerID int64, sku string) ([]model.InventoryMovement, error)
}

// Handler реализует HTTP-обработчики API магазина techshop.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customerID, err := h.service.RegisterCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, customerID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию покупателя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customerID, err := h.service.AuthenticateCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, customerID)
	w.WriteHeader(http.StatusOK)
}

type variantResponse struct {
	ID              int64   `json:"id"`
	Size            string  `json:"size,omitempty"`
	Color           string  `json:"color,omitempty"`
	PriceAdjustment float64 `json:"price_adjustment"`
	InStock         int64   `json:"in_stock"`
}

type productResponse struct {
	SKU             string            `json:"sku"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Price           float64           `json:"price"`
	DiscountedPrice float64           `json:"discounted_price"`
	OnSale          bool              `json:"on_sale"`
	DiscountLabel   string            `json:"discount_label,omitempty"`
	InStock         int64             `json:"in_stock"`
	Variants        []variantResponse `json:"variants,omitempty"`
}

func newProductResponse(cp service.CatalogProduct) productResponse {
	resp := productResponse{
		SKU:             cp.Product.SKU,
		Name:            cp.Product.Name,
		Description:     cp.Product.Description,
		Price:           float64(cp.Product.SellingPriceCents) / 100,
		DiscountedPrice: float64(cp.Product.DiscountedPriceCents()) / 100,
		OnSale:          cp.Product.HasOffer(),
		DiscountLabel:   cp.Product.DiscountLabel,
		InStock:         cp.Inventory.QuantityOnHand,
	}
	for _, v := range cp.Variants {
		resp.Variants = append(resp.Variants, variantResponse{
			ID:              v.ID,
			Size:            v.Size,
			Color:           v.Color,
			PriceAdjustment: float64(v.PriceAdjustmentCents) / 100,
			InStock:         v.StockQuantity,
		})
	}
	return resp
}

// ListProducts возвращает каталог товаров, доступных онлайн.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}

	writeJSON(w, h.logger, resp)
}

// GetProduct возвращает карточку товара по артикулу.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	product, err := h.service.GetProduct(r.Context(), sku)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get product error", zap.Error(err), zap.String("sku", sku))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, newProductResponse(*product))
}

type cartLineResponse struct {
	Key       string   `json:"key"`
	SKU       string   `json:"sku"`
	VariantID *int64   `json:"variant_id,omitempty"`
	Quantity  int64    `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	Subtotal  float64  `json:"subtotal"`
}

type cartResponse struct {
	Lines        []cartLineResponse `json:"lines"`
	Subtotal     float64            `json:"subtotal"`
	Tax          float64            `json:"tax"`
	ShippingCost float64            `json:"shipping_cost"`
	Total        float64            `json:"total"`
}

// GetCart возвращает корзину текущего покупателя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	view, err := h.service.GetCart(r.Context(), customerID)
	if err != nil {
		h.logger.Error("get cart error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := cartResponse{
		Lines:        make([]cartLineResponse, 0, len(view.Lines)),
		Subtotal:     float64(view.SubtotalCents) / 100,
		Tax:          float64(view.TaxCents) / 100,
		ShippingCost: float64(view.ShippingCostCents) / 100,
		Total:        float64(view.TotalCents) / 100,
	}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			Key:       l.Key,
			SKU:       l.SKU,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: float64(l.UnitPriceCents) / 100,
			Subtotal:  float64(l.Quantity*l.UnitPriceCents) / 100,
		})
	}

	writeJSON(w, h.logger, resp)
}

type addToCartRequest struct {
	SKU       string `json:"sku"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int64  `json:"quantity"`
}

// AddToCart добавляет товар в корзину текущего покупателя.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.SKU == "" || req.Quantity <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	added, err := h.service.AddToCart(r.Context(), customerID, req.SKU, req.VariantID, req.Quantity)
	if err != nil {
		var stockErr *repository.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			http.Error(w, stockErr.Error(), http.StatusConflict)
		case errors.Is(err, repository.ErrProductNotFound), errors.Is(err, repository.ErrVariantNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("add to cart error", zap.Error(err), zap.String("sku", req.SKU))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, h.logger, map[string]int64{"quantity": added})
}

type updateCartLineRequest struct {
	Quantity int64 `json:"quantity"`
}

// UpdateCartLine устанавливает количество позиции корзины.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	key := chi.URLParam(r, "key")

	var req updateCartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Quantity < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateCartLine(r.Context(), customerID, key, req.Quantity); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrVariantNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update cart line error", zap.Error(err), zap.String("key", key))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// RemoveCartLine удаляет позицию из корзины текущего покупателя.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	key := chi.URLParam(r, "key")

	if err := h.service.RemoveCartLine(r.Context(), customerID, key); err != nil {
		h.logger.Error("remove cart line error", zap.Error(err), zap.String("key", key))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ClearCart очищает корзину текущего покупателя.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.ClearCart(r.Context(), customerID); err != nil {
		h.logger.Error("clear cart error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type wishlistRequest struct {
	SKU string `json:"sku"`
}

type wishlistItemResponse struct {
	SKU     string `json:"sku"`
	Name    string `json:"name"`
	AddedAt string `json:"added_at"`
}

// GetWishlist возвращает избранное текущего покупателя.
func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	items, err := h.service.GetWishlist(r.Context(), customerID)
	if err != nil {
		h.logger.Error("get wishlist error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]wishlistItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, wishlistItemResponse{
			SKU:     it.SKU,
			Name:    it.ProductName,
			AddedAt: it.AddedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, h.logger, resp)
}

// AddToWishlist добавляет товар в избранное текущего покупателя.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req wishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SKU == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AddToWishlist(r.Context(), customerID, req.SKU); err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrWishlistDuplicate):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("add to wishlist error", zap.Error(err), zap.String("sku", req.SKU))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// RemoveFromWishlist удаляет товар из избранного текущего покупателя.
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sku := chi.URLParam(r, "sku")

	if err := h.service.RemoveFromWishlist(r.Context(), customerID, sku); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("remove from wishlist error", zap.Error(err), zap.String("sku", sku))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response error", zap.Error(err))
	}
}
