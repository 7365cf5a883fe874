package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/techshop-system/internal/middleware"
	"github.com/mmeshcher/techshop-system/internal/model"
	"github.com/mmeshcher/techshop-system/internal/repository"
	"github.com/mmeshcher/techshop-system/internal/service"
	"github.com/mmeshcher/techshop-system/internal/validation"
)

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city"`
	ShippingState   string `json:"shipping_state"`
	ShippingZip     string `json:"shipping_zip"`
}

type orderResponse struct {
	Number       string  `json:"number"`
	Status       string  `json:"status"`
	Subtotal     float64 `json:"subtotal"`
	Tax          float64 `json:"tax"`
	ShippingCost float64 `json:"shipping_cost"`
	Total        float64 `json:"total"`
	CreatedAt    string  `json:"created_at"`
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		Number:       o.Number,
		Status:       string(o.Status),
		Subtotal:     float64(o.SubtotalCents) / 100,
		Tax:          float64(o.TaxCents) / 100,
		ShippingCost: float64(o.ShippingCostCents) / 100,
		Total:        float64(o.TotalCents) / 100,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

type validationErrorResponse struct {
	Error         string   `json:"error"`
	MissingFields []string `json:"missing_fields"`
}

// Checkout оформляет заказ из корзины текущего покупателя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	shipping := validation.ShippingInput{
		Address: req.ShippingAddress,
		City:    req.ShippingCity,
		State:   req.ShippingState,
		Zip:     req.ShippingZip,
	}

	type checkoutResponse struct {
		orderResponse
		RiskLevel string `json:"risk_level"`
	}

	result, err := h.service.Checkout(r.Context(), customerID, shipping, clientIP(r))
	if err != nil {
		var vErr *service.ValidationError
		var stockErr *repository.InsufficientStockError
		switch {
		case errors.Is(err, service.ErrCartEmpty):
			http.Error(w, "cart is empty", http.StatusBadRequest)
		case errors.As(err, &vErr):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(validationErrorResponse{
				Error:         vErr.Error(),
				MissingFields: vErr.Fields,
			})
		case errors.As(err, &stockErr):
			http.Error(w, stockErr.Error(), http.StatusConflict)
		default:
			h.logger.Error("checkout error", zap.Error(err), zap.Int64("customerID", customerID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, h.logger, checkoutResponse{
		orderResponse: newOrderResponse(*result.Order),
		RiskLevel:     string(result.Assessment.Level),
	})
}

// GetOrders возвращает историю заказов текущего покупателя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}

	writeJSON(w, h.logger, resp)
}

type orderItemResponse struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	VariantInfo string  `json:"variant_info,omitempty"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

type orderDetailsResponse struct {
	orderResponse
	ShippingAddress string              `json:"shipping_address"`
	ShippingCity    string              `json:"shipping_city"`
	ShippingState   string              `json:"shipping_state"`
	ShippingZip     string              `json:"shipping_zip"`
	Items           []orderItemResponse `json:"items"`
	PaymentStatus   string              `json:"payment_status,omitempty"`
}

// GetOrder возвращает заказ текущего покупателя по номеру.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")

	details, err := h.service.GetOrder(r.Context(), customerID, number)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.String("number", number))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := orderDetailsResponse{
		orderResponse:   newOrderResponse(details.Order),
		ShippingAddress: details.Order.ShippingAddress,
		ShippingCity:    details.Order.ShippingCity,
		ShippingState:   details.Order.ShippingState,
		ShippingZip:     details.Order.ShippingZip,
		Items:           make([]orderItemResponse, 0, len(details.Items)),
	}
	for _, it := range details.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			SKU:         it.SKU,
			Name:        it.ProductName,
			VariantInfo: it.VariantInfo,
			Quantity:    it.Quantity,
			UnitPrice:   float64(it.UnitPriceCents) / 100,
			Subtotal:    float64(it.SubtotalCents()) / 100,
		})
	}
	if details.Payment != nil {
		resp.PaymentStatus = string(details.Payment.Status)
	}

	writeJSON(w, h.logger, resp)
}

// GetAllOrders возвращает последние заказы магазина для персонала.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetAllOrders(r.Context(), customerID, 100)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.logger.Error("get all orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}

	writeJSON(w, h.logger, resp)
}

type adjustStockRequest struct {
	SKU       string `json:"sku"`
	Delta     int64  `json:"delta"`
	Reference string `json:"reference,omitempty"`
}

// AdjustStock изменяет остаток товара вручную.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.SKU == "" || req.Delta == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	quantity, err := h.service.AdjustStock(r.Context(), customerID, req.SKU, req.Delta, req.Reference)
	if err != nil {
		var stockErr *repository.InsufficientStockError
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.As(err, &stockErr):
			http.Error(w, stockErr.Error(), http.StatusConflict)
		default:
			h.logger.Error("adjust stock error", zap.Error(err), zap.String("sku", req.SKU))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, h.logger, map[string]int64{"quantity_on_hand": quantity})
}

type lowStockResponse struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	QuantityOnHand int64  `json:"quantity_on_hand"`
	ReorderLevel   int64  `json:"reorder_level"`
}

// GetLowStock возвращает отчёт о товарах на пороге дозаказа.
func (h *Handler) GetLowStock(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	products, err := h.service.GetLowStockProducts(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.logger.Error("get low stock error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]lowStockResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, lowStockResponse{
			SKU:            p.SKU,
			Name:           p.Name,
			QuantityOnHand: p.QuantityOnHand,
			ReorderLevel:   p.ReorderLevel,
		})
	}

	writeJSON(w, h.logger, resp)
}

type movementResponse struct {
	Type      string `json:"type"`
	Quantity  int64  `json:"quantity"`
	Reference string `json:"reference,omitempty"`
	CreatedAt string `json:"created_at"`
}

// GetMovements возвращает историю движений запасов товара.
func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sku := chi.URLParam(r, "sku")

	movements, err := h.service.GetMovements(r.Context(), customerID, sku)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("get movements error", zap.Error(err), zap.String("sku", sku))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	if len(movements) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, movementResponse{
			Type:      string(m.Type),
			Quantity:  m.Quantity,
			Reference: m.Reference,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, h.logger, resp)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
