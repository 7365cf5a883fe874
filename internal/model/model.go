// Package model содержит доменные сущности магазина techshop.
package model

import (
	"math"
	"time"
)

// Customer представляет зарегистрированного покупателя магазина.
type Customer struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         string
	CreatedAt    time.Time
}

// Product описывает товар каталога. Цены хранятся в минорных единицах валюты.
type Product struct {
	ID                 int64
	SKU                string
	Name               string
	Description        string
	CostPriceCents     int64
	SellingPriceCents  int64
	DiscountPercentage float64
	DiscountLabel      string
	AvailableOnline    bool
	CreatedAt          time.Time
}

// DiscountedPriceCents возвращает цену товара после скидки,
// округлённую до минорной единицы и не опускающуюся ниже нуля.
func (p *Product) DiscountedPriceCents() int64 {
	if p.DiscountPercentage <= 0 {
		return p.SellingPriceCents
	}
	discount := math.Round(float64(p.SellingPriceCents) * p.DiscountPercentage / 100)
	price := p.SellingPriceCents - int64(discount)
	if price < 0 {
		return 0
	}
	return price
}

// HasOffer сообщает, действует ли на товар скидка.
func (p *Product) HasOffer() bool {
	return p.DiscountPercentage > 0
}

// ProductVariant описывает вариацию товара (размер, цвет) с собственным остатком.
type ProductVariant struct {
	ID                   int64
	ProductID            int64
	Size                 string
	Color                string
	SKUSuffix            string
	PriceAdjustmentCents int64
	StockQuantity        int64
	Active               bool
}

// UnitPriceCents возвращает цену вариации: цена товара со скидкой плюс надбавка.
func (v *ProductVariant) UnitPriceCents(p *Product) int64 {
	price := p.DiscountedPriceCents() + v.PriceAdjustmentCents
	if price < 0 {
		return 0
	}
	return price
}

// Inventory хранит остаток товара и порог дозаказа.
type Inventory struct {
	ProductID      int64
	QuantityOnHand int64
	ReorderLevel   int64
	UpdatedAt      time.Time
}

// IsLowStock сообщает, опустился ли остаток до порога дозаказа.
func (i *Inventory) IsLowStock() bool {
	return i.QuantityOnHand <= i.ReorderLevel
}

// CartLine описывает одну позицию корзины покупателя.
// Ключ позиции — SKU товара, для вариаций с суффиксом "-V<id>".
type CartLine struct {
	Key            string
	SKU            string
	VariantID      *int64
	Quantity       int64
	UnitPriceCents int64
	AddedAt        time.Time
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order описывает оформленный заказ. Денежные поля неизменяемы после создания.
type Order struct {
	ID                int64
	Number            string
	CustomerID        int64
	Status            OrderStatus
	SubtotalCents     int64
	TaxCents          int64
	ShippingCostCents int64
	TotalCents        int64
	ShippingAddress   string
	ShippingCity      string
	ShippingState     string
	ShippingZip       string
	Notes             string
	CreatedAt         time.Time
}

// OrderItem фиксирует товар, количество и цену на момент покупки.
type OrderItem struct {
	OrderID        int64
	ProductID      int64
	SKU            string
	ProductName    string
	VariantInfo    string
	Quantity       int64
	UnitPriceCents int64
}

// SubtotalCents возвращает стоимость позиции по зафиксированной цене.
func (it *OrderItem) SubtotalCents() int64 {
	return it.Quantity * it.UnitPriceCents
}

// PaymentStatus описывает статус платёжной операции.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFlagged   PaymentStatus = "flagged"
)

// Payment описывает платёжную запись заказа, ровно одну на заказ.
type Payment struct {
	OrderID       int64
	TransactionID string
	Method        string
	AmountCents   int64
	Status        PaymentStatus
	ProcessedAt   time.Time
}

// MovementType описывает тип движения запасов.
type MovementType string

const (
	MovementSold     MovementType = "sold"
	MovementReceived MovementType = "received"
	MovementAdjusted MovementType = "adjusted"
	MovementReturned MovementType = "returned"
)

// InventoryMovement фиксирует изменение остатка: положительное — приход, отрицательное — расход.
type InventoryMovement struct {
	ProductID int64
	Type      MovementType
	Quantity  int64
	Reference string
	CreatedAt time.Time
}

// SiteConfig содержит настройки магазина, влияющие на расчёт заказа.
type SiteConfig struct {
	Currency                   string
	TaxEnabled                 bool
	TaxRatePercent             float64
	FreeShippingThresholdCents int64
	DefaultShippingCostCents   int64
	LowStockThreshold          int64
	NotifyNewOrder             bool
	NotifyLowStock             bool
}

// DefaultSiteConfig возвращает настройки, применяемые при отсутствии записи конфигурации.
func DefaultSiteConfig() *SiteConfig {
	return &SiteConfig{
		Currency:                   "USD",
		TaxEnabled:                 false,
		TaxRatePercent:             0,
		FreeShippingThresholdCents: 5000,
		DefaultShippingCostCents:   599,
		LowStockThreshold:          10,
	}
}

// WishlistItem описывает товар, сохранённый покупателем в избранное.
type WishlistItem struct {
	CustomerID  int64
	ProductID   int64
	SKU         string
	ProductName string
	AddedAt     time.Time
}
