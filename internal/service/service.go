// Package service реализует бизнес-логику магазина techshop.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/techshop-system/internal/model"
	"github.com/mmeshcher/techshop-system/internal/notify"
	"github.com/mmeshcher/techshop-system/internal/repository"
	"github.com/mmeshcher/techshop-system/internal/role"
	"github.com/mmeshcher/techshop-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateCustomer(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*model.Customer, error)

	GetSiteConfig(ctx context.Context) (*model.SiteConfig, error)

	ListProducts(ctx context.Context) ([]model.Product, map[int64]model.Inventory, error)
	GetProductBySKU(ctx context.Context, sku string) (*model.Product, *model.Inventory, error)
	GetVariants(ctx context.Context, productID int64) ([]model.ProductVariant, error)
	GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error)
	AdjustStock(ctx context.Context, sku string, delta int64, movement model.MovementType, reference string) (int64, error)
	GetLowStockProducts(ctx context.Context, limit int) ([]repository.LowStockProduct, error)
	GetMovements(ctx context.Context, sku string, limit int) ([]model.InventoryMovement, error)

	GetCartLines(ctx context.Context, customerID int64) ([]model.CartLine, error)
	UpsertCartLine(ctx context.Context, customerID int64, line model.CartLine) error
	SetCartLineQuantity(ctx context.Context, customerID int64, key string, quantity int64) error
	DeleteCartLine(ctx context.Context, customerID int64, key string) error
	ClearCart(ctx context.Context, customerID int64) error

	AddWishlistItem(ctx context.Context, customerID, productID int64) error
	RemoveWishlistItem(ctx context.Context, customerID, productID int64) error
	GetWishlist(ctx context.Context, customerID int64) ([]model.WishlistItem, error)

	CommitOrder(ctx context.Context, params repository.CommitOrderParams) (*model.Order, error)
	CountOrdersByCustomer(ctx context.Context, customerID int64, since time.Time) (int64, error)
	FlagOrderForReview(ctx context.Context, orderID int64, note string) error
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context, limit int) ([]model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, []model.OrderItem, *model.Payment, error)
}

// Notifier отправляет события магазина во внешнюю систему уведомлений.
type Notifier interface {
	OrderPlaced(ctx context.Context, event notify.OrderPlacedEvent) error
	LowStock(ctx context.Context, event notify.LowStockEvent) error
}

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrForbidden возвращается при попытке операции без необходимого полномочия.
var ErrForbidden = errors.New("permission denied")

// Service содержит бизнес-логику магазина techshop.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
}

// NewService создаёт новый сервис. Уведомления необязательны: при nil notifier
// события просто не отправляются.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterCustomer регистрирует нового покупателя.
func (s *Service) RegisterCustomer(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateCustomer(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerExists) {
			return 0, repository.ErrCustomerExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateCustomer проверяет логин и пароль и возвращает идентификатор покупателя.
func (s *Service) AuthenticateCustomer(ctx context.Context, login, password string) (int64, error) {
	c, err := s.repo.GetCustomerByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(c.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return c.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CustomerRole возвращает роль учётной записи.
func (s *Service) CustomerRole(ctx context.Context, customerID int64) (role.Role, error) {
	c, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return "", err
	}
	return role.Role(c.Role), nil
}

// CatalogProduct — товар каталога вместе с остатком и вариациями.
type CatalogProduct struct {
	Product   model.Product
	Inventory model.Inventory
	Variants  []model.ProductVariant
}

// ListProducts возвращает товары, доступные онлайн.
func (s *Service) ListProducts(ctx context.Context) ([]CatalogProduct, error) {
	products, stock, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]CatalogProduct, 0, len(products))
	for _, p := range products {
		res = append(res, CatalogProduct{Product: p, Inventory: stock[p.ID]})
	}
	return res, nil
}

// GetProduct возвращает товар по артикулу вместе с остатком и активными вариациями.
func (s *Service) GetProduct(ctx context.Context, sku string) (*CatalogProduct, error) {
	if !validation.IsValidSKU(sku) {
		return nil, fmt.Errorf("%w: %s", repository.ErrProductNotFound, sku)
	}

	p, inv, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	variants, err := s.repo.GetVariants(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	return &CatalogProduct{Product: *p, Inventory: *inv, Variants: variants}, nil
}

// CartView — корзина с предварительным расчётом стоимости по кэшированным ценам.
// Итоговые цены фиксируются заново при оформлении заказа.
type CartView struct {
	Lines             []model.CartLine
	SubtotalCents     int64
	TaxCents          int64
	ShippingCostCents int64
	TotalCents        int64
}

// GetCart возвращает корзину покупателя с расчётом по действующей
// налоговой и доставочной политике.
func (s *Service) GetCart(ctx context.Context, customerID int64) (*CartView, error) {
	lines, err := s.repo.GetCartLines(ctx, customerID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.repo.GetSiteConfig(ctx)
	if err != nil {
		return nil, err
	}

	view := &CartView{Lines: lines}
	if len(lines) == 0 {
		return view, nil
	}
	for _, l := range lines {
		view.SubtotalCents += l.Quantity * l.UnitPriceCents
	}
	view.TaxCents, view.ShippingCostCents = computeTaxAndShipping(cfg, view.SubtotalCents)
	view.TotalCents = view.SubtotalCents + view.TaxCents + view.ShippingCostCents

	return view, nil
}

// AddToCart добавляет товар в корзину, ограничивая количество доступным остатком.
// Возвращает фактически добавленное количество.
func (s *Service) AddToCart(ctx context.Context, customerID int64, sku string, variantID *int64, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}
	if !validation.IsValidSKU(sku) {
		return 0, fmt.Errorf("%w: %s", repository.ErrProductNotFound, sku)
	}

	product, inv, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return 0, err
	}

	available := inv.QuantityOnHand
	unitPrice := product.DiscountedPriceCents()

	if variantID != nil {
		variant, err := s.repo.GetVariant(ctx, *variantID)
		if err != nil {
			return 0, err
		}
		if variant.ProductID != product.ID {
			return 0, repository.ErrVariantNotFound
		}
		available = variant.StockQuantity
		unitPrice = variant.UnitPriceCents(product)
	}

	if available <= 0 {
		return 0, &repository.InsufficientStockError{
			SKU: sku, Name: product.Name, Requested: quantity, Available: 0,
		}
	}
	if quantity > available {
		quantity = available
	}

	line := model.CartLine{
		Key:            validation.CartLineKey(sku, variantID),
		SKU:            sku,
		VariantID:      variantID,
		Quantity:       quantity,
		UnitPriceCents: unitPrice,
	}
	if err := s.repo.UpsertCartLine(ctx, customerID, line); err != nil {
		return 0, err
	}

	return quantity, nil
}

// UpdateCartLine устанавливает количество позиции корзины, ограничивая его
// доступным остатком; ноль удаляет позицию.
func (s *Service) UpdateCartLine(ctx context.Context, customerID int64, key string, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if quantity == 0 {
		return s.repo.SetCartLineQuantity(ctx, customerID, key, 0)
	}

	sku, variantID, ok := validation.ParseCartLineKey(key)
	if !ok {
		return fmt.Errorf("%w: cart line %s", repository.ErrProductNotFound, key)
	}

	product, inv, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return err
	}

	available := inv.QuantityOnHand
	if variantID != nil {
		variant, err := s.repo.GetVariant(ctx, *variantID)
		if err != nil {
			return err
		}
		if variant.ProductID != product.ID {
			return repository.ErrVariantNotFound
		}
		available = variant.StockQuantity
	}

	if quantity > available {
		quantity = available
	}

	return s.repo.SetCartLineQuantity(ctx, customerID, key, quantity)
}

// RemoveCartLine удаляет позицию из корзины.
func (s *Service) RemoveCartLine(ctx context.Context, customerID int64, key string) error {
	return s.repo.DeleteCartLine(ctx, customerID, key)
}

// ClearCart очищает корзину покупателя.
func (s *Service) ClearCart(ctx context.Context, customerID int64) error {
	return s.repo.ClearCart(ctx, customerID)
}

// AddToWishlist сохраняет товар в избранное покупателя.
func (s *Service) AddToWishlist(ctx context.Context, customerID int64, sku string) error {
	p, _, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return err
	}
	return s.repo.AddWishlistItem(ctx, customerID, p.ID)
}

// RemoveFromWishlist удаляет товар из избранного покупателя.
func (s *Service) RemoveFromWishlist(ctx context.Context, customerID int64, sku string) error {
	p, _, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return err
	}
	return s.repo.RemoveWishlistItem(ctx, customerID, p.ID)
}

// GetWishlist возвращает избранное покупателя.
func (s *Service) GetWishlist(ctx context.Context, customerID int64) ([]model.WishlistItem, error) {
	return s.repo.GetWishlist(ctx, customerID)
}

// GetOrdersByCustomer возвращает историю заказов покупателя.
func (s *Service) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByCustomer(ctx, customerID)
}

// OrderDetails — заказ с позициями и платёжной записью.
type OrderDetails struct {
	Order   model.Order
	Items   []model.OrderItem
	Payment *model.Payment
}

// GetOrder возвращает заказ покупателя по номеру.
// Чужой заказ неотличим от несуществующего.
func (s *Service) GetOrder(ctx context.Context, customerID int64, number string) (*OrderDetails, error) {
	order, items, payment, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, repository.ErrOrderNotFound
	}
	return &OrderDetails{Order: *order, Items: items, Payment: payment}, nil
}

// GetAllOrders возвращает последние заказы магазина; требует полномочия view_all_orders.
func (s *Service) GetAllOrders(ctx context.Context, customerID int64, limit int) ([]model.Order, error) {
	if err := s.requirePermission(ctx, customerID, role.ViewAllOrders); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.repo.GetAllOrders(ctx, limit)
}

// AdjustStock изменяет остаток товара; требует полномочия manage_inventory.
// Возвращает новый остаток.
func (s *Service) AdjustStock(ctx context.Context, customerID int64, sku string, delta int64, reference string) (int64, error) {
	if err := s.requirePermission(ctx, customerID, role.ManageInventory); err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, fmt.Errorf("delta must not be zero")
	}

	movement := model.MovementReceived
	if delta < 0 {
		movement = model.MovementAdjusted
	}

	return s.repo.AdjustStock(ctx, sku, delta, movement, reference)
}

// GetLowStockProducts возвращает отчёт о товарах на пороге дозаказа;
// требует полномочия manage_inventory.
func (s *Service) GetLowStockProducts(ctx context.Context, customerID int64) ([]repository.LowStockProduct, error) {
	if err := s.requirePermission(ctx, customerID, role.ManageInventory); err != nil {
		return nil, err
	}
	return s.repo.GetLowStockProducts(ctx, 100)
}

// GetMovements возвращает историю движений запасов товара;
// требует полномочия manage_inventory.
func (s *Service) GetMovements(ctx context.Context, customerID int64, sku string) ([]model.InventoryMovement, error) {
	if err := s.requirePermission(ctx, customerID, role.ManageInventory); err != nil {
		return nil, err
	}
	return s.repo.GetMovements(ctx, sku, 100)
}

func (s *Service) requirePermission(ctx context.Context, customerID int64, p role.Permission) error {
	r, err := s.CustomerRole(ctx, customerID)
	if err != nil {
		return err
	}
	if !role.Has(r, p) {
		return ErrForbidden
	}
	return nil
}

// StartLowStockWatch запускает фоновую проверку остатков: товары на пороге
// дозаказа попадают в журнал и, при включённой настройке, в уведомления.
func (s *Service) StartLowStockWatch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkLowStock(ctx)
			}
		}
	}()
}

func (s *Service) checkLowStock(ctx context.Context) {
	cfg, err := s.repo.GetSiteConfig(ctx)
	if err != nil {
		s.logger.Warn("low stock watch: read config", zap.Error(err))
		return
	}

	products, err := s.repo.GetLowStockProducts(ctx, 100)
	if err != nil {
		s.logger.Warn("low stock watch: query", zap.Error(err))
		return
	}

	for _, p := range products {
		s.logger.Warn("low stock",
			zap.String("sku", p.SKU),
			zap.Int64("on_hand", p.QuantityOnHand),
			zap.Int64("reorder_level", p.ReorderLevel),
		)

		if cfg.NotifyLowStock && s.notifier != nil {
			if err := s.notifier.LowStock(ctx, notify.LowStockEvent{
				SKU:            p.SKU,
				Name:           p.Name,
				QuantityOnHand: p.QuantityOnHand,
				ReorderLevel:   p.ReorderLevel,
			}); err != nil {
				s.logger.Warn("low stock notification failed", zap.Error(err), zap.String("sku", p.SKU))
			}
		}
	}
}
