package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/techshop-system/internal/fraud"
	"github.com/mmeshcher/techshop-system/internal/model"
	"github.com/mmeshcher/techshop-system/internal/notify"
	"github.com/mmeshcher/techshop-system/internal/repository"
	"github.com/mmeshcher/techshop-system/internal/validation"
)

// ErrCartEmpty возвращается при попытке оформить заказ с пустой корзиной.
var ErrCartEmpty = errors.New("cart is empty")

// ValidationError перечисляет незаполненные поля адреса доставки.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// CheckoutResult — итог оформления: зафиксированный заказ и оценка риска.
type CheckoutResult struct {
	Order      *model.Order
	Assessment fraud.Assessment
}

// Checkout оформляет заказ из корзины покупателя: фиксирует цены, считает
// налог и доставку, одной транзакцией списывает остатки и очищает корзину,
// затем оценивает заказ на мошенничество. Заказ с высоким риском помечается
// на ручную проверку, но никогда не отменяется автоматически.
func (s *Service) Checkout(ctx context.Context, customerID int64, shipping validation.ShippingInput, clientIP string) (*CheckoutResult, error) {
	cartLines, err := s.repo.GetCartLines(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(cartLines) == 0 {
		return nil, ErrCartEmpty
	}

	if missing := validation.MissingShippingFields(shipping); len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	cfg, err := s.repo.GetSiteConfig(ctx)
	if err != nil {
		return nil, err
	}

	lines, subtotal, err := s.priceCartLines(ctx, cartLines)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	tax, shippingCost := computeTaxAndShipping(cfg, subtotal)
	total := subtotal + tax + shippingCost

	// Счётчики для оценки риска снимаются до фиксации, чтобы новый заказ
	// не учитывал сам себя.
	since := time.Now().Add(-24 * time.Hour)
	recent, err := s.repo.CountOrdersByCustomer(ctx, customerID, since)
	if err != nil {
		return nil, err
	}
	prior, err := s.repo.CountOrdersByCustomer(ctx, customerID, time.Time{})
	if err != nil {
		return nil, err
	}

	order, err := s.repo.CommitOrder(ctx, repository.CommitOrderParams{
		CustomerID:        customerID,
		Number:            newOrderNumber(),
		SubtotalCents:     subtotal,
		TaxCents:          tax,
		ShippingCostCents: shippingCost,
		TotalCents:        total,
		ShippingAddress:   shipping.Address,
		ShippingCity:      shipping.City,
		ShippingState:     shipping.State,
		ShippingZip:       shipping.Zip,
		TransactionID:     newTransactionID(),
		PaymentMethod:     "credit_card",
		Lines:             lines,
	})
	if err != nil {
		return nil, err
	}

	assessment := fraud.Assess(fraud.Input{
		TotalCents:      total,
		RecentOrders24h: recent,
		PriorOrders:     prior,
		ClientIP:        clientIP,
	})

	if assessment.Level == fraud.LevelHigh {
		if err := s.flagOrder(ctx, order, assessment); err != nil {
			s.logger.Error("flag order for review",
				zap.String("number", order.Number), zap.Error(err))
		}
	}

	s.logger.Info("order committed",
		zap.String("number", order.Number),
		zap.Int64("total_cents", total),
		zap.Int("fraud_score", assessment.Score),
		zap.String("fraud_level", string(assessment.Level)),
	)

	if cfg.NotifyNewOrder && s.notifier != nil {
		go s.notifyOrderPlaced(order.Number, total, assessment.Level)
	}

	return &CheckoutResult{Order: order, Assessment: assessment}, nil
}

// priceCartLines фиксирует актуальные цены позиций корзины. Позиции с
// исчезнувшими или снятыми с продажи товарами пропускаются.
func (s *Service) priceCartLines(ctx context.Context, cartLines []model.CartLine) ([]repository.OrderLineParams, int64, error) {
	lines := make([]repository.OrderLineParams, 0, len(cartLines))
	var subtotal int64

	for _, cl := range cartLines {
		product, _, err := s.repo.GetProductBySKU(ctx, cl.SKU)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				continue
			}
			return nil, 0, err
		}

		unitPrice := product.DiscountedPriceCents()
		variantInfo := ""

		if cl.VariantID != nil {
			variant, err := s.repo.GetVariant(ctx, *cl.VariantID)
			if err != nil {
				if errors.Is(err, repository.ErrVariantNotFound) {
					continue
				}
				return nil, 0, err
			}
			if variant.ProductID != product.ID {
				return nil, 0, fmt.Errorf("cart line %s: %w", cl.Key, repository.ErrVariantNotFound)
			}
			unitPrice = variant.UnitPriceCents(product)
			variantInfo = describeVariant(variant)
		}

		lines = append(lines, repository.OrderLineParams{
			ProductID:      product.ID,
			SKU:            product.SKU,
			ProductName:    product.Name,
			VariantID:      cl.VariantID,
			VariantInfo:    variantInfo,
			Quantity:       cl.Quantity,
			UnitPriceCents: unitPrice,
		})
		subtotal += cl.Quantity * unitPrice
	}

	return lines, subtotal, nil
}

func (s *Service) flagOrder(ctx context.Context, order *model.Order, a fraud.Assessment) error {
	note := fmt.Sprintf("[FRAUD ALERT - %s] %s", a.Level, a.Reason())
	if err := s.repo.FlagOrderForReview(ctx, order.ID, note); err != nil {
		return err
	}
	order.Notes = note
	return nil
}

func (s *Service) notifyOrderPlaced(number string, totalCents int64, level fraud.Level) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.notifier.OrderPlaced(ctx, notify.OrderPlacedEvent{
		OrderNumber: number,
		Total:       float64(totalCents) / 100,
		RiskLevel:   string(level),
	})
	if err != nil {
		s.logger.Warn("order notification failed",
			zap.String("number", number), zap.Error(err))
	}
}

// computeTaxAndShipping считает налог и стоимость доставки по действующей
// конфигурации. Доставка бесплатна начиная с порога включительно.
func computeTaxAndShipping(cfg *model.SiteConfig, subtotalCents int64) (tax, shipping int64) {
	if cfg.TaxEnabled && cfg.TaxRatePercent > 0 {
		tax = int64(math.Round(float64(subtotalCents) * cfg.TaxRatePercent / 100))
	}
	if subtotalCents < cfg.FreeShippingThresholdCents {
		shipping = cfg.DefaultShippingCostCents
	}
	return tax, shipping
}

func describeVariant(v *model.ProductVariant) string {
	var parts []string
	if v.Size != "" {
		parts = append(parts, "Size: "+v.Size)
	}
	if v.Color != "" {
		parts = append(parts, "Color: "+v.Color)
	}
	return strings.Join(parts, ", ")
}

func newOrderNumber() string {
	id := uuid.New()
	return "ORD-" + strings.ToUpper(hex.EncodeToString(id[:]))[:8]
}

func newTransactionID() string {
	id := uuid.New()
	return "TXN-" + strings.ToUpper(hex.EncodeToString(id[:]))[:12]
}
