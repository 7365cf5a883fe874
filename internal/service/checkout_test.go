package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/mmeshcher/techshop-system/internal/fraud"
	"github.com/mmeshcher/techshop-system/internal/model"
	"github.com/mmeshcher/techshop-system/internal/validation"
)

var testShipping = validation.ShippingInput{
	Address: "10 Main St",
	City:    "Springfield",
	State:   "IL",
	Zip:     "62701",
}

func checkoutRepo() *stubRepo {
	return &stubRepo{
		products: map[string]*model.Product{
			"LAPTOP-01": {ID: 1, SKU: "LAPTOP-01", Name: "Laptop", SellingPriceCents: 120000},
		},
		inventory: map[string]*model.Inventory{
			"LAPTOP-01": {ProductID: 1, QuantityOnHand: 10},
		},
		cartLines: []model.CartLine{
			{Key: "LAPTOP-01", SKU: "LAPTOP-01", Quantity: 2, UnitPriceCents: 120000},
		},
		priorOrders: 5,
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, nil)

	_, err := svc.Checkout(context.Background(), 1, testShipping, "203.0.113.5")
	if !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
}

func TestCheckout_MissingShippingFields(t *testing.T) {
	repo := checkoutRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Checkout(context.Background(), 1, validation.ShippingInput{City: "Springfield"}, "")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, want := range []string{"shipping_address", "shipping_state", "shipping_zip"} {
		found := false
		for _, f := range vErr.Fields {
			if f == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing fields %v do not include %s", vErr.Fields, want)
		}
	}
	if repo.committed != nil {
		t.Fatalf("order must not be committed on validation failure")
	}
}

func TestCheckout_TotalsFreeShippingNoTax(t *testing.T) {
	repo := checkoutRepo()
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "203.0.113.5")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	order := res.Order
	if order.SubtotalCents != 240000 {
		t.Fatalf("subtotal = %d, want 240000", order.SubtotalCents)
	}
	// 2400.00 выше порога бесплатной доставки.
	if order.ShippingCostCents != 0 {
		t.Fatalf("shipping = %d, want 0", order.ShippingCostCents)
	}
	if order.TaxCents != 0 {
		t.Fatalf("tax = %d, want 0 with tax disabled", order.TaxCents)
	}
	if order.TotalCents != 240000 {
		t.Fatalf("total = %d, want 240000", order.TotalCents)
	}
}

func TestCheckout_ShippingBelowThreshold(t *testing.T) {
	repo := checkoutRepo()
	repo.products["LAPTOP-01"].SellingPriceCents = 2000
	repo.cartLines = []model.CartLine{
		{Key: "LAPTOP-01", SKU: "LAPTOP-01", Quantity: 1, UnitPriceCents: 2000},
	}
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if res.Order.ShippingCostCents != 599 {
		t.Fatalf("shipping = %d, want 599", res.Order.ShippingCostCents)
	}
	if res.Order.TotalCents != 2599 {
		t.Fatalf("total = %d, want 2599", res.Order.TotalCents)
	}
}

func TestCheckout_TaxRounding(t *testing.T) {
	repo := checkoutRepo()
	repo.siteConfig = &model.SiteConfig{
		TaxEnabled:                 true,
		TaxRatePercent:             8.25,
		FreeShippingThresholdCents: 5000,
		DefaultShippingCostCents:   599,
	}
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	// 240000 * 8.25% = 19800.
	if res.Order.TaxCents != 19800 {
		t.Fatalf("tax = %d, want 19800", res.Order.TaxCents)
	}
	if res.Order.TotalCents != 259800 {
		t.Fatalf("total = %d, want 259800", res.Order.TotalCents)
	}
}

func TestCheckout_SnapshotsCurrentPrice(t *testing.T) {
	repo := checkoutRepo()
	// Цена в корзине закэширована до уценки.
	repo.products["LAPTOP-01"].DiscountPercentage = 50
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if res.Order.SubtotalCents != 120000 {
		t.Fatalf("subtotal = %d, want 120000 at discounted price", res.Order.SubtotalCents)
	}
	if repo.committed.Lines[0].UnitPriceCents != 60000 {
		t.Fatalf("line price = %d, want current price 60000", repo.committed.Lines[0].UnitPriceCents)
	}
}

func TestCheckout_LineSubtotalsConserveOrderSubtotal(t *testing.T) {
	variantID := int64(7)
	repo := checkoutRepo()
	repo.products["TSHIRT-01"] = &model.Product{ID: 2, SKU: "TSHIRT-01", Name: "T-Shirt", SellingPriceCents: 2000}
	repo.variants = map[int64]*model.ProductVariant{
		7: {ID: 7, ProductID: 2, Size: "XL", Color: "Red", PriceAdjustmentCents: 300, StockQuantity: 9, Active: true},
	}
	repo.cartLines = append(repo.cartLines, model.CartLine{
		Key: "TSHIRT-01-V7", SKU: "TSHIRT-01", VariantID: &variantID, Quantity: 3, UnitPriceCents: 2300,
	})
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	var sum int64
	for _, l := range repo.committed.Lines {
		sum += l.Quantity * l.UnitPriceCents
	}
	if sum != res.Order.SubtotalCents {
		t.Fatalf("sum of lines = %d, subtotal = %d", sum, res.Order.SubtotalCents)
	}
	if repo.committed.Lines[1].VariantInfo != "Size: XL, Color: Red" {
		t.Fatalf("variant info = %q", repo.committed.Lines[1].VariantInfo)
	}
}

func TestCheckout_SkipsVanishedProducts(t *testing.T) {
	repo := checkoutRepo()
	repo.cartLines = append(repo.cartLines, model.CartLine{
		Key: "GONE-01", SKU: "GONE-01", Quantity: 1, UnitPriceCents: 500,
	})
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if len(repo.committed.Lines) != 1 {
		t.Fatalf("lines = %d, want vanished product skipped", len(repo.committed.Lines))
	}
	if res.Order.SubtotalCents != 240000 {
		t.Fatalf("subtotal = %d, want 240000", res.Order.SubtotalCents)
	}
}

func TestCheckout_FlagsHighRiskOrder(t *testing.T) {
	repo := checkoutRepo()
	// Новый покупатель, три заказа за сутки, сумма выше порога: 25+30+35 = 90.
	repo.products["LAPTOP-01"].SellingPriceCents = 3000000
	repo.cartLines[0].UnitPriceCents = 3000000
	repo.priorOrders = 0
	repo.recentOrders = 3
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "203.0.113.5")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if res.Assessment.Level != fraud.LevelHigh {
		t.Fatalf("level = %s, want HIGH", res.Assessment.Level)
	}
	if repo.flaggedOrderID != res.Order.ID {
		t.Fatalf("flagged order = %d, want %d", repo.flaggedOrderID, res.Order.ID)
	}
	if !strings.HasPrefix(repo.flaggedNote, "[FRAUD ALERT - HIGH] ") {
		t.Fatalf("note = %q", repo.flaggedNote)
	}
	if res.Order.Notes != repo.flaggedNote {
		t.Fatalf("order notes = %q, want flag note", res.Order.Notes)
	}
	if res.Order.Status != model.OrderStatusPending {
		t.Fatalf("status = %s, flagged order must not be cancelled", res.Order.Status)
	}
}

func TestCheckout_MediumRiskNotFlagged(t *testing.T) {
	repo := checkoutRepo()
	// 25 за сумму выше порога + 30 за частоту = 55, MEDIUM.
	repo.products["LAPTOP-01"].SellingPriceCents = 3000000
	repo.cartLines[0].UnitPriceCents = 3000000
	repo.recentOrders = 3
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if res.Assessment.Level != fraud.LevelMedium {
		t.Fatalf("level = %s, want MEDIUM", res.Assessment.Level)
	}
	if repo.flaggedOrderID != 0 {
		t.Fatalf("medium risk order must not be flagged")
	}
}

func TestCheckout_IdentifierFormats(t *testing.T) {
	repo := checkoutRepo()
	svc := NewService(repo, nil, nil)

	res, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	if ok, _ := regexp.MatchString(`^ORD-[0-9A-F]{8}$`, res.Order.Number); !ok {
		t.Fatalf("order number = %q", res.Order.Number)
	}
	if ok, _ := regexp.MatchString(`^TXN-[0-9A-F]{12}$`, repo.committed.TransactionID); !ok {
		t.Fatalf("transaction id = %q", repo.committed.TransactionID)
	}
}

func TestCheckout_CommitErrorPropagates(t *testing.T) {
	repo := checkoutRepo()
	repo.commitErr = errors.New("serialization failure")
	svc := NewService(repo, nil, nil)

	_, err := svc.Checkout(context.Background(), 1, testShipping, "")
	if err == nil {
		t.Fatalf("expected commit error to propagate")
	}
	if repo.flaggedOrderID != 0 {
		t.Fatalf("failed checkout must not flag anything")
	}
}
