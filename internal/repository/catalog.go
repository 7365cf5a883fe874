package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/techshop-system/internal/model"
)

// ListProducts возвращает товары, доступные онлайн, вместе с остатками.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, map[int64]model.Inventory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.sku, p.name, p.description, p.cost_price, p.selling_price,
		        p.discount_pct, p.discount_label, p.available_online, p.created_at,
		        COALESCE(i.quantity_on_hand, 0), COALESCE(i.reorder_level, 0)
		 FROM products p
		 LEFT JOIN inventory i ON i.product_id = p.id
		 WHERE p.available_online
		 ORDER BY p.name`,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	stock := make(map[int64]model.Inventory)

	for rows.Next() {
		var p model.Product
		var inv model.Inventory
		if err := rows.Scan(
			&p.ID, &p.SKU, &p.Name, &p.Description, &p.CostPriceCents, &p.SellingPriceCents,
			&p.DiscountPercentage, &p.DiscountLabel, &p.AvailableOnline, &p.CreatedAt,
			&inv.QuantityOnHand, &inv.ReorderLevel,
		); err != nil {
			return nil, nil, fmt.Errorf("scan product: %w", err)
		}
		inv.ProductID = p.ID
		products = append(products, p)
		stock[p.ID] = inv
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}

	return products, stock, nil
}

// GetProductBySKU возвращает товар по артикулу вместе с текущим остатком.
func (r *PostgresRepository) GetProductBySKU(ctx context.Context, sku string) (*model.Product, *model.Inventory, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT p.id, p.sku, p.name, p.description, p.cost_price, p.selling_price,
		        p.discount_pct, p.discount_label, p.available_online, p.created_at,
		        COALESCE(i.quantity_on_hand, 0), COALESCE(i.reorder_level, 0)
		 FROM products p
		 LEFT JOIN inventory i ON i.product_id = p.id
		 WHERE p.sku = $1 AND p.available_online`,
		sku,
	)

	var p model.Product
	var inv model.Inventory
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.CostPriceCents, &p.SellingPriceCents,
		&p.DiscountPercentage, &p.DiscountLabel, &p.AvailableOnline, &p.CreatedAt,
		&inv.QuantityOnHand, &inv.ReorderLevel,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
		}
		return nil, nil, fmt.Errorf("get product: %w", err)
	}
	inv.ProductID = p.ID

	return &p, &inv, nil
}

// GetVariants возвращает активные вариации товара.
func (r *PostgresRepository) GetVariants(ctx context.Context, productID int64) ([]model.ProductVariant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, size, color, sku_suffix, price_adjustment, stock_quantity, active
		 FROM product_variants
		 WHERE product_id = $1 AND active
		 ORDER BY id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("select variants: %w", err)
	}
	defer rows.Close()

	var variants []model.ProductVariant
	for rows.Next() {
		var v model.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.SKUSuffix,
			&v.PriceAdjustmentCents, &v.StockQuantity, &v.Active); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return variants, nil
}

// GetVariant возвращает активную вариацию по идентификатору.
func (r *PostgresRepository) GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, product_id, size, color, sku_suffix, price_adjustment, stock_quantity, active
		 FROM product_variants
		 WHERE id = $1 AND active`,
		id,
	)

	var v model.ProductVariant
	err := row.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.SKUSuffix,
		&v.PriceAdjustmentCents, &v.StockQuantity, &v.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	return &v, nil
}

// AdjustStock изменяет остаток товара на delta под блокировкой строки
// и записывает движение запасов. Остаток не может стать отрицательным.
func (r *PostgresRepository) AdjustStock(ctx context.Context, sku string, delta int64, movement model.MovementType, reference string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var productID, onHand int64
	var name string
	err = tx.QueryRow(ctx,
		`SELECT p.id, p.name, i.quantity_on_hand
		 FROM products p
		 JOIN inventory i ON i.product_id = p.id
		 WHERE p.sku = $1
		 FOR UPDATE OF i`,
		sku,
	).Scan(&productID, &name, &onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
		}
		return 0, fmt.Errorf("lock inventory: %w", err)
	}

	if onHand+delta < 0 {
		return 0, &InsufficientStockError{SKU: sku, Name: name, Requested: -delta, Available: onHand}
	}

	_, err = tx.Exec(ctx,
		`UPDATE inventory SET quantity_on_hand = quantity_on_hand + $2, updated_at = now()
		 WHERE product_id = $1`,
		productID, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("update inventory: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO inventory_movements (product_id, movement_type, quantity, reference)
		 VALUES ($1, $2, $3, $4)`,
		productID, string(movement), delta, reference,
	)
	if err != nil {
		return 0, fmt.Errorf("insert movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return onHand + delta, nil
}

// LowStockProduct описывает товар с остатком на пороге дозаказа или ниже.
type LowStockProduct struct {
	SKU            string
	Name           string
	QuantityOnHand int64
	ReorderLevel   int64
}

// GetLowStockProducts возвращает товары, остаток которых не превышает порог дозаказа.
// Чтение фоновое, поэтому выполняется с повтором при временных сбоях.
func (r *PostgresRepository) GetLowStockProducts(ctx context.Context, limit int) ([]LowStockProduct, error) {
	var res []LowStockProduct

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT p.sku, p.name, i.quantity_on_hand, i.reorder_level
			 FROM inventory i
			 JOIN products p ON p.id = i.product_id
			 WHERE i.quantity_on_hand <= i.reorder_level
			 ORDER BY i.quantity_on_hand
			 LIMIT $1`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("select low stock: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var p LowStockProduct
			if err := rows.Scan(&p.SKU, &p.Name, &p.QuantityOnHand, &p.ReorderLevel); err != nil {
				return fmt.Errorf("scan low stock: %w", err)
			}
			res = append(res, p)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetMovements возвращает последние движения запасов товара.
func (r *PostgresRepository) GetMovements(ctx context.Context, sku string, limit int) ([]model.InventoryMovement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.product_id, m.movement_type, m.quantity, m.reference, m.created_at
		 FROM inventory_movements m
		 JOIN products p ON p.id = m.product_id
		 WHERE p.sku = $1
		 ORDER BY m.created_at DESC
		 LIMIT $2`,
		sku, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	defer rows.Close()

	var res []model.InventoryMovement
	for rows.Next() {
		var m model.InventoryMovement
		var typ string
		var createdAt time.Time
		if err := rows.Scan(&m.ProductID, &typ, &m.Quantity, &m.Reference, &createdAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Type = model.MovementType(typ)
		m.CreatedAt = createdAt
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
