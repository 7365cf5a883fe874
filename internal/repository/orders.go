package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/techshop-system/internal/model"
)

// OrderLineParams описывает одну позицию оформляемого заказа
// с ценой, зафиксированной на момент расчёта.
type OrderLineParams struct {
	ProductID      int64
	SKU            string
	ProductName    string
	VariantID      *int64
	VariantInfo    string
	Quantity       int64
	UnitPriceCents int64
}

// CommitOrderParams — всё, что нужно для фиксации заказа одной транзакцией.
type CommitOrderParams struct {
	CustomerID        int64
	Number            string
	SubtotalCents     int64
	TaxCents          int64
	ShippingCostCents int64
	TotalCents        int64
	ShippingAddress   string
	ShippingCity      string
	ShippingState     string
	ShippingZip       string
	TransactionID     string
	PaymentMethod     string
	Lines             []OrderLineParams
}

// variantNeed — суммарное списание с остатка одной вариации.
type variantNeed struct {
	ID          int64
	SKU         string
	ProductName string
	VariantInfo string
	Need        int64
}

// lockStep — суммарное списание по одному товару: сколько снять с общего
// остатка и с остатков вариаций. Шаги упорядочены по идентификатору товара,
// вариации внутри шага — по идентификатору вариации.
type lockStep struct {
	ProductID   int64
	SKU         string
	ProductName string
	Need        int64
	Variants    []variantNeed
}

// buildLockPlan сводит позиции заказа в план блокировок. Строки остатков
// блокируются в стабильном порядке (товар, затем вариация, по возрастанию
// идентификаторов), чтобы два пересекающихся заказа не взаимоблокировались.
// Покупка вариации списывает и остаток вариации, и общий остаток товара.
func buildLockPlan(lines []OrderLineParams) []lockStep {
	byProduct := make(map[int64]*lockStep)
	variantIdx := make(map[int64]int)

	for _, l := range lines {
		step, ok := byProduct[l.ProductID]
		if !ok {
			step = &lockStep{ProductID: l.ProductID, SKU: l.SKU, ProductName: l.ProductName}
			byProduct[l.ProductID] = step
		}
		step.Need += l.Quantity

		if l.VariantID != nil {
			if i, seen := variantIdx[*l.VariantID]; seen {
				step.Variants[i].Need += l.Quantity
			} else {
				step.Variants = append(step.Variants, variantNeed{
					ID:          *l.VariantID,
					SKU:         l.SKU,
					ProductName: l.ProductName,
					VariantInfo: l.VariantInfo,
					Need:        l.Quantity,
				})
				variantIdx[*l.VariantID] = len(step.Variants) - 1
			}
		}
	}

	plan := make([]lockStep, 0, len(byProduct))
	for _, step := range byProduct {
		sort.Slice(step.Variants, func(i, j int) bool {
			return step.Variants[i].ID < step.Variants[j].ID
		})
		plan = append(plan, *step)
	}
	sort.Slice(plan, func(i, j int) bool {
		return plan[i].ProductID < plan[j].ProductID
	})

	return plan
}

// CommitOrder фиксирует заказ одной транзакцией: создаёт заказ, под блокировками
// строк проверяет и списывает остатки, сохраняет позиции, платёж и движения
// запасов, очищает корзину. Любая ошибка откатывает транзакцию целиком —
// состояние БД остаётся неотличимым от состояния до вызова.
func (r *PostgresRepository) CommitOrder(ctx context.Context, params CommitOrderParams) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var order model.Order
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (number, customer_id, status, subtotal, tax, shipping_cost, total,
		                     shipping_address, shipping_city, shipping_state, shipping_zip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		params.Number, params.CustomerID, string(model.OrderStatusPending),
		params.SubtotalCents, params.TaxCents, params.ShippingCostCents, params.TotalCents,
		params.ShippingAddress, params.ShippingCity, params.ShippingState, params.ShippingZip,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, step := range buildLockPlan(params.Lines) {
		var onHand int64
		err = tx.QueryRow(ctx,
			`SELECT quantity_on_hand FROM inventory WHERE product_id = $1 FOR UPDATE`,
			step.ProductID,
		).Scan(&onHand)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &InsufficientStockError{SKU: step.SKU, Name: step.ProductName, Requested: step.Need}
			}
			return nil, fmt.Errorf("lock inventory: %w", err)
		}

		if onHand < step.Need {
			return nil, &InsufficientStockError{
				SKU: step.SKU, Name: step.ProductName,
				Requested: step.Need, Available: onHand,
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE inventory SET quantity_on_hand = quantity_on_hand - $2, updated_at = now()
			 WHERE product_id = $1`,
			step.ProductID, step.Need,
		)
		if err != nil {
			return nil, fmt.Errorf("deduct inventory: %w", err)
		}

		for _, v := range step.Variants {
			var stock int64
			err = tx.QueryRow(ctx,
				`SELECT stock_quantity FROM product_variants WHERE id = $1 FOR UPDATE`,
				v.ID,
			).Scan(&stock)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, ErrVariantNotFound
				}
				return nil, fmt.Errorf("lock variant: %w", err)
			}

			if stock < v.Need {
				return nil, &InsufficientStockError{
					SKU: v.SKU, Name: v.ProductName + " (" + v.VariantInfo + ")",
					Requested: v.Need, Available: stock,
				}
			}

			_, err = tx.Exec(ctx,
				`UPDATE product_variants SET stock_quantity = stock_quantity - $2 WHERE id = $1`,
				v.ID, v.Need,
			)
			if err != nil {
				return nil, fmt.Errorf("deduct variant stock: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO inventory_movements (product_id, movement_type, quantity, reference)
			 VALUES ($1, $2, $3, $4)`,
			step.ProductID, string(model.MovementSold), -step.Need, params.Number,
		)
		if err != nil {
			return nil, fmt.Errorf("insert movement: %w", err)
		}
	}

	for _, l := range params.Lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, sku, product_name, variant_info, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, l.ProductID, l.SKU, l.ProductName, l.VariantInfo, l.Quantity, l.UnitPriceCents,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payments (order_id, transaction_id, method, amount, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		order.ID, params.TransactionID, params.PaymentMethod, params.TotalCents,
		string(model.PaymentStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	// Корзина очищается в той же транзакции: при откате она остаётся нетронутой.
	_, err = tx.Exec(ctx,
		`DELETE FROM cart_items WHERE customer_id = $1`,
		params.CustomerID,
	)
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	order.Number = params.Number
	order.CustomerID = params.CustomerID
	order.Status = model.OrderStatusPending
	order.SubtotalCents = params.SubtotalCents
	order.TaxCents = params.TaxCents
	order.ShippingCostCents = params.ShippingCostCents
	order.TotalCents = params.TotalCents
	order.ShippingAddress = params.ShippingAddress
	order.ShippingCity = params.ShippingCity
	order.ShippingState = params.ShippingState
	order.ShippingZip = params.ShippingZip

	return &order, nil
}

// CountOrdersByCustomer возвращает число заказов покупателя, оформленных после since.
// Нулевое since считает все заказы.
func (r *PostgresRepository) CountOrdersByCustomer(ctx context.Context, customerID int64, since time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND created_at >= $2`,
		customerID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// FlagOrderForReview помечает заказ для ручной проверки: записывает причину
// в примечания и переводит платёж в статус flagged. Заказ не отменяется.
func (r *PostgresRepository) FlagOrderForReview(ctx context.Context, orderID int64, note string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET notes = $2 WHERE id = $1`,
		orderID, note,
	)
	if err != nil {
		return fmt.Errorf("update order notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	_, err = tx.Exec(ctx,
		`UPDATE payments SET status = $2 WHERE order_id = $1`,
		orderID, string(model.PaymentStatusFlagged),
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetOrdersByCustomer возвращает заказы покупателя, новые первыми.
func (r *PostgresRepository) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, number, customer_id, status, subtotal, tax, shipping_cost, total,
		        shipping_address, shipping_city, shipping_state, shipping_zip, notes, created_at
		 FROM orders
		 WHERE customer_id = $1
		 ORDER BY created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetAllOrders возвращает последние заказы магазина для служебных экранов.
func (r *PostgresRepository) GetAllOrders(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, number, customer_id, status, subtotal, tax, shipping_cost, total,
		        shipping_address, shipping_city, shipping_state, shipping_zip, notes, created_at
		 FROM orders
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(
			&o.ID, &o.Number, &o.CustomerID, &status,
			&o.SubtotalCents, &o.TaxCents, &o.ShippingCostCents, &o.TotalCents,
			&o.ShippingAddress, &o.ShippingCity, &o.ShippingState, &o.ShippingZip,
			&o.Notes, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetOrderByNumber возвращает заказ с позициями и платёжной записью.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, []model.OrderItem, *model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, number, customer_id, status, subtotal, tax, shipping_cost, total,
		        shipping_address, shipping_city, shipping_state, shipping_zip, notes, created_at
		 FROM orders
		 WHERE number = $1`,
		number,
	)

	var o model.Order
	var status string
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &status,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCostCents, &o.TotalCents,
		&o.ShippingAddress, &o.ShippingCity, &o.ShippingState, &o.ShippingZip,
		&o.Notes, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil, ErrOrderNotFound
		}
		return nil, nil, nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, sku, product_name, variant_info, quantity, unit_price
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.SKU, &it.ProductName,
			&it.VariantInfo, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, nil, nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("rows error: %w", err)
	}

	var p model.Payment
	var pStatus string
	err = r.pool.QueryRow(ctx,
		`SELECT order_id, transaction_id, method, amount, status, processed_at
		 FROM payments
		 WHERE order_id = $1`,
		o.ID,
	).Scan(&p.OrderID, &p.TransactionID, &p.Method, &p.AmountCents, &pStatus, &p.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &o, items, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("get payment: %w", err)
	}
	p.Status = model.PaymentStatus(pStatus)

	return &o, items, &p, nil
}
