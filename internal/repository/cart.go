package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/techshop-system/internal/model"
)

// GetCartLines возвращает позиции корзины покупателя в порядке добавления.
func (r *PostgresRepository) GetCartLines(ctx context.Context, customerID int64) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT line_key, sku, variant_id, quantity, unit_price, added_at
		 FROM cart_items
		 WHERE customer_id = $1
		 ORDER BY added_at`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.Key, &l.SKU, &l.VariantID, &l.Quantity, &l.UnitPriceCents, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// UpsertCartLine добавляет позицию корзины или увеличивает количество существующей.
// Кэшированная цена позиции обновляется до актуальной.
func (r *PostgresRepository) UpsertCartLine(ctx context.Context, customerID int64, line model.CartLine) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cart_items (customer_id, line_key, sku, variant_id, quantity, unit_price)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (customer_id, line_key)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity,
		               unit_price = EXCLUDED.unit_price`,
		customerID, line.Key, line.SKU, line.VariantID, line.Quantity, line.UnitPriceCents,
	)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

// SetCartLineQuantity устанавливает количество в позиции корзины.
// Нулевое количество удаляет позицию.
func (r *PostgresRepository) SetCartLineQuantity(ctx context.Context, customerID int64, key string, quantity int64) error {
	if quantity <= 0 {
		return r.DeleteCartLine(ctx, customerID, key)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE customer_id = $1 AND line_key = $2`,
		customerID, key, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart line %s", ErrProductNotFound, key)
	}
	return nil
}

// DeleteCartLine удаляет позицию из корзины.
func (r *PostgresRepository) DeleteCartLine(ctx context.Context, customerID int64, key string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE customer_id = $1 AND line_key = $2`,
		customerID, key,
	)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

// ClearCart удаляет все позиции корзины покупателя.
func (r *PostgresRepository) ClearCart(ctx context.Context, customerID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE customer_id = $1`,
		customerID,
	)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// AddWishlistItem сохраняет товар в избранное покупателя.
func (r *PostgresRepository) AddWishlistItem(ctx context.Context, customerID, productID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wishlist_items (customer_id, product_id) VALUES ($1, $2)`,
		customerID, productID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrWishlistDuplicate
		}
		return fmt.Errorf("insert wishlist item: %w", err)
	}
	return nil
}

// RemoveWishlistItem удаляет товар из избранного покупателя.
func (r *PostgresRepository) RemoveWishlistItem(ctx context.Context, customerID, productID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM wishlist_items WHERE customer_id = $1 AND product_id = $2`,
		customerID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete wishlist item: %w", err)
	}
	return nil
}

// GetWishlist возвращает избранное покупателя, сначала добавленное последним.
func (r *PostgresRepository) GetWishlist(ctx context.Context, customerID int64) ([]model.WishlistItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT w.customer_id, w.product_id, p.sku, p.name, w.added_at
		 FROM wishlist_items w
		 JOIN products p ON p.id = w.product_id
		 WHERE w.customer_id = $1
		 ORDER BY w.added_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select wishlist: %w", err)
	}
	defer rows.Close()

	var res []model.WishlistItem
	for rows.Next() {
		var it model.WishlistItem
		if err := rows.Scan(&it.CustomerID, &it.ProductID, &it.SKU, &it.ProductName, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan wishlist item: %w", err)
		}
		res = append(res, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
