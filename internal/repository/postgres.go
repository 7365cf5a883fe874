// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/techshop-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerExists возвращается при попытке создать покупателя с уже существующим логином.
var (
	ErrCustomerExists = errors.New("customer already exists")
	// ErrCustomerNotFound возвращается, если покупатель не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound возвращается, если товар не найден или недоступен онлайн.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound возвращается, если вариация товара не найдена или неактивна.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrWishlistDuplicate возвращается при повторном добавлении товара в избранное.
	ErrWishlistDuplicate = errors.New("product already in wishlist")
)

// InsufficientStockError возвращается, когда запрошенное количество превышает
// доступный остаток; заказ при этом целиком откатывается.
type InsufficientStockError struct {
	SKU       string
	Name      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s (%s) is out of stock: requested %d, only %d available",
		e.Name, e.SKU, e.Requested, e.Available)
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных сбоях: дедлоках, ошибках
// сериализации и обрывах соединения. Используется только для фоновых чтений;
// транзакция оформления заказа никогда не повторяется автоматически.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCustomer создаёт нового покупателя с ролью customer.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, login)
		}
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// GetCustomerByLogin возвращает покупателя по логину.
func (r *PostgresRepository) GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM customers WHERE login = $1`,
		login,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.Login, &c.PasswordHash, &c.Role, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return &c, nil
}

// GetCustomerByID возвращает покупателя по идентификатору.
func (r *PostgresRepository) GetCustomerByID(ctx context.Context, id int64) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM customers WHERE id = $1`,
		id,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.Login, &c.PasswordHash, &c.Role, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return &c, nil
}

// GetSiteConfig возвращает конфигурацию магазина.
// При отсутствии записи применяются значения по умолчанию:
// налог выключен, порог бесплатной доставки 50.00, доставка 5.99.
func (r *PostgresRepository) GetSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT currency, tax_enabled, tax_rate, free_shipping_threshold,
		        default_shipping_cost, low_stock_threshold, notify_new_order, notify_low_stock
		 FROM site_config
		 LIMIT 1`,
	)

	var cfg model.SiteConfig
	err := row.Scan(
		&cfg.Currency,
		&cfg.TaxEnabled,
		&cfg.TaxRatePercent,
		&cfg.FreeShippingThresholdCents,
		&cfg.DefaultShippingCostCents,
		&cfg.LowStockThreshold,
		&cfg.NotifyNewOrder,
		&cfg.NotifyLowStock,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultSiteConfig(), nil
		}
		return nil, fmt.Errorf("get site config: %w", err)
	}

	return &cfg, nil
}
