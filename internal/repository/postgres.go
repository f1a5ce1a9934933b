// Package repository содержит хранилища пользователей, заказов и платежей.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/paymesh/internal/model"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
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

	fsys, err := fs.Sub(migrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// CreateUser сохраняет пользователя. Повторный идентификатор даёт ErrUserExists.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) error {
	var dob *time.Time
	if !u.DateOfBirth.IsZero() {
		dob = &u.DateOfBirth
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, dob, address) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, dob, u.Address,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u   model.User
		dob *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, dob, address FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &dob, &u.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if dob != nil {
		u.DateOfBirth = *dob
	}
	return &u, nil
}

// UserExists проверяет наличие пользователя.
func (r *PostgresRepository) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// CreateOrder сохраняет заказ. Повторный идентификатор даёт ErrOrderExists.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.Order) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, item, price, status, created_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5, $6)`,
		o.ID, o.UserID, o.Item, o.Price.String(), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		price  string
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Item, &price, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	o.Price = p
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, item, price::text, status, created_at FROM orders WHERE id = $1`,
		id,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, item, price::text, status, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, seq DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// CreatePayment вставляет платёж, только если платежа с таким идентификатором ещё нет.
// От гонки одинаковых запросов защищает только уникальный ключ.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p model.Payment) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO payments (id, order_id, user_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OrderID, p.UserID, p.Amount.String(), string(p.Status), p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrPaymentExists, p.ID)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPaymentExists, p.ID)
	}
	return nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p      model.Payment
		amount string
		status string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &amount, &status, &p.CreatedAt); err != nil {
		return nil, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = a
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

// GetPayment возвращает платёж по идентификатору.
func (r *PostgresRepository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, user_id, amount::text, status, created_at FROM payments WHERE id = $1`,
		id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetLatestPaymentByOrder возвращает последний платёж по заказу. При равном времени
// создания побеждает вставленный позже.
func (r *PostgresRepository) GetLatestPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, user_id, amount::text, status, created_at
		 FROM payments
		 WHERE order_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`,
		orderID,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by order: %w", err)
	}
	return p, nil
}
