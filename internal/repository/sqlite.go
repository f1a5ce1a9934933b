package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/mmeshcher/paymesh/internal/model"
)

// Время хранится текстом фиксированной ширины, чтобы сортировка строк совпадала с хронологией.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteRepository хранит данные во встраиваемой SQLite для локального запуска и тестов.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository открывает базу SQLite по пути path (":memory:" для базы в памяти процесса)
// и применяет миграции.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Одно соединение: база в памяти живёт, пока открыто соединение, а записи сериализуются.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/sqlite")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close закрывает базу.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
}

func insertedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateUser сохраняет пользователя. Повторный идентификатор даёт ErrUserExists.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u model.User) error {
	dob := ""
	if !u.DateOfBirth.IsZero() {
		dob = u.DateOfBirth.Format(model.DateLayout)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, dob, address, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Name, u.Email, dob, u.Address, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	ok, err := insertedOne(res)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u   model.User
		dob string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, dob, address FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &dob, &u.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if dob != "" {
		t, err := time.Parse(model.DateLayout, dob)
		if err != nil {
			return nil, fmt.Errorf("parse dob: %w", err)
		}
		u.DateOfBirth = t
	}
	return &u, nil
}

// UserExists проверяет наличие пользователя.
func (r *SQLiteRepository) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// CreateOrder сохраняет заказ. Повторный идентификатор даёт ErrOrderExists.
func (r *SQLiteRepository) CreateOrder(ctx context.Context, o model.Order) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, item, price, status, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		o.ID, o.UserID, o.Item, o.Price.String(), string(o.Status), formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	ok, err := insertedOne(res)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOrder(row scanner) (*model.Order, error) {
	var (
		o                         model.Order
		price, status, createdAt string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Item, &price, &status, &createdAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	o.Price = p
	o.Status = model.OrderStatus(status)
	o.CreatedAt = ts
	return &o, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *SQLiteRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, item, price, status, created_at FROM orders WHERE id = ?`,
		id,
	)
	o, err := scanSQLiteOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *SQLiteRepository) GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, item, price, status, created_at
		 FROM orders
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanSQLiteOrder(rows)
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
func (r *SQLiteRepository) CreatePayment(ctx context.Context, p model.Payment) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, order_id, user_id, amount, status, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OrderID, p.UserID, p.Amount.String(), string(p.Status), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	ok, err := insertedOne(res)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaymentExists, p.ID)
	}
	return nil
}

func scanSQLitePayment(row scanner) (*model.Payment, error) {
	var (
		p                          model.Payment
		amount, status, createdAt string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &amount, &status, &createdAt); err != nil {
		return nil, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.Amount = a
	p.Status = model.PaymentStatus(status)
	p.CreatedAt = ts
	return &p, nil
}

// GetPayment возвращает платёж по идентификатору.
func (r *SQLiteRepository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, user_id, amount, status, created_at FROM payments WHERE id = ?`,
		id,
	)
	p, err := scanSQLitePayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetLatestPaymentByOrder возвращает последний платёж по заказу.
func (r *SQLiteRepository) GetLatestPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, user_id, amount, status, created_at
		 FROM payments
		 WHERE order_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT 1`,
		orderID,
	)
	p, err := scanSQLitePayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by order: %w", err)
	}
	return p, nil
}
