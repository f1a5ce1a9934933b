package repository

import (
	"context"
	"strings"

	"github.com/mmeshcher/paymesh/internal/model"
)

// Store объединяет операции обоих хранилищ. Сервисы зависят от собственных узких интерфейсов.
type Store interface {
	Close() error

	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	UserExists(ctx context.Context, id string) (bool, error)

	CreateOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	CreatePayment(ctx context.Context, p model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetLatestPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error)
}

var (
	_ Store = (*PostgresRepository)(nil)
	_ Store = (*SQLiteRepository)(nil)
)

// Open выбирает хранилище по строке подключения. Для postgres:// и postgresql:// открывается PostgreSQL,
// для sqlite://<путь> файл SQLite, для пустой строки SQLite в памяти.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresRepository(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLiteRepository(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case dsn == "":
		return NewSQLiteRepository(ctx, ":memory:")
	default:
		// Остальные строки (host=... user=...) понимает pgx.
		return NewPostgresRepository(ctx, dsn)
	}
}
