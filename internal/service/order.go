package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/repository"
	"github.com/mmeshcher/paymesh/internal/telemetry"
)

// OrderRepository описывает контракт хранилища заказов.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
}

// UserDirectory описывает удалённый сервис пользователей.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// OrderService создаёт заказы и отвечает на запросы об их статусе,
// проверяя пользователей через сервис пользователей.
type OrderService struct {
	repo   OrderRepository
	users  UserDirectory
	tel    *telemetry.Telemetry
	faults Decider
	now    func() time.Time
}

// NewOrderService создаёт сервис заказов. faults включает имитацию сбоя
// после чтения списка заказов.
func NewOrderService(repo OrderRepository, users UserDirectory, tel *telemetry.Telemetry, faults Decider) *OrderService {
	return &OrderService{
		repo:   repo,
		users:  users,
		tel:    tel,
		faults: orNever(faults),
		now:    time.Now,
	}
}

// validateUser проверяет пользователя в дочернем спане validate_user_id.
func (s *OrderService) validateUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, span := s.tel.Start(ctx, "validate_user_id")
	defer span.End()

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		telemetry.Fail(span, err, attribute.Bool("user.found", false), remoteCause(err))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("user.found", true))
	return u, nil
}

// CreateOrder проверяет пользователя и сохраняет заказ со статусом pending.
// Пустой идентификатор заменяется сгенерированным.
func (s *OrderService) CreateOrder(ctx context.Context, o model.Order) (string, error) {
	start := time.Now()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	ctx, span := s.tel.Start(ctx, "create_order",
		attribute.String("order.id", o.ID),
		attribute.String("order.item", o.Item),
		attribute.Float64("order.price", o.Price.InexactFloat64()),
		attribute.String("user.id", o.UserID),
	)
	defer span.End()

	if _, err := s.validateUser(ctx, o.UserID); err != nil {
		return "", fail(ctx, s.tel, span, RouteOrders, err, ErrInvalidUser)
	}

	o.Status = model.OrderStatusPending
	o.CreatedAt = s.now()

	if err := s.insertOrder(ctx, o); err != nil {
		if errors.Is(err, repository.ErrOrderExists) {
			return "", fail(ctx, s.tel, span, RouteOrders, err, ErrConflict)
		}
		return "", fail(ctx, s.tel, span, RouteOrders, err, ErrInternal)
	}

	s.tel.RecordDuration(ctx, RouteOrders, start)
	return o.ID, nil
}

func (s *OrderService) insertOrder(ctx context.Context, o model.Order) error {
	ctx, span := s.tel.Start(ctx, "insert_order_db")
	defer span.End()

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		telemetry.Fail(span, err, attribute.Bool("db.insert.success", false))
		return err
	}
	span.SetAttributes(attribute.Bool("db.insert.success", true))
	return nil
}

// GetOrdersForUser возвращает проверенного пользователя и его заказы.
// Недоступность пользователя (по любой причине) даёт ErrNotFound.
func (s *OrderService) GetOrdersForUser(ctx context.Context, userID string) (*model.User, []model.Order, error) {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "get_orders_for_user", attribute.String("user.id", userID))
	defer span.End()

	user, err := s.validateUser(ctx, userID)
	if err != nil {
		return nil, nil, fail(ctx, s.tel, span, RouteOrdersForUser, err, ErrNotFound)
	}

	orders, err := s.queryOrders(ctx, userID)
	if err != nil {
		return nil, nil, fail(ctx, s.tel, span, RouteOrdersForUser, err, ErrInternal)
	}

	if s.faults.Decide() {
		return nil, nil, fail(ctx, s.tel, span, RouteOrdersForUser, ErrInjectedFault, ErrInjectedFault,
			attribute.Bool("simulated_failure", true))
	}

	s.tel.RecordDuration(ctx, RouteOrdersForUser, start)
	return user, orders, nil
}

func (s *OrderService) queryOrders(ctx context.Context, userID string) ([]model.Order, error) {
	ctx, span := s.tel.Start(ctx, "query_orders_db")
	defer span.End()

	orders, err := s.repo.GetOrdersByUser(ctx, userID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// GetOrderStatus возвращает статус заказа. Заказ считается подтверждённым, только
// если его владелец сейчас находится в сервисе пользователей; иначе ErrNotFound.
func (s *OrderService) GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatusView, error) {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "validate_order_id", attribute.String("order.id", orderID))
	defer span.End()

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fail(ctx, s.tel, span, RouteOrderStatus, err, ErrNotFound, attribute.Bool("order.found", false))
		}
		return nil, fail(ctx, s.tel, span, RouteOrderStatus, err, ErrInternal)
	}
	span.SetAttributes(
		attribute.Bool("order.found", true),
		attribute.String("order.user_id", o.UserID),
	)

	if _, err := s.users.GetUser(ctx, o.UserID); err != nil {
		return nil, fail(ctx, s.tel, span, RouteOrderStatus, err, ErrNotFound,
			attribute.Bool("user.found", false), remoteCause(err))
	}
	span.SetAttributes(attribute.Bool("user.found", true))

	s.tel.RecordDuration(ctx, RouteOrderStatus, start)
	return &model.OrderStatusView{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
	}, nil
}
