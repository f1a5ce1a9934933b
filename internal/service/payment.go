package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/peer"
	"github.com/mmeshcher/paymesh/internal/repository"
	"github.com/mmeshcher/paymesh/internal/telemetry"
)

// PaymentRepository описывает контракт хранилища платежей.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetLatestPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error)
}

// OrderDirectory описывает удалённый сервис заказов.
type OrderDirectory interface {
	GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatusView, error)
	GetOrdersForUser(ctx context.Context, userID string) (*model.User, []model.Order, error)
}

// PaymentRequest описывает входящий платёж. ID задаёт клиент, он же ключ идемпотентности.
type PaymentRequest struct {
	ID      string
	OrderID string
	UserID  string
	Amount  decimal.Decimal
}

// PaymentResult содержит результат обработки платежа.
type PaymentResult struct {
	PaymentID string
	Status    model.PaymentStatus
}

// PaymentService проводит платёж через цепочку проверок соседних сервисов.
type PaymentService struct {
	repo     PaymentRepository
	orders   OrderDirectory
	users    UserDirectory
	tel      *telemetry.Telemetry
	failures Decider
	latency  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	lookupFaults  Decider
	lookupLatency time.Duration
}

// NewPaymentService создаёт оркестратор платежей. failures решает, будет ли платёж
// отклонён шлюзом (true означает Failed); latency имитирует задержку шлюза.
func NewPaymentService(
	repo PaymentRepository,
	orders OrderDirectory,
	users UserDirectory,
	tel *telemetry.Telemetry,
	failures Decider,
	latency time.Duration,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:     repo,
		orders:   orders,
		users:    users,
		tel:      tel,
		failures: orNever(failures),
		latency:  latency,
		logger:   logger,
		now:      time.Now,

		lookupFaults: FixedDecider(false),
	}
}

// WithLookupSimulation включает имитацию сбоя и задержки чтения платежей
// для сводки оплат пользователя.
func (s *PaymentService) WithLookupSimulation(faults Decider, latency time.Duration) *PaymentService {
	s.lookupFaults = orNever(faults)
	s.lookupLatency = latency
	return s
}

// ProcessPayment выполняет этапы строго по порядку: идемпотентность, заказ, владелец заказа,
// пользователь, исход, запись. Каждый этап оформлен дочерним спаном, закрытый до возврата ошибки.
// До записи хранилище не изменяется.
func (s *PaymentService) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "process_payment",
		attribute.String("payment.id", req.ID),
		attribute.String("order.id", req.OrderID),
		attribute.String("user.id", req.UserID),
		attribute.Float64("payment.amount", req.Amount.InexactFloat64()),
	)
	defer span.End()

	if err := s.checkIdempotency(ctx, req.ID); err != nil {
		return nil, fail(ctx, s.tel, span, RoutePayments, err, err)
	}

	order, err := s.validateOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fail(ctx, s.tel, span, RoutePayments, err, err)
	}

	if err := s.checkOwnership(ctx, order, req.UserID); err != nil {
		return nil, fail(ctx, s.tel, span, RoutePayments, err, err)
	}

	if err := s.validateUser(ctx, req.UserID); err != nil {
		return nil, fail(ctx, s.tel, span, RoutePayments, err, err)
	}

	status := s.simulateOutcome(ctx)

	p := model.Payment{
		ID:      req.ID,
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Amount:  req.Amount,
		Status:  status,
	}
	if err := s.persist(ctx, p); err != nil {
		return nil, fail(ctx, s.tel, span, RoutePayments, err, err)
	}

	if status == model.PaymentStatusSuccess {
		s.tel.AddPayment(ctx, string(status), req.Amount.InexactFloat64())
	}
	span.SetAttributes(attribute.String("payment.status", string(status)))

	s.logger.Info("payment processed",
		zap.String("payment_id", req.ID),
		zap.String("order_id", req.OrderID),
		zap.String("status", string(status)),
	)

	s.tel.RecordDuration(ctx, RoutePayments, start)
	return &PaymentResult{PaymentID: req.ID, Status: status}, nil
}

func (s *PaymentService) checkIdempotency(ctx context.Context, id string) error {
	ctx, span := s.tel.Start(ctx, "check_idempotency", attribute.String("payment.id", id))
	defer span.End()

	_, err := s.repo.GetPayment(ctx, id)
	switch {
	case err == nil:
		telemetry.Fail(span, ErrDuplicatePayment, attribute.Bool("payment.duplicate", true))
		return ErrDuplicatePayment
	case errors.Is(err, repository.ErrPaymentNotFound):
		span.SetAttributes(attribute.Bool("payment.duplicate", false))
		return nil
	default:
		telemetry.Fail(span, err)
		return fmt.Errorf("%w: idempotency check", ErrInternal)
	}
}

func (s *PaymentService) validateOrder(ctx context.Context, orderID string) (*model.OrderStatusView, error) {
	ctx, span := s.tel.Start(ctx, "validate_order", attribute.String("order.id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderStatus(ctx, orderID)
	if err != nil {
		telemetry.Fail(span, err, attribute.Bool("order.found", false), remoteCause(err))
		return nil, ErrInvalidOrder
	}
	span.SetAttributes(
		attribute.Bool("order.found", true),
		attribute.String("order.user_id", order.UserID),
	)
	return order, nil
}

func (s *PaymentService) checkOwnership(ctx context.Context, order *model.OrderStatusView, userID string) error {
	_, span := s.tel.Start(ctx, "check_ownership",
		attribute.String("order.user_id", order.UserID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	if order.UserID != userID {
		telemetry.Fail(span, ErrOwnershipMismatch, attribute.Bool("order.user.mismatch", true))
		return ErrOwnershipMismatch
	}
	span.SetAttributes(attribute.Bool("order.user.mismatch", false))
	return nil
}

func (s *PaymentService) validateUser(ctx context.Context, userID string) error {
	ctx, span := s.tel.Start(ctx, "validate_user", attribute.String("user.id", userID))
	defer span.End()

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		telemetry.Fail(span, err, attribute.Bool("user.found", false), remoteCause(err))
		return ErrInvalidUser
	}
	span.SetAttributes(attribute.Bool("user.found", true))
	return nil
}

func (s *PaymentService) simulateOutcome(ctx context.Context) model.PaymentStatus {
	_, span := s.tel.Start(ctx, "simulate_outcome")
	defer span.End()

	status := model.PaymentStatusSuccess
	if s.failures.Decide() {
		status = model.PaymentStatusFailed
	}
	span.SetAttributes(attribute.String("payment.status", string(status)))
	return status
}

// persist записывает платёж. Проигравший гонку одинаковых идентификаторов получает
// ErrDuplicatePayment от уникального ключа хранилища.
func (s *PaymentService) persist(ctx context.Context, p model.Payment) error {
	ctx, span := s.tel.Start(ctx, "insert_payment_db", attribute.String("payment.status", string(p.Status)))
	defer span.End()

	if err := pause(ctx, s.latency); err != nil {
		telemetry.Fail(span, err, attribute.Bool("db.insert.success", false))
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	p.CreatedAt = s.now()
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, repository.ErrPaymentExists) {
			telemetry.Fail(span, err,
				attribute.Bool("db.insert.success", false),
				attribute.Bool("payment.duplicate", true),
			)
			return ErrDuplicatePayment
		}
		telemetry.Fail(span, err, attribute.Bool("db.insert.success", false))
		return fmt.Errorf("%w: insert payment", ErrInternal)
	}
	span.SetAttributes(attribute.Bool("db.insert.success", true))
	return nil
}

// GetPaymentStatus возвращает последний платёж по заказу. Если платежа нет,
// возвращается статус «Not Paid» без ошибки.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, orderID string) (*model.PaymentStatusView, error) {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "get_payment_status", attribute.String("order.id", orderID))
	defer span.End()

	p, err := s.repo.GetLatestPaymentByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			span.SetAttributes(attribute.Bool("payment.found", false))
			s.tel.RecordDuration(ctx, RoutePaymentStatus, start)
			return &model.PaymentStatusView{OrderID: orderID, Status: model.PaymentStatusNotPaid}, nil
		}
		return nil, fail(ctx, s.tel, span, RoutePaymentStatus, err, ErrInternal)
	}
	span.SetAttributes(
		attribute.Bool("payment.found", true),
		attribute.String("payment.id", p.ID),
		attribute.String("payment.status", string(p.Status)),
	)

	s.tel.RecordDuration(ctx, RoutePaymentStatus, start)
	return &model.PaymentStatusView{
		OrderID:   orderID,
		Status:    p.Status,
		PaymentID: p.ID,
		Amount:    p.Amount,
	}, nil
}

// GetUserPayments собирает сводку оплат пользователя: пользователь и заказы берутся
// из сервиса заказов, для каждого заказа читается последний платёж.
// Отсутствие пользователя даёт ErrNotFound, прочие отказы сервиса заказов ErrUpstream.
func (s *PaymentService) GetUserPayments(ctx context.Context, userID string) (*model.UserPayments, error) {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "get_user_payments", attribute.String("user.id", userID))
	defer span.End()

	user, orders, err := s.fetchOrders(ctx, userID)
	if err != nil {
		if peer.IsNotFound(err) {
			return nil, fail(ctx, s.tel, span, RouteUserPayments, err, ErrNotFound)
		}
		return nil, fail(ctx, s.tel, span, RouteUserPayments, err, ErrUpstream)
	}

	if s.lookupFaults.Decide() {
		return nil, fail(ctx, s.tel, span, RouteUserPayments, ErrInjectedFault, ErrInjectedFault,
			attribute.Bool("simulated_failure", true))
	}

	summary, err := s.lookupPayments(ctx, user, orders)
	if err != nil {
		return nil, fail(ctx, s.tel, span, RouteUserPayments, err, ErrInternal)
	}

	s.tel.RecordDuration(ctx, RouteUserPayments, start)
	return summary, nil
}

func (s *PaymentService) fetchOrders(ctx context.Context, userID string) (*model.User, []model.Order, error) {
	ctx, span := s.tel.Start(ctx, "fetch_user_orders", attribute.String("user.id", userID))
	defer span.End()

	user, orders, err := s.orders.GetOrdersForUser(ctx, userID)
	if err != nil {
		telemetry.Fail(span, err, remoteCause(err))
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return user, orders, nil
}

func (s *PaymentService) lookupPayments(ctx context.Context, user *model.User, orders []model.Order) (*model.UserPayments, error) {
	ctx, span := s.tel.Start(ctx, "lookup_payments_db")
	defer span.End()

	if err := pause(ctx, s.lookupLatency); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	summary := &model.UserPayments{
		User:   *user,
		Orders: make([]model.OrderPayment, 0, len(orders)),
	}
	paid := 0
	for _, o := range orders {
		view := model.PaymentStatusView{OrderID: o.ID, Status: model.PaymentStatusNotPaid}

		p, err := s.repo.GetLatestPaymentByOrder(ctx, o.ID)
		switch {
		case err == nil:
			view.Status, view.PaymentID, view.Amount = p.Status, p.ID, p.Amount
			paid++
		case !errors.Is(err, repository.ErrPaymentNotFound):
			telemetry.Fail(span, err, attribute.String("order.id", o.ID))
			return nil, fmt.Errorf("latest payment for %s: %w", o.ID, err)
		}

		summary.Orders = append(summary.Orders, model.OrderPayment{Order: o, Payment: view})
	}
	span.SetAttributes(attribute.Int("payments.found", paid))
	return summary, nil
}
