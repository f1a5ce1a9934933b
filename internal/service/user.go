// Package service реализует бизнес-логику сервисов пользователей, заказов и платежей.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/repository"
	"github.com/mmeshcher/paymesh/internal/telemetry"
)

// UserRepository описывает контракт хранилища пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
}

// UserService отвечает за создание и поиск пользователей.
type UserService struct {
	repo    UserRepository
	tel     *telemetry.Telemetry
	faults  Decider
	latency time.Duration
}

// NewUserService создаёт сервис пользователей. faults и latency имитируют нестабильность
// сервиса; nil и 0 их отключают.
func NewUserService(repo UserRepository, tel *telemetry.Telemetry, faults Decider, latency time.Duration) *UserService {
	return &UserService{
		repo:    repo,
		tel:     tel,
		faults:  orNever(faults),
		latency: latency,
	}
}

// CreateUser сохраняет нового пользователя. Существующий идентификатор даёт ErrConflict.
func (s *UserService) CreateUser(ctx context.Context, u model.User) error {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "create_user", attribute.String("user.id", u.ID))
	defer span.End()

	exists, err := s.repo.UserExists(ctx, u.ID)
	if err != nil {
		return fail(ctx, s.tel, span, RouteUsers, err, ErrInternal)
	}
	if exists {
		return fail(ctx, s.tel, span, RouteUsers, ErrConflict, ErrConflict, attribute.Bool("user.exists", true))
	}
	span.SetAttributes(attribute.Bool("user.exists", false))

	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return fail(ctx, s.tel, span, RouteUsers, err, ErrConflict, attribute.Bool("user.exists", true))
		}
		return fail(ctx, s.tel, span, RouteUsers, err, ErrInternal)
	}

	s.tel.RecordDuration(ctx, RouteUsers, start)
	return nil
}

// GetUser возвращает пользователя по идентификатору или ErrNotFound.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	start := time.Now()

	ctx, span := s.tel.Start(ctx, "get_user_lookup", attribute.String("user.id", id))
	defer span.End()

	if s.faults.Decide() {
		return nil, fail(ctx, s.tel, span, RouteUser, ErrInjectedFault, ErrInjectedFault, attribute.Bool("simulated_failure", true))
	}

	if err := pause(ctx, s.latency); err != nil {
		return nil, fail(ctx, s.tel, span, RouteUser, err, fmt.Errorf("%w: %v", ErrInternal, err))
	}

	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fail(ctx, s.tel, span, RouteUser, err, ErrNotFound, attribute.Bool("user.found", false))
		}
		return nil, fail(ctx, s.tel, span, RouteUser, err, ErrInternal)
	}
	span.SetAttributes(attribute.Bool("user.found", true))

	s.tel.RecordDuration(ctx, RouteUser, start)
	return u, nil
}
