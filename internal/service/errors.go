package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmeshcher/paymesh/internal/peer"
	"github.com/mmeshcher/paymesh/internal/telemetry"
)

// Ошибки, видимые клиентам. Причина (какой вызов упал, транспорт или отказ соседа)
// записывается только в атрибуты спанов.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrDuplicatePayment  = errors.New("duplicate payment")
	ErrInvalidUser       = errors.New("invalid user")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrOwnershipMismatch = errors.New("order does not belong to user")
	ErrInjectedFault     = errors.New("simulated failure")
	ErrUpstream          = errors.New("upstream failure")
	ErrInternal          = errors.New("internal error")
)

// fail закрывает этап ошибкой: причина уходит в спан, счётчик ошибок маршрута
// увеличивается, вызывающему возвращается err. Спан остаётся открытым до defer span.End().
func fail(ctx context.Context, tel *telemetry.Telemetry, span trace.Span, route string, cause, err error, attrs ...attribute.KeyValue) error {
	telemetry.Fail(span, cause, attrs...)
	tel.RecordError(ctx, route)
	return err
}

// remoteCause классифицирует ошибку вызова соседа для атрибута peer.error.
func remoteCause(err error) attribute.KeyValue {
	cause := "rejected"
	switch {
	case errors.Is(err, peer.ErrTimeout):
		cause = "timeout"
	case errors.Is(err, peer.ErrUnavailable):
		cause = "unavailable"
	case peer.IsNotFound(err):
		cause = "not_found"
	}
	return attribute.String("peer.error", cause)
}
