package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/service"
	"github.com/mmeshcher/paymesh/internal/telemetry"
	"github.com/mmeshcher/paymesh/internal/validation"
)

// UserService определяет контракт бизнес-логики сервиса пользователей.
type UserService interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// UserHandler реализует HTTP API сервиса пользователей.
type UserHandler struct {
	service UserService
	logger  *zap.Logger
	tel     *telemetry.Telemetry
	now     func() time.Time
}

// NewUserHandler создаёт обработчик запросов сервиса пользователей.
func NewUserHandler(s UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: s, logger: logger, now: time.Now}
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса пользователей.
func (h *UserHandler) SetupRouter(tel *telemetry.Telemetry) *chi.Mux {
	h.tel = tel
	r := newRouter("user-service", tel, h.logger)

	r.Post(service.RouteUsers, h.CreateUser)
	r.Get(service.RouteUser, h.GetUser)

	return r
}

type userRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	DOB     string `json:"dob"`
	Address string `json:"address"`
}

func (h *UserHandler) parseUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return model.User{}, false
	}

	if !validation.IsValidID(req.ID) || req.Name == "" || !validation.IsValidEmail(req.Email) {
		return model.User{}, false
	}

	dob, ok := validation.ParseDateOfBirth(req.DOB, h.now())
	if !ok {
		return model.User{}, false
	}

	return model.User{
		ID:          req.ID,
		Name:        req.Name,
		Email:       req.Email,
		DateOfBirth: dob,
		Address:     req.Address,
	}, true
}

// CreateUser регистрирует пользователя.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.parseUser(w, r)
	if !ok {
		reject(w, r, h.tel, service.RouteUsers, "Invalid user payload")
		return
	}

	if err := h.service.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, service.ErrConflict) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		h.logger.Error("create user error", zap.Error(err), zap.String("user_id", u.ID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "created"})
}

// GetUser возвращает пользователя по идентификатору.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "user_id")

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("get user error", zap.Error(err), zap.String("user_id", id))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}
