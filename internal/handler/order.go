package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/service"
	"github.com/mmeshcher/paymesh/internal/telemetry"
	"github.com/mmeshcher/paymesh/internal/validation"
)

// OrderService определяет контракт бизнес-логики сервиса заказов.
type OrderService interface {
	CreateOrder(ctx context.Context, o model.Order) (string, error)
	GetOrdersForUser(ctx context.Context, userID string) (*model.User, []model.Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatusView, error)
}

// OrderHandler реализует HTTP API сервиса заказов.
type OrderHandler struct {
	service OrderService
	logger  *zap.Logger
	tel     *telemetry.Telemetry
}

// NewOrderHandler создаёт обработчик запросов сервиса заказов.
func NewOrderHandler(s OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{service: s, logger: logger}
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса заказов.
func (h *OrderHandler) SetupRouter(tel *telemetry.Telemetry) *chi.Mux {
	h.tel = tel
	r := newRouter("order-service", tel, h.logger)

	r.Post(service.RouteOrders, h.CreateOrder)
	r.Get(service.RouteOrdersForUser, h.GetOrders)
	r.Get(service.RouteOrderStatus, h.GetOrderStatus)

	return r
}

type orderRequest struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Item   string          `json:"item"`
	Price  decimal.Decimal `json:"price"`
}

// CreateOrder создаёт заказ от имени пользователя.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		reject(w, r, h.tel, service.RouteOrders, "Invalid order payload")
		return
	}

	if (req.ID != "" && !validation.IsValidID(req.ID)) ||
		!validation.IsValidID(req.UserID) ||
		req.Item == "" ||
		!validation.IsValidAmount(req.Price) {
		reject(w, r, h.tel, service.RouteOrders, "Invalid order payload")
		return
	}

	id, err := h.service.CreateOrder(r.Context(), model.Order{
		ID:     req.ID,
		UserID: req.UserID,
		Item:   req.Item,
		Price:  req.Price,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, "Invalid user ID")
		case errors.Is(err, service.ErrConflict):
			writeError(w, http.StatusBadRequest, "Order already exists")
		default:
			h.logger.Error("create order error", zap.Error(err), zap.String("order_id", req.ID))
			writeError(w, http.StatusInternalServerError, "Database insert failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "Order created",
		"order_id": id,
	})
}

type orderResponse struct {
	ID        string  `json:"id"`
	Item      string  `json:"item"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

func toOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Item:      o.Item,
		Price:     o.Price.InexactFloat64(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type userOrdersResponse struct {
	User   userResponse    `json:"user"`
	Orders []orderResponse `json:"orders"`
}

// GetOrders возвращает пользователя и список его заказов.
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	user, orders, err := h.service.GetOrdersForUser(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrInjectedFault):
			writeError(w, http.StatusBadGateway, "Order lookup failed")
		default:
			h.logger.Error("get orders error", zap.Error(err), zap.String("user_id", userID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	resp := userOrdersResponse{
		User:   toUserResponse(user),
		Orders: make([]orderResponse, 0, len(orders)),
	}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOrderStatus возвращает статус заказа и его владельца.
func (h *OrderHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	view, err := h.service.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("get order status error", zap.Error(err), zap.String("order_id", orderID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, view)
}
