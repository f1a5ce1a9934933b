package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/service"
	"github.com/mmeshcher/paymesh/internal/telemetry"
	"github.com/mmeshcher/paymesh/internal/validation"
)

// PaymentService определяет контракт бизнес-логики сервиса платежей.
type PaymentService interface {
	ProcessPayment(ctx context.Context, req service.PaymentRequest) (*service.PaymentResult, error)
	GetPaymentStatus(ctx context.Context, orderID string) (*model.PaymentStatusView, error)
	GetUserPayments(ctx context.Context, userID string) (*model.UserPayments, error)
}

// PaymentHandler реализует HTTP API сервиса платежей.
type PaymentHandler struct {
	service PaymentService
	logger  *zap.Logger
	tel     *telemetry.Telemetry
}

// NewPaymentHandler создаёт обработчик запросов сервиса платежей.
func NewPaymentHandler(s PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: logger}
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса платежей.
func (h *PaymentHandler) SetupRouter(tel *telemetry.Telemetry) *chi.Mux {
	h.tel = tel
	r := newRouter("payment-service", tel, h.logger)

	r.Post(service.RoutePayments, h.ProcessPayment)
	r.Get(service.RoutePaymentStatus, h.GetPaymentStatus)
	r.Get(service.RouteUserPayments, h.GetUserPayments)

	return r
}

type paymentRequest struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type paymentResponse struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}

// ProcessPayment проводит платёж по заказу.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		reject(w, r, h.tel, service.RoutePayments, "Invalid payment payload")
		return
	}

	if !validation.IsValidID(req.ID) ||
		!validation.IsValidID(req.OrderID) ||
		!validation.IsValidID(req.UserID) ||
		!validation.IsValidAmount(req.Amount) {
		reject(w, r, h.tel, service.RoutePayments, "Invalid payment payload")
		return
	}

	res, err := h.service.ProcessPayment(r.Context(), service.PaymentRequest{
		ID:      req.ID,
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Amount:  req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicatePayment):
			writeError(w, http.StatusBadRequest, "Duplicate payment")
		case errors.Is(err, service.ErrOwnershipMismatch):
			writeError(w, http.StatusBadRequest, "Order does not belong to user")
		case errors.Is(err, service.ErrInvalidOrder):
			writeError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, service.ErrInvalidUser):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.logger.Error("process payment error", zap.Error(err), zap.String("payment_id", req.ID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		Message:   "Processed",
		Status:    string(res.Status),
		PaymentID: res.PaymentID,
	})
}

type paymentStatusResponse struct {
	OrderID   string   `json:"order_id"`
	Status    string   `json:"status"`
	PaymentID string   `json:"payment_id,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
}

// GetPaymentStatus возвращает состояние оплаты заказа.
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	view, err := h.service.GetPaymentStatus(r.Context(), orderID)
	if err != nil {
		h.logger.Error("get payment status error", zap.Error(err), zap.String("order_id", orderID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, toPaymentStatusResponse(*view))
}

func toPaymentStatusResponse(view model.PaymentStatusView) paymentStatusResponse {
	resp := paymentStatusResponse{
		OrderID: view.OrderID,
		Status:  string(view.Status),
	}
	if view.Paid() {
		amount := view.Amount.InexactFloat64()
		resp.PaymentID = view.PaymentID
		resp.Amount = &amount
	}
	return resp
}

type userPaymentsResponse struct {
	User     userResponse            `json:"user"`
	Orders   []orderResponse         `json:"orders"`
	Payments []paymentStatusResponse `json:"payments"`
}

// GetUserPayments возвращает пользователя, его заказы и состояние оплаты каждого заказа.
func (h *PaymentHandler) GetUserPayments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	summary, err := h.service.GetUserPayments(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrUpstream):
			writeError(w, http.StatusBadGateway, "Failed to fetch orders info")
		case errors.Is(err, service.ErrInjectedFault):
			writeError(w, http.StatusBadGateway, "Payment lookup failed")
		default:
			h.logger.Error("get user payments error", zap.Error(err), zap.String("user_id", userID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	resp := userPaymentsResponse{
		User:     toUserResponse(&summary.User),
		Orders:   make([]orderResponse, 0, len(summary.Orders)),
		Payments: make([]paymentStatusResponse, 0, len(summary.Orders)),
	}
	for _, op := range summary.Orders {
		resp.Orders = append(resp.Orders, toOrderResponse(op.Order))
		resp.Payments = append(resp.Payments, toPaymentStatusResponse(op.Payment))
	}

	writeJSON(w, http.StatusOK, resp)
}
