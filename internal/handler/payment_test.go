package handler

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/service"
	"github.com/mmeshcher/paymesh/internal/telemetry"
	"github.com/mmeshcher/paymesh/internal/telemetry/telemetrytest"
)

func newPaymentRouter(t *testing.T, svc PaymentService) http.Handler {
	t.Helper()
	return NewPaymentHandler(svc, zap.NewNop()).SetupRouter(telemetrytest.New(t).Telemetry)
}

func TestProcessPayment(t *testing.T) {
	svc := &stubPaymentService{result: &service.PaymentResult{PaymentID: "P1", Status: model.PaymentStatusSuccess}}
	r := newPaymentRouter(t, svc)

	res := do(t, r, http.MethodPost, "/payments", `{"id":"P1","order_id":"O1","user_id":"U1","amount":9.99}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{
		"message":    "Processed",
		"status":     "Success",
		"payment_id": "P1",
	}, decodeBody(t, res))

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, "P1", req.ID)
	assert.Equal(t, "O1", req.OrderID)
	assert.Equal(t, "U1", req.UserID)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("9.99")))
}

func TestProcessPayment_Errors(t *testing.T) {
	const body = `{"id":"P1","order_id":"O1","user_id":"U1","amount":1}`

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{name: "duplicate", body: body, err: service.ErrDuplicatePayment, wantStatus: http.StatusBadRequest, wantDetail: "Duplicate payment"},
		{name: "mismatch", body: body, err: service.ErrOwnershipMismatch, wantStatus: http.StatusBadRequest, wantDetail: "Order does not belong to user"},
		{name: "invalid order", body: body, err: service.ErrInvalidOrder, wantStatus: http.StatusNotFound, wantDetail: "Order not found"},
		{name: "invalid user", body: body, err: service.ErrInvalidUser, wantStatus: http.StatusNotFound, wantDetail: "User not found"},
		{name: "storage", body: body, err: service.ErrInternal, wantStatus: http.StatusInternalServerError, wantDetail: "Internal Server Error"},
		{name: "negative amount", body: `{"id":"P1","order_id":"O1","user_id":"U1","amount":-5}`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid payment payload"},
		{name: "missing id", body: `{"order_id":"O1","user_id":"U1","amount":5}`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid payment payload"},
		{name: "not json", body: `amount=5`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid payment payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubPaymentService{processErr: tt.err}
			res := do(t, newPaymentRouter(t, svc), http.MethodPost, "/payments", tt.body)
			assertDetail(t, res, tt.wantStatus, tt.wantDetail)
		})
	}
}

func TestGetPaymentStatus(t *testing.T) {
	svc := &stubPaymentService{view: &model.PaymentStatusView{OrderID: "O1", Status: model.PaymentStatusNotPaid}}
	r := newPaymentRouter(t, svc)

	res := do(t, r, http.MethodGet, "/payments/status/O1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"order_id": "O1", "status": "Not Paid"}, decodeBody(t, res))

	svc.view = &model.PaymentStatusView{
		OrderID:   "O1",
		Status:    model.PaymentStatusSuccess,
		PaymentID: "P1",
		Amount:    decimal.RequireFromString("9.99"),
	}
	res = do(t, r, http.MethodGet, "/payments/status/O1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{
		"order_id":   "O1",
		"status":     "Success",
		"payment_id": "P1",
		"amount":     9.99,
	}, decodeBody(t, res))

	svc.view, svc.statusErr = nil, service.ErrInternal
	assertDetail(t, do(t, r, http.MethodGet, "/payments/status/O1", ""), http.StatusInternalServerError, "Internal Server Error")
}

func TestProcessPayment_GzipBody(t *testing.T) {
	svc := &stubPaymentService{result: &service.PaymentResult{PaymentID: "P1", Status: model.PaymentStatusSuccess}}
	r := newPaymentRouter(t, svc)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"id":"P1","order_id":"O1","user_id":"U1","amount":9.99}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	req := httptest.NewRequest(http.MethodPost, "/payments", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "O1", svc.requests[0].OrderID)
	assert.True(t, svc.requests[0].Amount.Equal(decimal.RequireFromString("9.99")))

	req = httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(`{"id":"P2"}`))
	req.Header.Set("Content-Encoding", "gzip")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid gzip body"}`, rec.Body.String())
	assert.Len(t, svc.requests, 1)
}

func TestMalformedRequestsCountedByRoute(t *testing.T) {
	h := telemetrytest.New(t)
	log := zap.NewNop()

	users := NewUserHandler(&stubUserService{}, log).SetupRouter(h.Telemetry)
	orders := NewOrderHandler(&stubOrderService{}, log).SetupRouter(h.Telemetry)
	payments := NewPaymentHandler(&stubPaymentService{}, log).SetupRouter(h.Telemetry)

	assertDetail(t, do(t, users, http.MethodPost, "/users", `{"id":`), http.StatusBadRequest, "Invalid user payload")
	assertDetail(t, do(t, orders, http.MethodPost, "/orders", `{"user_id":"U1","item":"","price":1}`), http.StatusBadRequest, "Invalid order payload")
	assertDetail(t, do(t, payments, http.MethodPost, "/payments", `amount=5`), http.StatusBadRequest, "Invalid payment payload")
	assertDetail(t, do(t, payments, http.MethodPost, "/payments", `{"id":"P1","order_id":"O1","user_id":"U1","amount":-1}`), http.StatusBadRequest, "Invalid payment payload")

	assert.Equal(t, int64(1), h.IntCounter(t, telemetry.MetricErrors, "route", service.RouteUsers))
	assert.Equal(t, int64(1), h.IntCounter(t, telemetry.MetricErrors, "route", service.RouteOrders))
	assert.Equal(t, int64(2), h.IntCounter(t, telemetry.MetricErrors, "route", service.RoutePayments))
}

func TestGetUserPayments(t *testing.T) {
	svc := &stubPaymentService{summary: &model.UserPayments{
		User: model.User{ID: "U1", Name: "Alice", Email: "alice@example.com"},
		Orders: []model.OrderPayment{
			{
				Order: model.Order{
					ID: "O1", UserID: "U1", Item: "book", Price: decimal.RequireFromString("9.99"),
					Status: model.OrderStatusPending, CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				},
				Payment: model.PaymentStatusView{
					OrderID: "O1", Status: model.PaymentStatusSuccess, PaymentID: "P1", Amount: decimal.RequireFromString("9.99"),
				},
			},
			{
				Order: model.Order{
					ID: "O2", UserID: "U1", Item: "pen", Price: decimal.RequireFromString("1.5"),
					Status: model.OrderStatusPending, CreatedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
				},
				Payment: model.PaymentStatusView{OrderID: "O2", Status: model.PaymentStatusNotPaid},
			},
		},
	}}
	r := newPaymentRouter(t, svc)

	res := do(t, r, http.MethodGet, "/payments/U1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{
		"user": map[string]any{
			"user_id": "U1", "name": "Alice", "email": "alice@example.com", "dob": "", "address": "",
		},
		"orders": []any{
			map[string]any{"id": "O1", "item": "book", "price": 9.99, "status": "pending", "created_at": "2024-03-01T12:00:00Z"},
			map[string]any{"id": "O2", "item": "pen", "price": 1.5, "status": "pending", "created_at": "2024-03-02T12:00:00Z"},
		},
		"payments": []any{
			map[string]any{"order_id": "O1", "status": "Success", "payment_id": "P1", "amount": 9.99},
			map[string]any{"order_id": "O2", "status": "Not Paid"},
		},
	}, decodeBody(t, res))

	// Статический сегмент status не перехватывается шаблоном /payments/{user_id}.
	svc.view = &model.PaymentStatusView{OrderID: "O1", Status: model.PaymentStatusNotPaid}
	res = do(t, r, http.MethodGet, "/payments/status/O1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "O1", decodeBody(t, res)["order_id"])
}

func TestGetUserPayments_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{name: "unknown user", err: service.ErrNotFound, wantStatus: http.StatusNotFound, wantDetail: "User not found"},
		{name: "orders service failed", err: service.ErrUpstream, wantStatus: http.StatusBadGateway, wantDetail: "Failed to fetch orders info"},
		{name: "injected fault", err: service.ErrInjectedFault, wantStatus: http.StatusBadGateway, wantDetail: "Payment lookup failed"},
		{name: "storage", err: service.ErrInternal, wantStatus: http.StatusInternalServerError, wantDetail: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubPaymentService{summaryErr: tt.err}
			res := do(t, newPaymentRouter(t, svc), http.MethodGet, "/payments/U1", "")
			assertDetail(t, res, tt.wantStatus, tt.wantDetail)
		})
	}
}
