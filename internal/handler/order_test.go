package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/service"
	"github.com/mmeshcher/paymesh/internal/telemetry/telemetrytest"
)

func newOrderRouter(t *testing.T, svc OrderService) http.Handler {
	t.Helper()
	return NewOrderHandler(svc, zap.NewNop()).SetupRouter(telemetrytest.New(t).Telemetry)
}

func TestCreateOrder(t *testing.T) {
	svc := &stubOrderService{createID: "O1"}
	r := newOrderRouter(t, svc)

	res := do(t, r, http.MethodPost, "/orders", `{"id":"O1","user_id":"U1","item":"book","price":9.99}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, map[string]any{"message": "Order created", "order_id": "O1"}, decodeBody(t, res))

	require.Len(t, svc.created, 1)
	assert.True(t, svc.created[0].Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, "U1", svc.created[0].UserID)
}

func TestCreateOrder_WithoutID(t *testing.T) {
	svc := &stubOrderService{createID: "generated"}
	r := newOrderRouter(t, svc)

	res := do(t, r, http.MethodPost, "/orders", `{"user_id":"U1","item":"book","price":"1.50"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "generated", decodeBody(t, res)["order_id"])
	assert.Empty(t, svc.created[0].ID)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{name: "invalid user", body: `{"id":"O1","user_id":"U9","item":"book","price":1}`, err: service.ErrInvalidUser, wantStatus: http.StatusBadRequest, wantDetail: "Invalid user ID"},
		{name: "duplicate", body: `{"id":"O1","user_id":"U1","item":"book","price":1}`, err: service.ErrConflict, wantStatus: http.StatusBadRequest, wantDetail: "Order already exists"},
		{name: "storage", body: `{"id":"O1","user_id":"U1","item":"book","price":1}`, err: service.ErrInternal, wantStatus: http.StatusInternalServerError, wantDetail: "Database insert failed"},
		{name: "negative price", body: `{"id":"O1","user_id":"U1","item":"book","price":-1}`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid order payload"},
		{name: "missing user", body: `{"id":"O1","item":"book","price":1}`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid order payload"},
		{name: "bad price", body: `{"id":"O1","user_id":"U1","item":"book","price":"cheap"}`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid order payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubOrderService{createErr: tt.err}
			res := do(t, newOrderRouter(t, svc), http.MethodPost, "/orders", tt.body)
			assertDetail(t, res, tt.wantStatus, tt.wantDetail)
		})
	}
}

func TestGetOrders(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		user: &model.User{ID: "U1", Name: "Alice"},
		orders: []model.Order{
			{ID: "O1", UserID: "U1", Item: "book", Price: decimal.RequireFromString("9.99"), Status: model.OrderStatusPending, CreatedAt: created},
		},
	}
	r := newOrderRouter(t, svc)

	res := do(t, r, http.MethodGet, "/orders/U1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	user := body["user"].(map[string]any)
	assert.Equal(t, "U1", user["user_id"])
	assert.Equal(t, "Alice", user["name"])

	orders := body["orders"].([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, map[string]any{
		"id":         "O1",
		"item":       "book",
		"price":      9.99,
		"status":     "pending",
		"created_at": "2024-03-01T12:00:00Z",
	}, orders[0])
}

func TestGetOrders_Empty(t *testing.T) {
	svc := &stubOrderService{user: &model.User{ID: "U1"}}
	res := do(t, newOrderRouter(t, svc), http.MethodGet, "/orders/U1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []any{}, decodeBody(t, res)["orders"])
}

func TestGetOrders_Errors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantDetail string
	}{
		{err: service.ErrNotFound, wantStatus: http.StatusNotFound, wantDetail: "User not found"},
		{err: service.ErrInjectedFault, wantStatus: http.StatusBadGateway, wantDetail: "Order lookup failed"},
		{err: service.ErrInternal, wantStatus: http.StatusInternalServerError, wantDetail: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &stubOrderService{ordersErr: tt.err}
			res := do(t, newOrderRouter(t, svc), http.MethodGet, "/orders/U1", "")
			assertDetail(t, res, tt.wantStatus, tt.wantDetail)
		})
	}
}

func TestGetOrderStatus(t *testing.T) {
	svc := &stubOrderService{status: &model.OrderStatusView{OrderID: "O1", UserID: "U1", Status: model.OrderStatusPending}}
	r := newOrderRouter(t, svc)

	res := do(t, r, http.MethodGet, "/orders/status/O1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"order_id": "O1", "user_id": "U1", "status": "pending"}, decodeBody(t, res))

	svc.status, svc.statusErr = nil, service.ErrNotFound
	assertDetail(t, do(t, r, http.MethodGet, "/orders/status/O2", ""), http.StatusNotFound, "Order not found")
}
