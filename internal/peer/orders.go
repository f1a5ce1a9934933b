package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/paymesh/internal/model"
)

// OrderClient обращается к сервису заказов.
type OrderClient struct {
	client *Client
}

// NewOrderClient создаёт клиент сервиса заказов.
func NewOrderClient(c *Client) *OrderClient {
	return &OrderClient{client: c}
}

// GetOrderStatus запрашивает статус заказа. Сервис заказов отвечает 404 и тогда,
// когда владелец заказа сейчас не находится.
func (o *OrderClient) GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatusView, error) {
	var v model.OrderStatusView
	if err := o.client.getJSON(ctx, "/orders/status/"+escape(orderID), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type orderPayload struct {
	ID        string          `json:"id"`
	Item      string          `json:"item"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

type userOrdersPayload struct {
	User   userPayload    `json:"user"`
	Orders []orderPayload `json:"orders"`
}

// GetOrdersForUser запрашивает пользователя и его заказы. Заказы в ответе не содержат
// user_id, он восстанавливается из пользователя.
func (o *OrderClient) GetOrdersForUser(ctx context.Context, userID string) (*model.User, []model.Order, error) {
	var p userOrdersPayload
	if err := o.client.getJSON(ctx, "/orders/"+escape(userID), &p); err != nil {
		return nil, nil, err
	}

	user, err := p.User.toModel()
	if err != nil {
		return nil, nil, err
	}

	orders := make([]model.Order, 0, len(p.Orders))
	for _, op := range p.Orders {
		order := model.Order{
			ID:     op.ID,
			UserID: user.ID,
			Item:   op.Item,
			Price:  op.Price,
			Status: model.OrderStatus(op.Status),
		}
		if op.CreatedAt != "" {
			createdAt, err := time.Parse(time.RFC3339, op.CreatedAt)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: parse created_at: %v", ErrUnavailable, err)
			}
			order.CreatedAt = createdAt
		}
		orders = append(orders, order)
	}

	return user, orders, nil
}
