// Package model содержит доменные сущности сервисов пользователей, заказов и платежей.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout задаёт формат даты рождения пользователя во внешнем API.
const DateLayout = "2006-01-02"

// User представляет зарегистрированного пользователя.
type User struct {
	ID          string
	Name        string
	Email       string
	DateOfBirth time.Time
	Address     string
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
)

// Order описывает заказ пользователя.
type Order struct {
	ID        string
	UserID    string
	Item      string
	Price     decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
}

// OrderStatusView описывает ответ сервиса заказов на запрос статуса заказа.
type OrderStatusView struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Status  OrderStatus `json:"status"`
}

// PaymentStatus описывает результат обработки платежа.
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "Success"
	PaymentStatusFailed  PaymentStatus = "Failed"

	// PaymentStatusNotPaid возвращается при запросе статуса оплаты заказа без платежей.
	PaymentStatusNotPaid PaymentStatus = "Not Paid"
)

// Payment описывает платёж. ID задаётся клиентом и служит ключом идемпотентности.
type Payment struct {
	ID        string
	OrderID   string
	UserID    string
	Amount    decimal.Decimal
	Status    PaymentStatus
	CreatedAt time.Time
}

// PaymentStatusView описывает состояние оплаты заказа.
type PaymentStatusView struct {
	OrderID   string
	Status    PaymentStatus
	PaymentID string
	Amount    decimal.Decimal
}

// Paid сообщает, найден ли платёж по заказу.
func (v PaymentStatusView) Paid() bool {
	return v.Status != PaymentStatusNotPaid
}

// OrderPayment связывает заказ с состоянием его оплаты.
type OrderPayment struct {
	Order   Order
	Payment PaymentStatusView
}

// UserPayments описывает сводку оплат пользователя по всем его заказам.
type UserPayments struct {
	User   User
	Orders []OrderPayment
}
