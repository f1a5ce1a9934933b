package repository

import "errors"

var (
	// ErrUserExists возвращается при попытке создать пользователя с существующим идентификатором.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderExists возвращается при попытке создать заказ с существующим идентификатором.
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentExists возвращается, если платёж с таким идентификатором уже записан.
	ErrPaymentExists = errors.New("payment already exists")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
)
