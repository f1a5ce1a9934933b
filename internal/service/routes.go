package service

// Маршруты служат и шаблонами роутера, и меткой route у метрик.
const (
	RouteUsers         = "/users"
	RouteUser          = "/users/{user_id}"
	RouteOrders        = "/orders"
	RouteOrdersForUser = "/orders/{user_id}"
	RouteOrderStatus   = "/orders/status/{order_id}"
	RoutePayments      = "/payments"
	RoutePaymentStatus = "/payments/status/{order_id}"
	RouteUserPayments  = "/payments/{user_id}"
)
