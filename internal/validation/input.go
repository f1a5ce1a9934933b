// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/paymesh/internal/model"
)

// MaxIDLength ограничивает длину идентификаторов, приходящих от клиентов.
const MaxIDLength = 64

// IsValidID проверяет идентификатор: непустой, без пробелов и управляющих символов,
// не длиннее MaxIDLength. Идентификатор попадает в путь URL при вызовах соседей.
func IsValidID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for _, ch := range id {
		if unicode.IsSpace(ch) || unicode.IsControl(ch) || ch == '/' {
			return false
		}
	}
	return true
}

// IsValidEmail проверяет, что строка является одиночным адресом без отображаемого имени.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// IsValidAmount проверяет денежную сумму: не отрицательна.
func IsValidAmount(amount decimal.Decimal) bool {
	return !amount.IsNegative()
}

// ParseDateOfBirth разбирает дату рождения в формате YYYY-MM-DD. Дата из будущего недопустима.
func ParseDateOfBirth(s string, now time.Time) (time.Time, bool) {
	dob, err := time.Parse(model.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	if dob.After(now) {
		return time.Time{}, false
	}
	return dob, true
}
