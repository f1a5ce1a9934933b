// Package handler содержит HTTP-обработчики API сервисов пользователей, заказов и платежей.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	custommiddleware "github.com/mmeshcher/paymesh/internal/middleware"
	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/telemetry"
)

// maxBodySize ограничивает размер тела запроса.
const maxBodySize = 1 << 20

var errMalformed = errors.New("malformed request")

type errorResponse struct {
	Detail string `json:"detail"`
}

// newRouter создаёт роутер с общими для всех сервисов middleware и служебными маршрутами.
func newRouter(service string, tel *telemetry.Telemetry, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Traceparent", "Tracestate"},
		MaxAge:         300,
	}))
	r.Use(tel.Middleware(service))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(logger))

	r.Method(http.MethodGet, "/metrics", tel.MetricsHandler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

// reject отвечает 400 на запрос, не прошедший разбор или проверку полей, и учитывает
// его в счётчике ошибок маршрута.
func reject(w http.ResponseWriter, r *http.Request, tel *telemetry.Telemetry, route, detail string) {
	if tel != nil {
		tel.RecordError(r.Context(), route)
	}
	writeError(w, http.StatusBadRequest, detail)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		return errMalformed
	}
	return nil
}

type userResponse struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	DOB     string `json:"dob"`
	Address string `json:"address"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		UserID:  u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Address: u.Address,
	}
	if !u.DateOfBirth.IsZero() {
		resp.DOB = u.DateOfBirth.Format(model.DateLayout)
	}
	return resp
}
