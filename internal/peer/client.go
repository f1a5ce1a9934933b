// Package peer предоставляет клиенты для синхронных вызовов соседних сервисов.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout задаёт время ожидания ответа соседнего сервиса.
const DefaultTimeout = 2 * time.Second

var (
	// ErrUnavailable возвращается при транспортной ошибке: сервис недоступен или ответ не разобран.
	ErrUnavailable = errors.New("peer unavailable")
	// ErrTimeout возвращается, если сервис не ответил за отведённое время.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrUnavailable)
)

// RejectedError описывает ответ соседнего сервиса с кодом, отличным от 2xx.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("peer rejected request: status %d", e.StatusCode)
	}
	return fmt.Sprintf("peer rejected request: status %d: %s", e.StatusCode, e.Detail)
}

// IsNotFound сообщает, что сосед ответил 404.
func IsNotFound(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.StatusCode == http.StatusNotFound
}

// Client инкапсулирует HTTP-взаимодействие с соседним сервисом.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// DefaultTransport возвращает транспорт с собственным пулом соединений.
func DefaultTransport() http.RoundTripper {
	return cleanhttp.DefaultPooledTransport()
}

// NewClient создаёт клиент для сервиса по адресу baseURL. Если transport не задан,
// используется пул соединений cleanhttp. Ретраи не выполняются.
func NewClient(baseURL string, timeout time.Duration, transport http.RoundTripper) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if transport == nil {
		transport = DefaultTransport()
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("%w: client not configured", ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &RejectedError{StatusCode: resp.StatusCode, Detail: body.Detail}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func escape(id string) string {
	return url.PathEscape(id)
}
