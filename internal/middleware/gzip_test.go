package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoBody возвращает полученное тело запроса в JSON-обёртке.
func echoBody(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Empty(t, r.Header.Get("Content-Encoding"), "request encoding must be consumed by the middleware")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	})
}

func compress(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	const payment = `{"id":"P1","order_id":"O1","user_id":"U1","amount":9.99}`

	tests := []struct {
		name           string
		body           io.Reader
		gzipBody       bool
		acceptGzip     bool
		wantStatus     int
		wantEncoding   string
		wantBodySubstr string
	}{
		{
			name:           "plain request plain response",
			body:           strings.NewReader(payment),
			wantStatus:     http.StatusOK,
			wantBodySubstr: `"order_id":"O1"`,
		},
		{
			name:           "plain request compressed response",
			body:           strings.NewReader(payment),
			acceptGzip:     true,
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
			wantBodySubstr: `"id":"P1"`,
		},
		{
			name:           "compressed request plain response",
			body:           compress(t, payment),
			gzipBody:       true,
			wantStatus:     http.StatusOK,
			wantBodySubstr: `"amount":9.99`,
		},
		{
			name:           "compressed both ways",
			body:           compress(t, payment),
			gzipBody:       true,
			acceptGzip:     true,
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
			wantBodySubstr: `"user_id":"U1"`,
		},
		{
			name:           "body declared gzip but is not",
			body:           strings.NewReader(payment),
			gzipBody:       true,
			wantStatus:     http.StatusBadRequest,
			wantBodySubstr: `"detail":"Invalid gzip body"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payments", tt.body)
			req.Header.Set("Content-Type", "application/json")
			if tt.gzipBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(echoBody(t)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			assert.Contains(t, readBody(t, res), tt.wantBodySubstr)
		})
	}
}

func TestGzipMiddleware_DropsContentLength(t *testing.T) {
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	assert.Empty(t, res.Header.Get("Content-Length"))
	assert.Equal(t, "Accept-Encoding", res.Header.Get("Vary"))
	assert.Equal(t, "hello", readBody(t, res))
}
