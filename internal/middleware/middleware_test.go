package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/middleware"
)

func newStack(t *testing.T) *middleware.Stack {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			RateLimitRPS:   100,
			RateLimitBurst: 200,
			AllowedOrigins: []string{"https://app.taskforge.dev"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         600,
		},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	// nil Redis client disables rate limiting.
	return middleware.NewStack(cfg, nil, log)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	stack := newStack(t)
	handler := stack.SecurityHeaders(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/token", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS only applies over TLS")
}

func TestContentType(t *testing.T) {
	stack := newStack(t)
	handler := stack.ContentType(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
	}{
		{
			name:        "form_encoded_accepted",
			method:      http.MethodPost,
			contentType: "application/x-www-form-urlencoded",
			body:        "grant_type=client_credentials",
			wantStatus:  http.StatusOK,
		},
		{
			name:        "json_accepted",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"name":"Test"}`,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "xml_rejected",
			method:      http.MethodPost,
			contentType: "application/xml",
			body:        "<token/>",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:       "get_without_body_accepted",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/oauth/token", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnsupportedMediaType {
				assert.Contains(t, rec.Body.String(), "invalid_request")
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	stack := newStack(t)
	handler := stack.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/token", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_error")
}

func TestCORS(t *testing.T) {
	stack := newStack(t)
	handler := stack.CORS(okHandler())

	t.Run("preflight_short_circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/oauth/token", nil)
		req.Header.Set("Origin", "https://app.taskforge.dev")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.taskforge.dev", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("disallowed_origin_gets_no_allow_header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth/token", nil)
		req.Header.Set("Origin", "https://evil.example.com")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	stack := newStack(t)
	handler := stack.RequestLogger(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/token", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	stack := newStack(t)
	handler := stack.RateLimit(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/token", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Ratelimit-Limit"))
	}
}

func TestChainAppliesOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	stack := newStack(t)
	handler := stack.Chain(okHandler(), tag("outer"), tag("inner"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}
