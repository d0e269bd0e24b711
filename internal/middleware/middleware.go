// Package middleware provides the HTTP middleware stack for the token
// service: panic recovery, request logging, security headers, CORS,
// Redis-backed rate limiting, and content type validation.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/constants"
	"github.com/taskforge-app/token-service/pkg/logger"
)

const (
	// HTTPClientError is the minimum 4xx status code.
	HTTPClientError = 400
	// HTTPServerError is the minimum 5xx status code.
	HTTPServerError = 500
)

// Stack holds middleware dependencies.
type Stack struct {
	config  *config.Config
	limiter *redis_rate.Limiter
	logger  *logrus.Logger
}

// NewStack creates the middleware stack. redisClient is optional; when
// nil (MemoryStore fallback) rate limiting is disabled.
func NewStack(cfg *config.Config, redisClient *redis.Client, log *logrus.Logger) *Stack {
	var limiter *redis_rate.Limiter
	if redisClient != nil {
		limiter = redis_rate.NewLimiter(redisClient)
	}

	return &Stack{
		config:  cfg,
		limiter: limiter,
		logger:  log,
	}
}

// Chain applies middleware to a handler, outermost first.
func (m *Stack) Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := range middleware {
		h = middleware[len(middleware)-1-i](h)
	}
	return h
}

// RequestLogger assigns each request a correlation ID and logs method,
// path, status and duration once the handler returns.
func (m *Stack) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := uuid.New().String()
		ctx := logger.SetCorrelationID(r.Context(), requestID)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set(constants.HeaderXRequestID, requestID)

		next.ServeHTTP(wrapped, r)

		// Health probes fire every few seconds; logging them is noise.
		if strings.HasPrefix(r.URL.Path, "/health") {
			return
		}

		duration := time.Since(start)

		fields := logrus.Fields{
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         wrapped.statusCode,
			"duration":       duration.String(),
			"duration_ms":    duration.Milliseconds(),
			"remote_addr":    getClientIP(r),
			"user_agent":     r.UserAgent(),
			"content_length": r.ContentLength,
		}
		if referer := r.Header.Get(constants.HeaderReferer); referer != "" {
			fields["referer"] = referer
		}

		level := logrus.InfoLevel
		if wrapped.statusCode >= HTTPClientError {
			level = logrus.WarnLevel
		}
		if wrapped.statusCode >= HTTPServerError {
			level = logrus.ErrorLevel
		}

		logger.WithCorrelationID(r.Context(), m.logger).WithFields(fields).Log(level, "HTTP request processed")
	})
}

// RateLimit applies per-client-IP rate limiting backed by Redis using a
// token bucket. Limiter errors fail open so a Redis hiccup never blocks
// traffic.
func (m *Stack) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if m.limiter == nil || m.isTrustedProxy(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		limit := redis_rate.Limit{
			Rate:   m.config.Security.RateLimitRPS,
			Burst:  m.config.Security.RateLimitBurst,
			Period: time.Second,
		}

		result, err := m.limiter.Allow(r.Context(), "oauth:ratelimit:"+clientIP, limit)
		if err != nil {
			m.logger.WithError(err).Error("Failed to check rate limit")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-Ratelimit-Limit", strconv.Itoa(result.Limit.Burst))
		w.Header().Set("X-Ratelimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(result.ResetAfter).Unix(), 10))

		if result.Allowed == 0 {
			m.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      r.URL.Path,
				"method":    r.Method,
			}).Warn("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORS handles cross-origin headers based on the security configuration.
func (m *Stack) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.setCORSHeaders(w, r)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Stack) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	if origin != "" && m.isOriginAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else if len(m.config.Security.AllowedOrigins) == 1 && m.config.Security.AllowedOrigins[0] == "*" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	if len(m.config.Security.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(m.config.Security.AllowedMethods, ", "))
	}
	if len(m.config.Security.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(m.config.Security.AllowedHeaders, ", "))
	}
	if len(m.config.Security.ExposedHeaders) > 0 {
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(m.config.Security.ExposedHeaders, ", "))
	}
	if m.config.Security.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if m.config.Security.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(m.config.Security.MaxAge))
	}
}

// SecurityHeaders adds standard security headers to every response.
func (m *Stack) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Recovery turns handler panics into a logged server_error response.
func (m *Stack) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithCorrelationID(r.Context(), m.logger).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  err,
				}).Error("Panic recovered")

				w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(
					`{"error": "server_error", "error_description": "An unexpected error occurred"}`,
				))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ContentType rejects POST bodies that are neither form-encoded nor JSON.
func (m *Stack) ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength > 0 {
			contentType := r.Header.Get(constants.HeaderContentType)

			isForm := strings.Contains(contentType, constants.ContentTypeFormURLEncoded)
			isJSON := strings.Contains(contentType, constants.ContentTypeJSON)
			if !isForm && !isJSON {
				w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
				w.WriteHeader(http.StatusUnsupportedMediaType)
				body := `{"error": "invalid_request", "error_description": ` +
					`"Content-Type must be application/x-www-form-urlencoded or application/json"}`
				_, _ = w.Write([]byte(body))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter

	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP, honoring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return strings.Split(r.RemoteAddr, ":")[0]
}

func (m *Stack) isTrustedProxy(ip string) bool {
	for _, trusted := range m.config.Security.TrustedProxies {
		if ip == trusted {
			return true
		}
	}
	return false
}

func (m *Stack) isOriginAllowed(origin string) bool {
	for _, allowed := range m.config.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
