package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/handlers"
	"github.com/taskforge-app/token-service/internal/redis"
)

// failingStore wraps a working store with a broken Ping.
type failingStore struct {
	redis.Store
}

func (failingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newHealthHandler(t *testing.T, store redis.Store) *handlers.HealthHandler {
	t.Helper()

	cfg := &config.Config{
		Token: config.TokenConfig{
			AuthorizationCodeTTL: 5 * time.Minute,
			AccessTokenTTL:       time.Hour,
			RefreshTokenTTL:      720 * time.Hour,
		},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	return handlers.NewHealthHandler(cfg, store, nil, log)
}

func newMemoryStore(t *testing.T) *redis.MemoryStore {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := redis.NewMemoryStore(log)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestHealthEndpoint(t *testing.T) {
	handler := newHealthHandler(t, newMemoryStore(t))

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, handlers.StatusHealthy, resp.Status)
	assert.Equal(t, handlers.StatusHealthy, resp.Components["store"].Status)
	assert.Equal(t, handlers.StatusHealthy, resp.Components["database"].Status)
	assert.Contains(t, resp.Components["database"].Message, "not configured")
	assert.Equal(t, handlers.StatusHealthy, resp.Components["configuration"].Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestHealthEndpointStoreDown(t *testing.T) {
	handler := newHealthHandler(t, failingStore{Store: newMemoryStore(t)})

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, handlers.StatusUnhealthy, resp.Status)
	assert.Equal(t, handlers.StatusUnhealthy, resp.Components["store"].Status)
}

func TestHealthEndpointConfigurationDegraded(t *testing.T) {
	handler := newHealthHandler(t, newMemoryStore(t))

	// Overwrite with a config the validator would flag as suspicious.
	cfg := &config.Config{
		Token: config.TokenConfig{
			AuthorizationCodeTTL: 30 * time.Minute,
			AccessTokenTTL:       time.Hour,
			RefreshTokenTTL:      720 * time.Hour,
		},
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	handler = handlers.NewHealthHandler(cfg, newMemoryStore(t), nil, log)

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code, "degraded still serves traffic")

	var resp handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, handlers.StatusDegraded, resp.Status)
	assert.Equal(t, handlers.StatusDegraded, resp.Components["configuration"].Status)
	assert.Contains(t, resp.Components["configuration"].Message, "authorization code TTL")
}

func TestLivenessEndpoint(t *testing.T) {
	handler := newHealthHandler(t, newMemoryStore(t))

	rec := httptest.NewRecorder()
	handler.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alive", resp["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Run("ready_when_store_is_up", func(t *testing.T) {
		handler := newHealthHandler(t, newMemoryStore(t))

		rec := httptest.NewRecorder()
		handler.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp handlers.ReadinessResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Ready)
	})

	t.Run("not_ready_when_store_is_down", func(t *testing.T) {
		handler := newHealthHandler(t, failingStore{Store: newMemoryStore(t)})

		rec := httptest.NewRecorder()
		handler.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp handlers.ReadinessResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Ready)
	})
}
