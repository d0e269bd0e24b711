package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-app/token-service/internal/client"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTokenServer fakes the token endpoint, counting requests and handing
// out sequential tokens.
func newTokenServer(t *testing.T, requests *atomic.Int64, expiresIn int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "ci-client", r.FormValue("client_id"))
		assert.Equal(t, "ci-secret", r.FormValue("client_secret"))

		n := requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('a'+n-1)),
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
			"scope":        r.FormValue("scope"),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenManagerCachesToken(t *testing.T) {
	var requests atomic.Int64
	server := newTokenServer(t, &requests, 3600)

	tm := client.NewTokenManager("ci-client", "ci-secret", "read", server.URL, quietLogger())
	ctx := context.Background()

	first, err := tm.GetToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := tm.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), requests.Load(), "fresh token must be served from cache")
}

func TestTokenManagerInvalidateForcesRefresh(t *testing.T) {
	var requests atomic.Int64
	server := newTokenServer(t, &requests, 3600)

	tm := client.NewTokenManager("ci-client", "ci-secret", "", server.URL, quietLogger())
	ctx := context.Background()

	first, err := tm.GetToken(ctx)
	require.NoError(t, err)

	tm.InvalidateToken()

	second, err := tm.GetToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), requests.Load())
}

func TestTokenManagerExpiredTokenRefreshes(t *testing.T) {
	var requests atomic.Int64
	// Zero lifetime: the cached token is stale by the next call.
	server := newTokenServer(t, &requests, 0)

	tm := client.NewTokenManager("ci-client", "ci-secret", "", server.URL, quietLogger())
	ctx := context.Background()

	_, err := tm.GetToken(ctx)
	require.NoError(t, err)
	_, err = tm.GetToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), requests.Load())
}

func TestTokenManagerConcurrentCallsSingleRequest(t *testing.T) {
	var requests atomic.Int64
	server := newTokenServer(t, &requests, 3600)

	tm := client.NewTokenManager("ci-client", "ci-secret", "read", server.URL, quietLogger())

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tm.GetToken(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), requests.Load(), "double-checked locking must collapse concurrent refreshes")
}

func TestTokenManagerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	tm := client.NewTokenManager("ci-client", "ci-secret", "", server.URL, quietLogger())

	_, err := tm.GetToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
