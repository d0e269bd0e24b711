package integration_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/models"
	redisClient "github.com/taskforge-app/token-service/internal/redis"
	"github.com/taskforge-app/token-service/pkg/logger"
)

const testClientID = "integration-client"

func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	defer func() {
		if err = redisContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}()

	connectionString, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		URL:          connectionString,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConn:  5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	log := logger.New("info", "json", "stdout")
	store, err := redisClient.NewClient(cfg, log)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	t.Run("ClientOperations", func(t *testing.T) {
		testClientOperations(ctx, t, store)
	})

	t.Run("AuthorizationCodeConsume", func(t *testing.T) {
		testAuthorizationCodeConsume(ctx, t, store)
	})

	t.Run("ConcurrentConsumeExactlyOnce", func(t *testing.T) {
		testConcurrentConsumeExactlyOnce(ctx, t, store)
	})

	t.Run("AccessTokenOperations", func(t *testing.T) {
		testAccessTokenOperations(ctx, t, store)
	})

	t.Run("RefreshTokenOperations", func(t *testing.T) {
		testRefreshTokenOperations(ctx, t, store)
	})

	t.Run("TokenTTLExpiry", func(t *testing.T) {
		testTokenTTLExpiry(ctx, t, store)
	})

	t.Run("UserOperations", func(t *testing.T) {
		testUserOperations(ctx, t, store)
	})
}

func testClientOperations(ctx context.Context, t *testing.T, store redisClient.Store) {
	client := models.NewClient(
		"Integration Test Client",
		[]string{"https://app.taskforge.dev/callback"},
		[]string{"read", "write"},
		[]string{"authorization_code", "refresh_token"},
		time.Now().UTC(),
	)
	client.SecretHash = "$2a$12$integrationtesthash"

	require.NoError(t, store.StoreClient(ctx, client))

	retrieved, err := store.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, client.ID, retrieved.ID)
	assert.Equal(t, client.Name, retrieved.Name)
	assert.Equal(t, client.RedirectURIs, retrieved.RedirectURIs)
	assert.Equal(t, client.Scopes, retrieved.Scopes)
	assert.Equal(t, client.GrantTypes, retrieved.GrantTypes)
	assert.Equal(t, client.SecretHash, retrieved.SecretHash, "the storage record keeps the hash")

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, clients)

	require.NoError(t, store.DeleteClient(ctx, client.ID))

	_, err = store.GetClient(ctx, client.ID)
	assert.ErrorIs(t, err, redisClient.ErrNotFound)
}

func testAuthorizationCodeConsume(ctx context.Context, t *testing.T, store redisClient.Store) {
	authCode := models.NewAuthorizationCode(
		"integration-code-1",
		&models.AuthorizationRequest{
			ClientID:    testClientID,
			Subject:     "user-42",
			Scopes:      []string{"read", "write"},
			RedirectURI: "https://app.taskforge.dev/callback",
			State:       "xyz",
		},
		5*time.Minute,
		time.Now().UTC(),
	)

	require.NoError(t, store.StoreAuthorizationCode(ctx, authCode, 5*time.Minute))

	consumed, err := store.ConsumeAuthorizationCode(ctx, authCode.Code)
	require.NoError(t, err)
	assert.Equal(t, authCode.ClientID, consumed.ClientID)
	assert.Equal(t, authCode.Subject, consumed.Subject)
	assert.Equal(t, authCode.Scopes, consumed.Scopes)
	assert.Equal(t, authCode.RedirectURI, consumed.RedirectURI)

	_, err = store.ConsumeAuthorizationCode(ctx, authCode.Code)
	assert.ErrorIs(t, err, redisClient.ErrNotFound, "consume destroys the code")
}

func testConcurrentConsumeExactlyOnce(ctx context.Context, t *testing.T, store redisClient.Store) {
	const codes = 10
	const consumersPerCode = 8

	for i := 0; i < codes; i++ {
		authCode := models.NewAuthorizationCode(
			fmt.Sprintf("concurrent-code-%d", i),
			&models.AuthorizationRequest{ClientID: testClientID},
			5*time.Minute,
			time.Now().UTC(),
		)
		require.NoError(t, store.StoreAuthorizationCode(ctx, authCode, 5*time.Minute))
	}

	var wg sync.WaitGroup
	results := make(chan error, codes*consumersPerCode)

	for i := 0; i < codes; i++ {
		code := fmt.Sprintf("concurrent-code-%d", i)
		for j := 0; j < consumersPerCode; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ConsumeAuthorizationCode(ctx, code)
				results <- err
			}()
		}
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, redisClient.ErrNotFound)
		}
	}
	assert.Equal(t, codes, successes, "GETDEL must hand each code to exactly one consumer")
}

func testAccessTokenOperations(ctx context.Context, t *testing.T, store redisClient.Store) {
	accessToken := &models.AccessToken{
		Token:        "integration-access-token",
		ClientID:     testClientID,
		Subject:      "user-42",
		Scopes:       []string{"read"},
		GrantType:    models.GrantTypeAuthorizationCode,
		TokenType:    models.TokenTypeBearer,
		RefreshToken: "integration-refresh-token",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
		CreatedAt:    time.Now().UTC(),
		AdditionalInfo: map[string]string{
			"client_name": "Integration Test Client",
		},
	}

	require.NoError(t, store.StoreAccessToken(ctx, accessToken, time.Hour))

	retrieved, err := store.GetAccessToken(ctx, accessToken.Token)
	require.NoError(t, err)
	assert.Equal(t, accessToken.ClientID, retrieved.ClientID)
	assert.Equal(t, accessToken.Subject, retrieved.Subject)
	assert.Equal(t, accessToken.RefreshToken, retrieved.RefreshToken)
	assert.Equal(t, accessToken.AdditionalInfo, retrieved.AdditionalInfo)

	deleted, err := store.DeleteAccessToken(ctx, accessToken.Token)
	require.NoError(t, err)
	assert.Equal(t, accessToken.RefreshToken, deleted.RefreshToken, "delete returns the record for cascade revocation")

	_, err = store.GetAccessToken(ctx, accessToken.Token)
	assert.ErrorIs(t, err, redisClient.ErrNotFound)
}

func testRefreshTokenOperations(ctx context.Context, t *testing.T, store redisClient.Store) {
	refreshToken := &models.RefreshToken{
		Token:       "integration-refresh-token",
		AccessToken: "integration-access-token",
		ClientID:    testClientID,
		Subject:     "user-42",
		Scopes:      []string{"read"},
		GrantType:   models.GrantTypeAuthorizationCode,
		ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
		CreatedAt:   time.Now().UTC(),
	}

	require.NoError(t, store.StoreRefreshToken(ctx, refreshToken, 24*time.Hour))

	retrieved, err := store.GetRefreshToken(ctx, refreshToken.Token)
	require.NoError(t, err)
	assert.Equal(t, refreshToken.AccessToken, retrieved.AccessToken)
	assert.Equal(t, refreshToken.ClientID, retrieved.ClientID)

	consumed, err := store.ConsumeRefreshToken(ctx, refreshToken.Token)
	require.NoError(t, err)
	assert.Equal(t, refreshToken.Token, consumed.Token)

	_, err = store.ConsumeRefreshToken(ctx, refreshToken.Token)
	assert.ErrorIs(t, err, redisClient.ErrNotFound, "rotation destroys the token")
}

func testTokenTTLExpiry(ctx context.Context, t *testing.T, store redisClient.Store) {
	accessToken := &models.AccessToken{
		Token:     "integration-short-lived",
		ClientID:  testClientID,
		ExpiresAt: time.Now().UTC().Add(time.Second),
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, store.StoreAccessToken(ctx, accessToken, time.Second))

	_, err := store.GetAccessToken(ctx, accessToken.Token)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	_, err = store.GetAccessToken(ctx, accessToken.Token)
	assert.ErrorIs(t, err, redisClient.ErrNotFound, "Redis TTL reaps the key")
}

func testUserOperations(ctx context.Context, t *testing.T, store redisClient.Store) {
	user := &models.User{
		Subject:      "user-42",
		Username:     "alex",
		PasswordHash: "$2a$12$integrationtesthash",
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	require.NoError(t, store.StoreUser(ctx, user))

	retrieved, err := store.GetUser(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.Subject, retrieved.Subject)
	assert.True(t, retrieved.IsActive)

	require.NoError(t, store.DeleteUser(ctx, user.Username))

	_, err = store.GetUser(ctx, user.Username)
	assert.ErrorIs(t, err, redisClient.ErrNotFound)
}
