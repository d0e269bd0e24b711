// Package redis provides the storage layer for the OAuth2 token engine.
// It defines the Store interface consumed by the auth service and a Redis
// implementation backed by go-redis with connection pooling, automatic
// TTL handling, and structured logging.
//
// Redis keys are organized with prefixes to avoid collisions:
//   - oauth:client:{id} - client registrations
//   - oauth:code:{code} - authorization codes with TTL
//   - oauth:access:{token} - access tokens with TTL
//   - oauth:refresh:{token} - refresh tokens with TTL
//   - oauth:user:{username} - resource owner records
//
// Authorization codes and refresh tokens are consumed with GETDEL, so
// lookup and deletion happen as one atomic server-side operation: two
// concurrent consumers of the same value see exactly one hit.
// Token values are masked in logs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/models"
)

const (
	// MinTokenLengthForMasking is the minimum token length before masking
	// keeps any characters visible.
	MinTokenLengthForMasking = 8

	// ScanBatchSize bounds SCAN page sizes when listing keys.
	ScanBatchSize = 100
)

// ErrNotFound is returned when a requested key does not exist. Callers
// check it with errors.Is to distinguish an expected miss from an
// infrastructure failure.
var ErrNotFound = errors.New("not found")

// Store is the storage contract for the token engine. All methods are
// context-aware; implementations must be safe for concurrent use.
//
// ConsumeAuthorizationCode and ConsumeRefreshToken are atomic
// lookup-and-delete operations: of two concurrent calls with the same
// value, exactly one receives the record and the other ErrNotFound.
type Store interface {
	// Close releases the underlying connections.
	Close() error

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// StoreClient persists a client registration without TTL.
	StoreClient(ctx context.Context, client *models.Client) error

	// GetClient retrieves a client by ID, ErrNotFound when absent.
	GetClient(ctx context.Context, clientID string) (*models.Client, error)

	// DeleteClient removes a client registration. Idempotent.
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients returns all registered clients.
	ListClients(ctx context.Context) ([]*models.Client, error)

	// StoreAuthorizationCode persists a code with TTL.
	StoreAuthorizationCode(ctx context.Context, code *models.AuthorizationCode, ttl time.Duration) error

	// ConsumeAuthorizationCode atomically looks up and deletes a code.
	// This is the sole read path for codes; there is no peek.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error)

	// StoreAccessToken persists an access token with TTL.
	StoreAccessToken(ctx context.Context, token *models.AccessToken, ttl time.Duration) error

	// GetAccessToken retrieves an access token non-destructively, for
	// introspection. ErrNotFound when absent.
	GetAccessToken(ctx context.Context, token string) (*models.AccessToken, error)

	// DeleteAccessToken removes an access token and returns the deleted
	// record, ErrNotFound when absent.
	DeleteAccessToken(ctx context.Context, token string) (*models.AccessToken, error)

	// StoreRefreshToken persists a refresh token with TTL.
	StoreRefreshToken(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error

	// GetRefreshToken retrieves a refresh token non-destructively.
	GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// ConsumeRefreshToken atomically looks up and deletes a refresh
	// token for rotation.
	ConsumeRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteRefreshToken removes a refresh token. Idempotent.
	DeleteRefreshToken(ctx context.Context, token string) error

	// StoreUser persists a resource owner record without TTL.
	StoreUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a resource owner by username.
	GetUser(ctx context.Context, username string) (*models.User, error)

	// DeleteUser removes a resource owner record. Idempotent.
	DeleteUser(ctx context.Context, username string) error
}

// Client implements Store on a go-redis connection pool.
//
// Thread safety: all methods are safe for concurrent use.
type Client struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// NewClient connects to Redis with the provided configuration and
// verifies connectivity with a ping before returning.
func NewClient(cfg *config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConn
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := &Client{
		rdb:    redis.NewClient(opts),
		logger: logger,
	}

	if pingErr := client.Ping(context.Background()); pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	logger.Info("Connected to Redis successfully")
	return client, nil
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close Redis connection")
		return err
	}
	c.logger.Info("Redis connection closed")
	return nil
}

// Ping sends a PING to the server. Used by health checks.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Underlying returns the go-redis client for integrations such as
// redis_rate.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// StoreClient persists a client registration under oauth:client:{id}.
// The storage record includes the secret hash, which the Client JSON
// shape excludes.
func (c *Client) StoreClient(ctx context.Context, client *models.Client) error {
	data, err := json.Marshal(client.ToRecord())
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if setErr := c.rdb.Set(ctx, clientKey(client.ID), data, 0).Err(); setErr != nil {
		return fmt.Errorf("failed to store client: %w", setErr)
	}

	c.logger.WithField("client_id", client.ID).Debug("Client stored")
	return nil
}

// GetClient retrieves a client registration by ID.
func (c *Client) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	data, err := c.rdb.Get(ctx, clientKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var record models.ClientRecord
	if unmarshalErr := json.Unmarshal(data, &record); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", unmarshalErr)
	}
	return record.ToClient(), nil
}

// DeleteClient removes a client registration.
func (c *Client) DeleteClient(ctx context.Context, clientID string) error {
	if err := c.rdb.Del(ctx, clientKey(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	c.logger.WithField("client_id", clientID).Debug("Client deleted")
	return nil
}

// ListClients scans the client keyspace and returns all registrations.
func (c *Client) ListClients(ctx context.Context) ([]*models.Client, error) {
	var clients []*models.Client
	var cursor uint64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, clientKey("*"), ScanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan clients: %w", err)
		}

		for _, key := range keys {
			data, getErr := c.rdb.Get(ctx, key).Bytes()
			if getErr != nil {
				// Key expired or vanished between SCAN and GET.
				continue
			}
			var record models.ClientRecord
			if unmarshalErr := json.Unmarshal(data, &record); unmarshalErr != nil {
				c.logger.WithError(unmarshalErr).WithField("key", key).Warn("Skipping unreadable client record")
				continue
			}
			clients = append(clients, record.ToClient())
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return clients, nil
}

// StoreAuthorizationCode persists an authorization code under
// oauth:code:{code}. The TTL doubles as a storage-level expiry backstop;
// the engine still checks the record's own expiry at exchange time.
func (c *Client) StoreAuthorizationCode(
	ctx context.Context,
	code *models.AuthorizationCode,
	ttl time.Duration,
) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	if setErr := c.rdb.Set(ctx, authCodeKey(code.Code), data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store authorization code: %w", setErr)
	}

	c.logger.WithField("code", maskToken(code.Code)).Debug("Authorization code stored")
	return nil
}

// ConsumeAuthorizationCode atomically retrieves and deletes a code using
// GETDEL. Of two concurrent consumers exactly one receives the record;
// the other gets ErrNotFound. A consumed code is gone regardless of
// whether the subsequent exchange validation succeeds.
func (c *Client) ConsumeAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	data, err := c.rdb.GetDel(ctx, authCodeKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	var authCode models.AuthorizationCode
	if unmarshalErr := json.Unmarshal(data, &authCode); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", unmarshalErr)
	}

	c.logger.WithField("code", maskToken(code)).Debug("Authorization code consumed")
	return &authCode, nil
}

// StoreAccessToken persists an access token under oauth:access:{token}.
func (c *Client) StoreAccessToken(ctx context.Context, token *models.AccessToken, ttl time.Duration) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, accessTokenKey(token.Token), data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store access token: %w", setErr)
	}

	c.logger.WithField("token", maskToken(token.Token)).Debug("Access token stored")
	return nil
}

// GetAccessToken retrieves an access token non-destructively.
func (c *Client) GetAccessToken(ctx context.Context, token string) (*models.AccessToken, error) {
	data, err := c.rdb.Get(ctx, accessTokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	var accessToken models.AccessToken
	if unmarshalErr := json.Unmarshal(data, &accessToken); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", unmarshalErr)
	}
	return &accessToken, nil
}

// DeleteAccessToken removes an access token with GETDEL and returns the
// deleted record so revocation can report what was revoked.
func (c *Client) DeleteAccessToken(ctx context.Context, token string) (*models.AccessToken, error) {
	data, err := c.rdb.GetDel(ctx, accessTokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete access token: %w", err)
	}

	var accessToken models.AccessToken
	if unmarshalErr := json.Unmarshal(data, &accessToken); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", unmarshalErr)
	}

	c.logger.WithField("token", maskToken(token)).Debug("Access token deleted")
	return &accessToken, nil
}

// StoreRefreshToken persists a refresh token under oauth:refresh:{token}.
func (c *Client) StoreRefreshToken(ctx context.Context, token *models.RefreshToken, ttl time.Duration) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if setErr := c.rdb.Set(ctx, refreshTokenKey(token.Token), data, ttl).Err(); setErr != nil {
		return fmt.Errorf("failed to store refresh token: %w", setErr)
	}

	c.logger.WithField("token", maskToken(token.Token)).Debug("Refresh token stored")
	return nil
}

// GetRefreshToken retrieves a refresh token non-destructively.
func (c *Client) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	data, err := c.rdb.Get(ctx, refreshTokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var refreshToken models.RefreshToken
	if unmarshalErr := json.Unmarshal(data, &refreshToken); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", unmarshalErr)
	}
	return &refreshToken, nil
}

// ConsumeRefreshToken atomically retrieves and deletes a refresh token
// using GETDEL. Concurrent rotations of the same token yield exactly one
// new pair.
func (c *Client) ConsumeRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	data, err := c.rdb.GetDel(ctx, refreshTokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	var refreshToken models.RefreshToken
	if unmarshalErr := json.Unmarshal(data, &refreshToken); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", unmarshalErr)
	}

	c.logger.WithField("token", maskToken(token)).Debug("Refresh token consumed")
	return &refreshToken, nil
}

// DeleteRefreshToken removes a refresh token.
func (c *Client) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := c.rdb.Del(ctx, refreshTokenKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	c.logger.WithField("token", maskToken(token)).Debug("Refresh token deleted")
	return nil
}

// StoreUser persists a resource owner record under oauth:user:{username}.
func (c *Client) StoreUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if setErr := c.rdb.Set(ctx, userKey(user.Username), data, 0).Err(); setErr != nil {
		return fmt.Errorf("failed to store user: %w", setErr)
	}

	c.logger.WithField("username", user.Username).Debug("User stored")
	return nil
}

// GetUser retrieves a resource owner by username.
func (c *Client) GetUser(ctx context.Context, username string) (*models.User, error) {
	data, err := c.rdb.Get(ctx, userKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if unmarshalErr := json.Unmarshal(data, &user); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", unmarshalErr)
	}
	return &user, nil
}

// DeleteUser removes a resource owner record.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	if err := c.rdb.Del(ctx, userKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	c.logger.WithField("username", username).Debug("User deleted")
	return nil
}

func clientKey(id string) string      { return "oauth:client:" + id }
func authCodeKey(code string) string  { return "oauth:code:" + code }
func accessTokenKey(t string) string  { return "oauth:access:" + t }
func refreshTokenKey(t string) string { return "oauth:refresh:" + t }
func userKey(username string) string  { return "oauth:user:" + username }

// maskToken hides the middle of a token value for logging. Tokens at or
// below MinTokenLengthForMasking are fully masked.
func maskToken(token string) string {
	if len(token) <= MinTokenLengthForMasking {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
