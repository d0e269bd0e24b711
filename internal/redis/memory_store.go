// Package redis provides the storage layer for the OAuth2 token engine.
// This file implements an in-memory store satisfying the same Store
// interface as the Redis client, used for local development and tests.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/models"
)

// CleanupInterval is the interval between expired item sweeps.
const CleanupInterval = 5 * time.Minute

// expiringItem wraps data with a storage-level expiration time.
type expiringItem[T any] struct {
	Data      T
	ExpiresAt time.Time
}

func (e *expiringItem[T]) isExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// MemoryStore is an in-memory implementation of Store. Consume
// operations perform lookup and delete under a single write lock, giving
// the same exactly-once guarantee as the Redis GETDEL path.
type MemoryStore struct {
	clients       map[string]*models.Client
	authCodes     map[string]*expiringItem[*models.AuthorizationCode]
	accessTokens  map[string]*expiringItem[*models.AccessToken]
	refreshTokens map[string]*expiringItem[*models.RefreshToken]
	users         map[string]*models.User
	logger        *logrus.Logger
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// NewMemoryStore creates an in-memory store with a background sweep of
// expired entries.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	store := &MemoryStore{
		clients:       make(map[string]*models.Client),
		authCodes:     make(map[string]*expiringItem[*models.AuthorizationCode]),
		accessTokens:  make(map[string]*expiringItem[*models.AccessToken]),
		refreshTokens: make(map[string]*expiringItem[*models.RefreshToken]),
		users:         make(map[string]*models.User),
		logger:        logger,
		cleanupTicker: time.NewTicker(CleanupInterval),
		stopCleanup:   make(chan struct{}),
	}

	go store.cleanupLoop()

	logger.Info("In-memory store initialized")
	return store
}

func (m *MemoryStore) cleanupLoop() {
	defer m.cleanupTicker.Stop()

	for {
		select {
		case <-m.cleanupTicker.C:
			m.sweepExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *MemoryStore) sweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expired := 0

	for key, item := range m.authCodes {
		if now.After(item.ExpiresAt) {
			delete(m.authCodes, key)
			expired++
		}
	}
	for key, item := range m.accessTokens {
		if now.After(item.ExpiresAt) {
			delete(m.accessTokens, key)
			expired++
		}
	}
	for key, item := range m.refreshTokens {
		if now.After(item.ExpiresAt) {
			delete(m.refreshTokens, key)
			expired++
		}
	}

	if expired > 0 {
		m.logger.WithField("expired_items", expired).Debug("Swept expired items from memory store")
	}
}

// Close stops the cleanup goroutine.
func (m *MemoryStore) Close() error {
	close(m.stopCleanup)
	m.logger.Info("Memory store closed")
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// StoreClient stores a client registration without expiration.
func (m *MemoryStore) StoreClient(_ context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[client.ID] = client
	m.logger.WithField("client_id", client.ID).Debug("Client stored in memory")
	return nil
}

// GetClient retrieves a client by ID.
func (m *MemoryStore) GetClient(_ context.Context, clientID string) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil, ErrNotFound
	}
	return client, nil
}

// DeleteClient removes a client registration.
func (m *MemoryStore) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.clients, clientID)
	m.logger.WithField("client_id", clientID).Debug("Client deleted from memory")
	return nil
}

// ListClients returns all registered clients.
func (m *MemoryStore) ListClients(_ context.Context) ([]*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*models.Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	return clients, nil
}

// StoreAuthorizationCode stores an authorization code with TTL.
func (m *MemoryStore) StoreAuthorizationCode(
	_ context.Context,
	code *models.AuthorizationCode,
	ttl time.Duration,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.authCodes[code.Code] = &expiringItem[*models.AuthorizationCode]{
		Data:      code,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("code", maskToken(code.Code)).Debug("Authorization code stored in memory")
	return nil
}

// ConsumeAuthorizationCode looks up and deletes a code under one write
// lock. The second of two concurrent consumers gets ErrNotFound.
func (m *MemoryStore) ConsumeAuthorizationCode(_ context.Context, code string) (*models.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.authCodes[code]
	if !exists {
		return nil, ErrNotFound
	}
	delete(m.authCodes, code)

	m.logger.WithField("code", maskToken(code)).Debug("Authorization code consumed from memory")
	return item.Data, nil
}

// StoreAccessToken stores an access token with TTL.
func (m *MemoryStore) StoreAccessToken(_ context.Context, token *models.AccessToken, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessTokens[token.Token] = &expiringItem[*models.AccessToken]{
		Data:      token,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("token", maskToken(token.Token)).Debug("Access token stored in memory")
	return nil
}

// GetAccessToken retrieves an access token non-destructively.
func (m *MemoryStore) GetAccessToken(_ context.Context, token string) (*models.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.accessTokens[token]
	if !exists || item.isExpired() {
		return nil, ErrNotFound
	}
	return item.Data, nil
}

// DeleteAccessToken removes an access token and returns the deleted
// record.
func (m *MemoryStore) DeleteAccessToken(_ context.Context, token string) (*models.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.accessTokens[token]
	if !exists {
		return nil, ErrNotFound
	}
	delete(m.accessTokens, token)

	m.logger.WithField("token", maskToken(token)).Debug("Access token deleted from memory")
	return item.Data, nil
}

// StoreRefreshToken stores a refresh token with TTL.
func (m *MemoryStore) StoreRefreshToken(_ context.Context, token *models.RefreshToken, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshTokens[token.Token] = &expiringItem[*models.RefreshToken]{
		Data:      token,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.logger.WithField("token", maskToken(token.Token)).Debug("Refresh token stored in memory")
	return nil
}

// GetRefreshToken retrieves a refresh token non-destructively.
func (m *MemoryStore) GetRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.refreshTokens[token]
	if !exists || item.isExpired() {
		return nil, ErrNotFound
	}
	return item.Data, nil
}

// ConsumeRefreshToken looks up and deletes a refresh token under one
// write lock, so concurrent rotations of the same token yield exactly
// one new pair.
func (m *MemoryStore) ConsumeRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.refreshTokens[token]
	if !exists {
		return nil, ErrNotFound
	}
	delete(m.refreshTokens, token)

	m.logger.WithField("token", maskToken(token)).Debug("Refresh token consumed from memory")
	return item.Data, nil
}

// DeleteRefreshToken removes a refresh token.
func (m *MemoryStore) DeleteRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.refreshTokens, token)
	m.logger.WithField("token", maskToken(token)).Debug("Refresh token deleted from memory")
	return nil
}

// StoreUser stores a resource owner record without expiration.
func (m *MemoryStore) StoreUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[user.Username] = user
	m.logger.WithField("username", user.Username).Debug("User stored in memory")
	return nil
}

// GetUser retrieves a resource owner by username.
func (m *MemoryStore) GetUser(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[username]
	if !exists {
		return nil, ErrNotFound
	}
	return user, nil
}

// DeleteUser removes a resource owner record.
func (m *MemoryStore) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.users, username)
	m.logger.WithField("username", username).Debug("User deleted from memory")
	return nil
}
