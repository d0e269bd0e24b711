package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// tokenExpiryBuffer is subtracted from the reported lifetime so a token
// is refreshed before it actually expires mid-request.
const tokenExpiryBuffer = 5 * time.Minute

// TokenManager obtains and caches access tokens via the client
// credentials grant. Safe for concurrent use.
type TokenManager interface {
	// GetToken returns a valid access token, requesting a new one when
	// the cached token is near expiry.
	GetToken(ctx context.Context) (string, error)
	// InvalidateToken discards the cached token so the next GetToken
	// call fetches a fresh one.
	InvalidateToken()
}

type tokenManager struct {
	mu           sync.RWMutex
	clientID     string
	clientSecret string
	scope        string
	tokenURL     string
	httpClient   *http.Client
	logger       *logrus.Logger

	accessToken string
	expiresAt   time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// NewTokenManager creates a TokenManager against the given token
// endpoint. scope may be empty, in which case the server grants the
// client's full approved set.
func NewTokenManager(clientID, clientSecret, scope, tokenURL string, logger *logrus.Logger) TokenManager {
	const requestTimeout = 10 * time.Second
	return &tokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: requestTimeout},
		logger:       logger,
	}
}

// GetToken returns the cached token while it is still fresh, otherwise
// requests a new one. A double check under the write lock keeps
// concurrent callers from issuing redundant token requests.
func (t *tokenManager) GetToken(ctx context.Context) (string, error) {
	t.mu.RLock()
	if t.accessToken != "" && time.Now().Before(t.expiresAt) {
		token := t.accessToken
		t.mu.RUnlock()
		return token, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && time.Now().Before(t.expiresAt) {
		return t.accessToken, nil
	}

	return t.requestToken(ctx)
}

// InvalidateToken discards the cached token.
func (t *tokenManager) InvalidateToken() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accessToken = ""
	t.expiresAt = time.Time{}

	t.logger.Debug("Token invalidated, will refresh on next request")
}

// requestToken performs the client credentials exchange. Caller holds
// the write lock.
func (t *tokenManager) requestToken(ctx context.Context) (string, error) {
	t.logger.WithFields(logrus.Fields{
		"client_id": t.clientID,
		"token_url": t.tokenURL,
	}).Debug("Requesting access token")

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", t.clientID)
	data.Set("client_secret", t.clientSecret)
	if t.scope != "" {
		data.Set("scope", t.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil {
		return "", fmt.Errorf("failed to decode token response: %w", decodeErr)
	}

	lifetime := time.Duration(tokenResp.ExpiresIn) * time.Second
	if lifetime > tokenExpiryBuffer {
		lifetime -= tokenExpiryBuffer
	}

	t.accessToken = tokenResp.AccessToken
	t.expiresAt = time.Now().Add(lifetime)

	t.logger.WithFields(logrus.Fields{
		"expires_in": tokenResp.ExpiresIn,
		"scope":      tokenResp.Scope,
	}).Debug("Access token obtained")

	return t.accessToken, nil
}
