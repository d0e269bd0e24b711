package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// OAuth2Client wraps BaseClient with bearer token injection. A 401
// response invalidates the cached token and retries once with a fresh
// one, which covers server-side revocation.
type OAuth2Client struct {
	*BaseClient

	tokenManager TokenManager
}

// NewOAuth2Client creates an authenticated client over the given base
// client and token manager.
func NewOAuth2Client(baseClient *BaseClient, tokenManager TokenManager) *OAuth2Client {
	return &OAuth2Client{
		BaseClient:   baseClient,
		tokenManager: tokenManager,
	}
}

// DoWithAuth executes an HTTP request carrying a bearer token. The
// caller closes the response body.
func (c *OAuth2Client) DoWithAuth(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (*http.Response, error) {
	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	resp, err := c.doWithToken(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()

		c.logger.Debug("Received 401 Unauthorized, invalidating token and retrying")
		c.tokenManager.InvalidateToken()

		token, err = c.tokenManager.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh access token: %w", err)
		}

		resp, err = c.doWithToken(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func (c *OAuth2Client) doWithToken(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	token string,
) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("Sending authenticated HTTP request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"url":    url,
			"error":  err,
		}).Error("Authenticated HTTP request failed")
		return nil, fmt.Errorf("authenticated HTTP request failed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
		"status": resp.StatusCode,
	}).Debug("Received HTTP response for authenticated request")

	return resp, nil
}
