// Package client is the Go SDK for services that call TaskForge APIs
// with tokens issued by the token service. It provides a base HTTP
// client, a client-credentials token manager with caching, and an
// authenticated client that injects bearer tokens.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// BaseClient provides core HTTP functionality: JSON marshaling, error
// parsing and request logging.
type BaseClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// NewBaseClient creates a BaseClient for the service at baseURL.
func NewBaseClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *BaseClient {
	return &BaseClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// Do executes an HTTP request against path relative to the base URL.
// body, when non-nil, is JSON-encoded. The caller closes the response
// body.
func (c *BaseClient) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
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

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("Sending HTTP request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"url":    url,
			"error":  err,
		}).Error("HTTP request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
		"status": resp.StatusCode,
	}).Debug("Received HTTP response")

	return resp, nil
}

// BaseURL returns the configured base URL.
func (c *BaseClient) BaseURL() string {
	return c.baseURL
}

// ParseErrorResponse reads an error response body into an error carrying
// the OAuth2 error code and description when present.
func (c *BaseClient) ParseErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()

	var errResp struct {
		Error       string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("HTTP %d: failed to parse error response", resp.StatusCode)
	}

	if errResp.Description != "" {
		return fmt.Errorf("HTTP %d: %s: %s", resp.StatusCode, errResp.Error, errResp.Description)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errResp.Error)
}
