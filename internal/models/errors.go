package models

import (
	"fmt"
	"net/http"
)

// OAuth2Error is a structured OAuth2 error response as defined in
// RFC 6749 §5.2. It implements the error interface; handlers unwrap it
// with errors.As to pick the HTTP status and wire representation.
type OAuth2Error struct {
	// Code is the OAuth2 error code (e.g. "invalid_grant").
	Code string `json:"error"`
	// Description is the optional human-readable detail.
	Description string `json:"error_description,omitempty"`
	// State echoes the client-provided state parameter when the error is
	// produced during an authorization request.
	State string `json:"state,omitempty"`
	// StatusCode is the HTTP status to return. Excluded from JSON.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// WithState returns a copy of the error carrying the state echo, so the
// shared sentinel errors are never mutated.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	clone := *e
	clone.State = state
	return &clone
}

func newOAuth2Error(code, description string, status int) *OAuth2Error {
	return &OAuth2Error{Code: code, Description: description, StatusCode: status}
}

// NewInvalidRequest reports a malformed request: a required parameter is
// missing, repeated, or carries an invalid value. HTTP 400.
func NewInvalidRequest(description string) *OAuth2Error {
	return newOAuth2Error("invalid_request", description, http.StatusBadRequest)
}

// NewInvalidClient reports failed client authentication or a
// client/request mismatch. HTTP 401.
func NewInvalidClient(description string) *OAuth2Error {
	return newOAuth2Error("invalid_client", description, http.StatusUnauthorized)
}

// NewInvalidGrant reports an invalid, expired, consumed, or revoked
// authorization grant or refresh token, or bad resource-owner
// credentials. HTTP 400.
func NewInvalidGrant(description string) *OAuth2Error {
	return newOAuth2Error("invalid_grant", description, http.StatusBadRequest)
}

// NewRedirectMismatch reports a redirect URI that does not match the one
// bound at authorization time. RFC 6749 surfaces this as invalid_grant on
// the wire; the dedicated constructor keeps the failure reason visible in
// the description. HTTP 400.
func NewRedirectMismatch(description string) *OAuth2Error {
	return newOAuth2Error("invalid_grant", description, http.StatusBadRequest)
}

// NewInvalidScope reports a requested scope that exceeds the client's
// approval. HTTP 400.
func NewInvalidScope(description string) *OAuth2Error {
	return newOAuth2Error("invalid_scope", description, http.StatusBadRequest)
}

// NewUnsupportedGrantType reports a grant type with no registered
// strategy. HTTP 400.
func NewUnsupportedGrantType(description string) *OAuth2Error {
	return newOAuth2Error("unsupported_grant_type", description, http.StatusBadRequest)
}

// NewServerError reports an unexpected infrastructure failure without
// leaking internal detail. HTTP 500.
func NewServerError(description string) *OAuth2Error {
	return newOAuth2Error("server_error", description, http.StatusInternalServerError)
}

var (
	// ErrInvalidRequest is the bare invalid_request error. HTTP 400.
	ErrInvalidRequest = &OAuth2Error{
		Code:       "invalid_request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvalidClient is the bare invalid_client error. HTTP 401.
	ErrInvalidClient = &OAuth2Error{
		Code:       "invalid_client",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrInvalidGrant is the bare invalid_grant error. HTTP 400.
	ErrInvalidGrant = &OAuth2Error{
		Code:       "invalid_grant",
		StatusCode: http.StatusBadRequest,
	}

	// ErrUnauthorizedClient indicates the authenticated client is not
	// approved for the requested grant type. HTTP 401.
	ErrUnauthorizedClient = &OAuth2Error{
		Code:       "unauthorized_client",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrUnsupportedGrantType indicates the grant type has no registered
	// strategy. HTTP 400.
	ErrUnsupportedGrantType = &OAuth2Error{
		Code:       "unsupported_grant_type",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvalidScope indicates the requested scope exceeds the client's
	// approval. HTTP 400.
	ErrInvalidScope = &OAuth2Error{
		Code:       "invalid_scope",
		StatusCode: http.StatusBadRequest,
	}

	// ErrUnsupportedResponseType indicates the authorization endpoint does
	// not support the requested response type. HTTP 400.
	ErrUnsupportedResponseType = &OAuth2Error{
		Code:       "unsupported_response_type",
		StatusCode: http.StatusBadRequest,
	}

	// ErrServerError is the bare server_error. HTTP 500.
	ErrServerError = &OAuth2Error{
		Code:       "server_error",
		StatusCode: http.StatusInternalServerError,
	}
)
