// Package models defines the core data structures for the OAuth2 token
// engine: clients, authorization requests and codes, access and refresh
// tokens, and the wire-level request/response shapes. All records support
// JSON marshaling for storage.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GrantType is the OAuth2 grant type of a token request.
type GrantType string

// ResponseType is the OAuth2 response type of an authorization request.
type ResponseType string

// TokenType is the type of an issued access token.
type TokenType string

const (
	// GrantTypeAuthorizationCode is the authorization code grant.
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	// GrantTypeRefreshToken is the refresh token grant.
	GrantTypeRefreshToken GrantType = "refresh_token"
	// GrantTypeClientCredentials is the client credentials grant.
	GrantTypeClientCredentials GrantType = "client_credentials"
	// GrantTypePassword is the resource owner password credentials grant.
	GrantTypePassword GrantType = "password"

	// ResponseTypeCode is the authorization code response type.
	ResponseTypeCode ResponseType = "code"

	// TokenTypeBearer is the Bearer token type.
	TokenTypeBearer TokenType = "Bearer"
)

// Client is a registered OAuth2 client. The stored secret is a bcrypt
// hash and is excluded from JSON responses.
type Client struct {
	// ID is the unique client identifier.
	ID string `json:"id"`
	// SecretHash is the bcrypt hash of the client secret (never serialized).
	SecretHash string `json:"-"`
	// Name is the human-readable client name.
	Name string `json:"name"`
	// RedirectURIs are the registered redirect URIs.
	RedirectURIs []string `json:"redirect_uris"`
	// Scopes are the scopes the client is approved for.
	Scopes []string `json:"scopes"`
	// GrantTypes are the grant types the client is approved for.
	GrantTypes []string `json:"grant_types"`
	// AccessTokenTTL overrides the configured access token lifetime when
	// non-zero.
	AccessTokenTTL time.Duration `json:"access_token_ttl,omitempty"`
	// RefreshTokenTTL overrides the configured refresh token lifetime when
	// non-zero.
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl,omitempty"`
	// CreatedAt is the registration timestamp.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last modification timestamp.
	UpdatedAt time.Time `json:"updated_at"`
	// IsActive marks whether the client may be used.
	IsActive bool `json:"is_active"`
}

// ClientRecord is the storage representation of a Client. Unlike Client
// it serializes the secret hash, so it must never appear in an HTTP
// response.
type ClientRecord struct {
	ID              string        `json:"id"`
	SecretHash      string        `json:"secret_hash"`
	Name            string        `json:"name"`
	RedirectURIs    []string      `json:"redirect_uris"`
	Scopes          []string      `json:"scopes"`
	GrantTypes      []string      `json:"grant_types"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl,omitempty"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	IsActive        bool          `json:"is_active"`
}

// ToClient converts a storage record back to a Client.
func (r *ClientRecord) ToClient() *Client {
	return &Client{
		ID:              r.ID,
		SecretHash:      r.SecretHash,
		Name:            r.Name,
		RedirectURIs:    r.RedirectURIs,
		Scopes:          r.Scopes,
		GrantTypes:      r.GrantTypes,
		AccessTokenTTL:  r.AccessTokenTTL,
		RefreshTokenTTL: r.RefreshTokenTTL,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		IsActive:        r.IsActive,
	}
}

// ToRecord converts a Client to its storage representation.
func (c *Client) ToRecord() *ClientRecord {
	return &ClientRecord{
		ID:              c.ID,
		SecretHash:      c.SecretHash,
		Name:            c.Name,
		RedirectURIs:    c.RedirectURIs,
		Scopes:          c.Scopes,
		GrantTypes:      c.GrantTypes,
		AccessTokenTTL:  c.AccessTokenTTL,
		RefreshTokenTTL: c.RefreshTokenTTL,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		IsActive:        c.IsActive,
	}
}

// NewClient creates an active client with a generated ID. The caller is
// responsible for hashing and setting the secret.
func NewClient(name string, redirectURIs, scopes, grantTypes []string, now time.Time) *Client {
	return &Client{
		ID:           uuid.New().String(),
		Name:         name,
		RedirectURIs: redirectURIs,
		Scopes:       scopes,
		GrantTypes:   grantTypes,
		CreatedAt:    now,
		UpdatedAt:    now,
		IsActive:     true,
	}
}

// HasScope reports whether the client is approved for the given scope.
func (c *Client) HasScope(scope string) bool {
	for _, approved := range c.Scopes {
		if approved == scope {
			return true
		}
	}
	return false
}

// HasGrantType reports whether the client is approved for the given
// grant type.
func (c *Client) HasGrantType(grantType GrantType) bool {
	for _, approved := range c.GrantTypes {
		if approved == string(grantType) {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs. Exact string comparison only; redirect
// binding must not normalize.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthorizationRequest describes a pending authorization attempt. It is
// built per HTTP request and discarded once a code (or error) has been
// produced; it is never persisted.
type AuthorizationRequest struct {
	// ClientID identifies the requesting client.
	ClientID string
	// Subject is the authenticated requester, empty until authentication
	// completes.
	Subject string
	// Scopes are the approved scopes. Once set they are exactly the set
	// bound to the issued code.
	Scopes []string
	// RedirectURI is the resolved redirect URI, possibly empty before
	// resolution.
	RedirectURI string
	// ResponseType is the requested response type.
	ResponseType ResponseType
	// State is the opaque client state echoed back verbatim.
	State string
}

// AuthorizationCode is a single-use code minted at authorization time and
// atomically consumed at exchange time.
type AuthorizationCode struct {
	// Code is the opaque code value.
	Code string `json:"code"`
	// ClientID is the client the code was issued to.
	ClientID string `json:"client_id"`
	// Subject is the requester the code authorizes, empty when unknown.
	Subject string `json:"subject,omitempty"`
	// RedirectURI is the redirect URI bound at authorization time.
	RedirectURI string `json:"redirect_uri,omitempty"`
	// Scopes are the approved scopes bound to the code.
	Scopes []string `json:"scopes"`
	// State is the client state from the authorization request.
	State string `json:"state,omitempty"`
	// ExpiresAt is the absolute expiry timestamp.
	ExpiresAt time.Time `json:"expires_at"`
	// CreatedAt is the issuance timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// NewAuthorizationCode mints a code bound to the request, expiring at
// now+ttl. The code value must come from the secret generator.
func NewAuthorizationCode(code string, req *AuthorizationRequest, ttl time.Duration, now time.Time) *AuthorizationCode {
	return &AuthorizationCode{
		Code:        code,
		ClientID:    req.ClientID,
		Subject:     req.Subject,
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scopes,
		State:       req.State,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// IsExpired reports whether the code has expired at the given instant.
func (ac *AuthorizationCode) IsExpired(now time.Time) bool {
	return now.After(ac.ExpiresAt)
}

// AccessToken is an opaque server-stored access token.
type AccessToken struct {
	// Token is the opaque token value.
	Token string `json:"token"`
	// ClientID is the client the token was issued to.
	ClientID string `json:"client_id"`
	// Subject is the resource owner, empty for client_credentials grants.
	Subject string `json:"subject,omitempty"`
	// Scopes are the granted scopes.
	Scopes []string `json:"scopes"`
	// GrantType is the grant that produced the token.
	GrantType GrantType `json:"grant_type"`
	// TokenType is the token type presented to clients.
	TokenType TokenType `json:"token_type"`
	// RefreshToken is the linked refresh token value, empty when none was
	// issued.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is the absolute expiry timestamp.
	ExpiresAt time.Time `json:"expires_at"`
	// CreatedAt is the issuance timestamp.
	CreatedAt time.Time `json:"created_at"`
	// AdditionalInfo carries protocol extension entries flattened into
	// introspection responses.
	AdditionalInfo map[string]string `json:"additional_info,omitempty"`
}

// IsExpired reports whether the token has expired at the given instant.
func (at *AccessToken) IsExpired(now time.Time) bool {
	return now.After(at.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime at the given instant, zero
// once expired. It never mutates the token.
func (at *AccessToken) ExpiresIn(now time.Time) time.Duration {
	if at.IsExpired(now) {
		return 0
	}
	return at.ExpiresAt.Sub(now)
}

// RefreshToken is an opaque token exchanged for a fresh access/refresh
// pair. Rotation destroys the old pair.
type RefreshToken struct {
	// Token is the opaque token value.
	Token string `json:"token"`
	// AccessToken is the access token this refresh token renews.
	AccessToken string `json:"access_token"`
	// ClientID is the client the token was issued to.
	ClientID string `json:"client_id"`
	// Subject is the resource owner, empty for client_credentials grants.
	Subject string `json:"subject,omitempty"`
	// Scopes are the scopes of the original grant; rotation may only
	// narrow them.
	Scopes []string `json:"scopes"`
	// GrantType is the grant that produced the original pair.
	GrantType GrantType `json:"grant_type"`
	// ExpiresAt is the absolute expiry timestamp.
	ExpiresAt time.Time `json:"expires_at"`
	// CreatedAt is the issuance timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the token has expired at the given instant.
func (rt *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(rt.ExpiresAt)
}

// User is a resource owner record used by the password grant.
type User struct {
	// Subject is the stable identity issued tokens are bound to.
	Subject string `json:"subject"`
	// Username is the login name.
	Username string `json:"username"`
	// PasswordHash is the bcrypt hash of the password.
	PasswordHash string `json:"password_hash"`
	// IsActive marks whether the account may authenticate.
	IsActive bool `json:"is_active"`
	// CreatedAt is the account creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// TokenRequest is a request to the token endpoint. Grant-specific fields
// are populated per grant type.
type TokenRequest struct {
	// GrantType selects the grant strategy.
	GrantType GrantType `json:"grant_type"`
	// Code is the authorization code (authorization_code grant).
	Code string `json:"code,omitempty"`
	// RedirectURI must match the URI bound at authorization time.
	RedirectURI string `json:"redirect_uri,omitempty"`
	// ClientID identifies the client.
	ClientID string `json:"client_id"`
	// ClientSecret authenticates the client.
	ClientSecret string `json:"client_secret,omitempty"`
	// RefreshToken is the token to rotate (refresh_token grant).
	RefreshToken string `json:"refresh_token,omitempty"`
	// Scope is the requested scope set, space-delimited.
	Scope string `json:"scope,omitempty"`
	// Username is the resource owner login (password grant).
	Username string `json:"username,omitempty"`
	// Password is the resource owner password (password grant).
	Password string `json:"password,omitempty"`
}

// RequestedScopes returns the parsed scope field.
func (r *TokenRequest) RequestedScopes() []string {
	return ParseScopes(r.Scope)
}

// TokenResponse is a successful token endpoint response per RFC 6749 §5.1.
type TokenResponse struct {
	// AccessToken is the issued access token value.
	AccessToken string `json:"access_token"`
	// TokenType is the issued token type.
	TokenType TokenType `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
	// RefreshToken is present when the client is approved for refresh.
	RefreshToken string `json:"refresh_token,omitempty"`
	// Scope is the granted scope set, space-delimited.
	Scope string `json:"scope,omitempty"`
}

// AuthorizeRequest is a request to the authorization endpoint.
type AuthorizeRequest struct {
	// ResponseType is the requested response type.
	ResponseType ResponseType `json:"response_type"`
	// ClientID identifies the client.
	ClientID string `json:"client_id"`
	// RedirectURI is the requested redirect URI, possibly empty.
	RedirectURI string `json:"redirect_uri,omitempty"`
	// Scope is the requested scope set, space-delimited.
	Scope string `json:"scope,omitempty"`
	// State is the opaque client state.
	State string `json:"state,omitempty"`
	// Subject is the authenticated requester identity.
	Subject string `json:"-"`
}

// AuthorizeResponse carries the issued authorization code and echoed
// state.
type AuthorizeResponse struct {
	// Code is the issued authorization code.
	Code string `json:"code"`
	// State echoes the request state.
	State string `json:"state,omitempty"`
	// RedirectURI is the resolved redirect URI the code is bound to.
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// IntrospectionRequest is a request to the introspection endpoint
// (RFC 7662).
type IntrospectionRequest struct {
	// Token is the token under introspection.
	Token string `json:"token"`
	// TokenTypeHint optionally hints at the token type.
	TokenTypeHint string `json:"token_type_hint,omitempty"`
	// ClientID authenticates the calling resource server.
	ClientID string `json:"client_id"`
	// ClientSecret authenticates the calling resource server.
	ClientSecret string `json:"client_secret,omitempty"`
}

// IntrospectionResponse is the claims view of a stored token (RFC 7662).
// Additional-information entries are flattened into the same JSON object.
type IntrospectionResponse struct {
	// Active reports whether the token is currently valid.
	Active bool `json:"active"`
	// ClientID is the owning client.
	ClientID string `json:"client_id,omitempty"`
	// Username is the resource owner identity, empty for
	// client_credentials tokens.
	Username string `json:"username,omitempty"`
	// Scope is the granted scope set, space-delimited.
	Scope string `json:"scope,omitempty"`
	// TokenType is the issued token type.
	TokenType TokenType `json:"token_type,omitempty"`
	// GrantType is the grant that produced the token.
	GrantType GrantType `json:"grant_type,omitempty"`
	// ExpiresAt is the expiry as epoch seconds.
	ExpiresAt int64 `json:"exp,omitempty"`
	// IssuedAt is the issuance time as epoch seconds.
	IssuedAt int64 `json:"iat,omitempty"`
	// Subject is the token subject.
	Subject string `json:"sub,omitempty"`
	// Audience is the intended audience.
	Audience []string `json:"aud,omitempty"`
	// Extra holds additional-information entries; flattened into the top
	// level JSON object on marshal.
	Extra map[string]string `json:"-"`
}

// MarshalJSON flattens Extra entries into the top-level object. Standard
// fields win on key collision.
func (r IntrospectionResponse) MarshalJSON() ([]byte, error) {
	type alias IntrospectionResponse
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	flat := make(map[string]interface{}, len(r.Extra)+8)
	for k, v := range r.Extra {
		flat[k] = v
	}
	var standard map[string]interface{}
	if err := json.Unmarshal(base, &standard); err != nil {
		return nil, err
	}
	for k, v := range standard {
		flat[k] = v
	}
	return json.Marshal(flat)
}

// RevocationRequest is a request to the revocation endpoint (RFC 7009).
type RevocationRequest struct {
	// Token is the token to revoke.
	Token string `json:"token"`
	// TokenTypeHint optionally hints at the token type.
	TokenTypeHint string `json:"token_type_hint,omitempty"`
	// ClientID authenticates the caller.
	ClientID string `json:"client_id"`
	// ClientSecret authenticates the caller.
	ClientSecret string `json:"client_secret,omitempty"`
}

// ParseScopes splits a space-delimited scope string into a scope list,
// dropping empty entries.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes renders a scope list as a space-delimited string.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
