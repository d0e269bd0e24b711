// Package auth implements the OAuth2 token engine: the authorization
// code lifecycle, grant-type dispatch, token minting with expiry and
// scope binding, and token introspection and revocation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskforge-app/token-service/internal/clock"
	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/models"
	"github.com/taskforge-app/token-service/internal/redis"
	"github.com/taskforge-app/token-service/internal/token"
)

const bcryptCost = 12

// Service is the OAuth2 engine interface consumed by the HTTP layer and
// the client-manager CLI.
type Service interface {
	// Authorize validates an authorization request and mints a
	// single-use authorization code bound to it.
	Authorize(ctx context.Context, req *models.AuthorizeRequest) (*models.AuthorizeResponse, error)

	// Token dispatches a token request to the strategy registered for
	// its grant type.
	Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResponse, error)

	// IntrospectToken returns the claims view of a stored token, or
	// {active:false} when the token is absent or expired.
	IntrospectToken(ctx context.Context, req *models.IntrospectionRequest) (*models.IntrospectionResponse, error)

	// RevokeToken deletes a token pair. The returned claims view
	// describes what was revoked; both are nil when the token did not
	// exist, which is still a success per RFC 7009.
	RevokeToken(ctx context.Context, req *models.RevocationRequest) (*models.IntrospectionResponse, error)

	// RegisterClient stores a new client with a bcrypt-hashed secret.
	// The plaintext secret is returned exactly once.
	RegisterClient(ctx context.Context, params RegisterClientParams) (*models.Client, string, error)

	// GetClient retrieves a client registration.
	GetClient(ctx context.Context, clientID string) (*models.Client, error)

	// ValidateClient authenticates a client by ID and secret.
	ValidateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error)
}

// RegisterClientParams carries client registration input.
type RegisterClientParams struct {
	ID              string
	Name            string
	Secret          string
	RedirectURIs    []string
	Scopes          []string
	GrantTypes      []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// OAuth2Service implements Service over a pluggable Store, an opaque
// secret generator, and an injected clock. Grant strategies are held in
// a fixed registry built at construction time.
type OAuth2Service struct {
	config        *config.Config
	store         redis.Store
	generator     token.Generator
	clock         clock.Clock
	authenticator Authenticator
	logger        *logrus.Logger
	grantors      map[models.GrantType]Grantor
}

// NewOAuth2Service creates the engine and registers one strategy per
// supported grant type. authenticator may be nil, which disables the
// password grant.
func NewOAuth2Service(
	cfg *config.Config,
	store redis.Store,
	generator token.Generator,
	clk clock.Clock,
	authenticator Authenticator,
	logger *logrus.Logger,
) *OAuth2Service {
	s := &OAuth2Service{
		config:        cfg,
		store:         store,
		generator:     generator,
		clock:         clk,
		authenticator: authenticator,
		logger:        logger,
	}

	registry := map[models.GrantType]Grantor{
		models.GrantTypeAuthorizationCode: &authorizationCodeGrantor{s},
		models.GrantTypeRefreshToken:      &refreshTokenGrantor{s},
		models.GrantTypeClientCredentials: &clientCredentialsGrantor{s},
	}
	if authenticator != nil {
		registry[models.GrantTypePassword] = &passwordGrantor{s}
	}

	s.grantors = make(map[models.GrantType]Grantor, len(registry))
	for _, supported := range cfg.OAuth2.SupportedGrantTypes {
		if grantor, ok := registry[models.GrantType(supported)]; ok {
			s.grantors[models.GrantType(supported)] = grantor
		}
	}

	return s
}

// Authorize processes an authorization request: client lookup, response
// type check, redirect URI resolution, scope enforcement, then code
// issuance. The approved scope set bound to the code is immutable from
// here on.
func (s *OAuth2Service) Authorize(
	ctx context.Context,
	req *models.AuthorizeRequest,
) (*models.AuthorizeResponse, error) {
	s.logger.WithFields(logrus.Fields{
		"client_id": req.ClientID,
		"subject":   req.Subject,
		"scope":     req.Scope,
	}).Info("Processing authorization request")

	if req.ClientID == "" {
		return nil, models.NewInvalidRequest("client_id is required").WithState(req.State)
	}
	if req.ResponseType == "" {
		return nil, models.NewInvalidRequest("response_type is required").WithState(req.State)
	}
	if req.ResponseType != models.ResponseTypeCode {
		return nil, models.ErrUnsupportedResponseType.WithState(req.State)
	}

	client, err := s.loadActiveClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if !client.HasGrantType(models.GrantTypeAuthorizationCode) {
		return nil, models.ErrUnauthorizedClient.WithState(req.State)
	}

	redirectURI, err := s.ResolveRedirectURI(req.RedirectURI, client)
	if err != nil {
		return nil, err
	}

	scopes, err := s.approveScopes(client, models.ParseScopes(req.Scope))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	authReq := &models.AuthorizationRequest{
		ClientID:     client.ID,
		Subject:      req.Subject,
		Scopes:       scopes,
		RedirectURI:  redirectURI,
		ResponseType: req.ResponseType,
		State:        req.State,
	}

	ttl := s.config.Token.AuthorizationCodeTTL
	authCode := models.NewAuthorizationCode(s.generator.Generate(), authReq, ttl, now)

	if storeErr := s.store.StoreAuthorizationCode(ctx, authCode, ttl); storeErr != nil {
		s.logger.WithError(storeErr).Error("Failed to store authorization code")
		return nil, models.NewServerError("Failed to store authorization code")
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"subject":   req.Subject,
		"scopes":    models.JoinScopes(scopes),
	}).Info("Authorization code issued")

	return &models.AuthorizeResponse{
		Code:        authCode.Code,
		State:       req.State,
		RedirectURI: redirectURI,
	}, nil
}

// Token authenticates the client, verifies its grant type approval, and
// delegates to the registered strategy. The dispatcher itself performs
// no business logic beyond routing.
func (s *OAuth2Service) Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResponse, error) {
	s.logger.WithFields(logrus.Fields{
		"grant_type": req.GrantType,
		"client_id":  req.ClientID,
	}).Info("Processing token request")

	if req.GrantType == "" {
		return nil, models.NewInvalidRequest("grant_type is required")
	}
	if req.ClientID == "" {
		return nil, models.NewInvalidRequest("client_id is required")
	}

	grantor, registered := s.grantors[req.GrantType]
	if !registered {
		grantsDenied.WithLabelValues(string(req.GrantType), "unsupported_grant_type").Inc()
		return nil, models.NewUnsupportedGrantType(
			fmt.Sprintf("Grant type %s is not supported", req.GrantType),
		)
	}

	client, err := s.ValidateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		grantsDenied.WithLabelValues(string(req.GrantType), "invalid_client").Inc()
		return nil, err
	}

	if !client.HasGrantType(req.GrantType) {
		grantsDenied.WithLabelValues(string(req.GrantType), "unauthorized_client").Inc()
		return nil, models.ErrUnauthorizedClient
	}

	resp, err := grantor.Grant(ctx, client, req)
	if err != nil {
		grantsDenied.WithLabelValues(string(req.GrantType), errorCode(err)).Inc()
		return nil, err
	}

	grantsIssued.WithLabelValues(string(req.GrantType)).Inc()
	return resp, nil
}

// RegisterClient hashes the secret with bcrypt and persists the client.
func (s *OAuth2Service) RegisterClient(
	ctx context.Context,
	params RegisterClientParams,
) (*models.Client, string, error) {
	secret := params.Secret
	if secret == "" {
		secret = s.generator.Generate()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash client secret")
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	client := models.NewClient(params.Name, params.RedirectURIs, params.Scopes, params.GrantTypes, s.clock.Now())
	if params.ID != "" {
		client.ID = params.ID
	}
	client.SecretHash = string(hash)
	client.AccessTokenTTL = params.AccessTokenTTL
	client.RefreshTokenTTL = params.RefreshTokenTTL

	if storeErr := s.store.StoreClient(ctx, client); storeErr != nil {
		s.logger.WithError(storeErr).Error("Failed to store client")
		return nil, "", fmt.Errorf("failed to store client: %w", storeErr)
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"name":      client.Name,
	}).Info("Client registered")

	return client, secret, nil
}

// GetClient retrieves a client registration by ID.
func (s *OAuth2Service) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, models.NewInvalidClient("Client not found")
		}
		s.logger.WithError(err).Error("Failed to load client")
		return nil, models.NewServerError("Failed to load client")
	}
	return client, nil
}

// ValidateClient authenticates a client against its stored bcrypt secret
// hash. Inactive clients and bad secrets both fail with invalid_client.
func (s *OAuth2Service) ValidateClient(
	ctx context.Context,
	clientID, clientSecret string,
) (*models.Client, error) {
	client, err := s.loadActiveClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if client.SecretHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)) != nil {
			return nil, models.NewInvalidClient("Invalid client credentials")
		}
	}

	return client, nil
}

func (s *OAuth2Service) loadActiveClient(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, models.NewInvalidClient("Client not found")
		}
		s.logger.WithError(err).Error("Failed to load client")
		return nil, models.NewServerError("Failed to load client")
	}
	if !client.IsActive {
		return nil, models.NewInvalidClient("Client is inactive")
	}
	return client, nil
}

// ValidateScopes reports whether requested is empty or a subset of
// approved. The same rule gates authorization requests and every grant
// strategy's mint.
func ValidateScopes(approved, requested []string) bool {
	return isScopeSubset(requested, approved)
}

// ResolveRedirectURI resolves the effective redirect URI for an
// authorization request. An absent URI is only acceptable when the
// client has exactly one registered URI; a present URI must exactly
// match a registered one. Equality is exact string comparison with no
// normalization beyond URI parsing.
func (s *OAuth2Service) ResolveRedirectURI(requested string, client *models.Client) (string, error) {
	if requested == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], nil
		}
		return "", models.NewInvalidRequest("redirect_uri is required")
	}

	if _, err := url.ParseRequestURI(requested); err != nil {
		return "", models.NewInvalidRequest("Invalid redirect_uri format")
	}

	if !client.HasRedirectURI(requested) {
		return "", models.NewRedirectMismatch("redirect_uri is not registered for this client")
	}

	return requested, nil
}

// approveScopes returns the scope set to bind to a grant: the client's
// full approved set when none were requested, otherwise the requested
// set after subset validation.
func (s *OAuth2Service) approveScopes(client *models.Client, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return client.Scopes, nil
	}

	for _, scope := range requested {
		if !containsScope(s.config.OAuth2.SupportedScopes, scope) {
			return nil, models.NewInvalidScope(fmt.Sprintf("Unsupported scope: %s", scope))
		}
	}

	if !isScopeSubset(requested, client.Scopes) {
		return nil, models.NewInvalidScope("Requested scopes exceed client approval")
	}

	return requested, nil
}

func containsScope(scopes []string, scope string) bool {
	for _, candidate := range scopes {
		if candidate == scope {
			return true
		}
	}
	return false
}

// isScopeSubset reports whether every requested scope is allowed. An
// empty request is trivially a subset.
func isScopeSubset(requested, allowed []string) bool {
	for _, scope := range requested {
		if !containsScope(allowed, scope) {
			return false
		}
	}
	return true
}

// errorCode extracts the OAuth2 error code for metrics labels.
func errorCode(err error) string {
	var oauthErr *models.OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr.Code
	}
	return "server_error"
}
