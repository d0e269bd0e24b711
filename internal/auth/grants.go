package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/models"
	"github.com/taskforge-app/token-service/internal/redis"
)

// Grantor is a single grant-type strategy. The dispatcher hands it an
// already-authenticated client whose grant-type approval has been
// verified; everything else is the strategy's responsibility.
type Grantor interface {
	Grant(ctx context.Context, client *models.Client, req *models.TokenRequest) (*models.TokenResponse, error)
}

// authorizationCodeGrantor exchanges a single-use authorization code for
// a token pair. The code is consumed atomically before validation, so a
// failed exchange still destroys it.
type authorizationCodeGrantor struct {
	svc *OAuth2Service
}

func (g *authorizationCodeGrantor) Grant(
	ctx context.Context,
	client *models.Client,
	req *models.TokenRequest,
) (*models.TokenResponse, error) {
	s := g.svc

	if req.Code == "" {
		return nil, models.NewInvalidRequest("code is required")
	}

	code, err := s.store.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, models.NewInvalidGrant("Authorization code is invalid or already used")
		}
		s.logger.WithError(err).Error("Failed to consume authorization code")
		return nil, models.NewServerError("Failed to consume authorization code")
	}

	if validateErr := g.validateForExchange(code, client, req); validateErr != nil {
		s.logger.WithFields(logrus.Fields{
			"client_id": client.ID,
			"error":     validateErr.Error(),
		}).Warn("Authorization code exchange rejected")
		return nil, validateErr
	}

	withRefresh := client.HasGrantType(models.GrantTypeRefreshToken)
	return s.issueTokens(ctx, client, code.Subject, code.Scopes, models.GrantTypeAuthorizationCode, withRefresh)
}

// validateForExchange checks a consumed code against the exchange
// request. Order matters: expiry first, then redirect binding, then
// client binding, each failure mapping to its own error.
func (g *authorizationCodeGrantor) validateForExchange(
	code *models.AuthorizationCode,
	client *models.Client,
	req *models.TokenRequest,
) error {
	if code.IsExpired(g.svc.clock.Now()) {
		return models.NewInvalidGrant("Authorization code has expired")
	}
	if req.RedirectURI != code.RedirectURI {
		return models.NewRedirectMismatch("redirect_uri does not match the authorization request")
	}
	if code.ClientID != client.ID {
		return models.NewInvalidClient("Authorization code was issued to a different client")
	}
	return nil
}

// refreshTokenGrantor rotates a refresh token: the presented token and
// its linked access token are destroyed, and a fresh pair is minted for
// the same client and subject. The requested scope may only narrow the
// original grant.
type refreshTokenGrantor struct {
	svc *OAuth2Service
}

func (g *refreshTokenGrantor) Grant(
	ctx context.Context,
	client *models.Client,
	req *models.TokenRequest,
) (*models.TokenResponse, error) {
	s := g.svc

	if req.RefreshToken == "" {
		return nil, models.NewInvalidRequest("refresh_token is required")
	}

	old, err := s.store.ConsumeRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, models.NewInvalidGrant("Refresh token is invalid or already rotated")
		}
		s.logger.WithError(err).Error("Failed to consume refresh token")
		return nil, models.NewServerError("Failed to consume refresh token")
	}

	if old.IsExpired(s.clock.Now()) {
		return nil, models.NewInvalidGrant("Refresh token has expired")
	}
	if old.ClientID != client.ID {
		return nil, models.NewInvalidGrant("Refresh token was issued to a different client")
	}

	scopes := old.Scopes
	if requested := req.RequestedScopes(); len(requested) > 0 {
		if !isScopeSubset(requested, old.Scopes) {
			return nil, models.NewInvalidScope("Requested scopes exceed the original grant")
		}
		scopes = requested
	}

	// The old access token dies with the refresh token that renewed it.
	if _, delErr := s.store.DeleteAccessToken(ctx, old.AccessToken); delErr != nil && !errors.Is(delErr, redis.ErrNotFound) {
		s.logger.WithError(delErr).Warn("Failed to delete rotated access token")
	}

	return s.issueTokens(ctx, client, old.Subject, scopes, models.GrantTypeRefreshToken, true)
}

// clientCredentialsGrantor issues machine-to-machine tokens with no
// subject. Requested scopes must be a subset of the client's approval;
// an empty request grants the full approved set.
type clientCredentialsGrantor struct {
	svc *OAuth2Service
}

func (g *clientCredentialsGrantor) Grant(
	ctx context.Context,
	client *models.Client,
	req *models.TokenRequest,
) (*models.TokenResponse, error) {
	s := g.svc

	scopes, err := s.approveScopes(client, req.RequestedScopes())
	if err != nil {
		return nil, err
	}

	// RFC 6749 §4.4.3: no refresh token for client credentials.
	return s.issueTokens(ctx, client, "", scopes, models.GrantTypeClientCredentials, false)
}

// passwordGrantor verifies resource owner credentials through the
// configured authenticator and issues tokens bound to the owner's
// subject. Authentication failures surface as invalid_grant, never as
// server errors.
type passwordGrantor struct {
	svc *OAuth2Service
}

func (g *passwordGrantor) Grant(
	ctx context.Context,
	client *models.Client,
	req *models.TokenRequest,
) (*models.TokenResponse, error) {
	s := g.svc

	if req.Username == "" || req.Password == "" {
		return nil, models.NewInvalidRequest("username and password are required")
	}

	subject, err := s.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"client_id": client.ID,
			"username":  req.Username,
		}).Warn("Resource owner authentication failed")
		return nil, models.NewInvalidGrant("Invalid resource owner credentials")
	}

	scopes, err := s.approveScopes(client, req.RequestedScopes())
	if err != nil {
		return nil, err
	}

	withRefresh := client.HasGrantType(models.GrantTypeRefreshToken)
	return s.issueTokens(ctx, client, subject, scopes, models.GrantTypePassword, withRefresh)
}

// issueTokens mints an access token, and optionally a linked refresh
// token, for the given client, subject and scope set. Scope containment
// against the client's approval is re-checked here so no strategy can
// mint outside it.
func (s *OAuth2Service) issueTokens(
	ctx context.Context,
	client *models.Client,
	subject string,
	scopes []string,
	grantType models.GrantType,
	withRefresh bool,
) (*models.TokenResponse, error) {
	if !isScopeSubset(scopes, client.Scopes) {
		return nil, models.NewInvalidScope("Granted scopes exceed client approval")
	}

	now := s.clock.Now()

	accessTTL := s.config.Token.AccessTokenTTL
	if client.AccessTokenTTL > 0 {
		accessTTL = client.AccessTokenTTL
	}

	accessToken := &models.AccessToken{
		Token:     s.generator.Generate(),
		ClientID:  client.ID,
		Subject:   subject,
		Scopes:    scopes,
		GrantType: grantType,
		TokenType: models.TokenTypeBearer,
		ExpiresAt: now.Add(accessTTL),
		CreatedAt: now,
		AdditionalInfo: map[string]string{
			"client_name": client.Name,
		},
	}

	var refreshToken *models.RefreshToken
	if withRefresh {
		refreshTTL := s.config.Token.RefreshTokenTTL
		if client.RefreshTokenTTL > 0 {
			refreshTTL = client.RefreshTokenTTL
		}
		refreshToken = &models.RefreshToken{
			Token:       s.generator.Generate(),
			AccessToken: accessToken.Token,
			ClientID:    client.ID,
			Subject:     subject,
			Scopes:      scopes,
			GrantType:   grantType,
			ExpiresAt:   now.Add(refreshTTL),
			CreatedAt:   now,
		}
		accessToken.RefreshToken = refreshToken.Token
	}

	if err := s.store.StoreAccessToken(ctx, accessToken, accessTTL); err != nil {
		s.logger.WithError(err).Error("Failed to store access token")
		return nil, models.NewServerError("Failed to store access token")
	}

	if refreshToken != nil {
		refreshTTL := refreshToken.ExpiresAt.Sub(now)
		if err := s.store.StoreRefreshToken(ctx, refreshToken, refreshTTL); err != nil {
			// Roll back the access token so no half-issued pair survives.
			if _, delErr := s.store.DeleteAccessToken(ctx, accessToken.Token); delErr != nil && !errors.Is(delErr, redis.ErrNotFound) {
				s.logger.WithError(delErr).Error("Failed to roll back access token")
			}
			s.logger.WithError(err).Error("Failed to store refresh token")
			return nil, models.NewServerError("Failed to store refresh token")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"client_id":  client.ID,
		"grant_type": grantType,
		"scopes":     models.JoinScopes(scopes),
		"expires_in": fmt.Sprintf("%ds", int(accessTTL.Seconds())),
	}).Info("Tokens issued")

	resp := &models.TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int(accessTTL.Seconds()),
		Scope:       models.JoinScopes(scopes),
	}
	if refreshToken != nil {
		resp.RefreshToken = refreshToken.Token
	}
	return resp, nil
}
