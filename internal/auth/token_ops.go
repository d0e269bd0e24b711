package auth

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/models"
	"github.com/taskforge-app/token-service/internal/redis"
)

// Token type hints accepted by the introspection and revocation
// endpoints (RFC 7662 §2.1, RFC 7009 §2.1).
const (
	TokenHintAccess  = "access_token"
	TokenHintRefresh = "refresh_token"
)

var inactiveToken = &models.IntrospectionResponse{Active: false}

// IntrospectToken returns the claims view of a stored token. An absent,
// expired, or otherwise unusable token yields {active:false}; lookup
// problems never surface as server errors to the caller.
func (s *OAuth2Service) IntrospectToken(
	ctx context.Context,
	req *models.IntrospectionRequest,
) (*models.IntrospectionResponse, error) {
	if _, err := s.ValidateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	if req.Token == "" {
		return nil, models.NewInvalidRequest("token is required")
	}

	// A refresh_token hint flips lookup order; a miss on the hinted type
	// falls through to the other.
	if req.TokenTypeHint == TokenHintRefresh {
		if resp := s.introspectRefreshToken(ctx, req.Token); resp.Active {
			return resp, nil
		}
		return s.introspectAccessToken(ctx, req.Token), nil
	}

	if resp := s.introspectAccessToken(ctx, req.Token); resp.Active {
		return resp, nil
	}
	return s.introspectRefreshToken(ctx, req.Token), nil
}

func (s *OAuth2Service) introspectAccessToken(ctx context.Context, token string) *models.IntrospectionResponse {
	accessToken, err := s.store.GetAccessToken(ctx, token)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.logger.WithError(err).Error("Access token lookup failed during introspection")
		}
		return inactiveToken
	}

	if accessToken.IsExpired(s.clock.Now()) {
		return inactiveToken
	}

	return &models.IntrospectionResponse{
		Active:    true,
		ClientID:  accessToken.ClientID,
		Username:  accessToken.Subject,
		Scope:     models.JoinScopes(accessToken.Scopes),
		TokenType: accessToken.TokenType,
		GrantType: accessToken.GrantType,
		ExpiresAt: accessToken.ExpiresAt.Unix(),
		IssuedAt:  accessToken.CreatedAt.Unix(),
		Subject:   accessToken.Subject,
		Extra:     accessToken.AdditionalInfo,
	}
}

func (s *OAuth2Service) introspectRefreshToken(ctx context.Context, token string) *models.IntrospectionResponse {
	refreshToken, err := s.store.GetRefreshToken(ctx, token)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.logger.WithError(err).Error("Refresh token lookup failed during introspection")
		}
		return inactiveToken
	}

	if refreshToken.IsExpired(s.clock.Now()) {
		return inactiveToken
	}

	return &models.IntrospectionResponse{
		Active:    true,
		ClientID:  refreshToken.ClientID,
		Username:  refreshToken.Subject,
		Scope:     models.JoinScopes(refreshToken.Scopes),
		TokenType: models.TokenType(TokenHintRefresh),
		GrantType: refreshToken.GrantType,
		ExpiresAt: refreshToken.ExpiresAt.Unix(),
		IssuedAt:  refreshToken.CreatedAt.Unix(),
		Subject:   refreshToken.Subject,
	}
}

// RevokeToken deletes a token and its linked counterpart. Revoking an
// access token destroys its refresh token and vice versa, so a revoked
// pair cannot be resurrected from either half. The returned claims view
// describes the revoked token; (nil, nil) means it was already gone.
func (s *OAuth2Service) RevokeToken(
	ctx context.Context,
	req *models.RevocationRequest,
) (*models.IntrospectionResponse, error) {
	if _, err := s.ValidateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	if req.Token == "" {
		return nil, models.NewInvalidRequest("token is required")
	}

	// Try the hinted type first; a miss falls through to the other, as
	// RFC 7009 §2.1 requires.
	switch req.TokenTypeHint {
	case TokenHintRefresh:
		if claims := s.revokeRefreshToken(ctx, req.Token); claims != nil {
			return claims, nil
		}
		return s.revokeAccessToken(ctx, req.Token), nil
	default:
		if claims := s.revokeAccessToken(ctx, req.Token); claims != nil {
			return claims, nil
		}
		return s.revokeRefreshToken(ctx, req.Token), nil
	}
}

func (s *OAuth2Service) revokeAccessToken(ctx context.Context, token string) *models.IntrospectionResponse {
	accessToken, err := s.store.DeleteAccessToken(ctx, token)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.logger.WithError(err).Error("Failed to delete access token")
		}
		return nil
	}

	if accessToken.RefreshToken != "" {
		if delErr := s.store.DeleteRefreshToken(ctx, accessToken.RefreshToken); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to cascade revocation to refresh token")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"client_id":  accessToken.ClientID,
		"grant_type": accessToken.GrantType,
	}).Info("Access token revoked")

	return &models.IntrospectionResponse{
		Active:    false,
		ClientID:  accessToken.ClientID,
		Username:  accessToken.Subject,
		Scope:     models.JoinScopes(accessToken.Scopes),
		TokenType: accessToken.TokenType,
		GrantType: accessToken.GrantType,
		ExpiresAt: accessToken.ExpiresAt.Unix(),
		IssuedAt:  accessToken.CreatedAt.Unix(),
		Subject:   accessToken.Subject,
		Extra:     accessToken.AdditionalInfo,
	}
}

func (s *OAuth2Service) revokeRefreshToken(ctx context.Context, token string) *models.IntrospectionResponse {
	refreshToken, err := s.store.ConsumeRefreshToken(ctx, token)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.logger.WithError(err).Error("Failed to delete refresh token")
		}
		return nil
	}

	if refreshToken.AccessToken != "" {
		if _, delErr := s.store.DeleteAccessToken(ctx, refreshToken.AccessToken); delErr != nil && !errors.Is(delErr, redis.ErrNotFound) {
			s.logger.WithError(delErr).Warn("Failed to cascade revocation to access token")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"client_id":  refreshToken.ClientID,
		"grant_type": refreshToken.GrantType,
	}).Info("Refresh token revoked")

	return &models.IntrospectionResponse{
		Active:    false,
		ClientID:  refreshToken.ClientID,
		Username:  refreshToken.Subject,
		Scope:     models.JoinScopes(refreshToken.Scopes),
		TokenType: models.TokenType(TokenHintRefresh),
		GrantType: refreshToken.GrantType,
		ExpiresAt: refreshToken.ExpiresAt.Unix(),
		IssuedAt:  refreshToken.CreatedAt.Unix(),
		Subject:   refreshToken.Subject,
	}
}
