package auth_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-app/token-service/internal/auth"
	"github.com/taskforge-app/token-service/internal/clock"
	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/models"
	"github.com/taskforge-app/token-service/internal/redis"
	"github.com/taskforge-app/token-service/internal/token"
)

const (
	webRedirectURI  = "https://app.taskforge.dev/callback"
	altRedirectURI  = "https://admin.taskforge.dev/callback"
	testStartTime   = "2025-06-01T12:00:00Z"
	webClientID     = "web-client"
	machineClientID = "ci-client"
)

// testEngine bundles the engine with the fakes its tests drive.
type testEngine struct {
	svc   *auth.OAuth2Service
	store *redis.MemoryStore
	clock *clock.Fixed
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	log := quietLogger()

	cfg := &config.Config{
		Token: config.TokenConfig{
			AuthorizationCodeTTL: 5 * time.Minute,
			AccessTokenTTL:       time.Hour,
			RefreshTokenTTL:      720 * time.Hour,
		},
		OAuth2: config.OAuth2Config{
			SupportedGrantTypes: []string{
				"authorization_code", "refresh_token", "client_credentials", "password",
			},
			SupportedResponseTypes: []string{"code"},
			SupportedScopes: []string{
				"read", "write", "admin",
				"tasks:read", "tasks:write", "projects:read", "projects:write",
			},
		},
	}

	store := redis.NewMemoryStore(log)
	t.Cleanup(func() { _ = store.Close() })

	start, err := time.Parse(time.RFC3339, testStartTime)
	require.NoError(t, err)
	clk := clock.NewFixed(start)

	authenticator := auth.NewStoreAuthenticator(store, log)
	svc := auth.NewOAuth2Service(cfg, store, token.NewGenerator(), clk, authenticator, log)

	return &testEngine{svc: svc, store: store, clock: clk}
}

// seedClient stores a public client (no secret hash) directly, skipping
// the bcrypt work of full registration.
func (e *testEngine) seedClient(t *testing.T, client *models.Client) *models.Client {
	t.Helper()
	require.NoError(t, e.store.StoreClient(context.Background(), client))
	return client
}

func webClient() *models.Client {
	return &models.Client{
		ID:           webClientID,
		Name:         "TaskForge Web",
		RedirectURIs: []string{webRedirectURI},
		Scopes:       []string{"read", "write", "tasks:read"},
		GrantTypes:   []string{"authorization_code", "refresh_token", "password"},
		IsActive:     true,
	}
}

func machineClient() *models.Client {
	return &models.Client{
		ID:         machineClientID,
		Name:       "CI Runner",
		Scopes:     []string{"read", "write"},
		GrantTypes: []string{"client_credentials"},
		IsActive:   true,
	}
}

// oauthError unwraps err into its OAuth2 representation.
func oauthError(t *testing.T, err error) *models.OAuth2Error {
	t.Helper()
	var oauthErr *models.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	return oauthErr
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		client   *models.Client
		req      *models.AuthorizeRequest
		wantCode string
	}{
		{
			name:     "missing_client_id",
			client:   webClient(),
			req:      &models.AuthorizeRequest{ResponseType: models.ResponseTypeCode},
			wantCode: "invalid_request",
		},
		{
			name:     "missing_response_type",
			client:   webClient(),
			req:      &models.AuthorizeRequest{ClientID: webClientID},
			wantCode: "invalid_request",
		},
		{
			name:   "unsupported_response_type",
			client: webClient(),
			req: &models.AuthorizeRequest{
				ClientID:     webClientID,
				ResponseType: "token",
			},
			wantCode: "unsupported_response_type",
		},
		{
			name:   "unknown_client",
			client: webClient(),
			req: &models.AuthorizeRequest{
				ClientID:     "no-such-client",
				ResponseType: models.ResponseTypeCode,
			},
			wantCode: "invalid_client",
		},
		{
			name: "inactive_client",
			client: func() *models.Client {
				c := webClient()
				c.IsActive = false
				return c
			}(),
			req: &models.AuthorizeRequest{
				ClientID:     webClientID,
				ResponseType: models.ResponseTypeCode,
			},
			wantCode: "invalid_client",
		},
		{
			name:   "client_not_approved_for_code_grant",
			client: machineClient(),
			req: &models.AuthorizeRequest{
				ClientID:     machineClientID,
				ResponseType: models.ResponseTypeCode,
			},
			wantCode: "unauthorized_client",
		},
		{
			name:   "unregistered_redirect_uri",
			client: webClient(),
			req: &models.AuthorizeRequest{
				ClientID:     webClientID,
				ResponseType: models.ResponseTypeCode,
				RedirectURI:  "https://evil.example.com/callback",
			},
			wantCode: "invalid_grant",
		},
		{
			name: "absent_redirect_uri_with_multiple_registered",
			client: func() *models.Client {
				c := webClient()
				c.RedirectURIs = []string{webRedirectURI, altRedirectURI}
				return c
			}(),
			req: &models.AuthorizeRequest{
				ClientID:     webClientID,
				ResponseType: models.ResponseTypeCode,
			},
			wantCode: "invalid_request",
		},
		{
			name:   "scope_exceeds_client_approval",
			client: webClient(),
			req: &models.AuthorizeRequest{
				ClientID:     webClientID,
				ResponseType: models.ResponseTypeCode,
				Scope:        "read admin",
			},
			wantCode: "invalid_scope",
		},
		{
			name:   "unrecognized_scope",
			client: webClient(),
			req: &models.AuthorizeRequest{
				ClientID:     webClientID,
				ResponseType: models.ResponseTypeCode,
				Scope:        "galactic:domination",
			},
			wantCode: "invalid_scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			e.seedClient(t, tt.client)

			resp, err := e.svc.Authorize(context.Background(), tt.req)

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantCode, oauthError(t, err).Code)
		})
	}
}

func TestAuthorizeIssuesCode(t *testing.T) {
	e := newTestEngine(t)
	e.seedClient(t, webClient())
	ctx := context.Background()

	resp, err := e.svc.Authorize(ctx, &models.AuthorizeRequest{
		ClientID:     webClientID,
		ResponseType: models.ResponseTypeCode,
		Scope:        "read tasks:read",
		State:        "xyz",
		Subject:      "user-42",
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Code)
	assert.Equal(t, "xyz", resp.State)
	assert.Equal(t, webRedirectURI, resp.RedirectURI, "sole registered URI is used when none requested")

	stored, err := e.store.ConsumeAuthorizationCode(ctx, resp.Code)
	require.NoError(t, err)
	assert.Equal(t, webClientID, stored.ClientID)
	assert.Equal(t, "user-42", stored.Subject)
	assert.Equal(t, []string{"read", "tasks:read"}, stored.Scopes)
	assert.Equal(t, webRedirectURI, stored.RedirectURI)
	assert.Equal(t, e.clock.Now().Add(5*time.Minute), stored.ExpiresAt)
}

func TestAuthorizeEmptyScopeGrantsFullApprovedSet(t *testing.T) {
	e := newTestEngine(t)
	e.seedClient(t, webClient())
	ctx := context.Background()

	resp, err := e.svc.Authorize(ctx, &models.AuthorizeRequest{
		ClientID:     webClientID,
		ResponseType: models.ResponseTypeCode,
	})
	require.NoError(t, err)

	stored, err := e.store.ConsumeAuthorizationCode(ctx, resp.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write", "tasks:read"}, stored.Scopes)
}

func TestAuthorizeErrorCarriesState(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.svc.Authorize(context.Background(), &models.AuthorizeRequest{
		ClientID:     webClientID,
		ResponseType: "token",
		State:        "abc123",
	})

	require.Error(t, err)
	assert.Equal(t, "abc123", oauthError(t, err).State)
	assert.Empty(t, models.ErrUnsupportedResponseType.State, "sentinel must stay clean")
}

func TestResolveRedirectURI(t *testing.T) {
	e := newTestEngine(t)

	single := webClient()
	multi := webClient()
	multi.RedirectURIs = []string{webRedirectURI, altRedirectURI}
	none := webClient()
	none.RedirectURIs = nil

	tests := []struct {
		name      string
		client    *models.Client
		requested string
		want      string
		wantCode  string
	}{
		{name: "absent_with_one_registered", client: single, requested: "", want: webRedirectURI},
		{name: "absent_with_multiple_registered", client: multi, requested: "", wantCode: "invalid_request"},
		{name: "absent_with_none_registered", client: none, requested: "", wantCode: "invalid_request"},
		{name: "exact_match", client: multi, requested: altRedirectURI, want: altRedirectURI},
		{name: "trailing_slash_mismatch", client: single, requested: webRedirectURI + "/", wantCode: "invalid_grant"},
		{name: "unregistered", client: single, requested: "https://evil.example.com/cb", wantCode: "invalid_grant"},
		{name: "unparseable", client: single, requested: "::::not-a-uri", wantCode: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.svc.ResolveRedirectURI(tt.requested, tt.client)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, oauthError(t, err).Code)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateScopes(t *testing.T) {
	approved := []string{"read", "write"}

	assert.True(t, auth.ValidateScopes(approved, nil))
	assert.True(t, auth.ValidateScopes(approved, []string{"read"}))
	assert.True(t, auth.ValidateScopes(approved, []string{"read", "write"}))
	assert.False(t, auth.ValidateScopes(approved, []string{"read", "admin"}))
	assert.False(t, auth.ValidateScopes(nil, []string{"read"}))
}

func TestTokenDispatch(t *testing.T) {
	t.Run("missing_grant_type", func(t *testing.T) {
		e := newTestEngine(t)

		_, err := e.svc.Token(context.Background(), &models.TokenRequest{ClientID: webClientID})
		assert.Equal(t, "invalid_request", oauthError(t, err).Code)
	})

	t.Run("missing_client_id", func(t *testing.T) {
		e := newTestEngine(t)

		_, err := e.svc.Token(context.Background(), &models.TokenRequest{
			GrantType: models.GrantTypeClientCredentials,
		})
		assert.Equal(t, "invalid_request", oauthError(t, err).Code)
	})

	t.Run("unregistered_grant_type", func(t *testing.T) {
		e := newTestEngine(t)

		// The registry miss wins even though the client does not exist:
		// dispatch is a pure registry lookup ahead of authentication.
		_, err := e.svc.Token(context.Background(), &models.TokenRequest{
			GrantType: "urn:ietf:params:oauth:grant-type:device_code",
			ClientID:  "no-such-client",
		})
		assert.Equal(t, "unsupported_grant_type", oauthError(t, err).Code)
	})

	t.Run("client_not_approved_for_grant_type", func(t *testing.T) {
		e := newTestEngine(t)
		e.seedClient(t, machineClient())

		_, err := e.svc.Token(context.Background(), &models.TokenRequest{
			GrantType: models.GrantTypeAuthorizationCode,
			ClientID:  machineClientID,
			Code:      "whatever",
		})
		assert.Equal(t, "unauthorized_client", oauthError(t, err).Code)
	})

	t.Run("unknown_client", func(t *testing.T) {
		e := newTestEngine(t)

		_, err := e.svc.Token(context.Background(), &models.TokenRequest{
			GrantType: models.GrantTypeClientCredentials,
			ClientID:  "no-such-client",
		})
		assert.Equal(t, "invalid_client", oauthError(t, err).Code)
	})
}

func TestRegisterClient(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	client, secret, err := e.svc.RegisterClient(ctx, auth.RegisterClientParams{
		Name:       "Reporting Service",
		Scopes:     []string{"read"},
		GrantTypes: []string{"client_credentials"},
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.NotEmpty(t, client.ID)
	assert.NotEmpty(t, secret, "generated secret is returned once")
	assert.NotEqual(t, secret, client.SecretHash)
	assert.True(t, client.IsActive)
	assert.Equal(t, e.clock.Now(), client.CreatedAt)

	// The stored hash verifies the returned plaintext.
	validated, err := e.svc.ValidateClient(ctx, client.ID, secret)
	require.NoError(t, err)
	assert.Equal(t, client.ID, validated.ID)

	_, err = e.svc.ValidateClient(ctx, client.ID, "wrong-secret")
	assert.Equal(t, "invalid_client", oauthError(t, err).Code)
}

func TestRegisterClientKeepsProvidedID(t *testing.T) {
	e := newTestEngine(t)

	client, secret, err := e.svc.RegisterClient(context.Background(), auth.RegisterClientParams{
		ID:         "ci-runner",
		Name:       "CI Runner",
		Secret:     "provided-secret",
		Scopes:     []string{"read"},
		GrantTypes: []string{"client_credentials"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ci-runner", client.ID)
	assert.Equal(t, "provided-secret", secret)
}

func TestValidateClientPublicClient(t *testing.T) {
	e := newTestEngine(t)
	e.seedClient(t, webClient())

	// No secret hash stored: any presented secret is accepted.
	client, err := e.svc.ValidateClient(context.Background(), webClientID, "")
	require.NoError(t, err)
	assert.Equal(t, webClientID, client.ID)
}

func TestGetClient(t *testing.T) {
	e := newTestEngine(t)
	e.seedClient(t, webClient())
	ctx := context.Background()

	client, err := e.svc.GetClient(ctx, webClientID)
	require.NoError(t, err)
	assert.Equal(t, "TaskForge Web", client.Name)

	_, err = e.svc.GetClient(ctx, "no-such-client")
	assert.Equal(t, "invalid_client", oauthError(t, err).Code)
}
