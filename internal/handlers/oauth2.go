// Package handlers provides the HTTP layer over the OAuth2 engine:
// authorization, token, introspection, and revocation endpoints, plus
// client management and server discovery.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/auth"
	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/constants"
	"github.com/taskforge-app/token-service/internal/models"
)

const (
	invalidFormDataError = "Invalid form data"
	encodingFailureError = "Failed to encode response"
)

// OAuth2Handler handles all OAuth2 endpoint requests.
type OAuth2Handler struct {
	authSvc auth.Service
	config  *config.Config
	logger  *logrus.Logger
}

// NewOAuth2Handler creates the OAuth2 HTTP handler.
func NewOAuth2Handler(authSvc auth.Service, cfg *config.Config, logger *logrus.Logger) *OAuth2Handler {
	return &OAuth2Handler{
		authSvc: authSvc,
		config:  cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers the OAuth2 endpoints with the router.
func (h *OAuth2Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/oauth/authorize", h.Authorize).Methods("GET", "POST")
	r.HandleFunc("/oauth/token", h.Token).Methods("POST")
	r.HandleFunc("/oauth/token", h.DeleteToken).Methods("DELETE")
	r.HandleFunc("/oauth/revoke", h.RevokeToken).Methods("POST")
	r.HandleFunc("/oauth/introspect", h.IntrospectToken).Methods("POST")
	r.HandleFunc("/oauth/token_info", h.IntrospectToken).Methods("POST")

	r.HandleFunc("/.well-known/oauth-authorization-server", h.WellKnownOAuthServer).Methods("GET")

	// Client management, normally exercised by the client-manager CLI.
	r.HandleFunc("/oauth/clients", h.RegisterClient).Methods("POST")
	r.HandleFunc("/oauth/clients/{client_id}", h.GetClient).Methods("GET")
}

// Authorize handles authorization code requests. The requester identity
// comes from the fronting gateway via X-Authenticated-Subject; there is
// no login UI in this service.
func (h *OAuth2Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	req := &models.AuthorizeRequest{
		ResponseType: models.ResponseType(r.FormValue("response_type")),
		ClientID:     r.FormValue("client_id"),
		RedirectURI:  r.FormValue("redirect_uri"),
		Scope:        r.FormValue("scope"),
		State:        r.FormValue("state"),
		Subject:      r.Header.Get("X-Authenticated-Subject"),
	}

	resp, err := h.authSvc.Authorize(ctx, req)
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	redirectURL, parseErr := url.Parse(resp.RedirectURI)
	if parseErr != nil {
		h.writeOAuth2Error(w, models.NewServerError("Failed to build redirect"))
		return
	}
	query := redirectURL.Query()
	query.Set("code", resp.Code)
	if resp.State != "" {
		query.Set("state", resp.State)
	}
	redirectURL.RawQuery = query.Encode()

	h.logger.WithFields(logrus.Fields{
		"client_id": req.ClientID,
	}).Info("Authorization successful, redirecting client")

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// Token handles token requests for all registered grant types.
func (h *OAuth2Handler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := h.extractClientCredentials(r)

	req := &models.TokenRequest{
		GrantType:    models.GrantType(r.FormValue("grant_type")),
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: r.FormValue("refresh_token"),
		Scope:        r.FormValue("scope"),
		Username:     r.FormValue("username"),
		Password:     r.FormValue("password"),
	}

	resp, err := h.authSvc.Token(ctx, req)
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	// Marshal first so a failure can still produce an error response.
	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		h.logger.WithError(marshalErr).Error("Failed to marshal token response")
		h.writeOAuth2Error(w, models.NewServerError(encodingFailureError))
		return
	}

	h.setTokenResponseHeaders(w)
	if _, writeErr := w.Write(payload); writeErr != nil {
		h.logger.WithError(writeErr).Error("Failed to write token response")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"client_id":   req.ClientID,
		"grant_type":  req.GrantType,
		"has_refresh": resp.RefreshToken != "",
	}).Info("Token issued successfully")
}

// DeleteToken revokes the bearer token presented in the Authorization
// header and returns its claims view, or 404 when the token does not
// exist. Unlike /oauth/revoke this endpoint reports what it deleted.
func (h *OAuth2Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	tokenValue := h.extractAccessToken(r)
	if tokenValue == "" {
		h.writeOAuth2Error(w, models.NewInvalidRequest("Access token is required"))
		return
	}

	clientID, clientSecret := h.extractClientCredentials(r)

	claims, err := h.authSvc.RevokeToken(ctx, &models.RevocationRequest{
		Token:        tokenValue,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}
	if claims == nil {
		h.writeError(w, "Token not found", http.StatusNotFound)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(claims); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode revocation response")
	}
}

// RevokeToken handles RFC 7009 revocation. A token that does not exist
// still yields 200, so callers cannot probe for live tokens.
func (h *OAuth2Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := h.extractClientCredentials(r)

	req := &models.RevocationRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	}

	if _, err := h.authSvc.RevokeToken(ctx, req); err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)

	h.logger.WithField("client_id", req.ClientID).Info("Token revocation processed")
}

// IntrospectToken handles RFC 7662 introspection. Absent or expired
// tokens produce {"active": false}, never an error.
func (h *OAuth2Handler) IntrospectToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := h.extractClientCredentials(r)

	req := &models.IntrospectionRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	}

	resp, err := h.authSvc.IntrospectToken(ctx, req)
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode introspection response")
	}
}

// WellKnownOAuthServer serves authorization server metadata (RFC 8414).
func (h *OAuth2Handler) WellKnownOAuthServer(w http.ResponseWriter, r *http.Request) {
	baseURL := "https://" + r.Host
	if !h.config.IsTLSEnabled() {
		baseURL = "http://" + r.Host
	}

	discovery := map[string]interface{}{
		"issuer":                                        baseURL,
		"authorization_endpoint":                        baseURL + "/oauth/authorize",
		"token_endpoint":                                baseURL + "/oauth/token",
		"revocation_endpoint":                           baseURL + "/oauth/revoke",
		"introspection_endpoint":                        baseURL + "/oauth/introspect",
		"response_types_supported":                      h.config.OAuth2.SupportedResponseTypes,
		"grant_types_supported":                         h.config.OAuth2.SupportedGrantTypes,
		"scopes_supported":                              h.config.OAuth2.SupportedScopes,
		"token_endpoint_auth_methods_supported":         []string{"client_secret_post", "client_secret_basic"},
		"revocation_endpoint_auth_methods_supported":    []string{"client_secret_post", "client_secret_basic"},
		"introspection_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		h.logger.WithError(err).Error("Failed to encode discovery response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// RegisterClient handles client registration requests.
func (h *OAuth2Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Name         string   `json:"name"`
		Secret       string   `json:"secret,omitempty"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		GrantTypes   []string `json:"grant_types"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	client, secret, err := h.authSvc.RegisterClient(ctx, auth.RegisterClientParams{
		Name:         req.Name,
		Secret:       req.Secret,
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		GrantTypes:   req.GrantTypes,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to register client")
		h.writeError(w, "Failed to register client", http.StatusBadRequest)
		return
	}

	// The plaintext secret appears in this response only.
	response := struct {
		ID           string   `json:"id"`
		Secret       string   `json:"secret"`
		Name         string   `json:"name"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		GrantTypes   []string `json:"grant_types"`
		CreatedAt    string   `json:"created_at"`
	}{
		ID:           client.ID,
		Secret:       secret,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.Scopes,
		GrantTypes:   client.GrantTypes,
		CreatedAt:    client.CreatedAt.Format(time.RFC3339),
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusCreated)
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode client response")
	}
}

// GetClient handles client retrieval requests. The secret hash never
// leaves the store.
func (h *OAuth2Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := mux.Vars(r)["client_id"]

	client, err := h.authSvc.GetClient(ctx, clientID)
	if err != nil {
		h.writeError(w, "Client not found", http.StatusNotFound)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(client); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode client response")
	}
}

// extractClientCredentials reads client credentials from Basic Auth,
// falling back to form parameters.
func (h *OAuth2Handler) extractClientCredentials(r *http.Request) (string, string) {
	if basicClientID, basicSecret, ok := r.BasicAuth(); ok {
		return basicClientID, basicSecret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

// extractAccessToken reads the bearer token from the Authorization
// header, falling back to the access_token form parameter.
func (h *OAuth2Handler) extractAccessToken(r *http.Request) string {
	authHeader := r.Header.Get(constants.HeaderAuthorization)
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.FormValue("access_token")
}

// setTokenResponseHeaders applies the RFC 6749 §5.1 cache directives.
func (h *OAuth2Handler) setTokenResponseHeaders(w http.ResponseWriter) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.Header().Set(constants.HeaderCacheControl, constants.CacheControlNoStore)
	w.Header().Set(constants.HeaderPragma, constants.PragmaNoCache)
}

// writeOAuth2Error renders an error as its OAuth2 wire form. Anything
// that is not an OAuth2Error becomes an opaque server_error.
func (h *OAuth2Handler) writeOAuth2Error(w http.ResponseWriter, err error) {
	var oauth2Err *models.OAuth2Error
	if !errors.As(err, &oauth2Err) {
		oauth2Err = models.NewServerError("An unexpected error occurred")
	}

	h.setTokenResponseHeaders(w)
	w.WriteHeader(oauth2Err.StatusCode)

	if encodeErr := json.NewEncoder(w).Encode(oauth2Err); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode error response")
	}

	h.logger.WithFields(logrus.Fields{
		"error":       oauth2Err.Code,
		"description": oauth2Err.Description,
		"status_code": oauth2Err.StatusCode,
	}).Warn("OAuth2 error response")
}

// writeError writes a plain JSON error for non-protocol endpoints.
func (h *OAuth2Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}
