// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/grantline/oauthserver/pkg/clientauth"
	"github.com/grantline/oauthserver/pkg/grants"
	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/scope"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// TokenController orchestrates the token endpoint (RFC 6749 §3.2): method
// and grant dispatch, client authentication, grant validation, client
// reconciliation, scope negotiation, and issuance.
type TokenController struct {
	grants     map[string]grants.GrantType
	auth       *clientauth.Authenticator
	clients    storage.ClientStore
	generator  tokens.AccessTokenGenerator
	negotiator *scope.Negotiator
	logger     *slog.Logger
}

// NewTokenController creates a TokenController over a string-keyed grant
// registry. Unregistered grant types are rejected by name; registration is
// the only coupling between the controller and the grant set.
func NewTokenController(
	grantTypes []grants.GrantType,
	auth *clientauth.Authenticator,
	clients storage.ClientStore,
	generator tokens.AccessTokenGenerator,
	negotiator *scope.Negotiator,
	logger *slog.Logger,
) *TokenController {
	if logger == nil {
		logger = slog.Default()
	}
	registry := make(map[string]grants.GrantType, len(grantTypes))
	for _, gt := range grantTypes {
		registry[gt.Name()] = gt
	}
	return &TokenController{
		grants:     registry,
		auth:       auth,
		clients:    clients,
		generator:  generator,
		negotiator: negotiator,
		logger:     logger,
	}
}

// HandleTokenRequest runs the full token-endpoint state machine and returns
// either the success response or the protocol error to send.
func (c *TokenController) HandleTokenRequest(ctx context.Context, req *oauth.Request) (*tokens.Response, *oauth.Error) {
	if req.Method != http.MethodPost {
		return nil, oauth.ErrMethodNotAllowed
	}

	grantTypeName := req.Value("grant_type")
	if grantTypeName == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription("The grant type was not specified in the request")
	}
	grant, ok := c.grants[grantTypeName]
	if !ok {
		return nil, oauth.ErrUnsupportedGrantType.WithDescription("Grant type %q not supported", grantTypeName)
	}

	var (
		client *storage.Client
		result *grants.Result
	)

	if _, selfAuth := grant.(grants.SelfAuthenticating); selfAuth {
		// The grant material authenticates the client itself (assertions,
		// client credentials). The resulting client identity is trusted.
		var errResp *oauth.Error
		result, errResp = grant.Validate(ctx, req)
		if errResp != nil {
			return nil, errResp
		}
		client = c.lookupClient(ctx, result.ClientID)
	} else {
		var errResp *oauth.Error
		client, errResp = c.auth.Authenticate(ctx, req)
		if errResp != nil {
			return nil, errResp
		}
		result, errResp = grant.Validate(ctx, req)
		if errResp != nil {
			return nil, errResp
		}
		// The grant material may carry its own client binding (codes,
		// refresh tokens). It must match the authenticated client.
		if result.ClientID != "" && result.ClientID != client.ID {
			c.logger.Warn("grant presented by a different client",
				"grant_type", grantTypeName,
				"authenticated_client", client.ID,
				"bound_client", result.ClientID)
			return nil, oauth.ErrInvalidGrant.WithDescription("%s doesn't exist or is invalid for the client", grantTypeName)
		}
		result.ClientID = client.ID
	}

	if client != nil && !client.HasGrantType(grantTypeName) {
		return nil, oauth.ErrUnauthorizedClient.WithDescription("The grant type is unauthorized for this client_id")
	}

	finalScope, errResp := c.negotiateScope(ctx, req.Value("scope"), result.Scope, result.ClientID)
	if errResp != nil {
		return nil, errResp
	}

	resp, err := grant.CreateToken(ctx, c.generator, result, finalScope)
	if err != nil {
		var oe *oauth.Error
		if errors.As(err, &oe) {
			return nil, oe
		}
		c.logger.Error("token issuance failed", "grant_type", grantTypeName, "client_id", result.ClientID, "error", err)
		return nil, oauth.ErrServerError
	}
	return resp, nil
}

// lookupClient fetches the client record for a self-authenticated grant.
// Assertion issuers need not be registered as clients; an absent record is
// treated as unrestricted.
func (c *TokenController) lookupClient(ctx context.Context, clientID string) *storage.Client {
	client, err := c.clients.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Error("client lookup failed", "client_id", clientID, "error", err)
		}
		return nil
	}
	return client
}

// negotiateScope resolves the scope for issuance. A requested scope must be
// contained in the grant's bound scope (when one exists) and known to the
// scope store. Without a request, the grant's scope wins, then the client
// default; a configured scope requirement rejects scope-less requests.
func (c *TokenController) negotiateScope(ctx context.Context, requested, available, clientID string) (string, *oauth.Error) {
	if requested != "" {
		if available != "" && !scope.Contains(requested, available) {
			return "", oauth.ErrInvalidScope.WithDescription("An unsupported scope was requested")
		}
		exists, err := c.negotiator.Exists(ctx, requested, clientID)
		if err != nil {
			c.logger.Error("scope lookup failed", "client_id", clientID, "error", err)
			return "", oauth.ErrServerError
		}
		if !exists {
			return "", oauth.ErrInvalidScope.WithDescription("An unsupported scope was requested")
		}
		return requested, nil
	}

	if available != "" {
		return available, nil
	}

	def, forceError, err := c.negotiator.Default(ctx, clientID)
	if err != nil {
		c.logger.Error("default scope lookup failed", "client_id", clientID, "error", err)
		return "", oauth.ErrServerError
	}
	if forceError {
		return "", oauth.ErrInvalidScope.WithDescription("This application requires you specify a scope parameter")
	}
	if def != nil {
		return *def, nil
	}
	return "", nil
}
