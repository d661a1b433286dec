// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/grants"
	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/scope"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// AuthorizeConfig shapes authorize-endpoint validation.
type AuthorizeConfig struct {
	// AllowImplicit enables response_type=token.
	AllowImplicit bool

	// EnforceState requires the state parameter.
	EnforceState bool

	// RequireExactRedirectURI compares redirect URIs byte for byte. When
	// off, a supplied URI matches any registered URI it extends.
	RequireExactRedirectURI bool
}

// AuthorizeRequest is a validated authorize-endpoint request, ready to be
// completed once the host has authenticated the end user and collected
// their decision.
type AuthorizeRequest struct {
	Client       *storage.Client
	ResponseType string
	RedirectURI  string
	Scope        string
	State        string
	Nonce        string

	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeError is an authorize-endpoint failure plus delivery routing:
// before the client and redirect URI are trusted the error is a direct
// response, afterwards it travels back on the redirect.
type AuthorizeError struct {
	Err *oauth.Error

	// RedirectURI is empty for direct responses.
	RedirectURI string
	State       string
	UseFragment bool
}

// RedirectURL renders the error redirect, or "" for direct responses.
func (e *AuthorizeError) RedirectURL() string {
	if e.RedirectURI == "" {
		return ""
	}
	params := url.Values{"error": {e.Err.Code}}
	if e.Err.Description != "" {
		params.Set("error_description", e.Err.Description)
	}
	if e.Err.URI != "" {
		params.Set("error_uri", e.Err.URI)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}
	u, err := oauth.BuildRedirectURL(e.RedirectURI, params, e.UseFragment)
	if err != nil {
		return ""
	}
	return u
}

// AuthorizeController validates authorize-endpoint requests and completes
// them after the resource owner's decision. Validation is idempotent; a
// host typically validates on GET to render the consent page, then
// validates again and completes on the form POST.
type AuthorizeController struct {
	clients       storage.ClientStore
	negotiator    *scope.Negotiator
	responseTypes map[string]tokens.ResponseType
	config        AuthorizeConfig
	logger        *slog.Logger
}

// NewAuthorizeController creates an AuthorizeController over a string-keyed
// response type registry.
func NewAuthorizeController(
	clients storage.ClientStore,
	negotiator *scope.Negotiator,
	responseTypes []tokens.ResponseType,
	config AuthorizeConfig,
	logger *slog.Logger,
) *AuthorizeController {
	if logger == nil {
		logger = slog.Default()
	}
	registry := make(map[string]tokens.ResponseType, len(responseTypes))
	for _, rt := range responseTypes {
		registry[rt.Name()] = rt
	}
	return &AuthorizeController{
		clients:       clients,
		negotiator:    negotiator,
		responseTypes: registry,
		config:        config,
		logger:        logger,
	}
}

// ValidateAuthorizeRequest checks the request without side effects. Errors
// raised before the client and redirect URI are established come back with
// an empty RedirectURI and must be shown directly, never redirected.
func (c *AuthorizeController) ValidateAuthorizeRequest(ctx context.Context, req *oauth.Request) (*AuthorizeRequest, *AuthorizeError) {
	clientID := req.Value("client_id")
	if clientID == "" {
		return nil, direct(oauth.ErrInvalidClient.WithDescription("No client id supplied"))
	}

	client, err := c.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, direct(oauth.ErrInvalidClient.WithDescription("The client id supplied is invalid"))
		}
		c.logger.Error("client lookup failed", "client_id", clientID, "error", err)
		return nil, direct(oauth.ErrServerError)
	}

	redirectURI, errResp := c.resolveRedirectURI(client, req.Value("redirect_uri"))
	if errResp != nil {
		return nil, direct(errResp)
	}

	// The redirect URI is trusted from here on; subsequent failures are
	// delivered on it.
	state := req.Value("state")
	responseType := req.Value("response_type")
	useFragment := responseType == tokens.ResponseTypeToken

	fail := func(e *oauth.Error) *AuthorizeError {
		return &AuthorizeError{Err: e, RedirectURI: redirectURI, State: state, UseFragment: useFragment}
	}

	switch responseType {
	case tokens.ResponseTypeCode:
	case tokens.ResponseTypeToken:
		if !c.config.AllowImplicit {
			return nil, fail(oauth.ErrUnsupportedResponseType.WithDescription("implicit grant type not supported"))
		}
	case "":
		return nil, fail(oauth.ErrInvalidRequest.WithDescription("Invalid or missing response type"))
	default:
		return nil, fail(oauth.ErrUnsupportedResponseType.WithDescription("The response type %q is not supported", responseType))
	}
	if _, ok := c.responseTypes[responseType]; !ok {
		return nil, fail(oauth.ErrUnsupportedResponseType.WithDescription("The response type %q is not supported", responseType))
	}

	// The responding grant must be permitted for the client. The code flow
	// is checked again at redemption, but the implicit flow issues the token
	// right here, so this is its only gate.
	requiredGrant := grants.TypeAuthorizationCode
	if responseType == tokens.ResponseTypeToken {
		requiredGrant = grants.TypeImplicit
	}
	if !client.HasGrantType(requiredGrant) {
		return nil, fail(oauth.ErrUnauthorizedClient.WithDescription("The grant type is unauthorized for this client_id"))
	}

	if c.config.EnforceState && state == "" {
		return nil, fail(oauth.ErrInvalidRequest.WithDescription("The state parameter is required"))
	}

	challenge := req.Value("code_challenge")
	challengeMethod := req.Value("code_challenge_method")
	if challenge != "" {
		switch challengeMethod {
		case crypto.PKCEMethodS256, crypto.PKCEMethodPlain:
		case "":
			challengeMethod = crypto.PKCEMethodPlain
		default:
			return nil, fail(oauth.ErrChallengeMethodInvalid.WithDescription(
				"Unknown PKCE code challenge method %q", challengeMethod))
		}
	} else if challengeMethod != "" {
		return nil, fail(oauth.ErrInvalidRequest.WithDescription("The code challenge method requires a code challenge"))
	}

	requestedScope, errResp := c.negotiateScope(ctx, req.Value("scope"), client)
	if errResp != nil {
		return nil, fail(errResp)
	}

	return &AuthorizeRequest{
		Client:              client,
		ResponseType:        responseType,
		RedirectURI:         redirectURI,
		Scope:               requestedScope,
		State:               state,
		Nonce:               req.Value("nonce"),
		CodeChallenge:       challenge,
		CodeChallengeMethod: challengeMethod,
	}, nil
}

// HandleAuthorizeRequest validates the request and, if the resource owner
// approved, builds the success redirect. userID identifies the approving
// user and ends up bound to the issued code or token.
func (c *AuthorizeController) HandleAuthorizeRequest(ctx context.Context, req *oauth.Request, authorized bool, userID string) (string, *AuthorizeError) {
	areq, aerr := c.ValidateAuthorizeRequest(ctx, req)
	if aerr != nil {
		return "", aerr
	}
	return c.CompleteAuthorizeRequest(ctx, areq, authorized, userID)
}

// CompleteAuthorizeRequest turns a validated request and the user's decision
// into the final redirect URL.
func (c *AuthorizeController) CompleteAuthorizeRequest(ctx context.Context, areq *AuthorizeRequest, authorized bool, userID string) (string, *AuthorizeError) {
	useFragment := areq.ResponseType == tokens.ResponseTypeToken
	fail := func(e *oauth.Error) *AuthorizeError {
		return &AuthorizeError{Err: e, RedirectURI: areq.RedirectURI, State: areq.State, UseFragment: useFragment}
	}

	if !authorized {
		return "", fail(oauth.ErrAccessDenied.WithDescription("The user denied access to your application"))
	}

	rt := c.responseTypes[areq.ResponseType]
	params, fragment, err := rt.AuthorizeResponse(ctx, tokens.AuthorizeParams{
		ClientID:            areq.Client.ID,
		UserID:              userID,
		RedirectURI:         areq.RedirectURI,
		Scope:               areq.Scope,
		State:               areq.State,
		Nonce:               areq.Nonce,
		CodeChallenge:       areq.CodeChallenge,
		CodeChallengeMethod: areq.CodeChallengeMethod,
	})
	if err != nil {
		c.logger.Error("authorize response failed", "client_id", areq.Client.ID, "response_type", areq.ResponseType, "error", err)
		return "", fail(oauth.ErrServerError)
	}

	u, err := oauth.BuildRedirectURL(areq.RedirectURI, params, fragment)
	if err != nil {
		return "", fail(oauth.ErrServerError)
	}
	return u, nil
}

// resolveRedirectURI validates a supplied redirect URI against the client's
// registered set, or falls back to a sole registered URI. Errors here are
// never delivered by redirect.
func (c *AuthorizeController) resolveRedirectURI(client *storage.Client, supplied string) (string, *oauth.Error) {
	registered := client.RedirectURIList()

	if supplied == "" {
		if len(registered) != 1 {
			return "", oauth.ErrInvalidRequest.WithDescription("No redirect URI was supplied or stored")
		}
		return registered[0], nil
	}

	u, err := url.Parse(supplied)
	if err != nil {
		return "", oauth.ErrInvalidRequest.WithDescription("The redirect URI is invalid")
	}
	if u.Fragment != "" || strings.Contains(supplied, "#") {
		return "", oauth.ErrInvalidRequest.WithDescription("The redirect URI must not contain a fragment")
	}

	if len(registered) == 0 {
		// No registered URIs; the supplied one is accepted as-is. Hosts that
		// want strict registration reject such clients at registration time.
		return supplied, nil
	}
	for _, r := range registered {
		if c.config.RequireExactRedirectURI {
			if supplied == r {
				return supplied, nil
			}
		} else if strings.HasPrefix(supplied, r) {
			return supplied, nil
		}
	}
	return "", oauth.ErrRedirectURIMismatch.WithDescription("The redirect URI provided is missing or does not match")
}

// negotiateScope resolves the scope for the authorize request: a requested
// scope must exist for the client, otherwise the client default applies.
func (c *AuthorizeController) negotiateScope(ctx context.Context, requested string, client *storage.Client) (string, *oauth.Error) {
	if requested != "" {
		if client.Scope != "" && !scope.Contains(requested, client.Scope) {
			return "", oauth.ErrInvalidScope.WithDescription("An unsupported scope was requested")
		}
		exists, err := c.negotiator.Exists(ctx, requested, client.ID)
		if err != nil {
			c.logger.Error("scope lookup failed", "client_id", client.ID, "error", err)
			return "", oauth.ErrServerError
		}
		if !exists {
			return "", oauth.ErrInvalidScope.WithDescription("An unsupported scope was requested")
		}
		return requested, nil
	}

	def, forceError, err := c.negotiator.Default(ctx, client.ID)
	if err != nil {
		c.logger.Error("default scope lookup failed", "client_id", client.ID, "error", err)
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

// direct wraps an error for direct delivery.
func direct(e *oauth.Error) *AuthorizeError {
	return &AuthorizeError{Err: e}
}
