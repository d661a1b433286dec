// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/grantline/oauthserver/pkg/clientauth"
	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// ClientCredentialsGrant issues tokens directly to a confidential client
// (RFC 6749 §4.4). The credentials themselves are the grant, so this is a
// self-authenticating grant and public clients are refused regardless of
// server posture. No refresh token is ever issued (§4.4.3).
type ClientCredentialsGrant struct {
	auth *clientauth.Authenticator
}

// NewClientCredentialsGrant creates the client_credentials grant.
func NewClientCredentialsGrant(auth *clientauth.Authenticator) *ClientCredentialsGrant {
	return &ClientCredentialsGrant{auth: auth}
}

// Name implements GrantType.
func (g *ClientCredentialsGrant) Name() string { return TypeClientCredentials }

// AuthenticatesClient marks the grant self-authenticating.
func (g *ClientCredentialsGrant) AuthenticatesClient() {}

// Validate authenticates the client with public clients disallowed.
func (g *ClientCredentialsGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	client, errResp := g.auth.AuthenticateConfidential(ctx, req)
	if errResp != nil {
		return nil, errResp
	}
	return &Result{
		ClientID:       client.ID,
		UserID:         client.UserID,
		Scope:          client.Scope,
		IncludeRefresh: false,
	}, nil
}

// CreateToken mints the response. IncludeRefresh is always false here.
func (g *ClientCredentialsGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	return gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, false)
}

var _ SelfAuthenticating = (*ClientCredentialsGrant)(nil)
