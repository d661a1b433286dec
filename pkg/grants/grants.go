// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package grants implements the token-endpoint grant types as stateless
// strategies. Each grant validates a request into an explicit Result and
// later turns that Result into a token response; no grant carries request
// state between the two calls.
package grants

import (
	"context"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// Grant type identifiers. The urn-form names follow RFC 7522, RFC 7523 and
// RFC 8628.
const (
	TypeAuthorizationCode = "authorization_code"
	TypeClientCredentials = "client_credentials"
	TypeRefreshToken      = "refresh_token"
	TypePassword          = "password"
	TypeJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	TypeSAML2Bearer       = "urn:ietf:params:oauth:grant-type:saml2-bearer"
	TypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"

	// TypeImplicit never appears as a grant_type parameter; it names the
	// implicit flow in client grant-type restriction lists, checked at the
	// authorize endpoint.
	TypeImplicit = "implicit"
)

// Result is the outcome of a successful grant validation. The controller
// reconciles ClientID against the authenticated client, negotiates the final
// scope against Scope, and hands the Result back to the grant for issuance.
type Result struct {
	// ClientID is the client the grant material is bound to. Empty when the
	// grant carries no client binding of its own (password grant); the
	// controller then fills in the authenticated client.
	ClientID string

	// UserID is the resource owner, when the grant identifies one.
	UserID string

	// Scope is the scope set bound to the grant material, "" when none.
	Scope string

	// IncludeRefresh reports whether this grant may be accompanied by a
	// refresh token.
	IncludeRefresh bool

	// AuthorizationCode is the redeemed code, consumed after a successful
	// issue. Set only by the authorization_code grant.
	AuthorizationCode string

	// IDToken is a pre-built OpenID Connect ID token bound to the redeemed
	// authorization code, echoed in the token response.
	IDToken string

	// RefreshToken is the presented refresh token, rotated after a
	// successful issue. Set only by the refresh_token grant.
	RefreshToken string

	// DeviceCode is the redeemed device code, consumed after a successful
	// issue. Set only by the device_code grant.
	DeviceCode string
}

// GrantType is one token-endpoint grant strategy. Validate inspects the
// request and either produces a Result or a protocol error; CreateToken
// mints the response for a validated Result, applying any post-issue
// effects (code consumption, refresh rotation).
type GrantType interface {
	// Name returns the grant_type value this strategy serves.
	Name() string

	// Validate checks the grant-specific request material. It never mints
	// credentials and has no side effects.
	Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error)

	// CreateToken mints the token response. scope is the final negotiated
	// scope, which may differ from result.Scope.
	CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error)
}

// SelfAuthenticating marks grants whose request material authenticates the
// client on its own (client assertions). The controller skips separate
// client authentication for these and trusts Result.ClientID.
type SelfAuthenticating interface {
	GrantType
	AuthenticatesClient()
}
