// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// SAMLAssertionResult is the identity extracted from a validated assertion.
type SAMLAssertionResult struct {
	// ClientID is the client identity the assertion vouches for, typically
	// derived from the assertion issuer.
	ClientID string

	// UserID is the assertion subject, when the assertion names a user.
	UserID string
}

// SAMLAssertionValidator validates SAML 2.0 assertions. XML signature
// checking, audience restriction and the rest of the SAML profile live with
// the host; the engine only cares about the resulting identity. A returned
// *oauth.Error is surfaced verbatim to the caller.
type SAMLAssertionValidator interface {
	ValidateAssertion(ctx context.Context, assertion string) (*SAMLAssertionResult, *oauth.Error)
}

// SAML2BearerGrant exchanges a SAML 2.0 assertion for tokens (RFC 7522).
// Like the JWT bearer grant it is self-authenticating and never issues
// refresh tokens.
type SAML2BearerGrant struct {
	validator SAMLAssertionValidator
}

// NewSAML2BearerGrant creates the saml2-bearer grant.
func NewSAML2BearerGrant(validator SAMLAssertionValidator) *SAML2BearerGrant {
	return &SAML2BearerGrant{validator: validator}
}

// Name implements GrantType.
func (g *SAML2BearerGrant) Name() string { return TypeSAML2Bearer }

// AuthenticatesClient marks the grant self-authenticating.
func (g *SAML2BearerGrant) AuthenticatesClient() {}

// Validate delegates assertion validation to the host's validator.
func (g *SAML2BearerGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	assertion := req.Value("assertion")
	if assertion == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription(`Missing parameters: "assertion" required`)
	}

	identity, errResp := g.validator.ValidateAssertion(ctx, assertion)
	if errResp != nil {
		return nil, errResp
	}

	return &Result{
		ClientID:       identity.ClientID,
		UserID:         identity.UserID,
		IncludeRefresh: false,
	}, nil
}

// CreateToken mints the response; assertion grants never add refresh tokens.
func (g *SAML2BearerGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	return gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, false)
}

var _ SelfAuthenticating = (*SAML2BearerGrant)(nil)
