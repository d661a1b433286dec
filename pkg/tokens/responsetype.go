// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"net/url"
	"strconv"

	"github.com/grantline/oauthserver/pkg/scope"
)

// Response type names accepted at the authorize endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// AuthorizeParams is the validated, approved authorization context a
// response type turns into redirect parameters.
type AuthorizeParams struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string
	State       string

	// Nonce is echoed into the ID token when the openid scope is present.
	Nonce string

	// CodeChallenge and CodeChallengeMethod carry the PKCE binding for the
	// code response type.
	CodeChallenge       string
	CodeChallengeMethod string
}

// ResponseType builds the redirect parameters for one authorize-endpoint
// response_type value. Implementations are registered by name; unknown
// names are rejected before any of this runs.
type ResponseType interface {
	// Name returns the response_type value this implementation serves.
	Name() string

	// AuthorizeResponse produces the redirect parameters and whether they
	// belong in the URI fragment rather than the query.
	AuthorizeResponse(ctx context.Context, params AuthorizeParams) (url.Values, bool, error)
}

// CodeResponseType issues a single-use authorization code (response_type=code).
type CodeResponseType struct {
	issuer   *CodeIssuer
	idTokens *IDTokenGenerator
}

// NewCodeResponseType creates a CodeResponseType. The ID token generator may
// be nil when OpenID Connect is not in play.
func NewCodeResponseType(issuer *CodeIssuer, idTokens *IDTokenGenerator) *CodeResponseType {
	return &CodeResponseType{issuer: issuer, idTokens: idTokens}
}

// Name implements ResponseType.
func (t *CodeResponseType) Name() string { return ResponseTypeCode }

// AuthorizeResponse mints a code and returns it as query parameters, with
// the state echoed verbatim when present.
func (t *CodeResponseType) AuthorizeResponse(ctx context.Context, params AuthorizeParams) (url.Values, bool, error) {
	codeParams := CodeParams{
		ClientID:            params.ClientID,
		UserID:              params.UserID,
		RedirectURI:         params.RedirectURI,
		Scope:               params.Scope,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
	}

	// An openid scope binds an ID token to the code now, so redemption can
	// return it without re-deriving the authorization context.
	if t.idTokens != nil && scope.HasOpenID(params.Scope) {
		idToken, err := t.idTokens.CreateIDToken(ctx, params.ClientID, params.UserID, params.Nonce, "")
		if err != nil {
			return nil, false, err
		}
		codeParams.IDToken = idToken
	}

	code, err := t.issuer.CreateAuthorizationCode(ctx, codeParams)
	if err != nil {
		return nil, false, err
	}

	values := url.Values{"code": {code}}
	if params.State != "" {
		values.Set("state", params.State)
	}
	return values, false, nil
}

// TokenResponseType issues an access token directly (response_type=token,
// the implicit flow). Refresh tokens are never issued this way and the
// parameters travel in the URI fragment.
type TokenResponseType struct {
	generator AccessTokenGenerator
	idTokens  *IDTokenGenerator
}

// NewTokenResponseType creates a TokenResponseType. The ID token generator
// may be nil when OpenID Connect is not in play.
func NewTokenResponseType(generator AccessTokenGenerator, idTokens *IDTokenGenerator) *TokenResponseType {
	return &TokenResponseType{generator: generator, idTokens: idTokens}
}

// Name implements ResponseType.
func (t *TokenResponseType) Name() string { return ResponseTypeToken }

// AuthorizeResponse mints an access token and returns it as fragment
// parameters per RFC 6749 §4.2.2.
func (t *TokenResponseType) AuthorizeResponse(ctx context.Context, params AuthorizeParams) (url.Values, bool, error) {
	resp, err := t.generator.CreateAccessToken(ctx, params.ClientID, params.UserID, params.Scope, false)
	if err != nil {
		return nil, true, err
	}

	values := url.Values{
		"access_token": {resp.AccessToken},
		"token_type":   {resp.TokenType},
	}
	if resp.ExpiresIn > 0 {
		values.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
	}
	if resp.Scope != "" {
		values.Set("scope", resp.Scope)
	}
	if params.State != "" {
		values.Set("state", params.State)
	}

	if t.idTokens != nil && scope.HasOpenID(params.Scope) {
		idToken, err := t.idTokens.CreateIDToken(ctx, params.ClientID, params.UserID, params.Nonce, resp.AccessToken)
		if err != nil {
			return nil, true, err
		}
		values.Set("id_token", idToken)
	}

	return values, true, nil
}

var (
	_ ResponseType = (*CodeResponseType)(nil)
	_ ResponseType = (*TokenResponseType)(nil)
)
