// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// AuthorizationCodeGrant redeems single-use authorization codes minted by
// the authorize endpoint (RFC 6749 §4.1.3), including the PKCE check.
type AuthorizationCodeGrant struct {
	codes storage.AuthorizationCodeStore
}

// NewAuthorizationCodeGrant creates the authorization_code grant.
func NewAuthorizationCodeGrant(codes storage.AuthorizationCodeStore) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{codes: codes}
}

// Name implements GrantType.
func (g *AuthorizationCodeGrant) Name() string { return TypeAuthorizationCode }

// Validate resolves the presented code and checks redirect binding, expiry
// and PKCE. The code is not consumed here; consumption happens after a
// successful issue so a storage failure mid-issue does not burn the code.
func (g *AuthorizationCodeGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	codeValue := req.Value("code")
	if codeValue == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription(`Missing parameter: "code" is required`)
	}

	code, err := g.codes.GetAuthorizationCode(ctx, codeValue)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrInvalidGrant.WithDescription("Authorization code doesn't exist or is invalid for the client")
		}
		return nil, oauth.ErrServerError
	}

	// A code bound to a redirect URI at authorize time must be redeemed with
	// the identical value. url.Values has already percent-decoded both sides,
	// so the comparison is on decoded strings.
	if code.RedirectURI != "" {
		if req.Value("redirect_uri") != code.RedirectURI {
			return nil, oauth.ErrRedirectURIMismatch.WithDescription("The redirect URI is missing or do not match")
		}
	}

	if time.Now().After(code.ExpiresAt) {
		return nil, oauth.ErrInvalidGrant.WithDescription("The authorization code has expired")
	}

	if pkceErr := crypto.VerifyPKCE(req.Value("code_verifier"), code.CodeChallenge, code.CodeChallengeMethod); pkceErr != nil {
		return nil, pkceErr
	}

	return &Result{
		ClientID:          code.ClientID,
		UserID:            code.UserID,
		Scope:             code.Scope,
		IncludeRefresh:    true,
		AuthorizationCode: code.Code,
		IDToken:           code.IDToken,
	}, nil
}

// CreateToken mints the response, then consumes the code. The consume is the
// at-most-once gate: when two redemptions race, the one whose consume fails
// does not get a success response.
func (g *AuthorizationCodeGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	resp, err := gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, result.IncludeRefresh)
	if err != nil {
		return nil, err
	}
	resp.IDToken = result.IDToken

	if err := g.codes.ConsumeAuthorizationCode(ctx, result.AuthorizationCode); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrInvalidGrant.WithDescription("Authorization code doesn't exist or is invalid for the client")
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return resp, nil
}

var _ GrantType = (*AuthorizationCodeGrant)(nil)
