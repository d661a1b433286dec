// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/storage"
)

// CodeIssuer mints and persists single-use authorization codes for the
// authorize endpoint. Redemption happens in the authorization_code grant.
type CodeIssuer struct {
	codes    storage.AuthorizationCodeStore
	lifetime time.Duration
}

// NewCodeIssuer creates a CodeIssuer. A non-positive lifetime falls back to
// the conventional ten minutes.
func NewCodeIssuer(codes storage.AuthorizationCodeStore, lifetime time.Duration) *CodeIssuer {
	if lifetime <= 0 {
		lifetime = storage.DefaultAuthCodeTTL
	}
	return &CodeIssuer{codes: codes, lifetime: lifetime}
}

// CodeParams carries the authorization context bound into a code at issue
// time and verified at redemption.
type CodeParams struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string

	// CodeChallenge and CodeChallengeMethod carry the PKCE binding.
	CodeChallenge       string
	CodeChallengeMethod string

	// IDToken is a pre-built ID token returned alongside the access token
	// when the code is redeemed (openid scope).
	IDToken string
}

// CreateAuthorizationCode mints an opaque code and persists it with its
// binding context. The code value is returned for the redirect.
func (i *CodeIssuer) CreateAuthorizationCode(ctx context.Context, params CodeParams) (string, error) {
	value, err := crypto.NewOpaqueToken()
	if err != nil {
		return "", err
	}

	code := &storage.AuthorizationCode{
		Code:                value,
		ClientID:            params.ClientID,
		UserID:              params.UserID,
		RedirectURI:         params.RedirectURI,
		ExpiresAt:           time.Now().Add(i.lifetime),
		Scope:               params.Scope,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		IDToken:             params.IDToken,
	}
	if err := i.codes.SetAuthorizationCode(ctx, code); err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}
	return value, nil
}

// Lifetime returns the configured code lifetime.
func (i *CodeIssuer) Lifetime() time.Duration {
	return i.lifetime
}
