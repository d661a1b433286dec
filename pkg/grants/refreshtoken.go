// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// RefreshTokenConfig controls rotation behavior.
type RefreshTokenConfig struct {
	// AlwaysIssueNewRefreshToken rotates the refresh token on every use: a
	// fresh one is issued with the response and the presented one revoked
	// once the new credentials are persisted.
	AlwaysIssueNewRefreshToken bool
}

// RefreshTokenGrant exchanges a refresh token for a fresh access token
// (RFC 6749 §6), optionally rotating the refresh token itself.
type RefreshTokenGrant struct {
	store  storage.RefreshTokenStore
	config RefreshTokenConfig
}

// NewRefreshTokenGrant creates the refresh_token grant.
func NewRefreshTokenGrant(store storage.RefreshTokenStore, config RefreshTokenConfig) *RefreshTokenGrant {
	return &RefreshTokenGrant{store: store, config: config}
}

// Name implements GrantType.
func (g *RefreshTokenGrant) Name() string { return TypeRefreshToken }

// Validate resolves the presented refresh token and checks expiry.
func (g *RefreshTokenGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	value := req.Value("refresh_token")
	if value == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription(`Missing parameter: "refresh_token" is required`)
	}

	token, err := g.store.GetRefreshToken(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrInvalidGrant.WithDescription("Invalid refresh token")
		}
		return nil, oauth.ErrServerError
	}
	if token.Expired(time.Now()) {
		return nil, oauth.ErrInvalidGrant.WithDescription("Refresh token has expired")
	}

	return &Result{
		ClientID:       token.ClientID,
		UserID:         token.UserID,
		Scope:          token.Scope,
		IncludeRefresh: g.config.AlwaysIssueNewRefreshToken,
		RefreshToken:   token.Token,
	}, nil
}

// CreateToken mints the response and, when rotating, revokes the presented
// refresh token only after the replacement is persisted. A crash between the
// two leaves both valid rather than neither.
func (g *RefreshTokenGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	resp, err := gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, result.IncludeRefresh)
	if err != nil {
		return nil, err
	}

	if g.config.AlwaysIssueNewRefreshToken && resp.RefreshToken != "" {
		if err := g.store.RevokeRefreshToken(ctx, result.RefreshToken); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to revoke rotated refresh token: %w", err)
		}
	}
	return resp, nil
}

var _ GrantType = (*RefreshTokenGrant)(nil)
