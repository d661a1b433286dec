// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokens implements the credential generators: opaque bearer access
// tokens, authorization codes, self-encoded JWT access tokens, and OpenID
// Connect ID tokens, plus the authorize-endpoint response types built on
// top of them.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/storage"
)

// Response is the token-endpoint success body (RFC 6749 §5.1).
type Response struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// AccessTokenGenerator mints access tokens and re-validates presented ones.
// The two halves live together because only the generator knows whether a
// token is a storage lookup (opaque) or self-encoded (JWT).
type AccessTokenGenerator interface {
	// CreateAccessToken mints and persists a fresh access token, optionally
	// accompanied by a refresh token when the grant permits one.
	CreateAccessToken(ctx context.Context, clientID, userID, scope string, includeRefresh bool) (*Response, error)

	// GetAccessTokenData resolves a presented token for resource access.
	// Returns storage.ErrNotFound for unknown tokens; expiry is the
	// caller's check.
	GetAccessTokenData(ctx context.Context, token string) (*storage.AccessToken, error)
}

// BearerConfig configures the opaque bearer token generator. Lifetimes of
// zero produce non-expiring credentials (stored with a null expiry).
type BearerConfig struct {
	TokenType       string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// DefaultBearerConfig returns the conventional one-hour access / two-week
// refresh lifetimes.
func DefaultBearerConfig() BearerConfig {
	return BearerConfig{
		TokenType:       "Bearer",
		AccessLifetime:  storage.DefaultAccessTokenTTL,
		RefreshLifetime: storage.DefaultRefreshTokenTTL,
	}
}

// BearerGenerator mints opaque access tokens backed by token storage.
// A nil refresh store disables refresh tokens entirely.
type BearerGenerator struct {
	tokens  storage.AccessTokenStore
	refresh storage.RefreshTokenStore
	config  BearerConfig
}

// NewBearerGenerator creates a BearerGenerator.
func NewBearerGenerator(tokens storage.AccessTokenStore, refresh storage.RefreshTokenStore, config BearerConfig) *BearerGenerator {
	if config.TokenType == "" {
		config.TokenType = "Bearer"
	}
	return &BearerGenerator{tokens: tokens, refresh: refresh, config: config}
}

// CreateAccessToken mints a fresh opaque token and persists it, plus a
// refresh token when requested and a refresh store is wired.
func (g *BearerGenerator) CreateAccessToken(ctx context.Context, clientID, userID, scope string, includeRefresh bool) (*Response, error) {
	value, err := crypto.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	token := &storage.AccessToken{
		Token:    value,
		ClientID: clientID,
		UserID:   userID,
		Scope:    scope,
	}
	if g.config.AccessLifetime > 0 {
		token.ExpiresAt = time.Now().Add(g.config.AccessLifetime)
	}

	if err := g.tokens.SetAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	resp := &Response{
		AccessToken: value,
		TokenType:   g.config.TokenType,
		Scope:       scope,
	}
	if g.config.AccessLifetime > 0 {
		resp.ExpiresIn = int64(g.config.AccessLifetime / time.Second)
	}

	if includeRefresh && g.refresh != nil {
		refreshValue, err := crypto.NewOpaqueToken()
		if err != nil {
			return nil, err
		}
		rt := &storage.RefreshToken{
			Token:    refreshValue,
			ClientID: clientID,
			UserID:   userID,
			Scope:    scope,
		}
		if g.config.RefreshLifetime > 0 {
			rt.ExpiresAt = time.Now().Add(g.config.RefreshLifetime)
		}
		if err := g.refresh.SetRefreshToken(ctx, rt); err != nil {
			return nil, fmt.Errorf("failed to store refresh token: %w", err)
		}
		resp.RefreshToken = refreshValue
	}

	return resp, nil
}

// GetAccessTokenData resolves an opaque token via storage lookup.
func (g *BearerGenerator) GetAccessTokenData(ctx context.Context, token string) (*storage.AccessToken, error) {
	return g.tokens.GetAccessToken(ctx, token)
}

var _ AccessTokenGenerator = (*BearerGenerator)(nil)
