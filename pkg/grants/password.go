// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// PasswordGrant exchanges resource-owner credentials for tokens
// (RFC 6749 §4.3). The client itself is authenticated by the controller;
// this grant only vouches for the user.
type PasswordGrant struct {
	users storage.UserCredentialStore
}

// NewPasswordGrant creates the password grant.
func NewPasswordGrant(users storage.UserCredentialStore) *PasswordGrant {
	return &PasswordGrant{users: users}
}

// Name implements GrantType.
func (g *PasswordGrant) Name() string { return TypePassword }

// Validate checks the username/password pair and resolves the user ID.
func (g *PasswordGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	username := req.Value("username")
	password := req.Value("password")
	if username == "" || password == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription(`Missing parameters: "username" and "password" required`)
	}

	ok, err := g.users.CheckUserCredentials(ctx, username, password)
	if err != nil {
		return nil, oauth.ErrServerError
	}
	if !ok {
		return nil, oauth.ErrInvalidGrant.WithDescription("Invalid username and password combination")
	}

	userID, err := g.users.GetUserID(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrInvalidGrant.WithDescription("Invalid username and password combination")
		}
		return nil, oauth.ErrServerError
	}

	return &Result{
		UserID:         userID,
		IncludeRefresh: true,
	}, nil
}

// CreateToken mints the response for the authenticated user.
func (g *PasswordGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	return gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, result.IncludeRefresh)
}

var _ GrantType = (*PasswordGrant)(nil)
