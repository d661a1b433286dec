// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
)

func issueToken(t *testing.T, s *storage.MemoryStorage, token *storage.AccessToken) {
	t.Helper()
	require.NoError(t, s.SetAccessToken(context.Background(), token))
}

func TestResourceController_HeaderToken(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, nil)
	ctx := context.Background()

	issueToken(t, s, &storage.AccessToken{
		Token:     "tok-1",
		ClientID:  "web-app",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
		Scope:     "read write",
	})

	req := oauth.NewRequest()
	req.Header.Set("Authorization", "Bearer tok-1")

	data, errResp := srv.Resource.VerifyResourceRequest(ctx, req, "read")
	require.Nil(t, errResp)
	assert.Equal(t, "user-1", data.UserID)

	// Case-insensitive scheme.
	req.Header.Set("Authorization", "bearer tok-1")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, req, "")
	assert.Nil(t, errResp)
}

func TestResourceController_SingleSourceRule(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, nil)
	ctx := context.Background()

	issueToken(t, s, &storage.AccessToken{Token: "tok-1", ClientID: "web-app", ExpiresAt: time.Now().Add(time.Hour)})

	req := oauth.NewRequest()
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Form.Set("access_token", "tok-1")

	_, errResp := srv.Resource.VerifyResourceRequest(ctx, req, "")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidRequest, errResp.Code)

	// Body and query alone are accepted.
	bodyOnly := oauth.NewRequest()
	bodyOnly.Form.Set("access_token", "tok-1")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, bodyOnly, "")
	assert.Nil(t, errResp)

	queryOnly := oauth.NewRequest()
	queryOnly.Query.Set("access_token", "tok-1")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, queryOnly, "")
	assert.Nil(t, errResp)
}

func TestResourceController_TokenErrors(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, nil)
	ctx := context.Background()

	issueToken(t, s, &storage.AccessToken{
		Token:     "tok-expired",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	issueToken(t, s, &storage.AccessToken{
		Token:     "tok-narrow",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(time.Hour),
		Scope:     "read",
	})

	// No token anywhere: 401.
	_, errResp := srv.Resource.VerifyResourceRequest(ctx, oauth.NewRequest(), "")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidToken, errResp.Code)
	assert.Equal(t, http.StatusUnauthorized, errResp.Status)

	// Unknown token: 401 invalid_token.
	req := oauth.NewRequest()
	req.Header.Set("Authorization", "Bearer ghost")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, req, "")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidToken, errResp.Code)

	// Expired token: 401 invalid_token.
	req.Header.Set("Authorization", "Bearer tok-expired")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, req, "")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidToken, errResp.Code)
	assert.Contains(t, errResp.Description, "expired")

	// Insufficient scope: 403 insufficient_scope.
	req.Header.Set("Authorization", "Bearer tok-narrow")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, req, "read write")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInsufficientScope, errResp.Code)
	assert.Equal(t, http.StatusForbidden, errResp.Status)

	// Malformed header.
	req.Header.Set("Authorization", "Token abc")
	_, errResp = srv.Resource.VerifyResourceRequest(ctx, req, "")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidRequest, errResp.Code)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", cfg.TokenType)
	assert.Equal(t, time.Hour, cfg.AccessTokenLifetime)
	assert.True(t, cfg.EnforceState)
	assert.True(t, cfg.RequireExactRedirectURI)
	assert.True(t, cfg.AllowPublicClients)
	assert.False(t, cfg.AllowImplicit)
	assert.Equal(t, http.StatusFound, cfg.AuthorizeRedirectStatus)
	assert.Equal(t, storage.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, storage.TypeMemory, DefaultConfig().Storage.Type)
}
