// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStorageWithClient(client, "oauth:"), mr
}

func TestRedisStorage_Clients(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetClient(ctx, &Client{
		ID:           "web-app",
		Secret:       "s3cret",
		RedirectURIs: "https://app.example.com/cb",
		Scope:        "read write",
	}))

	client, err := s.GetClient(ctx, "web-app")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/cb", client.RedirectURIs)

	_, err = s.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.CheckClientCredentials(ctx, "web-app", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CheckClientCredentials(ctx, "missing", "whatever")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStorage_AccessTokenTTL(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetAccessToken(ctx, &AccessToken{
		Token:     "tok-1",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(time.Hour),
		Scope:     "read",
	}))

	tok, err := s.GetAccessToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "read", tok.Scope)

	// The record rides a native TTL.
	mr.FastForward(2 * time.Hour)
	_, err = s.GetAccessToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// A record already past its expiry is rejected loudly, not stored.
	err = s.SetAccessToken(ctx, &AccessToken{
		Token:     "tok-stale",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestRedisStorage_ConsumeAuthorizationCodeOnce(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetAuthorizationCode(ctx, &AuthorizationCode{
		Code:      "code-1",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	require.NoError(t, s.ConsumeAuthorizationCode(ctx, "code-1"))
	assert.ErrorIs(t, s.ConsumeAuthorizationCode(ctx, "code-1"), ErrNotFound)
	_, err := s.GetAuthorizationCode(ctx, "code-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage_AuthorizationCodePKCEFields(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetAuthorizationCode(ctx, &AuthorizationCode{
		Code:                "code-pkce",
		ClientID:            "native-app",
		UserID:              "user-1",
		RedirectURI:         "com.example.app:/cb",
		ExpiresAt:           time.Now().Add(10 * time.Minute),
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}))

	code, err := s.GetAuthorizationCode(ctx, "code-pkce")
	require.NoError(t, err)
	assert.Equal(t, "S256", code.CodeChallengeMethod)
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", code.CodeChallenge)
}

func TestRedisStorage_DeviceCodeApprovePreservesTTL(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetDeviceCode(ctx, &DeviceCode{
		DeviceCode: "dev-1",
		UserCode:   "WDJB-MJHT",
		ClientID:   "tv-app",
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}))

	require.NoError(t, s.ApproveDeviceCode(ctx, "WDJB-MJHT", "user-1"))

	code, err := s.GetDeviceCode(ctx, "dev-1", "tv-app")
	require.NoError(t, err)
	assert.Equal(t, "user-1", code.UserID)

	// Approval must not strip the TTL.
	mr.FastForward(time.Hour)
	_, err = s.GetDeviceCode(ctx, "dev-1", "tv-app")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage_DeviceCodeClientScoping(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetDeviceCode(ctx, &DeviceCode{
		DeviceCode: "dev-1",
		UserCode:   "BCDF-GHJK",
		ClientID:   "tv-app",
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}))

	_, err := s.GetDeviceCode(ctx, "dev-1", "other-client")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.ConsumeDeviceCode(ctx, "dev-1"))
	_, err = s.GetDeviceCodeByUserCode(ctx, "BCDF-GHJK")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorage_RefreshTokenRevoke(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetRefreshToken(ctx, &RefreshToken{
		Token:     "rt-1",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	require.NoError(t, s.RevokeRefreshToken(ctx, "rt-1"))
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "rt-1"), ErrNotFound)
}
