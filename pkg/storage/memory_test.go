// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *MemoryStorage {
	t.Helper()
	s := NewMemoryStorage(WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStorage_Clients(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetClient(ctx, &Client{
		ID:         "web-app",
		Secret:     "s3cret",
		GrantTypes: "authorization_code refresh_token",
	}))

	client, err := s.GetClient(ctx, "web-app")
	require.NoError(t, err)
	assert.Equal(t, "web-app", client.ID)
	assert.False(t, client.IsPublic())
	assert.True(t, client.HasGrantType("authorization_code"))
	assert.False(t, client.HasGrantType("password"))

	_, err = s.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.CheckClientCredentials(ctx, "web-app", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CheckClientCredentials(ctx, "web-app", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorage_UserCredentials(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetUser(ctx, "alice", "hunter2", "user-1"))

	ok, err := s.CheckUserCredentials(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CheckUserCredentials(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := s.GetUserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = s.GetUserID(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_AccessTokens(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetAccessToken(ctx, &AccessToken{
		Token:     "tok-1",
		ClientID:  "web-app",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
		Scope:     "read write",
	}))

	tok, err := s.GetAccessToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "web-app", tok.ClientID)
	assert.False(t, tok.Expired(time.Now()))

	// Non-expiring tokens are legal and never report expiry.
	require.NoError(t, s.SetAccessToken(ctx, &AccessToken{Token: "tok-forever", ClientID: "web-app"}))
	forever, err := s.GetAccessToken(ctx, "tok-forever")
	require.NoError(t, err)
	assert.False(t, forever.Expired(time.Now().Add(1000*time.Hour)))

	err = s.SetAccessToken(ctx, &AccessToken{Token: ""})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestMemoryStorage_ConsumeAuthorizationCodeOnce(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetAuthorizationCode(ctx, &AuthorizationCode{
		Code:      "code-1",
		ClientID:  "web-app",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ConsumeAuthorizationCode(ctx, "code-1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent consume may succeed")

	_, err := s.GetAuthorizationCode(ctx, "code-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_AuthorizationCodeRequiresExpiry(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.SetAuthorizationCode(ctx, &AuthorizationCode{Code: "code-x", ClientID: "c"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestMemoryStorage_DeviceCodes(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetDeviceCode(ctx, &DeviceCode{
		DeviceCode: "dev-1",
		UserCode:   "WDJB-MJHT",
		ClientID:   "tv-app",
		ExpiresAt:  time.Now().Add(30 * time.Minute),
		Scope:      "read",
	}))

	// Another client must not see the code.
	_, err := s.GetDeviceCode(ctx, "dev-1", "other-client")
	assert.ErrorIs(t, err, ErrNotFound)

	code, err := s.GetDeviceCode(ctx, "dev-1", "tv-app")
	require.NoError(t, err)
	assert.Empty(t, code.UserID)

	byUser, err := s.GetDeviceCodeByUserCode(ctx, "WDJB-MJHT")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", byUser.DeviceCode)

	require.NoError(t, s.ApproveDeviceCode(ctx, "WDJB-MJHT", "user-1"))
	code, err = s.GetDeviceCode(ctx, "dev-1", "tv-app")
	require.NoError(t, err)
	assert.Equal(t, "user-1", code.UserID)

	require.NoError(t, s.ConsumeDeviceCode(ctx, "dev-1"))
	_, err = s.GetDeviceCode(ctx, "dev-1", "tv-app")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetDeviceCodeByUserCode(ctx, "WDJB-MJHT")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_RefreshTokens(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetRefreshToken(ctx, &RefreshToken{
		Token:     "rt-1",
		ClientID:  "web-app",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(14 * 24 * time.Hour),
	}))

	tok, err := s.GetRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", tok.UserID)

	require.NoError(t, s.RevokeRefreshToken(ctx, "rt-1"))
	_, err = s.GetRefreshToken(ctx, "rt-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "rt-1"), ErrNotFound)
}

func TestMemoryStorage_Scopes(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetScope(ctx, "read", ""))
	require.NoError(t, s.SetScope(ctx, "admin", "ops-client"))

	ok, err := s.ScopeExists(ctx, "read", "any-client")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ScopeExists(ctx, "read admin", "any-client")
	require.NoError(t, err)
	assert.False(t, ok, "client-restricted scope must not match other clients")

	ok, err = s.ScopeExists(ctx, "read admin", "ops-client")
	require.NoError(t, err)
	assert.True(t, ok)

	// No default configured and not required: nil, nil.
	def, err := s.GetDefaultScope(ctx, "web-app")
	require.NoError(t, err)
	assert.Nil(t, def)

	require.NoError(t, s.SetDefaultScope(ctx, "web-app", "read"))
	def, err = s.GetDefaultScope(ctx, "web-app")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "read", *def)

	require.NoError(t, s.SetScopeRequired(ctx, "strict-app", true))
	_, err = s.GetDefaultScope(ctx, "strict-app")
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestMemoryStorage_JTIReplay(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	used, err := s.IsJTIUsed(ctx, "issuer", "jti-1")
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, s.MarkJTIUsed(ctx, "issuer", "jti-1", time.Now().Add(time.Hour)))
	used, err = s.IsJTIUsed(ctx, "issuer", "jti-1")
	require.NoError(t, err)
	assert.True(t, used)

	// Expired markers stop counting as used.
	require.NoError(t, s.MarkJTIUsed(ctx, "issuer", "jti-old", time.Now().Add(-time.Minute)))
	used, err = s.IsJTIUsed(ctx, "issuer", "jti-old")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestMemoryStorage_CleanupExpired(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetAccessToken(ctx, &AccessToken{
		Token:     "stale",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, s.SetAccessToken(ctx, &AccessToken{
		Token:     "fresh",
		ClientID:  "web-app",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	s.cleanupExpired()

	stats := s.Stats()
	assert.Equal(t, 1, stats.AccessTokens)
	_, err := s.GetAccessToken(ctx, "fresh")
	assert.NoError(t, err)
}
