// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/storage"
)

const testSecret = "jwt-shared-secret-for-tests"

func newTestStorage(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	s := storage.NewMemoryStorage(storage.WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.SetSigningKey(context.Background(), "", &storage.SigningKey{
		PublicKey:  testSecret,
		PrivateKey: testSecret,
		Algorithm:  "HS256",
	}))
	return s
}

func TestBearerGenerator_CreateAccessToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen := NewBearerGenerator(store, store, DefaultBearerConfig())

	resp, err := gen.CreateAccessToken(ctx, "web-app", "user-1", "read write", true)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Len(t, resp.AccessToken, crypto.TokenLength)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "read write", resp.Scope)
	require.NotEmpty(t, resp.RefreshToken)

	// Both credentials were persisted with matching context.
	stored, err := gen.GetAccessTokenData(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web-app", stored.ClientID)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "read write", stored.Scope)

	rt, err := store.GetRefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rt.UserID)
}

func TestBearerGenerator_NoRefreshWhenNotRequested(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen := NewBearerGenerator(store, store, DefaultBearerConfig())
	resp, err := gen.CreateAccessToken(ctx, "web-app", "", "read", false)
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)
}

func TestBearerGenerator_NilRefreshStoreDisablesRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen := NewBearerGenerator(store, nil, DefaultBearerConfig())
	resp, err := gen.CreateAccessToken(ctx, "web-app", "user-1", "read", true)
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)
}

func TestBearerGenerator_ZeroLifetimeMeansNonExpiring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen := NewBearerGenerator(store, nil, BearerConfig{TokenType: "Bearer"})
	resp, err := gen.CreateAccessToken(ctx, "web-app", "", "", false)
	require.NoError(t, err)
	assert.Zero(t, resp.ExpiresIn)

	stored, err := gen.GetAccessTokenData(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.IsZero())
	assert.False(t, stored.Expired(time.Now().Add(1000*time.Hour)))
}

func TestJWTGenerator_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen, err := NewJWTGenerator(store, store, store, JWTConfig{
		Issuer:         "https://auth.example.com",
		AccessLifetime: time.Hour,
	})
	require.NoError(t, err)

	resp, err := gen.CreateAccessToken(ctx, "web-app", "user-1", "read", false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)

	data, err := gen.GetAccessTokenData(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web-app", data.ClientID)
	assert.Equal(t, "user-1", data.UserID)
	assert.Equal(t, "read", data.Scope)
	assert.False(t, data.Expired(time.Now()))
}

func TestJWTGenerator_RejectsTamperedToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen, err := NewJWTGenerator(store, nil, nil, JWTConfig{Issuer: "iss", AccessLifetime: time.Hour})
	require.NoError(t, err)

	// Same claims, wrong key.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "web-app",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("the-wrong-secret"))
	require.NoError(t, err)

	_, err = gen.GetAccessTokenData(ctx, forged)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJWTGenerator_RejectsExpiredToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen, err := NewJWTGenerator(store, nil, nil, JWTConfig{Issuer: "iss", AccessLifetime: time.Hour})
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "web-app",
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = gen.GetAccessTokenData(ctx, expired)
	assert.ErrorIs(t, err, storage.ErrExpired)
}

func TestIDTokenGenerator_Claims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen, err := NewIDTokenGenerator(store, IDTokenConfig{Issuer: "https://auth.example.com", Lifetime: time.Hour})
	require.NoError(t, err)

	idToken, err := gen.CreateIDToken(ctx, "web-app", "user-1", "nonce-1", "the-access-token")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})).ParseWithClaims(idToken, claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", claims["iss"])
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "web-app", claims["aud"])
	assert.Equal(t, "nonce-1", claims["nonce"])
	assert.NotNil(t, claims["auth_time"])

	sum := sha256.Sum256([]byte("the-access-token"))
	wantAtHash := base64.RawURLEncoding.EncodeToString(sum[:16])
	assert.Equal(t, wantAtHash, claims["at_hash"])
}

func TestAccessTokenHash_UnknownAlgorithm(t *testing.T) {
	t.Parallel()
	_, err := AccessTokenHash("none", "token")
	assert.Error(t, err)
}

func TestCodeIssuer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	issuer := NewCodeIssuer(store, 10*time.Minute)
	code, err := issuer.CreateAuthorizationCode(ctx, CodeParams{
		ClientID:            "web-app",
		UserID:              "user-1",
		RedirectURI:         "https://app.example.com/cb",
		Scope:               "read",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)
	require.NotEmpty(t, code)

	stored, err := store.GetAuthorizationCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "web-app", stored.ClientID)
	assert.Equal(t, "S256", stored.CodeChallengeMethod)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), stored.ExpiresAt, 5*time.Second)
}

func TestCodeResponseType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	idGen, err := NewIDTokenGenerator(store, IDTokenConfig{Issuer: "https://auth.example.com", Lifetime: time.Hour})
	require.NoError(t, err)
	rt := NewCodeResponseType(NewCodeIssuer(store, 10*time.Minute), idGen)
	assert.Equal(t, "code", rt.Name())

	params, fragment, err := rt.AuthorizeResponse(ctx, AuthorizeParams{
		ClientID:    "web-app",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/cb",
		Scope:       "openid read",
		State:       "xyz",
		Nonce:       "nonce-1",
	})
	require.NoError(t, err)
	assert.False(t, fragment)
	assert.Equal(t, "xyz", params.Get("state"))

	// The openid scope binds an ID token to the code for redemption.
	stored, err := store.GetAuthorizationCode(ctx, params.Get("code"))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.IDToken)
	assert.Equal(t, "user-1", stored.UserID)
}

func TestTokenResponseType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStorage(t)

	gen := NewBearerGenerator(store, store, DefaultBearerConfig())
	rt := NewTokenResponseType(gen, nil)
	assert.Equal(t, "token", rt.Name())

	params, fragment, err := rt.AuthorizeResponse(ctx, AuthorizeParams{
		ClientID: "web-app",
		UserID:   "user-1",
		Scope:    "read",
		State:    "xyz",
	})
	require.NoError(t, err)
	assert.True(t, fragment, "implicit responses travel in the fragment")
	assert.NotEmpty(t, params.Get("access_token"))
	assert.Equal(t, "Bearer", params.Get("token_type"))
	assert.Equal(t, "3600", params.Get("expires_in"))
	assert.Equal(t, "xyz", params.Get("state"))

	// Implicit never issues refresh tokens, even with a refresh store wired.
	assert.Empty(t, params.Get("refresh_token"))
}
