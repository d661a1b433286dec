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

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *storage.MemoryStorage) {
	t.Helper()
	ctx := context.Background()

	s := storage.NewMemoryStorage(storage.WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.SetClient(ctx, &storage.Client{
		ID:           "web-app",
		Secret:       "s3cret",
		RedirectURIs: "https://app.example.com/cb",
		Scope:        "read write",
	}))
	require.NoError(t, s.SetClient(ctx, &storage.Client{
		ID:         "svc",
		Secret:     "svc-secret",
		GrantTypes: "client_credentials",
		Scope:      "read",
	}))
	require.NoError(t, s.SetClient(ctx, &storage.Client{
		ID:         "tv-app",
		GrantTypes: "urn:ietf:params:oauth:grant-type:device_code",
	}))
	require.NoError(t, s.SetUser(ctx, "alice", "hunter2", "user-1"))
	require.NoError(t, s.SetScope(ctx, "read", ""))
	require.NoError(t, s.SetScope(ctx, "write", ""))

	cfg := DefaultConfig()
	cfg.Issuer = "https://auth.example.com"
	cfg.DeviceVerificationURI = "https://auth.example.com/device"
	cfg.AlwaysIssueNewRefreshToken = true
	// Most cases here exercise other checks; state enforcement has its own
	// tests.
	cfg.EnforceState = false
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(StoresFromBackend(s), cfg)
	require.NoError(t, err)
	return srv, s
}

func tokenRequest(form map[string]string) *oauth.Request {
	req := oauth.NewRequest()
	for k, v := range form {
		req.Form.Set(k, v)
	}
	return req
}

func TestTokenController_RequiresPOST(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	req := tokenRequest(map[string]string{"grant_type": "password"})
	req.Method = http.MethodGet

	_, errResp := srv.Token.HandleTokenRequest(context.Background(), req)
	require.NotNil(t, errResp)
	assert.Equal(t, http.StatusMethodNotAllowed, errResp.Status)
}

func TestTokenController_GrantTypeDispatch(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	_, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(nil))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidRequest, errResp.Code)

	_, errResp = srv.Token.HandleTokenRequest(ctx, tokenRequest(map[string]string{
		"grant_type": "urn:example:strange",
	}))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeUnsupportedGrantType, errResp.Code)
}

func TestTokenController_ClientCredentialsScenario(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	resp, errResp := srv.Token.HandleTokenRequest(context.Background(), tokenRequest(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "svc",
		"client_secret": "svc-secret",
	}))
	require.Nil(t, errResp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "read", resp.Scope, "client scope is the grant's bound scope")
	assert.Empty(t, resp.RefreshToken, "client credentials never issue refresh tokens")
}

func TestTokenController_UnauthorizedGrantType(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	// svc is restricted to client_credentials.
	_, errResp := srv.Token.HandleTokenRequest(context.Background(), tokenRequest(map[string]string{
		"grant_type":    "password",
		"client_id":     "svc",
		"client_secret": "svc-secret",
		"username":      "alice",
		"password":      "hunter2",
	}))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeUnauthorizedClient, errResp.Code)
}

func TestTokenController_PasswordGrant(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, nil)
	ctx := context.Background()

	resp, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(map[string]string{
		"grant_type":    "password",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"username":      "alice",
		"password":      "hunter2",
		"scope":         "read",
	}))
	require.Nil(t, errResp)
	require.NotEmpty(t, resp.RefreshToken)

	// The token is bound to the authenticated client, not left empty.
	stored, err := s.GetAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web-app", stored.ClientID)
	assert.Equal(t, "user-1", stored.UserID)
}

func TestTokenController_ScopeNegotiation(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	base := map[string]string{
		"grant_type":    "password",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"username":      "alice",
		"password":      "hunter2",
	}

	// Unknown scope is rejected.
	form := map[string]string{"scope": "galactic-domination"}
	for k, v := range base {
		form[k] = v
	}
	_, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(form))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidScope, errResp.Code)

	// No scope requested and none bound: empty scope is fine.
	resp, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(base))
	require.Nil(t, errResp)
	assert.Empty(t, resp.Scope)
}

func TestTokenController_ScopeMonotonicity(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, nil)
	ctx := context.Background()

	// A code bound to "read" cannot be redeemed for "read write".
	require.NoError(t, s.SetAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code:      "narrow",
		ClientID:  "web-app",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		Scope:     "read",
	}))

	_, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"code":          "narrow",
		"scope":         "read write",
	}))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidScope, errResp.Code)

	// A narrower request is allowed, and the code survives the failed attempt.
	resp, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"code":          "narrow",
		"scope":         "read",
	}))
	require.Nil(t, errResp)
	assert.Equal(t, "read", resp.Scope)
}

func TestTokenController_CodeBoundToOtherClient(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, s.SetAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code:      "code-svc",
		ClientID:  "svc",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	_, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"code":          "code-svc",
	}))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidGrant, errResp.Code)

	// The mismatch must not burn the code.
	_, err := s.GetAuthorizationCode(ctx, "code-svc")
	assert.NoError(t, err)
}

func TestTokenController_RefreshRotationScenario(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	// Obtain the first refresh token with the password grant.
	first, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(map[string]string{
		"grant_type":    "password",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"username":      "alice",
		"password":      "hunter2",
	}))
	require.Nil(t, errResp)
	require.NotEmpty(t, first.RefreshToken)

	refreshForm := map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"refresh_token": first.RefreshToken,
	}

	second, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(refreshForm))
	require.Nil(t, errResp)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEmpty(t, second.RefreshToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is dead.
	_, errResp = srv.Token.HandleTokenRequest(ctx, tokenRequest(refreshForm))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeInvalidGrant, errResp.Code)
}

func TestTokenController_DeviceFlowScenario(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	// The device obtains a code pair.
	devResp, errResp := srv.DeviceAuthorization.HandleDeviceAuthorizationRequest(ctx, tokenRequest(map[string]string{
		"client_id": "tv-app",
		"scope":     "read",
	}))
	require.Nil(t, errResp)
	assert.NotEmpty(t, devResp.DeviceCode)
	assert.Regexp(t, `^[A-Z]{4}-[A-Z]{4}$`, devResp.UserCode)
	assert.Equal(t, "https://auth.example.com/device", devResp.VerificationURI)
	assert.Contains(t, devResp.VerificationURIComplete, devResp.UserCode)
	assert.Positive(t, devResp.ExpiresIn)

	pollForm := map[string]string{
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
		"client_id":   "tv-app",
		"device_code": devResp.DeviceCode,
	}

	// Polling before approval answers authorization_pending.
	_, errResp = srv.Token.HandleTokenRequest(ctx, tokenRequest(pollForm))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeAuthorizationPending, errResp.Code)

	// The user approves out of band.
	require.Nil(t, srv.DeviceAuthorization.ApproveDeviceCode(ctx, devResp.UserCode, "user-1"))

	resp, errResp := srv.Token.HandleTokenRequest(ctx, tokenRequest(pollForm))
	require.Nil(t, errResp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "read", resp.Scope)

	// The pair is single-use.
	_, errResp = srv.Token.HandleTokenRequest(ctx, tokenRequest(pollForm))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeBadVerificationCode, errResp.Code)
}

func TestDeviceAuthorizationController_UnknownUserCode(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	errResp := srv.DeviceAuthorization.ApproveDeviceCode(context.Background(), "XXXX-XXXX", "user-1")
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeBadVerificationCode, errResp.Code)
}

func TestDeviceAuthorizationController_GrantRestriction(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	// svc is not allowed to use the device flow.
	_, errResp := srv.DeviceAuthorization.HandleDeviceAuthorizationRequest(context.Background(), tokenRequest(map[string]string{
		"client_id":     "svc",
		"client_secret": "svc-secret",
	}))
	require.NotNil(t, errResp)
	assert.Equal(t, oauth.ErrorCodeUnauthorizedClient, errResp.Code)
}
