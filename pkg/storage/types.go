// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the persistence entities and collaborator
// interfaces the protocol engine depends on, plus in-memory and Redis
// implementations. The engine never assumes a concrete backend; hosts may
// implement any subset of these interfaces against their own infrastructure.
package storage

import (
	"context"
	"strings"
	"time"
)

// Client is a registered OAuth client. Immutable during a request; owned by
// the ClientStore collaborator.
type Client struct {
	// ID is the client identifier.
	ID string

	// Secret is the client secret. An empty secret marks a public client.
	Secret string

	// RedirectURIs is the space-delimited list of registered redirect URIs.
	RedirectURIs string

	// GrantTypes is the space-delimited list of grant types the client may
	// use. Empty means unrestricted.
	GrantTypes string

	// Scope is the scope set available to this client.
	Scope string

	// UserID is the owning user, if any.
	UserID string
}

// IsPublic reports whether the client has no secret.
func (c *Client) IsPublic() bool {
	return c.Secret == ""
}

// HasGrantType reports whether the client may use the given grant type.
// An empty registered list means the client is unrestricted.
func (c *Client) HasGrantType(grantType string) bool {
	if strings.TrimSpace(c.GrantTypes) == "" {
		return true
	}
	for _, gt := range strings.Fields(c.GrantTypes) {
		if gt == grantType {
			return true
		}
	}
	return false
}

// RedirectURIList splits the registered redirect URIs.
func (c *Client) RedirectURIList() []string {
	return strings.Fields(c.RedirectURIs)
}

// AccessToken is an issued bearer credential. A zero ExpiresAt marks a
// non-expiring token (configured lifetime of zero), never a past expiry.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    string
	ExpiresAt time.Time
	Scope     string
}

// Expired reports whether the token is past its expiry at the given instant.
// Non-expiring tokens never expire.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// RefreshToken is an issued refresh credential.
type RefreshToken struct {
	Token     string
	ClientID  string
	UserID    string
	ExpiresAt time.Time
	Scope     string
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// AuthorizationCode is a single-use code minted by the authorize endpoint.
// Codes always expire; a stored code with a zero ExpiresAt is a malformed
// record and must fail loudly, not read as "invalid input".
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	RedirectURI string
	ExpiresAt   time.Time
	Scope       string

	// CodeChallenge and CodeChallengeMethod carry the PKCE binding, if the
	// client supplied one at authorization time.
	CodeChallenge       string
	CodeChallengeMethod string

	// IDToken is an optional pre-built OpenID Connect ID token returned
	// alongside the access token at redemption.
	IDToken string
}

// DeviceCode is a device/user code pair for the RFC 8628 flow. UserID stays
// empty until the end user approves out of band; its presence is the
// approval signal the polling grant waits for.
type DeviceCode struct {
	DeviceCode string
	UserCode   string
	ClientID   string
	ExpiresAt  time.Time
	Scope      string
	UserID     string
}

// SigningKey is the key material and algorithm configured for a client (or
// globally, when stored under the empty client ID).
type SigningKey struct {
	PublicKey  string
	PrivateKey string
	Algorithm  string
}

// ClientStore resolves registered clients.
type ClientStore interface {
	// GetClient returns the client or ErrNotFound.
	GetClient(ctx context.Context, id string) (*Client, error)
}

// ClientCredentialStore verifies client credentials.
type ClientCredentialStore interface {
	// CheckClientCredentials reports whether the id/secret pair is valid.
	CheckClientCredentials(ctx context.Context, id, secret string) (bool, error)
}

// UserCredentialStore verifies resource-owner credentials for the password
// grant and resolves the owning user identifier.
type UserCredentialStore interface {
	CheckUserCredentials(ctx context.Context, username, password string) (bool, error)
	// GetUserID returns the user identifier for a username, or ErrNotFound.
	GetUserID(ctx context.Context, username string) (string, error)
}

// AccessTokenStore persists issued access tokens.
type AccessTokenStore interface {
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	SetAccessToken(ctx context.Context, token *AccessToken) error
}

// RefreshTokenStore persists issued refresh tokens.
type RefreshTokenStore interface {
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	SetRefreshToken(ctx context.Context, token *RefreshToken) error
	// RevokeRefreshToken removes a refresh token. Returns ErrNotFound when
	// the token does not exist.
	RevokeRefreshToken(ctx context.Context, token string) error
}

// AuthorizationCodeStore persists authorization codes. Implementations must
// provide at-most-once consume semantics: two concurrent
// ConsumeAuthorizationCode calls for the same code must not both succeed.
type AuthorizationCodeStore interface {
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	SetAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeAuthorizationCode atomically removes the code, returning
	// ErrNotFound if it was already consumed or never existed.
	ConsumeAuthorizationCode(ctx context.Context, code string) error
}

// DeviceCodeStore persists device/user code pairs.
type DeviceCodeStore interface {
	// GetDeviceCode returns the record for the device code, scoped to the
	// polling client, or ErrNotFound.
	GetDeviceCode(ctx context.Context, deviceCode, clientID string) (*DeviceCode, error)
	// GetDeviceCodeByUserCode resolves the record the end user is approving.
	GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)
	SetDeviceCode(ctx context.Context, code *DeviceCode) error
	// ApproveDeviceCode records the end user's approval by binding their
	// user ID to the pair identified by the user code.
	ApproveDeviceCode(ctx context.Context, userCode, userID string) error
	// ConsumeDeviceCode removes the record after a successful token issue.
	ConsumeDeviceCode(ctx context.Context, deviceCode string) error
}

// ScopeStore resolves scope existence and defaults. The engine layers the
// reserved-scope rules (openid, offline_access) on top via the scope package.
type ScopeStore interface {
	// ScopeExists reports whether every token in scope is known, optionally
	// restricted to a client ("" means any client).
	ScopeExists(ctx context.Context, scope, clientID string) (bool, error)
	// GetDefaultScope returns the default scope for a client. A nil scope
	// means no default is configured and scope is optional; the sentinel
	// ErrScopeRequired signals the caller must reject scope-less requests.
	GetDefaultScope(ctx context.Context, clientID string) (*string, error)
}

// KeyStore resolves signing key material per client. Implementations may
// fall back to a global key when no client-specific key is registered.
type KeyStore interface {
	GetPublicKey(ctx context.Context, clientID string) (string, error)
	GetPrivateKey(ctx context.Context, clientID string) (string, error)
	GetSigningAlgorithm(ctx context.Context, clientID string) (string, error)
}

// JWTBearerKeyStore resolves the verification key for JWT-bearer assertions,
// keyed by the assertion's issuer and subject.
type JWTBearerKeyStore interface {
	// GetClientKey returns the PEM public key or shared secret registered
	// for the issuer/subject pair, or ErrNotFound.
	GetClientKey(ctx context.Context, issuer, subject string) (string, error)
}

// splitScope splits a space-delimited scope string into its tokens.
func splitScope(scope string) []string {
	return strings.Fields(scope)
}

// JTIStore is an optional capability for JWT-bearer replay protection.
// Backends that implement it reject assertions whose jti was seen before.
type JTIStore interface {
	IsJTIUsed(ctx context.Context, issuer, jti string) (bool, error)
	MarkJTIUsed(ctx context.Context, issuer, jti string, expiresAt time.Time) error
}
