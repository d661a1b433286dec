// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/storage"
)

// JWTConfig configures the self-encoded access token generator.
type JWTConfig struct {
	// Issuer is the iss claim on minted tokens.
	Issuer string

	// AccessLifetime bounds the exp claim. Must be positive; self-encoded
	// tokens cannot be non-expiring because nothing ever revokes them.
	AccessLifetime time.Duration

	// StoreEncodedToken additionally writes the signed string to the access
	// token store so hosts can list or revoke outstanding tokens.
	StoreEncodedToken bool
}

// JWTGenerator mints self-encoded access tokens: the signed JWS string is
// itself the credential. Verification re-derives the client from the
// unverified payload, looks up that client's public key, and re-verifies.
type JWTGenerator struct {
	keys    storage.KeyStore
	tokens  storage.AccessTokenStore
	refresh storage.RefreshTokenStore
	config  JWTConfig
}

// NewJWTGenerator creates a JWTGenerator. The token store may be nil unless
// StoreEncodedToken is set; the refresh store may be nil to disable refresh
// tokens.
func NewJWTGenerator(keys storage.KeyStore, tokens storage.AccessTokenStore, refresh storage.RefreshTokenStore, config JWTConfig) (*JWTGenerator, error) {
	if keys == nil {
		return nil, errors.New("key store is required")
	}
	if config.AccessLifetime <= 0 {
		config.AccessLifetime = storage.DefaultAccessTokenTTL
	}
	if config.StoreEncodedToken && tokens == nil {
		return nil, errors.New("token store is required when StoreEncodedToken is set")
	}
	return &JWTGenerator{keys: keys, tokens: tokens, refresh: refresh, config: config}, nil
}

// signingKey resolves the private key and method for a client.
func (g *JWTGenerator) signingKey(ctx context.Context, clientID string) (jwt.SigningMethod, any, error) {
	alg, err := g.keys.GetSigningAlgorithm(ctx, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve signing algorithm: %w", err)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}

	pemKey, err := g.keys.GetPrivateKey(ctx, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve private key: %w", err)
	}
	key, err := ParseSigningKey(alg, pemKey, true)
	if err != nil {
		return nil, nil, err
	}
	return method, key, nil
}

// CreateAccessToken builds, signs and returns the structured token. The
// signed string doubles as the opaque credential.
func (g *JWTGenerator) CreateAccessToken(ctx context.Context, clientID, userID, scope string, includeRefresh bool) (*Response, error) {
	method, key, err := g.signingKey(ctx, clientID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(g.config.AccessLifetime)
	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"iss": g.config.Issuer,
		"aud": clientID,
		"sub": userID,
		"exp": expiresAt.Unix(),
		"iat": now.Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	if g.config.StoreEncodedToken {
		stored := &storage.AccessToken{
			Token:     signed,
			ClientID:  clientID,
			UserID:    userID,
			ExpiresAt: expiresAt,
			Scope:     scope,
		}
		if err := g.tokens.SetAccessToken(ctx, stored); err != nil {
			return nil, fmt.Errorf("failed to store access token: %w", err)
		}
	}

	resp := &Response{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(g.config.AccessLifetime / time.Second),
		Scope:       scope,
	}

	if includeRefresh && g.refresh != nil {
		refreshValue, err := crypto.NewOpaqueToken()
		if err != nil {
			return nil, err
		}
		rt := &storage.RefreshToken{
			Token:     refreshValue,
			ClientID:  clientID,
			UserID:    userID,
			ExpiresAt: now.Add(storage.DefaultRefreshTokenTTL),
			Scope:     scope,
		}
		if err := g.refresh.SetRefreshToken(ctx, rt); err != nil {
			return nil, fmt.Errorf("failed to store refresh token: %w", err)
		}
		resp.RefreshToken = refreshValue
	}

	return resp, nil
}

// GetAccessTokenData verifies a self-encoded token. The aud claim names the
// client whose public key signs off on the token; signature and expiry are
// checked by the parser.
func (g *JWTGenerator) GetAccessTokenData(ctx context.Context, token string) (*storage.AccessToken, error) {
	// First pass without verification, only to learn which client's key to
	// fetch. Nothing from this pass is trusted.
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, unverified); err != nil {
		return nil, fmt.Errorf("%w: not a structured token", storage.ErrNotFound)
	}
	audience, err := unverified.GetAudience()
	if err != nil || len(audience) == 0 {
		return nil, fmt.Errorf("%w: token has no audience", storage.ErrNotFound)
	}
	clientID := audience[0]

	alg, err := g.keys.GetSigningAlgorithm(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signing algorithm: %w", err)
	}
	pemKey, err := g.keys.GetPublicKey(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve public key: %w", err)
	}
	key, err := ParseSigningKey(alg, pemKey, false)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithValidMethods([]string{alg})).Parse(token, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, storage.ErrExpired
		}
		return nil, fmt.Errorf("%w: signature verification failed", storage.ErrNotFound)
	}

	// Re-parse to materialize claims now that the signature is trusted.
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: not a structured token", storage.ErrNotFound)
	}

	data := &storage.AccessToken{
		Token:    token,
		ClientID: clientID,
	}
	if sub, err := claims.GetSubject(); err == nil {
		data.UserID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		data.ExpiresAt = exp.Time
	}
	if s, ok := claims["scope"].(string); ok {
		data.Scope = s
	}
	return data, nil
}

// ParseSigningKey turns PEM (or raw secret) key material into the key type
// the signing method expects. HMAC algorithms use the raw bytes; RSA and
// ECDSA expect PEM.
func ParseSigningKey(alg, material string, private bool) (any, error) {
	switch {
	case strings.HasPrefix(alg, "HS"):
		return []byte(material), nil
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		if private {
			key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(material))
			if err != nil {
				return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
			}
			return key, nil
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(material))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		return key, nil
	case strings.HasPrefix(alg, "ES"):
		if private {
			key, err := jwt.ParseECPrivateKeyFromPEM([]byte(material))
			if err != nil {
				return nil, fmt.Errorf("failed to parse EC private key: %w", err)
			}
			return key, nil
		}
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(material))
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

var _ AccessTokenGenerator = (*JWTGenerator)(nil)
