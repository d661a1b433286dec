// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/grantline/oauthserver/pkg/storage"
)

// IDTokenConfig configures the OpenID Connect ID token generator.
type IDTokenConfig struct {
	// Issuer is the iss claim; typically the server's external URL.
	Issuer string

	// Lifetime bounds the exp claim.
	Lifetime time.Duration
}

// IDTokenGenerator mints OpenID Connect ID tokens for requests that carry
// the openid scope. Signing material comes from the key store, keyed by the
// audience client.
type IDTokenGenerator struct {
	keys   storage.KeyStore
	config IDTokenConfig
}

// NewIDTokenGenerator creates an IDTokenGenerator.
func NewIDTokenGenerator(keys storage.KeyStore, config IDTokenConfig) (*IDTokenGenerator, error) {
	if keys == nil {
		return nil, errors.New("key store is required")
	}
	if config.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if config.Lifetime <= 0 {
		config.Lifetime = storage.DefaultAccessTokenTTL
	}
	return &IDTokenGenerator{keys: keys, config: config}, nil
}

// CreateIDToken mints a signed ID token. The nonce is echoed when the
// authorization request carried one; accessToken, when non-empty, produces
// the at_hash claim binding the ID token to its sibling access token.
func (g *IDTokenGenerator) CreateIDToken(ctx context.Context, clientID, userID, nonce, accessToken string) (string, error) {
	alg, err := g.keys.GetSigningAlgorithm(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve signing algorithm: %w", err)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	pemKey, err := g.keys.GetPrivateKey(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve private key: %w", err)
	}
	key, err := ParseSigningKey(alg, pemKey, true)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":       g.config.Issuer,
		"sub":       userID,
		"aud":       clientID,
		"iat":       now.Unix(),
		"exp":       now.Add(g.config.Lifetime).Unix(),
		"auth_time": now.Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if accessToken != "" {
		atHash, err := AccessTokenHash(alg, accessToken)
		if err != nil {
			return "", err
		}
		claims["at_hash"] = atHash
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign ID token: %w", err)
	}
	return signed, nil
}

// AccessTokenHash computes the OIDC at_hash claim: the base64url encoding,
// without padding, of the left half of the token's hash. The hash function
// follows the signing algorithm's digest (SHA-256 for *256, and so on).
func AccessTokenHash(alg, accessToken string) (string, error) {
	var h hash.Hash
	switch {
	case strings.HasSuffix(alg, "256"):
		h = sha256.New()
	case strings.HasSuffix(alg, "384"):
		h = sha512.New384()
	case strings.HasSuffix(alg, "512"):
		h = sha512.New()
	default:
		return "", fmt.Errorf("no at_hash digest for signing algorithm %q", alg)
	}
	h.Write([]byte(accessToken))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}
