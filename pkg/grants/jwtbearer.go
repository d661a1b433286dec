// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// JWTBearerConfig configures assertion validation.
type JWTBearerConfig struct {
	// Audience is the value the assertion's aud claim must equal; typically
	// the token endpoint URL.
	Audience string
}

// JWTBearerGrant exchanges a signed JWT assertion for tokens (RFC 7523).
// The assertion's signature authenticates the client, so this is a
// self-authenticating grant; the issuer claim becomes the client identity.
type JWTBearerGrant struct {
	keys   storage.JWTBearerKeyStore
	jti    storage.JTIStore
	config JWTBearerConfig
}

// NewJWTBearerGrant creates the jwt-bearer grant. A nil JTI store disables
// replay protection.
func NewJWTBearerGrant(keys storage.JWTBearerKeyStore, jti storage.JTIStore, config JWTBearerConfig) *JWTBearerGrant {
	return &JWTBearerGrant{keys: keys, jti: jti, config: config}
}

// Name implements GrantType.
func (g *JWTBearerGrant) Name() string { return TypeJWTBearer }

// AuthenticatesClient marks the grant self-authenticating.
func (g *JWTBearerGrant) AuthenticatesClient() {}

// Validate verifies the assertion: signature against the key registered for
// its issuer/subject pair, required expiry in the future, nbf in the past
// when present, audience equal to the configured value, and an unused jti
// when replay protection is on.
func (g *JWTBearerGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	assertion := req.Value("assertion")
	if assertion == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription(`Missing parameters: "assertion" required`)
	}

	// Unverified pass only to learn whose key verifies the signature.
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(assertion, unverified); err != nil {
		return nil, oauth.ErrInvalidRequest.WithDescription("JWT is malformed")
	}
	issuer, err := unverified.GetIssuer()
	if err != nil || issuer == "" {
		return nil, oauth.ErrInvalidGrant.WithDescription("Invalid issuer (iss) provided")
	}
	subject, err := unverified.GetSubject()
	if err != nil || subject == "" {
		return nil, oauth.ErrInvalidGrant.WithDescription("Invalid subject (sub) provided")
	}

	material, err := g.keys.GetClientKey(ctx, issuer, subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrInvalidGrant.WithDescription("Invalid issuer (iss) or subject (sub) provided")
		}
		return nil, oauth.ErrServerError
	}

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithAudience(g.config.Audience),
	).ParseWithClaims(assertion, claims, func(t *jwt.Token) (any, error) {
		return assertionKey(t.Method.Alg(), material)
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, oauth.ErrInvalidGrant.WithDescription("JWT has expired")
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, oauth.ErrInvalidGrant.WithDescription("JWT cannot be used before the Not Before (nbf) time")
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, oauth.ErrInvalidGrant.WithDescription("Invalid audience (aud) provided")
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, oauth.ErrInvalidGrant.WithDescription("Expiration (exp) time must be present")
		default:
			return nil, oauth.ErrInvalidGrant.WithDescription("JWT failed signature verification")
		}
	}

	if g.jti != nil {
		if errResp := g.checkReplay(ctx, issuer, claims); errResp != nil {
			return nil, errResp
		}
	}

	return &Result{
		ClientID:       issuer,
		UserID:         subject,
		IncludeRefresh: false,
	}, nil
}

// checkReplay enforces single use of the assertion's jti, when one is
// present.
func (g *JWTBearerGrant) checkReplay(ctx context.Context, issuer string, claims jwt.MapClaims) *oauth.Error {
	jtiValue, ok := claims["jti"].(string)
	if !ok || jtiValue == "" {
		return nil
	}

	used, err := g.jti.IsJTIUsed(ctx, issuer, jtiValue)
	if err != nil {
		return oauth.ErrServerError
	}
	if used {
		return oauth.ErrInvalidGrant.WithDescription("JSON Token Identifier (jti) has already been used")
	}

	expiresAt := time.Now().Add(time.Hour)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	if err := g.jti.MarkJTIUsed(ctx, issuer, jtiValue, expiresAt); err != nil {
		return oauth.ErrServerError
	}
	return nil
}

// CreateToken mints the response; assertion grants never add refresh tokens.
func (g *JWTBearerGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	return gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, false)
}

// assertionKey adapts the registered key material to the assertion's signing
// algorithm: raw bytes for HMAC, PEM for RSA and ECDSA.
func assertionKey(alg, material string) (any, error) {
	switch {
	case strings.HasPrefix(alg, "HS"):
		return []byte(material), nil
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		return jwt.ParseRSAPublicKeyFromPEM([]byte(material))
	case strings.HasPrefix(alg, "ES"):
		return jwt.ParseECPublicKeyFromPEM([]byte(material))
	default:
		return nil, fmt.Errorf("unsupported assertion algorithm %q", alg)
	}
}

var _ SelfAuthenticating = (*JWTBearerGrant)(nil)
