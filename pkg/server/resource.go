// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/scope"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// ResourceController verifies bearer tokens presented to protected
// resources (RFC 6750): extraction from exactly one transport location,
// token resolution, expiry, and scope sufficiency.
type ResourceController struct {
	generator tokens.AccessTokenGenerator
	realm     string
	logger    *slog.Logger
}

// NewResourceController creates a ResourceController. The realm appears in
// WWW-Authenticate challenges.
func NewResourceController(generator tokens.AccessTokenGenerator, realm string, logger *slog.Logger) *ResourceController {
	if logger == nil {
		logger = slog.Default()
	}
	if realm == "" {
		realm = "Service"
	}
	return &ResourceController{generator: generator, realm: realm, logger: logger}
}

// Realm returns the protection realm.
func (c *ResourceController) Realm() string { return c.realm }

// VerifyResourceRequest extracts and verifies the bearer token, then checks
// that its scope covers requiredScope ("" skips the scope check). Returns
// the token data on success.
func (c *ResourceController) VerifyResourceRequest(ctx context.Context, req *oauth.Request, requiredScope string) (*storage.AccessToken, *oauth.Error) {
	tokenValue, errResp := ExtractBearerToken(req)
	if errResp != nil {
		return nil, errResp
	}

	data, err := c.generator.GetAccessTokenData(ctx, tokenValue)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, oauth.ErrInvalidToken.WithDescription("The access token provided is invalid")
		case errors.Is(err, storage.ErrExpired):
			return nil, oauth.ErrInvalidToken.WithDescription("The access token provided has expired")
		default:
			c.logger.Error("access token lookup failed", "error", err)
			return nil, oauth.ErrServerError
		}
	}
	if data.Expired(time.Now()) {
		return nil, oauth.ErrInvalidToken.WithDescription("The access token provided has expired")
	}

	if requiredScope != "" && !scope.Contains(requiredScope, data.Scope) {
		return nil, oauth.ErrInsufficientScope.WithDescription("The request requires higher privileges than provided by the access token")
	}
	return data, nil
}

// ExtractBearerToken pulls the bearer token from the Authorization header,
// the form body, or the query string. Exactly one location may carry it
// (RFC 6750 §2); more than one is malformed, none is a 401.
func ExtractBearerToken(req *oauth.Request) (string, *oauth.Error) {
	header := req.Header.Get("Authorization")
	form := req.FormValue("access_token")
	query := req.QueryValue("access_token")

	sources := 0
	if header != "" {
		sources++
	}
	if form != "" {
		sources++
	}
	if query != "" {
		sources++
	}
	if sources > 1 {
		return "", oauth.ErrInvalidRequest.WithDescription(
			"Only one method may be used to authenticate at a time (Auth header, GET or POST)")
	}

	switch {
	case header != "":
		const prefix = "Bearer "
		if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
			return "", oauth.ErrInvalidRequest.WithDescription("Malformed auth header")
		}
		return strings.TrimSpace(header[len(prefix):]), nil
	case form != "":
		return form, nil
	case query != "":
		return query, nil
	default:
		return "", oauth.ErrInvalidToken.WithDescription("The access token was not found")
	}
}
