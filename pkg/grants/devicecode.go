// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// DeviceCodeGrant is the polling half of the device authorization flow
// (RFC 8628 §3.4): the device presents its device code until the end user
// approves it out of band.
type DeviceCodeGrant struct {
	codes storage.DeviceCodeStore
}

// NewDeviceCodeGrant creates the device_code grant.
func NewDeviceCodeGrant(codes storage.DeviceCodeStore) *DeviceCodeGrant {
	return &DeviceCodeGrant{codes: codes}
}

// Name implements GrantType.
func (g *DeviceCodeGrant) Name() string { return TypeDeviceCode }

// Validate resolves the device code for the polling client. An unapproved
// pair answers authorization_pending so the device keeps polling; an
// expired pair answers code_expired; an unknown one bad_verification_code.
func (g *DeviceCodeGrant) Validate(ctx context.Context, req *oauth.Request) (*Result, *oauth.Error) {
	deviceCode := req.Value("device_code")
	if deviceCode == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription(`Missing parameter: "device_code" is required`)
	}

	// Device clients are typically public and send client_id in the body;
	// the lookup is scoped to it so one client cannot poll another's code.
	clientID := req.Value("client_id")

	code, err := g.codes.GetDeviceCode(ctx, deviceCode, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrBadVerificationCode.WithDescription("The device code is invalid")
		}
		return nil, oauth.ErrServerError
	}

	if time.Now().After(code.ExpiresAt) {
		return nil, oauth.ErrCodeExpired.WithDescription("The device code has expired")
	}
	if code.UserID == "" {
		return nil, oauth.ErrAuthorizationPending.WithDescription("The authorization request is still pending")
	}

	return &Result{
		ClientID:       code.ClientID,
		UserID:         code.UserID,
		Scope:          code.Scope,
		IncludeRefresh: true,
		DeviceCode:     code.DeviceCode,
	}, nil
}

// CreateToken mints the response and consumes the device code so the pair
// cannot be redeemed twice.
func (g *DeviceCodeGrant) CreateToken(ctx context.Context, gen tokens.AccessTokenGenerator, result *Result, scope string) (*tokens.Response, error) {
	resp, err := gen.CreateAccessToken(ctx, result.ClientID, result.UserID, scope, result.IncludeRefresh)
	if err != nil {
		return nil, err
	}
	if err := g.codes.ConsumeDeviceCode(ctx, result.DeviceCode); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrBadVerificationCode.WithDescription("The device code is invalid")
		}
		return nil, fmt.Errorf("failed to consume device code: %w", err)
	}
	return resp, nil
}

var _ GrantType = (*DeviceCodeGrant)(nil)
