// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/grantline/oauthserver/pkg/clientauth"
	"github.com/grantline/oauthserver/pkg/crypto"
	"github.com/grantline/oauthserver/pkg/grants"
	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/scope"
	"github.com/grantline/oauthserver/pkg/storage"
)

// DeviceAuthorizationConfig shapes the device-authorization endpoint.
type DeviceAuthorizationConfig struct {
	// VerificationURI is where the end user enters the user code.
	VerificationURI string

	// Lifetime bounds the device/user code pair.
	Lifetime time.Duration

	// Interval is the minimum polling interval advertised to the device.
	Interval time.Duration
}

// DeviceAuthorizationResponse is the RFC 8628 §3.2 success body.
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval,omitempty"`
}

// DeviceAuthorizationController mints device/user code pairs, the issuance
// half of the device flow. The polling half lives in the device_code grant.
type DeviceAuthorizationController struct {
	codes      storage.DeviceCodeStore
	auth       *clientauth.Authenticator
	negotiator *scope.Negotiator
	config     DeviceAuthorizationConfig
	logger     *slog.Logger
}

// NewDeviceAuthorizationController creates a DeviceAuthorizationController.
func NewDeviceAuthorizationController(
	codes storage.DeviceCodeStore,
	auth *clientauth.Authenticator,
	negotiator *scope.Negotiator,
	config DeviceAuthorizationConfig,
	logger *slog.Logger,
) *DeviceAuthorizationController {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Lifetime <= 0 {
		config.Lifetime = storage.DefaultDeviceCodeTTL
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	return &DeviceAuthorizationController{
		codes:      codes,
		auth:       auth,
		negotiator: negotiator,
		config:     config,
		logger:     logger,
	}
}

// HandleDeviceAuthorizationRequest authenticates the (typically public)
// client, negotiates scope, and mints a device/user code pair.
func (c *DeviceAuthorizationController) HandleDeviceAuthorizationRequest(ctx context.Context, req *oauth.Request) (*DeviceAuthorizationResponse, *oauth.Error) {
	if req.Method != http.MethodPost {
		return nil, oauth.ErrMethodNotAllowed
	}

	client, errResp := c.auth.Authenticate(ctx, req)
	if errResp != nil {
		return nil, errResp
	}
	if !client.HasGrantType(grants.TypeDeviceCode) {
		return nil, oauth.ErrUnauthorizedClient.WithDescription("The grant type is unauthorized for this client_id")
	}

	requestedScope := req.Value("scope")
	if requestedScope != "" {
		exists, err := c.negotiator.Exists(ctx, requestedScope, client.ID)
		if err != nil {
			c.logger.Error("scope lookup failed", "client_id", client.ID, "error", err)
			return nil, oauth.ErrServerError
		}
		if !exists {
			return nil, oauth.ErrInvalidScope.WithDescription("An unsupported scope was requested")
		}
	}

	deviceCode, err := crypto.NewOpaqueToken()
	if err != nil {
		c.logger.Error("device code generation failed", "error", err)
		return nil, oauth.ErrServerError
	}
	userCode, err := crypto.NewUserCode()
	if err != nil {
		c.logger.Error("user code generation failed", "error", err)
		return nil, oauth.ErrServerError
	}

	record := &storage.DeviceCode{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   client.ID,
		ExpiresAt:  time.Now().Add(c.config.Lifetime),
		Scope:      requestedScope,
	}
	if err := c.codes.SetDeviceCode(ctx, record); err != nil {
		c.logger.Error("device code store failed", "client_id", client.ID, "error", err)
		return nil, oauth.ErrServerError
	}

	resp := &DeviceAuthorizationResponse{
		DeviceCode:      deviceCode,
		UserCode:        userCode,
		VerificationURI: c.config.VerificationURI,
		ExpiresIn:       int64(c.config.Lifetime / time.Second),
		Interval:        int64(c.config.Interval / time.Second),
	}
	if c.config.VerificationURI != "" {
		resp.VerificationURIComplete = c.config.VerificationURI + "?user_code=" + url.QueryEscape(userCode)
	}
	return resp, nil
}

// ApproveDeviceCode records the end user's decision for the pair identified
// by the user code. Hosts call this from whatever page serves the
// verification URI after authenticating the user.
func (c *DeviceAuthorizationController) ApproveDeviceCode(ctx context.Context, userCode, userID string) *oauth.Error {
	record, err := c.codes.GetDeviceCodeByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return oauth.ErrBadVerificationCode.WithDescription("The user code is invalid")
		}
		c.logger.Error("user code lookup failed", "error", err)
		return oauth.ErrServerError
	}
	if time.Now().After(record.ExpiresAt) {
		return oauth.ErrCodeExpired.WithDescription("The device code has expired")
	}

	if err := c.codes.ApproveDeviceCode(ctx, userCode, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return oauth.ErrBadVerificationCode.WithDescription("The user code is invalid")
		}
		c.logger.Error("device code approval failed", "error", err)
		return oauth.ErrServerError
	}
	return nil
}
