// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the protocol engine: the token, authorize,
// device-authorization and resource controllers, wired from explicit
// configuration and the storage collaborators.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/grantline/oauthserver/pkg/storage"
)

// Config is the explicit configuration surface of the engine. Every knob a
// controller consults lives here; nothing is read from the environment at
// request time.
type Config struct {
	// Issuer is the iss claim on self-encoded tokens and ID tokens.
	Issuer string `mapstructure:"issuer"`

	// Realm is the protection realm in WWW-Authenticate challenges.
	Realm string `mapstructure:"realm"`

	// TokenType is the token_type on issued tokens, "Bearer" by default.
	TokenType string `mapstructure:"token_type"`

	// UseJWTAccessTokens switches from opaque stored tokens to self-encoded
	// JWT access tokens.
	UseJWTAccessTokens bool `mapstructure:"use_jwt_access_tokens"`

	// StoreEncodedTokens additionally persists self-encoded tokens.
	StoreEncodedTokens bool `mapstructure:"store_encoded_tokens"`

	// JWTBearerAudience is the aud value jwt-bearer assertions must carry,
	// typically the token endpoint URL.
	JWTBearerAudience string `mapstructure:"jwt_bearer_audience"`

	AccessTokenLifetime  time.Duration `mapstructure:"access_token_lifetime"`
	RefreshTokenLifetime time.Duration `mapstructure:"refresh_token_lifetime"`
	AuthCodeLifetime     time.Duration `mapstructure:"auth_code_lifetime"`
	IDTokenLifetime      time.Duration `mapstructure:"id_token_lifetime"`

	// DeviceCodeLifetime and DeviceCodeInterval shape the device flow:
	// how long a device/user code pair lives and how often the device may
	// poll the token endpoint.
	DeviceCodeLifetime time.Duration `mapstructure:"device_code_lifetime"`
	DeviceCodeInterval time.Duration `mapstructure:"device_code_interval"`

	// DeviceVerificationURI is where the end user enters the user code.
	DeviceVerificationURI string `mapstructure:"device_verification_uri"`

	// AllowImplicit enables response_type=token at the authorize endpoint.
	AllowImplicit bool `mapstructure:"allow_implicit"`

	// EnforceState requires the state parameter on authorize requests.
	// On by default as a CSRF mitigation.
	EnforceState bool `mapstructure:"enforce_state"`

	// AuthorizeRedirectStatus is the HTTP status for authorize-endpoint
	// redirects, 302 by default.
	AuthorizeRedirectStatus int `mapstructure:"authorize_redirect_status"`

	// RequireExactRedirectURI compares redirect URIs for byte equality
	// instead of the legacy prefix match.
	RequireExactRedirectURI bool `mapstructure:"require_exact_redirect_uri"`

	// AllowPublicClients permits secret-less clients at the token endpoint.
	AllowPublicClients bool `mapstructure:"allow_public_clients"`

	// AllowCredentialsInQuery permits client credentials in the query string.
	AllowCredentialsInQuery bool `mapstructure:"allow_credentials_in_query"`

	// DisallowCredentialsInBody refuses client credentials in the request
	// body, requiring the Basic header.
	DisallowCredentialsInBody bool `mapstructure:"disallow_credentials_in_body"`

	// AlwaysIssueNewRefreshToken rotates refresh tokens on every use.
	AlwaysIssueNewRefreshToken bool `mapstructure:"always_issue_new_refresh_token"`

	// Storage selects and configures the bundled storage backend. Ignored
	// when the host wires its own collaborators.
	Storage storage.Config `mapstructure:"storage"`
}

// DefaultConfig returns the conventional posture: bearer tokens, one-hour
// access lifetime, exact redirect matching, state required, public clients
// allowed.
func DefaultConfig() Config {
	return Config{
		Realm:                   "Service",
		TokenType:               "Bearer",
		AccessTokenLifetime:     storage.DefaultAccessTokenTTL,
		RefreshTokenLifetime:    storage.DefaultRefreshTokenTTL,
		AuthCodeLifetime:        storage.DefaultAuthCodeTTL,
		IDTokenLifetime:         storage.DefaultAccessTokenTTL,
		DeviceCodeLifetime:      storage.DefaultDeviceCodeTTL,
		DeviceCodeInterval:      5 * time.Second,
		EnforceState:            true,
		AuthorizeRedirectStatus: http.StatusFound,
		RequireExactRedirectURI: true,
		AllowPublicClients:      true,
		Storage:                 storage.DefaultConfig(),
	}
}

// LoadConfig reads configuration from an optional file plus OAUTHSERVER_*
// environment variables, layered over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("oauthserver")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	setConfigDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setConfigDefaults registers the default values so environment variables
// resolve even without a config file.
func setConfigDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("issuer", cfg.Issuer)
	v.SetDefault("realm", cfg.Realm)
	v.SetDefault("token_type", cfg.TokenType)
	v.SetDefault("use_jwt_access_tokens", cfg.UseJWTAccessTokens)
	v.SetDefault("store_encoded_tokens", cfg.StoreEncodedTokens)
	v.SetDefault("jwt_bearer_audience", cfg.JWTBearerAudience)
	v.SetDefault("access_token_lifetime", cfg.AccessTokenLifetime)
	v.SetDefault("refresh_token_lifetime", cfg.RefreshTokenLifetime)
	v.SetDefault("auth_code_lifetime", cfg.AuthCodeLifetime)
	v.SetDefault("id_token_lifetime", cfg.IDTokenLifetime)
	v.SetDefault("device_code_lifetime", cfg.DeviceCodeLifetime)
	v.SetDefault("device_code_interval", cfg.DeviceCodeInterval)
	v.SetDefault("device_verification_uri", cfg.DeviceVerificationURI)
	v.SetDefault("allow_implicit", cfg.AllowImplicit)
	v.SetDefault("enforce_state", cfg.EnforceState)
	v.SetDefault("authorize_redirect_status", cfg.AuthorizeRedirectStatus)
	v.SetDefault("require_exact_redirect_uri", cfg.RequireExactRedirectURI)
	v.SetDefault("allow_public_clients", cfg.AllowPublicClients)
	v.SetDefault("allow_credentials_in_query", cfg.AllowCredentialsInQuery)
	v.SetDefault("disallow_credentials_in_body", cfg.DisallowCredentialsInBody)
	v.SetDefault("always_issue_new_refresh_token", cfg.AlwaysIssueNewRefreshToken)
	v.SetDefault("storage.type", string(cfg.Storage.Type))
}
