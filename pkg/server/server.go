// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"log/slog"

	"github.com/grantline/oauthserver/pkg/clientauth"
	"github.com/grantline/oauthserver/pkg/grants"
	"github.com/grantline/oauthserver/pkg/scope"
	"github.com/grantline/oauthserver/pkg/storage"
	"github.com/grantline/oauthserver/pkg/tokens"
)

// Stores bundles the storage collaborators. Clients, ClientCredentials and
// AccessTokens are required; every other field is optional and its absence
// simply disables the grants and features that need it.
type Stores struct {
	Clients            storage.ClientStore
	ClientCredentials  storage.ClientCredentialStore
	Users              storage.UserCredentialStore
	AccessTokens       storage.AccessTokenStore
	RefreshTokens      storage.RefreshTokenStore
	AuthorizationCodes storage.AuthorizationCodeStore
	DeviceCodes        storage.DeviceCodeStore
	Scopes             storage.ScopeStore
	Keys               storage.KeyStore
	BearerKeys         storage.JWTBearerKeyStore
	JTI                storage.JTIStore
}

// StoresFromBackend populates a Stores from a single backend value,
// discovering capabilities by interface assertion. The bundled memory and
// redis backends implement most of them.
func StoresFromBackend(backend any) Stores {
	var s Stores
	if v, ok := backend.(storage.ClientStore); ok {
		s.Clients = v
	}
	if v, ok := backend.(storage.ClientCredentialStore); ok {
		s.ClientCredentials = v
	}
	if v, ok := backend.(storage.UserCredentialStore); ok {
		s.Users = v
	}
	if v, ok := backend.(storage.AccessTokenStore); ok {
		s.AccessTokens = v
	}
	if v, ok := backend.(storage.RefreshTokenStore); ok {
		s.RefreshTokens = v
	}
	if v, ok := backend.(storage.AuthorizationCodeStore); ok {
		s.AuthorizationCodes = v
	}
	if v, ok := backend.(storage.DeviceCodeStore); ok {
		s.DeviceCodes = v
	}
	if v, ok := backend.(storage.ScopeStore); ok {
		s.Scopes = v
	}
	if v, ok := backend.(storage.KeyStore); ok {
		s.Keys = v
	}
	if v, ok := backend.(storage.JWTBearerKeyStore); ok {
		s.BearerKeys = v
	}
	if v, ok := backend.(storage.JTIStore); ok {
		s.JTI = v
	}
	return s
}

// Option customizes server assembly.
type Option func(*options)

type options struct {
	samlValidator grants.SAMLAssertionValidator
	extraGrants   []grants.GrantType
	logger        *slog.Logger
}

// WithSAMLValidator enables the saml2-bearer grant with the given assertion
// validator.
func WithSAMLValidator(v grants.SAMLAssertionValidator) Option {
	return func(o *options) { o.samlValidator = v }
}

// WithGrantType registers an additional grant type, or overrides a built-in
// one of the same name.
func WithGrantType(gt grants.GrantType) Option {
	return func(o *options) { o.extraGrants = append(o.extraGrants, gt) }
}

// WithLogger sets the logger for all controllers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Server bundles the assembled controllers. Hosts mount them on whatever
// transport they use; pkg/handlers provides a ready chi router.
type Server struct {
	Token               *TokenController
	Authorize           *AuthorizeController
	DeviceAuthorization *DeviceAuthorizationController
	Resource            *ResourceController

	config Config
}

// Config returns the configuration the server was assembled with.
func (s *Server) Config() Config {
	return s.config
}

// New assembles a Server from storage collaborators and configuration. The
// grant set follows the stores: a grant is registered exactly when the
// stores it needs are present.
func New(stores Stores, config Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if stores.Clients == nil || stores.ClientCredentials == nil {
		return nil, errors.New("client and client credential stores are required")
	}
	if stores.AccessTokens == nil && !config.UseJWTAccessTokens {
		return nil, errors.New("access token store is required for opaque tokens")
	}

	authenticator := clientauth.New(stores.Clients, stores.ClientCredentials, clientauth.Config{
		AllowPublicClients:        config.AllowPublicClients,
		AllowCredentialsInQuery:   config.AllowCredentialsInQuery,
		DisallowCredentialsInBody: config.DisallowCredentialsInBody,
	}, logger)
	negotiator := scope.NewNegotiator(stores.Scopes)

	generator, err := buildGenerator(stores, config)
	if err != nil {
		return nil, err
	}

	var idTokens *tokens.IDTokenGenerator
	if stores.Keys != nil && config.Issuer != "" {
		idTokens, err = tokens.NewIDTokenGenerator(stores.Keys, tokens.IDTokenConfig{
			Issuer:   config.Issuer,
			Lifetime: config.IDTokenLifetime,
		})
		if err != nil {
			return nil, err
		}
	}

	grantSet := []grants.GrantType{
		grants.NewClientCredentialsGrant(authenticator),
	}
	if stores.AuthorizationCodes != nil {
		grantSet = append(grantSet, grants.NewAuthorizationCodeGrant(stores.AuthorizationCodes))
	}
	if stores.RefreshTokens != nil {
		grantSet = append(grantSet, grants.NewRefreshTokenGrant(stores.RefreshTokens, grants.RefreshTokenConfig{
			AlwaysIssueNewRefreshToken: config.AlwaysIssueNewRefreshToken,
		}))
	}
	if stores.Users != nil {
		grantSet = append(grantSet, grants.NewPasswordGrant(stores.Users))
	}
	if stores.BearerKeys != nil {
		grantSet = append(grantSet, grants.NewJWTBearerGrant(stores.BearerKeys, stores.JTI, grants.JWTBearerConfig{
			Audience: config.JWTBearerAudience,
		}))
	}
	if stores.DeviceCodes != nil {
		grantSet = append(grantSet, grants.NewDeviceCodeGrant(stores.DeviceCodes))
	}
	if o.samlValidator != nil {
		grantSet = append(grantSet, grants.NewSAML2BearerGrant(o.samlValidator))
	}
	grantSet = append(grantSet, o.extraGrants...)

	var responseTypes []tokens.ResponseType
	if stores.AuthorizationCodes != nil {
		issuer := tokens.NewCodeIssuer(stores.AuthorizationCodes, config.AuthCodeLifetime)
		responseTypes = append(responseTypes, tokens.NewCodeResponseType(issuer, idTokens))
	}
	if config.AllowImplicit {
		responseTypes = append(responseTypes, tokens.NewTokenResponseType(generator, idTokens))
	}

	srv := &Server{
		Token: NewTokenController(grantSet, authenticator, stores.Clients, generator, negotiator, logger),
		Authorize: NewAuthorizeController(stores.Clients, negotiator, responseTypes, AuthorizeConfig{
			AllowImplicit:           config.AllowImplicit,
			EnforceState:            config.EnforceState,
			RequireExactRedirectURI: config.RequireExactRedirectURI,
		}, logger),
		Resource: NewResourceController(generator, config.Realm, logger),
		config:   config,
	}
	if stores.DeviceCodes != nil {
		srv.DeviceAuthorization = NewDeviceAuthorizationController(stores.DeviceCodes, authenticator, negotiator, DeviceAuthorizationConfig{
			VerificationURI: config.DeviceVerificationURI,
			Lifetime:        config.DeviceCodeLifetime,
			Interval:        config.DeviceCodeInterval,
		}, logger)
	}
	return srv, nil
}

// buildGenerator selects the access token generator per configuration.
func buildGenerator(stores Stores, config Config) (tokens.AccessTokenGenerator, error) {
	if config.UseJWTAccessTokens {
		if stores.Keys == nil {
			return nil, errors.New("a key store is required for JWT access tokens")
		}
		return tokens.NewJWTGenerator(stores.Keys, stores.AccessTokens, stores.RefreshTokens, tokens.JWTConfig{
			Issuer:            config.Issuer,
			AccessLifetime:    config.AccessTokenLifetime,
			StoreEncodedToken: config.StoreEncodedTokens,
		})
	}
	return tokens.NewBearerGenerator(stores.AccessTokens, stores.RefreshTokens, tokens.BearerConfig{
		TokenType:       config.TokenType,
		AccessLifetime:  config.AccessTokenLifetime,
		RefreshLifetime: config.RefreshTokenLifetime,
	}), nil
}
