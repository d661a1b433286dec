// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package clientauth authenticates OAuth clients at the token endpoint:
// HTTP Basic first, then body parameters, then (optionally) the query
// string, per RFC 6749 §2.3.1.
package clientauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/storage"
)

// Config controls how clients may present credentials.
type Config struct {
	// AllowPublicClients permits clients with no secret to authenticate by
	// identifier alone. Grants that require confidential clients (client
	// credentials) force this off regardless.
	AllowPublicClients bool

	// AllowCredentialsInQuery permits client_id/client_secret in the query
	// string. Off by default even though RFC 6749 tolerates it: the query
	// string leaks into access logs and referrers.
	AllowCredentialsInQuery bool

	// DisallowCredentialsInBody refuses client_id/client_secret in the
	// request body, leaving the Basic header as the only secret-bearing
	// mechanism.
	DisallowCredentialsInBody bool
}

// DefaultConfig returns the conventional posture: public clients allowed,
// query-string credentials refused.
func DefaultConfig() Config {
	return Config{AllowPublicClients: true}
}

// Authenticator resolves and verifies the client behind a token-endpoint
// request.
type Authenticator struct {
	clients     storage.ClientStore
	credentials storage.ClientCredentialStore
	config      Config
	logger      *slog.Logger
}

// New creates an Authenticator. The credential store is consulted for secret
// verification; the client store resolves the full client record.
func New(clients storage.ClientStore, credentials storage.ClientCredentialStore, config Config, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{clients: clients, credentials: credentials, config: config, logger: logger}
}

// credentialsFrom extracts the presented client credentials, in precedence
// order. A request carrying both a Basic header and body credentials is
// malformed (RFC 6749 §2.3: at most one mechanism per request).
func (a *Authenticator) credentialsFrom(req *oauth.Request) (id, secret string, viaHeader bool, errResp *oauth.Error) {
	basicID, basicSecret, hasBasic := req.BasicAuth()
	bodyID := req.FormValue("client_id")
	bodySecret := req.FormValue("client_secret")

	if hasBasic {
		if bodySecret != "" {
			return "", "", true, oauth.ErrInvalidRequest.WithDescription(
				"Client credentials were supplied in both the Authorization header and the request body")
		}
		return basicID, basicSecret, true, nil
	}
	if bodyID != "" && !a.config.DisallowCredentialsInBody {
		return bodyID, bodySecret, false, nil
	}
	if a.config.AllowCredentialsInQuery {
		if qID := req.QueryValue("client_id"); qID != "" {
			return qID, req.QueryValue("client_secret"), false, nil
		}
	}
	return "", "", false, oauth.ErrInvalidClient.WithDescription("Client credentials were not found in the headers or body")
}

// Authenticate verifies the presented credentials and returns the client
// record. Failures via the Basic mechanism carry a 401; the handler layer
// adds the WWW-Authenticate challenge.
func (a *Authenticator) Authenticate(ctx context.Context, req *oauth.Request) (*storage.Client, *oauth.Error) {
	id, secret, viaHeader, errResp := a.credentialsFrom(req)
	if errResp != nil {
		return nil, errResp
	}

	client, err := a.clients.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, a.failure(viaHeader, "The client credentials are invalid")
		}
		a.logger.Error("client lookup failed", "client_id", id, "error", err)
		return nil, oauth.ErrServerError
	}

	if secret == "" {
		if !client.IsPublic() {
			return nil, a.failure(viaHeader, "The client credentials are invalid")
		}
		if !a.config.AllowPublicClients {
			return nil, oauth.ErrInvalidClient.WithDescription("Public clients are not allowed")
		}
		return client, nil
	}

	ok, err := a.credentials.CheckClientCredentials(ctx, id, secret)
	if err != nil {
		a.logger.Error("client credential check failed", "client_id", id, "error", err)
		return nil, oauth.ErrServerError
	}
	if !ok {
		return nil, a.failure(viaHeader, "The client credentials are invalid")
	}
	return client, nil
}

// AuthenticateConfidential is Authenticate with public clients refused, used
// by grants that require a secret regardless of server posture.
func (a *Authenticator) AuthenticateConfidential(ctx context.Context, req *oauth.Request) (*storage.Client, *oauth.Error) {
	restricted := *a
	restricted.config.AllowPublicClients = false
	return restricted.Authenticate(ctx, req)
}

// failure builds the invalid_client error. Basic-mechanism failures are 401s.
func (a *Authenticator) failure(viaHeader bool, description string) *oauth.Error {
	e := oauth.ErrInvalidClient.WithDescription("%s", description)
	if viaHeader {
		e = e.WithStatus(401)
	}
	return e
}
