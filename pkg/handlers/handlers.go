// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers mounts the protocol engine on net/http via a chi router.
// The engine itself never sees *http.Request; this package owns the
// adaptation in both directions.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/grantline/oauthserver/pkg/oauth"
	"github.com/grantline/oauthserver/pkg/server"
	"github.com/grantline/oauthserver/pkg/storage"
)

// AuthorizeDecider supplies the resource owner's identity and decision for
// an authorize request. Hosts implement it over their own session and
// consent machinery. Returning handled=true means the decider already wrote
// a response (a login redirect, a consent page) and the flow stops here.
type AuthorizeDecider func(w http.ResponseWriter, r *http.Request, areq *server.AuthorizeRequest) (authorized bool, userID string, handled bool)

// Handler serves the OAuth endpoints.
type Handler struct {
	srv     *server.Server
	decider AuthorizeDecider
	logger  *slog.Logger
}

// New creates a Handler. The decider may be nil when the host does not
// mount the authorize endpoint.
func New(srv *server.Server, decider AuthorizeDecider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{srv: srv, decider: decider, logger: logger}
}

// Router builds the endpoint router:
//
//	POST /token
//	GET|POST /authorize
//	POST /device_authorization
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/token", h.handleToken)
	if h.decider != nil {
		r.Get("/authorize", h.handleAuthorize)
		r.Post("/authorize", h.handleAuthorize)
	}
	if h.srv.DeviceAuthorization != nil {
		r.Post("/device_authorization", h.handleDeviceAuthorization)
	}
	return r
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	req := oauth.NewRequestFromHTTP(r)
	resp, errResp := h.srv.Token.HandleTokenRequest(r.Context(), req)
	if errResp != nil {
		h.writeTokenError(w, errResp)
		return
	}
	oauth.WriteJSON(w, http.StatusOK, resp)
}

// writeTokenError writes a token-endpoint error, adding the Basic challenge
// on 401 invalid_client responses per RFC 6749 §5.2.
func (h *Handler) writeTokenError(w http.ResponseWriter, e *oauth.Error) {
	if e.Code == oauth.ErrorCodeInvalidClient && e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", oauth.WWWAuthenticate("Basic", h.srv.Config().Realm, nil))
	}
	oauth.WriteError(w, e)
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	req := oauth.NewRequestFromHTTP(r)

	areq, aerr := h.srv.Authorize.ValidateAuthorizeRequest(r.Context(), req)
	if aerr != nil {
		h.writeAuthorizeError(w, r, aerr)
		return
	}

	authorized, userID, handled := h.decider(w, r, areq)
	if handled {
		return
	}

	redirect, aerr := h.srv.Authorize.CompleteAuthorizeRequest(r.Context(), areq, authorized, userID)
	if aerr != nil {
		h.writeAuthorizeError(w, r, aerr)
		return
	}
	http.Redirect(w, r, redirect, h.redirectStatus())
}

// redirectStatus returns the configured authorize redirect status, falling
// back to 302 for zero-valued configs.
func (h *Handler) redirectStatus() int {
	if s := h.srv.Config().AuthorizeRedirectStatus; s != 0 {
		return s
	}
	return http.StatusFound
}

// writeAuthorizeError delivers an authorize failure: by redirect when the
// redirect URI was established, directly otherwise.
func (h *Handler) writeAuthorizeError(w http.ResponseWriter, r *http.Request, aerr *server.AuthorizeError) {
	if u := aerr.RedirectURL(); u != "" {
		http.Redirect(w, r, u, h.redirectStatus())
		return
	}
	oauth.WriteError(w, aerr.Err)
}

func (h *Handler) handleDeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	req := oauth.NewRequestFromHTTP(r)
	resp, errResp := h.srv.DeviceAuthorization.HandleDeviceAuthorizationRequest(r.Context(), req)
	if errResp != nil {
		oauth.WriteError(w, errResp)
		return
	}
	oauth.WriteJSON(w, http.StatusOK, resp)
}

type contextKey struct{}

// AccessTokenFromContext returns the verified token placed by RequireScope.
func AccessTokenFromContext(ctx context.Context) (*storage.AccessToken, bool) {
	t, ok := ctx.Value(contextKey{}).(*storage.AccessToken)
	return t, ok
}

// RequireScope is resource-protection middleware: it verifies the bearer
// token, checks the required scope, and stashes the token data in the
// request context. Failures answer with the RFC 6750 challenge header.
func (h *Handler) RequireScope(requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := oauth.NewRequestFromHTTP(r)
			data, errResp := h.srv.Resource.VerifyResourceRequest(r.Context(), req, requiredScope)
			if errResp != nil {
				w.Header().Set("WWW-Authenticate", oauth.WWWAuthenticate("Bearer", h.srv.Resource.Realm(), errResp))
				oauth.WriteError(w, errResp)
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, data)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
