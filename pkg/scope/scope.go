// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package scope implements scope-set negotiation: space-delimited containment
// checks, reserved-scope handling, and store-backed existence and default
// resolution.
package scope

import (
	"context"
	"errors"
	"strings"

	"github.com/grantline/oauthserver/pkg/storage"
)

// Reserved scope tokens always considered to exist, without a storage lookup
// (OpenID Connect Core and RFC 6749 offline access).
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

var reservedScopes = map[string]bool{
	ScopeOpenID:        true,
	ScopeOfflineAccess: true,
}

// Split breaks a space-delimited scope string into its tokens.
func Split(scope string) []string {
	return strings.Fields(scope)
}

// Join rebuilds a scope string from tokens.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Contains reports whether every token in required appears in available.
// Order and duplicates are irrelevant; comparison is case-sensitive.
func Contains(required, available string) bool {
	set := make(map[string]bool)
	for _, token := range Split(available) {
		set[token] = true
	}
	for _, token := range Split(required) {
		if !set[token] {
			return false
		}
	}
	return true
}

// HasOpenID reports whether the scope set requests an ID token.
func HasOpenID(scope string) bool {
	for _, token := range Split(scope) {
		if token == ScopeOpenID {
			return true
		}
	}
	return false
}

// Negotiator resolves scope existence and defaults against a ScopeStore,
// layering the reserved-scope rules on top.
type Negotiator struct {
	store storage.ScopeStore
}

// NewNegotiator creates a Negotiator backed by the given store. A nil store
// is allowed; existence checks then pass only for reserved scopes and no
// default scope is ever produced.
func NewNegotiator(store storage.ScopeStore) *Negotiator {
	return &Negotiator{store: store}
}

// Exists reports whether every token in scope is known. Reserved tokens are
// always present; the remainder is checked against the store, optionally
// restricted to a client ("" means any).
func (n *Negotiator) Exists(ctx context.Context, scope, clientID string) (bool, error) {
	var unreserved []string
	for _, token := range Split(scope) {
		if !reservedScopes[token] {
			unreserved = append(unreserved, token)
		}
	}
	if len(unreserved) == 0 {
		return true, nil
	}
	if n.store == nil {
		return false, nil
	}
	return n.store.ScopeExists(ctx, Join(unreserved), clientID)
}

// Default resolves the default scope for a client. A nil scope with
// forceError=true signals the caller must reject the request; nil with
// forceError=false means no default is configured and scope is optional.
func (n *Negotiator) Default(ctx context.Context, clientID string) (scope *string, forceError bool, err error) {
	if n.store == nil {
		return nil, false, nil
	}
	s, err := n.store.GetDefaultScope(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrScopeRequired) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return s, false, nil
}
