// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// WriteJSON writes a JSON body with the cache-control headers the token
// endpoint must always send (RFC 6749 §5.1).
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes a protocol error as a direct JSON response.
func WriteError(w http.ResponseWriter, e *Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, e)
}

// BuildRedirectURL merges params into the given redirect URI, either as query
// parameters (code flow) or as a URI fragment (implicit flow), preserving any
// query parameters already registered on the URI.
func BuildRedirectURL(redirectURI string, params url.Values, useFragment bool) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}

	if useFragment {
		u.Fragment = params.Encode()
		return u.String(), nil
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WWWAuthenticate renders the WWW-Authenticate challenge header value for
// resource endpoint failures:
//
//	Bearer realm="<realm>"[, error="<code>"[, error_description="<text>"]]
func WWWAuthenticate(scheme, realm string, e *Error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s realm=%q", scheme, realm)
	if e != nil {
		fmt.Fprintf(&b, ", error=%q", e.Code)
		if e.Description != "" {
			fmt.Fprintf(&b, ", error_description=%q", e.Description)
		}
	}
	return b.String()
}
