// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// Request is the transport-independent view of an incoming OAuth request.
// The engine never touches *http.Request directly; hosts construct a Request
// from whatever transport they use (NewRequestFromHTTP covers net/http).
type Request struct {
	// Method is the HTTP method of the originating request.
	Method string

	// Query holds the URL query parameters.
	Query url.Values

	// Form holds the parsed request body parameters.
	Form url.Values

	// Header holds the request headers.
	Header http.Header
}

// NewRequest returns an empty POST request, ready to be populated.
// Primarily useful in tests.
func NewRequest() *Request {
	return &Request{
		Method: http.MethodPost,
		Query:  url.Values{},
		Form:   url.Values{},
		Header: http.Header{},
	}
}

// NewRequestFromHTTP adapts a net/http request. The body form must already be
// parseable; ParseForm errors are ignored and yield empty form values, which
// the engine rejects downstream as missing parameters.
func NewRequestFromHTTP(r *http.Request) *Request {
	_ = r.ParseForm()
	return &Request{
		Method: r.Method,
		Query:  r.URL.Query(),
		Form:   r.PostForm,
		Header: r.Header,
	}
}

// FormValue returns the first body parameter for the key, or "".
func (r *Request) FormValue(key string) string {
	return r.Form.Get(key)
}

// QueryValue returns the first query parameter for the key, or "".
func (r *Request) QueryValue(key string) string {
	return r.Query.Get(key)
}

// Value returns the body parameter if present, falling back to the query
// string. The token endpoint reads body-first per RFC 6749 §3.2.
func (r *Request) Value(key string) string {
	if v := r.Form.Get(key); v != "" {
		return v
	}
	return r.Query.Get(key)
}

// BasicAuth extracts HTTP Basic credentials from the Authorization header.
// Returns ok=false when the header is absent or malformed.
func (r *Request) BasicAuth() (username, password string, ok bool) {
	return basicAuth(r.Header.Get("Authorization"))
}

// basicAuth decodes an "Authorization: Basic ..." header value.
func basicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	return username, password, ok
}
