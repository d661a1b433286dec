// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package oauth provides the request/response value types and the RFC 6749
// error taxonomy shared by every component of the authorization server engine.
package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes per RFC 6749 §5.2 and §4.1.2.1, reused verbatim as wire values.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeRedirectURIMismatch     = "redirect_uri_mismatch"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeServerError             = "server_error"
)

// PKCE error codes (RFC 7636).
const (
	ErrorCodeVerifierMissing        = "code_verifier_missing"
	ErrorCodeVerifierInvalid        = "code_verifier_invalid"
	ErrorCodeVerifierMismatch       = "code_verifier_mismatch"
	ErrorCodeChallengeMethodInvalid = "code_challenge_method_invalid"
)

// Device flow error codes (RFC 8628).
const (
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeExpired              = "code_expired"
	ErrorCodeBadVerificationCode  = "bad_verification_code"
)

// Error is a protocol-level error carrying the fixed RFC wire code, a
// human-readable description, an optional documentation URI, and the HTTP
// status the transport layer should respond with. It is the only error type
// the engine surfaces to callers; infrastructure failures are wrapped into a
// server_error before they leave a controller.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`

	// Status is the HTTP status code for direct (non-redirect) responses.
	// It is not part of the wire body.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithDescription returns a copy of the error with the given description.
// The receiver is never mutated so the package-level prototypes stay constant.
func (e *Error) WithDescription(format string, args ...any) *Error {
	c := *e
	c.Description = fmt.Sprintf(format, args...)
	return &c
}

// WithURI returns a copy of the error with the given error_uri.
func (e *Error) WithURI(uri string) *Error {
	c := *e
	c.URI = uri
	return &c
}

// WithStatus returns a copy of the error with the given HTTP status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

// MarshalBody renders the RFC 6749 §5.2 JSON error body
// {"error", "error_description", "error_uri"}.
func (e *Error) MarshalBody() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		// The struct contains only strings; this cannot fail in practice.
		return []byte(`{"error":"server_error"}`)
	}
	return b
}

// Prototype errors. Use WithDescription to attach context.
var (
	ErrInvalidRequest          = &Error{Code: ErrorCodeInvalidRequest, Status: http.StatusBadRequest}
	ErrInvalidClient           = &Error{Code: ErrorCodeInvalidClient, Status: http.StatusBadRequest}
	ErrUnauthorizedClient      = &Error{Code: ErrorCodeUnauthorizedClient, Status: http.StatusBadRequest}
	ErrInvalidGrant            = &Error{Code: ErrorCodeInvalidGrant, Status: http.StatusBadRequest}
	ErrUnsupportedGrantType    = &Error{Code: ErrorCodeUnsupportedGrantType, Status: http.StatusBadRequest}
	ErrInvalidScope            = &Error{Code: ErrorCodeInvalidScope, Status: http.StatusBadRequest}
	ErrRedirectURIMismatch     = &Error{Code: ErrorCodeRedirectURIMismatch, Status: http.StatusBadRequest}
	ErrAccessDenied            = &Error{Code: ErrorCodeAccessDenied, Status: http.StatusBadRequest}
	ErrUnsupportedResponseType = &Error{Code: ErrorCodeUnsupportedResponseType, Status: http.StatusBadRequest}
	ErrInvalidToken            = &Error{Code: ErrorCodeInvalidToken, Status: http.StatusUnauthorized}
	ErrInsufficientScope       = &Error{Code: ErrorCodeInsufficientScope, Status: http.StatusForbidden}
	ErrServerError             = &Error{Code: ErrorCodeServerError, Status: http.StatusInternalServerError}

	ErrVerifierMissing        = &Error{Code: ErrorCodeVerifierMissing, Status: http.StatusBadRequest}
	ErrVerifierInvalid        = &Error{Code: ErrorCodeVerifierInvalid, Status: http.StatusBadRequest}
	ErrVerifierMismatch       = &Error{Code: ErrorCodeVerifierMismatch, Status: http.StatusBadRequest}
	ErrChallengeMethodInvalid = &Error{Code: ErrorCodeChallengeMethodInvalid, Status: http.StatusBadRequest}

	ErrAuthorizationPending = &Error{Code: ErrorCodeAuthorizationPending, Status: http.StatusBadRequest}
	ErrCodeExpired          = &Error{Code: ErrorCodeExpired, Status: http.StatusBadRequest}
	ErrBadVerificationCode  = &Error{Code: ErrorCodeBadVerificationCode, Status: http.StatusBadRequest}

	// ErrMethodNotAllowed is raised when the token endpoint receives anything
	// but POST. It has no RFC body code beyond invalid_request.
	ErrMethodNotAllowed = &Error{
		Code:        ErrorCodeInvalidRequest,
		Description: "The request method must be POST",
		Status:      http.StatusMethodNotAllowed,
	}
)
