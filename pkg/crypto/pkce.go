// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto holds the PKCE primitives and opaque credential generation
// used by the token and response generators.
package crypto

import (
	"crypto/subtle"

	"golang.org/x/oauth2"

	oautherr "github.com/grantline/oauthserver/pkg/oauth"
)

// PKCE challenge methods (RFC 7636 §4.2).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// GeneratePKCEVerifier generates a cryptographically random code_verifier
// per RFC 7636 Section 4.1 (43 characters from the base64url alphabet).
//
// This delegates to oauth2.GenerateVerifier() from golang.org/x/oauth2,
// which panics on crypto/rand read failure.
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge computes the S256 code_challenge from a code_verifier:
// code_challenge = BASE64URL(SHA256(code_verifier)), no padding.
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// verifierCharset reports whether the verifier uses only the unreserved
// characters RFC 7636 §4.1 permits.
func verifierCharset(verifier string) bool {
	for _, c := range verifier {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

// VerifyPKCE checks a code_verifier against the challenge stored with an
// authorization code. A stored challenge with no verifier fails with
// code_verifier_missing; a malformed verifier with code_verifier_invalid;
// a non-matching one with code_verifier_mismatch. Comparisons run in
// constant time.
func VerifyPKCE(verifier, challenge, method string) *oautherr.Error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return oautherr.ErrVerifierMissing.WithDescription("The PKCE code verifier parameter is required")
	}
	if len(verifier) < 43 || len(verifier) > 128 || !verifierCharset(verifier) {
		return oautherr.ErrVerifierInvalid.WithDescription("The PKCE code verifier parameter is invalid")
	}

	var derived string
	switch method {
	case PKCEMethodS256:
		derived = ComputePKCEChallenge(verifier)
	case PKCEMethodPlain, "":
		derived = verifier
	default:
		return oautherr.ErrChallengeMethodInvalid.WithDescription(
			"Unknown PKCE code challenge method %q", method)
	}

	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return oautherr.ErrVerifierMismatch.WithDescription("The PKCE code verifier parameter does not match the code challenge")
	}
	return nil
}
