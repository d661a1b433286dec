// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// TokenLength is the display length of opaque credentials. 40 hex characters
// of a SHA-256 digest over 40 bytes of OS randomness plus a UUID salt keeps
// well over 256 bits of input entropy while staying storage-friendly.
const TokenLength = 40

// NewOpaqueToken returns a fixed-length, unpredictable credential string.
// The UUID salt guards uniqueness even in the (hypothetical) event of a
// repeated random read.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, 40)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	h := sha256.New()
	h.Write(buf)
	h.Write([]byte(uuid.NewString()))

	return hex.EncodeToString(h.Sum(nil))[:TokenLength], nil
}

// userCodeAlphabet omits ambiguous characters (0/O, 1/I) so the code stays
// easy to read back over the phone.
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// NewUserCode returns a short, human-enterable code of the form "XXXX-XXXX"
// for the device authorization flow.
func NewUserCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	out := make([]byte, 9)
	for i, b := range buf {
		pos := i
		if i >= 4 {
			pos = i + 1
		}
		out[pos] = userCodeAlphabet[int(b)%len(userCodeAlphabet)]
	}
	out[4] = '-'
	return string(out), nil
}
