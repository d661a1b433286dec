// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrExpired is returned when a record exists but is past its expiry.
	ErrExpired = errors.New("record expired")

	// ErrAlreadyExists is returned when creating a record that already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrScopeRequired is returned by ScopeStore.GetDefaultScope when the
	// client has no default scope and must not issue scope-less requests.
	ErrScopeRequired = errors.New("scope parameter is required")

	// ErrMalformedRecord is returned when a stored record is missing a
	// mandatory field (e.g. an authorization code without an expiry). This
	// is a configuration or programming error, never a protocol error.
	ErrMalformedRecord = errors.New("malformed storage record")
)
