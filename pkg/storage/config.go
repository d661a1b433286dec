// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import "time"

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses a Redis backend.
	TypeRedis Type = "redis"
)

const (
	// DefaultCleanupInterval is how often the memory backend's background
	// cleanup runs.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultAccessTokenTTL is the fallback TTL for access tokens stored
	// without an expiry the backend can derive one from.
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultRefreshTokenTTL is the fallback TTL for refresh tokens.
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour

	// DefaultAuthCodeTTL follows the RFC 6749 recommendation for codes.
	DefaultAuthCodeTTL = 10 * time.Minute

	// DefaultDeviceCodeTTL is the fallback TTL for device code pairs.
	DefaultDeviceCodeTTL = 30 * time.Minute
)

// Config selects and configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type

	// Redis holds the Redis connection settings when Type is redis.
	Redis *RedisConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type: TypeMemory,
	}
}
