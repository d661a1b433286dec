// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Key type segments used to namespace records.
const (
	keyTypeClient   = "client"
	keyTypeAccess   = "access"
	keyTypeRefresh  = "refresh"
	keyTypeAuthCode = "code"
	keyTypeDevice   = "device"
	keyTypeUserCode = "usercode"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces all keys, e.g. "oauth:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStorage implements the credential stores against a Redis backend.
// Expiry is enforced with native TTLs; single-use code consumption uses
// GETDEL so that two racing redemptions cannot both succeed.
//
// Client, scope and key-material lookups remain the host's concern; this
// backend covers the per-request hot path (tokens, codes, device pairs) plus
// client records for deployments that want everything in one place.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStorage creates Redis-backed storage and verifies connectivity.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured
// client. This is useful for testing with miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{client: client, keyPrefix: keyPrefix}
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) key(keyType, id string) string {
	return s.keyPrefix + keyType + ":" + id
}

// ttlFor derives a TTL from an expiry. Zero expiry means no TTL.
func ttlFor(expiresAt time.Time) (time.Duration, error) {
	if expiresAt.IsZero() {
		return 0, nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: expiry is not in the future", ErrMalformedRecord)
	}
	return ttl, nil
}

// -----------------------
// ClientStore / ClientCredentialStore
// -----------------------

// storedClient is the serializable client record.
type storedClient struct {
	ID           string `json:"id"`
	Secret       string `json:"secret,omitempty"`
	RedirectURIs string `json:"redirect_uris,omitempty"`
	GrantTypes   string `json:"grant_types,omitempty"`
	Scope        string `json:"scope,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// SetClient adds or updates a client record. Clients do not expire.
func (s *RedisStorage) SetClient(ctx context.Context, client *Client) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("%w: client ID cannot be empty", ErrMalformedRecord)
	}

	data, err := json.Marshal(storedClient{
		ID:           client.ID,
		Secret:       client.Secret,
		RedirectURIs: client.RedirectURIs,
		GrantTypes:   client.GrantTypes,
		Scope:        client.Scope,
		UserID:       client.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	return s.client.Set(ctx, s.key(keyTypeClient, client.ID), data, 0).Err()
}

// GetClient loads the client by its ID.
func (s *RedisStorage) GetClient(ctx context.Context, id string) (*Client, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeClient, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: client %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var stored storedClient
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}

	return &Client{
		ID:           stored.ID,
		Secret:       stored.Secret,
		RedirectURIs: stored.RedirectURIs,
		GrantTypes:   stored.GrantTypes,
		Scope:        stored.Scope,
		UserID:       stored.UserID,
	}, nil
}

// CheckClientCredentials verifies the id/secret pair against the stored
// client record.
func (s *RedisStorage) CheckClientCredentials(ctx context.Context, id, secret string) (bool, error) {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return client.Secret == secret, nil
}

// -----------------------
// AccessTokenStore
// -----------------------

// storedAccessToken is the serializable access token record.
type storedAccessToken struct {
	Token     string `json:"token"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// SetAccessToken stores an access token with a TTL matching its expiry.
func (s *RedisStorage) SetAccessToken(ctx context.Context, token *AccessToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("%w: access token value cannot be empty", ErrMalformedRecord)
	}
	ttl, err := ttlFor(token.ExpiresAt)
	if err != nil {
		return err
	}

	stored := storedAccessToken{
		Token:    token.Token,
		ClientID: token.ClientID,
		UserID:   token.UserID,
		Scope:    token.Scope,
	}
	if !token.ExpiresAt.IsZero() {
		stored.ExpiresAt = token.ExpiresAt.Unix()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	return s.client.Set(ctx, s.key(keyTypeAccess, token.Token), data, ttl).Err()
}

// GetAccessToken retrieves an access token record by value.
func (s *RedisStorage) GetAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeAccess, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: access token", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	var stored storedAccessToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", err)
	}

	t := &AccessToken{
		Token:    stored.Token,
		ClientID: stored.ClientID,
		UserID:   stored.UserID,
		Scope:    stored.Scope,
	}
	if stored.ExpiresAt != 0 {
		t.ExpiresAt = time.Unix(stored.ExpiresAt, 0)
	}
	return t, nil
}

// -----------------------
// RefreshTokenStore
// -----------------------

// storedRefreshToken is the serializable refresh token record.
type storedRefreshToken struct {
	Token     string `json:"token"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// SetRefreshToken stores a refresh token with a TTL matching its expiry.
func (s *RedisStorage) SetRefreshToken(ctx context.Context, token *RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("%w: refresh token value cannot be empty", ErrMalformedRecord)
	}
	ttl, err := ttlFor(token.ExpiresAt)
	if err != nil {
		return err
	}

	stored := storedRefreshToken{
		Token:    token.Token,
		ClientID: token.ClientID,
		UserID:   token.UserID,
		Scope:    token.Scope,
	}
	if !token.ExpiresAt.IsZero() {
		stored.ExpiresAt = token.ExpiresAt.Unix()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	return s.client.Set(ctx, s.key(keyTypeRefresh, token.Token), data, ttl).Err()
}

// GetRefreshToken retrieves a refresh token record by value.
func (s *RedisStorage) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeRefresh, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: refresh token", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var stored storedRefreshToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	t := &RefreshToken{
		Token:    stored.Token,
		ClientID: stored.ClientID,
		UserID:   stored.UserID,
		Scope:    stored.Scope,
	}
	if stored.ExpiresAt != 0 {
		t.ExpiresAt = time.Unix(stored.ExpiresAt, 0)
	}
	return t, nil
}

// RevokeRefreshToken removes a refresh token.
func (s *RedisStorage) RevokeRefreshToken(ctx context.Context, token string) error {
	deleted, err := s.client.Del(ctx, s.key(keyTypeRefresh, token)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: refresh token", ErrNotFound)
	}
	return nil
}

// -----------------------
// AuthorizationCodeStore
// -----------------------

// storedAuthCode is the serializable authorization code record.
type storedAuthCode struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	UserID              string `json:"user_id,omitempty"`
	RedirectURI         string `json:"redirect_uri,omitempty"`
	ExpiresAt           int64  `json:"expires_at"`
	Scope               string `json:"scope,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	IDToken             string `json:"id_token,omitempty"`
}

func authCodeFromStored(stored *storedAuthCode) *AuthorizationCode {
	return &AuthorizationCode{
		Code:                stored.Code,
		ClientID:            stored.ClientID,
		UserID:              stored.UserID,
		RedirectURI:         stored.RedirectURI,
		ExpiresAt:           time.Unix(stored.ExpiresAt, 0),
		Scope:               stored.Scope,
		CodeChallenge:       stored.CodeChallenge,
		CodeChallengeMethod: stored.CodeChallengeMethod,
		IDToken:             stored.IDToken,
	}
}

// SetAuthorizationCode stores an authorization code record.
func (s *RedisStorage) SetAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("%w: authorization code value cannot be empty", ErrMalformedRecord)
	}
	if code.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: authorization code requires an expiry", ErrMalformedRecord)
	}
	ttl, err := ttlFor(code.ExpiresAt)
	if err != nil {
		return err
	}

	data, err := json.Marshal(storedAuthCode{
		Code:                code.Code,
		ClientID:            code.ClientID,
		UserID:              code.UserID,
		RedirectURI:         code.RedirectURI,
		ExpiresAt:           code.ExpiresAt.Unix(),
		Scope:               code.Scope,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		IDToken:             code.IDToken,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	return s.client.Set(ctx, s.key(keyTypeAuthCode, code.Code), data, ttl).Err()
}

// GetAuthorizationCode retrieves an authorization code record.
func (s *RedisStorage) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeAuthCode, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: authorization code", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	var stored storedAuthCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	if stored.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: authorization code has no expiry", ErrMalformedRecord)
	}

	return authCodeFromStored(&stored), nil
}

// ConsumeAuthorizationCode atomically removes the code via GETDEL. Exactly
// one of any number of concurrent redemptions observes the value; the rest
// get ErrNotFound.
func (s *RedisStorage) ConsumeAuthorizationCode(ctx context.Context, code string) error {
	_, err := s.client.GetDel(ctx, s.key(keyTypeAuthCode, code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: authorization code", ErrNotFound)
		}
		return fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return nil
}

// -----------------------
// DeviceCodeStore
// -----------------------

// storedDeviceCode is the serializable device code record.
type storedDeviceCode struct {
	DeviceCode string `json:"device_code"`
	UserCode   string `json:"user_code"`
	ClientID   string `json:"client_id"`
	ExpiresAt  int64  `json:"expires_at"`
	Scope      string `json:"scope,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

func deviceCodeFromStored(stored *storedDeviceCode) *DeviceCode {
	return &DeviceCode{
		DeviceCode: stored.DeviceCode,
		UserCode:   stored.UserCode,
		ClientID:   stored.ClientID,
		ExpiresAt:  time.Unix(stored.ExpiresAt, 0),
		Scope:      stored.Scope,
		UserID:     stored.UserID,
	}
}

// SetDeviceCode stores a device/user code pair plus a user-code index entry
// sharing the same TTL.
func (s *RedisStorage) SetDeviceCode(ctx context.Context, code *DeviceCode) error {
	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		return fmt.Errorf("%w: device and user codes are required", ErrMalformedRecord)
	}
	if code.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: device code requires an expiry", ErrMalformedRecord)
	}
	ttl, err := ttlFor(code.ExpiresAt)
	if err != nil {
		return err
	}

	data, err := json.Marshal(storedDeviceCode{
		DeviceCode: code.DeviceCode,
		UserCode:   code.UserCode,
		ClientID:   code.ClientID,
		ExpiresAt:  code.ExpiresAt.Unix(),
		Scope:      code.Scope,
		UserID:     code.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal device code: %w", err)
	}

	key := s.key(keyTypeDevice, code.DeviceCode)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return err
	}

	// Index the user code; clean up the record if the index write fails.
	indexKey := s.key(keyTypeUserCode, code.UserCode)
	if err := s.client.Set(ctx, indexKey, code.DeviceCode, ttl).Err(); err != nil {
		_ = s.client.Del(ctx, key).Err()
		return err
	}
	return nil
}

func (s *RedisStorage) getDeviceCodeRecord(ctx context.Context, deviceCode string) (*storedDeviceCode, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeDevice, deviceCode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: device code", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device code: %w", err)
	}

	var stored storedDeviceCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device code: %w", err)
	}
	return &stored, nil
}

// GetDeviceCode retrieves a device code record, scoped to the polling client.
func (s *RedisStorage) GetDeviceCode(ctx context.Context, deviceCode, clientID string) (*DeviceCode, error) {
	stored, err := s.getDeviceCodeRecord(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if stored.ClientID != clientID {
		return nil, fmt.Errorf("%w: device code", ErrNotFound)
	}
	return deviceCodeFromStored(stored), nil
}

// GetDeviceCodeByUserCode resolves the record the end user is approving.
func (s *RedisStorage) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	deviceCode, err := s.client.Get(ctx, s.key(keyTypeUserCode, userCode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: user code", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user code: %w", err)
	}

	stored, err := s.getDeviceCodeRecord(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	return deviceCodeFromStored(stored), nil
}

// approveDeviceScript atomically sets the user_id field on a device code
// record, preserving the remaining TTL. Returns 1 on success, 0 if the key
// no longer exists.
var approveDeviceScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 0
end
local record = cjson.decode(data)
record.user_id = ARGV[1]
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[1], cjson.encode(record), 'PX', ttl)
else
	redis.call('SET', KEYS[1], cjson.encode(record))
end
return 1
`)

// ApproveDeviceCode binds the approving user to the pair. Uses a Lua script
// so a concurrent poll never observes a half-written record.
func (s *RedisStorage) ApproveDeviceCode(ctx context.Context, userCode, userID string) error {
	deviceCode, err := s.client.Get(ctx, s.key(keyTypeUserCode, userCode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: user code", ErrNotFound)
		}
		return fmt.Errorf("failed to get user code: %w", err)
	}

	key := s.key(keyTypeDevice, deviceCode)
	result, err := approveDeviceScript.Run(ctx, s.client, []string{key}, userID).Int()
	if err != nil {
		return fmt.Errorf("failed to approve device code: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("%w: device code", ErrNotFound)
	}
	return nil
}

// ConsumeDeviceCode removes the record and its user-code index entry.
func (s *RedisStorage) ConsumeDeviceCode(ctx context.Context, deviceCode string) error {
	stored, err := s.getDeviceCodeRecord(ctx, deviceCode)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.key(keyTypeDevice, deviceCode)).Err(); err != nil {
		return fmt.Errorf("failed to delete device code: %w", err)
	}
	// Index cleanup is best effort; it expires with its own TTL anyway.
	_ = s.client.Del(ctx, s.key(keyTypeUserCode, stored.UserCode)).Err()
	return nil
}

// Compile-time interface compliance checks
var (
	_ ClientStore            = (*RedisStorage)(nil)
	_ ClientCredentialStore  = (*RedisStorage)(nil)
	_ AccessTokenStore       = (*RedisStorage)(nil)
	_ RefreshTokenStore      = (*RedisStorage)(nil)
	_ AuthorizationCodeStore = (*RedisStorage)(nil)
	_ DeviceCodeStore        = (*RedisStorage)(nil)
)
