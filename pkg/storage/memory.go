// SPDX-FileCopyrightText: Copyright 2026 Grantline Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// timedEntry wraps a value with its creation time for TTL tracking.
type timedEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

// expired reports whether the entry is past its TTL. Entries with a zero
// expiry never expire.
func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryUser is a stored resource-owner account. Passwords are kept as
// bcrypt hashes only.
type memoryUser struct {
	id           string
	passwordHash []byte
}

// MemoryStorage implements every collaborator interface with in-memory maps.
// It is thread-safe and suitable for development and testing; single-use
// consume semantics are guaranteed by the write lock around check-and-delete.
type MemoryStorage struct {
	mu sync.RWMutex

	// clients maps client_id -> Client.
	clients map[string]*Client

	// users maps username -> account. Accounts have no TTL.
	users map[string]*memoryUser

	// accessTokens, refreshTokens, authCodes and deviceCodes map the opaque
	// credential value to its record.
	accessTokens  map[string]*timedEntry[*AccessToken]
	refreshTokens map[string]*timedEntry[*RefreshToken]
	authCodes     map[string]*timedEntry[*AuthorizationCode]
	deviceCodes   map[string]*timedEntry[*DeviceCode]

	// userCodes maps the human-enterable user code to its device code for
	// O(1) approval lookup.
	userCodes map[string]string

	// scopes maps a supported scope token -> the client it is restricted to
	// ("" means any client).
	scopes map[string]string

	// defaultScopes maps client_id -> default scope ("" key holds the
	// global default).
	defaultScopes map[string]string

	// scopeRequired marks clients that must always send a scope parameter.
	scopeRequired map[string]bool

	// signingKeys maps client_id -> key material ("" key holds the global
	// fallback).
	signingKeys map[string]*SigningKey

	// bearerKeys maps issuer/subject -> verification key for JWT-bearer
	// assertions.
	bearerKeys map[string]string

	// usedJTIs tracks assertion jti values to prevent replay.
	usedJTIs map[string]time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// MemoryStorageOption configures a MemoryStorage instance.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStorage creates a MemoryStorage with initialized maps and starts
// the background cleanup goroutine.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		clients:         make(map[string]*Client),
		users:           make(map[string]*memoryUser),
		accessTokens:    make(map[string]*timedEntry[*AccessToken]),
		refreshTokens:   make(map[string]*timedEntry[*RefreshToken]),
		authCodes:       make(map[string]*timedEntry[*AuthorizationCode]),
		deviceCodes:     make(map[string]*timedEntry[*DeviceCode]),
		userCodes:       make(map[string]string),
		scopes:          make(map[string]string),
		defaultScopes:   make(map[string]string),
		scopeRequired:   make(map[string]bool),
		signingKeys:     make(map[string]*SigningKey),
		bearerKeys:      make(map[string]string),
		usedJTIs:        make(map[string]time.Time),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStorage) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired entries. Collects keys under read lock,
// deletes under write lock to keep write lock hold time short.
func (s *MemoryStorage) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()
	var expiredAccess, expiredRefresh, expiredCodes, expiredDevice, expiredJTIs []string
	for k, v := range s.accessTokens {
		if v.expired(now) {
			expiredAccess = append(expiredAccess, k)
		}
	}
	for k, v := range s.refreshTokens {
		if v.expired(now) {
			expiredRefresh = append(expiredRefresh, k)
		}
	}
	for k, v := range s.authCodes {
		if v.expired(now) {
			expiredCodes = append(expiredCodes, k)
		}
	}
	for k, v := range s.deviceCodes {
		if v.expired(now) {
			expiredDevice = append(expiredDevice, k)
		}
	}
	for k, v := range s.usedJTIs {
		if now.After(v) {
			expiredJTIs = append(expiredJTIs, k)
		}
	}
	s.mu.RUnlock()

	if len(expiredAccess) == 0 && len(expiredRefresh) == 0 && len(expiredCodes) == 0 &&
		len(expiredDevice) == 0 && len(expiredJTIs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range expiredAccess {
		delete(s.accessTokens, k)
	}
	for _, k := range expiredRefresh {
		delete(s.refreshTokens, k)
	}
	for _, k := range expiredCodes {
		delete(s.authCodes, k)
	}
	for _, k := range expiredDevice {
		if entry := s.deviceCodes[k]; entry != nil && entry.value != nil {
			delete(s.userCodes, entry.value.UserCode)
		}
		delete(s.deviceCodes, k)
	}
	for _, k := range expiredJTIs {
		delete(s.usedJTIs, k)
	}
}

// -----------------------
// Registration helpers
// -----------------------

// SetClient adds or updates a client. A defensive copy is made.
func (s *MemoryStorage) SetClient(_ context.Context, client *Client) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("%w: client ID cannot be empty", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	s.clients[client.ID] = &c
	return nil
}

// SetUser registers a resource-owner account. The password is bcrypt-hashed
// before storage.
func (s *MemoryStorage) SetUser(_ context.Context, username, password, userID string) error {
	if username == "" || userID == "" {
		return fmt.Errorf("%w: username and user ID are required", ErrMalformedRecord)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[username] = &memoryUser{id: userID, passwordHash: hash}
	return nil
}

// SetScope registers a supported scope token, optionally restricted to a
// client ("" means any client may request it).
func (s *MemoryStorage) SetScope(_ context.Context, scope, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = clientID
	return nil
}

// SetDefaultScope registers the default scope for a client ("" sets the
// global default).
func (s *MemoryStorage) SetDefaultScope(_ context.Context, clientID, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultScopes[clientID] = scope
	return nil
}

// SetSigningKey registers key material for a client ("" sets the global
// fallback key).
func (s *MemoryStorage) SetSigningKey(_ context.Context, clientID string, key *SigningKey) error {
	if key == nil {
		return fmt.Errorf("%w: key cannot be nil", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := *key
	s.signingKeys[clientID] = &k
	return nil
}

// SetClientAssertionKey registers the verification key for a JWT-bearer
// issuer/subject pair.
func (s *MemoryStorage) SetClientAssertionKey(_ context.Context, issuer, subject, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearerKeys[bearerKeyID(issuer, subject)] = key
	return nil
}

// bearerKeyID builds a collision-free lookup key for an issuer/subject pair.
// The length prefix keeps the key unambiguous even if the issuer contains
// the separator.
func bearerKeyID(issuer, subject string) string {
	return fmt.Sprintf("%d:%s:%s", len(issuer), issuer, subject)
}

// -----------------------
// ClientStore / ClientCredentialStore
// -----------------------

// GetClient loads the client by its ID, returning a defensive copy.
func (s *MemoryStorage) GetClient(_ context.Context, id string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		slog.Debug("client not found", "client_id", id)
		return nil, fmt.Errorf("%w: client %q", ErrNotFound, id)
	}
	c := *client
	return &c, nil
}

// CheckClientCredentials verifies the id/secret pair in constant time.
// A public client (empty stored secret) matches only an empty secret.
func (s *MemoryStorage) CheckClientCredentials(_ context.Context, id, secret string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) == 1, nil
}

// -----------------------
// UserCredentialStore
// -----------------------

// CheckUserCredentials verifies a resource owner's password against its
// bcrypt hash.
func (s *MemoryStorage) CheckUserCredentials(_ context.Context, username, password string) (bool, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)) == nil, nil
}

// GetUserID resolves the user identifier for a username.
func (s *MemoryStorage) GetUserID(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return "", fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	return user.id, nil
}

// -----------------------
// AccessTokenStore
// -----------------------

// SetAccessToken stores an access token record.
func (s *MemoryStorage) SetAccessToken(_ context.Context, token *AccessToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("%w: access token value cannot be empty", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.accessTokens[token.Token] = &timedEntry[*AccessToken]{
		value:     &t,
		createdAt: time.Now(),
		expiresAt: token.ExpiresAt,
	}
	return nil
}

// GetAccessToken retrieves an access token record by value.
func (s *MemoryStorage) GetAccessToken(_ context.Context, token string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accessTokens[token]
	if !ok {
		slog.Debug("access token not found")
		return nil, fmt.Errorf("%w: access token", ErrNotFound)
	}
	t := *entry.value
	return &t, nil
}

// -----------------------
// RefreshTokenStore
// -----------------------

// SetRefreshToken stores a refresh token record.
func (s *MemoryStorage) SetRefreshToken(_ context.Context, token *RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("%w: refresh token value cannot be empty", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.refreshTokens[token.Token] = &timedEntry[*RefreshToken]{
		value:     &t,
		createdAt: time.Now(),
		expiresAt: token.ExpiresAt,
	}
	return nil
}

// GetRefreshToken retrieves a refresh token record by value.
func (s *MemoryStorage) GetRefreshToken(_ context.Context, token string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.refreshTokens[token]
	if !ok {
		slog.Debug("refresh token not found")
		return nil, fmt.Errorf("%w: refresh token", ErrNotFound)
	}
	t := *entry.value
	return &t, nil
}

// RevokeRefreshToken removes a refresh token.
func (s *MemoryStorage) RevokeRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token]; !ok {
		return fmt.Errorf("%w: refresh token", ErrNotFound)
	}
	delete(s.refreshTokens, token)
	return nil
}

// -----------------------
// AuthorizationCodeStore
// -----------------------

// SetAuthorizationCode stores an authorization code record. Codes must carry
// an expiry; a zero expiry is a malformed record.
func (s *MemoryStorage) SetAuthorizationCode(_ context.Context, code *AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("%w: authorization code value cannot be empty", ErrMalformedRecord)
	}
	if code.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: authorization code requires an expiry", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.authCodes[code.Code] = &timedEntry[*AuthorizationCode]{
		value:     &c,
		createdAt: time.Now(),
		expiresAt: code.ExpiresAt,
	}
	return nil
}

// GetAuthorizationCode retrieves an authorization code record.
func (s *MemoryStorage) GetAuthorizationCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.authCodes[code]
	if !ok {
		slog.Debug("authorization code not found")
		return nil, fmt.Errorf("%w: authorization code", ErrNotFound)
	}
	if entry.value.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: authorization code has no expiry", ErrMalformedRecord)
	}
	c := *entry.value
	return &c, nil
}

// ConsumeAuthorizationCode removes the code under the write lock, giving
// at-most-once redemption: the second of two racing consumers observes the
// deleted entry and fails with ErrNotFound.
func (s *MemoryStorage) ConsumeAuthorizationCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authCodes[code]; !ok {
		return fmt.Errorf("%w: authorization code", ErrNotFound)
	}
	delete(s.authCodes, code)
	return nil
}

// -----------------------
// DeviceCodeStore
// -----------------------

// SetDeviceCode stores a device/user code pair and indexes the user code.
func (s *MemoryStorage) SetDeviceCode(_ context.Context, code *DeviceCode) error {
	if code == nil || code.DeviceCode == "" || code.UserCode == "" {
		return fmt.Errorf("%w: device and user codes are required", ErrMalformedRecord)
	}
	if code.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: device code requires an expiry", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.deviceCodes[code.DeviceCode] = &timedEntry[*DeviceCode]{
		value:     &c,
		createdAt: time.Now(),
		expiresAt: code.ExpiresAt,
	}
	s.userCodes[code.UserCode] = code.DeviceCode
	return nil
}

// GetDeviceCode retrieves a device code record, scoped to the polling client.
func (s *MemoryStorage) GetDeviceCode(_ context.Context, deviceCode, clientID string) (*DeviceCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.deviceCodes[deviceCode]
	if !ok || entry.value.ClientID != clientID {
		slog.Debug("device code not found", "client_id", clientID)
		return nil, fmt.Errorf("%w: device code", ErrNotFound)
	}
	c := *entry.value
	return &c, nil
}

// GetDeviceCodeByUserCode resolves the record the end user is approving.
func (s *MemoryStorage) GetDeviceCodeByUserCode(_ context.Context, userCode string) (*DeviceCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deviceCode, ok := s.userCodes[userCode]
	if !ok {
		return nil, fmt.Errorf("%w: user code", ErrNotFound)
	}
	entry, ok := s.deviceCodes[deviceCode]
	if !ok {
		return nil, fmt.Errorf("%w: device code", ErrNotFound)
	}
	c := *entry.value
	return &c, nil
}

// ApproveDeviceCode binds the approving user to the pair.
func (s *MemoryStorage) ApproveDeviceCode(_ context.Context, userCode, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceCode, ok := s.userCodes[userCode]
	if !ok {
		return fmt.Errorf("%w: user code", ErrNotFound)
	}
	entry, ok := s.deviceCodes[deviceCode]
	if !ok {
		return fmt.Errorf("%w: device code", ErrNotFound)
	}
	if entry.expired(time.Now()) {
		return ErrExpired
	}
	entry.value.UserID = userID
	return nil
}

// ConsumeDeviceCode removes the record and its user-code index entry.
func (s *MemoryStorage) ConsumeDeviceCode(_ context.Context, deviceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.deviceCodes[deviceCode]
	if !ok {
		return fmt.Errorf("%w: device code", ErrNotFound)
	}
	delete(s.userCodes, entry.value.UserCode)
	delete(s.deviceCodes, deviceCode)
	return nil
}

// -----------------------
// ScopeStore
// -----------------------

// ScopeExists reports whether every token in scope is registered, honoring
// per-scope client restrictions.
func (s *MemoryStorage) ScopeExists(_ context.Context, scope, clientID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, token := range splitScope(scope) {
		restriction, ok := s.scopes[token]
		if !ok {
			return false, nil
		}
		if restriction != "" && restriction != clientID {
			return false, nil
		}
	}
	return true, nil
}

// SetScopeRequired marks a client as rejecting scope-less requests when no
// default scope is configured.
func (s *MemoryStorage) SetScopeRequired(_ context.Context, clientID string, required bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopeRequired[clientID] = required
	return nil
}

// GetDefaultScope returns the client's default scope, falling back to the
// global default. Nil means no default is configured; ErrScopeRequired is
// returned for clients marked as requiring an explicit scope.
func (s *MemoryStorage) GetDefaultScope(_ context.Context, clientID string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope, ok := s.defaultScopes[clientID]; ok {
		return &scope, nil
	}
	if scope, ok := s.defaultScopes[""]; ok {
		return &scope, nil
	}
	if s.scopeRequired[clientID] {
		return nil, ErrScopeRequired
	}
	return nil, nil
}

// -----------------------
// KeyStore
// -----------------------

func (s *MemoryStorage) signingKey(clientID string) (*SigningKey, error) {
	if key, ok := s.signingKeys[clientID]; ok {
		return key, nil
	}
	if key, ok := s.signingKeys[""]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: signing key for client %q", ErrNotFound, clientID)
}

// GetPublicKey returns the verification key configured for the client.
func (s *MemoryStorage) GetPublicKey(_ context.Context, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := s.signingKey(clientID)
	if err != nil {
		return "", err
	}
	return key.PublicKey, nil
}

// GetPrivateKey returns the signing key configured for the client.
func (s *MemoryStorage) GetPrivateKey(_ context.Context, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := s.signingKey(clientID)
	if err != nil {
		return "", err
	}
	return key.PrivateKey, nil
}

// GetSigningAlgorithm returns the algorithm configured for the client.
func (s *MemoryStorage) GetSigningAlgorithm(_ context.Context, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := s.signingKey(clientID)
	if err != nil {
		return "", err
	}
	return key.Algorithm, nil
}

// -----------------------
// JWTBearerKeyStore / JTIStore
// -----------------------

// GetClientKey returns the verification key for an issuer/subject pair.
func (s *MemoryStorage) GetClientKey(_ context.Context, issuer, subject string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.bearerKeys[bearerKeyID(issuer, subject)]
	if !ok {
		return "", fmt.Errorf("%w: assertion key for issuer %q", ErrNotFound, issuer)
	}
	return key, nil
}

// IsJTIUsed reports whether the jti was seen before and is still tracked.
func (s *MemoryStorage) IsJTIUsed(_ context.Context, issuer, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.usedJTIs[bearerKeyID(issuer, jti)]
	return ok && time.Now().Before(exp), nil
}

// MarkJTIUsed records a jti until the assertion's expiry, cleaning out
// already-expired entries on the way.
func (s *MemoryStorage) MarkJTIUsed(_ context.Context, issuer, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, v := range s.usedJTIs {
		if now.After(v) {
			delete(s.usedJTIs, k)
		}
	}

	s.usedJTIs[bearerKeyID(issuer, jti)] = expiresAt
	return nil
}

// -----------------------
// Metrics/Stats (for testing and monitoring)
// -----------------------

// Stats contains statistics about the storage contents.
type Stats struct {
	Clients       int
	Users         int
	AccessTokens  int
	RefreshTokens int
	AuthCodes     int
	DeviceCodes   int
	UsedJTIs      int
}

// Stats returns current statistics about storage contents.
func (s *MemoryStorage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Clients:       len(s.clients),
		Users:         len(s.users),
		AccessTokens:  len(s.accessTokens),
		RefreshTokens: len(s.refreshTokens),
		AuthCodes:     len(s.authCodes),
		DeviceCodes:   len(s.deviceCodes),
		UsedJTIs:      len(s.usedJTIs),
	}
}

// Compile-time interface compliance checks
var (
	_ ClientStore            = (*MemoryStorage)(nil)
	_ ClientCredentialStore  = (*MemoryStorage)(nil)
	_ UserCredentialStore    = (*MemoryStorage)(nil)
	_ AccessTokenStore       = (*MemoryStorage)(nil)
	_ RefreshTokenStore      = (*MemoryStorage)(nil)
	_ AuthorizationCodeStore = (*MemoryStorage)(nil)
	_ DeviceCodeStore        = (*MemoryStorage)(nil)
	_ ScopeStore             = (*MemoryStorage)(nil)
	_ KeyStore               = (*MemoryStorage)(nil)
	_ JWTBearerKeyStore      = (*MemoryStorage)(nil)
	_ JTIStore               = (*MemoryStorage)(nil)
)
