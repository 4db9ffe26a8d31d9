// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/holomush/holoauth/internal/auth"
)

// RevokedTokenStore implements auth.RevokedTokenStore with a set.
// The ttl passed to Revoke is ignored.
type RevokedTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

var _ auth.RevokedTokenStore = (*RevokedTokenStore)(nil)

// NewRevokedTokenStore creates an empty RevokedTokenStore.
func NewRevokedTokenStore() *RevokedTokenStore {
	return &RevokedTokenStore{tokens: make(map[string]struct{})}
}

// Revoke adds token to the set.
func (s *RevokedTokenStore) Revoke(_ context.Context, token string, _ time.Duration) error {
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Contains reports whether token was revoked.
func (s *RevokedTokenStore) Contains(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	_, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok, nil
}
