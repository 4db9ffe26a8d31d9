// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// DefaultRevokedTokenPrefix namespaces revoked-token keys.
const DefaultRevokedTokenPrefix = "revoked_token:"

// RevokedTokenStore implements auth.RevokedTokenStore. Keys hold the SHA-256
// of the token rather than the token itself.
type RevokedTokenStore struct {
	client redis.Cmdable
	prefix string
}

var _ auth.RevokedTokenStore = (*RevokedTokenStore)(nil)

// NewRevokedTokenStore creates a store. An empty prefix uses DefaultRevokedTokenPrefix.
func NewRevokedTokenStore(client redis.Cmdable, prefix string) *RevokedTokenStore {
	if prefix == "" {
		prefix = DefaultRevokedTokenPrefix
	}
	return &RevokedTokenStore{client: client, prefix: prefix}
}

// Revoke writes the token key with the given TTL. ttl must be positive;
// Redis treats a zero expiry as "keep forever".
func (s *RevokedTokenStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("REVOKED_TOKEN_TTL_INVALID").
			With("ttl", ttl).
			Wrap(auth.Unexpected(errors.New("ttl must be positive")))
	}
	if err := s.client.Set(ctx, s.key(token), 1, ttl).Err(); err != nil {
		return oops.Code("REVOKED_TOKEN_STORE_FAILED").
			With("operation", "set revoked token").
			Wrap(auth.Unexpected(err))
	}
	return nil
}

// Contains reports whether the token key exists.
func (s *RevokedTokenStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, oops.Code("REVOKED_TOKEN_STORE_FAILED").
			With("operation", "check revoked token").
			Wrap(auth.Unexpected(err))
	}
	return n > 0, nil
}

func (s *RevokedTokenStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}
