// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Challenge store defaults.
const (
	DefaultChallengePrefix = "two_fa_code:"
	DefaultChallengeTTL    = 10 * time.Minute
)

// ChallengeStore implements auth.ChallengeStore. Each email maps to a JSON
// array of [attemptId, code] that expires after the configured TTL.
type ChallengeStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ auth.ChallengeStore = (*ChallengeStore)(nil)

// NewChallengeStore creates a store. Empty prefix and non-positive ttl fall
// back to the defaults.
func NewChallengeStore(client redis.UniversalClient, prefix string, ttl time.Duration) *ChallengeStore {
	if prefix == "" {
		prefix = DefaultChallengePrefix
	}
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeStore{client: client, prefix: prefix, ttl: ttl}
}

// Issue overwrites the challenge for email and resets its TTL.
func (s *ChallengeStore) Issue(ctx context.Context, email auth.Email, attemptID auth.LoginAttemptID, code auth.TwoFACode) error {
	payload, err := json.Marshal([2]string{attemptID.String(), code.Expose()})
	if err != nil {
		return oops.Code("CHALLENGE_STORE_FAILED").
			With("operation", "encode challenge").
			Wrap(auth.Unexpected(err))
	}
	if err := s.client.Set(ctx, s.key(email), payload, s.ttl).Err(); err != nil {
		return oops.Code("CHALLENGE_STORE_FAILED").
			With("operation", "set challenge").
			Wrap(auth.Unexpected(err))
	}
	return nil
}

// Peek reads the challenge for email.
func (s *ChallengeStore) Peek(ctx context.Context, email auth.Email) (auth.Challenge, error) {
	payload, err := s.client.Get(ctx, s.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.Challenge{}, oops.Code("CHALLENGE_NOT_FOUND").With("email", email.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.Challenge{}, oops.Code("CHALLENGE_STORE_FAILED").
			With("operation", "get challenge").
			Wrap(auth.Unexpected(err))
	}

	var pair [2]string
	if err := json.Unmarshal(payload, &pair); err != nil {
		return auth.Challenge{}, oops.Code("CHALLENGE_CORRUPT").
			With("operation", "decode challenge").
			Wrap(auth.Unexpected(err))
	}
	attemptID, err := auth.ParseLoginAttemptID(pair[0])
	if err != nil {
		return auth.Challenge{}, oops.Code("CHALLENGE_CORRUPT").
			With("operation", "parse login attempt id").
			Wrap(auth.Unexpected(errors.New("stored login attempt id is invalid")))
	}
	code, err := auth.ParseTwoFACode(pair[1])
	if err != nil {
		return auth.Challenge{}, oops.Code("CHALLENGE_CORRUPT").
			With("operation", "parse 2FA code").
			Wrap(auth.Unexpected(errors.New("stored 2FA code is invalid")))
	}
	return auth.Challenge{AttemptID: attemptID, Code: code}, nil
}

// Consume deletes the challenge for email if it still belongs to attemptID.
// The read and the delete run under WATCH, so when two callers race only
// the one whose transaction commits reports true.
func (s *ChallengeStore) Consume(ctx context.Context, email auth.Email, attemptID auth.LoginAttemptID) (bool, error) {
	key := s.key(email)
	consumed := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var pair [2]string
		if err := json.Unmarshal(payload, &pair); err != nil || pair[0] != attemptID.String() {
			return nil
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return err
		}
		consumed = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("CHALLENGE_STORE_FAILED").
			With("operation", "delete challenge").
			Wrap(auth.Unexpected(err))
	}
	return consumed, nil
}

func (s *ChallengeStore) key(email auth.Email) string {
	return s.prefix + email.String()
}
