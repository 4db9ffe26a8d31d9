// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// ChallengeStore implements auth.ChallengeStore with a map keyed by email.
type ChallengeStore struct {
	mu         sync.RWMutex
	challenges map[auth.Email]auth.Challenge
}

var _ auth.ChallengeStore = (*ChallengeStore)(nil)

// NewChallengeStore creates an empty ChallengeStore.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[auth.Email]auth.Challenge)}
}

// Issue replaces the challenge for email.
func (s *ChallengeStore) Issue(_ context.Context, email auth.Email, attemptID auth.LoginAttemptID, code auth.TwoFACode) error {
	s.mu.Lock()
	s.challenges[email] = auth.Challenge{AttemptID: attemptID, Code: code}
	s.mu.Unlock()
	return nil
}

// Peek returns the challenge for email.
func (s *ChallengeStore) Peek(_ context.Context, email auth.Email) (auth.Challenge, error) {
	s.mu.RLock()
	challenge, ok := s.challenges[email]
	s.mu.RUnlock()

	if !ok {
		return auth.Challenge{}, oops.Code("CHALLENGE_NOT_FOUND").With("email", email.String()).Wrap(auth.ErrNotFound)
	}
	return challenge, nil
}

// Consume deletes the challenge for email if it belongs to attemptID.
func (s *ChallengeStore) Consume(_ context.Context, email auth.Email, attemptID auth.LoginAttemptID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[email]
	if !ok || challenge.AttemptID != attemptID {
		return false, nil
	}
	delete(s.challenges, email)
	return true, nil
}
