// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// UserStore persists users keyed by email.
type UserStore interface {
	// Add inserts user. Returns ErrAlreadyExists if the email is taken.
	Add(ctx context.Context, user User) error

	// Get returns the user for email. Returns ErrNotFound if absent.
	Get(ctx context.Context, email Email) (User, error)

	// Validate compares password with the stored one.
	// Returns ErrNotFound if absent and ErrInvalidCredentials on mismatch.
	Validate(ctx context.Context, email Email, password Password) error
}

// RevokedTokenStore records session tokens that must no longer validate.
type RevokedTokenStore interface {
	// Revoke marks token as revoked for at least ttl. Revoking twice is not an error.
	Revoke(ctx context.Context, token string, ttl time.Duration) error

	// Contains reports whether token is currently revoked.
	Contains(ctx context.Context, token string) (bool, error)
}

// ChallengeStore holds at most one pending challenge per email.
type ChallengeStore interface {
	// Issue stores a challenge for email, replacing any existing one.
	Issue(ctx context.Context, email Email, attemptID LoginAttemptID, code TwoFACode) error

	// Peek returns the pending challenge. Returns ErrNotFound if none exists.
	Peek(ctx context.Context, email Email) (Challenge, error)

	// Consume deletes the pending challenge if it belongs to attemptID and
	// reports whether this call removed it. At most one concurrent caller
	// observes true for a given challenge.
	Consume(ctx context.Context, email Email, attemptID LoginAttemptID) (bool, error)
}
