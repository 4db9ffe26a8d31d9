// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// UserStore implements auth.UserStore with a map.
type UserStore struct {
	mu    sync.RWMutex
	users map[auth.Email]auth.User
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[auth.Email]auth.User)}
}

// Add inserts user unless the email is taken.
func (s *UserStore) Add(_ context.Context, user auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return oops.Code("USER_EXISTS").With("email", user.Email.String()).Wrap(auth.ErrAlreadyExists)
	}
	s.users[user.Email] = user
	return nil
}

// Get returns the user for email.
func (s *UserStore) Get(_ context.Context, email auth.Email) (auth.User, error) {
	s.mu.RLock()
	user, ok := s.users[email]
	s.mu.RUnlock()

	if !ok {
		return auth.User{}, oops.Code("USER_NOT_FOUND").With("email", email.String()).Wrap(auth.ErrNotFound)
	}
	return user, nil
}

// Validate compares password with the stored one.
func (s *UserStore) Validate(ctx context.Context, email auth.Email, password auth.Password) error {
	user, err := s.Get(ctx, email)
	if err != nil {
		return err
	}
	if !user.Password.Equal(password) {
		return oops.Code("USER_INVALID_CREDENTIALS").With("email", email.String()).Wrap(auth.ErrInvalidCredentials)
	}
	return nil
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
