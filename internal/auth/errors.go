// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Store outcomes.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when adding a user whose email is taken.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned by UserStore.Validate on a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnexpected marks a backend failure. The wrapped chain keeps the
	// backend detail for logs; clients only ever see a generic message.
	ErrUnexpected = errors.New("unexpected error")
)

// Protocol outcomes returned by Service.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrMissingToken         = errors.New("missing auth token")
	ErrInvalidToken         = errors.New("invalid auth token")
)

// Unexpected wraps err so that errors.Is(result, ErrUnexpected) holds.
// Errors already marked unexpected are returned unchanged.
func Unexpected(err error) error {
	if err == nil || errors.Is(err, ErrUnexpected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpected, err)
}

// invalidInput builds the error returned when a value fails domain parsing.
// msg is safe to show to clients.
func invalidInput(field, msg string) error {
	return oops.Code("INVALID_INPUT").
		With("field", field).
		Public(msg).
		Wrapf(ErrInvalidInput, "%s", msg)
}
