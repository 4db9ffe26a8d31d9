// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "github.com/samber/oops"

// User is a registered account. Users are created on signup and never
// modified afterwards.
type User struct {
	Email       Email
	Password    Password
	Requires2FA bool
}

// NewUser creates a User from parsed values.
func NewUser(email Email, password Password, requires2FA bool) (User, error) {
	if email.IsZero() {
		return User{}, oops.Code("USER_INVALID").Errorf("email is required")
	}
	if password.IsZero() {
		return User{}, oops.Code("USER_INVALID").Errorf("password is required")
	}
	return User{Email: email, Password: password, Requires2FA: requires2FA}, nil
}
