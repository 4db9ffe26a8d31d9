// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "strings"

// Email is a parsed email address. It compares and hashes by its string
// value, so it can be used directly as a map key.
type Email struct {
	value string
}

// ParseEmail validates raw and returns it as an Email.
// The value is kept exactly as supplied.
func ParseEmail(raw string) (Email, error) {
	if !strings.Contains(raw, "@") {
		return Email{}, invalidInput("email", "invalid email")
	}
	return Email{value: raw}, nil
}

// String returns the address as supplied to ParseEmail.
func (e Email) String() string {
	return e.value
}

// IsZero reports whether e was never parsed.
func (e Email) IsZero() bool {
	return e.value == ""
}
