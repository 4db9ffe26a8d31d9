// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/subtle"
	"log/slog"
	"unicode/utf8"
)

// MinPasswordLength is the minimum password length in characters.
const MinPasswordLength = 8

const redacted = "[REDACTED]"

// Password is a parsed user password.
//
// Its String, GoString and LogValue forms are redacted. Use Expose only
// where the plaintext has to cross a storage boundary.
type Password struct {
	value string
}

// ParsePassword validates raw and returns it as a Password.
// Length is counted in characters, not bytes.
func ParsePassword(raw string) (Password, error) {
	if utf8.RuneCountInString(raw) < MinPasswordLength {
		return Password{}, invalidInput("password", "password too short")
	}
	return Password{value: raw}, nil
}

// Equal reports whether p and other hold the same password.
// The comparison runs in constant time for equal-length inputs.
func (p Password) Equal(other Password) bool {
	return subtle.ConstantTimeCompare([]byte(p.value), []byte(other.value)) == 1
}

// Expose returns the plaintext password.
func (p Password) Expose() string {
	return p.value
}

// IsZero reports whether p was never parsed.
func (p Password) IsZero() bool {
	return p.value == ""
}

// String implements fmt.Stringer.
func (p Password) String() string {
	return redacted
}

// GoString implements fmt.GoStringer.
func (p Password) GoString() string {
	return redacted
}

// LogValue implements slog.LogValuer.
func (p Password) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalText keeps the plaintext out of JSON, YAML and text encoders.
func (p Password) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
