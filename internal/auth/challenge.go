// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// loginAttemptIDLength is the length of the canonical UUID text form.
const loginAttemptIDLength = 36

// TwoFACodeLength is the number of digits in a second-factor code.
const TwoFACodeLength = 6

var twoFACodeSpace = big.NewInt(1_000_000)

// LoginAttemptID correlates a login attempt with the challenge issued for it.
type LoginAttemptID struct {
	id uuid.UUID
}

// NewLoginAttemptID returns a fresh random attempt ID.
func NewLoginAttemptID() LoginAttemptID {
	return LoginAttemptID{id: uuid.New()}
}

// ParseLoginAttemptID accepts only the canonical 36-character UUID form.
func ParseLoginAttemptID(raw string) (LoginAttemptID, error) {
	if len(raw) != loginAttemptIDLength {
		return LoginAttemptID{}, invalidInput("loginAttemptId", "invalid login attempt id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return LoginAttemptID{}, invalidInput("loginAttemptId", "invalid login attempt id")
	}
	return LoginAttemptID{id: id}, nil
}

// String returns the canonical lowercase form.
func (l LoginAttemptID) String() string {
	return l.id.String()
}

// IsZero reports whether l was never generated or parsed.
func (l LoginAttemptID) IsZero() bool {
	return l.id == uuid.Nil
}

// TwoFACode is a one-time six-digit second-factor code.
//
// Like Password, its printed and logged forms are redacted.
type TwoFACode struct {
	value string
}

// NewTwoFACode draws a uniformly random code from crypto/rand.
func NewTwoFACode() (TwoFACode, error) {
	n, err := rand.Int(rand.Reader, twoFACodeSpace)
	if err != nil {
		return TwoFACode{}, oops.Code("TWO_FA_CODE_GENERATE_FAILED").Wrap(err)
	}
	return TwoFACode{value: fmt.Sprintf("%06d", n.Int64())}, nil
}

// ParseTwoFACode accepts exactly six ASCII digits.
func ParseTwoFACode(raw string) (TwoFACode, error) {
	if len(raw) != TwoFACodeLength {
		return TwoFACode{}, invalidInput("2FACode", "invalid 2FA code: must be a 6-digit number")
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return TwoFACode{}, invalidInput("2FACode", "invalid 2FA code: must be a 6-digit number")
		}
	}
	return TwoFACode{value: raw}, nil
}

// Equal reports whether c and other hold the same code, in constant time.
func (c TwoFACode) Equal(other TwoFACode) bool {
	return subtle.ConstantTimeCompare([]byte(c.value), []byte(other.value)) == 1
}

// Expose returns the digits.
func (c TwoFACode) Expose() string {
	return c.value
}

// IsZero reports whether c was never generated or parsed.
func (c TwoFACode) IsZero() bool {
	return c.value == ""
}

// String implements fmt.Stringer.
func (c TwoFACode) String() string {
	return redacted
}

// LogValue implements slog.LogValuer.
func (c TwoFACode) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Challenge is a pending second-factor verification for one email.
type Challenge struct {
	AttemptID LoginAttemptID
	Code      TwoFACode
}

// Matches reports whether both the attempt ID and the code match.
// Both comparisons always run.
func (c Challenge) Matches(attemptID LoginAttemptID, code TwoFACode) bool {
	idOK := subtle.ConstantTimeCompare([]byte(c.AttemptID.String()), []byte(attemptID.String())) == 1
	codeOK := c.Code.Equal(code)
	return idOK && codeOK
}
