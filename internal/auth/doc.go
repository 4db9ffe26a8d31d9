// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the authentication domain for holoauth.
//
// # Value Types
//
// Email, Password, LoginAttemptID and TwoFACode can only be obtained through
// their Parse functions (or NewLoginAttemptID / NewTwoFACode for fresh random
// values). A zero value is never produced by a successful parse, so holding
// one of these types means the invariant has already been checked.
//
// # Stores
//
// UserStore, RevokedTokenStore and ChallengeStore describe the three storage
// capabilities. Implementations live in the memory, postgres and redisstore
// subpackages and are selected at process start.
//
// # Service
//
// Service runs the signup, login, second-factor verification, logout and
// token verification flows on top of the stores, a SessionAuthority and a
// Mailer.
package auth
