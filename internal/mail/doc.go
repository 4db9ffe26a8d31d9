// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail implements auth.Mailer.
//
// PostmarkMailer delivers through the Postmark transactional email API.
// LogMailer only logs and is meant for development and tests.
package mail
