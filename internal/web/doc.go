// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the authentication protocol over HTTP.
//
// Every route accepts a JSON body. Bodies are checked against a JSON Schema
// reflected from the request struct before they are decoded, which lets a
// payload with a missing or mistyped field be told apart from one whose
// fields are present but fail domain parsing. The session token travels in
// a cookie managed by a CredentialCarrier.
package web
