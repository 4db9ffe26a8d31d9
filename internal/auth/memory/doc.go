// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides process-local implementations of the auth stores.
//
// Entries never expire. They suit tests and single-process deployments
// where the process lifetime bounds staleness.
package memory
