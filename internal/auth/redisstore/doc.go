// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redisstore implements the auth revoked-token and challenge stores
// on Redis. Every entry carries a TTL, so expired data is purged by Redis
// itself.
package redisstore
