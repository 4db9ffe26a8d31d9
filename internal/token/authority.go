// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token issues and checks signed session tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Validation failures. All of them satisfy errors.Is(err, auth.ErrInvalidToken).
var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("token signature invalid")
	ErrMalformed    = errors.New("token malformed")
	ErrRevoked      = errors.New("token revoked")
)

// MinSecretLength is the shortest accepted HMAC secret, in bytes.
const MinSecretLength = 16

// Config configures an Authority.
type Config struct {
	Secret []byte
	// TTL is the validity window of issued tokens.
	TTL time.Duration
	// Issuer is written to and required in the iss claim when non-empty.
	Issuer string
}

// Authority signs HS256 session tokens and consults a RevokedTokenStore
// when validating them.
type Authority struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoked auth.RevokedTokenStore
	now     func() time.Time
}

var _ auth.SessionAuthority = (*Authority)(nil)

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// NewAuthority creates an Authority.
func NewAuthority(cfg Config, revoked auth.RevokedTokenStore, opts ...Option) (*Authority, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").With("ttl", cfg.TTL).Errorf("ttl must be positive")
	}
	if revoked == nil {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("revoked token store is required")
	}

	a := &Authority{
		secret:  append([]byte(nil), cfg.Secret...),
		ttl:     cfg.TTL,
		issuer:  cfg.Issuer,
		revoked: revoked,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// TTL returns the validity window of issued tokens.
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue signs a token for email that expires after the configured TTL.
func (a *Authority) Issue(email auth.Email) (string, error) {
	if email.IsZero() {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("email is required")
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   email.String(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("operation", "sign token").Wrap(err)
	}
	return signed, nil
}

// Validate checks signature and expiry, then revocation, and returns the subject.
func (a *Authority) Validate(ctx context.Context, raw string) (auth.Email, error) {
	claims, err := a.parse(raw, true)
	if err != nil {
		return auth.Email{}, err
	}

	email, err := auth.ParseEmail(claims.Subject)
	if err != nil {
		return auth.Email{}, invalid(ErrMalformed, "subject is not an email")
	}

	revoked, err := a.revoked.Contains(ctx, raw)
	if err != nil {
		return auth.Email{}, oops.Code("TOKEN_REVOCATION_CHECK_FAILED").
			With("operation", "check revoked tokens").
			Wrap(auth.Unexpected(err))
	}
	if revoked {
		return auth.Email{}, invalid(ErrRevoked, "token has been revoked")
	}
	return email, nil
}

// Revoke records raw in the revoked store until it would have expired.
// Tokens that have already expired are accepted without a store write.
func (a *Authority) Revoke(ctx context.Context, raw string) error {
	claims, err := a.parse(raw, false)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil {
		return invalid(ErrMalformed, "token has no expiry")
	}

	remaining := claims.ExpiresAt.Sub(a.now())
	if remaining <= 0 {
		return nil
	}
	// Round up to whole seconds; TTL backends work at second granularity.
	remaining = remaining.Truncate(time.Second) + time.Second

	if err := a.revoked.Revoke(ctx, raw, remaining); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "store revoked token").
			Wrap(auth.Unexpected(err))
	}
	return nil
}

// parse verifies the signature. Claim checks (expiry, issuer) only run when
// validateClaims is set.
func (a *Authority) parse(raw string, validateClaims bool) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if validateClaims {
		opts = append(opts, jwt.WithExpirationRequired())
		if a.issuer != "" {
			opts = append(opts, jwt.WithIssuer(a.issuer))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, invalid(ErrExpired, err.Error())
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, invalid(ErrBadSignature, err.Error())
		default:
			return nil, invalid(ErrMalformed, err.Error())
		}
	}
	return claims, nil
}

func invalid(reason error, detail string) error {
	return oops.Code("TOKEN_INVALID").
		With("reason", reason.Error()).
		With("detail", detail).
		Wrap(fmt.Errorf("%w: %w", reason, auth.ErrInvalidToken))
}
