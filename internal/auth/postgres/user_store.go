// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used here. pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements auth.UserStore against the users table.
type UserStore struct {
	pool poolIface
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

// Add inserts user. The primary key on email rejects duplicates in a single
// statement.
func (s *UserStore) Add(ctx context.Context, user auth.User) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (email, password, requires_2fa)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`, user.Email.String(), user.Password.Expose(), user.Requires2FA)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return userExists(user.Email)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(auth.Unexpected(err))
	}
	if tag.RowsAffected() == 0 {
		return userExists(user.Email)
	}
	return nil
}

// Get loads the user for email.
func (s *UserStore) Get(ctx context.Context, email auth.Email) (auth.User, error) {
	var (
		storedEmail    string
		storedPassword string
		requires2FA    bool
	)
	err := s.pool.QueryRow(ctx, `
		SELECT email, password, requires_2fa
		FROM users
		WHERE email = $1
	`, email.String()).Scan(&storedEmail, &storedPassword, &requires2FA)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, oops.Code("USER_NOT_FOUND").With("email", email.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.User{}, oops.Code("USER_QUERY_FAILED").
			With("operation", "select user").
			Wrap(auth.Unexpected(err))
	}

	parsedEmail, err := auth.ParseEmail(storedEmail)
	if err != nil {
		return auth.User{}, corruptRow(email, "email")
	}
	password, err := auth.ParsePassword(storedPassword)
	if err != nil {
		return auth.User{}, corruptRow(email, "password")
	}
	user, err := auth.NewUser(parsedEmail, password, requires2FA)
	if err != nil {
		return auth.User{}, corruptRow(email, "user")
	}
	return user, nil
}

// Validate loads the user and compares passwords.
func (s *UserStore) Validate(ctx context.Context, email auth.Email, password auth.Password) error {
	user, err := s.Get(ctx, email)
	if err != nil {
		return err
	}
	if !user.Password.Equal(password) {
		return oops.Code("USER_INVALID_CREDENTIALS").With("email", email.String()).Wrap(auth.ErrInvalidCredentials)
	}
	return nil
}

func userExists(email auth.Email) error {
	return oops.Code("USER_EXISTS").With("email", email.String()).Wrap(auth.ErrAlreadyExists)
}

func corruptRow(email auth.Email, column string) error {
	return oops.Code("USER_ROW_CORRUPT").
		With("email", email.String()).
		With("column", column).
		Wrap(auth.Unexpected(errors.New("stored user row failed validation")))
}
