// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Mail sent when a login requires a second factor.
const (
	TwoFASubject    = "2FA code"
	twoFABodyFormat = "Your 2FA code is %s"
)

const tracerName = "github.com/holomush/holoauth/internal/auth"

// Mailer delivers a message to a user.
type Mailer interface {
	Send(ctx context.Context, recipient Email, subject, body string) error
}

// SessionAuthority mints and checks session tokens.
type SessionAuthority interface {
	// Issue returns a signed token for email.
	Issue(email Email) (string, error)

	// Validate checks signature, expiry and revocation, in that order,
	// and returns the token subject.
	Validate(ctx context.Context, token string) (Email, error)

	// Revoke makes token invalid for the rest of its validity window.
	Revoke(ctx context.Context, token string) error
}

// LoginOutcome tells which branch a successful login took.
type LoginOutcome int

// Login outcomes.
const (
	LoginSessionEstablished LoginOutcome = iota + 1
	LoginChallengeIssued
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSessionEstablished:
		return "session_established"
	case LoginChallengeIssued:
		return "challenge_issued"
	default:
		return "unknown"
	}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Outcome LoginOutcome
	// Token is set when Outcome is LoginSessionEstablished.
	Token string
	// AttemptID is set when Outcome is LoginChallengeIssued.
	AttemptID LoginAttemptID
}

// Service runs the authentication flows.
type Service struct {
	users      UserStore
	challenges ChallengeStore
	sessions   SessionAuthority
	mailer     Mailer
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewService creates a Service. A nil logger falls back to slog.Default.
func NewService(users UserStore, challenges ChallengeStore, sessions SessionAuthority, mailer Mailer, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user store is required")
	}
	if challenges == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("challenge store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session authority is required")
	}
	if mailer == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:      users,
		challenges: challenges,
		sessions:   sessions,
		mailer:     mailer,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Signup registers a new user.
func (s *Service) Signup(ctx context.Context, rawEmail, rawPassword string, requires2FA bool) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Signup")
	defer func() { endSpan(span, err) }()

	email, err := ParseEmail(rawEmail)
	if err != nil {
		return err
	}
	password, err := ParsePassword(rawPassword)
	if err != nil {
		return err
	}

	_, err = s.users.Get(ctx, email)
	switch {
	case err == nil:
		return oops.Code("AUTH_USER_EXISTS").With("email", email.String()).Wrap(ErrAlreadyExists)
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "get user").Wrap(Unexpected(err))
	}

	user, err := NewUser(email, password, requires2FA)
	if err != nil {
		return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "build user").Wrap(Unexpected(err))
	}

	if err := s.users.Add(ctx, user); err != nil {
		// Another signup for the same email can land between Get and Add.
		if errors.Is(err, ErrAlreadyExists) {
			return oops.Code("AUTH_USER_EXISTS").With("email", email.String()).Wrap(err)
		}
		return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "add user").Wrap(Unexpected(err))
	}

	s.logger.InfoContext(ctx, "user signed up",
		"email", email.String(),
		"requires_2fa", requires2FA,
	)
	return nil
}

// Login checks credentials. Users without a second factor get a session
// token; the others get a challenge mailed to them and an attempt ID.
func (s *Service) Login(ctx context.Context, rawEmail, rawPassword string) (result *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	email, err := ParseEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	password, err := ParsePassword(rawPassword)
	if err != nil {
		return nil, err
	}

	// Unknown email and wrong password must look the same to the caller.
	if err := s.users.Validate(ctx, email, password); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidCredentials) {
			return nil, incorrectCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "validate user").Wrap(Unexpected(err))
	}

	user, err := s.users.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, incorrectCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user").Wrap(Unexpected(err))
	}

	if user.Requires2FA {
		return s.issueChallenge(ctx, user.Email)
	}

	token, err := s.sessions.Issue(user.Email)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue session token").Wrap(Unexpected(err))
	}
	s.logger.InfoContext(ctx, "login succeeded", "email", user.Email.String())
	return &LoginResult{Outcome: LoginSessionEstablished, Token: token}, nil
}

// issueChallenge stores a fresh challenge and mails its code. If the mail
// fails after the store write, the orphaned challenge simply expires.
func (s *Service) issueChallenge(ctx context.Context, email Email) (*LoginResult, error) {
	attemptID := NewLoginAttemptID()
	code, err := NewTwoFACode()
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "generate 2FA code").Wrap(Unexpected(err))
	}

	if err := s.challenges.Issue(ctx, email, attemptID, code); err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue challenge").Wrap(Unexpected(err))
	}

	body := fmt.Sprintf(twoFABodyFormat, code.Expose())
	if err := s.mailer.Send(ctx, email, TwoFASubject, body); err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "send 2FA code").Wrap(Unexpected(err))
	}

	s.logger.InfoContext(ctx, "2FA challenge issued",
		"email", email.String(),
		"login_attempt_id", attemptID.String(),
	)
	return &LoginResult{Outcome: LoginChallengeIssued, AttemptID: attemptID}, nil
}

// Verify2FA completes a challenged login and returns a session token.
func (s *Service) Verify2FA(ctx context.Context, rawEmail, rawAttemptID, rawCode string) (token string, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Verify2FA")
	defer func() { endSpan(span, err) }()

	email, err := ParseEmail(rawEmail)
	if err != nil {
		return "", err
	}
	attemptID, err := ParseLoginAttemptID(rawAttemptID)
	if err != nil {
		return "", err
	}
	code, err := ParseTwoFACode(rawCode)
	if err != nil {
		return "", err
	}

	challenge, err := s.challenges.Peek(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", incorrectCredentials()
		}
		return "", oops.Code("AUTH_VERIFY_2FA_FAILED").With("operation", "peek challenge").Wrap(Unexpected(err))
	}

	if !challenge.Matches(attemptID, code) {
		return "", incorrectCredentials()
	}

	consumed, err := s.challenges.Consume(ctx, email, attemptID)
	if err != nil {
		return "", oops.Code("AUTH_VERIFY_2FA_FAILED").With("operation", "consume challenge").Wrap(Unexpected(err))
	}
	if !consumed {
		// Another request used the challenge first, or a new login replaced it.
		return "", incorrectCredentials()
	}

	token, err = s.sessions.Issue(email)
	if err != nil {
		return "", oops.Code("AUTH_VERIFY_2FA_FAILED").With("operation", "issue session token").Wrap(Unexpected(err))
	}
	s.logger.InfoContext(ctx, "2FA verified", "email", email.String())
	return token, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer func() { endSpan(span, err) }()

	if token == "" {
		return oops.Code("AUTH_MISSING_TOKEN").Wrap(ErrMissingToken)
	}

	email, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return s.invalidToken(ctx, err)
	}

	if err := s.sessions.Revoke(ctx, token); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "revoke token").Wrap(Unexpected(err))
	}
	s.logger.InfoContext(ctx, "logged out", "email", email.String())
	return nil
}

// VerifyToken returns the subject of a valid token.
func (s *Service) VerifyToken(ctx context.Context, token string) (email Email, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.VerifyToken")
	defer func() { endSpan(span, err) }()

	if token == "" {
		return Email{}, oops.Code("AUTH_INVALID_TOKEN").Wrap(ErrInvalidToken)
	}
	email, err = s.sessions.Validate(ctx, token)
	if err != nil {
		return Email{}, s.invalidToken(ctx, err)
	}
	return email, nil
}

// invalidToken collapses every validation failure into ErrInvalidToken.
// Backend failures still get logged so an outage is visible.
func (s *Service) invalidToken(ctx context.Context, cause error) error {
	if errors.Is(cause, ErrUnexpected) {
		s.logger.WarnContext(ctx, "token validation backend failure", "error", cause)
	}
	return oops.Code("AUTH_INVALID_TOKEN").With("reason", cause.Error()).Wrap(ErrInvalidToken)
}

func incorrectCredentials() error {
	return oops.Code("AUTH_INCORRECT_CREDENTIALS").Wrap(ErrIncorrectCredentials)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
