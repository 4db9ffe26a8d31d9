// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/pkg/errutil"
)

const tracerName = "github.com/holomush/holoauth/internal/web"

// Response messages.
const (
	msgUserCreated   = "User created successfully!"
	msgTwoFARequired = "2FA required"
)

// Authenticator runs the authentication flows. *auth.Service implements it.
type Authenticator interface {
	Signup(ctx context.Context, email, password string, requires2FA bool) error
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Verify2FA(ctx context.Context, email, attemptID, code string) (string, error)
	Logout(ctx context.Context, token string) error
	VerifyToken(ctx context.Context, token string) (auth.Email, error)
}

var _ Authenticator = (*auth.Service)(nil)

// Handler serves the authentication routes.
type Handler struct {
	auth    Authenticator
	carrier CredentialCarrier
	schemas *requestSchemas
	metrics *observability.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records request and login metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// NewHandler creates a Handler.
func NewHandler(authenticator Authenticator, carrier CredentialCarrier, opts ...Option) (*Handler, error) {
	if authenticator == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("authenticator is required")
	}
	if carrier == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("credential carrier is required")
	}
	schemas, err := compileRequestSchemas()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		auth:    authenticator,
		carrier: carrier,
		schemas: schemas,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes returns the HTTP handler for every route, wrapped in the
// request ID, recovery and access log middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.handle(mux, "POST /signup", h.signup)
	h.handle(mux, "POST /login", h.login)
	h.handle(mux, "POST /verify-2fa", h.verify2FA)
	h.handle(mux, "POST /logout", h.logout)
	h.handle(mux, "POST /verify-token", h.verifyToken)

	return Chain(mux,
		WithRequestID,
		WithRecover(h.logger),
		WithAccessLog(h.logger),
	)
}

func (h *Handler) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, h.metrics, h.tracer, fn))
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, h.schemas.signup, &req) {
		return
	}
	if err := h.auth.Signup(r.Context(), req.Email, req.Password, req.Requires2FA); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: msgUserCreated})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, h.schemas.login, &req) {
		return
	}
	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.countLogin(loginFailureOutcome(err))
		h.fail(w, r, err)
		return
	}
	h.countLogin(result.Outcome.String())

	switch result.Outcome {
	case auth.LoginChallengeIssued:
		writeJSON(w, http.StatusPartialContent, challengeResponse{
			Message:        msgTwoFARequired,
			LoginAttemptID: result.AttemptID.String(),
		})
	default:
		h.carrier.Attach(w, result.Token)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) verify2FA(w http.ResponseWriter, r *http.Request) {
	var req verify2FARequest
	if !h.decode(w, r, h.schemas.verify2FA, &req) {
		return
	}
	token, err := h.auth.Verify2FA(r.Context(), req.Email, req.LoginAttemptID, req.TwoFACode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.carrier.Attach(w, token)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := h.carrier.Read(r)
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TokensRevoked.Inc()
	}
	h.carrier.Clear(w)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	if !h.decode(w, r, h.schemas.verifyToken, &req) {
		return
	}
	if _, err := h.auth.VerifyToken(r.Context(), req.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// decode reports whether the body was decoded. On failure the error
// response has already been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, sch schemaValidator, dst any) bool {
	err := decodeBody(w, r, sch, dst)
	if err == nil {
		return true
	}
	var be *bodyError
	if !errors.As(err, &be) {
		h.fail(w, r, err)
		return false
	}
	h.logger.DebugContext(r.Context(), "request body rejected",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", be.status,
		"error", be.cause.Error(),
	)
	writeError(w, be.status, be.msg)
	return false
}

// fail writes the response for a service error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(r.Context(), h.logger, "request failed", err,
			"request_id", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
		)
	}
	writeError(w, status, msg)
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func loginFailureOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnexpected):
		return "error"
	case errors.Is(err, auth.ErrIncorrectCredentials):
		return "incorrect_credentials"
	case errors.Is(err, auth.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
