// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/holoauth/internal/auth"
)

// Postmark defaults.
const (
	DefaultPostmarkBaseURL = "https://api.postmarkapp.com/email"
	DefaultPostmarkTimeout = 10 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryBase       = 200 * time.Millisecond

	postmarkTokenHeader = "X-Postmark-Server-Token" //nolint:gosec // header name, not a credential
	messageStream       = "outbound"
)

// PostmarkConfig configures a PostmarkMailer.
type PostmarkConfig struct {
	BaseURL    string
	Token      string
	Sender     auth.Email
	Timeout    time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
}

// PostmarkMailer sends mail through the Postmark HTTP API. Transport errors
// and 5xx responses are retried with exponential backoff; 4xx responses
// fail immediately.
type PostmarkMailer struct {
	cfg    PostmarkConfig
	client *http.Client
	logger *slog.Logger
}

var _ auth.Mailer = (*PostmarkMailer)(nil)

// PostmarkOption configures a PostmarkMailer.
type PostmarkOption func(*PostmarkMailer)

// WithHTTPClient replaces the HTTP client. Its Timeout is overwritten by
// the configured timeout.
func WithHTTPClient(client *http.Client) PostmarkOption {
	return func(m *PostmarkMailer) {
		m.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PostmarkOption {
	return func(m *PostmarkMailer) {
		m.logger = logger
	}
}

// NewPostmarkMailer creates a PostmarkMailer. Zero BaseURL, Timeout and
// RetryBase take the defaults; MaxRetries is used as given.
func NewPostmarkMailer(cfg PostmarkConfig, opts ...PostmarkOption) (*PostmarkMailer, error) {
	if cfg.Token == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("postmark token is required")
	}
	if cfg.Sender.IsZero() {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("sender is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPostmarkBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPostmarkTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}

	m := &PostmarkMailer{cfg: cfg, client: &http.Client{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.client.Timeout = cfg.Timeout
	return m, nil
}

type postmarkMessage struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HTMLBody      string `json:"HtmlBody"`
	MessageStream string `json:"MessageStream"`
}

// Send delivers one message.
func (m *PostmarkMailer) Send(ctx context.Context, recipient auth.Email, subject, body string) error {
	payload, err := json.Marshal(postmarkMessage{
		From:          m.cfg.Sender.String(),
		To:            recipient.String(),
		Subject:       subject,
		HTMLBody:      body,
		MessageStream: messageStream,
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "encode message").Wrap(err)
	}

	backoff := retry.WithMaxRetries(m.cfg.MaxRetries, retry.NewExponential(m.cfg.RetryBase))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		return m.post(ctx, payload)
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("recipient", recipient.String()).
			With("attempts", attempt).
			Wrap(err)
	}

	m.logger.DebugContext(ctx, "email sent", "recipient", recipient.String(), "attempts", attempt)
	return nil
}

func (m *PostmarkMailer) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return oops.With("operation", "build request").Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(postmarkTokenHeader, m.cfg.Token)

	resp, err := m.client.Do(req)
	if err != nil {
		return retry.RetryableError(oops.With("operation", "post message").Wrap(err))
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain a bounded amount so the connection can be reused.
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // detail is best effort

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(statusError(resp.StatusCode, detail))
	default:
		return statusError(resp.StatusCode, detail)
	}
}

func statusError(status int, detail []byte) error {
	return oops.With("status", status).
		With("response", string(detail)).
		Errorf("postmark returned %d %s", status, http.StatusText(status))
}
