// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/holomush/holoauth/internal/auth"
)

// LogMailer writes messages to a logger instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

var _ auth.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a LogMailer. A nil logger falls back to slog.Default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message. The body is only logged at debug level.
func (m *LogMailer) Send(ctx context.Context, recipient auth.Email, subject, body string) error {
	m.logger.InfoContext(ctx, "email not sent: log mailer in use",
		"recipient", recipient.String(),
		"subject", subject,
	)
	m.logger.DebugContext(ctx, "email body", "recipient", recipient.String(), "body", body)
	return nil
}
