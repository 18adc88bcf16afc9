// internal/mail/mailer.go
// Package mail delivers the transactional messages of the verification and
// password-reset flows.
package mail

import (
	"context"
	"log/slog"
)

// Mailer sends account lifecycle messages. Implementations must not block
// request handling on slow delivery beyond the caller's context.
type Mailer interface {
	SendWelcome(ctx context.Context, email, name string) error
	SendVerifyCode(ctx context.Context, email, code string) error
	SendResetCode(ctx context.Context, email, code string) error
}

// logMailer writes deliveries to the structured log instead of a real
// transport. It stands in wherever no provider is configured, the same way an
// unconfigured event stream falls back to a no-op publisher. Codes are never
// logged.
type logMailer struct {
	log *slog.Logger
}

// NewLogMailer creates a mailer that records deliveries in the log.
func NewLogMailer(log *slog.Logger) Mailer {
	return &logMailer{log: log}
}

func (m *logMailer) SendWelcome(ctx context.Context, email, name string) error {
	m.log.Info("welcome mail", "email", email, "name", name)
	return nil
}

func (m *logMailer) SendVerifyCode(ctx context.Context, email, code string) error {
	m.log.Info("verification code mail", "email", email)
	return nil
}

func (m *logMailer) SendResetCode(ctx context.Context, email, code string) error {
	m.log.Info("password reset code mail", "email", email)
	return nil
}
