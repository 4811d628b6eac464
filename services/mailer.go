//go:generate go run go.uber.org/mock/mockgen -source=mailer.go -destination=../mocks/mock_mailer.go -package=mocks
package services

import (
	"context"
	"log/slog"
)

// Mailer delivers the password reset link.
type Mailer interface {
	SendResetLink(ctx context.Context, email, link string) error
}

// LogMailer writes the link to the logs instead of sending an email, used when no provider is configured.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) LogMailer {
	return LogMailer{log: log}
}

func (m LogMailer) SendResetLink(_ context.Context, email, link string) error {
	m.log.Info("Password reset link", "email", email, "link", link)
	return nil
}
