// Package mailer is the alternate delivery channel: plain-text email over
// SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/hibari-ai/officebot/internal/boterr"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type dialer interface {
	DialAndSend(messages ...*gomail.Message) error
}

type Mailer struct {
	cfg    Config
	dialer dialer
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Mailer {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger.With("component", "mailer"),
	}
}

// Send delivers one plain-text message. Failures are wrapped in
// boterr.ErrSendFailed so callers can degrade without inspecting SMTP
// details.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(m.cfg.Host) == "" {
		return fmt.Errorf("%w: smtp host not configured", boterr.ErrSendFailed)
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: empty recipient", boterr.ErrSendFailed)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from())
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Warn("smtp send failed", "to", to, "error", err)
		return fmt.Errorf("%w: %v", boterr.ErrSendFailed, err)
	}
	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

func (m *Mailer) from() string {
	if strings.TrimSpace(m.cfg.From) != "" {
		return m.cfg.From
	}
	return m.cfg.Username
}
