// Package mail delivers one-time login codes to users. The flows depend on
// the Sender interface only; production wires SMTP, tests and local dev
// wire the logging sender.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Sender delivers a login code to an address.
type Sender interface {
	SendLoginCode(ctx context.Context, to, code string) error
}

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Addr     string // host:port
	Host     string // for AUTH and TLS verification
	Username string
	Password string
	From     string
}

// SMTPSender sends login codes through a plain SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) SendLoginCode(_ context.Context, to, code string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	msg.WriteString("Subject: Your login code\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "Your one-time login code is %s. It expires in one minute.\r\n", code)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(s.cfg.Addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("mail: send login code: %w", err)
	}
	return nil
}

// LogSender writes codes to the log instead of sending them. Development
// and test use only.
type LogSender struct {
	Log *slog.Logger
}

func (s *LogSender) SendLoginCode(_ context.Context, to, code string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("login code issued", "to", to, "code", code)
	return nil
}
