package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"blackjack-auth/internal/config"
	"blackjack-auth/internal/util"
)

// Notifier delivers transactional email: confirmation links, two-factor
// codes, and lockout alerts.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPNotifier speaks SMTP over implicit TLS, the way most hosted mail
// providers expect on port 465.
type SMTPNotifier struct {
	config *config.SMTPConfig
}

func NewSMTPNotifier(cfg *config.Config) *SMTPNotifier {
	return &SMTPNotifier{config: &cfg.SMTP}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)

	type result struct{ err error }
	done := make(chan result, 1)

	go func() {
		done <- result{err: n.send(addr, to, subject, body)}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			util.Error("Failed to send email",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(res.err))
			return fmt.Errorf("failed to send email: %w", res.err)
		}
	}

	util.Info("Email sent",
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}

func (n *SMTPNotifier) send(addr, to, subject, body string) error {
	tlsConfig := &tls.Config{ServerName: n.config.Host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}

	c, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if n.config.Username != "" {
		auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(n.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(n.config.From, to, subject, body))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return c.Quit()
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
