// Package smtp delivers email via an SMTP gateway using STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/brykin/letterdrop/internal/mailer"
	"golang.org/x/time/rate"
)

// Config holds SMTP sender configuration.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	DialTimeout time.Duration
	// SendRate throttles outbound messages per second. Zero disables
	// throttling.
	SendRate float64
}

// Sender implements mailer.Sender over SMTP.
type Sender struct {
	config  Config
	auth    smtp.Auth
	limiter *rate.Limiter
}

// NewSender creates a new SMTP sender.
func NewSender(config Config) (*Sender, error) {
	if config.Host == "" {
		return nil, errors.New("smtp sender: host is required")
	}
	if config.FromAddress == "" {
		return nil, errors.New("smtp sender: from address is required")
	}

	if config.Port == 0 {
		config.Port = 587
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}

	var limiter *rate.Limiter
	if config.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.SendRate), 1)
	}

	slog.Info("smtp sender configured",
		"host", config.Host,
		"port", config.Port,
		"from_address", config.FromAddress,
		"send_rate", config.SendRate,
	)

	return &Sender{
		config:  config,
		auth:    auth,
		limiter: limiter,
	}, nil
}

// Send delivers a single email, classifying failures so callers can
// distinguish transient gateway trouble from permanent recipient
// rejections.
func (s *Sender) Send(ctx context.Context, email mailer.Email) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return mailer.NewUnavailableError(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	msg := buildMessage(s.config.FromAddress, email)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	if err := s.sendWithSTARTTLS(ctx, addr, tlsConfig, email.To, msg); err != nil {
		return classify(err)
	}
	return nil
}

// buildMessage constructs a multipart/alternative message carrying both
// the text and HTML bodies.
func buildMessage(from string, email mailer.Email) []byte {
	const boundary = "=_letterdrop_alt"

	var msg strings.Builder

	// Headers in deterministic order
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeSubject(email.Subject)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(email.TextBody)
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(email.HTMLBody)
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(msg.String())
}

// encodeSubject RFC 2047-encodes non-ASCII subjects.
func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", subject)
}

// sendWithSTARTTLS sends an email using STARTTLS (port 587).
func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, recipient string, msg []byte) error {
	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Bound the whole SMTP conversation by the request deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	from := extractEmail(s.config.FromAddress)
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	if err := client.Rcpt(recipient); err != nil {
		return &rcptError{err: err}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// rcptError marks a failure that happened at the RCPT TO stage, where a
// permanent rejection means the recipient address itself is bad.
type rcptError struct {
	err error
}

func (e *rcptError) Error() string { return fmt.Sprintf("rcpt to: %v", e.err) }

func (e *rcptError) Unwrap() error { return e.err }

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// classify converts raw SMTP and network failures into mailer.SendError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	// Permanent rejection of the recipient address.
	var rcptErr *rcptError
	if errors.As(err, &rcptErr) {
		var protoErr *textproto.Error
		if errors.As(rcptErr.err, &protoErr) && protoErr.Code >= 500 {
			return mailer.NewInvalidRecipientError(err)
		}
		// 4xx at RCPT is a temporary condition (greylisting, mailbox busy).
		return mailer.NewUnavailableError(err)
	}

	// Network-level failures are transient.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return mailer.NewUnavailableError(err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return mailer.NewUnavailableError(err)
	}

	// SMTP 4xx replies elsewhere in the conversation are temporary.
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 400 && protoErr.Code < 500 {
		return mailer.NewUnavailableError(err)
	}

	return mailer.NewUnavailableError(err)
}
