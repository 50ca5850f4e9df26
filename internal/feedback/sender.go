package feedback

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/coretet/internal/config"
)

// Sender delivers a plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes messages to the log instead of sending them. It is used
// when SMTP is not configured.
type LogSender struct {
	Logger *log.Logger
}

// Send logs the message.
func (s LogSender) Send(_ context.Context, to, subject, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Info("feedback email (not sent, smtp unconfigured)", "to", to, "subject", subject, "body", body)
	return nil
}

// SMTPSender sends mail through an SMTP relay with PLAIN auth, upgrading to
// TLS when the server offers STARTTLS.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
}

// NewSMTPSender creates an SMTPSender from config.
func NewSMTPSender(cfg config.FeedbackConfig) (*SMTPSender, error) {
	if cfg.SMTPHost == "" || cfg.From == "" {
		return nil, errors.New("smtp not fully configured")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  30 * time.Second,
	}, nil
}

// NewSender returns an SMTPSender when SMTP is configured and a LogSender
// otherwise.
func NewSender(cfg config.FeedbackConfig, logger *log.Logger) Sender {
	if s, err := NewSMTPSender(cfg); err == nil {
		return s
	}
	return LogSender{Logger: logger}
}

// Send delivers one message. The dial honours ctx; the exchange is bounded
// by the sender's timeout.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing smtp: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.from, to, subject, body)); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	// Header values must not carry line breaks.
	clean := strings.NewReplacer("\r", " ", "\n", " ")
	return []byte(
		fmt.Sprintf("From: %s\r\n", clean.Replace(from)) +
			fmt.Sprintf("To: %s\r\n", clean.Replace(to)) +
			fmt.Sprintf("Subject: %s\r\n", clean.Replace(subject)) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)
}

var (
	_ Sender = LogSender{}
	_ Sender = (*SMTPSender)(nil)
)
