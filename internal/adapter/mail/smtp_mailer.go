package mail

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/auditflow/internal/ports"
)

// Config holds SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer implements ports.Mailer over SMTP
type SMTPMailer struct {
	config Config
	send   sendFunc
}

// NewSMTPMailer creates a new SMTP mailer
func NewSMTPMailer(config Config) *SMTPMailer {
	return &SMTPMailer{config: config, send: smtp.SendMail}
}

// Send delivers an HTML message
func (m *SMTPMailer) Send(ctx context.Context, msg ports.Mail) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := m.send(addr, auth, m.config.From, []string{msg.To}, m.build(msg, time.Now())); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg ports.Mail, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.config.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.NewString() + "@auditflow>\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// FailureCounter records undelivered messages
type FailureCounter interface {
	NotificationFailed()
}

// Instrumented counts failed deliveries of the wrapped mailer
type Instrumented struct {
	next    ports.Mailer
	counter FailureCounter
}

// WithFailureCounter wraps a mailer
func WithFailureCounter(next ports.Mailer, counter FailureCounter) *Instrumented {
	return &Instrumented{next: next, counter: counter}
}

func (i *Instrumented) Send(ctx context.Context, msg ports.Mail) error {
	err := i.next.Send(ctx, msg)
	if err != nil {
		i.counter.NotificationFailed()
	}
	return err
}
