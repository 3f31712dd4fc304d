package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmailConfig holds the SMTP settings for the email sender.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender delivers over SMTP. STARTTLS is negotiated when the server
// offers it.
type EmailSender struct {
	cfg EmailConfig
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Channel() string { return "email" }

func (s *EmailSender) Send(ctx context.Context, recipient string, msg *Message) SendResult {
	if s.cfg.Host == "" || s.cfg.From == "" {
		return SendResult{Error: "smtp host and from address are required"}
	}

	id := uuid.NewString()
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", sanitizeHeader(s.cfg.From))
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(recipient))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(Subject(msg)))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", id, s.cfg.Host)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(Body(msg))

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{recipient}, []byte(b.String())); err != nil {
		return SendResult{Error: err.Error()}
	}
	return SendResult{Sent: true, MessageID: id}
}

// sanitizeHeader strips CR and LF so values interpolated into headers
// cannot inject additional headers. Monitor names reach the subject line.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}
