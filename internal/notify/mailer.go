package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPMailer sends HTML email through a plain SMTP relay. It implements
// common.EmailSender.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send delivers a single HTML message.
func (m SMTPMailer) Send(to, subject, html string) error {
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var msg strings.Builder
	msg.WriteString("From: " + m.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	if err := smtp.SendMail(addr, auth, m.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("notify: smtp send to %s: %w", to, err)
	}
	return nil
}

// sanitizeHeader strips CR/LF so a caller-supplied subject cannot inject
// additional headers.
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}
