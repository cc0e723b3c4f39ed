package common

import "sync"

// EmailSender defines the contract for sending emails.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email represents a single email message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail provides a test-friendly email sender that records messages.
// Safe for concurrent sends.
type InMemoryEmail struct {
	mu     sync.Mutex
	outbox []Email
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *InMemoryEmail) Messages() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.outbox))
	copy(out, m.outbox)
	return out
}

// SentTo returns the messages addressed to the given recipient.
func (m *InMemoryEmail) SentTo(to string) []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Email
	for _, e := range m.outbox {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
