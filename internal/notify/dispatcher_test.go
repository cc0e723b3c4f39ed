package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mowaa/booking-payments/internal/common"
	"github.com/mowaa/booking-payments/internal/payment"
)

// flakySender fails a configurable number of times per recipient before
// succeeding. Safe for the dispatcher's concurrent sends.
type flakySender struct {
	mu       sync.Mutex
	failures map[string]int
	sent     []common.Email
}

func (f *flakySender) Send(to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[to] > 0 {
		f.failures[to]--
		return errors.New("smtp: connection reset")
	}
	f.sent = append(f.sent, common.Email{To: to, Subject: subject, HTML: html})
	return nil
}

func (f *flakySender) sentTo(to string) []common.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []common.Email
	for _, e := range f.sent {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

func successPayment() payment.Payment {
	return payment.Payment{
		Reference:   "REF123",
		Status:      payment.StatusSuccess,
		FormData:    json.RawMessage(`{"name":"Jane Doe","email":"jane@example.com"}`),
		CartItems:   json.RawMessage(`[{"name":"Adult ticket","quantity":2,"price":2500}]`),
		TotalAmount: 5000.00,
		Currency:    "NGN",
	}
}

func newDispatcher(sender common.EmailSender) *Dispatcher {
	return &Dispatcher{
		Mail:        sender,
		AdminEmail:  "bookings@example.com",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Logger:      zerolog.Nop(),
	}
}

func TestNotifySendsBothEmails(t *testing.T) {
	sender := &common.InMemoryEmail{}
	d := newDispatcher(sender)

	delivery := d.Notify(context.Background(), successPayment())
	require.True(t, delivery.Admin)
	require.True(t, delivery.Customer)
	require.Len(t, sender.Messages(), 2)

	admin := sender.SentTo("bookings@example.com")
	require.Len(t, admin, 1)
	require.Contains(t, admin[0].Subject, "REF123")
	require.Contains(t, admin[0].HTML, "Jane Doe")
	require.Contains(t, admin[0].HTML, "5000.00")

	customer := sender.SentTo("jane@example.com")
	require.Len(t, customer, 1)
	require.Contains(t, customer[0].HTML, "REF123")
	require.Contains(t, customer[0].HTML, "Adult ticket")
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	sender := &flakySender{failures: map[string]int{"jane@example.com": 2}}
	d := newDispatcher(sender)

	delivery := d.Notify(context.Background(), successPayment())
	require.True(t, delivery.Admin)
	require.True(t, delivery.Customer)
	require.Len(t, sender.sentTo("jane@example.com"), 1)
}

func TestNotifyFailuresAreIndependent(t *testing.T) {
	// the customer address never recovers; the admin alert must still land
	sender := &flakySender{failures: map[string]int{"jane@example.com": 10}}
	d := newDispatcher(sender)

	delivery := d.Notify(context.Background(), successPayment())
	require.True(t, delivery.Admin)
	require.False(t, delivery.Customer)
	require.Len(t, sender.sentTo("bookings@example.com"), 1)
	require.Empty(t, sender.sentTo("jane@example.com"))
}

func TestNotifyExhaustsBoundedAttempts(t *testing.T) {
	sender := &flakySender{failures: map[string]int{
		"bookings@example.com": 10,
		"jane@example.com":     10,
	}}
	d := newDispatcher(sender)

	delivery := d.Notify(context.Background(), successPayment())
	require.False(t, delivery.Admin)
	require.False(t, delivery.Customer)

	sender.mu.Lock()
	remainingAdmin := sender.failures["bookings@example.com"]
	remainingCustomer := sender.failures["jane@example.com"]
	sender.mu.Unlock()
	require.Equal(t, 7, remainingAdmin)
	require.Equal(t, 7, remainingCustomer)
}

func TestNotifyMissingCustomerEmail(t *testing.T) {
	p := successPayment()
	p.FormData = json.RawMessage(`{"name":"Jane Doe"}`)
	sender := &common.InMemoryEmail{}
	d := newDispatcher(sender)

	delivery := d.Notify(context.Background(), p)
	require.True(t, delivery.Admin)
	require.False(t, delivery.Customer)
	require.Len(t, sender.Messages(), 1)
}

func TestTemplatesEscapeCustomerInput(t *testing.T) {
	p := successPayment()
	p.FormData = json.RawMessage(`{"name":"<script>alert(1)</script>","email":"jane@example.com"}`)
	sender := &common.InMemoryEmail{}
	d := newDispatcher(sender)

	d.Notify(context.Background(), p)
	customer := sender.SentTo("jane@example.com")
	require.Len(t, customer, 1)
	require.NotContains(t, customer[0].HTML, "<script>")
	require.True(t, strings.Contains(customer[0].HTML, "&lt;script&gt;"))
}
