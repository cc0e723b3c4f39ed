package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mowaa/booking-payments/internal/common"
	"github.com/mowaa/booking-payments/internal/obs"
	"github.com/mowaa/booking-payments/internal/payment"
)

// Dispatcher sends the two post-payment emails: an alert to the admin inbox
// and a confirmation to the customer. The two deliveries run concurrently and
// fail independently; each gets a bounded number of attempts with a fixed
// backoff. Exhausted retries are logged and counted, nothing more. The caller
// already claimed the notification slot, so a lost email stays lost rather
// than risking a duplicate.
type Dispatcher struct {
	Mail        common.EmailSender
	AdminEmail  string
	MaxAttempts int
	Backoff     time.Duration
	Logger      zerolog.Logger
}

// Notify renders and sends both emails for a successful payment.
func (d *Dispatcher) Notify(ctx context.Context, p payment.Payment) payment.Delivery {
	data := buildEmailData(p)

	var delivery payment.Delivery
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		delivery.Admin = d.sendWithRetry(ctx, "admin", d.AdminEmail,
			"New paid booking "+p.Reference, "booking_alert.html", data)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		delivery.Customer = d.sendWithRetry(ctx, "customer", data.Email,
			"Booking confirmation "+p.Reference, "booking_confirmation.html", data)
	}()

	wg.Wait()
	return delivery
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, kind, to, subject, templateName string, data emailData) bool {
	logger := d.Logger.With().Str("recipient", kind).Str("reference", data.Reference).Logger()
	if to == "" {
		logger.Error().Msg("notification_missing_recipient")
		recordDelivery(kind, "skipped")
		return false
	}
	html, err := renderTemplate(templateName, data)
	if err != nil {
		logger.Error().Err(err).Msg("notification_render_failed")
		recordDelivery(kind, "render_failed")
		return false
	}

	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		recordAttempt()
		lastErr = d.Mail.Send(to, subject, html)
		if lastErr == nil {
			recordDelivery(kind, "delivered")
			return true
		}
		logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("notification_send_failed")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			recordDelivery(kind, "canceled")
			return false
		case <-time.After(d.Backoff):
		}
	}
	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("notification_delivery_failed")
	recordDelivery(kind, "failed")
	return false
}

func recordDelivery(recipient, result string) {
	if obs.NotificationDeliveryTotal == nil {
		return
	}
	obs.NotificationDeliveryTotal.WithLabelValues(recipient, result).Inc()
}

func recordAttempt() {
	if obs.NotificationAttempts == nil {
		return
	}
	obs.NotificationAttempts.Inc()
}
