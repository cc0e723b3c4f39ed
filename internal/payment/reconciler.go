package payment

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mowaa/booking-payments/internal/gateway"
	"github.com/mowaa/booking-payments/internal/obs"
)

// Source identifies which trigger asked for a reconciliation. All three race
// freely; the store's conditional update decides the winner.
type Source string

const (
	SourceCallback Source = "callback"
	SourceWebhook  Source = "webhook"
	SourcePoll     Source = "poll"
)

// Store is the persistence surface the reconciler needs.
type Store interface {
	Find(ctx context.Context, reference string) (*Payment, error)
	CompareAndTransition(ctx context.Context, reference string, to Status) (TransitionResult, error)
	ClaimNotification(ctx context.Context, reference string) (bool, error)
}

// Verifier fetches the authoritative gateway status for a reference.
type Verifier interface {
	Verify(ctx context.Context, reference string) (gateway.Status, error)
}

// Delivery reports which notification emails were handed off successfully.
type Delivery struct {
	Admin    bool
	Customer bool
}

// Notifier sends the post-payment notifications. Failures are the notifier's
// problem; they never influence payment status.
type Notifier interface {
	Notify(ctx context.Context, p Payment) Delivery
}

// Outcome summarises one reconciliation pass.
type Outcome struct {
	Payment      *Payment
	Transitioned bool
	Notified     bool
}

// Reconciler drives the payment status state machine. Any number of triggers
// may call it concurrently for the same reference; exactly one transition and
// at most one notification dispatch will happen.
type Reconciler struct {
	Store    Store
	Gateway  Verifier
	Notifier Notifier
	Logger   zerolog.Logger
}

// Reconcile resolves the current status for a reference. Webhook triggers
// assert the status carried by the signed event; callback and poll triggers
// re-verify with the gateway before writing anything.
func (r *Reconciler) Reconcile(ctx context.Context, reference string, source Source, asserted gateway.Status) (*Outcome, error) {
	p, err := r.Store.Find(ctx, reference)
	if err != nil {
		recordReconcile(source, "not_found")
		return nil, err
	}

	if p.Status.Terminal() {
		recordReconcile(source, "already_terminal")
		return &Outcome{Payment: p}, nil
	}

	observed := asserted
	if source != SourceWebhook {
		observed, err = r.Gateway.Verify(ctx, reference)
		if err != nil {
			recordReconcile(source, "gateway_error")
			return nil, err
		}
	}

	if !observed.Terminal() {
		recordReconcile(source, "still_pending")
		return &Outcome{Payment: p}, nil
	}

	target := FromGateway(observed)
	result, err := r.Store.CompareAndTransition(ctx, reference, target)
	if err != nil {
		recordReconcile(source, "store_error")
		return nil, err
	}
	if result == TransitionAlreadyTerminal {
		// Another trigger won the race. Re-read so the caller sees the
		// status that actually stuck.
		recordReconcile(source, "lost_race")
		settled, err := r.Store.Find(ctx, reference)
		if err != nil {
			return nil, err
		}
		return &Outcome{Payment: settled}, nil
	}

	p.Status = target
	recordReconcile(source, "transitioned_"+string(target))
	r.Logger.Info().
		Str("reference", reference).
		Str("source", string(source)).
		Str("status", string(target)).
		Msg("payment_transitioned")

	outcome := &Outcome{Payment: p, Transitioned: true}
	if target == StatusSuccess {
		outcome.Notified = r.dispatchNotification(ctx, *p)
	}
	return outcome, nil
}

// dispatchNotification claims the single notification slot and, on winning it,
// hands the payment to the notifier. Returns whether this call dispatched.
func (r *Reconciler) dispatchNotification(ctx context.Context, p Payment) bool {
	claimed, err := r.Store.ClaimNotification(ctx, p.Reference)
	if err != nil {
		r.Logger.Error().Err(err).Str("reference", p.Reference).Msg("notification_claim_failed")
		return false
	}
	if !claimed {
		return false
	}
	if r.Notifier == nil {
		return true
	}
	delivery := r.Notifier.Notify(ctx, p)
	if !delivery.Admin || !delivery.Customer {
		r.Logger.Warn().
			Str("reference", p.Reference).
			Bool("admin", delivery.Admin).
			Bool("customer", delivery.Customer).
			Msg("notification_partial_delivery")
	}
	return true
}

func recordReconcile(source Source, outcome string) {
	if obs.ReconcileTotal == nil {
		return
	}
	obs.ReconcileTotal.WithLabelValues(string(source), outcome).Inc()
}
