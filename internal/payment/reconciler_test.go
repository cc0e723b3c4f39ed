package payment

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mowaa/booking-payments/internal/gateway"
)

// memStore is an in-memory Store with the same conditional-update semantics as
// the SQL implementation. Safe for concurrent use so race tests are real.
type memStore struct {
	mu       sync.Mutex
	payments map[string]*Payment
}

func newMemStore(seed ...Payment) *memStore {
	s := &memStore{payments: map[string]*Payment{}}
	for i := range seed {
		p := seed[i]
		s.payments[p.Reference] = &p
	}
	return s
}

func (s *memStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.Reference]; ok {
		return ErrDuplicateReference
	}
	p.Status = StatusPending
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	clone := *p
	s.payments[p.Reference] = &clone
	return nil
}

func (s *memStore) Find(_ context.Context, reference string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) CompareAndTransition(_ context.Context, reference string, to Status) (TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok || p.Status != StatusPending {
		return TransitionAlreadyTerminal, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	return TransitionApplied, nil
}

func (s *memStore) ClaimNotification(_ context.Context, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok || p.Status != StatusSuccess || p.NotifiedAt != nil {
		return false, nil
	}
	now := time.Now()
	p.NotifiedAt = &now
	return true, nil
}

type stubVerifier struct {
	status gateway.Status
	err    error
	calls  int32
}

func (v *stubVerifier) Verify(context.Context, string) (gateway.Status, error) {
	atomic.AddInt32(&v.calls, 1)
	if v.err != nil {
		return gateway.StatusPending, v.err
	}
	return v.status, nil
}

type countingNotifier struct {
	calls int32
}

func (n *countingNotifier) Notify(context.Context, Payment) Delivery {
	atomic.AddInt32(&n.calls, 1)
	return Delivery{Admin: true, Customer: true}
}

func pendingPayment(reference string) Payment {
	return Payment{
		Reference:   reference,
		Status:      StatusPending,
		FormData:    json.RawMessage(`{"name":"Jane Doe","email":"jane@example.com"}`),
		CartItems:   json.RawMessage(`[{"name":"Adult ticket","quantity":2,"price":2500}]`),
		TotalAmount: 5000.00,
		Currency:    "NGN",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestReconcileTransitionsPendingToSuccess(t *testing.T) {
	store := newMemStore(pendingPayment("REF123"))
	notifier := &countingNotifier{}
	rec := &Reconciler{
		Store:    store,
		Gateway:  &stubVerifier{status: gateway.StatusSucceeded},
		Notifier: notifier,
		Logger:   zerolog.Nop(),
	}

	outcome, err := rec.Reconcile(context.Background(), "REF123", SourcePoll, gateway.StatusPending)
	require.NoError(t, err)
	require.True(t, outcome.Transitioned)
	require.True(t, outcome.Notified)
	require.Equal(t, StatusSuccess, outcome.Payment.Status)
	require.Equal(t, int32(1), atomic.LoadInt32(&notifier.calls))

	stored, err := store.Find(context.Background(), "REF123")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, stored.Status)
	require.NotNil(t, stored.NotifiedAt)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore(pendingPayment("REF123"))
	notifier := &countingNotifier{}
	verifier := &stubVerifier{status: gateway.StatusSucceeded}
	rec := &Reconciler{Store: store, Gateway: verifier, Notifier: notifier, Logger: zerolog.Nop()}

	first, err := rec.Reconcile(context.Background(), "REF123", SourceCallback, gateway.StatusPending)
	require.NoError(t, err)
	require.True(t, first.Transitioned)

	second, err := rec.Reconcile(context.Background(), "REF123", SourcePoll, gateway.StatusPending)
	require.NoError(t, err)
	require.False(t, second.Transitioned)
	require.False(t, second.Notified)
	require.Equal(t, StatusSuccess, second.Payment.Status)

	require.Equal(t, int32(1), atomic.LoadInt32(&notifier.calls))
}

func TestReconcileTerminalSkipsGateway(t *testing.T) {
	settled := pendingPayment("REF123")
	settled.Status = StatusFailed
	store := newMemStore(settled)
	verifier := &stubVerifier{status: gateway.StatusSucceeded}
	rec := &Reconciler{Store: store, Gateway: verifier, Logger: zerolog.Nop()}

	outcome, err := rec.Reconcile(context.Background(), "REF123", SourcePoll, gateway.StatusPending)
	require.NoError(t, err)
	require.False(t, outcome.Transitioned)
	require.Equal(t, StatusFailed, outcome.Payment.Status)
	// terminal payments answer from the store, no gateway round trip
	require.Equal(t, int32(0), atomic.LoadInt32(&verifier.calls))
}

func TestReconcileUnknownReference(t *testing.T) {
	rec := &Reconciler{
		Store:   newMemStore(),
		Gateway: &stubVerifier{status: gateway.StatusSucceeded},
		Logger:  zerolog.Nop(),
	}

	_, err := rec.Reconcile(context.Background(), "NOPE", SourceWebhook, gateway.StatusSucceeded)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileGatewayUnavailableLeavesPending(t *testing.T) {
	store := newMemStore(pendingPayment("REF123"))
	rec := &Reconciler{
		Store:   store,
		Gateway: &stubVerifier{err: gateway.ErrUnavailable},
		Logger:  zerolog.Nop(),
	}

	_, err := rec.Reconcile(context.Background(), "REF123", SourcePoll, gateway.StatusPending)
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	stored, err := store.Find(context.Background(), "REF123")
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestReconcileGatewayPendingIsNoop(t *testing.T) {
	store := newMemStore(pendingPayment("REF123"))
	rec := &Reconciler{
		Store:   store,
		Gateway: &stubVerifier{status: gateway.StatusPending},
		Logger:  zerolog.Nop(),
	}

	outcome, err := rec.Reconcile(context.Background(), "REF123", SourcePoll, gateway.StatusPending)
	require.NoError(t, err)
	require.False(t, outcome.Transitioned)
	require.Equal(t, StatusPending, outcome.Payment.Status)
}

func TestReconcileWebhookAssertsFailure(t *testing.T) {
	store := newMemStore(pendingPayment("REF123"))
	notifier := &countingNotifier{}
	verifier := &stubVerifier{status: gateway.StatusSucceeded}
	rec := &Reconciler{Store: store, Gateway: verifier, Notifier: notifier, Logger: zerolog.Nop()}

	outcome, err := rec.Reconcile(context.Background(), "REF123", SourceWebhook, gateway.StatusFailed)
	require.NoError(t, err)
	require.True(t, outcome.Transitioned)
	require.Equal(t, StatusFailed, outcome.Payment.Status)
	// webhook status is authoritative, the gateway is not consulted
	require.Equal(t, int32(0), atomic.LoadInt32(&verifier.calls))
	// failed payments never notify
	require.Equal(t, int32(0), atomic.LoadInt32(&notifier.calls))
}

func TestReconcileConcurrentTriggersTransitionOnce(t *testing.T) {
	store := newMemStore(pendingPayment("REF123"))
	notifier := &countingNotifier{}
	rec := &Reconciler{
		Store:    store,
		Gateway:  &stubVerifier{status: gateway.StatusSucceeded},
		Notifier: notifier,
		Logger:   zerolog.Nop(),
	}

	sources := []Source{SourceCallback, SourceWebhook, SourcePoll, SourcePoll, SourceCallback}
	var wg sync.WaitGroup
	var transitions int32
	for _, source := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			asserted := gateway.StatusPending
			if src == SourceWebhook {
				asserted = gateway.StatusSucceeded
			}
			outcome, err := rec.Reconcile(context.Background(), "REF123", src, asserted)
			require.NoError(t, err)
			if outcome.Transitioned {
				atomic.AddInt32(&transitions, 1)
			}
			require.Equal(t, StatusSuccess, outcome.Payment.Status)
		}(source)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&transitions))
	require.Equal(t, int32(1), atomic.LoadInt32(&notifier.calls))
}
