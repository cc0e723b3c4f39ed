package payment

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mowaa/booking-payments/internal/gateway"
)

func newTriggerHandler(store Store, verifier Verifier) *Handler {
	return &Handler{
		Reconciler: &Reconciler{
			Store:    store,
			Gateway:  verifier,
			Notifier: &countingNotifier{},
			Logger:   zerolog.Nop(),
		},
		FrontendURL: "https://booking.example.com",
		Logger:      zerolog.Nop(),
	}
}

func getCallback(h *Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)
	return rec
}

func TestCallbackRedirectsToSuccess(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{status: gateway.StatusSucceeded})

	rec := getCallback(h, "/api/payment/callback?reference=REF123")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://booking.example.com/payment/success?reference=REF123", rec.Header().Get("Location"))
}

func TestCallbackAcceptsTrxrefAlias(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{status: gateway.StatusSucceeded})

	rec := getCallback(h, "/api/payment/callback?trxref=REF123")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://booking.example.com/payment/success?reference=REF123", rec.Header().Get("Location"))
}

func TestCallbackMissingReference(t *testing.T) {
	h := newTriggerHandler(newMemStore(), &stubVerifier{status: gateway.StatusSucceeded})

	rec := getCallback(h, "/api/payment/callback")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://booking.example.com/payment/failed", rec.Header().Get("Location"))
}

func TestCallbackFailedCharge(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{status: gateway.StatusFailed})

	rec := getCallback(h, "/api/payment/callback?reference=REF123")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://booking.example.com/payment/failed?reference=REF123", rec.Header().Get("Location"))
}

func TestCallbackStillPendingRedirectsToFailed(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{status: gateway.StatusPending})

	rec := getCallback(h, "/api/payment/callback?reference=REF123")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://booking.example.com/payment/failed?reference=REF123", rec.Header().Get("Location"))
}

func TestCallbackUnknownReference(t *testing.T) {
	h := newTriggerHandler(newMemStore(), &stubVerifier{status: gateway.StatusSucceeded})

	rec := getCallback(h, "/api/payment/callback?reference=GHOST")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://booking.example.com/payment/failed?reference=GHOST", rec.Header().Get("Location"))
}

func getVerify(h *Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)
	return rec
}

func TestVerifyRequiresReference(t *testing.T) {
	h := newTriggerHandler(newMemStore(), &stubVerifier{})

	rec := getVerify(h, "/api/verify-payment")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "MISSING_REFERENCE")
}

func TestVerifyUnknownReference(t *testing.T) {
	h := newTriggerHandler(newMemStore(), &stubVerifier{})

	rec := getVerify(h, "/api/verify-payment?reference=GHOST")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYMENT_NOT_FOUND")
}

func TestVerifyGatewayUnavailable(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{err: gateway.ErrUnavailable})

	rec := getVerify(h, "/api/verify-payment?reference=REF123")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "GATEWAY_UNAVAILABLE")
}

func TestVerifyReturnsSettledPayment(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{status: gateway.StatusSucceeded})

	rec := getVerify(h, "/api/verify-payment?reference=REF123")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
	require.Contains(t, rec.Body.String(), `"status":"success"`)
	require.Contains(t, rec.Body.String(), `"reference":"REF123"`)
}

func TestVerifyStillPending(t *testing.T) {
	h := newTriggerHandler(newMemStore(pendingPayment("REF123")), &stubVerifier{status: gateway.StatusPending})

	rec := getVerify(h, "/api/verify-payment?reference=REF123")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"pending"`)
}
