package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mowaa/booking-payments/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Client{
		SecretKey: "sk_test_secret",
		BaseURL:   server.URL,
		HTTP: resilience.HTTPClient{
			Client:      server.Client(),
			MaxAttempts: 1,
			Timeout:     2 * time.Second,
		},
		Logger: zerolog.Nop(),
	}
}

func TestInitializeReturnsAuthorizationURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.example.com/abc123","access_code":"abc123","reference":"REF123"}}`)
	})

	result, err := client.Initialize(context.Background(), InitializeRequest{
		Email:       "jane@example.com",
		AmountMinor: 500000,
		Currency:    "NGN",
		Reference:   "REF123",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example.com/abc123", result.AuthorizationURL)
	require.Equal(t, "REF123", result.Reference)
}

func TestVerifyNormalisesStatuses(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"success", StatusSucceeded},
		{"failed", StatusFailed},
		{"abandoned", StatusPending},
		{"ongoing", StatusPending},
		{"some-future-state", StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/transaction/verify/REF123", r.URL.Path)
				fmt.Fprintf(w, `{"status":true,"data":{"status":%q,"reference":"REF123"}}`, tc.raw)
			})
			status, err := client.Verify(context.Background(), "REF123")
			require.NoError(t, err)
			require.Equal(t, tc.want, status)
		})
	}
}

func TestVerifyServerErrorIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.Verify(context.Background(), "REF123")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestVerifyTimeoutIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	client.HTTP.Timeout = 50 * time.Millisecond

	_, err := client.Verify(context.Background(), "REF123")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(500000), MinorUnits(5000.00))
	require.Equal(t, int64(1999), MinorUnits(19.99))
	require.Equal(t, int64(10), MinorUnits(0.1))
}
