package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderUsesAppErrorStatusAndCode(t *testing.T) {
	cause := errors.New("row not found")
	err := fmt.Errorf("lookup: %w", NewAppError("PAYMENT_NOT_FOUND", "no payment with that reference", http.StatusNotFound, cause))

	rec := httptest.NewRecorder()
	Render(rec, err)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYMENT_NOT_FOUND")
	require.Contains(t, rec.Body.String(), "no payment with that reference")
}

func TestRenderPlainErrorFallsBackToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL")
	// the raw error text must not leak to clients
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("gateway: unavailable")
	err := NewAppError("GATEWAY_UNAVAILABLE", "payment gateway could not be reached", http.StatusInternalServerError, cause)

	require.True(t, IsAppError(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, cause.Error(), err.Error())
}

func TestIsAppErrorRejectsPlainErrors(t *testing.T) {
	require.False(t, IsAppError(errors.New("plain")))
}
