package rates

import (
	"net/http"

	"github.com/mowaa/booking-payments/internal/common"
)

// Handler serves the display exchange rate the frontend uses to show an
// approximate USD price next to the NGN total. Purely informational; the
// gateway charges in the stored currency.
type Handler struct {
	Rate float64
}

func (h Handler) Get(w http.ResponseWriter, _ *http.Request) {
	if h.Rate <= 0 {
		common.JSONError(w, http.StatusServiceUnavailable, "RATE_UNAVAILABLE", "exchange rate is not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"rate": h.Rate})
}
