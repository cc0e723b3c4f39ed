package payment

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mowaa/booking-payments/internal/common"
	"github.com/mowaa/booking-payments/internal/gateway"
)

// Handler serves the customer-facing reconciliation triggers: the redirect
// callback and the status poll.
type Handler struct {
	Reconciler  *Reconciler
	FrontendURL string
	Logger      zerolog.Logger
}

// Callback handles the browser redirect after hosted checkout. The gateway
// appends the reference as ?reference= or ?trxref= depending on the flow. The
// response is always a redirect to the frontend; the customer never sees an
// error payload here.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		reference = strings.TrimSpace(r.URL.Query().Get("trxref"))
	}
	if reference == "" {
		h.redirect(w, r, "/payment/failed", "")
		return
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), reference, SourceCallback, gateway.StatusPending)
	if err != nil {
		h.Logger.Warn().Err(err).Str("reference", reference).Msg("callback_reconcile_failed")
		h.redirect(w, r, "/payment/failed", reference)
		return
	}
	if outcome.Payment.Status == StatusSuccess {
		h.redirect(w, r, "/payment/success", reference)
		return
	}
	h.redirect(w, r, "/payment/failed", reference)
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path, reference string) {
	target := strings.TrimRight(h.FrontendURL, "/") + path
	if reference != "" {
		target += "?reference=" + url.QueryEscape(reference)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Verify handles the frontend status poll. Terminal payments answer from the
// store without touching the gateway; pending ones reconcile first.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		common.Render(w, common.NewAppError("MISSING_REFERENCE", "reference query parameter is required", http.StatusBadRequest, nil))
		return
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), reference, SourcePoll, gateway.StatusPending)
	if err != nil {
		common.Render(w, h.pollError(err, reference))
		return
	}

	common.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"payment": paymentView(outcome.Payment),
	})
}

// pollError maps reconciliation failures onto the poll endpoint's contract.
func (h *Handler) pollError(err error, reference string) *common.AppError {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("PAYMENT_NOT_FOUND", "no payment with that reference", http.StatusNotFound, err)
	case errors.Is(err, gateway.ErrUnavailable):
		return common.NewAppError("GATEWAY_UNAVAILABLE", "payment gateway could not be reached", http.StatusInternalServerError, err)
	default:
		h.Logger.Error().Err(err).Str("reference", reference).Msg("verify_failed")
		return common.NewAppError("INTERNAL", "could not verify payment", http.StatusInternalServerError, err)
	}
}

type paymentResponse struct {
	Reference   string     `json:"reference"`
	Status      Status     `json:"status"`
	TotalAmount float64    `json:"total_amount"`
	Currency    string     `json:"currency"`
	CartItems   []CartItem `json:"cart_items"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func paymentView(p *Payment) paymentResponse {
	return paymentResponse{
		Reference:   p.Reference,
		Status:      p.Status,
		TotalAmount: p.TotalAmount,
		Currency:    p.Currency,
		CartItems:   p.Cart(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
