package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mowaa/booking-payments/internal/common"
	"github.com/mowaa/booking-payments/internal/gateway"
	"github.com/mowaa/booking-payments/internal/obs"
)

const webhookBodyLimit = 1 << 20

// SignatureChecker validates the webhook signature against the raw body.
type SignatureChecker interface {
	Verify(body []byte, signature string) bool
}

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// WebhookHandler receives signed gateway events. Signature verification runs
// before anything else; after that the handler always answers 200 so the
// gateway stops retrying, even for unknown references or internal errors.
type WebhookHandler struct {
	Verifier   SignatureChecker
	Reconciler *Reconciler
	Replay     replayStore
	ReplayTTL  time.Duration
	Logger     zerolog.Logger
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		recordWebhook("read_error")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body", nil)
		return
	}

	if !h.Verifier.Verify(body, r.Header.Get("x-gateway-signature")) {
		recordWebhook("invalid_signature")
		h.Logger.Warn().Str("remote", common.ClientIP(r)).Msg("webhook_signature_rejected")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature verification failed", nil)
		return
	}

	if h.replayed(r.Context(), body) {
		recordWebhook("replay")
		common.JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Data.Reference == "" {
		recordWebhook("malformed")
		h.Logger.Warn().Msg("webhook_body_unparseable")
		common.JSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	var asserted gateway.Status
	switch event.Event {
	case "charge.success":
		asserted = gateway.StatusSucceeded
	case "charge.failed":
		asserted = gateway.StatusFailed
	default:
		recordWebhook("ignored_event")
		common.JSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), event.Data.Reference, SourceWebhook, asserted)
	switch {
	case errors.Is(err, ErrNotFound):
		// A reference we never issued. Acknowledge so the gateway does not
		// retry forever, but record it.
		recordWebhook("unknown_reference")
		h.Logger.Warn().Str("reference", event.Data.Reference).Msg("webhook_unknown_reference")
	case err != nil:
		recordWebhook("error")
		h.Logger.Error().Err(err).Str("reference", event.Data.Reference).Msg("webhook_reconcile_failed")
	case outcome.Transitioned:
		recordWebhook("transitioned")
	default:
		recordWebhook("noop")
	}
	common.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// replayed claims the body hash in Redis. A claim miss means this exact body
// was already processed. Redis outages fail open; reconciliation is idempotent
// so a duplicate pass is harmless.
func (h *WebhookHandler) replayed(ctx context.Context, body []byte) bool {
	if h.Replay == nil {
		return false
	}
	key := "webhook:replay:" + common.Sha256Hex(string(body))
	ok, err := h.Replay.SetNX(ctx, key, "seen", h.ReplayTTL).Result()
	if err != nil {
		h.Logger.Warn().Err(err).Msg("webhook_replay_check_failed")
		return false
	}
	return !ok
}

func recordWebhook(result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
}
