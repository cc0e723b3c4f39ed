package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mowaa/booking-payments/internal/obs"
	"github.com/mowaa/booking-payments/internal/resilience"
)

// ErrUnavailable indicates the gateway could not be reached or answered with a
// server error. It is never used for a declined payment.
var ErrUnavailable = errors.New("gateway: unavailable")

// Status is the normalised transaction status reported by the gateway.
type Status string

const (
	// StatusPending covers every gateway state that is not yet terminal
	// (abandoned, ongoing, queued, and any state added later).
	StatusPending Status = "pending"
	// StatusSucceeded means the charge settled.
	StatusSucceeded Status = "success"
	// StatusFailed means the charge was declined or reversed.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status will never change again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// NormalizeStatus maps a raw gateway status string onto the three states the
// reconciler understands. Unknown values are treated as pending, never failed.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// MinorUnits converts a major-unit amount (e.g. 5000.00 NGN) to the integer
// minor units (kobo/cents) the gateway API expects.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Client talks to the payment gateway REST API using bearer authentication.
// Calls are bounded by the wrapped HTTP client's timeout and are never retried
// here; callers own their retry policy.
type Client struct {
	SecretKey string
	BaseURL   string
	HTTP      resilience.HTTPClient
	Logger    zerolog.Logger
}

// InitializeRequest describes a new transaction to open with the gateway.
type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

// InitializeResult is the subset of the gateway response the caller needs.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type initializePayload struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// Initialize opens a transaction and returns the hosted checkout URL the
// customer should be redirected to.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	payload := initializePayload{
		Email:       req.Email,
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode initialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/transaction/initialize"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build initialize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var envelope initializeEnvelope
	if err := c.call(ctx, httpReq, "initialize", &envelope); err != nil {
		return nil, err
	}
	if !envelope.Status || envelope.Data.AuthorizationURL == "" {
		recordGatewayResult("initialize", "rejected")
		return nil, fmt.Errorf("gateway: initialize rejected: %s", envelope.Message)
	}
	recordGatewayResult("initialize", "ok")
	return &InitializeResult{
		AuthorizationURL: envelope.Data.AuthorizationURL,
		AccessCode:       envelope.Data.AccessCode,
		Reference:        envelope.Data.Reference,
	}, nil
}

// Verify fetches the authoritative transaction status for a reference.
// Transport failures and gateway server errors yield ErrUnavailable so the
// caller never mistakes an unreachable gateway for a declined payment.
func (c *Client) Verify(ctx context.Context, reference string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/transaction/verify/"+reference), nil)
	if err != nil {
		return StatusPending, fmt.Errorf("gateway: build verify request: %w", err)
	}

	var envelope verifyEnvelope
	if err := c.call(ctx, httpReq, "verify", &envelope); err != nil {
		return StatusPending, err
	}
	if !envelope.Status {
		recordGatewayResult("verify", "rejected")
		return StatusPending, fmt.Errorf("gateway: verify rejected: %s", envelope.Message)
	}
	recordGatewayResult("verify", "ok")
	return NormalizeStatus(envelope.Data.Status), nil
}

func (c *Client) call(ctx context.Context, req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		recordGatewayResult(op, "unavailable")
		c.Logger.Warn().Err(err).Str("op", op).Msg("gateway_unreachable")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		recordGatewayResult(op, "unavailable")
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		recordGatewayResult(op, "rejected")
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return fmt.Errorf("gateway: %s returned %d: %s", op, resp.StatusCode, failure.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		recordGatewayResult(op, "unavailable")
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, op, err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func recordGatewayResult(op, result string) {
	if obs.GatewayRequestTotal == nil {
		return
	}
	obs.GatewayRequestTotal.WithLabelValues(op, result).Inc()
}
