package payment

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mowaa/booking-payments/internal/gateway"
)

// ErrNotFound is returned when a reference does not exist in the store.
// Unknown references are never auto-created.
var ErrNotFound = errors.New("payment: not found")

// ErrDuplicateReference is returned when creating a payment whose reference
// already exists.
var ErrDuplicateReference = errors.New("payment: duplicate reference")

// Status is the lifecycle state of a payment. Transitions are monotonic:
// pending may move to success or failed exactly once, terminal states never
// change.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// FromGateway maps a normalised gateway status onto the local lifecycle.
func FromGateway(gs gateway.Status) Status {
	switch gs {
	case gateway.StatusSucceeded:
		return StatusSuccess
	case gateway.StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Payment is a booking payment record keyed by the gateway transaction
// reference.
type Payment struct {
	Reference   string          `json:"reference"`
	Status      Status          `json:"status"`
	FormData    json.RawMessage `json:"form_data"`
	CartItems   json.RawMessage `json:"cart_items"`
	TotalAmount float64         `json:"total_amount"`
	Currency    string          `json:"currency"`
	NotifiedAt  *time.Time      `json:"notified_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CartItem is a single booked item captured at initiation time.
type CartItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Cart decodes the stored cart snapshot. A malformed snapshot yields an empty
// cart rather than an error; the stored payment stays authoritative.
func (p Payment) Cart() []CartItem {
	if len(p.CartItems) == 0 {
		return nil
	}
	var items []CartItem
	if err := json.Unmarshal(p.CartItems, &items); err != nil {
		return nil
	}
	return items
}

// CustomerEmail extracts the customer email from the stored booking form.
func (p Payment) CustomerEmail() string {
	return strings.TrimSpace(p.formField("email"))
}

// CustomerName extracts the customer name from the stored booking form.
func (p Payment) CustomerName() string {
	return strings.TrimSpace(p.formField("name"))
}

func (p Payment) formField(key string) string {
	if len(p.FormData) == 0 {
		return ""
	}
	var form map[string]any
	if err := json.Unmarshal(p.FormData, &form); err != nil {
		return ""
	}
	if v, ok := form[key].(string); ok {
		return v
	}
	return ""
}

// TransitionResult describes the outcome of a compare-and-transition attempt.
type TransitionResult int

const (
	// TransitionApplied means this caller won the race and moved the payment
	// out of pending.
	TransitionApplied TransitionResult = iota
	// TransitionAlreadyTerminal means another trigger got there first; the
	// stored status stands.
	TransitionAlreadyTerminal
)
