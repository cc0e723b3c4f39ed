package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists payments in PostgreSQL. All status mutations go through
// single-row conditional updates so concurrent triggers cannot clobber a
// terminal state.
type PGStore struct {
	Pool *pgxpool.Pool
}

const paymentColumns = `reference, status, form_data, cart_items, total_amount, currency, notified_at, created_at, updated_at`

// Create inserts a new pending payment.
func (s *PGStore) Create(ctx context.Context, p *Payment) error {
	const q = `
		INSERT INTO payments (reference, status, form_data, cart_items, total_amount, currency)
		VALUES ($1, 'pending', $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err := s.Pool.QueryRow(ctx, q, p.Reference, p.FormData, p.CartItems, p.TotalAmount, p.Currency).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("payment: create %s: %w", p.Reference, err)
	}
	p.Status = StatusPending
	return nil
}

// Find loads a payment by reference.
func (s *PGStore) Find(ctx context.Context, reference string) (*Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	row := s.Pool.QueryRow(ctx, q, reference)

	var p Payment
	err := row.Scan(&p.Reference, &p.Status, &p.FormData, &p.CartItems, &p.TotalAmount, &p.Currency, &p.NotifiedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment: find %s: %w", reference, err)
	}
	return &p, nil
}

// CompareAndTransition atomically moves a payment from pending to the given
// terminal status. When the row is no longer pending the update matches
// nothing and the stored status stands.
func (s *PGStore) CompareAndTransition(ctx context.Context, reference string, to Status) (TransitionResult, error) {
	if !to.Terminal() {
		return TransitionAlreadyTerminal, fmt.Errorf("payment: refusing transition to non-terminal status %q", to)
	}
	const q = `
		UPDATE payments
		SET status = $2, updated_at = now()
		WHERE reference = $1 AND status = 'pending'`
	tag, err := s.Pool.Exec(ctx, q, reference, to)
	if err != nil {
		return TransitionAlreadyTerminal, fmt.Errorf("payment: transition %s -> %s: %w", reference, to, err)
	}
	if tag.RowsAffected() == 1 {
		return TransitionApplied, nil
	}
	return TransitionAlreadyTerminal, nil
}

// ClaimNotification marks the payment as notified. It returns true for exactly
// one caller per successful payment; everyone else sees false.
func (s *PGStore) ClaimNotification(ctx context.Context, reference string) (bool, error) {
	const q = `
		UPDATE payments
		SET notified_at = now(), updated_at = now()
		WHERE reference = $1 AND status = 'success' AND notified_at IS NULL`
	tag, err := s.Pool.Exec(ctx, q, reference)
	if err != nil {
		return false, fmt.Errorf("payment: claim notification %s: %w", reference, err)
	}
	return tag.RowsAffected() == 1, nil
}
