package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/verify"
)

// VerificationRepository stores the terminal outcome of each verified order.
type VerificationRepository struct {
	db DBTX
}

func NewVerificationRepository(db DBTX) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// RecordVerification inserts the outcome once; later outcomes for the same order are ignored.
func (r *VerificationRepository) RecordVerification(ctx context.Context, rec verify.AuditRecord) error {
	query := `
		INSERT INTO payment_verifications (order_id, state, reason, message, attempts, plan_name, amount_minor, currency, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		rec.OrderID, string(rec.State), rec.Reason, rec.Message, rec.Attempts,
		rec.PlanName, rec.AmountMinor, string(rec.Currency), rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}

// FindByOrderID returns the recorded outcome, or nil when the order was never settled here.
func (r *VerificationRepository) FindByOrderID(ctx context.Context, orderID string) (*verify.AuditRecord, error) {
	query := `
		SELECT order_id, state, reason, message, attempts, plan_name, amount_minor, currency, completed_at
		FROM payment_verifications WHERE order_id = $1
	`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find verification: %w", err)
	}
	return rec, nil
}

// ListRecent returns the latest outcomes, newest first.
func (r *VerificationRepository) ListRecent(ctx context.Context, limit int) ([]verify.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT order_id, state, reason, message, attempts, plan_name, amount_minor, currency, completed_at
		FROM payment_verifications ORDER BY completed_at DESC LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	var out []verify.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*verify.AuditRecord, error) {
	var (
		rec      verify.AuditRecord
		state    string
		currency string
	)
	err := row.Scan(
		&rec.OrderID, &state, &rec.Reason, &rec.Message, &rec.Attempts,
		&rec.PlanName, &rec.AmountMinor, &currency, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.State = verify.Kind(state)
	rec.Currency = domain.Currency(currency)
	return &rec, nil
}
