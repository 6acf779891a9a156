package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sorapixel/studio/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (account_id, bundle_id, provider, order_id, currency, amount_minor, tokens, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, payment.AccountID, payment.BundleID, payment.Provider, payment.OrderID,
		payment.Currency, payment.AmountMinor, payment.Tokens, string(payment.Status))
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	const query = `
SELECT id, account_id, bundle_id, provider, order_id, COALESCE(provider_ref, ''), currency, amount_minor, tokens, status, created_at, updated_at
FROM payments WHERE order_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, orderID)
	var p models.Payment
	var status string
	if err := row.Scan(&p.ID, &p.AccountID, &p.BundleID, &p.Provider, &p.OrderID, &p.ProviderRef, &p.Currency,
		&p.AmountMinor, &p.Tokens, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

// MarkPaid flips a payment to paid exactly once. It reports false when the
// payment was already paid, so fulfillment can be retried safely.
func (r *PaymentRepository) MarkPaid(ctx context.Context, orderID, providerRef string) (bool, error) {
	const query = `
UPDATE payments SET status = 'paid', provider_ref = ?, updated_at = NOW()
WHERE order_id = ? AND status <> 'paid'`
	res, err := r.db.ExecContext(ctx, query, providerRef, orderID)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("paid rows affected: %w", err)
	}
	return affected > 0, nil
}
