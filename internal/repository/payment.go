package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/payment"
)

const savePaymentIntentSQL = `INSERT INTO payment_intents (user_id, gateway_order_id, amount, currency, receipt)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at`

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// SaveIntent records a gateway order opened for a checkout.
func (r *PaymentRepository) SaveIntent(ctx context.Context, in *payment.Intent) error {
	err := r.pool.QueryRow(ctx, savePaymentIntentSQL,
		in.UserID, in.GatewayOrderID, in.Amount, in.Currency, in.Receipt,
	).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving payment intent %q: %w", in.GatewayOrderID, err)
	}
	return nil
}
