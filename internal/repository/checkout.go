package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/checkout"
)

const (
	getCheckoutSQL = `SELECT id, user_id, gift_wrap, wrapping_cost, total_before_coupon,
			total_product_discount, COALESCE(coupon_code, ''), coupon_discount, total_payment_amount,
			created_at, updated_at
		FROM checkouts WHERE user_id = $1`

	listCheckoutDetailsSQL = `SELECT product_id, size, quantity, name, title, image, mrp,
			product_discount, coupon_discount, final_price
		FROM checkout_details WHERE checkout_id = $1 ORDER BY product_id, size`

	upsertCheckoutSQL = `INSERT INTO checkouts (user_id, gift_wrap, wrapping_cost, total_before_coupon,
			total_product_discount, coupon_code, coupon_discount, total_payment_amount)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			gift_wrap = EXCLUDED.gift_wrap,
			wrapping_cost = EXCLUDED.wrapping_cost,
			total_before_coupon = EXCLUDED.total_before_coupon,
			total_product_discount = EXCLUDED.total_product_discount,
			coupon_code = EXCLUDED.coupon_code,
			coupon_discount = EXCLUDED.coupon_discount,
			total_payment_amount = EXCLUDED.total_payment_amount,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	upsertCheckoutDetailSQL = `INSERT INTO checkout_details (checkout_id, product_id, size, quantity, name,
			title, image, mrp, product_discount, coupon_discount, final_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (checkout_id, product_id, size) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			image = EXCLUDED.image,
			mrp = EXCLUDED.mrp,
			product_discount = EXCLUDED.product_discount,
			coupon_discount = EXCLUDED.coupon_discount,
			final_price = EXCLUDED.final_price`

	deleteStaleCheckoutDetailsSQL = `DELETE FROM checkout_details
		WHERE checkout_id = $1
			AND (product_id, size) NOT IN (SELECT * FROM unnest($2::text[], $3::text[]))`

	deleteCheckoutSQL = `DELETE FROM checkouts WHERE user_id = $1`
)

var _ checkout.Repository = (*CheckoutRepository)(nil)

// CheckoutRepository implements checkout.Repository backed by PostgreSQL.
type CheckoutRepository struct {
	pool *pgxpool.Pool
}

// NewCheckoutRepository returns a CheckoutRepository that uses the given pool.
func NewCheckoutRepository(pool *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{pool: pool}
}

// Get returns the user's checkout with its details.
func (r *CheckoutRepository) Get(ctx context.Context, userID string) (*checkout.Checkout, error) {
	var c checkout.Checkout
	err := r.pool.QueryRow(ctx, getCheckoutSQL, userID).Scan(
		&c.ID, &c.UserID, &c.GiftWrap, &c.WrappingCost, &c.TotalBeforeCoupon,
		&c.TotalProductDiscount, &c.CouponCode, &c.CouponDiscount, &c.TotalPaymentAmount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrNotFound
		}
		return nil, fmt.Errorf("getting checkout of %q: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, listCheckoutDetailsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing checkout details of %q: %w", userID, err)
	}
	c.Details, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (checkout.Detail, error) {
		var d checkout.Detail
		err := row.Scan(
			&d.ProductID, &d.Size, &d.Quantity, &d.Name, &d.Title, &d.Image, &d.MRP,
			&d.ProductDiscount, &d.CouponDiscount, &d.FinalPrice,
		)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing checkout details of %q: %w", userID, err)
	}
	return &c, nil
}

// Save upserts the checkout keyed by user and replaces its details.
func (r *CheckoutRepository) Save(ctx context.Context, c *checkout.Checkout) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upsertCheckoutSQL,
			c.UserID, c.GiftWrap, c.WrappingCost, c.TotalBeforeCoupon,
			c.TotalProductDiscount, c.CouponCode, c.CouponDiscount, c.TotalPaymentAmount,
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upserting checkout of %q: %w", c.UserID, err)
		}

		products := make([]string, len(c.Details))
		sizes := make([]string, len(c.Details))
		batch := &pgx.Batch{}
		for i, d := range c.Details {
			products[i], sizes[i] = d.ProductID, d.Size
			batch.Queue(upsertCheckoutDetailSQL,
				c.ID, d.ProductID, d.Size, d.Quantity, d.Name, d.Title, d.Image,
				d.MRP, d.ProductDiscount, d.CouponDiscount, d.FinalPrice,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting checkout details of %q: %w", c.UserID, err)
		}

		if _, err := tx.Exec(ctx, deleteStaleCheckoutDetailsSQL, c.ID, products, sizes); err != nil {
			return fmt.Errorf("deleting stale checkout details of %q: %w", c.UserID, err)
		}
		return nil
	})
}

// Delete removes the user's checkout and its details.
func (r *CheckoutRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, deleteCheckoutSQL, userID); err != nil {
		return fmt.Errorf("deleting checkout of %q: %w", userID, err)
	}
	return nil
}
