package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	listCartWithStockSQL = `SELECT ci.id, ci.user_id, ci.product_id, ci.size, ci.variant, ci.quantity,
			ci.unit_price, ci.is_available, ci.created_at,
			p.name, p.title, p.image, p.category, p.tags, p.mrp, p.discount_percent, p.selling_price,
			COALESCE(ps.available, 0), ps.name IS NOT NULL
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		LEFT JOIN product_sizes ps ON ps.product_id = ci.product_id AND UPPER(ps.name) = UPPER(ci.size)
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id`

	setCartAvailabilitySQL = `UPDATE cart_items SET is_available = $2 WHERE id = $1`

	// The conditional DO UPDATE leaves the row untouched, and returns
	// nothing, when the merged quantity would exceed the limit.
	upsertCartLineSQL = `INSERT INTO cart_items (user_id, product_id, size, variant, quantity, unit_price, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (user_id, product_id, size, variant) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price,
			is_available = TRUE
		WHERE cart_items.quantity + EXCLUDED.quantity <= $7
		RETURNING id, quantity, created_at`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $5
		WHERE user_id = $1 AND product_id = $2 AND size = $3 AND variant = $4`

	deleteCartLineSQL = `DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2 AND size = $3 AND variant = $4`

	deleteCheckoutDetailSQL = `DELETE FROM checkout_details d
		USING checkouts c
		WHERE d.checkout_id = c.id AND c.user_id = $1
			AND d.product_id = $2 AND UPPER(d.size) = UPPER($3)
			AND NOT EXISTS (
				SELECT 1 FROM cart_items ci
				WHERE ci.user_id = $1 AND ci.product_id = $2 AND UPPER(ci.size) = UPPER($3)
			)`

	deleteEmptyCheckoutSQL = `DELETE FROM checkouts c
		WHERE c.user_id = $1
			AND NOT EXISTS (SELECT 1 FROM checkout_details d WHERE d.checkout_id = c.id)`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ListWithStock returns the user's cart lines joined with product data and
// the stock of each line's size.
func (r *CartRepository) ListWithStock(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartWithStockSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(
			&l.ID, &l.UserID, &l.ProductID, &l.Size, &l.Variant, &l.Quantity,
			&l.UnitPrice, &l.Available, &l.CreatedAt,
			&l.Name, &l.Title, &l.Image, &l.Category, &l.Tags, &l.MRP, &l.DiscountPercent, &l.SellingPrice,
			&l.Stock, &l.SizeExists,
		)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return lines, nil
}

// SetAvailability persists availability flags in one batch.
func (r *CartRepository) SetAvailability(ctx context.Context, changes []cart.AvailabilityChange) error {
	if len(changes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(setCartAvailabilitySQL, c.LineID, c.Available)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("updating cart availability: %w", err)
	}
	return nil
}

// Upsert adds the line or merges its quantity into the existing one.
func (r *CartRepository) Upsert(ctx context.Context, line cart.Line, maxQty int) (*cart.Line, error) {
	err := r.pool.QueryRow(ctx, upsertCartLineSQL,
		line.UserID, line.ProductID, line.Size, line.Variant,
		line.Quantity, line.UnitPrice, maxQty,
	).Scan(&line.ID, &line.Quantity, &line.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLimitExceeded
		}
		return nil, fmt.Errorf("upserting cart line %q: %w", line.ProductID, err)
	}
	line.Available = true
	return &line, nil
}

// SetQuantity overwrites the quantity of an existing line.
func (r *CartRepository) SetQuantity(ctx context.Context, key cart.Key, qty int) error {
	tag, err := r.pool.Exec(ctx, setCartQuantitySQL, key.UserID, key.ProductID, key.Size, key.Variant, qty)
	if err != nil {
		return fmt.Errorf("updating cart line %q: %w", key.ProductID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

// Remove deletes the line and its checkout detail. A checkout left without
// details is deleted too.
func (r *CartRepository) Remove(ctx context.Context, key cart.Key) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteCartLineSQL, key.UserID, key.ProductID, key.Size, key.Variant)
		if err != nil {
			return fmt.Errorf("deleting cart line %q: %w", key.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrLineNotFound
		}
		if _, err := tx.Exec(ctx, deleteCheckoutDetailSQL, key.UserID, key.ProductID, key.Size); err != nil {
			return fmt.Errorf("deleting checkout detail %q: %w", key.ProductID, err)
		}
		if _, err := tx.Exec(ctx, deleteEmptyCheckoutSQL, key.UserID); err != nil {
			return fmt.Errorf("deleting empty checkout: %w", err)
		}
		return nil
	})
}

// Clear deletes every line of the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}
