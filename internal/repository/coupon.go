package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
)

const couponColumns = `id, code, description, discount_type, discount_value, max_discount_value,
	start_date, end_date, usage_limit, times_used, is_active, created_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE is_active = TRUE ORDER BY discount_value DESC, id`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id DESC`

	listConditionsSQL = `SELECT id, coupon_id, condition_type, condition_value
		FROM coupon_conditions WHERE coupon_id = ANY($1) ORDER BY id`

	createCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_value, max_discount_value,
			start_date, end_date, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, times_used, created_at`

	// upsertCouponSQL refreshes the terms of an existing code but keeps its
	// usage count.
	upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_value, max_discount_value,
			start_date, end_date, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			max_discount_value = EXCLUDED.max_discount_value,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			usage_limit = EXCLUDED.usage_limit,
			is_active = EXCLUDED.is_active`

	addConditionSQL = `INSERT INTO coupon_conditions (coupon_id, condition_type, condition_value)
		SELECT id, $2, $3 FROM coupons WHERE UPPER(code) = UPPER($1)
		RETURNING id, coupon_id`

	deleteCouponSQL = `DELETE FROM coupons WHERE UPPER(code) = UPPER($1)`

	toggleCouponSQL = `UPDATE coupons SET is_active = NOT is_active
		WHERE UPPER(code) = UPPER($1) RETURNING ` + couponColumns

	deactivateCouponSQL = `UPDATE coupons SET is_active = FALSE WHERE UPPER(code) = UPPER($1)`

	// claimCouponSQL consumes one use only while the coupon is active and
	// below its limit, deactivating it when the claim reaches the limit.
	claimCouponSQL = `UPDATE coupons SET
			times_used = times_used + 1,
			is_active = CASE
				WHEN usage_limit > 0 AND times_used + 1 >= usage_limit THEN FALSE
				ELSE is_active
			END
		WHERE UPPER(code) = UPPER($1)
			AND is_active = TRUE
			AND (usage_limit = 0 OR times_used < usage_limit)
		RETURNING ` + couponColumns
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by code, case-insensitively, with its
// conditions.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponByCodeSQL, code)
}

// ListActive returns active coupons, highest discount value first.
func (r *CouponRepository) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	return r.many(ctx, listActiveCouponsSQL)
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	return r.many(ctx, listCouponsSQL)
}

// Create inserts a coupon and fills its generated fields.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.Value, c.MaxValue,
		c.StartDate, c.EndDate, c.UsageLimit, c.Active,
	).Scan(&c.ID, &c.TimesUsed, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// UpsertMany inserts or refreshes coupons in one batch round trip.
func (r *CouponRepository) UpsertMany(ctx context.Context, list []coupon.Coupon) error {
	if len(list) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range list {
		batch.Queue(upsertCouponSQL,
			c.Code, c.Description, string(c.DiscountType), c.Value, c.MaxValue,
			c.StartDate, c.EndDate, c.UsageLimit, c.Active,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(list), err)
	}
	return nil
}

// AddCondition attaches a condition to the coupon with the given code.
func (r *CouponRepository) AddCondition(ctx context.Context, code string, cond coupon.Condition) (*coupon.Condition, error) {
	err := r.pool.QueryRow(ctx, addConditionSQL, code, string(cond.Type), cond.Value).
		Scan(&cond.ID, &cond.CouponID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("adding condition to coupon %q: %w", code, err)
	}
	return &cond, nil
}

// Delete removes the coupon and its conditions.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Toggle flips the active flag and returns the updated coupon.
func (r *CouponRepository) Toggle(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.one(ctx, toggleCouponSQL, code)
}

// Deactivate clears the active flag.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, deactivateCouponSQL, code); err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", code, err)
	}
	return nil
}

// Claim consumes one use with a single conditional UPDATE so concurrent
// claims can never exceed the usage limit.
func (r *CouponRepository) Claim(ctx context.Context, code string) (*coupon.Coupon, error) {
	c, err := r.one(ctx, claimCouponSQL, code)
	if errors.Is(err, coupon.ErrNotFound) {
		return nil, coupon.ErrUsageLimitReached
	}
	return c, err
}

func (r *CouponRepository) one(ctx context.Context, sql, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, code)
	if err != nil {
		return nil, fmt.Errorf("querying coupon %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("querying coupon %q: %w", code, err)
	}
	list := []coupon.Coupon{c}
	if err := r.attachConditions(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *CouponRepository) many(ctx context.Context, sql string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	if err := r.attachConditions(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *CouponRepository) attachConditions(ctx context.Context, list []coupon.Coupon) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	byID := make(map[int64]int, len(list))
	for i, c := range list {
		ids[i] = c.ID
		byID[c.ID] = i
	}

	rows, err := r.pool.Query(ctx, listConditionsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing coupon conditions: %w", err)
	}
	conds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Condition, error) {
		var (
			c   coupon.Condition
			typ string
		)
		err := row.Scan(&c.ID, &c.CouponID, &typ, &c.Value)
		c.Type = coupon.ConditionType(typ)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("listing coupon conditions: %w", err)
	}
	for _, c := range conds {
		i := byID[c.CouponID]
		list[i].Conditions = append(list[i].Conditions, c)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &typ, &c.Value, &c.MaxValue,
		&c.StartDate, &c.EndDate, &c.UsageLimit, &c.TimesUsed, &c.Active, &c.CreatedAt,
	)
	c.DiscountType = pricing.DiscountType(typ)
	return c, err
}
