package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// ConditionType enumerates the eligibility rules a coupon may carry.
type ConditionType string

const (
	// ConditionMinimumPurchase requires the available cart total to reach the value.
	ConditionMinimumPurchase ConditionType = "MINIMUM_PURCHASE"
	// ConditionProductCategory requires an available line in the category.
	ConditionProductCategory ConditionType = "PRODUCT_CATEGORY"
	// ConditionTag requires an available line carrying the tag.
	ConditionTag ConditionType = "TAG"
)

// Valid reports whether t is a known condition type.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionMinimumPurchase, ConditionProductCategory, ConditionTag:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned by the repository for unknown codes.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "coupon not found")
	// ErrInvalidCoupon is returned when a shopper applies an unknown code.
	ErrInvalidCoupon = apperr.New(apperr.ErrNotEligible, "invalid coupon code")
	// ErrInactive is returned for deactivated coupons.
	ErrInactive = apperr.New(apperr.ErrNotEligible, "coupon is not active")
	// ErrExpired is returned outside the coupon's start/end window.
	ErrExpired = apperr.New(apperr.ErrNotEligible, "coupon expired")
	// ErrUsageLimitReached is returned once times_used reaches usage_limit.
	ErrUsageLimitReached = apperr.New(apperr.ErrNotEligible, "coupon usage limit reached")
	// ErrNotEligible is returned when the cart fails a coupon condition.
	ErrNotEligible = apperr.New(apperr.ErrNotEligible, "cart is not eligible for this coupon")
	// ErrDuplicateCode is returned when creating a coupon whose code exists.
	ErrDuplicateCode = apperr.New(apperr.ErrConflict, "coupon code already exists")
)

// Coupon is a discount code with its limits and eligibility conditions.
type Coupon struct {
	ID           int64
	Code         string
	Description  string
	DiscountType pricing.DiscountType
	Value        decimal.Decimal
	MaxValue     decimal.NullDecimal
	StartDate    *time.Time
	EndDate      *time.Time
	UsageLimit   int
	TimesUsed    int
	Active       bool
	Conditions   []Condition
	CreatedAt    time.Time
}

// Condition is a single eligibility rule.
type Condition struct {
	ID       int64
	CouponID int64
	Type     ConditionType
	Value    string
}

// InWindow reports whether now falls between the start and end dates.
func (c *Coupon) InWindow(now time.Time) bool {
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// Exhausted reports whether a limited coupon has used up its allowance.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.TimesUsed >= c.UsageLimit
}

// Pricing returns the pricing engine view of the coupon.
func (c *Coupon) Pricing() *pricing.Coupon {
	return &pricing.Coupon{
		Code:     c.Code,
		Type:     c.DiscountType,
		Value:    c.Value,
		MaxValue: c.MaxValue,
	}
}

// Repository provides storage of coupons and their conditions.
type Repository interface {
	// FindByCode returns the coupon with its conditions (case-insensitive).
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// ListActive returns active coupons ordered by discount value, highest first.
	ListActive(ctx context.Context) ([]Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	AddCondition(ctx context.Context, code string, cond Condition) (*Condition, error)
	Delete(ctx context.Context, code string) error
	Toggle(ctx context.Context, code string) (*Coupon, error)
	Deactivate(ctx context.Context, code string) error
	// Claim consumes one use atomically. It returns ErrUsageLimitReached when
	// the coupon is inactive or already at its limit, and deactivates the
	// coupon when the claim reaches the limit.
	Claim(ctx context.Context, code string) (*Coupon, error)
}
