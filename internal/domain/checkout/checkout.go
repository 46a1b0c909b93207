// Package checkout materializes a priced snapshot of a shopper's cart. Each
// user has at most one checkout.
package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when the user has no checkout.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "checkout not found")
	// ErrNoCheckoutItems is returned when no available cart line remains.
	ErrNoCheckoutItems = apperr.New(apperr.ErrNotEligible, "no items available for checkout")
	// ErrStale is returned when a checkout's totals no longer match its
	// details, e.g. after a line was removed from the cart.
	ErrStale = apperr.New(apperr.ErrNotEligible, "checkout is out of date, finalize it again")
)

// Checkout is the priced snapshot of a user's cart.
type Checkout struct {
	ID                   int64
	UserID               string
	GiftWrap             bool
	WrappingCost         decimal.Decimal
	TotalBeforeCoupon    decimal.Decimal
	TotalProductDiscount decimal.Decimal
	CouponCode           string
	CouponDiscount       decimal.Decimal
	TotalPaymentAmount   decimal.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Details              []Detail
}

// HasCoupon reports whether a coupon is applied.
func (c *Checkout) HasCoupon() bool {
	return c.CouponCode != ""
}

// Stale reports whether the payable total differs from the details' final
// prices plus wrapping. Removing a cart line deletes its detail without
// re-pricing the header, which leaves the checkout stale until the next
// snapshot or finalize.
func (c *Checkout) Stale() bool {
	sum := c.WrappingCost
	for _, d := range c.Details {
		sum = sum.Add(d.FinalPrice)
	}
	if sum.IsNegative() {
		sum = decimal.Zero
	}
	return !sum.Equal(c.TotalPaymentAmount)
}

// Detail is one priced line of a checkout, unique per (product, size).
type Detail struct {
	ProductID       string
	Size            string
	Quantity        int
	Name            string
	Title           string
	Image           string
	MRP             decimal.Decimal
	ProductDiscount decimal.Decimal
	CouponDiscount  decimal.Decimal
	FinalPrice      decimal.Decimal
}

// Repository persists checkouts.
type Repository interface {
	// Get returns the user's checkout with its details or ErrNotFound.
	Get(ctx context.Context, userID string) (*Checkout, error)
	// Save upserts the header keyed by user, upserts every detail keyed by
	// (checkout, product, size) and deletes details that are no longer
	// present, in one transaction. It fills ID and timestamps.
	Save(ctx context.Context, c *Checkout) error
	Delete(ctx context.Context, userID string) error
}
