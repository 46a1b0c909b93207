// Package cart manages shopping cart lines and reconciles them against live
// stock.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrLimitExceeded is returned when a line would exceed the per-line
	// quantity limit.
	ErrLimitExceeded = apperr.New(apperr.ErrNotEligible, "cart line quantity limit exceeded")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = apperr.New(apperr.ErrValidation, "quantity must be greater than 0")
	// ErrLineNotFound is returned when the cart has no line for the key.
	ErrLineNotFound = apperr.New(apperr.ErrNotFound, "cart item not found")
)

// Key identifies a cart line.
type Key struct {
	UserID    string
	ProductID string
	Size      string
	Variant   string
}

// Line is a cart line together with the live catalog data it was read with.
type Line struct {
	Key
	ID        int64
	Quantity  int
	UnitPrice decimal.Decimal // selling price captured when the line was added
	Available bool
	CreatedAt time.Time

	Name            string
	Title           string
	Image           string
	Category        string
	Tags            []string
	MRP             decimal.Decimal
	DiscountPercent decimal.Decimal
	SellingPrice    decimal.Decimal
	Stock           int
	SizeExists      bool
}

// AvailabilityChange records a new availability flag for a line.
type AvailabilityChange struct {
	LineID    int64
	Available bool
}

// View is a reconciled cart split by availability.
type View struct {
	Items      []Line
	SoldOut    []Line
	GrandTotal decimal.Decimal
}

// Repository defines persistence operations for cart lines.
type Repository interface {
	// ListWithStock returns the user's lines joined with live product data
	// and the stock of the line's size.
	ListWithStock(ctx context.Context, userID string) ([]Line, error)
	SetAvailability(ctx context.Context, changes []AvailabilityChange) error
	// Upsert inserts the line or adds its quantity to the existing one. It
	// returns ErrLimitExceeded, without writing, when the resulting quantity
	// would exceed maxQty.
	Upsert(ctx context.Context, line Line, maxQty int) (*Line, error)
	SetQuantity(ctx context.Context, key Key, qty int) error
	// Remove deletes the line and the matching detail of the user's checkout,
	// and the checkout itself when it becomes empty, in one transaction. The
	// checkout header is not re-priced; checkout.Checkout.Stale reports it.
	Remove(ctx context.Context, key Key) error
	Clear(ctx context.Context, userID string) error
}
