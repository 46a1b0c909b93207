// Package order turns paid checkouts into orders and drives the lifecycle of
// each purchased line.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/refund"
)

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another user.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "order not found")
	// ErrDetailNotFound is returned when the order has no such line.
	ErrDetailNotFound = apperr.New(apperr.ErrNotFound, "order item not found")
	// ErrWindowExpired is returned past the cancellation and return window.
	ErrWindowExpired = apperr.New(apperr.ErrWindowExpired, "the cancellation and return window for this order has closed")
	// ErrNothingToCancel is returned when no line of the order can be cancelled.
	ErrNothingToCancel = apperr.New(apperr.ErrNotEligible, "no items in this order can be cancelled")
)

// ProductStatus is the lifecycle state of a single order line.
type ProductStatus string

const (
	StatusConfirmed         ProductStatus = "confirmed"
	StatusShipped           ProductStatus = "shipped"
	StatusDelivered         ProductStatus = "delivered"
	StatusCanceled          ProductStatus = "canceled"
	StatusReturnRequested   ProductStatus = "return-requested"
	StatusExchangeRequested ProductStatus = "exchange-requested"
)

var transitions = map[ProductStatus][]ProductStatus{
	StatusConfirmed: {StatusShipped, StatusCanceled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {StatusReturnRequested, StatusExchangeRequested},
}

// CanTransition reports whether a line in status s may move to next.
func (s ProductStatus) CanTransition(next ProductStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ProductStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusShipped, StatusDelivered, StatusCanceled,
		StatusReturnRequested, StatusExchangeRequested:
		return true
	}
	return false
}

// Order types recorded on line status rows.
const (
	TypePurchase = "purchase"
	TypeCancel   = "cancel"
	TypeReturn   = "return"
	TypeExchange = "exchange"
)

// Flag is one of the mutually exclusive terminal markers of a line.
type Flag int

const (
	FlagNone Flag = iota
	FlagCancelled
	FlagReturned
	FlagExchanged
)

// Order is a placed order. ID is internal and never leaves the service;
// clients see PublicID.
type Order struct {
	ID               int64
	PublicID         string
	UserID           string
	GatewayOrderID   string
	Amount           decimal.Decimal
	CouponCode       string
	CouponDiscount   decimal.Decimal
	DeliveryAddress  string
	DeliveryPin      string
	RecipientName    string
	RecipientContact string
	CreatedAt        time.Time
	Details          []Detail
}

// Detail is one purchased line of an order.
type Detail struct {
	ID            int64
	OrderID       int64
	ProductID     string
	Name          string
	Size          string
	Quantity      int
	Price         decimal.Decimal
	Title         string
	Image         string
	ProductStatus ProductStatus
	IsCancelled   bool
	IsExchanged   bool
	IsReturned    bool
	TrackingID    string
	TrackingLink  string
	Status        LineStatus
}

// Flagged reports whether the line was cancelled, returned or exchanged.
// Flagged lines are skipped by bulk updates.
func (d *Detail) Flagged() bool {
	return d.IsCancelled || d.IsExchanged || d.IsReturned
}

// LineStatus is the per-line status row.
type LineStatus struct {
	OrderStatus      string
	OrderType        string
	EstimateDelivery time.Time
	DeliveredDate    *time.Time
	Date             time.Time
}

// Filter narrows admin order listings.
type Filter struct {
	UserID string
	Status ProductStatus
	Limit  int
	Offset int
}

// Tx is the set of writes performed inside one database transaction.
type Tx interface {
	// PaymentIntent returns the intent recorded for a gateway order, or
	// payment.ErrUnknownIntent.
	PaymentIntent(ctx context.Context, gatewayOrderID string) (*payment.Intent, error)
	CreatePayment(ctx context.Context, p *payment.Payment) error
	// CreateOrder inserts the order, its details and one status row per
	// detail, filling generated ids.
	CreateOrder(ctx context.Context, o *Order) error
	// ClearCheckout removes the user's checkout and cart.
	ClearCheckout(ctx context.Context, userID string) error

	PaymentForOrder(ctx context.Context, orderID int64) (*payment.Payment, error)
	// LockDetail reads the line with SELECT ... FOR UPDATE.
	LockDetail(ctx context.Context, orderID, detailID int64) (*Detail, error)
	// LockDetails reads every line of the order with SELECT ... FOR UPDATE.
	LockDetails(ctx context.Context, orderID int64) ([]Detail, error)
	SetDetailState(ctx context.Context, detailID int64, status ProductStatus, flag Flag) error
	SetLineStatus(ctx context.Context, detailID int64, orderStatus, orderType string) error
	CreateRefund(ctx context.Context, r *refund.Refund) error
	CreateReturn(ctx context.Context, r *refund.ReturnRequest) error
	CreateExchange(ctx context.Context, r *refund.ExchangeRequest) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// WithinTx runs fn in a transaction that commits when fn returns nil
	// and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetByPublicID(ctx context.Context, publicID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)

	// MarkShipped sets tracking and the shipped status on every unflagged
	// line and returns how many lines changed.
	MarkShipped(ctx context.Context, orderID int64, trackingID, trackingLink string) (int64, error)
	// MarkDelivered sets the delivered status and date on every unflagged
	// line and clears its tracking.
	MarkDelivered(ctx context.Context, orderID int64, at time.Time) (int64, error)
	// SetStatus overwrites the order status of every line and the product
	// status of every unflagged line.
	SetStatus(ctx context.Context, orderID int64, orderStatus string, productStatus ProductStatus) (int64, error)
}
