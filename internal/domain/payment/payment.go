// Package payment defines payment records and the gateway collaborators used
// to start and verify payments.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrInvalidSignature is returned when the gateway signature does not match.
	ErrInvalidSignature = apperr.New(apperr.ErrValidation, "payment verification failed")
	// ErrNotFound is returned when an order has no recorded payment.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "payment not found")
	// ErrDuplicate is returned when a gateway payment id was already captured.
	ErrDuplicate = apperr.New(apperr.ErrConflict, "payment already captured")
	// ErrUnknownIntent is returned when a confirmation names a gateway order
	// that was not opened for the shopper.
	ErrUnknownIntent = apperr.New(apperr.ErrValidation, "payment order was not opened for this user")
	// ErrAmountMismatch is returned when the checkout total moved after the
	// gateway order was opened.
	ErrAmountMismatch = apperr.New(apperr.ErrNotEligible, "checkout total changed since payment was initiated, finalize and pay again")
)

// Status of a captured payment.
const (
	StatusCaptured = "captured"
	ModeOnline     = "online"
)

// Payment is a verified gateway payment.
type Payment struct {
	ID               int64
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Amount           decimal.Decimal
	Mode             string
	Status           string
	CreatedAt        time.Time
}

// Confirmation is what the client sends back after paying at the gateway.
type Confirmation struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Verifier checks a gateway confirmation. It treats the gateway as an
// oracle and performs no I/O.
type Verifier interface {
	Verify(c Confirmation) bool
}

// GatewayOrder is an order created at the payment gateway.
type GatewayOrder struct {
	ID       string
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Status   string
}

// Gateway creates orders at the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error)
}

// Intent records a gateway order opened for a user's checkout.
type Intent struct {
	ID             int64
	UserID         string
	GatewayOrderID string
	Amount         decimal.Decimal
	Currency       string
	Receipt        string
	CreatedAt      time.Time
}

// Repository persists payment intents. Payments themselves are written by
// the order lifecycle as part of order placement.
type Repository interface {
	SaveIntent(ctx context.Context, in *Intent) error
}
