// Package refund holds the refund ledger and the return and exchange
// requests raised against order lines.
package refund

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Status is the state of a refund.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusAccepted  Status = "accepted"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// RequestStatus is the state of a return or exchange request.
type RequestStatus string

const (
	RequestRequested RequestStatus = "requested"
	RequestApproved  RequestStatus = "approved"
	RequestProcessed RequestStatus = "processed"
	RequestRejected  RequestStatus = "rejected"
)

// Messages shown to the shopper alongside the refund status.
const (
	MessageCancelInitiated   = "Your refund has been initiated and will take up to 5 business days."
	MessageReturnInitiated   = "Your return has been initiated. The refund will be processed once the return is confirmed."
	MessageExchangeInitiated = "Your exchange has been initiated. Any difference will be settled once the exchange is confirmed."
	MessageAccepted          = "Your return has been accepted, hold tight, we will review the product and refund the amount. For any queries, feel free to reach out to us."
	MessageProcessed         = "Your amount has been reverted to the original source. For any issues, feel free to contact us."
	MessageDeclined          = "Your refund has been declined."
)

var (
	// ErrNotFound is returned for unknown refund ids.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "refund not found")
	// ErrReturnNotFound is returned for unknown return request ids.
	ErrReturnNotFound = apperr.New(apperr.ErrNotFound, "return request not found")
	// ErrExchangeNotFound is returned for unknown exchange request ids.
	ErrExchangeNotFound = apperr.New(apperr.ErrNotFound, "exchange request not found")
	// ErrDuplicate is returned when the line already has a refund.
	ErrDuplicate = apperr.New(apperr.ErrConflict, "a refund already exists for this item")
)

// Refund is a refund intent for exactly one order line.
type Refund struct {
	ID            int64
	OrderID       int64
	DetailID      int64
	UserID        string
	Status        Status
	Amount        decimal.Decimal
	PaymentID     string
	PaymentMethod string
	Reason        string
	Message       string
	RefundDate    *time.Time
	CreatedAt     time.Time
}

// ReturnRequest is a shopper's request to return a delivered line.
type ReturnRequest struct {
	ID        int64
	OrderID   int64
	DetailID  int64
	UserID    string
	Reason    string
	Status    RequestStatus
	CreatedAt time.Time
}

// ExchangeRequest is a shopper's request to exchange a delivered line for
// another size.
type ExchangeRequest struct {
	ID        int64
	OrderID   int64
	DetailID  int64
	UserID    string
	Reason    string
	Size      string
	Status    RequestStatus
	CreatedAt time.Time
}

// Filter narrows listings. An empty UserID lists every user's rows.
type Filter struct {
	UserID string
	Limit  int
}

// Repository persists status changes of ledger rows. Rows are created by the
// order lifecycle inside its own transactions.
type Repository interface {
	// SetRefundStatus overwrites status and message. refundDate is stored
	// when non-nil. Unknown ids yield ErrNotFound.
	SetRefundStatus(ctx context.Context, id int64, status Status, message string, refundDate *time.Time) (*Refund, error)
	SetReturnStatus(ctx context.Context, id int64, status RequestStatus) (*ReturnRequest, error)
	SetExchangeStatus(ctx context.Context, id int64, status RequestStatus) (*ExchangeRequest, error)
	ListRefunds(ctx context.Context, f Filter) ([]Refund, error)
	ListReturns(ctx context.Context, f Filter) ([]ReturnRequest, error)
	ListExchanges(ctx context.Context, f Filter) ([]ExchangeRequest, error)
}
