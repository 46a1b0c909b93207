package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/checkout"
)

var minorUnits = decimal.NewFromInt(100)

// maxReceiptUser bounds the user part of a receipt; gateways cap receipts
// at 40 characters.
const maxReceiptUser = 30

// CheckoutReader returns the user's current checkout.
type CheckoutReader interface {
	Get(ctx context.Context, userID string) (*checkout.Checkout, error)
}

// Service opens gateway orders for checkouts.
type Service struct {
	gateway   Gateway
	checkouts CheckoutReader
	repo      Repository
	currency  string
}

// NewService creates a payment Service charging in currency.
func NewService(gateway Gateway, checkouts CheckoutReader, repo Repository, currency string) *Service {
	return &Service{
		gateway:   gateway,
		checkouts: checkouts,
		repo:      repo,
		currency:  currency,
	}
}

// Initiate opens a gateway order for the user's checkout total and records it.
func (s *Service) Initiate(ctx context.Context, userID string) (*Intent, error) {
	c, err := s.checkouts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.Stale() {
		return nil, checkout.ErrStale
	}
	if !c.TotalPaymentAmount.IsPositive() {
		return nil, apperr.New(apperr.ErrNotEligible, "checkout total must be positive")
	}

	amount := c.TotalPaymentAmount.Mul(minorUnits).Round(0).IntPart()
	receipt := Receipt(userID)

	order, err := s.gateway.CreateOrder(ctx, amount, s.currency, receipt)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExternal, err, "failed to create payment order")
	}

	in := &Intent{
		UserID:         userID,
		GatewayOrderID: order.ID,
		Amount:         c.TotalPaymentAmount,
		Currency:       s.currency,
		Receipt:        receipt,
	}
	if err := s.repo.SaveIntent(ctx, in); err != nil {
		return nil, apperr.Storage(err, "save payment intent")
	}

	zctx.From(ctx).Info("Payment initiated",
		zap.String("user_id", userID),
		zap.String("gateway_order_id", order.ID),
		zap.Int64("amount_minor", amount),
	)
	return in, nil
}

// Receipt builds the gateway receipt reference for a user.
func Receipt(userID string) string {
	if len(userID) > maxReceiptUser {
		userID = userID[:maxReceiptUser]
	}
	return fmt.Sprintf("receipt_%s", userID)
}
