package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/checkout"
)

type mockGateway struct {
	amount   int64
	currency string
	receipt  string
	err      error
}

func (m *mockGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (*GatewayOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.amount, m.currency, m.receipt = amount, currency, receipt
	return &GatewayOrder{ID: "order_abc", Amount: amount, Currency: currency, Receipt: receipt}, nil
}

type mockCheckouts struct {
	c   *checkout.Checkout
	err error
}

func (m *mockCheckouts) Get(_ context.Context, _ string) (*checkout.Checkout, error) {
	return m.c, m.err
}

type mockRepo struct {
	saved *Intent
}

func (m *mockRepo) SaveIntent(_ context.Context, in *Intent) error {
	in.ID = 1
	m.saved = in
	return nil
}

func TestInitiate(t *testing.T) {
	gw := &mockGateway{}
	repo := &mockRepo{}
	co := &mockCheckouts{c: &checkout.Checkout{
		TotalPaymentAmount: decimal.RequireFromString("1725.50"),
		WrappingCost:       decimal.NewFromInt(25),
		Details:            []checkout.Detail{{ProductID: "p1", Size: "M", Quantity: 1, FinalPrice: decimal.RequireFromString("1700.50")}},
	}}
	svc := NewService(gw, co, repo, "INR")

	in, err := svc.Initiate(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, int64(172550), gw.amount)
	assert.Equal(t, "INR", gw.currency)
	assert.Equal(t, "receipt_user-1", gw.receipt)
	assert.Equal(t, "order_abc", in.GatewayOrderID)
	require.NotNil(t, repo.saved)
	assert.True(t, decimal.RequireFromString("1725.50").Equal(repo.saved.Amount))
}

func pricedCheckout(total string) *checkout.Checkout {
	amount := decimal.RequireFromString(total)
	return &checkout.Checkout{
		TotalPaymentAmount: amount,
		Details:            []checkout.Detail{{ProductID: "p1", Size: "M", Quantity: 1, FinalPrice: amount}},
	}
}

func TestInitiate_Errors(t *testing.T) {
	staleCheckout := pricedCheckout("1800")
	staleCheckout.Details[0].FinalPrice = decimal.NewFromInt(900)

	tests := []struct {
		name     string
		checkout *mockCheckouts
		gateway  *mockGateway
		wantErr  error
	}{
		{
			name:     "no checkout",
			checkout: &mockCheckouts{err: checkout.ErrNotFound},
			gateway:  &mockGateway{},
			wantErr:  apperr.ErrNotFound,
		},
		{
			name:     "zero total",
			checkout: &mockCheckouts{c: &checkout.Checkout{TotalPaymentAmount: decimal.Zero}},
			gateway:  &mockGateway{},
			wantErr:  apperr.ErrNotEligible,
		},
		{
			name:     "stale after cart removal",
			checkout: &mockCheckouts{c: staleCheckout},
			gateway:  &mockGateway{},
			wantErr:  checkout.ErrStale,
		},
		{
			name:     "gateway failure",
			checkout: &mockCheckouts{c: pricedCheckout("10")},
			gateway:  &mockGateway{err: errors.New("503")},
			wantErr:  apperr.ErrExternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.gateway, tt.checkout, &mockRepo{}, "INR")
			_, err := svc.Initiate(context.Background(), "u1")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReceipt_Truncates(t *testing.T) {
	r := Receipt(strings.Repeat("x", 64))
	assert.Equal(t, "receipt_"+strings.Repeat("x", 30), r)
}
