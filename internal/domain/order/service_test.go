package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/refund"
)

// --- Mock implementations ---

// memState is the data behind memRepo. WithinTx works on a copy and only
// keeps it when fn succeeds.
type memState struct {
	orders    map[int64]*Order
	payments  map[int64]*payment.Payment // by order id
	refunds   []refund.Refund
	returns   []refund.ReturnRequest
	exchanges []refund.ExchangeRequest
	cleared   []string
	nextID    int64
}

func (s *memState) clone() *memState {
	cp := &memState{
		orders:    make(map[int64]*Order, len(s.orders)),
		payments:  make(map[int64]*payment.Payment, len(s.payments)),
		refunds:   append([]refund.Refund(nil), s.refunds...),
		returns:   append([]refund.ReturnRequest(nil), s.returns...),
		exchanges: append([]refund.ExchangeRequest(nil), s.exchanges...),
		cleared:   append([]string(nil), s.cleared...),
		nextID:    s.nextID,
	}
	for id, o := range s.orders {
		oc := *o
		oc.Details = append([]Detail(nil), o.Details...)
		cp.orders[id] = &oc
	}
	for id, p := range s.payments {
		cp.payments[id] = p
	}
	return cp
}

type memRepo struct {
	state      *memState
	intents    map[string]*payment.Intent
	failRefund bool
	pendingPay *payment.Payment
}

func newMemRepo() *memRepo {
	return &memRepo{
		state: &memState{
			orders:   make(map[int64]*Order),
			payments: make(map[int64]*payment.Payment),
		},
		intents: make(map[string]*payment.Intent),
	}
}

func (m *memRepo) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	work := m.state.clone()
	if err := fn(&memTx{repo: m, s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memRepo) GetByPublicID(_ context.Context, publicID string) (*Order, error) {
	for _, o := range m.state.orders {
		if o.PublicID == publicID {
			cp := *o
			cp.Details = append([]Detail(nil), o.Details...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.state.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memRepo) List(_ context.Context, _ Filter) ([]Order, error) {
	var out []Order
	for _, o := range m.state.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memRepo) bulk(orderID int64, fn func(d *Detail)) int64 {
	o := m.state.orders[orderID]
	var n int64
	for i := range o.Details {
		if o.Details[i].Flagged() {
			continue
		}
		fn(&o.Details[i])
		n++
	}
	return n
}

func (m *memRepo) MarkShipped(_ context.Context, orderID int64, trackingID, trackingLink string) (int64, error) {
	return m.bulk(orderID, func(d *Detail) {
		d.ProductStatus = StatusShipped
		d.TrackingID, d.TrackingLink = trackingID, trackingLink
		d.Status.OrderStatus = string(StatusShipped)
	}), nil
}

func (m *memRepo) MarkDelivered(_ context.Context, orderID int64, at time.Time) (int64, error) {
	return m.bulk(orderID, func(d *Detail) {
		d.ProductStatus = StatusDelivered
		d.TrackingID, d.TrackingLink = "", ""
		d.Status.OrderStatus = string(StatusDelivered)
		d.Status.DeliveredDate = &at
	}), nil
}

func (m *memRepo) SetStatus(_ context.Context, orderID int64, orderStatus string, productStatus ProductStatus) (int64, error) {
	return m.bulk(orderID, func(d *Detail) {
		d.ProductStatus = productStatus
		d.Status.OrderStatus = orderStatus
	}), nil
}

type memTx struct {
	repo *memRepo
	s    *memState
}

func (t *memTx) detail(detailID int64) *Detail {
	for _, o := range t.s.orders {
		for i := range o.Details {
			if o.Details[i].ID == detailID {
				return &o.Details[i]
			}
		}
	}
	return nil
}

func (t *memTx) PaymentIntent(_ context.Context, gatewayOrderID string) (*payment.Intent, error) {
	in, ok := t.repo.intents[gatewayOrderID]
	if !ok {
		return nil, payment.ErrUnknownIntent
	}
	return in, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *payment.Payment) error {
	for _, existing := range t.s.payments {
		if existing.GatewayPaymentID == p.GatewayPaymentID {
			return payment.ErrDuplicate
		}
	}
	t.s.nextID++
	p.ID = t.s.nextID
	t.repo.pendingPay = p
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	t.s.nextID++
	o.ID = t.s.nextID
	for i := range o.Details {
		t.s.nextID++
		o.Details[i].ID = t.s.nextID
		o.Details[i].OrderID = o.ID
	}
	cp := *o
	cp.Details = append([]Detail(nil), o.Details...)
	t.s.orders[o.ID] = &cp
	if t.repo.pendingPay != nil {
		t.s.payments[o.ID] = t.repo.pendingPay
	}
	return nil
}

func (t *memTx) ClearCheckout(_ context.Context, userID string) error {
	t.s.cleared = append(t.s.cleared, userID)
	return nil
}

func (t *memTx) PaymentForOrder(_ context.Context, orderID int64) (*payment.Payment, error) {
	p, ok := t.s.payments[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func (t *memTx) LockDetail(_ context.Context, orderID, detailID int64) (*Detail, error) {
	d := t.detail(detailID)
	if d == nil || d.OrderID != orderID {
		return nil, ErrDetailNotFound
	}
	cp := *d
	return &cp, nil
}

func (t *memTx) LockDetails(_ context.Context, orderID int64) ([]Detail, error) {
	return append([]Detail(nil), t.s.orders[orderID].Details...), nil
}

func (t *memTx) SetDetailState(_ context.Context, detailID int64, status ProductStatus, flag Flag) error {
	d := t.detail(detailID)
	d.ProductStatus = status
	switch flag {
	case FlagCancelled:
		d.IsCancelled = true
	case FlagReturned:
		d.IsReturned = true
	case FlagExchanged:
		d.IsExchanged = true
	}
	return nil
}

func (t *memTx) SetLineStatus(_ context.Context, detailID int64, orderStatus, orderType string) error {
	d := t.detail(detailID)
	d.Status.OrderStatus = orderStatus
	d.Status.OrderType = orderType
	return nil
}

func (t *memTx) CreateRefund(_ context.Context, r *refund.Refund) error {
	if t.repo.failRefund {
		return errors.New("refund insert failed")
	}
	t.s.refunds = append(t.s.refunds, *r)
	return nil
}

func (t *memTx) CreateReturn(_ context.Context, r *refund.ReturnRequest) error {
	t.s.returns = append(t.s.returns, *r)
	return nil
}

func (t *memTx) CreateExchange(_ context.Context, r *refund.ExchangeRequest) error {
	t.s.exchanges = append(t.s.exchanges, *r)
	return nil
}

type stubVerifier struct {
	ok bool
}

func (v stubVerifier) Verify(payment.Confirmation) bool { return v.ok }

type stubCheckouts struct {
	c   *checkout.Checkout
	err error
}

func (s *stubCheckouts) Get(_ context.Context, _ string) (*checkout.Checkout, error) {
	return s.c, s.err
}

type recordingNotifier struct {
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) {
	r.events = append(r.events, e)
}

// --- Helpers ---

var placedAt = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	svc      *Service
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		notifier: &recordingNotifier{},
		clock:    placedAt,
	}
	co := &checkout.Checkout{
		UserID:             "u1",
		TotalPaymentAmount: decimal.NewFromInt(2600),
		CouponCode:         "FLAT100",
		CouponDiscount:     decimal.NewFromInt(100),
		Details: []checkout.Detail{
			{ProductID: "p1", Size: "M", Quantity: 2, Title: "Shirt", FinalPrice: decimal.NewFromInt(1700)},
			{ProductID: "p2", Size: "L", Quantity: 1, Title: "Jeans", FinalPrice: decimal.NewFromInt(900)},
		},
	}
	f.repo.intents["order_1"] = &payment.Intent{UserID: "u1", GatewayOrderID: "order_1", Amount: co.TotalPaymentAmount}
	f.svc = NewService(f.repo, stubVerifier{ok: true}, &stubCheckouts{c: co}, f.notifier, Config{
		ReturnWindowDays:     14,
		EstimateDeliveryDays: 7,
		PaymentMethod:        "razorpay",
	})
	f.svc.now = func() time.Time { return f.clock }
	f.svc.newID = func() string { return "01HZYQ5N3ZK8R4X2V7B9C6D1EF" }
	return f
}

func placeRequest() PlaceRequest {
	return PlaceRequest{
		UserID: "u1",
		Payment: payment.Confirmation{
			GatewayOrderID:   "order_1",
			GatewayPaymentID: "pay_1",
			Signature:        "sig",
		},
		DeliveryAddress:  "12 Main St",
		DeliveryPin:      "560001",
		RecipientName:    "Asha",
		RecipientContact: "9999999999",
	}
}

func (f *fixture) place(t *testing.T) *Order {
	t.Helper()
	o, err := f.svc.Place(context.Background(), placeRequest())
	require.NoError(t, err)
	return o
}

func (f *fixture) setStatus(t *testing.T, o *Order, idx int, st ProductStatus) {
	t.Helper()
	f.repo.state.orders[o.ID].Details[idx].ProductStatus = st
}

func (f *fixture) stored(o *Order, idx int) Detail {
	return f.repo.state.orders[o.ID].Details[idx]
}

// --- Tests ---

func TestPlace(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	assert.Equal(t, "01HZYQ5N3ZK8R4X2V7B9C6D1EF", o.PublicID)
	assert.NotZero(t, o.ID)
	require.Len(t, o.Details, 2)
	for _, d := range o.Details {
		assert.Equal(t, StatusConfirmed, d.ProductStatus)
		assert.Equal(t, TypePurchase, d.Status.OrderType)
		assert.Equal(t, placedAt.AddDate(0, 0, 7), d.Status.EstimateDelivery)
	}
	assert.True(t, decimal.NewFromInt(1700).Equal(o.Details[0].Price))
	assert.Equal(t, []string{"u1"}, f.repo.state.cleared)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, EventPlaced, f.notifier.events[0].Type)
}

func TestPlace_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	f.svc.verifier = stubVerifier{ok: false}

	_, err := f.svc.Place(context.Background(), placeRequest())
	require.ErrorIs(t, err, payment.ErrInvalidSignature)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.repo.state.orders)
	assert.Empty(t, f.repo.state.cleared)
	assert.Empty(t, f.notifier.events)
}

func TestPlace_MissingFields(t *testing.T) {
	f := newFixture(t)
	req := placeRequest()
	req.DeliveryPin = ""
	req.Payment.Signature = " "

	_, err := f.svc.Place(context.Background(), req)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Message(err), "delivery_pin_code")
	assert.Contains(t, apperr.Message(err), "razorpay_signature")
}

func TestPlace_EmptyCheckout(t *testing.T) {
	f := newFixture(t)
	f.svc.checkouts = &stubCheckouts{c: &checkout.Checkout{UserID: "u1"}}

	_, err := f.svc.Place(context.Background(), placeRequest())
	require.ErrorIs(t, err, checkout.ErrNoCheckoutItems)
}

func TestPlace_StaleCheckout(t *testing.T) {
	f := newFixture(t)
	// The jeans line was removed from the cart after pricing; the header
	// still carries the old total and so does the payment intent.
	f.svc.checkouts = &stubCheckouts{c: &checkout.Checkout{
		UserID:             "u1",
		TotalPaymentAmount: decimal.NewFromInt(2600),
		Details: []checkout.Detail{
			{ProductID: "p1", Size: "M", Quantity: 2, Title: "Shirt", FinalPrice: decimal.NewFromInt(1700)},
		},
	}}

	_, err := f.svc.Place(context.Background(), placeRequest())
	require.ErrorIs(t, err, checkout.ErrStale)
	require.ErrorIs(t, err, apperr.ErrNotEligible)
	assert.Empty(t, f.repo.state.orders)
	assert.Empty(t, f.repo.state.cleared)
}

func TestPlace_PaymentIntentMismatch(t *testing.T) {
	tests := []struct {
		name   string
		intent *payment.Intent
		want   error
		kind   error
	}{
		{
			name: "unknown gateway order",
			want: payment.ErrUnknownIntent,
			kind: apperr.ErrValidation,
		},
		{
			name:   "opened by another user",
			intent: &payment.Intent{UserID: "u2", GatewayOrderID: "order_1", Amount: decimal.NewFromInt(2600)},
			want:   payment.ErrUnknownIntent,
			kind:   apperr.ErrValidation,
		},
		{
			name:   "checkout total changed",
			intent: &payment.Intent{UserID: "u1", GatewayOrderID: "order_1", Amount: decimal.NewFromInt(500)},
			want:   payment.ErrAmountMismatch,
			kind:   apperr.ErrNotEligible,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			delete(f.repo.intents, "order_1")
			if tt.intent != nil {
				f.repo.intents["order_1"] = tt.intent
			}

			_, err := f.svc.Place(context.Background(), placeRequest())
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, tt.kind)
			assert.Empty(t, f.repo.state.orders)
			assert.Empty(t, f.repo.state.payments)
			assert.Empty(t, f.repo.state.cleared)
			assert.Empty(t, f.notifier.events)
		})
	}
}

func TestPlace_DuplicatePayment(t *testing.T) {
	f := newFixture(t)
	f.place(t)

	_, err := f.svc.Place(context.Background(), placeRequest())
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.repo.state.orders, 1)
}

func TestCancelItem(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	f.clock = placedAt.Add(48 * time.Hour)

	d, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, o.Details[0].ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, d.ProductStatus)
	assert.True(t, d.IsCancelled)

	stored := f.stored(o, 0)
	assert.Equal(t, StatusCanceled, stored.ProductStatus)
	assert.Equal(t, TypeCancel, stored.Status.OrderType)

	require.Len(t, f.repo.state.refunds, 1)
	r := f.repo.state.refunds[0]
	assert.Equal(t, refund.StatusInitiated, r.Status)
	assert.Equal(t, o.Details[0].ID, r.DetailID)
	assert.True(t, decimal.NewFromInt(1700).Equal(r.Amount))
	assert.Equal(t, "pay_1", r.PaymentID)
	assert.Equal(t, "razorpay", r.PaymentMethod)
	assert.Equal(t, refund.MessageCancelInitiated, r.Message)

	assert.Equal(t, EventItemCanceled, f.notifier.events[len(f.notifier.events)-1].Type)
}

func TestCancelItem_SecondCallNotEligible(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	ctx := context.Background()

	_, err := f.svc.CancelItem(ctx, "u1", o.PublicID, o.Details[0].ID, "first")
	require.NoError(t, err)

	_, err = f.svc.CancelItem(ctx, "u1", o.PublicID, o.Details[0].ID, "again")
	require.ErrorIs(t, err, apperr.ErrNotEligible)
	assert.Len(t, f.repo.state.refunds, 1)
}

func TestLineTransitions_Guards(t *testing.T) {
	tests := []struct {
		name   string
		status ProductStatus
		call   func(f *fixture, o *Order) error
	}{
		{
			name:   "cancel shipped",
			status: StatusShipped,
			call: func(f *fixture, o *Order) error {
				_, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, o.Details[0].ID, "late")
				return err
			},
		},
		{
			name:   "cancel delivered",
			status: StatusDelivered,
			call: func(f *fixture, o *Order) error {
				_, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, o.Details[0].ID, "late")
				return err
			},
		},
		{
			name:   "return confirmed",
			status: StatusConfirmed,
			call: func(f *fixture, o *Order) error {
				_, err := f.svc.RequestReturn(context.Background(), "u1", o.PublicID, o.Details[0].ID, "bad fit")
				return err
			},
		},
		{
			name:   "return shipped",
			status: StatusShipped,
			call: func(f *fixture, o *Order) error {
				_, err := f.svc.RequestReturn(context.Background(), "u1", o.PublicID, o.Details[0].ID, "bad fit")
				return err
			},
		},
		{
			name:   "exchange confirmed",
			status: StatusConfirmed,
			call: func(f *fixture, o *Order) error {
				_, err := f.svc.RequestExchange(context.Background(), "u1", o.PublicID, o.Details[0].ID, "too small", "L")
				return err
			},
		},
		{
			name:   "exchange after return requested",
			status: StatusReturnRequested,
			call: func(f *fixture, o *Order) error {
				_, err := f.svc.RequestExchange(context.Background(), "u1", o.PublicID, o.Details[0].ID, "too small", "L")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.place(t)
			f.setStatus(t, o, 0, tt.status)
			before := f.stored(o, 0)

			err := tt.call(f, o)
			require.ErrorIs(t, err, apperr.ErrNotEligible)

			assert.Equal(t, before, f.stored(o, 0))
			assert.Empty(t, f.repo.state.refunds)
			assert.Empty(t, f.repo.state.returns)
			assert.Empty(t, f.repo.state.exchanges)
		})
	}
}

func TestRequestReturn(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	f.setStatus(t, o, 1, StatusDelivered)

	d, err := f.svc.RequestReturn(context.Background(), "u1", o.PublicID, o.Details[1].ID, "bad fit")
	require.NoError(t, err)
	assert.Equal(t, StatusReturnRequested, d.ProductStatus)
	assert.True(t, d.IsReturned)
	assert.False(t, d.IsCancelled)
	assert.False(t, d.IsExchanged)

	require.Len(t, f.repo.state.returns, 1)
	assert.Equal(t, refund.RequestRequested, f.repo.state.returns[0].Status)
	require.Len(t, f.repo.state.refunds, 1)
	assert.Equal(t, refund.MessageReturnInitiated, f.repo.state.refunds[0].Message)

	// A returned line cannot also be exchanged.
	_, err = f.svc.RequestExchange(context.Background(), "u1", o.PublicID, o.Details[1].ID, "swap", "XL")
	require.ErrorIs(t, err, apperr.ErrNotEligible)
	stored := f.stored(o, 1)
	assert.True(t, stored.IsReturned)
	assert.False(t, stored.IsExchanged)
}

func TestRequestExchange(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	f.setStatus(t, o, 0, StatusDelivered)

	_, err := f.svc.RequestExchange(context.Background(), "u1", o.PublicID, o.Details[0].ID, "too small", "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	d, err := f.svc.RequestExchange(context.Background(), "u1", o.PublicID, o.Details[0].ID, "too small", "L")
	require.NoError(t, err)
	assert.True(t, d.IsExchanged)
	require.Len(t, f.repo.state.exchanges, 1)
	assert.Equal(t, "L", f.repo.state.exchanges[0].Size)
	assert.Len(t, f.repo.state.refunds, 1)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "same day", elapsed: time.Hour},
		{name: "exactly 14 days", elapsed: 14 * 24 * time.Hour},
		{name: "into day 15", elapsed: 14*24*time.Hour + time.Minute, wantErr: ErrWindowExpired},
		{name: "a month", elapsed: 30 * 24 * time.Hour, wantErr: ErrWindowExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.place(t)
			f.clock = placedAt.Add(tt.elapsed)

			_, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, o.Details[0].ID, "reason")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, apperr.ErrWindowExpired)
				assert.Empty(t, f.repo.state.refunds)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCancelItem_RollsBackOnRefundFailure(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	f.repo.failRefund = true

	_, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, o.Details[0].ID, "reason")
	require.ErrorIs(t, err, apperr.ErrStorage)

	stored := f.stored(o, 0)
	assert.Equal(t, StatusConfirmed, stored.ProductStatus)
	assert.False(t, stored.IsCancelled)
	assert.Empty(t, f.repo.state.refunds)
}

func TestCancelItem_OtherUsersOrder(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	_, err := f.svc.CancelItem(context.Background(), "intruder", o.PublicID, o.Details[0].ID, "reason")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelItem_UnknownDetail(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	_, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, 9999, "reason")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelItem_RequiresReason(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	_, err := f.svc.CancelItem(context.Background(), "u1", o.PublicID, o.Details[0].ID, "  ")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	f.setStatus(t, o, 1, StatusShipped)

	canceled, err := f.svc.CancelOrder(context.Background(), "u1", o.PublicID, "not needed")
	require.NoError(t, err)
	require.Len(t, canceled, 1)
	assert.Equal(t, o.Details[0].ID, canceled[0].ID)

	assert.Equal(t, StatusCanceled, f.stored(o, 0).ProductStatus)
	assert.Equal(t, StatusShipped, f.stored(o, 1).ProductStatus)
	assert.False(t, f.stored(o, 1).IsCancelled)
	require.Len(t, f.repo.state.refunds, 1)

	_, err = f.svc.CancelOrder(context.Background(), "u1", o.PublicID, "again")
	require.ErrorIs(t, err, ErrNothingToCancel)
	assert.Len(t, f.repo.state.refunds, 1)
}

func TestShipAndDeliver_SkipFlaggedLines(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	ctx := context.Background()

	_, err := f.svc.CancelItem(ctx, "u1", o.PublicID, o.Details[0].ID, "reason")
	require.NoError(t, err)

	_, err = f.svc.Ship(ctx, o.PublicID, "AWB123", "https://track.example/AWB123")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, f.stored(o, 0).ProductStatus)
	assert.Equal(t, StatusShipped, f.stored(o, 1).ProductStatus)
	assert.Equal(t, "AWB123", f.stored(o, 1).TrackingID)

	f.clock = placedAt.Add(72 * time.Hour)
	_, err = f.svc.Deliver(ctx, o.PublicID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, f.stored(o, 0).ProductStatus)
	delivered := f.stored(o, 1)
	assert.Equal(t, StatusDelivered, delivered.ProductStatus)
	assert.Empty(t, delivered.TrackingID)
	require.NotNil(t, delivered.Status.DeliveredDate)

	types := make([]EventType, 0, len(f.notifier.events))
	for _, e := range f.notifier.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventPlaced, EventItemCanceled, EventShipped, EventDelivered}, types)
}

func TestShip_Validation(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)

	_, err := f.svc.Ship(context.Background(), o.PublicID, "", "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Ship(context.Background(), "missing", "AWB", "")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	o := f.place(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, o.PublicID, "dispatched", "teleported")
	require.ErrorIs(t, err, apperr.ErrValidation)

	f.repo.state.orders[o.ID].Details[1].IsCancelled = true
	_, err = f.svc.UpdateStatus(ctx, o.PublicID, "dispatched", StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, f.stored(o, 0).ProductStatus)
	assert.Equal(t, StatusConfirmed, f.stored(o, 1).ProductStatus)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ProductStatus
		want     bool
	}{
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCanceled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusReturnRequested, true},
		{StatusDelivered, StatusExchangeRequested, true},
		{StatusShipped, StatusCanceled, false},
		{StatusCanceled, StatusConfirmed, false},
		{StatusConfirmed, StatusReturnRequested, false},
		{StatusReturnRequested, StatusExchangeRequested, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}
