package coupon

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// --- Mock implementations ---

// memRepo mirrors the conditional UPDATE used by the Postgres repository.
type memRepo struct {
	coupons     map[string]*Coupon
	deactivated []string
	nextID      int64
	findErr     error
}

func newMemRepo(coupons ...*Coupon) *memRepo {
	m := &memRepo{coupons: make(map[string]*Coupon)}
	for _, c := range coupons {
		m.nextID++
		c.ID = m.nextID
		m.coupons[strings.ToUpper(c.Code)] = c
	}
	return m
}

func (m *memRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) ListActive(_ context.Context) ([]Coupon, error) {
	var out []Coupon
	for _, c := range m.coupons {
		if c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) List(_ context.Context) ([]Coupon, error) {
	var out []Coupon
	for _, c := range m.coupons {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, c *Coupon) error {
	if _, ok := m.coupons[c.Code]; ok {
		return ErrDuplicateCode
	}
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.coupons[c.Code] = &cp
	return nil
}

func (m *memRepo) AddCondition(_ context.Context, code string, cond Condition) (*Condition, error) {
	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	cond.CouponID = c.ID
	c.Conditions = append(c.Conditions, cond)
	return &cond, nil
}

func (m *memRepo) Delete(_ context.Context, code string) error {
	if _, ok := m.coupons[strings.ToUpper(code)]; !ok {
		return ErrNotFound
	}
	delete(m.coupons, strings.ToUpper(code))
	return nil
}

func (m *memRepo) Toggle(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	c.Active = !c.Active
	cp := *c
	return &cp, nil
}

func (m *memRepo) Deactivate(_ context.Context, code string) error {
	m.deactivated = append(m.deactivated, code)
	if c, ok := m.coupons[strings.ToUpper(code)]; ok {
		c.Active = false
	}
	return nil
}

func (m *memRepo) Claim(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok || !c.Active || c.Exhausted() {
		return nil, ErrUsageLimitReached
	}
	c.TimesUsed++
	if c.Exhausted() {
		c.Active = false
	}
	cp := *c
	return &cp, nil
}

type mockCarts struct {
	view *cart.View
	err  error
}

func (m *mockCarts) Reconcile(_ context.Context, _ string) (*cart.View, error) {
	return m.view, m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository, view *cart.View) *Service {
	svc := NewService(repo, &mockCarts{view: view})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func flat(code string, value int64) *Coupon {
	return &Coupon{
		Code:         code,
		DiscountType: pricing.DiscountFlat,
		Value:        decimal.NewFromInt(value),
		Active:       true,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// --- Tests ---

func TestValidate(t *testing.T) {
	view := &cart.View{
		Items:      []cart.Line{{Category: "shirts", Tags: []string{"summer"}}},
		GrandTotal: decimal.NewFromInt(1800),
	}

	tests := []struct {
		name            string
		coupon          *Coupon
		code            string
		wantErr         error
		wantDeactivated bool
	}{
		{
			name:   "valid flat coupon",
			coupon: flat("FLAT100", 100),
			code:   "flat100",
		},
		{
			name:    "unknown code",
			coupon:  flat("FLAT100", 100),
			code:    "NOPE",
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "inactive",
			coupon: func() *Coupon {
				c := flat("OFF", 100)
				c.Active = false
				return c
			}(),
			code:    "OFF",
			wantErr: ErrInactive,
		},
		{
			name: "not started",
			coupon: func() *Coupon {
				c := flat("SOON", 100)
				c.StartDate = timePtr(fixedNow.Add(time.Hour))
				return c
			}(),
			code:    "SOON",
			wantErr: ErrExpired,
		},
		{
			name: "ended",
			coupon: func() *Coupon {
				c := flat("OLD", 100)
				c.EndDate = timePtr(fixedNow.Add(-time.Hour))
				return c
			}(),
			code:    "OLD",
			wantErr: ErrExpired,
		},
		{
			name: "usage limit reached deactivates",
			coupon: func() *Coupon {
				c := flat("USED", 100)
				c.UsageLimit = 3
				c.TimesUsed = 3
				return c
			}(),
			code:            "USED",
			wantErr:         ErrUsageLimitReached,
			wantDeactivated: true,
		},
		{
			name: "condition unmet",
			coupon: func() *Coupon {
				c := flat("BIG", 100)
				c.Conditions = []Condition{{Type: ConditionMinimumPurchase, Value: "2000"}}
				return c
			}(),
			code:    "BIG",
			wantErr: ErrNotEligible,
		},
		{
			name: "conditions met",
			coupon: func() *Coupon {
				c := flat("SUMMER", 100)
				c.Conditions = []Condition{
					{Type: ConditionMinimumPurchase, Value: "1000"},
					{Type: ConditionTag, Value: "summer"},
				}
				return c
			}(),
			code: "SUMMER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo(tt.coupon)
			svc := newTestService(repo, view)

			got, err := svc.Validate(context.Background(), "u1", tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, apperr.ErrNotEligible)
				assert.Equal(t, tt.wantDeactivated, len(repo.deactivated) == 1)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.coupon.Code, got.Code)
		})
	}
}

func TestValidate_EmptyCode(t *testing.T) {
	svc := newTestService(newMemRepo(), &cart.View{})
	_, err := svc.Validate(context.Background(), "u1", "  ")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestValidate_StorageError(t *testing.T) {
	repo := newMemRepo()
	repo.findErr = errors.New("timeout")
	svc := newTestService(repo, &cart.View{})

	_, err := svc.Validate(context.Background(), "u1", "X")
	require.ErrorIs(t, err, apperr.ErrStorage)
}

func TestClaim_IncrementsAndDeactivatesAtLimit(t *testing.T) {
	c := flat("TWICE", 50)
	c.UsageLimit = 2
	repo := newMemRepo(c)
	svc := newTestService(repo, &cart.View{})
	ctx := context.Background()

	first, err := svc.Claim(ctx, "TWICE")
	require.NoError(t, err)
	assert.Equal(t, 1, first.TimesUsed)
	assert.True(t, first.Active)

	second, err := svc.Claim(ctx, "TWICE")
	require.NoError(t, err)
	assert.Equal(t, 2, second.TimesUsed)
	assert.False(t, second.Active)

	_, err = svc.Claim(ctx, "TWICE")
	require.ErrorIs(t, err, ErrUsageLimitReached)
	assert.Equal(t, 2, repo.coupons["TWICE"].TimesUsed)

	_, err = svc.Validate(ctx, "u1", "TWICE")
	require.ErrorIs(t, err, apperr.ErrNotEligible)
}

func TestListAvailable(t *testing.T) {
	eligible := flat("BIG", 300)
	eligible.Conditions = []Condition{{Type: ConditionProductCategory, Value: "shirts"}}
	small := flat("SMALL", 50)
	wrongTag := flat("TAGGED", 200)
	wrongTag.Conditions = []Condition{{Type: ConditionTag, Value: "winter"}}
	expired := flat("GONE", 500)
	expired.EndDate = timePtr(fixedNow.Add(-time.Minute))
	exhausted := flat("DONE", 400)
	exhausted.UsageLimit = 1
	exhausted.TimesUsed = 1
	inactive := flat("OFF", 600)
	inactive.Active = false

	repo := newMemRepo(eligible, small, wrongTag, expired, exhausted, inactive)
	view := &cart.View{
		Items:      []cart.Line{{Category: "Shirts"}},
		GrandTotal: decimal.NewFromInt(900),
	}
	svc := newTestService(repo, view)

	got, err := svc.ListAvailable(context.Background(), "u1")
	require.NoError(t, err)

	codes := make([]string, 0, len(got))
	for _, c := range got {
		codes = append(codes, c.Code)
	}
	assert.ElementsMatch(t, []string{"BIG", "SMALL"}, codes)
}

func TestIsEligible(t *testing.T) {
	c := flat("MIN", 10)
	c.Conditions = []Condition{{Type: ConditionMinimumPurchase, Value: "500"}}
	repo := newMemRepo(c)

	ok, err := newTestService(repo, &cart.View{GrandTotal: decimal.NewFromInt(499)}).IsEligible(context.Background(), "u1", "MIN")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = newTestService(repo, &cart.View{GrandTotal: decimal.NewFromInt(500)}).IsEligible(context.Background(), "u1", "MIN")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{
			name: "percentage with cap",
			req: CreateRequest{
				Code: " save20 ", DiscountType: pricing.DiscountPercentage,
				Value: decimal.NewFromInt(20), MaxValue: decimal.NewNullDecimal(decimal.NewFromInt(250)), Active: true,
			},
		},
		{
			name:    "missing code",
			req:     CreateRequest{DiscountType: pricing.DiscountFlat, Value: decimal.NewFromInt(10)},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "percentage above 100",
			req:     CreateRequest{Code: "X", DiscountType: pricing.DiscountPercentage, Value: decimal.NewFromInt(101)},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "cap on flat",
			req: CreateRequest{
				Code: "X", DiscountType: pricing.DiscountFlat, Value: decimal.NewFromInt(10),
				MaxValue: decimal.NewNullDecimal(decimal.NewFromInt(5)),
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "unknown type",
			req:     CreateRequest{Code: "X", DiscountType: "BOGO", Value: decimal.NewFromInt(10)},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "end before start",
			req: CreateRequest{
				Code: "X", DiscountType: pricing.DiscountFlat, Value: decimal.NewFromInt(10),
				StartDate: timePtr(fixedNow), EndDate: timePtr(fixedNow.Add(-time.Hour)),
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "duplicate",
			req:     CreateRequest{Code: "EXISTS", DiscountType: pricing.DiscountFlat, Value: decimal.NewFromInt(10)},
			wantErr: ErrDuplicateCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMemRepo(flat("EXISTS", 1)), &cart.View{})
			got, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "SAVE20", got.Code)
			assert.NotZero(t, got.ID)
		})
	}
}

func TestAddCondition(t *testing.T) {
	repo := newMemRepo(flat("C1", 10))
	svc := newTestService(repo, &cart.View{})
	ctx := context.Background()

	_, err := svc.AddCondition(ctx, "C1", Condition{Type: ConditionMinimumPurchase, Value: "-5"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.AddCondition(ctx, "C1", Condition{Type: "NOPE", Value: "x"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.AddCondition(ctx, "C1", Condition{Type: ConditionTag, Value: " "})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.AddCondition(ctx, "MISSING", Condition{Type: ConditionTag, Value: "x"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	cond, err := svc.AddCondition(ctx, "C1", Condition{Type: ConditionTag, Value: " summer "})
	require.NoError(t, err)
	assert.Equal(t, "summer", cond.Value)
	assert.Len(t, repo.coupons["C1"].Conditions, 1)
}

func TestToggleAndRemove(t *testing.T) {
	repo := newMemRepo(flat("T", 10))
	svc := newTestService(repo, &cart.View{})
	ctx := context.Background()

	c, err := svc.Toggle(ctx, "T")
	require.NoError(t, err)
	assert.False(t, c.Active)

	require.NoError(t, svc.Remove(ctx, "T"))
	require.ErrorIs(t, svc.Remove(ctx, "T"), apperr.ErrNotFound)

	_, err = svc.Toggle(ctx, "T")
	require.ErrorIs(t, err, ErrNotFound)
}
