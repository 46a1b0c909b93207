package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/pricing"
)

var hundred = decimal.NewFromInt(100)

// CartReader returns a shopper's reconciled cart.
type CartReader interface {
	Reconcile(ctx context.Context, userID string) (*cart.View, error)
}

// CreateRequest holds the input for creating a coupon.
type CreateRequest struct {
	Code         string
	Description  string
	DiscountType pricing.DiscountType
	Value        decimal.Decimal
	MaxValue     decimal.NullDecimal
	StartDate    *time.Time
	EndDate      *time.Time
	UsageLimit   int
	Active       bool
}

// Service implements coupon validation, claiming, listing and administration.
type Service struct {
	repo  Repository
	carts CartReader
	now   func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository, carts CartReader) *Service {
	return &Service{repo: repo, carts: carts, now: time.Now}
}

// Validate checks that the coupon can be applied to the shopper's current
// cart right now. A coupon found at its usage limit is deactivated.
func (s *Service) Validate(ctx context.Context, userID, code string) (*Coupon, error) {
	c, err := s.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.checkUsable(ctx, c); err != nil {
		return nil, err
	}

	view, err := s.carts.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok, failed := Evaluate(c.Conditions, FactsFromCart(view)); !ok {
		zctx.From(ctx).Info("Coupon condition not met",
			zap.String("code", c.Code),
			zap.String("condition", string(failed.Type)),
			zap.String("value", failed.Value),
		)
		return nil, ErrNotEligible
	}
	return c, nil
}

// Claim consumes one use of the coupon. It must follow a successful Validate.
func (s *Service) Claim(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.Claim(ctx, code)
	if err != nil {
		return nil, apperr.Storage(err, "claim coupon")
	}
	zctx.From(ctx).Info("Coupon claimed",
		zap.String("code", c.Code),
		zap.Int("times_used", c.TimesUsed),
		zap.Bool("active", c.Active),
	)
	return c, nil
}

// IsEligible reports whether the shopper's cart satisfies every condition.
func (s *Service) IsEligible(ctx context.Context, userID, code string) (bool, error) {
	c, err := s.Find(ctx, code)
	if err != nil {
		return false, err
	}
	view, err := s.carts.Reconcile(ctx, userID)
	if err != nil {
		return false, err
	}
	ok, _ := Evaluate(c.Conditions, FactsFromCart(view))
	return ok, nil
}

// ListAvailable returns the active, in-window, non-exhausted coupons the
// shopper's cart is eligible for, highest discount value first.
func (s *Service) ListAvailable(ctx context.Context, userID string) ([]Coupon, error) {
	coupons, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperr.Storage(err, "list coupons")
	}
	view, err := s.carts.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	facts := FactsFromCart(view)
	now := s.now()

	out := make([]Coupon, 0, len(coupons))
	for _, c := range coupons {
		if !c.Active || !c.InWindow(now) || c.Exhausted() {
			continue
		}
		if ok, _ := Evaluate(c.Conditions, facts); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	c := &Coupon{
		Code:         strings.ToUpper(strings.TrimSpace(req.Code)),
		Description:  req.Description,
		DiscountType: req.DiscountType,
		Value:        req.Value,
		MaxValue:     req.MaxValue,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		UsageLimit:   req.UsageLimit,
		Active:       req.Active,
	}
	if err := validateCoupon(c); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperr.Storage(err, "create coupon")
	}
	return c, nil
}

// AddCondition attaches an eligibility condition to a coupon.
func (s *Service) AddCondition(ctx context.Context, code string, cond Condition) (*Condition, error) {
	if !cond.Type.Valid() {
		return nil, apperr.Newf(apperr.ErrValidation, "unknown condition type %q", cond.Type)
	}
	cond.Value = strings.TrimSpace(cond.Value)
	if cond.Value == "" {
		return nil, apperr.New(apperr.ErrValidation, "condition value is required")
	}
	if cond.Type == ConditionMinimumPurchase {
		v, err := decimal.NewFromString(cond.Value)
		if err != nil || v.IsNegative() {
			return nil, apperr.New(apperr.ErrValidation, "minimum purchase must be a non-negative amount")
		}
	}
	created, err := s.repo.AddCondition(ctx, code, cond)
	if err != nil {
		return nil, apperr.Storage(err, "add coupon condition")
	}
	return created, nil
}

// List returns every coupon for administration.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Storage(err, "list coupons")
	}
	return coupons, nil
}

// Remove deletes a coupon and its conditions.
func (s *Service) Remove(ctx context.Context, code string) error {
	if err := s.repo.Delete(ctx, code); err != nil {
		return apperr.Storage(err, "remove coupon")
	}
	return nil
}

// Toggle flips the coupon's active flag.
func (s *Service) Toggle(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.Toggle(ctx, code)
	if err != nil {
		return nil, apperr.Storage(err, "toggle coupon")
	}
	return c, nil
}

// Find returns the coupon for code without checking that it is usable.
// Unknown codes yield ErrInvalidCoupon.
func (s *Service) Find(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.New(apperr.ErrValidation, "coupon code is required")
	}
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCoupon
		}
		return nil, apperr.Storage(err, "lookup coupon")
	}
	return c, nil
}

func (s *Service) checkUsable(ctx context.Context, c *Coupon) error {
	if !c.Active {
		return ErrInactive
	}
	if !c.InWindow(s.now()) {
		return ErrExpired
	}
	if c.Exhausted() {
		if err := s.repo.Deactivate(ctx, c.Code); err != nil {
			return apperr.Storage(err, "deactivate coupon")
		}
		return ErrUsageLimitReached
	}
	return nil
}

func validateCoupon(c *Coupon) error {
	if c.Code == "" {
		return apperr.New(apperr.ErrValidation, "coupon code is required")
	}
	if !c.Value.IsPositive() {
		return apperr.New(apperr.ErrValidation, "discount value must be positive")
	}
	switch c.DiscountType {
	case pricing.DiscountPercentage:
		if c.Value.GreaterThan(hundred) {
			return apperr.New(apperr.ErrValidation, "percentage discount cannot exceed 100")
		}
		if c.MaxValue.Valid && !c.MaxValue.Decimal.IsPositive() {
			return apperr.New(apperr.ErrValidation, "max discount value must be positive")
		}
	case pricing.DiscountFlat:
		if c.MaxValue.Valid {
			return apperr.New(apperr.ErrValidation, "max discount value applies to percentage coupons only")
		}
	default:
		return apperr.Newf(apperr.ErrValidation, "unknown discount type %q", c.DiscountType)
	}
	if c.UsageLimit < 0 {
		return apperr.New(apperr.ErrValidation, "usage limit cannot be negative")
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return apperr.New(apperr.ErrValidation, "end date is before start date")
	}
	return nil
}
