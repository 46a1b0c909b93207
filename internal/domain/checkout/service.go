package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// CartReader returns a shopper's reconciled cart.
type CartReader interface {
	Reconcile(ctx context.Context, userID string) (*cart.View, error)
}

// Coupons validates and claims coupons.
type Coupons interface {
	Find(ctx context.Context, code string) (*coupon.Coupon, error)
	Validate(ctx context.Context, userID, code string) (*coupon.Coupon, error)
	Claim(ctx context.Context, code string) (*coupon.Coupon, error)
}

// Service builds and maintains checkout snapshots.
type Service struct {
	repo    Repository
	carts   CartReader
	coupons Coupons
	pricing *pricing.Engine
}

// NewService creates a checkout Service.
func NewService(repo Repository, carts CartReader, coupons Coupons, engine *pricing.Engine) *Service {
	return &Service{
		repo:    repo,
		carts:   carts,
		coupons: coupons,
		pricing: engine,
	}
}

// Get returns the user's current checkout.
func (s *Service) Get(ctx context.Context, userID string) (*Checkout, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "load checkout")
	}
	return c, nil
}

// Snapshot prices the available cart without a coupon and replaces the
// user's checkout with the result.
func (s *Service) Snapshot(ctx context.Context, userID string, giftWrap bool) (*Checkout, error) {
	c, err := s.build(ctx, userID, nil, giftWrap)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyCoupon validates the coupon against the current cart, consumes one
// use of it and re-prices the checkout with it. Every call that reaches the
// claim consumes a use, including re-applying the same code and a call whose
// save then fails.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*Checkout, error) {
	giftWrap, err := s.currentGiftWrap(ctx, userID)
	if err != nil {
		return nil, err
	}
	cp, err := s.coupons.Validate(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	c, err := s.build(ctx, userID, cp, giftWrap)
	if err != nil {
		return nil, err
	}
	// Claim runs before save so a saved coupon is always a consumed one. A
	// save failing after the claim loses that use; it is not refunded.
	if _, err := s.coupons.Claim(ctx, cp.Code); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon applied to checkout",
		zap.String("user_id", userID),
		zap.String("code", cp.Code),
		zap.String("discount", c.CouponDiscount.StringFixed(2)),
	)
	return c, nil
}

// RemoveCoupon re-prices the existing checkout without its coupon. The used
// coupon allowance is not returned.
func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*Checkout, error) {
	existing, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "load checkout")
	}
	c, err := s.build(ctx, userID, nil, existing.GiftWrap)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Finalize re-prices the checkout from the live cart right before payment.
// An empty code keeps the coupon already applied. The applied coupon is
// reused without consuming another use, but its conditions must still hold
// for the live cart; a different code is validated and claimed. giftWrap nil
// keeps the current choice.
func (s *Service) Finalize(ctx context.Context, userID, code string, giftWrap *bool) (*Checkout, error) {
	existing, err := s.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, apperr.Storage(err, "load checkout")
	}

	wrap := false
	applied := ""
	if existing != nil {
		wrap = existing.GiftWrap
		applied = existing.CouponCode
	}
	if giftWrap != nil {
		wrap = *giftWrap
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = applied
	}

	var (
		cp    *coupon.Coupon
		claim bool
	)
	switch {
	case code == "":
	case strings.EqualFold(code, applied):
		if cp, err = s.coupons.Find(ctx, code); err != nil {
			return nil, err
		}
	default:
		if cp, err = s.coupons.Validate(ctx, userID, code); err != nil {
			return nil, err
		}
		claim = true
	}

	view, err := s.items(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cp != nil && !claim {
		if ok, failed := coupon.Evaluate(cp.Conditions, coupon.FactsFromCart(view)); !ok {
			zctx.From(ctx).Info("Applied coupon no longer eligible",
				zap.String("user_id", userID),
				zap.String("code", cp.Code),
				zap.String("condition", string(failed.Type)),
			)
			return nil, coupon.ErrNotEligible
		}
	}

	c, err := s.price(userID, view, cp, wrap)
	if err != nil {
		return nil, err
	}
	if claim {
		if _, err := s.coupons.Claim(ctx, cp.Code); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Checkout finalized",
		zap.String("user_id", userID),
		zap.Int64("checkout_id", c.ID),
		zap.String("total", c.TotalPaymentAmount.StringFixed(2)),
	)
	return c, nil
}

func (s *Service) currentGiftWrap(ctx context.Context, userID string) (bool, error) {
	existing, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, apperr.Storage(err, "load checkout")
	}
	return existing.GiftWrap, nil
}

func (s *Service) save(ctx context.Context, c *Checkout) error {
	if err := s.repo.Save(ctx, c); err != nil {
		return apperr.Storage(err, "save checkout")
	}
	return nil
}

// build prices the available part of the cart.
func (s *Service) build(ctx context.Context, userID string, cp *coupon.Coupon, giftWrap bool) (*Checkout, error) {
	view, err := s.items(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.price(userID, view, cp, giftWrap)
}

// items returns the reconciled cart, refusing one with nothing available.
func (s *Service) items(ctx context.Context, userID string) (*cart.View, error) {
	view, err := s.carts.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, ErrNoCheckoutItems
	}
	return view, nil
}

// price turns the available lines into a checkout. Lines that share a
// product and size across variants collapse into one detail before pricing,
// so gift wrap is charged once per detail.
func (s *Service) price(userID string, view *cart.View, cp *coupon.Coupon, giftWrap bool) (*Checkout, error) {
	items := mergeVariants(view.Items)

	var pc *pricing.Coupon
	if cp != nil {
		pc = cp.Pricing()
	}
	q, err := s.pricing.Quote(cart.PricingLines(items), pc, giftWrap)
	if err != nil {
		return nil, errors.Wrap(err, "price checkout")
	}

	c := &Checkout{
		UserID:               userID,
		GiftWrap:             giftWrap,
		WrappingCost:         q.WrappingCost,
		TotalBeforeCoupon:    q.TotalBeforeCoupon(),
		TotalProductDiscount: q.TotalProductDiscount,
		CouponCode:           q.CouponCode,
		CouponDiscount:       q.CouponDiscount,
		TotalPaymentAmount:   q.GrandTotal,
		Details:              make([]Detail, 0, len(q.Lines)),
	}
	for i, pl := range q.Lines {
		item := items[i]
		c.Details = append(c.Details, Detail{
			ProductID:       pl.ProductID,
			Size:            pl.Size,
			Quantity:        pl.Quantity,
			Name:            item.Name,
			Title:           item.Title,
			Image:           item.Image,
			MRP:             pl.MRP,
			ProductDiscount: pl.ProductDiscountTotal,
			CouponDiscount:  pl.CouponDiscount,
			FinalPrice:      pl.FinalPrice,
		})
	}
	return c, nil
}

// mergeVariants sums the quantities of lines with the same product and size.
// The first line of each group supplies the rest of the fields.
func mergeVariants(lines []cart.Line) []cart.Line {
	out := make([]cart.Line, 0, len(lines))
	index := make(map[[2]string]int, len(lines))
	for _, l := range lines {
		key := [2]string{l.ProductID, strings.ToUpper(l.Size)}
		if j, ok := index[key]; ok {
			out[j].Quantity += l.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, l)
	}
	return out
}
