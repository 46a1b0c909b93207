// Package pricing computes product discounts, coupon discounts, wrapping cost
// and grand totals for a set of cart lines. It performs no I/O.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFlat takes a fixed amount off the subtotal once per checkout.
	DiscountFlat DiscountType = "FLAT"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// ErrInvalidLine is returned for lines with a non-positive quantity or a
// negative MRP or discount percentage.
var ErrInvalidLine = errors.New("invalid pricing line")

// Config holds pricing parameters that are configuration, not constants.
type Config struct {
	// WrappingCostPerItem is charged once per line when gift wrap is requested.
	WrappingCostPerItem decimal.Decimal
}

// Line is a single cart line to price.
type Line struct {
	ProductID       string
	Size            string
	MRP             decimal.Decimal
	DiscountPercent decimal.Decimal
	Quantity        int
}

// Coupon describes the discount part of a coupon.
type Coupon struct {
	Code     string
	Type     DiscountType
	Value    decimal.Decimal
	MaxValue decimal.NullDecimal
}

// PricedLine is a Line with every computed amount.
type PricedLine struct {
	Line
	// ProductDiscount is the per-unit discount from the product's own offer.
	ProductDiscount decimal.Decimal
	// ProductDiscountTotal is ProductDiscount * Quantity.
	ProductDiscountTotal decimal.Decimal
	// LinePrice is (MRP - ProductDiscount) * Quantity.
	LinePrice decimal.Decimal
	// CouponDiscount is this line's share of the checkout coupon discount.
	CouponDiscount decimal.Decimal
	// FinalPrice is LinePrice - CouponDiscount.
	FinalPrice decimal.Decimal
}

// Quote is the priced result of a set of lines.
type Quote struct {
	Lines                []PricedLine
	Subtotal             decimal.Decimal
	TotalProductDiscount decimal.Decimal
	CouponCode           string
	CouponDiscount       decimal.Decimal
	WrappingCost         decimal.Decimal
	GrandTotal           decimal.Decimal
}

// TotalBeforeCoupon is the amount payable without the coupon.
func (q Quote) TotalBeforeCoupon() decimal.Decimal {
	return q.Subtotal.Add(q.WrappingCost)
}

// Engine prices cart lines.
type Engine struct {
	cfg Config
}

// NewEngine returns an Engine using cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Quote prices lines with an optional coupon. The coupon discount is computed
// once on the aggregate subtotal and then spread across lines in proportion
// to their price.
func (e *Engine) Quote(lines []Line, coupon *Coupon, giftWrap bool) (Quote, error) {
	q := Quote{
		Lines:                make([]PricedLine, 0, len(lines)),
		Subtotal:             zero,
		TotalProductDiscount: zero,
		CouponDiscount:       zero,
		WrappingCost:         zero,
	}

	for _, l := range lines {
		pl, err := PriceLine(l)
		if err != nil {
			return Quote{}, err
		}
		q.Lines = append(q.Lines, pl)
		q.Subtotal = q.Subtotal.Add(pl.LinePrice)
		q.TotalProductDiscount = q.TotalProductDiscount.Add(pl.ProductDiscountTotal)
	}

	if coupon != nil {
		discount, err := CouponDiscount(*coupon, q.Subtotal)
		if err != nil {
			return Quote{}, err
		}
		q.CouponCode = coupon.Code
		q.CouponDiscount = discount
		allocate(q.Lines, q.Subtotal, discount)
	}

	if giftWrap {
		q.WrappingCost = e.cfg.WrappingCostPerItem.Mul(decimal.NewFromInt(int64(len(q.Lines)))).Round(2)
	}

	total := zero
	for _, pl := range q.Lines {
		total = total.Add(pl.FinalPrice)
	}
	q.GrandTotal = floorAtZero(total.Add(q.WrappingCost)).Round(2)
	q.Subtotal = q.Subtotal.Round(2)
	q.TotalProductDiscount = q.TotalProductDiscount.Round(2)

	return q, nil
}

// PriceLine computes the product-level amounts of a single line.
func PriceLine(l Line) (PricedLine, error) {
	if l.Quantity <= 0 || l.MRP.IsNegative() || l.DiscountPercent.IsNegative() {
		return PricedLine{}, errors.Wrapf(ErrInvalidLine, "product %s size %s", l.ProductID, l.Size)
	}
	qty := decimal.NewFromInt(int64(l.Quantity))

	unitDiscount := decimal.Min(l.MRP.Mul(l.DiscountPercent).Div(hundred).Round(2), l.MRP)
	linePrice := floorAtZero(l.MRP.Sub(unitDiscount).Mul(qty)).Round(2)

	return PricedLine{
		Line:                 l,
		ProductDiscount:      unitDiscount,
		ProductDiscountTotal: unitDiscount.Mul(qty).Round(2),
		LinePrice:            linePrice,
		CouponDiscount:       zero,
		FinalPrice:           linePrice,
	}, nil
}

// CouponDiscount returns the discount c grants on subtotal. The result never
// exceeds subtotal.
func CouponDiscount(c Coupon, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxValue.Valid && amount.GreaterThan(c.MaxValue.Decimal) {
			amount = c.MaxValue.Decimal
		}
	case DiscountFlat:
		amount = c.Value
	default:
		return zero, errors.Errorf("unsupported discount type: %q", c.Type)
	}
	amount = decimal.Min(floorAtZero(amount), floorAtZero(subtotal))
	return amount.Round(2), nil
}

// allocate spreads discount over lines proportionally to LinePrice. The last
// non-zero line absorbs the rounding remainder so shares add up exactly.
func allocate(lines []PricedLine, subtotal, discount decimal.Decimal) {
	if discount.IsZero() || !subtotal.IsPositive() {
		return
	}
	last := -1
	for i := range lines {
		if lines[i].LinePrice.IsPositive() {
			last = i
		}
	}
	remaining := discount
	for i := range lines {
		if !lines[i].LinePrice.IsPositive() {
			continue
		}
		share := remaining
		if i != last {
			share = discount.Mul(lines[i].LinePrice).Div(subtotal).Round(2)
			share = decimal.Min(share, remaining, lines[i].LinePrice)
		}
		remaining = remaining.Sub(share)
		lines[i].CouponDiscount = share
		lines[i].FinalPrice = floorAtZero(lines[i].LinePrice.Sub(share)).Round(2)
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
