package coupon

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Facts is what eligibility conditions are evaluated against: the available
// part of a shopper's cart.
type Facts struct {
	GrandTotal decimal.Decimal
	Categories map[string]struct{}
	Tags       map[string]struct{}
}

// FactsFromCart collects facts from the available lines of a reconciled cart.
// Sold-out lines never count.
func FactsFromCart(v *cart.View) Facts {
	f := Facts{
		GrandTotal: v.GrandTotal,
		Categories: make(map[string]struct{}),
		Tags:       make(map[string]struct{}),
	}
	for _, l := range v.Items {
		if l.Category != "" {
			f.Categories[strings.ToLower(l.Category)] = struct{}{}
		}
		for _, tag := range l.Tags {
			f.Tags[strings.ToLower(tag)] = struct{}{}
		}
	}
	return f
}

// Evaluate checks conditions in order and stops at the first failure, which
// it returns. A coupon without conditions is eligible.
func Evaluate(conds []Condition, f Facts) (bool, *Condition) {
	for i := range conds {
		if !holds(conds[i], f) {
			return false, &conds[i]
		}
	}
	return true, nil
}

func holds(c Condition, f Facts) bool {
	switch c.Type {
	case ConditionMinimumPurchase:
		minimum, err := decimal.NewFromString(strings.TrimSpace(c.Value))
		if err != nil {
			return false
		}
		return f.GrandTotal.GreaterThanOrEqual(minimum)
	case ConditionProductCategory:
		_, ok := f.Categories[strings.ToLower(strings.TrimSpace(c.Value))]
		return ok
	case ConditionTag:
		_, ok := f.Tags[strings.ToLower(strings.TrimSpace(c.Value))]
		return ok
	default:
		return false
	}
}
