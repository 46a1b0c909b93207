package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
)

func testView() *cart.View {
	return &cart.View{
		Items: []cart.Line{
			{Category: "Shirts", Tags: []string{"summer", "Linen"}},
			{Category: "denim"},
		},
		SoldOut: []cart.Line{
			{Category: "shoes", Tags: []string{"clearance"}},
		},
		GrandTotal: decimal.NewFromInt(1500),
	}
}

func TestEvaluate(t *testing.T) {
	facts := FactsFromCart(testView())

	tests := []struct {
		name       string
		conds      []Condition
		want       bool
		wantFailed ConditionType
	}{
		{name: "no conditions", want: true},
		{
			name:  "minimum purchase met exactly",
			conds: []Condition{{Type: ConditionMinimumPurchase, Value: "1500"}},
			want:  true,
		},
		{
			name:       "minimum purchase not met",
			conds:      []Condition{{Type: ConditionMinimumPurchase, Value: "1500.01"}},
			wantFailed: ConditionMinimumPurchase,
		},
		{
			name:       "minimum purchase malformed",
			conds:      []Condition{{Type: ConditionMinimumPurchase, Value: "lots"}},
			wantFailed: ConditionMinimumPurchase,
		},
		{
			name:  "category case-insensitive",
			conds: []Condition{{Type: ConditionProductCategory, Value: "shirts"}},
			want:  true,
		},
		{
			name:       "category only on sold-out line",
			conds:      []Condition{{Type: ConditionProductCategory, Value: "shoes"}},
			wantFailed: ConditionProductCategory,
		},
		{
			name:  "tag present",
			conds: []Condition{{Type: ConditionTag, Value: "linen"}},
			want:  true,
		},
		{
			name:       "tag only on sold-out line",
			conds:      []Condition{{Type: ConditionTag, Value: "clearance"}},
			wantFailed: ConditionTag,
		},
		{
			name: "all must hold, first failure reported",
			conds: []Condition{
				{Type: ConditionMinimumPurchase, Value: "100"},
				{Type: ConditionTag, Value: "winter"},
				{Type: ConditionProductCategory, Value: "hats"},
			},
			wantFailed: ConditionTag,
		},
		{
			name:       "unknown type fails",
			conds:      []Condition{{Type: "LOYALTY", Value: "gold"}},
			wantFailed: "LOYALTY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, failed := Evaluate(tt.conds, facts)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Nil(t, failed)
				return
			}
			require.NotNil(t, failed)
			assert.Equal(t, tt.wantFailed, failed.Type)
		})
	}
}
