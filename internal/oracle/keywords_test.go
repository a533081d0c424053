package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"thinkpay/internal/core"
)

type stubOracle struct {
	calls int
}

func (s *stubOracle) Categorize(context.Context, string, core.Money) Categorization {
	s.calls++
	return Categorization{Category: "Travel", Confidence: 0.8, SuggestedVault: core.Lifestyle}
}

func (s *stubOracle) MonthlyInsights(context.Context, []core.Transaction, []core.Vault) Insights {
	s.calls++
	return Insights{Tips: []string{"stub"}, Summary: "s", SavingsPotential: "₹1"}
}

func TestKeywords_Categorize(t *testing.T) {
	next := &stubOracle{}
	k := NewKeywords(next)
	ctx := context.Background()

	got := k.Categorize(ctx, "Blue Tokai Coffee", core.Units(300))
	assert.Equal(t, "Dining", got.Category)
	assert.Equal(t, core.Food, got.SuggestedVault)
	assert.Equal(t, 0, next.calls)

	got = k.Categorize(ctx, "IndiGo flight", core.Units(5000))
	assert.Equal(t, "Travel", got.Category)
	assert.Equal(t, 1, next.calls)
}

func TestKeywords_MatchesWholeWords(t *testing.T) {
	k := NewKeywords(nil)
	ctx := context.Background()

	tests := []struct {
		merchant string
		want     core.VaultType
		matched  bool
	}{
		{"Monthly Rent", core.Bills, true},
		{"city-water bill #12", core.Bills, true},
		{"Sunrise Spa & Salon", core.Lifestyle, true},
		{"PVR Cinema", core.Lifestyle, true},
		{"Current Affairs", "", false},
		{"Space Mart", "", false},
		{"Parent Teacher Fund", "", false},
		{"Water Billing Dept", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			got := k.Categorize(ctx, tt.merchant, core.Units(100))
			if tt.matched {
				assert.False(t, got.Fallback)
				assert.Equal(t, tt.want, got.SuggestedVault)
			} else {
				assert.Equal(t, FallbackCategorization(), got)
			}
		})
	}
}

func TestKeywords_UnmatchedMerchantReachesModel(t *testing.T) {
	next := &stubOracle{}
	got := NewKeywords(next).Categorize(context.Background(), "Current Affairs", core.Units(100))
	assert.Equal(t, "Travel", got.Category)
	assert.Equal(t, 1, next.calls)
}

func TestKeywords_NoNextFallsBack(t *testing.T) {
	k := NewKeywords(nil)
	ctx := context.Background()
	assert.Equal(t, FallbackCategorization(), k.Categorize(ctx, "Unknown Merchant", core.Units(1)))
	assert.Equal(t, FallbackInsights(), k.MonthlyInsights(ctx, nil, nil))
}

func TestStatic(t *testing.T) {
	var o Oracle = Static{}
	c := o.Categorize(context.Background(), "x", core.Units(1))
	assert.True(t, c.Fallback)
	assert.Equal(t, core.Lifestyle, c.SuggestedVault)
	assert.Equal(t, core.CategoryUncategorized, c.Category)
}

func TestRecentForInsights(t *testing.T) {
	txs := make([]core.Transaction, 20)
	assert.Len(t, RecentForInsights(txs), MaxInsightTransactions)
	assert.Len(t, RecentForInsights(txs[:3]), 3)
}
