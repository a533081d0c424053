// Package oracle defines the categorization oracle: given a merchant
// description and an amount it suggests a spending category and a target
// vault type. Implementations never fail; they degrade to the fallback
// values below.
package oracle

import (
	"context"

	"thinkpay/internal/core"
)

// MaxInsightTransactions bounds the history sent for monthly insights.
const MaxInsightTransactions = 15

// Categorization is the oracle's answer for one purchase.
type Categorization struct {
	Category       string
	Confidence     float64
	SuggestedVault core.VaultType
	Explanation    string
	// Fallback is set when the answer is the deterministic default.
	Fallback bool
}

// Insights summarizes recent spending.
type Insights struct {
	Tips             []string
	Summary          string
	SavingsPotential string
	Fallback         bool
}

// Oracle is the port consumed by the payment flow and the insights service.
type Oracle interface {
	Categorize(ctx context.Context, merchant string, amount core.Money) Categorization
	MonthlyInsights(ctx context.Context, recent []core.Transaction, vaults []core.Vault) Insights
}

// FallbackCategorization is returned when no usable answer is available.
func FallbackCategorization() Categorization {
	return Categorization{
		Category:       core.CategoryUncategorized,
		Confidence:     0,
		SuggestedVault: core.Lifestyle,
		Explanation:    "Unable to process AI categorization at this time.",
		Fallback:       true,
	}
}

// FallbackInsights is returned when no usable answer is available.
func FallbackInsights() Insights {
	return Insights{
		Tips: []string{
			"Monitor your daily coffee spend.",
			"Try setting lower lifestyle limits.",
		},
		Summary:          "Keep tracking for better insights.",
		SavingsPotential: core.CurrencySymbol + "0",
		Fallback:         true,
	}
}

// Static always answers with the fallback values.
type Static struct{}

func (Static) Categorize(context.Context, string, core.Money) Categorization {
	return FallbackCategorization()
}

func (Static) MonthlyInsights(context.Context, []core.Transaction, []core.Vault) Insights {
	return FallbackInsights()
}

// RecentForInsights trims txs to the newest MaxInsightTransactions.
func RecentForInsights(txs []core.Transaction) []core.Transaction {
	if len(txs) > MaxInsightTransactions {
		return txs[:MaxInsightTransactions]
	}
	return txs
}
