package oracle

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"thinkpay/internal/core"
)

// KeywordRule maps merchant keywords to a category and vault type.
type KeywordRule struct {
	Category string
	Vault    core.VaultType
	Keywords []string
}

// DefaultKeywordRules covers common merchants.
var DefaultKeywordRules = []KeywordRule{
	{Category: "Dining", Vault: core.Food, Keywords: []string{"cafe", "coffee", "restaurant", "swiggy", "zomato", "pizza", "bakery", "grocer", "grocery", "groceries", "bistro"}},
	{Category: "Utilities", Vault: core.Bills, Keywords: []string{"electric", "electricity", "water bill", "gas bill", "broadband", "internet", "recharge", "rent", "insurance"}},
	{Category: "Work", Vault: core.Business, Keywords: []string{"office", "cowork", "coworking", "software", "saas", "hosting", "invoice"}},
	{Category: "Medical", Vault: core.Emergency, Keywords: []string{"hospital", "pharmacy", "clinic", "ambulance", "doctor"}},
	{Category: "Shopping", Vault: core.Lifestyle, Keywords: []string{"mall", "cinema", "movie", "movies", "fashion", "amazon", "flipkart", "spa"}},
}

// Keywords answers from a fixed keyword table and delegates to Next when
// nothing matches. A nil Next yields the fallback values.
type Keywords struct {
	Rules []KeywordRule
	Next  Oracle
}

// NewKeywords builds a rule oracle over DefaultKeywordRules.
func NewKeywords(next Oracle) *Keywords {
	return &Keywords{Rules: DefaultKeywordRules, Next: next}
}

// words splits s into lower-cased runs of letters and digits.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase occurs in text as whole consecutive
// words.
func containsPhrase(text, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(text); i++ {
		if slices.Equal(text[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

func (k *Keywords) Categorize(ctx context.Context, merchant string, amount core.Money) Categorization {
	text := words(merchant)
	for _, r := range k.Rules {
		for _, kw := range r.Keywords {
			if containsPhrase(text, words(kw)) {
				return Categorization{
					Category:       r.Category,
					Confidence:     0.6,
					SuggestedVault: r.Vault,
					Explanation:    "Merchant name mentions \"" + kw + "\".",
				}
			}
		}
	}
	if k.Next == nil {
		return FallbackCategorization()
	}
	return k.Next.Categorize(ctx, merchant, amount)
}

func (k *Keywords) MonthlyInsights(ctx context.Context, recent []core.Transaction, vaults []core.Vault) Insights {
	if k.Next == nil {
		return FallbackInsights()
	}
	return k.Next.MonthlyInsights(ctx, recent, vaults)
}
