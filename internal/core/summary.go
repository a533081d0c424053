package core

import (
	"sort"
	"time"
)

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthSummary is a compact summary of one calendar month of transactions.
type MonthSummary struct {
	Year       int
	Month      int // 1-12
	Count      int
	Total      Money
	ByCategory []CategoryAmount
}

// SummarizeMonth totals the completed transactions that fall in year/month
// (UTC). Categories are sorted by amount, largest first.
func SummarizeMonth(txs []Transaction, year, month int) MonthSummary {
	s := MonthSummary{Year: year, Month: month}
	byCat := map[string]Money{}
	for _, tx := range InMonth(txs, year, month) {
		if tx.Status != StatusCompleted {
			continue
		}
		s.Count++
		s.Total = s.Total.Add(tx.Amount)
		byCat[tx.Category] = byCat[tx.Category].Add(tx.Amount)
	}
	for name, amt := range byCat {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if s.ByCategory[i].Amount.Cents == s.ByCategory[j].Amount.Cents {
			return s.ByCategory[i].Name < s.ByCategory[j].Name
		}
		return s.ByCategory[i].Amount.Cents > s.ByCategory[j].Amount.Cents
	})
	return s
}

// InMonth filters txs to the given year/month (UTC), preserving order.
func InMonth(txs []Transaction, year, month int) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		ts := tx.Timestamp.UTC()
		if ts.Year() == year && ts.Month() == time.Month(month) {
			out = append(out, tx)
		}
	}
	return out
}
