package core

// Derived holds the quantities computed from a user and their vaults.
// They are never stored.
type Derived struct {
	ReservedFunds    Money
	SpendableBalance Money
	TotalSpent       Money
	BudgetProgress   float64
}

// ComputeDerived applies:
//
//	reserved  = Σ over locked vaults of max(0, limit-spent)
//	spendable = max(0, balance-reserved)
//	progress  = Σ spent / totalBudget * 100
func ComputeDerived(user User, vaults []Vault) Derived {
	var d Derived
	for _, v := range vaults {
		d.TotalSpent = d.TotalSpent.Add(v.Spent)
		if v.IsLocked {
			d.ReservedFunds = d.ReservedFunds.Add(v.Remaining())
		}
	}
	d.SpendableBalance = MaxMoney(user.CurrentBalance.Sub(d.ReservedFunds), Money{})
	if user.TotalBudget.Cents > 0 {
		d.BudgetProgress = float64(d.TotalSpent.Cents) / float64(user.TotalBudget.Cents) * 100
	}
	return d
}
