package http

import (
	"time"

	"thinkpay/internal/auth"
	"thinkpay/internal/core"
	"thinkpay/internal/oracle"
	"thinkpay/internal/services"
)

// JSON shapes of the API. Domain types stay free of wire tags.

type moneyView struct {
	Cents   int64  `json:"cents"`
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

func newMoneyView(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Amount: m.String(), Display: m.Display()}
}

type identityView struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
}

func newIdentityView(id auth.Identity) identityView {
	return identityView{UserID: id.UserID, Username: id.Username, Email: id.Email}
}

type userView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	TotalBudget    moneyView `json:"total_budget"`
	CurrentBalance moneyView `json:"current_balance"`
}

func newUserView(u core.User) userView {
	return userView{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		CreatedAt:      u.CreatedAt,
		TotalBudget:    newMoneyView(u.TotalBudget),
		CurrentBalance: newMoneyView(u.CurrentBalance),
	}
}

type vaultView struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Name             string    `json:"name"`
	Icon             string    `json:"icon"`
	Limit            moneyView `json:"limit"`
	Spent            moneyView `json:"spent"`
	Remaining        moneyView `json:"remaining"`
	Utilization      float64   `json:"utilization"`
	UtilizationLevel string    `json:"utilization_level"`
	IsLocked         bool      `json:"is_locked"`
	HasPIN           bool      `json:"has_pin"`
	BiometricEnabled bool      `json:"biometric_enabled"`
	UnlockState      string    `json:"unlock_state,omitempty"`
}

// newVaultView never exposes the PIN itself.
func newVaultView(v core.Vault) vaultView {
	return vaultView{
		ID:               v.ID,
		Type:             string(v.Type),
		Name:             v.DisplayName(),
		Icon:             v.DisplayIcon(),
		Limit:            newMoneyView(v.Limit),
		Spent:            newMoneyView(v.Spent),
		Remaining:        newMoneyView(v.Remaining()),
		Utilization:      v.Utilization(),
		UtilizationLevel: v.UtilizationLevel(),
		IsLocked:         v.IsLocked,
		HasPIN:           v.HasPIN(),
		BiometricEnabled: v.BiometricEnabled,
	}
}

func vaultViews(vaults []core.Vault, s *services.Session) []vaultView {
	out := make([]vaultView, 0, len(vaults))
	for _, v := range vaults {
		view := newVaultView(v)
		if s != nil {
			view.UnlockState = string(s.UnlockStatus(v.ID))
		}
		out = append(out, view)
	}
	return out
}

type derivedView struct {
	ReservedFunds    moneyView `json:"reserved_funds"`
	SpendableBalance moneyView `json:"spendable_balance"`
	TotalSpent       moneyView `json:"total_spent"`
	BudgetProgress   float64   `json:"budget_progress"`
}

func newDerivedView(d core.Derived) derivedView {
	return derivedView{
		ReservedFunds:    newMoneyView(d.ReservedFunds),
		SpendableBalance: newMoneyView(d.SpendableBalance),
		TotalSpent:       newMoneyView(d.TotalSpent),
		BudgetProgress:   d.BudgetProgress,
	}
}

type allocationView struct {
	VaultID string    `json:"vault_id"`
	Amount  moneyView `json:"amount"`
}

func allocationViews(allocs []core.Allocation) []allocationView {
	out := make([]allocationView, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, allocationView{VaultID: a.VaultID, Amount: newMoneyView(a.Amount)})
	}
	return out
}

type transactionView struct {
	ID          string           `json:"id"`
	Amount      moneyView        `json:"amount"`
	Merchant    string           `json:"merchant"`
	Category    string           `json:"category"`
	Allocations []allocationView `json:"allocations"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      string           `json:"status"`
	Gateway     string           `json:"gateway"`
	Explanation string           `json:"explanation,omitempty"`
}

func newTransactionView(tx core.Transaction) transactionView {
	return transactionView{
		ID:          tx.ID,
		Amount:      newMoneyView(tx.Amount),
		Merchant:    tx.Merchant,
		Category:    tx.Category,
		Allocations: allocationViews(tx.Allocations),
		Timestamp:   tx.Timestamp,
		Status:      string(tx.Status),
		Gateway:     string(tx.Gateway),
		Explanation: tx.Explanation,
	}
}

func transactionViews(txs []core.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionView(tx))
	}
	return out
}

type notificationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

func notificationViews(notes []core.Notification) []notificationView {
	out := make([]notificationView, 0, len(notes))
	for _, n := range notes {
		out = append(out, notificationView{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Priority:  string(n.Priority),
			Timestamp: n.Timestamp,
			Read:      n.Read,
		})
	}
	return out
}

type warningView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	VaultID string `json:"vault_id,omitempty"`
}

func warningViews(warnings []services.Warning) []warningView {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]warningView, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, warningView{Code: errorCode(w.Err), Message: w.Err.Error(), VaultID: w.VaultID})
	}
	return out
}

type suggestionView struct {
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
	SuggestedVault string  `json:"suggested_vault"`
	Explanation    string  `json:"explanation"`
	Fallback       bool    `json:"fallback"`
}

type paymentView struct {
	Step        string           `json:"step"`
	Emergency   bool             `json:"emergency"`
	Amount      *moneyView       `json:"amount,omitempty"`
	Merchant    string           `json:"merchant,omitempty"`
	Category    string           `json:"category,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Suggestion  *suggestionView  `json:"suggestion,omitempty"`
	Allocations []allocationView `json:"allocations"`
	Gateway     string           `json:"gateway,omitempty"`
	Gateways    []string         `json:"gateways"`
	Warnings    []warningView    `json:"warnings,omitempty"`
}

func newPaymentView(f services.PaymentFlow) paymentView {
	view := paymentView{
		Step:        string(f.Step),
		Emergency:   f.Emergency,
		Merchant:    f.Merchant,
		Category:    f.Category,
		Explanation: f.Explanation,
		Allocations: allocationViews(f.Allocations),
		Gateway:     string(f.Gateway),
		Warnings:    warningViews(f.Warnings),
	}
	if !f.Amount.IsZero() {
		amount := newMoneyView(f.Amount)
		view.Amount = &amount
	}
	if f.Suggestion != nil {
		view.Suggestion = newSuggestionView(*f.Suggestion)
	}
	for _, g := range core.Gateways() {
		view.Gateways = append(view.Gateways, string(g))
	}
	return view
}

func newSuggestionView(c oracle.Categorization) *suggestionView {
	return &suggestionView{
		Category:       c.Category,
		Confidence:     c.Confidence,
		SuggestedVault: string(c.SuggestedVault),
		Explanation:    c.Explanation,
		Fallback:       c.Fallback,
	}
}

type allocationStatusView struct {
	Allocated moneyView     `json:"allocated"`
	Remaining moneyView     `json:"remaining"`
	Complete  bool          `json:"complete"`
	Warnings  []warningView `json:"warnings,omitempty"`
}

func newAllocationStatusView(st services.AllocationStatus) allocationStatusView {
	return allocationStatusView{
		Allocated: newMoneyView(st.Allocated),
		Remaining: newMoneyView(st.Remaining),
		Complete:  st.Complete,
		Warnings:  warningViews(st.Warnings),
	}
}

type revenueView struct {
	ID        string    `json:"id"`
	Amount    moneyView `json:"amount"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func newRevenueView(r core.Revenue) revenueView {
	return revenueView{ID: r.ID, Amount: newMoneyView(r.Amount), Source: r.Source, Timestamp: r.Timestamp}
}

type autopayView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Amount    moneyView  `json:"amount"`
	DueDate   string     `json:"due_date"`
	VaultID   string     `json:"vault_id"`
	Status    string     `json:"status"`
	Frequency string     `json:"frequency"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

func newAutopayView(a core.Autopay) autopayView {
	view := autopayView{
		ID:        a.ID,
		Name:      a.Name,
		Amount:    newMoneyView(a.Amount),
		DueDate:   a.DueDate.String(),
		VaultID:   a.VaultID,
		Status:    string(a.Status),
		Frequency: string(a.Frequency),
	}
	if !a.LastRun.IsZero() {
		last := a.LastRun
		view.LastRun = &last
	}
	return view
}

type insightsView struct {
	Tips             []string `json:"tips"`
	Summary          string   `json:"summary"`
	SavingsPotential string   `json:"savings_potential"`
	Fallback         bool     `json:"fallback"`
}

type sessionView struct {
	User          userView           `json:"user"`
	Vaults        []vaultView        `json:"vaults"`
	Derived       derivedView        `json:"derived"`
	Transactions  []transactionView  `json:"transactions"`
	Notifications []notificationView `json:"notifications"`
	Unread        int                `json:"unread"`
	Payment       *paymentView       `json:"payment,omitempty"`
}

func newSessionView(snap services.Snapshot, s *services.Session) sessionView {
	view := sessionView{
		User:          newUserView(snap.User),
		Vaults:        vaultViews(snap.Vaults, s),
		Derived:       newDerivedView(snap.Derived),
		Transactions:  transactionViews(snap.Transactions),
		Notifications: notificationViews(snap.Notifications),
	}
	for _, n := range snap.Notifications {
		if !n.Read {
			view.Unread++
		}
	}
	if snap.Payment != nil {
		p := newPaymentView(*snap.Payment)
		view.Payment = &p
	}
	return view
}
