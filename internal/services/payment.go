package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
	"thinkpay/internal/oracle"
)

// PaymentStep is the position of a payment flow.
type PaymentStep string

const (
	StepEntry              PaymentStep = "entry"
	StepEmergencyEntry     PaymentStep = "emergency_entry"
	StepCategorySuggestion PaymentStep = "category_suggestion"
	StepAllocation         PaymentStep = "allocation"
	StepGatewaySelection   PaymentStep = "gateway_selection"
	StepCommitted          PaymentStep = "committed"
)

// HighValuePayment is the amount above which the payment notification is
// high priority.
var HighValuePayment = core.Units(10000)

// Warning is a soft rejection raised while building a payment. The flow
// continues.
type Warning struct {
	Err     error
	VaultID string
}

// PaymentFlow is the in-flight payment of a session.
type PaymentFlow struct {
	Step        PaymentStep
	Emergency   bool
	Amount      core.Money
	Merchant    string
	Category    string
	Explanation string
	Suggestion  *oracle.Categorization
	Allocations []core.Allocation
	Gateway     core.Gateway
	Warnings    []Warning
}

func (f *PaymentFlow) clone() PaymentFlow {
	c := *f
	c.Allocations = slices.Clone(f.Allocations)
	c.Warnings = slices.Clone(f.Warnings)
	if f.Suggestion != nil {
		s := *f.Suggestion
		c.Suggestion = &s
	}
	return c
}

// reset returns the flow to its entry step, discarding all input.
func (f *PaymentFlow) reset() {
	*f = PaymentFlow{Step: entryStep(f.Emergency), Emergency: f.Emergency}
}

func entryStep(emergency bool) PaymentStep {
	if emergency {
		return StepEmergencyEntry
	}
	return StepEntry
}

// AllocationStatus summarizes a manual split.
type AllocationStatus struct {
	Allocated core.Money
	Remaining core.Money
	Complete  bool
	Warnings  []Warning
}

func allocationStatus(f *PaymentFlow) AllocationStatus {
	total := core.AllocatedTotal(f.Allocations)
	return AllocationStatus{
		Allocated: total,
		Remaining: f.Amount.Sub(total),
		Complete:  total == f.Amount,
		Warnings:  slices.Clone(f.Warnings),
	}
}

// Orchestrator drives payments from entry to commit.
type Orchestrator struct {
	oracle    oracle.Oracle
	persister *Persister
	notes     *notifier
	now       func() time.Time
}

func NewOrchestrator(o oracle.Oracle, store ledger.NotificationStore, persister *Persister) *Orchestrator {
	if o == nil {
		o = oracle.Static{}
	}
	p := &Orchestrator{oracle: o, persister: persister, now: time.Now}
	p.notes = &notifier{store: store, persister: persister, now: p.clock}
	return p
}

// WithClock replaces the orchestrator clock.
func (p *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	p.now = now
	return p
}

func (p *Orchestrator) clock() time.Time { return p.now() }

// Current returns a copy of the in-flight payment, if any.
func (p *Orchestrator) Current(s *Session) (PaymentFlow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil {
		return PaymentFlow{}, false
	}
	return s.payment.clone(), true
}

// Begin opens a payment flow. Only one flow may be open per session.
func (p *Orchestrator) Begin(s *Session, emergency bool) (PaymentFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := p.begin(s, emergency); err != nil {
		return PaymentFlow{}, err
	}
	return s.payment.clone(), nil
}

func (p *Orchestrator) begin(s *Session, emergency bool) error {
	if s.payment != nil && s.payment.Step != StepCommitted {
		return core.ErrPaymentInProgress
	}
	s.payment = &PaymentFlow{Step: entryStep(emergency), Emergency: emergency}
	return nil
}

func (s *Session) flowAt(steps ...PaymentStep) (*PaymentFlow, error) {
	if s.payment == nil {
		return nil, core.ErrNoPayment
	}
	if !slices.Contains(steps, s.payment.Step) {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidStep, s.payment.Step)
	}
	return s.payment, nil
}

// Enter records amount and merchant. A normal flow asks the oracle for a
// category and proposes a single-vault allocation; an emergency flow
// allocates everything to the Emergency vault and skips to gateway
// selection.
func (p *Orchestrator) Enter(ctx context.Context, s *Session, amount core.Money, merchant string) (PaymentFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := p.enter(ctx, s, amount, merchant); err != nil {
		return PaymentFlow{}, err
	}
	return s.payment.clone(), nil
}

func (p *Orchestrator) enter(ctx context.Context, s *Session, amount core.Money, merchant string) error {
	f, err := s.flowAt(StepEntry, StepEmergencyEntry)
	if err != nil {
		return err
	}
	merchant = strings.TrimSpace(merchant)
	if amount.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	if merchant == "" {
		return core.ErrEmptyMerchant
	}
	if amount.Cents > s.User.CurrentBalance.Cents {
		f.reset()
		return core.ErrInsufficientLiquidity
	}

	f.Amount = amount
	f.Merchant = merchant
	f.Warnings = nil
	if amount.Cents > s.derived().SpendableBalance.Cents {
		f.Warnings = append(f.Warnings, Warning{Err: core.ErrDippingIntoReserves})
	}

	if f.Emergency {
		i := slices.IndexFunc(s.Vaults, func(v core.Vault) bool { return v.Type.IsEmergency() })
		if i < 0 {
			f.reset()
			return core.ErrNoEmergencyVault
		}
		f.Category = core.CategoryEmergency
		f.Allocations = []core.Allocation{{VaultID: s.Vaults[i].ID, Amount: amount}}
		f.Step = StepGatewaySelection
		return nil
	}

	f.Step = StepCategorySuggestion
	cat := p.oracle.Categorize(ctx, merchant, amount)
	f.Suggestion = &cat

	i := suggestVault(s.Vaults, cat.SuggestedVault)
	if i < 0 {
		f.reset()
		return core.ErrNoUnlockedVault
	}
	f.Category = cat.Category
	if f.Category == "" {
		f.Category = core.CategoryGeneral
	}
	f.Explanation = cat.Explanation
	f.Allocations = []core.Allocation{{VaultID: s.Vaults[i].ID, Amount: amount}}
	if err := ValidateAllocation(s.Vaults[i], amount); core.IsWarning(err) {
		f.Warnings = append(f.Warnings, Warning{Err: err, VaultID: s.Vaults[i].ID})
	}
	f.Step = StepAllocation

	slog.InfoContext(ctx, "Payment categorized",
		"user_id", s.UserID,
		"category", f.Category,
		"vault_id", s.Vaults[i].ID,
		"fallback", cat.Fallback)
	return nil
}

// suggestVault picks the first unlocked vault of the suggested type, else
// the first unlocked vault, else -1.
func suggestVault(vaults []core.Vault, suggested core.VaultType) int {
	if i := slices.IndexFunc(vaults, func(v core.Vault) bool {
		return !v.IsLocked && v.Type == suggested
	}); i >= 0 {
		return i
	}
	return slices.IndexFunc(vaults, func(v core.Vault) bool { return !v.IsLocked })
}

// SetAllocations replaces the proposed allocation with a manual split.
// Zero amounts are dropped.
func (p *Orchestrator) SetAllocations(s *Session, allocs []core.Allocation) (AllocationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.flowAt(StepAllocation)
	if err != nil {
		return AllocationStatus{}, err
	}

	seen := make(map[string]struct{}, len(allocs))
	next := make([]core.Allocation, 0, len(allocs))
	var warnings []Warning
	if f.Amount.Cents > s.derived().SpendableBalance.Cents {
		warnings = append(warnings, Warning{Err: core.ErrDippingIntoReserves})
	}
	for _, a := range allocs {
		if a.Amount.Cents < 0 {
			f.reset()
			return AllocationStatus{}, core.ErrInvalidAmount
		}
		if _, dup := seen[a.VaultID]; dup {
			f.reset()
			return AllocationStatus{}, fmt.Errorf("%w: %s", core.ErrDuplicateAllocation, a.VaultID)
		}
		seen[a.VaultID] = struct{}{}

		i, err := ownedVault(s, a.VaultID)
		if err != nil {
			f.reset()
			return AllocationStatus{}, err
		}
		if a.Amount.IsZero() {
			continue
		}
		switch err := ValidateAllocation(s.Vaults[i], a.Amount); {
		case err == nil:
		case core.IsWarning(err):
			warnings = append(warnings, Warning{Err: err, VaultID: a.VaultID})
		default:
			f.reset()
			return AllocationStatus{}, err
		}
		next = append(next, a)
	}

	f.Allocations = next
	f.Warnings = warnings
	return allocationStatus(f), nil
}

// AllocationStatus reports the current split of the in-flight payment.
func (p *Orchestrator) AllocationStatus(s *Session) (AllocationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.flowAt(StepAllocation, StepGatewaySelection)
	if err != nil {
		return AllocationStatus{}, err
	}
	return allocationStatus(f), nil
}

// ConfirmAllocation moves to gateway selection once the split covers the
// amount exactly.
func (p *Orchestrator) ConfirmAllocation(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.confirmAllocation(s)
}

func (p *Orchestrator) confirmAllocation(s *Session) error {
	f, err := s.flowAt(StepAllocation)
	if err != nil {
		return err
	}
	if core.AllocatedTotal(f.Allocations) != f.Amount {
		return core.ErrAllocationIncomplete
	}
	f.Step = StepGatewaySelection
	return nil
}

// SelectGateway records the gateway for the commit.
func (p *Orchestrator) SelectGateway(s *Session, gateway string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.selectGateway(s, gateway)
}

func (p *Orchestrator) selectGateway(s *Session, gateway string) error {
	f, err := s.flowAt(StepGatewaySelection)
	if err != nil {
		return err
	}
	g, err := core.ParseGateway(gateway)
	if err != nil {
		return err
	}
	f.Gateway = g
	return nil
}

// Cancel aborts the in-flight payment without side effects.
func (p *Orchestrator) Cancel(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil {
		return core.ErrNoPayment
	}
	s.payment = nil
	return nil
}

// Commit records the transaction, debits the allocated vaults and the
// balance, and persists the three writes best effort. Request cancellation
// does not interrupt a commit.
func (p *Orchestrator) Commit(ctx context.Context, s *Session) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.commit(context.WithoutCancel(ctx), s)
}

func (p *Orchestrator) commit(ctx context.Context, s *Session) (core.Transaction, error) {
	f, err := s.flowAt(StepGatewaySelection)
	if err != nil {
		return core.Transaction{}, err
	}
	if f.Gateway == "" {
		return core.Transaction{}, fmt.Errorf("%w: no gateway selected", core.ErrUnknownGateway)
	}
	if f.Amount.Cents > s.User.CurrentBalance.Cents {
		f.reset()
		return core.Transaction{}, core.ErrInsufficientLiquidity
	}
	if core.AllocatedTotal(f.Allocations) != f.Amount {
		f.reset()
		return core.Transaction{}, core.ErrAllocationIncomplete
	}

	next := core.CloneVaults(s.Vaults)
	for _, a := range f.Allocations {
		i, err := ownedVault(s, a.VaultID)
		if err != nil {
			f.reset()
			return core.Transaction{}, err
		}
		if !f.Emergency && next[i].IsLocked {
			f.reset()
			return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrVaultLocked, next[i].DisplayName())
		}
		next[i].Spent = next[i].Spent.Add(a.Amount)
	}

	tx := core.Transaction{
		ID:          uuid.NewString(),
		Amount:      f.Amount,
		Merchant:    f.Merchant,
		Category:    f.Category,
		Allocations: slices.Clone(f.Allocations),
		Timestamp:   p.now(),
		Status:      core.StatusCompleted,
		Gateway:     f.Gateway,
		Explanation: f.Explanation,
	}
	balance := s.User.CurrentBalance.Sub(f.Amount)

	s.Vaults = next
	s.User.CurrentBalance = balance
	s.Transactions = append([]core.Transaction{tx}, s.Transactions...)
	f.Step = StepCommitted
	s.payment = nil

	failed := p.persister.PersistAll(ctx, ledger.CommitWrites(s.UserID, tx)...)

	priority := core.PriorityNormal
	if tx.Amount.Cents > HighValuePayment.Cents {
		priority = core.PriorityHigh
	}
	p.notes.notify(ctx, s, core.NotificationDraft{
		Title:    "Payment Authorized",
		Message:  fmt.Sprintf("Successfully transferred %s to %s.", tx.Amount.Display(), tx.Merchant),
		Priority: priority,
	})

	slog.InfoContext(ctx, "Payment committed",
		"user_id", s.UserID,
		"transaction_id", tx.ID,
		"amount_cents", tx.Amount.Cents,
		"gateway", tx.Gateway,
		"emergency", f.Emergency,
		"failed_writes", failed)
	return tx, nil
}

// InstantPay runs a whole payment in one call with the default gateway.
// sos selects the emergency path.
func (p *Orchestrator) InstantPay(ctx context.Context, s *Session, amount core.Money, merchant string, sos bool) (core.Transaction, []Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := p.begin(s, sos); err != nil {
		return core.Transaction{}, nil, err
	}
	tx, warnings, err := p.run(ctx, s, amount, merchant)
	if err != nil {
		s.payment = nil
		return core.Transaction{}, warnings, err
	}
	return tx, warnings, nil
}

func (p *Orchestrator) run(ctx context.Context, s *Session, amount core.Money, merchant string) (core.Transaction, []Warning, error) {
	if err := p.enter(ctx, s, amount, merchant); err != nil {
		return core.Transaction{}, nil, err
	}
	warnings := slices.Clone(s.payment.Warnings)
	if s.payment.Step == StepAllocation {
		if err := p.confirmAllocation(s); err != nil {
			return core.Transaction{}, warnings, err
		}
	}
	if err := p.selectGateway(s, string(core.DefaultGateway)); err != nil {
		return core.Transaction{}, warnings, err
	}
	tx, err := p.commit(context.WithoutCancel(ctx), s)
	return tx, warnings, err
}

// ChargeVault pays amount from one vault without consulting the oracle.
// It fails when another payment is open, the vault is locked or the
// balance cannot cover the amount.
func (p *Orchestrator) ChargeVault(ctx context.Context, s *Session, vaultID string, amount core.Money, merchant, category string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := p.begin(s, false); err != nil {
		return core.Transaction{}, err
	}
	tx, err := p.charge(ctx, s, vaultID, amount, merchant, category)
	if err != nil {
		s.payment = nil
		return core.Transaction{}, err
	}
	return tx, nil
}

func (p *Orchestrator) charge(ctx context.Context, s *Session, vaultID string, amount core.Money, merchant, category string) (core.Transaction, error) {
	if amount.Cents <= 0 {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	if amount.Cents > s.User.CurrentBalance.Cents {
		return core.Transaction{}, core.ErrInsufficientLiquidity
	}
	i, err := ownedVault(s, vaultID)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := ValidateAllocation(s.Vaults[i], amount); err != nil && !core.IsWarning(err) {
		return core.Transaction{}, err
	}

	f := s.payment
	f.Amount = amount
	f.Merchant = merchant
	f.Category = category
	f.Allocations = []core.Allocation{{VaultID: vaultID, Amount: amount}}
	f.Step = StepGatewaySelection
	f.Gateway = core.DefaultGateway
	return p.commit(context.WithoutCancel(ctx), s)
}

// IsPaymentRejection reports whether err is a business rejection of a
// payment rather than a store or setup failure.
func IsPaymentRejection(err error) bool {
	for _, target := range []error{
		core.ErrInsufficientLiquidity, core.ErrVaultLocked, core.ErrNoUnlockedVault,
		core.ErrNoEmergencyVault, core.ErrPaymentInProgress, core.ErrForbidden,
		core.ErrVaultNotFound, core.ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
