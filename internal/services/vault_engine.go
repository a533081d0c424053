package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// VaultStore is the part of the ledger the vault engine writes to.
type VaultStore interface {
	ledger.VaultStore
	ledger.NotificationStore
}

// VaultEngine applies lock, unlock and limit changes to a session's vaults.
type VaultEngine struct {
	store  VaultStore
	notes  *notifier
	policy PINPolicy
	now    func() time.Time
}

// ToggleResult tells the caller what a toggle did. AwaitingPIN means the
// vault stays locked until SubmitPIN succeeds.
type ToggleResult struct {
	Vault       core.Vault
	AwaitingPIN bool
}

func NewVaultEngine(store VaultStore, persister *Persister, policy PINPolicy) *VaultEngine {
	e := &VaultEngine{store: store, policy: policy, now: time.Now}
	e.notes = &notifier{store: store, persister: persister, now: e.clock}
	return e
}

// WithClock replaces the engine clock.
func (e *VaultEngine) WithClock(now func() time.Time) *VaultEngine {
	e.now = now
	return e
}

func (e *VaultEngine) clock() time.Time { return e.now() }

// ownedVault finds vaultID in the session and checks it belongs to the
// session identity.
func ownedVault(s *Session, vaultID string) (int, error) {
	i := core.FindVault(s.Vaults, vaultID)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", core.ErrVaultNotFound, vaultID)
	}
	if s.Vaults[i].OwnerID != s.UserID {
		return -1, core.ErrForbidden
	}
	return i, nil
}

// saveVault persists patch for vault i and applies it to the session only
// on success. The spent amount is never written from the session.
func (e *VaultEngine) saveVault(ctx context.Context, s *Session, i int, patch ledger.VaultPatch) (core.Vault, error) {
	if _, err := e.store.UpdateVault(ctx, s.UserID, s.Vaults[i].ID, patch); err != nil {
		return s.Vaults[i], ledger.ClassifyError("save vault", fmt.Errorf("update vault: %w", err))
	}
	next := core.CloneVaults(s.Vaults)
	if patch.IsLocked != nil {
		next[i].IsLocked = *patch.IsLocked
	}
	if patch.Limit != nil {
		next[i].Limit = *patch.Limit
	}
	s.Vaults = next
	return next[i], nil
}

func lockPatch(locked bool) ledger.VaultPatch {
	return ledger.VaultPatch{IsLocked: &locked}
}

// ToggleLock locks an unlocked vault, unlocks a locked vault without a PIN,
// and moves a PIN-protected locked vault to AwaitingPIN.
func (e *VaultEngine) ToggleLock(ctx context.Context, s *Session, vaultID string) (ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := ownedVault(s, vaultID)
	if err != nil {
		return ToggleResult{}, err
	}
	v := s.Vaults[i]

	switch {
	case !v.IsLocked:
		locked, err := e.saveVault(ctx, s, i, lockPatch(true))
		if err != nil {
			return ToggleResult{}, err
		}
		delete(s.unlock, vaultID)
		e.notes.notify(ctx, s, core.NotificationDraft{
			Title:    "Vault Secured",
			Message:  fmt.Sprintf("%s unit has been isolated and frozen.", v.DisplayName()),
			Priority: core.PriorityNormal,
		})
		slog.InfoContext(ctx, "Vault locked", "user_id", s.UserID, "vault_id", vaultID)
		return ToggleResult{Vault: locked}, nil

	case v.HasPIN():
		if err := e.policy.awaitPIN(s.attempt(vaultID), e.now()); err != nil {
			return ToggleResult{}, err
		}
		return ToggleResult{Vault: v, AwaitingPIN: true}, nil

	default:
		unlocked, err := e.saveVault(ctx, s, i, lockPatch(false))
		if err != nil {
			return ToggleResult{}, err
		}
		slog.InfoContext(ctx, "Vault unlocked", "user_id", s.UserID, "vault_id", vaultID)
		return ToggleResult{Vault: unlocked}, nil
	}
}

// SubmitPIN completes a pending unlock. A wrong PIN leaves the vault locked
// and allows another attempt.
func (e *VaultEngine) SubmitPIN(ctx context.Context, s *Session, vaultID, pin string) (core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := ownedVault(s, vaultID)
	if err != nil {
		return core.Vault{}, err
	}
	return e.submitPIN(ctx, s, i, pin)
}

func (e *VaultEngine) submitPIN(ctx context.Context, s *Session, i int, pin string) (core.Vault, error) {
	v := s.Vaults[i]
	a := s.attempt(v.ID)
	if err := e.policy.check(a, v, pin, e.now()); err != nil {
		if errors.Is(err, core.ErrPINRejected) {
			slog.WarnContext(ctx, "Vault PIN rejected", "user_id", s.UserID, "vault_id", v.ID)
		}
		return v, err
	}

	unlocked, err := e.saveVault(ctx, s, i, lockPatch(false))
	if err != nil {
		return v, err
	}
	delete(s.unlock, v.ID)
	e.notes.notify(ctx, s, core.NotificationDraft{
		Title:    "Auth Verified",
		Message:  fmt.Sprintf("%s is now liquid.", v.DisplayName()),
		Priority: core.PriorityNormal,
	})
	slog.InfoContext(ctx, "Vault unlocked with PIN", "user_id", s.UserID, "vault_id", v.ID)
	return unlocked, nil
}

// CancelUnlock abandons a pending unlock.
func (e *VaultEngine) CancelUnlock(s *Session, vaultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := ownedVault(s, vaultID); err != nil {
		return err
	}
	if a, ok := s.unlock[vaultID]; ok {
		a.reset()
	}
	return nil
}

// Unlock is the one-shot form of ToggleLock followed by SubmitPIN.
func (e *VaultEngine) Unlock(ctx context.Context, s *Session, vaultID, pin string) (core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := ownedVault(s, vaultID)
	if err != nil {
		return core.Vault{}, err
	}
	v := s.Vaults[i]
	if !v.IsLocked {
		return v, nil
	}
	if !v.HasPIN() {
		return e.saveVault(ctx, s, i, lockPatch(false))
	}

	a := s.attempt(vaultID)
	if a.state == UnlockIdle {
		if err := e.policy.awaitPIN(a, e.now()); err != nil {
			return v, err
		}
	}
	return e.submitPIN(ctx, s, i, pin)
}

// UpdateLimit replaces the limit of a vault.
func (e *VaultEngine) UpdateLimit(ctx context.Context, s *Session, vaultID string, limit core.Money) (core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := ownedVault(s, vaultID)
	if err != nil {
		return core.Vault{}, err
	}
	if limit.Cents <= 0 {
		return s.Vaults[i], core.ErrInvalidLimit
	}

	updated, err := e.saveVault(ctx, s, i, ledger.VaultPatch{Limit: &limit})
	if err != nil {
		return updated, err
	}
	slog.InfoContext(ctx, "Vault limit updated",
		"user_id", s.UserID,
		"vault_id", vaultID,
		"limit_cents", limit.Cents)
	return updated, nil
}

// CheckUsage reports whether amount could be drawn from the vault now,
// without mutating anything.
func (e *VaultEngine) CheckUsage(s *Session, vaultID string, amount core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := ownedVault(s, vaultID)
	if err != nil {
		return err
	}
	if amount.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	return ValidateAllocation(s.Vaults[i], amount)
}

// ValidateAllocation checks a single draw against a vault. ErrVaultLocked
// blocks the draw; ErrLimitExceeded is a warning.
func ValidateAllocation(v core.Vault, amount core.Money) error {
	if v.IsLocked {
		return fmt.Errorf("%w: %s", core.ErrVaultLocked, v.DisplayName())
	}
	if v.Type.Info().LimitChecked && v.Spent.Add(amount).Cents > v.Limit.Cents {
		return fmt.Errorf("%w: %s", core.ErrLimitExceeded, v.DisplayName())
	}
	return nil
}
