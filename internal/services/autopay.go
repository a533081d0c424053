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
)

// AutopayService manages the scheduled payments of a session.
type AutopayService struct {
	store ledger.AutopayStore
}

func NewAutopayService(store ledger.AutopayStore) *AutopayService {
	return &AutopayService{store: store}
}

func (a *AutopayService) List(ctx context.Context, s *Session) ([]core.Autopay, error) {
	out, err := a.store.ListAutopays(ctx, s.UserID)
	if err != nil {
		return nil, ledger.ClassifyError("list autopays", fmt.Errorf("list autopays: %w", err))
	}
	return out, nil
}

// Save creates or replaces an autopay. The target vault must belong to the
// session identity.
func (a *AutopayService) Save(ctx context.Context, s *Session, ap core.Autopay) (core.Autopay, error) {
	ap.Name = strings.TrimSpace(ap.Name)
	if ap.ID == "" {
		ap.ID = uuid.NewString()
	}
	if ap.Status == "" {
		ap.Status = core.AutopayActive
	}
	if ap.Frequency == "" {
		ap.Frequency = core.Monthly
	}
	ap.OwnerID = s.UserID
	if err := ap.Validate(); err != nil {
		return core.Autopay{}, err
	}

	s.mu.Lock()
	_, err := ownedVault(s, ap.VaultID)
	s.mu.Unlock()
	if err != nil {
		return core.Autopay{}, err
	}

	if err := a.store.SaveAutopay(ctx, s.UserID, ap); err != nil {
		return core.Autopay{}, ledger.ClassifyError("save autopay", fmt.Errorf("save autopay: %w", err))
	}
	return ap, nil
}

// AutopayProcessor charges due autopays through the payment orchestrator.
// It shares the session manager of the API so a charge and a request for
// the same identity serialize on one session.
type AutopayProcessor struct {
	store    ledger.AutopayStore
	sessions *SessionManager
	payments *Orchestrator
}

func NewAutopayProcessor(store ledger.AutopayStore, sessions *SessionManager, payments *Orchestrator) *AutopayProcessor {
	return &AutopayProcessor{store: store, sessions: sessions, payments: payments}
}

// Run processes due autopays now and then on every tick of interval until
// ctx is done.
func (p *AutopayProcessor) Run(ctx context.Context, interval time.Duration) {
	p.runOnce(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.runOnce(ctx, now)
			slog.DebugContext(ctx, "Next autopay check", "at", now.Add(interval).Format("15:04:05"))
		}
	}
}

func (p *AutopayProcessor) runOnce(ctx context.Context, now time.Time) {
	if _, err := p.ProcessDue(ctx, now); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Autopay processing failed", "error", err)
	}
}

// ProcessDue charges every active autopay due at now and returns how many
// were charged. Locked vaults and insufficient liquidity skip the autopay
// until the next run.
func (p *AutopayProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.sessions == nil || p.payments == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	owners, err := p.store.ListAutopayOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list autopay owners: %w", err)
	}

	slog.InfoContext(ctx, "Processing autopays",
		"owners", len(owners),
		"processing_date", now.Format(time.DateOnly))

	processed := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		n, err := p.processOwner(ctx, owner, now)
		processed += n
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process autopays", "user_id", owner, "error", err)
		}
	}

	slog.InfoContext(ctx, "Autopay processing complete", "processed", processed)
	return processed, nil
}

func (p *AutopayProcessor) processOwner(ctx context.Context, owner string, now time.Time) (int, error) {
	autopays, err := p.store.ListAutopays(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("list autopays: %w", err)
	}
	autopays = slices.DeleteFunc(autopays, func(a core.Autopay) bool { return a.Status != core.AutopayActive })
	if len(autopays) == 0 {
		return 0, nil
	}

	s, err := p.sessions.Get(ctx, owner)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, ap := range autopays {
		checker, err := GetDuenessChecker(ap.Frequency)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping autopay", "autopay_id", ap.ID, "error", err)
			continue
		}
		if !checker.IsDue(ap.LastRun, now, ap.DueDate) {
			continue
		}

		tx, err := p.payments.ChargeVault(ctx, s, ap.VaultID, ap.Amount, ap.Name, "Autopay")
		if err != nil {
			level := slog.LevelError
			if IsPaymentRejection(err) {
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "Autopay not charged",
				"autopay_id", ap.ID,
				"user_id", owner,
				"vault_id", ap.VaultID,
				"error", err)
			if errors.Is(err, core.ErrPaymentInProgress) {
				return processed, nil
			}
			continue
		}

		ap.LastRun = now
		if err := p.store.SaveAutopay(ctx, owner, ap); err != nil {
			slog.ErrorContext(ctx, "Failed to update autopay last run",
				"autopay_id", ap.ID,
				"error", err)
		}
		processed++
		slog.InfoContext(ctx, "Autopay charged",
			"autopay_id", ap.ID,
			"transaction_id", tx.ID,
			"amount_cents", ap.Amount.Cents,
			"frequency", ap.Frequency)
	}
	return processed, nil
}
