package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// RevenueStore is the part of the ledger used for income records.
type RevenueStore interface {
	ledger.RevenueStore
	ledger.ProfileStore
}

// RevenueService credits income to the balance.
type RevenueService struct {
	store     RevenueStore
	persister *Persister
	now       func() time.Time
}

func NewRevenueService(store RevenueStore, persister *Persister) *RevenueService {
	return &RevenueService{store: store, persister: persister, now: time.Now}
}

// RecordRevenue appends the record, then credits the balance. The record
// write must succeed; the balance write is retried through the outbox.
func (r *RevenueService) RecordRevenue(ctx context.Context, s *Session, amount core.Money, source string) (core.Revenue, error) {
	rev := core.Revenue{
		ID:        uuid.NewString(),
		Amount:    amount,
		Source:    strings.TrimSpace(source),
		Timestamp: r.now(),
	}
	if err := rev.Validate(); err != nil {
		return core.Revenue{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := r.store.AppendRevenue(ctx, s.UserID, rev); err != nil {
		return core.Revenue{}, ledger.ClassifyError("record revenue", fmt.Errorf("append revenue: %w", err))
	}
	s.User.CurrentBalance = s.User.CurrentBalance.Add(amount)
	credit := amount
	r.persister.PersistAll(ctx, ledger.Write{Kind: ledger.WriteBalance, UserID: s.UserID, OpID: rev.ID, Delta: &credit})

	slog.InfoContext(ctx, "Revenue recorded",
		"user_id", s.UserID,
		"amount_cents", amount.Cents,
		"source", rev.Source)
	return rev, nil
}

func (r *RevenueService) ListRevenue(ctx context.Context, s *Session) ([]core.Revenue, error) {
	out, err := r.store.ListRevenue(ctx, s.UserID)
	if err != nil {
		return nil, ledger.ClassifyError("list revenue", fmt.Errorf("list revenue: %w", err))
	}
	return out, nil
}
