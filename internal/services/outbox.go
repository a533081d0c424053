package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// Outbox receives store writes that failed after the session was already
// mutated, so they can be retried later.
type Outbox interface {
	Enqueue(ctx context.Context, w ledger.Write) error
}

// LogOutbox only records dropped writes in the log.
type LogOutbox struct{}

func (LogOutbox) Enqueue(ctx context.Context, w ledger.Write) error {
	slog.WarnContext(ctx, "Dropping failed ledger write, no retry queue configured",
		"kind", w.Kind,
		"user_id", w.UserID)
	return nil
}

// Persister applies post-commit writes best effort. A failed write is
// logged and handed to the outbox; nothing is rolled back.
type Persister struct {
	store  ledger.Writer
	outbox Outbox
}

func NewPersister(store ledger.Writer, outbox Outbox) *Persister {
	if outbox == nil {
		outbox = LogOutbox{}
	}
	return &Persister{store: store, outbox: outbox}
}

// PersistAll runs the writes concurrently and returns how many failed.
func (p *Persister) PersistAll(ctx context.Context, writes ...ledger.Write) int {
	failed := make([]bool, len(writes))

	var g errgroup.Group
	for i, w := range writes {
		g.Go(func() error {
			if err := ledger.Apply(ctx, p.store, w); err != nil {
				failed[i] = true
				p.queue(ctx, w, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

func (p *Persister) queue(ctx context.Context, w ledger.Write, cause error) {
	slog.ErrorContext(ctx, "Ledger write failed, queueing for retry",
		"kind", w.Kind,
		"user_id", w.UserID,
		"error", cause)
	if err := p.outbox.Enqueue(ctx, w); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue ledger write",
			"kind", w.Kind,
			"user_id", w.UserID,
			"error", err)
	}
}

// notifier appends notifications to the store and the session. When the
// store rejects the append, a local notification is shown and the write is
// queued.
type notifier struct {
	store     ledger.NotificationStore
	persister *Persister
	now       func() time.Time
}

func (n *notifier) notify(ctx context.Context, s *Session, draft core.NotificationDraft) core.Notification {
	note, err := n.store.AppendNotification(ctx, s.UserID, draft)
	if err != nil {
		note = core.Notification{
			ID:        uuid.NewString(),
			Title:     draft.Title,
			Message:   draft.Message,
			Priority:  draft.Priority,
			Timestamp: n.now(),
		}
		n.persister.queue(ctx, ledger.Write{
			Kind:         ledger.WriteNotification,
			UserID:       s.UserID,
			Notification: &draft,
		}, err)
	}
	s.Notifications = append([]core.Notification{note}, s.Notifications...)
	return note
}
