// Package worker replays ledger writes that failed after a payment commit.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thinkpay/internal/amqp"
	"thinkpay/internal/ledger"
)

// Publisher puts a write message back on the retry queue.
type Publisher interface {
	PublishWrite(ctx context.Context, msg *amqp.WriteMessage) error
}

// ReplayWorker applies queued writes to the ledger store.
type ReplayWorker struct {
	store      ledger.Writer
	publisher  Publisher
	maxRetries int
	retryDelay time.Duration
}

func NewReplayWorker(store ledger.Writer, publisher Publisher, maxRetries int, retryDelay time.Duration) *ReplayWorker {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &ReplayWorker{
		store:      store,
		publisher:  publisher,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// HandleWriteMessage applies one queued write. A failed write is published
// again with its attempt counter advanced until maxRetries is reached, then
// dropped with an error log. Only a failed republish is returned, so the
// consumer requeues the original delivery.
func (w *ReplayWorker) HandleWriteMessage(ctx context.Context, msg *amqp.WriteMessage) error {
	slog.InfoContext(ctx, "Replaying write",
		"kind", msg.Write.Kind,
		"user_id", msg.Write.UserID,
		"attempts", msg.Attempts)

	err := ledger.Apply(ctx, w.store, msg.Write)
	if err == nil {
		slog.InfoContext(ctx, "Write replayed", "kind", msg.Write.Kind, "user_id", msg.Write.UserID)
		return nil
	}
	if msg.Write.Kind == ledger.WriteTransaction && errors.Is(err, ledger.ErrConflict) {
		slog.InfoContext(ctx, "Transaction already stored, skipping",
			"user_id", msg.Write.UserID,
			"transaction_id", msg.Write.Transaction.ID)
		return nil
	}

	if msg.Attempts+1 >= w.maxRetries {
		slog.ErrorContext(ctx, "Giving up on write",
			"kind", msg.Write.Kind,
			"user_id", msg.Write.UserID,
			"attempts", msg.Attempts+1,
			"error", err)
		return nil
	}

	slog.WarnContext(ctx, "Write replay failed, scheduling retry",
		"kind", msg.Write.Kind,
		"user_id", msg.Write.UserID,
		"attempts", msg.Attempts+1,
		"error", err)

	if w.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryDelay):
		}
	}
	if pubErr := w.publisher.PublishWrite(ctx, msg.Retry()); pubErr != nil {
		return fmt.Errorf("republish write: %w", errors.Join(err, pubErr))
	}
	return nil
}
