package ledger

import (
	"context"
	"errors"
	"fmt"

	"thinkpay/internal/core"
)

// WriteKind names the kind of store write carried by a Write.
type WriteKind string

const (
	WriteTransaction  WriteKind = "transaction"
	WriteVaultDebit   WriteKind = "vault_debit"
	WriteBalance      WriteKind = "balance"
	WriteNotification WriteKind = "notification"
)

// Write is one store mutation detached from the session that produced it,
// so it can be queued and replayed later. Vault debits and balance changes
// are deltas keyed by OpID: applying the same write twice has the effect of
// applying it once, and a late replay never overwrites newer state.
type Write struct {
	Kind         WriteKind               `json:"kind"`
	UserID       string                  `json:"user_id"`
	OpID         string                  `json:"op_id,omitempty"`
	Transaction  *core.Transaction       `json:"transaction,omitempty"`
	Debits       []core.Allocation       `json:"debits,omitempty"`
	Delta        *core.Money             `json:"delta,omitempty"`
	Notification *core.NotificationDraft `json:"notification,omitempty"`
}

// CommitWrites returns the three writes that record tx: the transaction,
// the vault debits and the balance decrement, all keyed by the transaction id.
func CommitWrites(userID string, tx core.Transaction) []Write {
	t := tx
	t.Allocations = append([]core.Allocation(nil), tx.Allocations...)
	delta := core.Money{Cents: -tx.Amount.Cents}
	return []Write{
		{Kind: WriteTransaction, UserID: userID, OpID: tx.ID, Transaction: &t},
		{Kind: WriteVaultDebit, UserID: userID, OpID: tx.ID, Debits: append([]core.Allocation(nil), tx.Allocations...)},
		{Kind: WriteBalance, UserID: userID, OpID: tx.ID, Delta: &delta},
	}
}

func (w Write) Validate() error {
	if w.UserID == "" {
		return errors.New("write has no user")
	}
	switch w.Kind {
	case WriteTransaction:
		if w.Transaction == nil {
			return errors.New("transaction write without transaction")
		}
	case WriteVaultDebit:
		if w.OpID == "" || len(w.Debits) == 0 {
			return errors.New("vault debit without op id or debits")
		}
	case WriteBalance:
		if w.OpID == "" || w.Delta == nil {
			return errors.New("balance write without op id or delta")
		}
	case WriteNotification:
		if w.Notification == nil {
			return errors.New("notification write without notification")
		}
	default:
		return fmt.Errorf("unknown write kind %q", w.Kind)
	}
	return nil
}

// Writer is the subset of Store needed to apply writes.
type Writer interface {
	TransactionStore
	VaultStore
	ProfileStore
	NotificationStore
}

// Apply performs w against s.
func Apply(ctx context.Context, s Writer, w Write) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validate write: %w", err)
	}
	switch w.Kind {
	case WriteTransaction:
		return s.AppendTransaction(ctx, w.UserID, *w.Transaction)
	case WriteVaultDebit:
		return s.DebitVaults(ctx, w.UserID, w.OpID, w.Debits)
	case WriteBalance:
		_, err := s.AdjustBalance(ctx, w.UserID, w.OpID, *w.Delta)
		return err
	case WriteNotification:
		_, err := s.AppendNotification(ctx, w.UserID, *w.Notification)
		return err
	}
	return nil
}
