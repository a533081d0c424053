// Package ledger defines the ports of the ledger store: the authoritative
// per-user record of profile, vaults, transactions and notifications.
// The store owns no business rules.
package ledger

import (
	"context"
	"errors"
	"time"

	"thinkpay/internal/core"
)

// DefaultTransactionLimit bounds ListTransactions when the caller passes 0.
const DefaultTransactionLimit = 50

var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("record already exists")
	ErrPermissionDenied = errors.New("permission denied")
)

// ProfileUpdate is a partial user update; nil fields are left unchanged.
type ProfileUpdate struct {
	Username       *string
	TotalBudget    *core.Money
	CurrentBalance *core.Money
}

// VaultPatch changes the settings of one vault; nil fields are left
// unchanged. Spent is never patched, only debited.
type VaultPatch struct {
	IsLocked *bool
	Limit    *core.Money
}

// Credential is the login record of one identity.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Ports for outbound adapters.
type (
	ProfileStore interface {
		GetProfile(ctx context.Context, userID string) (core.User, error)
		CreateProfile(ctx context.Context, u core.User) error
		UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (core.User, error)
		// AdjustBalance adds delta to the current balance once per opID.
		// Repeating an applied opID changes nothing.
		AdjustBalance(ctx context.Context, userID, opID string, delta core.Money) (core.User, error)
	}

	VaultStore interface {
		ListVaults(ctx context.Context, userID string) ([]core.Vault, error)
		// ReplaceVaults overwrites the full vault list of userID.
		ReplaceVaults(ctx context.Context, userID string, vaults []core.Vault) error
		UpdateVault(ctx context.Context, userID, vaultID string, patch VaultPatch) (core.Vault, error)
		// DebitVaults adds each allocation to the spent amount of its vault,
		// all or nothing, once per opID.
		DebitVaults(ctx context.Context, userID, opID string, debits []core.Allocation) error
	}

	TransactionStore interface {
		// ListTransactions returns at most limit transactions, newest first.
		ListTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error)
		AppendTransaction(ctx context.Context, userID string, tx core.Transaction) error
	}

	NotificationStore interface {
		// ListNotifications returns all notifications, newest first.
		ListNotifications(ctx context.Context, userID string) ([]core.Notification, error)
		MarkNotificationsRead(ctx context.Context, userID string, ids []string) error
		// AppendNotification assigns id and timestamp and stores the draft unread.
		AppendNotification(ctx context.Context, userID string, n core.NotificationDraft) (core.Notification, error)
	}

	RevenueStore interface {
		ListRevenue(ctx context.Context, userID string) ([]core.Revenue, error)
		AppendRevenue(ctx context.Context, userID string, r core.Revenue) error
	}

	AutopayStore interface {
		ListAutopays(ctx context.Context, userID string) ([]core.Autopay, error)
		// SaveAutopay inserts or replaces the autopay with the same id.
		SaveAutopay(ctx context.Context, userID string, a core.Autopay) error
		// ListAutopayOwners returns the identities holding at least one active autopay.
		ListAutopayOwners(ctx context.Context) ([]string, error)
	}

	CredentialStore interface {
		CreateCredential(ctx context.Context, c Credential) error
		GetCredentialByEmail(ctx context.Context, email string) (Credential, error)
	}

	RevocationStore interface {
		// RevokeToken records jti as revoked until expiresAt.
		RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
		IsTokenRevoked(ctx context.Context, jti string, now time.Time) (bool, error)
	}

	Purger interface {
		// PurgeUser removes every record owned by userID, credentials included.
		PurgeUser(ctx context.Context, userID string) error
	}
)

// Store is the full ledger store a backend provides.
type Store interface {
	ProfileStore
	VaultStore
	TransactionStore
	NotificationStore
	RevenueStore
	AutopayStore
	CredentialStore
	RevocationStore
	Purger
}

// NormalizeLimit maps a non-positive limit to DefaultTransactionLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultTransactionLimit
	}
	return limit
}

// ClassifyError wraps permission failures as setup errors so callers can
// tell them from per-action failures.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		return &core.SetupError{Op: op, Err: err}
	}
	return err
}
