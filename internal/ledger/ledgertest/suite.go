// Package ledgertest holds the behavioural checks every ledger.Store
// backend must pass.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("profile lifecycle", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProfile(ctx, "u1")
		require.ErrorIs(t, err, ledger.ErrNotFound)

		p := core.NewProfile("u1", "asha", "asha@example.com", base)
		require.NoError(t, s.CreateProfile(ctx, p))
		require.ErrorIs(t, s.CreateProfile(ctx, p), ledger.ErrConflict)

		got, err := s.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, p.Username, got.Username)
		assert.Equal(t, core.DefaultCurrentBalance, got.CurrentBalance)
		assert.True(t, got.CreatedAt.Equal(base))

		bal := core.Units(48800)
		name := "asha.k"
		updated, err := s.UpdateProfile(ctx, "u1", ledger.ProfileUpdate{CurrentBalance: &bal, Username: &name})
		require.NoError(t, err)
		assert.Equal(t, bal, updated.CurrentBalance)
		assert.Equal(t, "asha.k", updated.Username)
		assert.Equal(t, core.DefaultTotalBudget, updated.TotalBudget)

		_, err = s.UpdateProfile(ctx, "ghost", ledger.ProfileUpdate{CurrentBalance: &bal})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("replace vaults overwrites", func(t *testing.T) {
		s := newStore(t)
		vaults := core.DefaultVaults("u1")
		require.NoError(t, s.ReplaceVaults(ctx, "u1", vaults))

		got, err := s.ListVaults(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, vaults, got)

		trimmed := vaults[:2]
		trimmed[0].IsLocked = true
		trimmed[0].Spent = core.Units(10)
		require.NoError(t, s.ReplaceVaults(ctx, "u1", trimmed))
		got, err = s.ListVaults(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].IsLocked)
		assert.Equal(t, core.Units(10), got[0].Spent)

		bad := append(core.CloneVaults(vaults), core.Vault{ID: "x", Type: core.Emergency, Limit: core.Units(1)})
		assert.Error(t, s.ReplaceVaults(ctx, "u1", bad))

		other, err := s.ListVaults(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("balance deltas apply once per op", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateProfile(ctx, core.NewProfile("u1", "asha", "asha@example.com", base)))

		got, err := s.AdjustBalance(ctx, "u1", "tx1", core.Units(-1200))
		require.NoError(t, err)
		assert.Equal(t, core.Units(48800), got.CurrentBalance)

		got, err = s.AdjustBalance(ctx, "u1", "tx1", core.Units(-1200))
		require.NoError(t, err)
		assert.Equal(t, core.Units(48800), got.CurrentBalance)

		got, err = s.AdjustBalance(ctx, "u1", "rev1", core.Units(300))
		require.NoError(t, err)
		assert.Equal(t, core.Units(49100), got.CurrentBalance)

		_, err = s.AdjustBalance(ctx, "ghost", "tx9", core.Units(1))
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("vault debits apply once per op", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceVaults(ctx, "u1", core.DefaultVaults("u1")))

		debits := []core.Allocation{
			{VaultID: "u1-v1", Amount: core.Units(700)},
			{VaultID: "u1-v2", Amount: core.Units(500)},
		}
		require.NoError(t, s.DebitVaults(ctx, "u1", "tx1", debits))
		require.NoError(t, s.DebitVaults(ctx, "u1", "tx1", debits))
		require.NoError(t, s.DebitVaults(ctx, "u1", "tx2", debits[1:]))

		vaults, err := s.ListVaults(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, core.Units(700), vaults[0].Spent)
		assert.Equal(t, core.Units(1000), vaults[1].Spent)

		missing := []core.Allocation{
			{VaultID: "u1-v1", Amount: core.Units(1)},
			{VaultID: "u1-v9", Amount: core.Units(1)},
		}
		assert.ErrorIs(t, s.DebitVaults(ctx, "u1", "tx3", missing), ledger.ErrNotFound)
		vaults, err = s.ListVaults(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, core.Units(700), vaults[0].Spent)

		require.NoError(t, s.DebitVaults(ctx, "u1", "tx3", debits[:1]))
		vaults, err = s.ListVaults(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, core.Units(1400), vaults[0].Spent)
	})

	t.Run("update vault patches settings only", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceVaults(ctx, "u1", core.DefaultVaults("u1")))
		require.NoError(t, s.DebitVaults(ctx, "u1", "tx1", []core.Allocation{{VaultID: "u1-v2", Amount: core.Units(400)}}))

		locked := true
		v, err := s.UpdateVault(ctx, "u1", "u1-v2", ledger.VaultPatch{IsLocked: &locked})
		require.NoError(t, err)
		assert.True(t, v.IsLocked)
		assert.Equal(t, core.Units(400), v.Spent)

		limit := core.Units(7500)
		v, err = s.UpdateVault(ctx, "u1", "u1-v2", ledger.VaultPatch{Limit: &limit})
		require.NoError(t, err)
		assert.Equal(t, limit, v.Limit)
		assert.True(t, v.IsLocked)

		zero := core.Units(0)
		_, err = s.UpdateVault(ctx, "u1", "u1-v2", ledger.VaultPatch{Limit: &zero})
		assert.ErrorIs(t, err, core.ErrInvalidLimit)
		_, err = s.UpdateVault(ctx, "u1", "u1-v9", ledger.VaultPatch{IsLocked: &locked})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("token revocations", func(t *testing.T) {
		s := newStore(t)
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, s.RevokeToken(ctx, "jti-1", now.Add(time.Hour)))

		revoked, err := s.IsTokenRevoked(ctx, "jti-1", now)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = s.IsTokenRevoked(ctx, "jti-1", now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, revoked)

		revoked, err = s.IsTokenRevoked(ctx, "jti-2", now)
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("transactions newest first with limit", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			tx := core.Transaction{
				ID:       "tx" + string(rune('a'+i)),
				Amount:   core.Units(int64(100 * (i + 1))),
				Merchant: "Shop",
				Category: "Food",
				Allocations: []core.Allocation{
					{VaultID: "v1", Amount: core.Units(int64(50 * (i + 1)))},
					{VaultID: "v2", Amount: core.Units(int64(50 * (i + 1)))},
				},
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Status:    core.StatusCompleted,
				Gateway:   core.Razorpay,
			}
			require.NoError(t, s.AppendTransaction(ctx, "u1", tx))
		}
		dup := core.Transaction{ID: "txa", Amount: core.Units(1), Merchant: "x", Timestamp: base, Gateway: core.Razorpay, Status: core.StatusCompleted}
		assert.ErrorIs(t, s.AppendTransaction(ctx, "u1", dup), ledger.ErrConflict)

		got, err := s.ListTransactions(ctx, "u1", 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "txe", got[0].ID)
		assert.Equal(t, "txc", got[2].ID)
		require.Len(t, got[0].Allocations, 2)
		assert.Equal(t, got[0].Amount, core.AllocatedTotal(got[0].Allocations))
		assert.True(t, got[0].Timestamp.Equal(base.Add(4*time.Minute)))

		all, err := s.ListTransactions(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)

		again, err := s.ListTransactions(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Equal(t, all, again)
	})

	t.Run("notifications append and mark read", func(t *testing.T) {
		s := newStore(t)
		first, err := s.AppendNotification(ctx, "u1", core.NotificationDraft{Title: "Vault Secured", Message: "m", Priority: core.PriorityNormal})
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.False(t, first.Read)
		assert.False(t, first.Timestamp.IsZero())

		second, err := s.AppendNotification(ctx, "u1", core.NotificationDraft{Title: "Payment Authorized", Message: "m", Priority: core.PriorityHigh})
		require.NoError(t, err)

		_, err = s.AppendNotification(ctx, "u1", core.NotificationDraft{Title: "", Priority: core.PriorityNormal})
		assert.Error(t, err)

		list, err := s.ListNotifications(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, list, 2)

		require.NoError(t, s.MarkNotificationsRead(ctx, "u1", []string{second.ID}))
		require.NoError(t, s.MarkNotificationsRead(ctx, "u1", nil))
		list, err = s.ListNotifications(ctx, "u1")
		require.NoError(t, err)
		read := map[string]bool{}
		for _, n := range list {
			read[n.ID] = n.Read
		}
		assert.True(t, read[second.ID])
		assert.False(t, read[first.ID])
	})

	t.Run("revenue and autopays", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AppendRevenue(ctx, "u1", core.Revenue{ID: "r1", Amount: core.Units(900), Source: "Salary", Timestamp: base}))
		rev, err := s.ListRevenue(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, rev, 1)
		assert.Equal(t, "Salary", rev[0].Source)

		ap := core.Autopay{
			ID: "a1", Name: "Rent", Amount: core.Units(500), DueDate: core.NewDate(2025, 3, 5),
			VaultID: "u1-v5", Status: core.AutopayActive, Frequency: core.Monthly,
		}
		require.NoError(t, s.SaveAutopay(ctx, "u1", ap))
		require.NoError(t, s.SaveAutopay(ctx, "u2", core.Autopay{
			ID: "a2", Name: "Gym", Amount: core.Units(50), DueDate: core.NewDate(2025, 3, 1),
			VaultID: "u2-v1", Status: core.AutopayPaused, Frequency: core.Weekly,
		}))

		ap.LastRun = base
		require.NoError(t, s.SaveAutopay(ctx, "u1", ap))
		aps, err := s.ListAutopays(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, aps, 1)
		assert.True(t, aps[0].LastRun.Equal(base))
		assert.Equal(t, "u1", aps[0].OwnerID)
		assert.Equal(t, "2025-03-05", aps[0].DueDate.String())

		owners, err := s.ListAutopayOwners(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, owners)
	})

	t.Run("credentials and purge", func(t *testing.T) {
		s := newStore(t)
		c := ledger.Credential{UserID: "u1", Email: "Asha@Example.com", PasswordHash: []byte("hash"), CreatedAt: base}
		require.NoError(t, s.CreateCredential(ctx, c))
		assert.ErrorIs(t, s.CreateCredential(ctx, c), ledger.ErrConflict)

		got, err := s.GetCredentialByEmail(ctx, "asha@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, []byte("hash"), got.PasswordHash)

		require.NoError(t, s.CreateProfile(ctx, core.NewProfile("u1", "asha", "asha@example.com", base)))
		require.NoError(t, s.ReplaceVaults(ctx, "u1", core.DefaultVaults("u1")))
		require.NoError(t, s.PurgeUser(ctx, "u1"))

		_, err = s.GetProfile(ctx, "u1")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		_, err = s.GetCredentialByEmail(ctx, "asha@example.com")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		vaults, err := s.ListVaults(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, vaults)
	})
}
