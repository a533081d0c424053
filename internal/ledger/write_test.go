package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
	"thinkpay/internal/ledger/memory"
)

func TestCommitWrites(t *testing.T) {
	tx := core.Transaction{
		ID:     "tx-1",
		Amount: core.Units(1200),
		Allocations: []core.Allocation{
			{VaultID: "u1-v1", Amount: core.Units(700)},
			{VaultID: "u1-v2", Amount: core.Units(500)},
		},
	}
	writes := ledger.CommitWrites("u1", tx)
	require.Len(t, writes, 3)

	for _, w := range writes {
		assert.Equal(t, "u1", w.UserID)
		assert.Equal(t, "tx-1", w.OpID)
		assert.NoError(t, w.Validate())
	}
	assert.Equal(t, ledger.WriteTransaction, writes[0].Kind)
	assert.Equal(t, ledger.WriteVaultDebit, writes[1].Kind)
	assert.Equal(t, tx.Allocations, writes[1].Debits)
	assert.Equal(t, ledger.WriteBalance, writes[2].Kind)
	assert.Equal(t, core.Units(-1200), *writes[2].Delta)

	tx.Allocations[0].Amount = core.Units(1)
	assert.Equal(t, core.Units(700), writes[1].Debits[0].Amount)
}

func TestWrite_Validate(t *testing.T) {
	delta := core.Units(-1)
	tests := []struct {
		name string
		w    ledger.Write
	}{
		{"no user", ledger.Write{Kind: ledger.WriteBalance, OpID: "x", Delta: &delta}},
		{"debit without op", ledger.Write{Kind: ledger.WriteVaultDebit, UserID: "u1", Debits: []core.Allocation{{VaultID: "v", Amount: delta}}}},
		{"debit without debits", ledger.Write{Kind: ledger.WriteVaultDebit, UserID: "u1", OpID: "x"}},
		{"balance without delta", ledger.Write{Kind: ledger.WriteBalance, UserID: "u1", OpID: "x"}},
		{"unknown kind", ledger.Write{Kind: "vaults", UserID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.w.Validate())
			assert.Error(t, ledger.Apply(context.Background(), memory.New(), tt.w))
		})
	}
}
