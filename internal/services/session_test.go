package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
	"thinkpay/internal/ledger/memory"
)

func TestSessionManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	s := f.seed(t, "u1")

	got, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	f.sessions.IdentityChanged(ctx, "u1", false)
	assert.Equal(t, 0, f.sessions.Len())

	f.sessions.IdentityChanged(ctx, "u1", true)
	assert.Equal(t, 1, f.sessions.Len())
	again, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotSame(t, s, again)
	assert.Equal(t, s.Snapshot().Vaults, again.Snapshot().Vaults)
}

func TestSessionManager_UnknownUser(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.sessions.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.False(t, core.IsSetupError(err))
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	f := newFixture(t, memory.New())
	s := f.seed(t, "u1")
	_, err := f.payments.Begin(s, false)
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Vaults[0].IsLocked = true
	snap.Payment.Step = StepCommitted

	assert.False(t, s.Vaults[0].IsLocked)
	flow, ok := f.payments.Current(s)
	require.True(t, ok)
	assert.Equal(t, StepEntry, flow.Step)
	assert.Equal(t, core.ComputeDerived(s.User, s.Vaults), snap.Derived)
}
