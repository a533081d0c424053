package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger/memory"
)

func TestRevenueService_RecordRevenue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	s := f.seed(t, "u1")
	svc := NewRevenueService(f.store, NewPersister(f.store, f.outbox))

	rev, err := svc.RecordRevenue(ctx, s, core.Units(25000), " Salary ")
	require.NoError(t, err)
	assert.Equal(t, "Salary", rev.Source)
	assert.Equal(t, core.Units(75000), s.User.CurrentBalance)

	profile, err := f.store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.Units(75000), profile.CurrentBalance)

	list, err := svc.ListRevenue(ctx, s)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rev.ID, list[0].ID)
}

func TestRevenueService_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	s := f.seed(t, "u1")
	svc := NewRevenueService(f.store, NewPersister(f.store, f.outbox))

	_, err := svc.RecordRevenue(ctx, s, core.Money{}, "Salary")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = svc.RecordRevenue(ctx, s, core.Units(10), "  ")
	assert.ErrorIs(t, err, core.ErrEmptySource)
	assert.Equal(t, core.Units(50000), s.User.CurrentBalance)
}
