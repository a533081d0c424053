package statement

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger/memory"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func tx(id string, units int64, merchant string, at time.Time) core.Transaction {
	return core.Transaction{
		ID:          id,
		Amount:      core.Units(units),
		Merchant:    merchant,
		Category:    "Dining",
		Allocations: []core.Allocation{{VaultID: "u1-v2", Amount: core.Units(units)}},
		Timestamp:   at,
		Status:      core.StatusCompleted,
		Gateway:     core.Razorpay,
	}
}

func TestBuild_FiltersMonthOldestFirst(t *testing.T) {
	txs := []core.Transaction{
		tx("c", 300, "Late", base.Add(48*time.Hour)),
		tx("b", 200, "Feb", base.AddDate(0, -1, 0)),
		tx("a", 100, "Early", base),
	}
	st, err := Build("u1", txs, 2025, 3, base)
	require.NoError(t, err)

	require.Len(t, st.Transactions, 2)
	assert.Equal(t, "a", st.Transactions[0].ID)
	assert.Equal(t, "c", st.Transactions[1].ID)
	assert.Equal(t, core.Units(400), st.Summary.Total)
	assert.Equal(t, "2025-03", st.Period())
	assert.Equal(t, "statements/u1/2025-03.csv", st.ObjectKey())
}

func TestBuild_InvalidPeriod(t *testing.T) {
	for _, m := range []int{0, 13} {
		_, err := Build("u1", nil, 2025, m, base)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	}
}

func TestStatement_CSV(t *testing.T) {
	split := tx("a", 1200, `Cafe "X", Indiranagar`, base)
	split.Allocations = []core.Allocation{
		{VaultID: "u1-v1", Amount: core.Units(700)},
		{VaultID: "u1-v2", Amount: core.Units(500)},
	}
	st, err := Build("u1", []core.Transaction{split}, 2025, 3, base)
	require.NoError(t, err)

	data, err := st.CSV()
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{
		"2025-03-10T12:00:00Z", "a", `Cafe "X", Indiranagar`, "Dining", "1200.00",
		"razorpay", "completed", "u1-v1=700.00;u1-v2=500.00",
	}, records[1])
}

type recordingSink struct {
	got Statement
	err error
}

func (s *recordingSink) Deliver(_ context.Context, st Statement) (string, error) {
	s.got = st
	return "mem://" + st.ObjectKey(), s.err
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AppendTransaction(ctx, "u1", tx("a", 1200, "Cafe X", base)))
	require.NoError(t, store.AppendTransaction(ctx, "u1", tx("b", 300, "Metro", base.AddDate(0, 1, 0))))

	sink := &recordingSink{}
	svc := NewService(store, sink).WithClock(func() time.Time { return base })

	res, err := svc.Export(ctx, "u1", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, Result{Period: "2025-03", Location: "mem://statements/u1/2025-03.csv", Transactions: 1, Total: "1200.00"}, res)
	assert.Equal(t, base, sink.got.GeneratedAt)
}

func TestService_ExportErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := NewService(store, nil).Export(ctx, "u1", 2025, 3)
	assert.ErrorIs(t, err, ErrNoSink)

	_, err = NewService(store, &recordingSink{}).Export(ctx, "u1", 2025, 14)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	boom := errors.New("bucket missing")
	_, err = NewService(store, &recordingSink{err: boom}).Export(ctx, "u1", 2025, 3)
	assert.ErrorIs(t, err, boom)
}
