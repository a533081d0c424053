// Package statement builds monthly CSV statements of an identity's
// transactions and hands them to a delivery sink.
package statement

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// maxStatementRows bounds the transactions read for one statement.
const maxStatementRows = 10000

var (
	ErrInvalidPeriod = errors.New("invalid statement period")
	ErrNoSink        = errors.New("statement export is not configured")
)

// Header is the column layout of the CSV statement.
var Header = []string{"date", "transaction_id", "merchant", "category", "amount", "gateway", "status", "allocations"}

// Statement is one month of transactions for one identity.
type Statement struct {
	UserID       string
	Year         int
	Month        int
	Transactions []core.Transaction
	Summary      core.MonthSummary
	GeneratedAt  time.Time
}

// Build keeps the transactions of year/month in timestamp order, oldest
// first.
func Build(userID string, txs []core.Transaction, year, month int, now time.Time) (Statement, error) {
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return Statement{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidPeriod, year, month)
	}
	in := core.InMonth(txs, year, month)
	sorted := slices.Clone(in)
	slices.SortStableFunc(sorted, func(a, b core.Transaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return Statement{
		UserID:       userID,
		Year:         year,
		Month:        month,
		Transactions: sorted,
		Summary:      core.SummarizeMonth(in, year, month),
		GeneratedAt:  now.UTC(),
	}, nil
}

// Period renders the statement month as YYYY-MM.
func (s Statement) Period() string {
	return fmt.Sprintf("%04d-%02d", s.Year, s.Month)
}

// ObjectKey is the storage path of the statement file.
func (s Statement) ObjectKey() string {
	return fmt.Sprintf("statements/%s/%s.csv", s.UserID, s.Period())
}

// Rows returns the header followed by one row per transaction.
func (s Statement) Rows() [][]string {
	rows := make([][]string, 0, len(s.Transactions)+1)
	rows = append(rows, Header)
	for _, tx := range s.Transactions {
		allocs := make([]string, 0, len(tx.Allocations))
		for _, a := range tx.Allocations {
			allocs = append(allocs, a.VaultID+"="+a.Amount.String())
		}
		rows = append(rows, []string{
			tx.Timestamp.UTC().Format(time.RFC3339),
			tx.ID,
			tx.Merchant,
			tx.Category,
			tx.Amount.String(),
			string(tx.Gateway),
			string(tx.Status),
			strings.Join(allocs, ";"),
		})
	}
	return rows
}

// CSV encodes Rows as RFC 4180 CSV.
func (s Statement) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(s.Rows()); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Sink delivers a statement and returns where it landed.
type Sink interface {
	Deliver(ctx context.Context, s Statement) (location string, err error)
}

// Result describes one exported statement.
type Result struct {
	Period       string `json:"period"`
	Location     string `json:"location"`
	Transactions int    `json:"transactions"`
	Total        string `json:"total"`
}

// Service exports statements from the ledger store to a sink.
type Service struct {
	store ledger.TransactionStore
	sink  Sink
	now   func() time.Time
}

// NewService returns a service delivering to sink. A nil sink makes Export
// fail with ErrNoSink.
func NewService(store ledger.TransactionStore, sink Sink) *Service {
	return &Service{store: store, sink: sink, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Export builds and delivers the statement of userID for year/month.
func (s *Service) Export(ctx context.Context, userID string, year, month int) (Result, error) {
	if s.sink == nil {
		return Result{}, ErrNoSink
	}
	txs, err := s.store.ListTransactions(ctx, userID, maxStatementRows)
	if err != nil {
		return Result{}, fmt.Errorf("list transactions: %w", ledger.ClassifyError("list transactions", err))
	}
	st, err := Build(userID, txs, year, month, s.now())
	if err != nil {
		return Result{}, err
	}
	loc, err := s.sink.Deliver(ctx, st)
	if err != nil {
		return Result{}, fmt.Errorf("deliver statement: %w", err)
	}
	slog.InfoContext(ctx, "Statement exported",
		"user_id", userID,
		"period", st.Period(),
		"transactions", len(st.Transactions),
		"location", loc)
	return Result{
		Period:       st.Period(),
		Location:     loc,
		Transactions: len(st.Transactions),
		Total:        st.Summary.Total.String(),
	}, nil
}
