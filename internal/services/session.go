package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// Session is the working copy of one identity's ledger. The vault engine
// and the payment orchestrator mutate it under its mutex, so requests for
// one user are serialized while different users proceed independently.
type Session struct {
	mu sync.Mutex

	UserID        string
	User          core.User
	Vaults        []core.Vault
	Transactions  []core.Transaction
	Notifications []core.Notification

	unlock  map[string]*unlockAttempt
	payment *PaymentFlow
}

// NewSession builds a session from already loaded records.
func NewSession(user core.User, vaults []core.Vault, txs []core.Transaction, notes []core.Notification) *Session {
	return &Session{
		UserID:        user.ID,
		User:          user,
		Vaults:        vaults,
		Transactions:  txs,
		Notifications: notes,
		unlock:        make(map[string]*unlockAttempt),
	}
}

// Derived recomputes reserved funds, spendable balance and budget progress.
func (s *Session) Derived() core.Derived {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derived()
}

func (s *Session) derived() core.Derived {
	return core.ComputeDerived(s.User, s.Vaults)
}

// Snapshot is a consistent read-only copy of a session.
type Snapshot struct {
	User          core.User
	Vaults        []core.Vault
	Derived       core.Derived
	Transactions  []core.Transaction
	Notifications []core.Notification
	Payment       *PaymentFlow
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		User:          s.User,
		Vaults:        core.CloneVaults(s.Vaults),
		Derived:       s.derived(),
		Transactions:  slices.Clone(s.Transactions),
		Notifications: slices.Clone(s.Notifications),
	}
	if s.payment != nil {
		p := s.payment.clone()
		snap.Payment = &p
	}
	return snap
}

// SessionStore is what a SessionManager reads from.
type SessionStore interface {
	ledger.ProfileStore
	ledger.VaultStore
	ledger.TransactionStore
	ledger.NotificationStore
}

// SessionManager keeps one Session per signed-in identity.
type SessionManager struct {
	store SessionStore

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(store SessionStore) *SessionManager {
	return &SessionManager{
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Load reads the identity's records from the store and replaces any cached
// session.
func (m *SessionManager) Load(ctx context.Context, userID string) (*Session, error) {
	var (
		user   core.User
		vaults []core.Vault
		txs    []core.Transaction
		notes  []core.Notification
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = m.store.GetProfile(gctx, userID)
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vaults, err = m.store.ListVaults(gctx, userID)
		if err != nil {
			return fmt.Errorf("list vaults: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txs, err = m.store.ListTransactions(gctx, userID, ledger.DefaultTransactionLimit)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		notes, err = m.store.ListNotifications(gctx, userID)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, ledger.ClassifyError("load session", err)
	}

	s := NewSession(user, vaults, txs, notes)
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()

	slog.InfoContext(ctx, "Session loaded",
		"user_id", userID,
		"vaults", len(vaults),
		"transactions", len(txs))
	return s, nil
}

// Get returns the cached session, loading it on first use.
func (m *SessionManager) Get(ctx context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	return m.Load(ctx, userID)
}

// Drop forgets the session of userID.
func (m *SessionManager) Drop(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// Len returns the number of cached sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdentityChanged loads the session on sign-in and drops it on sign-out.
func (m *SessionManager) IdentityChanged(ctx context.Context, userID string, signedIn bool) {
	if !signedIn {
		m.Drop(userID)
		return
	}
	if _, err := m.Load(ctx, userID); err != nil {
		slog.WarnContext(ctx, "Failed to preload session", "user_id", userID, "error", err)
	}
}
