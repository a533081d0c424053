// Package memory is an in-process ledger store used for local development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

type userData struct {
	profile       *core.User
	vaults        []core.Vault
	transactions  []core.Transaction
	notifications []core.Notification
	revenue       []core.Revenue
	autopays      []core.Autopay
	applied       map[string]struct{} // "<kind>/<op id>"
}

// Store keeps every user's ledger in memory.
type Store struct {
	mu    sync.Mutex
	users map[string]*userData
	creds   map[string]ledger.Credential // keyed by lower-cased email
	revoked map[string]time.Time
	now     func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users: make(map[string]*userData),
		creds:   make(map[string]ledger.Credential),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the timestamp source for appended notifications.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) user(id string) *userData {
	u, ok := s.users[id]
	if !ok {
		u = &userData{applied: make(map[string]struct{})}
		s.users[id] = u
	}
	return u
}

// once reports whether op has not been applied yet and marks it applied.
func (u *userData) once(kind, opID string) bool {
	key := kind + "/" + opID
	if _, done := u.applied[key]; done {
		return false
	}
	u.applied[key] = struct{}{}
	return true
}

func (s *Store) GetProfile(_ context.Context, userID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.profile == nil {
		return core.User{}, ledger.ErrNotFound
	}
	return *u.profile, nil
}

func (s *Store) CreateProfile(_ context.Context, p core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(p.ID)
	if u.profile != nil {
		return ledger.ErrConflict
	}
	cp := p
	u.profile = &cp
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, userID string, upd ledger.ProfileUpdate) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.profile == nil {
		return core.User{}, ledger.ErrNotFound
	}
	if upd.Username != nil {
		u.profile.Username = *upd.Username
	}
	if upd.TotalBudget != nil {
		u.profile.TotalBudget = *upd.TotalBudget
	}
	if upd.CurrentBalance != nil {
		u.profile.CurrentBalance = *upd.CurrentBalance
	}
	return *u.profile, nil
}

func (s *Store) AdjustBalance(_ context.Context, userID, opID string, delta core.Money) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.profile == nil {
		return core.User{}, ledger.ErrNotFound
	}
	if u.once("balance", opID) {
		u.profile.CurrentBalance = u.profile.CurrentBalance.Add(delta)
	}
	return *u.profile, nil
}

func (s *Store) ListVaults(_ context.Context, userID string) ([]core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return []core.Vault{}, nil
	}
	return core.CloneVaults(u.vaults), nil
}

func (s *Store) ReplaceVaults(_ context.Context, userID string, vaults []core.Vault) error {
	if err := core.ValidateVaultSet(vaults); err != nil {
		return fmt.Errorf("replace vaults: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).vaults = core.CloneVaults(vaults)
	return nil
}

func (s *Store) UpdateVault(_ context.Context, userID, vaultID string, patch ledger.VaultPatch) (core.Vault, error) {
	if patch.Limit != nil && patch.Limit.Cents <= 0 {
		return core.Vault{}, core.ErrInvalidLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.Vault{}, ledger.ErrNotFound
	}
	i := core.FindVault(u.vaults, vaultID)
	if i < 0 {
		return core.Vault{}, ledger.ErrNotFound
	}
	if patch.IsLocked != nil {
		u.vaults[i].IsLocked = *patch.IsLocked
	}
	if patch.Limit != nil {
		u.vaults[i].Limit = *patch.Limit
	}
	return u.vaults[i], nil
}

func (s *Store) DebitVaults(_ context.Context, userID, opID string, debits []core.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ledger.ErrNotFound
	}
	idx := make([]int, len(debits))
	for j, d := range debits {
		idx[j] = core.FindVault(u.vaults, d.VaultID)
		if idx[j] < 0 {
			return fmt.Errorf("debit vault %s: %w", d.VaultID, ledger.ErrNotFound)
		}
	}
	if !u.once("debit", opID) {
		return nil
	}
	for j, d := range debits {
		u.vaults[idx[j]].Spent = u.vaults[idx[j]].Spent.Add(d.Amount)
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return []core.Transaction{}, nil
	}
	out := make([]core.Transaction, len(u.transactions))
	for i, tx := range u.transactions {
		out[i] = cloneTx(tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if n := ledger.NormalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) AppendTransaction(_ context.Context, userID string, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for _, existing := range u.transactions {
		if existing.ID == tx.ID {
			return ledger.ErrConflict
		}
	}
	u.transactions = append(u.transactions, cloneTx(tx))
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return []core.Notification{}, nil
	}
	out := append([]core.Notification(nil), u.notifications...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if out == nil {
		out = []core.Notification{}
	}
	return out, nil
}

func (s *Store) MarkNotificationsRead(_ context.Context, userID string, ids []string) error {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	for i := range u.notifications {
		if _, hit := want[u.notifications[i].ID]; hit {
			u.notifications[i].Read = true
		}
	}
	return nil
}

func (s *Store) AppendNotification(_ context.Context, userID string, d core.NotificationDraft) (core.Notification, error) {
	if err := d.Validate(); err != nil {
		return core.Notification{}, err
	}
	n := core.Notification{
		ID:        uuid.NewString(),
		Title:     d.Title,
		Message:   d.Message,
		Priority:  d.Priority,
		Timestamp: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.notifications = append(u.notifications, n)
	return n, nil
}

func (s *Store) ListRevenue(_ context.Context, userID string) ([]core.Revenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return []core.Revenue{}, nil
	}
	out := append([]core.Revenue{}, u.revenue...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *Store) AppendRevenue(_ context.Context, userID string, r core.Revenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.revenue = append(u.revenue, r)
	return nil
}

func (s *Store) ListAutopays(_ context.Context, userID string) ([]core.Autopay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return []core.Autopay{}, nil
	}
	out := append([]core.Autopay{}, u.autopays...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out, nil
}

func (s *Store) SaveAutopay(_ context.Context, userID string, a core.Autopay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	a.OwnerID = userID
	for i := range u.autopays {
		if u.autopays[i].ID == a.ID {
			u.autopays[i] = a
			return nil
		}
	}
	u.autopays = append(u.autopays, a)
	return nil
}

func (s *Store) ListAutopayOwners(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owners []string
	for id, u := range s.users {
		for _, a := range u.autopays {
			if a.Status == core.AutopayActive {
				owners = append(owners, id)
				break
			}
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *Store) CreateCredential(_ context.Context, c ledger.Credential) error {
	key := strings.ToLower(strings.TrimSpace(c.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[key]; exists {
		return ledger.ErrConflict
	}
	c.PasswordHash = append([]byte(nil), c.PasswordHash...)
	s.creds[key] = c
	return nil
}

func (s *Store) GetCredentialByEmail(_ context.Context, email string) (ledger.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return ledger.Credential{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[jti] = expiresAt
	return nil
}

func (s *Store) IsTokenRevoked(_ context.Context, jti string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[jti]
	return ok && !now.After(exp), nil
}

func (s *Store) PurgeUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	for k, c := range s.creds {
		if c.UserID == userID {
			delete(s.creds, k)
		}
	}
	return nil
}

func cloneTx(tx core.Transaction) core.Transaction {
	tx.Allocations = append([]core.Allocation(nil), tx.Allocations...)
	return tx
}
