package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
	"thinkpay/internal/ledger/memory"
	"thinkpay/internal/oracle"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fixedOracle answers every categorization with the same vault type.
type fixedOracle struct {
	category string
	vault    core.VaultType
	calls    int
}

func (o *fixedOracle) Categorize(context.Context, string, core.Money) oracle.Categorization {
	o.calls++
	return oracle.Categorization{Category: o.category, Confidence: 0.9, SuggestedVault: o.vault, Explanation: "test"}
}

func (o *fixedOracle) MonthlyInsights(context.Context, []core.Transaction, []core.Vault) oracle.Insights {
	o.calls++
	return oracle.Insights{Tips: []string{"tip"}, Summary: "summary", SavingsPotential: "₹10"}
}

// recordingOutbox keeps every enqueued write.
type recordingOutbox struct {
	mu     sync.Mutex
	writes []ledger.Write
}

func (o *recordingOutbox) Enqueue(_ context.Context, w ledger.Write) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, w)
	return nil
}

func (o *recordingOutbox) drain() []ledger.Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.writes
	o.writes = nil
	return out
}

func (o *recordingOutbox) kinds() []ledger.WriteKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []ledger.WriteKind
	for _, w := range o.writes {
		out = append(out, w.Kind)
	}
	return out
}

// flakyStore fails the selected operations.
type flakyStore struct {
	*memory.Store
	failTx, failVaults, failNotes bool
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyStore) AppendTransaction(ctx context.Context, userID string, tx core.Transaction) error {
	if f.failTx {
		return errStoreDown
	}
	return f.Store.AppendTransaction(ctx, userID, tx)
}

func (f *flakyStore) ReplaceVaults(ctx context.Context, userID string, v []core.Vault) error {
	if f.failVaults {
		return errStoreDown
	}
	return f.Store.ReplaceVaults(ctx, userID, v)
}

func (f *flakyStore) UpdateVault(ctx context.Context, userID, vaultID string, patch ledger.VaultPatch) (core.Vault, error) {
	if f.failVaults {
		return core.Vault{}, errStoreDown
	}
	return f.Store.UpdateVault(ctx, userID, vaultID, patch)
}

func (f *flakyStore) DebitVaults(ctx context.Context, userID, opID string, debits []core.Allocation) error {
	if f.failVaults {
		return errStoreDown
	}
	return f.Store.DebitVaults(ctx, userID, opID, debits)
}

func (f *flakyStore) AppendNotification(ctx context.Context, userID string, d core.NotificationDraft) (core.Notification, error) {
	if f.failNotes {
		return core.Notification{}, errStoreDown
	}
	return f.Store.AppendNotification(ctx, userID, d)
}

// fixture wires the services over one store.
type fixture struct {
	store    ledger.Store
	outbox   *recordingOutbox
	oracle   *fixedOracle
	sessions *SessionManager
	engine   *VaultEngine
	payments *Orchestrator
}

func newFixture(t *testing.T, store ledger.Store) *fixture {
	t.Helper()
	outbox := &recordingOutbox{}
	persister := NewPersister(store, outbox)
	o := &fixedOracle{category: "Dining", vault: core.Food}
	clock := func() time.Time { return testNow }
	return &fixture{
		store:    store,
		outbox:   outbox,
		oracle:   o,
		sessions: NewSessionManager(store),
		engine:   NewVaultEngine(store, persister, PINPolicy{}).WithClock(clock),
		payments: NewOrchestrator(o, store, persister).WithClock(clock),
	}
}

// seed stores a profile with the registration vault template and loads its
// session.
func (f *fixture) seed(t *testing.T, userID string) *Session {
	t.Helper()
	return f.seedWith(t, userID, core.DefaultVaults(userID))
}

func (f *fixture) seedWith(t *testing.T, userID string, vaults []core.Vault) *Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.CreateProfile(ctx, core.NewProfile(userID, "asha", userID+"@example.com", testNow)))
	require.NoError(t, f.store.ReplaceVaults(ctx, userID, vaults))
	s, err := f.sessions.Load(ctx, userID)
	require.NoError(t, err)
	return s
}

func vaultByType(s *Session, typ core.VaultType) core.Vault {
	for _, v := range s.Vaults {
		if v.Type == typ {
			return v
		}
	}
	return core.Vault{}
}

func countTitled(notes []core.Notification, title string) int {
	n := 0
	for _, note := range notes {
		if note.Title == title {
			n++
		}
	}
	return n
}
