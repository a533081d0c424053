// Package storage implements the ledger store over database/sql. The same
// queries serve SQLite (modernc) and Postgres (pgx); only placeholders,
// migrations and error classification differ between the two.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// Dialect selects placeholder style and error mapping.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Repository is a ledger.Store backed by a SQL database.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ ledger.Store = (*Repository)(nil)

// NewRepository wraps an already migrated database.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect, now: time.Now}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isPermissionError(r.dialect, err) {
		err = errors.Join(ledger.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Profiles

func (r *Repository) GetProfile(ctx context.Context, userID string) (core.User, error) {
	var (
		u         core.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT id, username, email, created_at, total_budget_cents, current_balance_cents
		 FROM users WHERE id = ?`), userID).
		Scan(&u.ID, &u.Username, &u.Email, &createdAt, &u.TotalBudget.Cents, &u.CurrentBalance.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.User{}, r.wrap("get profile", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (r *Repository) CreateProfile(ctx context.Context, u core.User) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO users (id, username, email, created_at, total_budget_cents, current_balance_cents)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		u.ID, u.Username, u.Email, toMillis(u.CreatedAt), u.TotalBudget.Cents, u.CurrentBalance.Cents)
	if err != nil {
		return r.wrap("create profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrConflict
	}
	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, userID string, upd ledger.ProfileUpdate) (core.User, error) {
	var (
		sets []string
		args []any
	)
	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.TotalBudget != nil {
		sets = append(sets, "total_budget_cents = ?")
		args = append(args, upd.TotalBudget.Cents)
	}
	if upd.CurrentBalance != nil {
		sets = append(sets, "current_balance_cents = ?")
		args = append(args, upd.CurrentBalance.Cents)
	}
	if len(sets) > 0 {
		args = append(args, userID)
		res, err := r.db.ExecContext(ctx,
			r.rebind("UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
		if err != nil {
			return core.User{}, r.wrap("update profile", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.User{}, ledger.ErrNotFound
		}
	}
	return r.GetProfile(ctx, userID)
}

// claimOp records opID for userID and kind inside tx. It reports false when
// the op was already applied.
func (r *Repository) claimOp(ctx context.Context, tx *sql.Tx, userID, opID, kind string) (bool, error) {
	res, err := tx.ExecContext(ctx, r.rebind(
		`INSERT INTO applied_ops (owner_id, op_id, kind, applied_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_id, op_id, kind) DO NOTHING`),
		userID, opID, kind, toMillis(r.now()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) AdjustBalance(ctx context.Context, userID, opID string, delta core.Money) (core.User, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		fresh, err := r.claimOp(ctx, tx, userID, opID, "balance")
		if err != nil || !fresh {
			return err
		}
		res, err := tx.ExecContext(ctx, r.rebind(
			`UPDATE users SET current_balance_cents = current_balance_cents + ? WHERE id = ?`),
			delta.Cents, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ledger.ErrNotFound) {
		return core.User{}, err
	}
	if err != nil {
		return core.User{}, r.wrap("adjust balance", err)
	}
	return r.GetProfile(ctx, userID)
}

// Vaults

func (r *Repository) ListVaults(ctx context.Context, userID string) ([]core.Vault, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, owner_id, type, name, icon, limit_cents, spent_cents, is_locked, pin, biometric_enabled
		 FROM vaults WHERE owner_id = ? ORDER BY position`), userID)
	if err != nil {
		return nil, r.wrap("list vaults", err)
	}
	defer rows.Close()

	vaults := []core.Vault{}
	for rows.Next() {
		var (
			v   core.Vault
			typ string
		)
		if err := rows.Scan(&v.ID, &v.OwnerID, &typ, &v.Name, &v.Icon, &v.Limit.Cents, &v.Spent.Cents,
			&v.IsLocked, &v.PIN, &v.BiometricEnabled); err != nil {
			return nil, r.wrap("scan vault", err)
		}
		v.Type = core.VaultType(typ)
		vaults = append(vaults, v)
	}
	return vaults, r.wrap("iterate vaults", rows.Err())
}

func (r *Repository) ReplaceVaults(ctx context.Context, userID string, vaults []core.Vault) error {
	if err := core.ValidateVaultSet(vaults); err != nil {
		return fmt.Errorf("replace vaults: %w", err)
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM vaults WHERE owner_id = ?`), userID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, r.rebind(
			`INSERT INTO vaults (owner_id, id, position, type, name, icon, limit_cents, spent_cents, is_locked, pin, biometric_enabled)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, v := range vaults {
			if _, err := stmt.ExecContext(ctx, userID, v.ID, i, string(v.Type), v.Name, v.Icon,
				v.Limit.Cents, v.Spent.Cents, v.IsLocked, v.PIN, v.BiometricEnabled); err != nil {
				return err
			}
		}
		return nil
	})
	return r.wrap("replace vaults", err)
}

func (r *Repository) UpdateVault(ctx context.Context, userID, vaultID string, patch ledger.VaultPatch) (core.Vault, error) {
	var (
		sets []string
		args []any
	)
	if patch.IsLocked != nil {
		sets = append(sets, "is_locked = ?")
		args = append(args, *patch.IsLocked)
	}
	if patch.Limit != nil {
		if patch.Limit.Cents <= 0 {
			return core.Vault{}, core.ErrInvalidLimit
		}
		sets = append(sets, "limit_cents = ?")
		args = append(args, patch.Limit.Cents)
	}
	if len(sets) > 0 {
		args = append(args, userID, vaultID)
		res, err := r.db.ExecContext(ctx,
			r.rebind("UPDATE vaults SET "+strings.Join(sets, ", ")+" WHERE owner_id = ? AND id = ?"), args...)
		if err != nil {
			return core.Vault{}, r.wrap("update vault", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.Vault{}, ledger.ErrNotFound
		}
	}

	vaults, err := r.ListVaults(ctx, userID)
	if err != nil {
		return core.Vault{}, err
	}
	i := core.FindVault(vaults, vaultID)
	if i < 0 {
		return core.Vault{}, ledger.ErrNotFound
	}
	return vaults[i], nil
}

func (r *Repository) DebitVaults(ctx context.Context, userID, opID string, debits []core.Allocation) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		fresh, err := r.claimOp(ctx, tx, userID, opID, "debit")
		if err != nil || !fresh {
			return err
		}
		for _, d := range debits {
			res, err := tx.ExecContext(ctx, r.rebind(
				`UPDATE vaults SET spent_cents = spent_cents + ? WHERE owner_id = ? AND id = ?`),
				d.Amount.Cents, userID, d.VaultID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("debit vault %s: %w", d.VaultID, ledger.ErrNotFound)
			}
		}
		return nil
	})
	if errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	return r.wrap("debit vaults", err)
}

// Transactions

func (r *Repository) ListTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, amount_cents, merchant, category, status, gateway, explanation, created_at
		 FROM transactions WHERE owner_id = ? ORDER BY created_at DESC, id LIMIT ?`),
		userID, ledger.NormalizeLimit(limit))
	if err != nil {
		return nil, r.wrap("list transactions", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	index := map[string]int{}
	for rows.Next() {
		var (
			tx              core.Transaction
			status, gateway string
			createdAt       int64
		)
		if err := rows.Scan(&tx.ID, &tx.Amount.Cents, &tx.Merchant, &tx.Category, &status, &gateway,
			&tx.Explanation, &createdAt); err != nil {
			return nil, r.wrap("scan transaction", err)
		}
		tx.Status = core.TxStatus(status)
		tx.Gateway = core.Gateway(gateway)
		tx.Timestamp = fromMillis(createdAt)
		index[tx.ID] = len(txs)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("iterate transactions", err)
	}
	rows.Close()
	if len(txs) == 0 {
		return txs, nil
	}

	ids := make([]any, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	arows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT transaction_id, vault_id, amount_cents FROM transaction_allocations
		 WHERE transaction_id IN (`+placeholders(len(ids))+`) ORDER BY transaction_id, position`), ids...)
	if err != nil {
		return nil, r.wrap("list allocations", err)
	}
	defer arows.Close()
	for arows.Next() {
		var (
			txID string
			a    core.Allocation
		)
		if err := arows.Scan(&txID, &a.VaultID, &a.Amount.Cents); err != nil {
			return nil, r.wrap("scan allocation", err)
		}
		if i, ok := index[txID]; ok {
			txs[i].Allocations = append(txs[i].Allocations, a)
		}
	}
	return txs, r.wrap("iterate allocations", arows.Err())
}

func (r *Repository) AppendTransaction(ctx context.Context, userID string, t core.Transaction) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.rebind(
			`INSERT INTO transactions (id, owner_id, amount_cents, merchant, category, status, gateway, explanation, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
			t.ID, userID, t.Amount.Cents, t.Merchant, t.Category, string(t.Status), string(t.Gateway),
			t.Explanation, toMillis(t.Timestamp))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrConflict
		}
		for i, a := range t.Allocations {
			if _, err := tx.ExecContext(ctx, r.rebind(
				`INSERT INTO transaction_allocations (transaction_id, position, vault_id, amount_cents)
				 VALUES (?, ?, ?, ?)`), t.ID, i, a.VaultID, a.Amount.Cents); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ledger.ErrConflict) {
		return err
	}
	if err != nil {
		return r.wrap("append transaction", err)
	}
	slog.DebugContext(ctx, "Transaction stored",
		"backend", r.dialect.String(),
		"id", t.ID,
		"amount_cents", t.Amount.Cents)
	return nil
}

// Notifications

func (r *Repository) ListNotifications(ctx context.Context, userID string) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, title, message, priority, created_at, is_read
		 FROM notifications WHERE owner_id = ? ORDER BY created_at DESC, id`), userID)
	if err != nil {
		return nil, r.wrap("list notifications", err)
	}
	defer rows.Close()

	out := []core.Notification{}
	for rows.Next() {
		var (
			n         core.Notification
			priority  string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &priority, &createdAt, &n.Read); err != nil {
			return nil, r.wrap("scan notification", err)
		}
		n.Priority = core.Priority(priority)
		n.Timestamp = fromMillis(createdAt)
		out = append(out, n)
	}
	return out, r.wrap("iterate notifications", rows.Err())
}

func (r *Repository) MarkNotificationsRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE notifications SET is_read = TRUE WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`)`), args...)
	return r.wrap("mark notifications read", err)
}

func (r *Repository) AppendNotification(ctx context.Context, userID string, d core.NotificationDraft) (core.Notification, error) {
	if err := d.Validate(); err != nil {
		return core.Notification{}, err
	}
	n := core.Notification{
		ID:        uuid.NewString(),
		Title:     d.Title,
		Message:   d.Message,
		Priority:  d.Priority,
		Timestamp: r.now().UTC().Truncate(time.Millisecond),
	}
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO notifications (id, owner_id, title, message, priority, created_at, is_read)
		 VALUES (?, ?, ?, ?, ?, ?, FALSE)`),
		n.ID, userID, n.Title, n.Message, string(n.Priority), toMillis(n.Timestamp))
	if err != nil {
		return core.Notification{}, r.wrap("append notification", err)
	}
	return n, nil
}

// Revenue

func (r *Repository) ListRevenue(ctx context.Context, userID string) ([]core.Revenue, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, amount_cents, source, created_at FROM revenue
		 WHERE owner_id = ? ORDER BY created_at DESC, id`), userID)
	if err != nil {
		return nil, r.wrap("list revenue", err)
	}
	defer rows.Close()

	out := []core.Revenue{}
	for rows.Next() {
		var (
			rec       core.Revenue
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Amount.Cents, &rec.Source, &createdAt); err != nil {
			return nil, r.wrap("scan revenue", err)
		}
		rec.Timestamp = fromMillis(createdAt)
		out = append(out, rec)
	}
	return out, r.wrap("iterate revenue", rows.Err())
}

func (r *Repository) AppendRevenue(ctx context.Context, userID string, rec core.Revenue) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO revenue (id, owner_id, amount_cents, source, created_at) VALUES (?, ?, ?, ?, ?)`),
		rec.ID, userID, rec.Amount.Cents, rec.Source, toMillis(rec.Timestamp))
	return r.wrap("append revenue", err)
}

// Autopays

func (r *Repository) ListAutopays(ctx context.Context, userID string) ([]core.Autopay, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, owner_id, name, amount_cents, due_date, vault_id, status, frequency, last_run
		 FROM autopays WHERE owner_id = ? ORDER BY due_date, id`), userID)
	if err != nil {
		return nil, r.wrap("list autopays", err)
	}
	defer rows.Close()

	out := []core.Autopay{}
	for rows.Next() {
		var (
			a                      core.Autopay
			due, status, frequency string
			lastRun                int64
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Amount.Cents, &due, &a.VaultID, &status,
			&frequency, &lastRun); err != nil {
			return nil, r.wrap("scan autopay", err)
		}
		d, err := core.ParseDate(due)
		if err != nil {
			return nil, fmt.Errorf("parse due date of autopay %s: %w", a.ID, err)
		}
		a.DueDate = d
		a.Status = core.AutopayStatus(status)
		a.Frequency = core.Frequency(frequency)
		a.LastRun = fromMillis(lastRun)
		out = append(out, a)
	}
	return out, r.wrap("iterate autopays", rows.Err())
}

func (r *Repository) SaveAutopay(ctx context.Context, userID string, a core.Autopay) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO autopays (id, owner_id, name, amount_cents, due_date, vault_id, status, frequency, last_run)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   amount_cents = excluded.amount_cents,
		   due_date = excluded.due_date,
		   vault_id = excluded.vault_id,
		   status = excluded.status,
		   frequency = excluded.frequency,
		   last_run = excluded.last_run`),
		a.ID, userID, a.Name, a.Amount.Cents, a.DueDate.String(), a.VaultID, string(a.Status),
		string(a.Frequency), toMillis(a.LastRun))
	return r.wrap("save autopay", err)
}

func (r *Repository) ListAutopayOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT DISTINCT owner_id FROM autopays WHERE status = ? ORDER BY owner_id`),
		string(core.AutopayActive))
	if err != nil {
		return nil, r.wrap("list autopay owners", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.wrap("scan autopay owner", err)
		}
		owners = append(owners, id)
	}
	return owners, r.wrap("iterate autopay owners", rows.Err())
}

// Credentials

func (r *Repository) CreateCredential(ctx context.Context, c ledger.Credential) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO credentials (email, user_id, password_hash, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`),
		strings.ToLower(strings.TrimSpace(c.Email)), c.UserID, c.PasswordHash, toMillis(c.CreatedAt))
	if err != nil {
		return r.wrap("create credential", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrConflict
	}
	return nil
}

func (r *Repository) GetCredentialByEmail(ctx context.Context, email string) (ledger.Credential, error) {
	var (
		c         ledger.Credential
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT email, user_id, password_hash, created_at FROM credentials WHERE email = ?`),
		strings.ToLower(strings.TrimSpace(email))).
		Scan(&c.Email, &c.UserID, &c.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Credential{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Credential{}, r.wrap("get credential", err)
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// Revocations

func (r *Repository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM revoked_tokens WHERE expires_at < ?`),
			toMillis(r.now())); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, r.rebind(
			`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
			 ON CONFLICT (jti) DO UPDATE SET expires_at = excluded.expires_at`),
			jti, toMillis(expiresAt))
		return err
	})
	return r.wrap("revoke token", err)
}

func (r *Repository) IsTokenRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ? AND expires_at >= ?`), jti, toMillis(now)).Scan(&n)
	if err != nil {
		return false, r.wrap("check revoked token", err)
	}
	return n > 0, nil
}

// PurgeUser deletes every row owned by userID in one transaction.
func (r *Repository) PurgeUser(ctx context.Context, userID string) error {
	stmts := []string{
		`DELETE FROM transaction_allocations WHERE transaction_id IN (SELECT id FROM transactions WHERE owner_id = ?)`,
		`DELETE FROM transactions WHERE owner_id = ?`,
		`DELETE FROM notifications WHERE owner_id = ?`,
		`DELETE FROM vaults WHERE owner_id = ?`,
		`DELETE FROM revenue WHERE owner_id = ?`,
		`DELETE FROM autopays WHERE owner_id = ?`,
		`DELETE FROM applied_ops WHERE owner_id = ?`,
		`DELETE FROM credentials WHERE user_id = ?`,
		`DELETE FROM users WHERE id = ?`,
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, r.rebind(q), userID); err != nil {
				return err
			}
		}
		return nil
	})
	return r.wrap("purge user", err)
}
