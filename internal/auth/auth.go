// Package auth registers identities, verifies passwords and issues signed
// session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmptyUsername      = errors.New("username is required")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Identity is a signed-in user.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// Store is the part of the ledger auth writes to.
type Store interface {
	ledger.CredentialStore
	ledger.ProfileStore
	ledger.VaultStore
	ledger.NotificationStore
	ledger.RevocationStore
	ledger.Purger
}

// Config configures token issuing.
type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	Issuer     string
	BcryptCost int
}

// Listener is told when an identity signs in or out.
type Listener func(ctx context.Context, id Identity, signedIn bool)

// Provider is the authentication provider.
type Provider struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu        sync.Mutex
	listeners []Listener
}

func NewProvider(store Store, cfg Config) (*Provider, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth secret must be at least 16 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "thinkpay"
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Provider{store: store, cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the provider clock.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// OnIdentityChange registers fn for sign-in and sign-out events.
func (p *Provider) OnIdentityChange(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Provider) emit(ctx context.Context, id Identity, signedIn bool) {
	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(ctx, id, signedIn)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates the credential, the profile, the default vault set and
// a welcome notification. When the profile or the vaults cannot be stored,
// everything written for the new identity is purged so the email can be
// registered again.
func (p *Provider) Register(ctx context.Context, username, email, password string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Identity{}, ErrEmptyUsername
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return Identity{}, err
	}
	if len(password) < minPasswordLength {
		return Identity{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	now := p.now()
	id := Identity{UserID: uuid.NewString(), Username: username, Email: email}
	err = p.store.CreateCredential(ctx, ledger.Credential{
		UserID:       id.UserID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if errors.Is(err, ledger.ErrConflict) {
		return Identity{}, ErrEmailTaken
	}
	if err != nil {
		return Identity{}, ledger.ClassifyError("register", fmt.Errorf("create credential: %w", err))
	}

	if err := p.seedLedger(ctx, id, now); err != nil {
		if perr := p.store.PurgeUser(context.WithoutCancel(ctx), id.UserID); perr != nil {
			slog.ErrorContext(ctx, "Failed to purge partial registration", "user_id", id.UserID, "error", perr)
		}
		return Identity{}, ledger.ClassifyError("register", err)
	}
	if _, err := p.store.AppendNotification(ctx, id.UserID, core.NotificationDraft{
		Title:    "Cloud Identity Established",
		Message:  "Your biometric-ready vaults are synced and ready for deployment.",
		Priority: core.PriorityNormal,
	}); err != nil {
		slog.WarnContext(ctx, "Failed to append welcome notification", "user_id", id.UserID, "error", err)
	}

	slog.InfoContext(ctx, "Identity registered", "user_id", id.UserID)
	return id, nil
}

func (p *Provider) seedLedger(ctx context.Context, id Identity, now time.Time) error {
	if err := p.store.CreateProfile(ctx, core.NewProfile(id.UserID, id.Username, id.Email, now)); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	if err := p.store.ReplaceVaults(ctx, id.UserID, core.DefaultVaults(id.UserID)); err != nil {
		return fmt.Errorf("seed vaults: %w", err)
	}
	return nil
}

// Verify checks the password and returns the identity with a fresh token.
func (p *Provider) Verify(ctx context.Context, email, password string) (Identity, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Identity{}, "", ErrInvalidCredentials
	}
	cred, err := p.store.GetCredentialByEmail(ctx, email)
	if errors.Is(err, ledger.ErrNotFound) {
		return Identity{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, "", ledger.ClassifyError("verify", fmt.Errorf("get credential: %w", err))
	}
	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return Identity{}, "", ErrInvalidCredentials
	}

	profile, err := p.store.GetProfile(ctx, cred.UserID)
	if err != nil {
		return Identity{}, "", ledger.ClassifyError("verify", fmt.Errorf("get profile: %w", err))
	}
	token, _, err := generateToken(cred.UserID, cred.Email, p.cfg.Secret, p.cfg.Issuer, p.now(), p.cfg.TokenTTL)
	if err != nil {
		return Identity{}, "", err
	}

	id := Identity{UserID: cred.UserID, Username: profile.Username, Email: cred.Email}
	p.emit(ctx, id, true)
	return id, token, nil
}

// CurrentIdentity resolves a token issued by Verify and not logged out.
func (p *Provider) CurrentIdentity(ctx context.Context, token string) (Identity, error) {
	claims, err := parseToken(token, p.cfg.Secret, p.now)
	if err != nil {
		return Identity{}, err
	}
	revoked, err := p.store.IsTokenRevoked(ctx, claims.ID, p.now())
	if err != nil {
		return Identity{}, ledger.ClassifyError("current identity", fmt.Errorf("check revocation: %w", err))
	}
	if revoked {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Logout revokes the token in the store until it expires, so every server
// sharing the store rejects it.
func (p *Provider) Logout(ctx context.Context, token string) error {
	claims, err := parseToken(token, p.cfg.Secret, p.now)
	if err != nil {
		return err
	}
	if err := p.store.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return ledger.ClassifyError("logout", fmt.Errorf("revoke token: %w", err))
	}

	p.emit(ctx, Identity{UserID: claims.UserID, Email: claims.Email}, false)
	return nil
}
