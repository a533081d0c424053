package services

import (
	"time"

	"thinkpay/internal/core"
)

// UnlockState is the PIN confirmation state of one vault.
type UnlockState string

const (
	UnlockIdle        UnlockState = "idle"
	UnlockAwaitingPIN UnlockState = "awaiting_pin"
	UnlockPINRejected UnlockState = "pin_rejected"
)

// PINPolicy bounds PIN retries. A zero MaxAttempts allows unlimited retries.
type PINPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

type unlockAttempt struct {
	state     UnlockState
	input     string
	failures  int
	coolUntil time.Time
}

// UnlockStatus reports the PIN confirmation state of a vault.
func (s *Session) UnlockStatus(vaultID string) UnlockState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.unlock[vaultID]; ok {
		return a.state
	}
	return UnlockIdle
}

func (s *Session) attempt(vaultID string) *unlockAttempt {
	a, ok := s.unlock[vaultID]
	if !ok {
		a = &unlockAttempt{state: UnlockIdle}
		s.unlock[vaultID] = a
	}
	return a
}

// awaitPIN moves a vault to AwaitingPIN and clears any previous input.
func (p PINPolicy) awaitPIN(a *unlockAttempt, now time.Time) error {
	if p.coolingDown(a, now) {
		return core.ErrPINCooldown
	}
	a.state = UnlockAwaitingPIN
	a.input = ""
	return nil
}

func (p PINPolicy) coolingDown(a *unlockAttempt, now time.Time) bool {
	return p.MaxAttempts > 0 && now.Before(a.coolUntil)
}

// check compares pin with the vault PIN by exact string equality.
func (p PINPolicy) check(a *unlockAttempt, v core.Vault, pin string, now time.Time) error {
	if a.state != UnlockAwaitingPIN && a.state != UnlockPINRejected {
		return core.ErrNotAwaitingPIN
	}
	if p.coolingDown(a, now) {
		return core.ErrPINCooldown
	}
	a.input = pin
	if a.input == v.PIN {
		return nil
	}

	a.state = UnlockPINRejected
	a.input = ""
	a.failures++
	if p.MaxAttempts > 0 && a.failures >= p.MaxAttempts {
		a.failures = 0
		a.coolUntil = now.Add(p.Cooldown)
	}
	return core.ErrPINRejected
}

func (a *unlockAttempt) reset() {
	a.state = UnlockIdle
	a.input = ""
}
