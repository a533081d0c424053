package core

import (
	"fmt"
	"time"
)

// Registration defaults.
var (
	DefaultTotalBudget    = Units(100000)
	DefaultCurrentBalance = Units(50000)
)

// DefaultEmergencyPIN protects the seeded Emergency vault.
const DefaultEmergencyPIN = "1234"

type vaultSeed struct {
	typ    VaultType
	limit  Money
	locked bool
	pin    string
}

var initialVaults = []vaultSeed{
	{typ: Lifestyle, limit: Units(10000)},
	{typ: Food, limit: Units(5000)},
	{typ: Emergency, limit: Units(20000), locked: true, pin: DefaultEmergencyPIN},
	{typ: Business, limit: Units(15000)},
	{typ: Bills, limit: Units(8000)},
}

// DefaultVaults returns the vault set seeded at registration.
// Ids are stable per owner: "<owner>-v1" through "<owner>-v5".
func DefaultVaults(ownerID string) []Vault {
	out := make([]Vault, 0, len(initialVaults))
	for i, s := range initialVaults {
		out = append(out, Vault{
			ID:       fmt.Sprintf("%s-v%d", ownerID, i+1),
			OwnerID:  ownerID,
			Type:     s.typ,
			Limit:    s.limit,
			IsLocked: s.locked,
			PIN:      s.pin,
		})
	}
	return out
}

// NewProfile returns the profile seeded at registration.
func NewProfile(id, username, email string, now time.Time) User {
	return User{
		ID:             id,
		Username:       username,
		Email:          email,
		CreatedAt:      now,
		TotalBudget:    DefaultTotalBudget,
		CurrentBalance: DefaultCurrentBalance,
	}
}
