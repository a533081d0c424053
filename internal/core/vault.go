package core

import (
	"fmt"
	"strings"
)

// VaultType tags a vault. Business rules key off the tag; display
// attributes come from vaultTypes.
type VaultType string

const (
	Lifestyle VaultType = "Lifestyle"
	Food      VaultType = "Food"
	Emergency VaultType = "Emergency"
	Business  VaultType = "Business"
	Bills     VaultType = "Bills"
	Custom    VaultType = "Custom"
)

// VaultTypeInfo holds the display attributes of a vault type.
type VaultTypeInfo struct {
	Label string
	Icon  string
	// LimitChecked is false for types that never raise LimitExceeded.
	LimitChecked bool
}

var vaultTypes = map[VaultType]VaultTypeInfo{
	Lifestyle: {Label: "Lifestyle", Icon: "sparkles", LimitChecked: true},
	Food:      {Label: "Food", Icon: "utensils", LimitChecked: true},
	Emergency: {Label: "Emergency", Icon: "shield-alert", LimitChecked: true},
	Business:  {Label: "Business", Icon: "briefcase", LimitChecked: true},
	Bills:     {Label: "Bills", Icon: "receipt", LimitChecked: true},
	Custom:    {Label: "Custom", Icon: "wallet", LimitChecked: false},
}

// VaultTypes lists every vault type in display order.
func VaultTypes() []VaultType {
	return []VaultType{Lifestyle, Food, Emergency, Business, Bills, Custom}
}

// ParseVaultType matches s case-insensitively against the known types.
func ParseVaultType(s string) (VaultType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range VaultTypes() {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

func (t VaultType) IsValid() bool {
	_, ok := vaultTypes[t]
	return ok
}

func (t VaultType) Info() VaultTypeInfo {
	return vaultTypes[t]
}

func (t VaultType) IsEmergency() bool { return t == Emergency }

// Vault is a named spending partition owned by one identity.
type Vault struct {
	ID               string
	OwnerID          string
	Type             VaultType
	Name             string
	Icon             string
	Limit            Money
	Spent            Money
	IsLocked         bool
	PIN              string
	BiometricEnabled bool
}

// Utilization thresholds, in percent.
const (
	HighUtilization      = 85.0
	OverspentUtilization = 100.0
)

func (v Vault) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidVault)
	}
	if !v.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidVault, v.Type)
	}
	if v.Limit.Cents <= 0 {
		return ErrInvalidLimit
	}
	if v.Spent.Cents < 0 {
		return fmt.Errorf("%w: negative spent", ErrInvalidVault)
	}
	return nil
}

// DisplayName is the custom name, or the type label.
func (v Vault) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Type.Info().Label
}

// DisplayIcon is the custom icon, or the type icon.
func (v Vault) DisplayIcon() string {
	if v.Icon != "" {
		return v.Icon
	}
	return v.Type.Info().Icon
}

// HasPIN reports whether unlocking requires a PIN.
func (v Vault) HasPIN() bool { return v.PIN != "" }

// Remaining is limit-spent, floored at zero.
func (v Vault) Remaining() Money {
	return MaxMoney(v.Limit.Sub(v.Spent), Money{})
}

// Utilization returns spent as a percentage of the limit.
func (v Vault) Utilization() float64 {
	if v.Limit.Cents <= 0 {
		return 0
	}
	return float64(v.Spent.Cents) / float64(v.Limit.Cents) * 100
}

// UtilizationLevel buckets Utilization into "normal", "high" or "overspent".
func (v Vault) UtilizationLevel() string {
	u := v.Utilization()
	switch {
	case u > OverspentUtilization:
		return "overspent"
	case u > HighUtilization:
		return "high"
	default:
		return "normal"
	}
}

// ValidateVaultSet checks a full vault list: each vault valid, unique ids
// and at most one Emergency vault.
func ValidateVaultSet(vaults []Vault) error {
	seen := make(map[string]struct{}, len(vaults))
	emergency := 0
	for _, v := range vaults {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("vault %s: %w", v.ID, err)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidVault, v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.Type.IsEmergency() {
			emergency++
		}
	}
	if emergency > 1 {
		return fmt.Errorf("%w: more than one emergency vault", ErrInvalidVault)
	}
	return nil
}

// FindVault returns the index of the vault with id, or -1.
func FindVault(vaults []Vault, id string) int {
	for i := range vaults {
		if vaults[i].ID == id {
			return i
		}
	}
	return -1
}

// CloneVaults copies a vault slice.
func CloneVaults(vaults []Vault) []Vault {
	out := make([]Vault, len(vaults))
	copy(out, vaults)
	return out
}
