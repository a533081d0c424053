package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDerived(t *testing.T) {
	user := User{CurrentBalance: Units(50000), TotalBudget: Units(100000)}

	t.Run("locking a vault reserves its remainder", func(t *testing.T) {
		vaults := []Vault{
			{ID: "a", Type: Emergency, Limit: Units(20000), Spent: Units(5000), IsLocked: true},
			{ID: "b", Type: Food, Limit: Units(5000), Spent: Units(1000)},
		}
		d := ComputeDerived(user, vaults)
		assert.Equal(t, Units(15000), d.ReservedFunds)
		assert.Equal(t, Units(35000), d.SpendableBalance)
		assert.Equal(t, Units(6000), d.TotalSpent)
		assert.InDelta(t, 6.0, d.BudgetProgress, 0.0001)
	})

	t.Run("overspent locked vault reserves nothing", func(t *testing.T) {
		vaults := []Vault{{ID: "a", Type: Bills, Limit: Units(100), Spent: Units(250), IsLocked: true}}
		d := ComputeDerived(user, vaults)
		assert.True(t, d.ReservedFunds.IsZero())
		assert.Equal(t, user.CurrentBalance, d.SpendableBalance)
	})

	t.Run("spendable floors at zero", func(t *testing.T) {
		poor := User{CurrentBalance: Units(100)}
		vaults := []Vault{{ID: "a", Type: Bills, Limit: Units(8000), IsLocked: true}}
		d := ComputeDerived(poor, vaults)
		assert.True(t, d.SpendableBalance.IsZero())
		assert.Zero(t, d.BudgetProgress)
	})
}

func TestValidateVaultSet(t *testing.T) {
	require.NoError(t, ValidateVaultSet(DefaultVaults("u1")))

	twoEmergency := append(DefaultVaults("u1"), Vault{ID: "x", Type: Emergency, Limit: Units(1)})
	assert.ErrorIs(t, ValidateVaultSet(twoEmergency), ErrInvalidVault)

	dup := DefaultVaults("u1")
	dup[1].ID = dup[0].ID
	assert.ErrorIs(t, ValidateVaultSet(dup), ErrInvalidVault)

	noLimit := []Vault{{ID: "a", Type: Food}}
	assert.ErrorIs(t, ValidateVaultSet(noLimit), ErrInvalidLimit)
}

func TestDefaultVaults(t *testing.T) {
	vaults := DefaultVaults("owner")
	require.Len(t, vaults, 5)
	for _, v := range vaults {
		assert.Equal(t, "owner", v.OwnerID)
		assert.True(t, strings.HasPrefix(v.ID, "owner-v"))
	}
	em := vaults[2]
	assert.Equal(t, Emergency, em.Type)
	assert.True(t, em.IsLocked)
	assert.Equal(t, DefaultEmergencyPIN, em.PIN)
	assert.Equal(t, Units(20000), em.Limit)
}

func TestVaultDisplayAndUtilization(t *testing.T) {
	v := Vault{Type: Food, Limit: Units(100), Spent: Units(90)}
	assert.Equal(t, "Food", v.DisplayName())
	assert.Equal(t, "utensils", v.DisplayIcon())
	assert.Equal(t, "high", v.UtilizationLevel())

	v.Name, v.Icon = "Groceries", "cart"
	assert.Equal(t, "Groceries", v.DisplayName())
	assert.Equal(t, "cart", v.DisplayIcon())

	v.Spent = Units(101)
	assert.Equal(t, "overspent", v.UtilizationLevel())
	v.Spent = Units(10)
	assert.Equal(t, "normal", v.UtilizationLevel())
}

func TestParseVaultTypeAndGateway(t *testing.T) {
	vt, ok := ParseVaultType(" food ")
	assert.True(t, ok)
	assert.Equal(t, Food, vt)
	_, ok = ParseVaultType("Travel")
	assert.False(t, ok)

	g, err := ParseGateway("Stripe")
	require.NoError(t, err)
	assert.Equal(t, Stripe, g)
	_, err = ParseGateway("paypal")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Amount:      Units(1200),
		Merchant:    "Cafe X",
		Allocations: []Allocation{{VaultID: "a", Amount: Units(700)}, {VaultID: "b", Amount: Units(500)}},
		Gateway:     Razorpay,
	}
	require.NoError(t, good.Validate())

	short := good
	short.Allocations = []Allocation{{VaultID: "a", Amount: Units(700)}}
	assert.ErrorIs(t, short.Validate(), ErrAllocationIncomplete)

	noMerchant := good
	noMerchant.Merchant = "  "
	assert.ErrorIs(t, noMerchant.Validate(), ErrEmptyMerchant)
}

func TestAutopayValidate(t *testing.T) {
	a := Autopay{
		Name: "Rent", Amount: Units(500), VaultID: "v5", DueDate: NewDate(2025, 1, 5),
		Status: AutopayActive, Frequency: Monthly,
	}
	require.NoError(t, a.Validate())
	a.Frequency = "daily"
	assert.ErrorIs(t, a.Validate(), ErrInvalidAutopay)
}

func TestIsWarningAndSetupError(t *testing.T) {
	assert.True(t, IsWarning(ErrLimitExceeded))
	assert.True(t, IsWarning(ErrDippingIntoReserves))
	assert.False(t, IsWarning(ErrVaultLocked))

	err := &SetupError{Op: "list vaults", Err: errors.New("permission denied")}
	assert.True(t, IsSetupError(err))
	assert.False(t, IsSetupError(ErrForbidden))
	assert.Contains(t, err.Error(), "list vaults")
}

func TestSummarizeMonth(t *testing.T) {
	at := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	txs := []Transaction{
		{Amount: Units(100), Category: "Food", Timestamp: at(1), Status: StatusCompleted},
		{Amount: Units(300), Category: "Bills", Timestamp: at(2), Status: StatusCompleted},
		{Amount: Units(50), Category: "Food", Timestamp: at(3), Status: StatusCompleted},
		{Amount: Units(999), Category: "Food", Timestamp: at(4), Status: StatusFailed},
		{Amount: Units(70), Category: "Food", Timestamp: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Status: StatusCompleted},
	}
	s := SummarizeMonth(txs, 2025, 3)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, Units(450), s.Total)
	require.Len(t, s.ByCategory, 2)
	assert.Equal(t, "Bills", s.ByCategory[0].Name)
	assert.Equal(t, Units(150), s.ByCategory[1].Amount)
}
