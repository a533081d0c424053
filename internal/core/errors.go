package core

import (
	"errors"
	"fmt"
)

// Input validation.
var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyMerchant  = errors.New("empty merchant")
	ErrEmptySource    = errors.New("empty revenue source")
	ErrInvalidLimit   = errors.New("invalid limit")
	ErrInvalidVault   = errors.New("invalid vault")
	ErrUnknownGateway = errors.New("unknown payment gateway")
	ErrInvalidAutopay = errors.New("invalid autopay")
)

// Business-rule rejections.
var (
	ErrVaultLocked           = errors.New("vault is locked")
	ErrLimitExceeded         = errors.New("vault limit exceeded")
	ErrDippingIntoReserves   = errors.New("payment dips into reserved funds")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrNoUnlockedVault       = errors.New("no unlocked vault available")
	ErrNoEmergencyVault      = errors.New("no emergency vault")
	ErrAllocationIncomplete  = errors.New("allocation does not match payment amount")
	ErrDuplicateAllocation   = errors.New("vault allocated more than once")
)

// Lookup, authorization and flow errors.
var (
	ErrForbidden         = errors.New("forbidden data access")
	ErrVaultNotFound     = errors.New("vault not found")
	ErrPINRejected       = errors.New("pin rejected")
	ErrNotAwaitingPIN    = errors.New("vault is not awaiting a pin")
	ErrPINCooldown       = errors.New("too many pin attempts")
	ErrPaymentInProgress = errors.New("a payment is already in progress")
	ErrNoPayment         = errors.New("no payment in progress")
	ErrInvalidStep       = errors.New("operation not allowed at this payment step")
)

// IsWarning reports whether err is a soft, non-blocking rejection.
func IsWarning(err error) bool {
	return errors.Is(err, ErrLimitExceeded) || errors.Is(err, ErrDippingIntoReserves)
}

// SetupError marks a configuration or connectivity failure that no user
// action can recover from.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup error during %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupError reports whether err carries a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
