package http

import (
	"errors"
	"net/http"

	"thinkpay/internal/auth"
	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/middleware/trace"
	"thinkpay/internal/services"
	"thinkpay/internal/statement"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// errorMapping gives a domain error its status and stable code. The first
// match wins, so more specific errors come first.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{core.ErrForbidden, http.StatusForbidden, "forbidden"},
	{core.ErrVaultNotFound, http.StatusNotFound, "vault_not_found"},
	{ledger.ErrNotFound, http.StatusNotFound, "not_found"},

	{core.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{core.ErrEmptyMerchant, http.StatusBadRequest, "empty_merchant"},
	{core.ErrEmptySource, http.StatusBadRequest, "empty_source"},
	{core.ErrInvalidLimit, http.StatusBadRequest, "invalid_limit"},
	{core.ErrInvalidVault, http.StatusBadRequest, "invalid_vault"},
	{core.ErrUnknownGateway, http.StatusBadRequest, "unknown_gateway"},
	{core.ErrInvalidAutopay, http.StatusBadRequest, "invalid_autopay"},
	{statement.ErrInvalidPeriod, http.StatusBadRequest, "invalid_period"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{auth.ErrEmptyUsername, http.StatusBadRequest, "empty_username"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},

	{core.ErrVaultLocked, http.StatusUnprocessableEntity, "vault_locked"},
	{core.ErrLimitExceeded, http.StatusUnprocessableEntity, "limit_exceeded"},
	{core.ErrDippingIntoReserves, http.StatusUnprocessableEntity, "dipping_into_reserves"},
	{core.ErrInsufficientLiquidity, http.StatusUnprocessableEntity, "insufficient_liquidity"},
	{core.ErrNoUnlockedVault, http.StatusUnprocessableEntity, "no_unlocked_vault"},
	{core.ErrNoEmergencyVault, http.StatusUnprocessableEntity, "no_emergency_vault"},
	{core.ErrAllocationIncomplete, http.StatusUnprocessableEntity, "allocation_incomplete"},
	{core.ErrDuplicateAllocation, http.StatusUnprocessableEntity, "duplicate_allocation"},
	{core.ErrPINRejected, http.StatusUnprocessableEntity, "pin_rejected"},

	{core.ErrPINCooldown, http.StatusTooManyRequests, "pin_cooldown"},

	{core.ErrNotAwaitingPIN, http.StatusConflict, "not_awaiting_pin"},
	{core.ErrPaymentInProgress, http.StatusConflict, "payment_in_progress"},
	{core.ErrNoPayment, http.StatusConflict, "no_payment"},
	{core.ErrInvalidStep, http.StatusConflict, "invalid_step"},
	{auth.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{ledger.ErrConflict, http.StatusConflict, "conflict"},

	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},

	{statement.ErrNoSink, http.StatusNotImplemented, "statements_disabled"},
}

// classify returns the status and code of err.
func classify(err error) (int, string) {
	if core.IsSetupError(err) || errors.Is(err, ledger.ErrPermissionDenied) {
		return http.StatusServiceUnavailable, "setup_error"
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// errorCode is the stable code of err, used for warnings.
func errorCode(err error) string {
	_, code := classify(err)
	return code
}

// writeError maps err to a response. Server side failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error, warnings ...services.Warning) {
	status, code := classify(err)
	message := err.Error()

	logger := tplog.FromContext(r.Context())
	switch {
	case status == http.StatusServiceUnavailable:
		logger.ErrorContext(r.Context(), "Ledger setup error", tplog.NewFields().WithError(err, code).ToSlice()...)
		message = "the ledger store is unavailable or misconfigured"
	case status >= 500 && status != http.StatusNotImplemented:
		logger.ErrorContext(r.Context(), "Request failed", tplog.NewFields().WithError(err, code).ToSlice()...)
		message = "internal error"
	default:
		logger.DebugContext(r.Context(), "Request rejected", "error", err, tplog.FieldErrorCode, code)
	}

	NewJSONResponse().
		Status(status).
		Body(errorBody{
			Error: errorDetail{
				Code:      code,
				Message:   message,
				RequestID: trace.GetRequestID(r.Context()),
			},
			Warnings: warningViews(warnings),
		}).
		Write(w)
}
