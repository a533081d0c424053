package http

import (
	"errors"
	"net/http"

	"thinkpay/internal/core"
	"thinkpay/internal/services"
)

type toggleResponse struct {
	Vault       vaultView `json:"vault"`
	AwaitingPIN bool      `json:"awaiting_pin"`
}

type unlockRequest struct {
	PIN string `json:"pin"`
}

type limitRequest struct {
	Limit amountField `json:"limit"`
}

type usageResponse struct {
	VaultID string `json:"vault_id"`
	Allowed bool   `json:"allowed"`
	Warning bool   `json:"warning"`
	Verdict string `json:"verdict"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleToggleVault(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	res, err := s.deps.Vaults.ToggleLock(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := newVaultView(res.Vault)
	view.UnlockState = string(sess.UnlockStatus(res.Vault.ID))
	OK(toggleResponse{Vault: view, AwaitingPIN: res.AwaitingPIN}).Write(w)
}

func (s *Server) handleUnlockVault(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req unlockRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.deps.Vaults.Unlock(r.Context(), sess, r.PathValue("id"), req.PIN)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := newVaultView(v)
	view.UnlockState = string(sess.UnlockStatus(v.ID))
	OK(view).Write(w)
}

func (s *Server) handleCancelUnlock(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	if err := s.deps.Vaults.CancelUnlock(sess, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleUpdateLimit(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req limitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			err = core.ErrInvalidLimit
		}
		writeError(w, r, err)
		return
	}
	v, err := s.deps.Vaults.UpdateLimit(r.Context(), sess, r.PathValue("id"), req.Limit.Money)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(newVaultView(v)).Write(w)
}

// handleVaultUsage answers whether amount could be drawn from the vault.
// Business verdicts are a 200 with allowed=false; lookup and input errors
// keep their status.
func (s *Server) handleVaultUsage(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	vaultID := r.PathValue("id")
	amount, err := ParseAmountParam(r.URL.Query(), "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := usageResponse{VaultID: vaultID, Allowed: true, Verdict: "ok"}
	switch err := s.deps.Vaults.CheckUsage(sess, vaultID, amount); {
	case err == nil:
	case core.IsWarning(err):
		resp.Warning = true
		resp.Verdict = errorCode(err)
		resp.Message = err.Error()
	case errors.Is(err, core.ErrVaultLocked):
		resp.Allowed = false
		resp.Verdict = errorCode(err)
		resp.Message = err.Error()
	default:
		writeError(w, r, err)
		return
	}
	OK(resp).Write(w)
}
