package http

import (
	"net/http"

	"thinkpay/internal/core"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/services"
)

type beginPaymentRequest struct {
	Emergency bool `json:"emergency"`
}

type entryRequest struct {
	Amount   amountField `json:"amount"`
	Merchant string      `json:"merchant"`
}

type allocationInput struct {
	VaultID string     `json:"vault_id"`
	Amount  shareField `json:"amount"`
}

type allocationsRequest struct {
	Allocations []allocationInput `json:"allocations"`
}

type gatewayRequest struct {
	Gateway string `json:"gateway"`
}

type instantPayRequest struct {
	Amount   amountField `json:"amount"`
	Merchant string      `json:"merchant"`
	SOS      bool        `json:"sos"`
}

type transactionResponse struct {
	Transaction transactionView `json:"transaction"`
	Warnings    []warningView   `json:"warnings,omitempty"`
}

func (s *Server) handleCurrentPayment(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	f, ok := s.deps.Payments.Current(sess)
	if !ok {
		writeError(w, r, core.ErrNoPayment)
		return
	}
	OK(newPaymentView(f)).Write(w)
}

func (s *Server) handleBeginPayment(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req beginPaymentRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := s.deps.Payments.Begin(sess, req.Emergency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(newPaymentView(f)).Write(w)
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	if err := s.deps.Payments.Cancel(sess); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handlePaymentEntry(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := s.deps.Payments.Enter(r.Context(), sess, req.Amount.Money, SanitizeInput(req.Merchant))
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(newPaymentView(f)).Write(w)
}

func (s *Server) handleAllocationStatus(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	st, err := s.deps.Payments.AllocationStatus(sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(newAllocationStatusView(st)).Write(w)
}

func (s *Server) handleSetAllocations(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req allocationsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	allocs := make([]core.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocs = append(allocs, core.Allocation{VaultID: a.VaultID, Amount: a.Amount.Money})
	}
	st, err := s.deps.Payments.SetAllocations(sess, allocs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(newAllocationStatusView(st)).Write(w)
}

func (s *Server) handleConfirmAllocation(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	if err := s.deps.Payments.ConfirmAllocation(sess); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleCurrentPayment(w, r, sess)
}

func (s *Server) handleSelectGateway(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req gatewayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Payments.SelectGateway(sess, req.Gateway); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleCurrentPayment(w, r, sess)
}

func (s *Server) handleCommitPayment(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	tx, err := s.deps.Payments.Commit(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tplog.FromContext(r.Context()).InfoContext(r.Context(), "Payment committed",
		tplog.NewFields().WithPayment(tx.Merchant, tx.Amount.Cents, string(tx.Gateway)).ToSlice()...)
	Created(transactionResponse{Transaction: newTransactionView(tx)}).Write(w)
}

// handleInstantPay runs the whole flow in one request. Warnings raised on
// the way are returned with the transaction or with the error.
func (s *Server) handleInstantPay(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req instantPayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, warnings, err := s.deps.Payments.InstantPay(r.Context(), sess, req.Amount.Money, SanitizeInput(req.Merchant), req.SOS)
	if err != nil {
		writeError(w, r, err, warnings...)
		return
	}
	Created(transactionResponse{Transaction: newTransactionView(tx), Warnings: warningViews(warnings)}).Write(w)
}
