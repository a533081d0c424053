package http

import (
	"fmt"
	"net/http"
	"strings"

	"thinkpay/internal/core"
	"thinkpay/internal/services"
	"thinkpay/internal/statement"
)

type notificationsResponse struct {
	Notifications []notificationView `json:"notifications"`
	Unread        int                `json:"unread"`
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

type revenueRequest struct {
	Amount amountField `json:"amount"`
	Source string      `json:"source"`
}

type autopayRequest struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Amount    amountField `json:"amount"`
	DueDate   string      `json:"due_date"`
	VaultID   string      `json:"vault_id"`
	Status    string      `json:"status"`
	Frequency string      `json:"frequency"`
}

type statementRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	OK(notificationsResponse{
		Notifications: notificationViews(s.deps.Inbox.List(sess)),
		Unread:        s.deps.Inbox.Unread(sess),
	}).Write(w)
}

// handleMarkRead marks the listed ids, or all notifications when the body
// is empty or lists none.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req markReadRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Inbox.MarkRead(r.Context(), sess, req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleListRevenue(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	records, err := s.deps.Revenue.ListRevenue(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]revenueView, 0, len(records))
	for _, rec := range records {
		out = append(out, newRevenueView(rec))
	}
	OK(map[string]any{"revenue": out}).Write(w)
}

func (s *Server) handleRecordRevenue(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req revenueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rev, err := s.deps.Revenue.RecordRevenue(r.Context(), sess, req.Amount.Money, SanitizeInput(req.Source))
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(map[string]any{
		"revenue": newRevenueView(rev),
		"balance": newMoneyView(sess.Snapshot().User.CurrentBalance),
	}).Write(w)
}

func (s *Server) handleListAutopays(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	aps, err := s.deps.Autopays.List(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]autopayView, 0, len(aps))
	for _, ap := range aps {
		out = append(out, newAutopayView(ap))
	}
	OK(map[string]any{"autopays": out}).Write(w)
}

func (s *Server) handleSaveAutopay(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req autopayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ap := core.Autopay{
		ID:        strings.TrimSpace(req.ID),
		Name:      SanitizeInput(req.Name),
		Amount:    req.Amount.Money,
		VaultID:   strings.TrimSpace(req.VaultID),
		Status:    core.AutopayStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Frequency: core.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
	}
	if req.DueDate != "" {
		due, err := core.ParseDate(req.DueDate)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: due date must be YYYY-MM-DD", core.ErrInvalidAutopay))
			return
		}
		ap.DueDate = due
	}
	saved, err := s.deps.Autopays.Save(r.Context(), sess, ap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(newAutopayView(saved)).Write(w)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	ins := s.deps.Insights.Insights(r.Context(), sess)
	OK(insightsView{
		Tips:             ins.Tips,
		Summary:          ins.Summary,
		SavingsPotential: ins.SavingsPotential,
		Fallback:         ins.Fallback,
	}).Write(w)
}

// handleExportStatement exports the statement of the month named in the
// body or the query, the current month when neither names one.
func (s *Server) handleExportStatement(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	if s.deps.Statements == nil {
		writeError(w, r, statement.ErrNoSink)
		return
	}
	var req statementRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	period, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Year == 0 {
		req.Year = period.Year
	}
	if req.Month == 0 {
		req.Month = period.Month
	}
	res, err := s.deps.Statements.Export(r.Context(), sess.UserID, req.Year, req.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(res).Write(w)
}
