package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"thinkpay/internal/auth"
	"thinkpay/internal/ledger/memory"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/oracle"
	"thinkpay/internal/services"
	"thinkpay/internal/statement"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type memorySink struct {
	delivered []statement.Statement
}

func (m *memorySink) Deliver(_ context.Context, st statement.Statement) (string, error) {
	m.delivered = append(m.delivered, st)
	return "mem://" + st.ObjectKey(), nil
}

type testAPI struct {
	t       *testing.T
	server  *Server
	handler http.Handler
}

type apiOption func(*memory.Store, *Deps, *Options)

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	store := memory.New()
	persister := services.NewPersister(store, services.LogOutbox{})
	sessions := services.NewSessionManager(store)

	provider, err := auth.NewProvider(store, auth.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	provider.OnIdentityChange(func(ctx context.Context, id auth.Identity, signedIn bool) {
		sessions.IdentityChanged(ctx, id.UserID, signedIn)
	})

	deps := Deps{
		Auth:     provider,
		Sessions: sessions,
		Vaults:   services.NewVaultEngine(store, persister, services.PINPolicy{}),
		Payments: services.NewOrchestrator(oracle.Static{}, store, persister),
		Inbox:    services.NewInbox(store),
		Revenue:  services.NewRevenueService(store, persister),
		Autopays: services.NewAutopayService(store),
		Insights: services.NewInsightsService(oracle.Static{}, nil),
	}
	options := Options{
		RateLimitRPM: 1000,
		Logger:       tplog.New(tplog.Config{Output: io.Discard}),
	}
	for _, o := range opts {
		o(store, &deps, &options)
	}

	srv := NewServer(":0", deps, options)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testAPI{t: t, server: srv, handler: srv.Handler}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(a.t, err)
			rdr = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error.Code
}

// signUp registers asha and returns the token and user id.
func (a *testAPI) signUp(email string) (string, string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "asha",
		"email":    email,
		"password": "s3cret-pass",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[tokenResponse](a.t, rec)
	require.NotEmpty(a.t, resp.Token)
	return resp.Token, resp.Identity.UserID
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = api.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestAPI(t, func(_ *memory.Store, d *Deps, _ *Options) { d.Ready = stubPinger{err: errors.New("db down")} })
	rec = down.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", errorCodeOf(t, rec))
}

func TestMiddleware_HeadersAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-supplied-42")
	out := httptest.NewRecorder()
	api.handler.ServeHTTP(out, req)
	assert.Equal(t, "client-supplied-42", out.Header().Get("X-Request-ID"))

	rec = api.do(http.MethodGet, "/no/such/route", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCodeOf(t, rec))
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, func(_ *memory.Store, _ *Deps, o *Options) { o.RateLimitRPM = 2 })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "", nil).Code)
	}
	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCodeOf(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	_, limits, _ := api.server.Metrics()
	assert.Equal(t, int64(1), limits.TotalHits)
}

func TestAuth_RequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = api.do(http.MethodGet, "/api/session", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_RegisterLoginLogout(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")

	rec := api.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[meResponse](t, rec)
	assert.Equal(t, userID, me.Identity.UserID)
	assert.Equal(t, "asha", me.Identity.Username)
	require.NotNil(t, me.User)
	assert.Equal(t, "50000.00", me.User.CurrentBalance.Amount)

	rec = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "asha", "email": "ASHA@example.com", "password": "another-pass",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_taken", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "ravi", "email": "ravi@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "weak_password", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[tokenResponse](t, rec).Token

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodPost, "/api/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/session", token, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/session", second, nil).Code)
}

func TestSession_Snapshot(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")

	rec := api.do(http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[sessionView](t, rec)

	assert.Equal(t, userID, view.User.ID)
	require.Len(t, view.Vaults, 5)
	emergency := view.Vaults[2]
	assert.Equal(t, "Emergency", emergency.Type)
	assert.True(t, emergency.IsLocked)
	assert.True(t, emergency.HasPIN)
	assert.Equal(t, "idle", emergency.UnlockState)
	assert.Equal(t, "20000.00", view.Derived.ReservedFunds.Amount)
	assert.Equal(t, "30000.00", view.Derived.SpendableBalance.Amount)
	assert.Equal(t, 1, view.Unread)
	assert.Nil(t, view.Payment)
	assert.NotContains(t, rec.Body.String(), `"1234"`)
}

func TestPayments_InstantPay(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")

	rec := api.do(http.MethodPost, "/api/payments/instant", token, map[string]any{
		"amount": 1200, "merchant": "Cafe X",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[transactionResponse](t, rec)
	assert.Equal(t, "1200.00", resp.Transaction.Amount.Amount)
	assert.Equal(t, "razorpay", resp.Transaction.Gateway)
	require.Len(t, resp.Transaction.Allocations, 1)
	assert.Equal(t, userID+"-v1", resp.Transaction.Allocations[0].VaultID)

	view := decode[sessionView](t, api.do(http.MethodGet, "/api/session", token, nil))
	assert.Equal(t, "48800.00", view.User.CurrentBalance.Amount)
	assert.Len(t, view.Transactions, 1)
	assert.Equal(t, "1200.00", view.Vaults[0].Spent.Amount)

	rec = api.do(http.MethodPost, "/api/payments/instant", token, map[string]any{
		"amount": "60000", "merchant": "Car dealer",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_liquidity", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/payments/instant", token, map[string]any{
		"amount": -5, "merchant": "Refund",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", errorCodeOf(t, rec))
}

func TestPayments_InstantPayReturnsWarnings(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.signUp("asha@example.com")

	rec := api.do(http.MethodPost, "/api/payments/instant", token, map[string]any{
		"amount": "35000", "merchant": "Laptop",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[transactionResponse](t, rec)
	codes := make([]string, 0, len(resp.Warnings))
	for _, w := range resp.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, "dipping_into_reserves")
	assert.Contains(t, codes, "limit_exceeded")
}

func TestPayments_StepwiseFlow(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")

	rec := api.do(http.MethodPost, "/api/payments", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "entry", decode[paymentView](t, rec).Step)

	rec = api.do(http.MethodPost, "/api/payments", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "payment_in_progress", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/payments/commit", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_step", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/payments/entry", token, map[string]any{
		"amount": "500", "merchant": "Grocer",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	flow := decode[paymentView](t, rec)
	assert.Equal(t, "allocation", flow.Step)
	require.NotNil(t, flow.Suggestion)
	assert.True(t, flow.Suggestion.Fallback)
	assert.Equal(t, []string{"razorpay", "stripe"}, flow.Gateways)

	rec = api.do(http.MethodPut, "/api/payments/allocations", token, map[string]any{
		"allocations": []map[string]any{
			{"vault_id": userID + "-v1", "amount": "300"},
			{"vault_id": userID + "-v2", "amount": 100},
			{"vault_id": userID + "-v4", "amount": 0},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[allocationStatusView](t, rec)
	assert.False(t, status.Complete)
	assert.Equal(t, "100.00", status.Remaining.Amount)

	rec = api.do(http.MethodPost, "/api/payments/allocations/confirm", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "allocation_incomplete", errorCodeOf(t, rec))

	rec = api.do(http.MethodPut, "/api/payments/allocations", token, map[string]any{
		"allocations": []map[string]any{
			{"vault_id": userID + "-v1", "amount": "300"},
			{"vault_id": userID + "-v2", "amount": "200"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[allocationStatusView](t, rec).Complete)

	rec = api.do(http.MethodPost, "/api/payments/allocations/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gateway_selection", decode[paymentView](t, rec).Step)

	rec = api.do(http.MethodPost, "/api/payments/gateway", token, map[string]string{"gateway": "paypal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_gateway", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, "/api/payments/gateway", token, map[string]string{"gateway": "Stripe"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stripe", decode[paymentView](t, rec).Gateway)

	rec = api.do(http.MethodPost, "/api/payments/commit", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[transactionResponse](t, rec).Transaction
	assert.Equal(t, "stripe", tx.Gateway)
	assert.Len(t, tx.Allocations, 2)

	rec = api.do(http.MethodGet, "/api/payments", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_payment", errorCodeOf(t, rec))
}

func TestPayments_CancelAndEmergency(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")

	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete, "/api/payments", token, nil).Code)

	rec := api.do(http.MethodPost, "/api/payments", token, map[string]bool{"emergency": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "emergency_entry", decode[paymentView](t, rec).Step)

	rec = api.do(http.MethodPost, "/api/payments/entry", token, map[string]any{
		"amount": "2500", "merchant": "Hospital",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	flow := decode[paymentView](t, rec)
	assert.Equal(t, "gateway_selection", flow.Step)
	assert.Equal(t, "Emergency", flow.Category)
	require.Len(t, flow.Allocations, 1)
	assert.Equal(t, userID+"-v3", flow.Allocations[0].VaultID)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/payments", token, nil).Code)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodGet, "/api/payments", token, nil).Code)
}

func TestVaults_ToggleUnlockAndUsage(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")
	emergency := "/api/vaults/" + userID + "-v3"
	lifestyle := "/api/vaults/" + userID + "-v1"

	rec := api.do(http.MethodPost, emergency+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	toggled := decode[toggleResponse](t, rec)
	assert.True(t, toggled.AwaitingPIN)
	assert.True(t, toggled.Vault.IsLocked)
	assert.Equal(t, "awaiting_pin", toggled.Vault.UnlockState)

	rec = api.do(http.MethodPost, emergency+"/unlock", token, map[string]string{"pin": "0000"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "pin_rejected", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, emergency+"/unlock", token, map[string]string{"pin": "1234"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[vaultView](t, rec).IsLocked)

	rec = api.do(http.MethodGet, emergency+"/usage?amount=100", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decode[usageResponse](t, rec)
	assert.True(t, usage.Allowed)
	assert.Equal(t, "ok", usage.Verdict)

	rec = api.do(http.MethodPost, lifestyle+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[toggleResponse](t, rec).Vault.IsLocked)

	rec = api.do(http.MethodGet, lifestyle+"/usage?amount=100", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage = decode[usageResponse](t, rec)
	assert.False(t, usage.Allowed)
	assert.Equal(t, "vault_locked", usage.Verdict)

	rec = api.do(http.MethodGet, "/api/vaults/"+userID+"-v2/usage?amount=6000", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage = decode[usageResponse](t, rec)
	assert.True(t, usage.Allowed)
	assert.True(t, usage.Warning)
	assert.Equal(t, "limit_exceeded", usage.Verdict)

	rec = api.do(http.MethodGet, lifestyle+"/usage", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/vaults/nope/usage?amount=1", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "vault_not_found", errorCodeOf(t, rec))

	rec = api.do(http.MethodPost, lifestyle+"/unlock/cancel", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVaults_CrossIdentityIsNotVisible(t *testing.T) {
	api := newTestAPI(t)
	_, ashaID := api.signUp("asha@example.com")
	ravi, _ := api.signUp("ravi@example.com")

	rec := api.do(http.MethodPost, "/api/vaults/"+ashaID+"-v1/toggle", ravi, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVaults_UpdateLimit(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")
	path := "/api/vaults/" + userID + "-v2/limit"

	rec := api.do(http.MethodPut, path, token, map[string]any{"limit": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_limit", errorCodeOf(t, rec))

	rec = api.do(http.MethodPut, path, token, map[string]any{"limit": "7500.50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "7500.50", decode[vaultView](t, rec).Limit.Amount)

	rec = api.do(http.MethodPut, path, token, `{"limit": 100, "extra": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errorCodeOf(t, rec))
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.signUp("asha@example.com")

	rec := api.do(http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[notificationsResponse](t, rec)
	require.NotEmpty(t, list.Notifications)
	assert.Equal(t, 1, list.Unread)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodPost, "/api/notifications/read", token, nil).Code)

	list = decode[notificationsResponse](t, api.do(http.MethodGet, "/api/notifications", token, nil))
	assert.Equal(t, 0, list.Unread)
}

func TestRevenue_RecordAndList(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.signUp("asha@example.com")

	rec := api.do(http.MethodPost, "/api/revenue", token, map[string]any{"amount": "1000", "source": "Salary"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount":"51000.00"`)

	rec = api.do(http.MethodPost, "/api/revenue", token, map[string]any{"amount": "10", "source": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_source", errorCodeOf(t, rec))

	rec = api.do(http.MethodGet, "/api/revenue", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]revenueView](t, rec)
	require.Len(t, list["revenue"], 1)
	assert.Equal(t, "Salary", list["revenue"][0].Source)
}

func TestAutopays_SaveAndList(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.signUp("asha@example.com")

	rec := api.do(http.MethodPost, "/api/autopays", token, map[string]any{
		"name": "Electricity", "amount": "1800", "due_date": "2025-04-01", "vault_id": userID + "-v5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[autopayView](t, rec)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "active", saved.Status)
	assert.Equal(t, "monthly", saved.Frequency)
	assert.Equal(t, "2025-04-01", saved.DueDate)

	rec = api.do(http.MethodPost, "/api/autopays", token, map[string]any{
		"name": "Rent", "amount": "1800", "due_date": "01/04/2025", "vault_id": userID + "-v5",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_autopay", errorCodeOf(t, rec))

	rec = api.do(http.MethodGet, "/api/autopays", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]autopayView](t, rec)["autopays"], 1)
}

func TestInsights_Fallback(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.signUp("asha@example.com")

	rec := api.do(http.MethodGet, "/api/insights", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ins := decode[insightsView](t, rec)
	assert.True(t, ins.Fallback)
	assert.NotEmpty(t, ins.Tips)
}

func TestStatements(t *testing.T) {
	t.Run("disabled without a sink", func(t *testing.T) {
		api := newTestAPI(t)
		token, _ := api.signUp("asha@example.com")

		rec := api.do(http.MethodPost, "/api/statements", token, nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
		assert.Equal(t, "statements_disabled", errorCodeOf(t, rec))
	})

	t.Run("exports the requested month", func(t *testing.T) {
		sink := &memorySink{}
		api := newTestAPI(t, func(store *memory.Store, d *Deps, _ *Options) {
			d.Statements = statement.NewService(store, sink)
		})
		token, userID := api.signUp("asha@example.com")

		rec := api.do(http.MethodPost, "/api/payments/instant", token, map[string]any{"amount": 250, "merchant": "Books"})
		require.Equal(t, http.StatusCreated, rec.Code)

		now := time.Now()
		rec = api.do(http.MethodPost, "/api/statements", token, map[string]int{"year": now.Year(), "month": int(now.Month())})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[statement.Result](t, rec)
		assert.Equal(t, 1, res.Transactions)
		assert.Equal(t, "250.00", res.Total)
		require.Len(t, sink.delivered, 1)
		assert.Equal(t, userID, sink.delivered[0].UserID)

		rec = api.do(http.MethodPost, "/api/statements?month=13", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_period", errorCodeOf(t, rec))
	})
}
