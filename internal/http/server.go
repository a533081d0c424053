// Package http serves the ThinkPay JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"thinkpay/internal/auth"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/middleware/ratelimit"
	"thinkpay/internal/middleware/security"
	"thinkpay/internal/middleware/trace"
	"thinkpay/internal/services"
	"thinkpay/internal/statement"
)

// Authenticator is the authentication provider consumed by the API.
type Authenticator interface {
	Register(ctx context.Context, username, email, password string) (auth.Identity, error)
	Verify(ctx context.Context, email, password string) (auth.Identity, string, error)
	CurrentIdentity(ctx context.Context, token string) (auth.Identity, error)
	Logout(ctx context.Context, token string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API. Statements and Ready may be nil.
type Deps struct {
	Auth       Authenticator
	Sessions   *services.SessionManager
	Vaults     *services.VaultEngine
	Payments   *services.Orchestrator
	Inbox      *services.Inbox
	Revenue    *services.RevenueService
	Autopays   *services.AutopayService
	Insights   *services.InsightsService
	Statements *statement.Service
	Ready      Pinger
}

// Options tune the middleware stack.
type Options struct {
	RateLimitRPM   int
	TrustedProxies []string
	Logger         *tplog.Logger
}

type Server struct {
	http.Server
	deps Deps

	logger   *tplog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
	now          func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = tplog.New(tplog.DefaultConfig())
	}

	s := &Server{
		deps:     deps,
		logger:   logger.WithComponent(tplog.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
		detector: security.NewDetector(),
		tracer:   trace.NewMiddleware(),
		now:      time.Now,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", s.authenticated(s.handleLogout))
	mux.Handle("GET /api/me", s.authenticated(s.handleMe))

	mux.Handle("GET /api/session", s.withSession(s.handleSession))

	mux.Handle("POST /api/vaults/{id}/toggle", s.withSession(s.handleToggleVault))
	mux.Handle("POST /api/vaults/{id}/unlock", s.withSession(s.handleUnlockVault))
	mux.Handle("POST /api/vaults/{id}/unlock/cancel", s.withSession(s.handleCancelUnlock))
	mux.Handle("PUT /api/vaults/{id}/limit", s.withSession(s.handleUpdateLimit))
	mux.Handle("GET /api/vaults/{id}/usage", s.withSession(s.handleVaultUsage))

	mux.Handle("GET /api/payments", s.withSession(s.handleCurrentPayment))
	mux.Handle("POST /api/payments", s.withSession(s.handleBeginPayment))
	mux.Handle("DELETE /api/payments", s.withSession(s.handleCancelPayment))
	mux.Handle("POST /api/payments/entry", s.withSession(s.handlePaymentEntry))
	mux.Handle("GET /api/payments/allocations", s.withSession(s.handleAllocationStatus))
	mux.Handle("PUT /api/payments/allocations", s.withSession(s.handleSetAllocations))
	mux.Handle("POST /api/payments/allocations/confirm", s.withSession(s.handleConfirmAllocation))
	mux.Handle("POST /api/payments/gateway", s.withSession(s.handleSelectGateway))
	mux.Handle("POST /api/payments/commit", s.withSession(s.handleCommitPayment))
	mux.Handle("POST /api/payments/instant", s.withSession(s.handleInstantPay))

	mux.Handle("GET /api/notifications", s.withSession(s.handleListNotifications))
	mux.Handle("POST /api/notifications/read", s.withSession(s.handleMarkRead))

	mux.Handle("GET /api/revenue", s.withSession(s.handleListRevenue))
	mux.Handle("POST /api/revenue", s.withSession(s.handleRecordRevenue))

	mux.Handle("GET /api/autopays", s.withSession(s.handleListAutopays))
	mux.Handle("POST /api/autopays", s.withSession(s.handleSaveAutopay))

	mux.Handle("GET /api/insights", s.withSession(s.handleInsights))
	mux.Handle("POST /api/statements", s.withSession(s.handleExportStatement))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not_found", "no such endpoint").Write(w)
	})

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = tplog.RequestLogging(s.logger, trace.FromRequest, s.detector.ExtractClientIP)(h)
	h = s.detector.Middleware(s.logger.Logger.With(tplog.FieldComponent, tplog.ComponentSecurity))(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	tplog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		tplog.FieldClientIP, s.detector.ExtractClientIP(r),
		tplog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later").Write(w)
}

// Shutdown stops the limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics snapshots the middleware counters.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "ledger store is not reachable").Write(w)
			return
		}
	}
	OK(map[string]any{
		"status":   "ready",
		"sessions": s.deps.Sessions.Len(),
	}).Write(w)
}
