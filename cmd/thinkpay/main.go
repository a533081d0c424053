package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"thinkpay/internal/auth"
	"thinkpay/internal/cli"
	apphttp "thinkpay/internal/http"
	tplog "thinkpay/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(tplog.ComponentApp)
	logger.Info("Starting thinkpay server")

	res, factory, bcfg := cli.OpenBackend(context.Background(), logger, cfg)
	outbox, closeOutbox := factory.CreateOutbox(bcfg)

	o := cli.OpenOracle(context.Background(), logger, cfg)
	svc := cli.NewServices(cfg, res.Store, outbox, o)
	svc.Caches.StartCleanup(time.Minute)

	provider, err := auth.NewProvider(res.Store, auth.Config{
		Secret:     []byte(cfg.JWTSecret),
		TokenTTL:   cfg.TokenTTL,
		Issuer:     cfg.JWTIssuer,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		logger.Error("Failed to initialize auth provider", "error", err)
		os.Exit(1)
	}
	provider.OnIdentityChange(func(ctx context.Context, id auth.Identity, signedIn bool) {
		svc.Sessions.IdentityChanged(ctx, id.UserID, signedIn)
	})

	statements, err := cli.OpenStatements(context.Background(), logger, cfg, res.Store)
	if err != nil {
		logger.Error("Failed to initialize statement sink", "error", err, "sink", cfg.StatementSink)
		os.Exit(1)
	}

	var trusted []string
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		for _, cidr := range strings.Split(v, ",") {
			trusted = append(trusted, strings.TrimSpace(cidr))
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:       provider,
		Sessions:   svc.Sessions,
		Vaults:     svc.Vaults,
		Payments:   svc.Payments,
		Inbox:      svc.Inbox,
		Revenue:    svc.Revenue,
		Autopays:   svc.Autopays,
		Insights:   svc.Insights,
		Statements: statements,
		Ready:      res,
	}, apphttp.Options{
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: trusted,
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownGrace, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		svc.Caches.Stop()
		cli.LogCleanup(logger, "outbox", closeOutbox)
		cli.LogCleanup(logger, "backend", res.Close)
	})

	// Autopays share the server's sessions so a charge and a request for the
	// same identity never race on separate copies of its ledger.
	go svc.Processor.Run(ctx, cfg.AutopayInterval)
	logger.Info("Autopay processor configured", "interval", cfg.AutopayInterval)

	logger.Info("Listening", "port", cfg.Port, "backend", res.Type, "sink", cfg.StatementSink)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
