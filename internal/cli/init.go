// Package cli provides the bootstrap shared by the thinkpay commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"thinkpay/internal/backend"
	"thinkpay/internal/config"
	tplog "thinkpay/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the component logger from LOG_LEVEL and LOG_FORMAT
// and installs it as the slog default.
func SetupLogger(component string) *tplog.Logger {
	level, err := tplog.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg := tplog.DefaultConfig()
	cfg.Level = level
	cfg.Component = component
	if os.Getenv("LOG_FORMAT") == "json" {
		cfg.Format = "json"
	}
	logger := tplog.New(cfg)
	tplog.SetDefault(logger)
	if err != nil {
		logger.Warn("Ignoring LOG_LEVEL", "error", err)
	}
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *tplog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// Bootstrap loads the env file, sets up logging and validates config.
func Bootstrap(component string) (*config.Config, *tplog.Logger) {
	LoadEnvFile()
	logger := SetupLogger(component)
	return LoadAndValidateConfig(logger), logger
}

// OpenBackend opens the configured store or exits the process on failure.
func OpenBackend(ctx context.Context, logger *tplog.Logger, cfg *config.Config) (*backend.BackendResult, *backend.DefaultFactory, backend.Config) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.WithComponent(tplog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res, factory, bcfg
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM, and a
// channel closed once cleanup finished or timeout elapsed.
func GracefulShutdown(logger *tplog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// LogCleanup runs fn and logs its error under name.
func LogCleanup(logger *tplog.Logger, name string, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Error("Cleanup failed", "resource", name, "error", err)
	}
}
