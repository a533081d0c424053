package cli

import (
	"context"
	"fmt"
	"time"

	"thinkpay/internal/cache"
	"thinkpay/internal/config"
	"thinkpay/internal/ledger"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/oracle"
	"thinkpay/internal/oracle/gemini"
	"thinkpay/internal/services"
	"thinkpay/internal/statement"
	"thinkpay/internal/statement/s3sink"
	"thinkpay/internal/statement/sheets"
)

const (
	insightsCacheSize = 1000
	insightsCacheTTL  = 15 * time.Minute
)

// Services is the service graph shared by the server and the workers.
type Services struct {
	Sessions  *services.SessionManager
	Vaults    *services.VaultEngine
	Payments  *services.Orchestrator
	Inbox     *services.Inbox
	Revenue   *services.RevenueService
	Autopays  *services.AutopayService
	Insights  *services.InsightsService
	Processor *services.AutopayProcessor
	Caches    *cache.Manager
}

// NewServices builds the service graph over store. Failed post-commit
// writes go to outbox.
func NewServices(cfg *config.Config, store ledger.Store, outbox services.Outbox, o oracle.Oracle) *Services {
	persister := services.NewPersister(store, outbox)
	sessions := services.NewSessionManager(store)
	payments := services.NewOrchestrator(o, store, persister)

	insightsCache := cache.NewLRUCache[oracle.Insights](insightsCacheSize, insightsCacheTTL)
	caches := cache.NewManager()
	caches.Register(insightsCache)

	return &Services{
		Sessions: sessions,
		Vaults: services.NewVaultEngine(store, persister, services.PINPolicy{
			MaxAttempts: cfg.PINMaxAttempts,
			Cooldown:    cfg.PINCooldown,
		}),
		Payments:  payments,
		Inbox:     services.NewInbox(store),
		Revenue:   services.NewRevenueService(store, persister),
		Autopays:  services.NewAutopayService(store),
		Insights:  services.NewInsightsService(o, insightsCache),
		Processor: services.NewAutopayProcessor(store, sessions, payments),
		Caches:    caches,
	}
}

// OpenOracle returns the keyword oracle, backed by Gemini when an API key
// is configured. A Gemini client that cannot be created is logged and
// skipped.
func OpenOracle(ctx context.Context, logger *tplog.Logger, cfg *config.Config) oracle.Oracle {
	if cfg.GeminiAPIKey == "" {
		logger.Info("Gemini disabled, using keyword categorization")
		return oracle.NewKeywords(nil)
	}
	client, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GeminiTimeout,
	})
	if err != nil {
		logger.Warn("Failed to initialize Gemini, using keyword categorization", "error", err)
		return oracle.NewKeywords(nil)
	}
	logger.Info("Initialized Gemini oracle", "model", cfg.GeminiModel)
	return oracle.NewKeywords(client)
}

// OpenStatementSink returns the sink selected by STATEMENT_SINK, or nil
// when statements are disabled.
func OpenStatementSink(ctx context.Context, cfg *config.Config) (statement.Sink, error) {
	switch cfg.StatementSink {
	case "", "none":
		return nil, nil
	case "s3":
		return s3sink.New(ctx, s3sink.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
	case "sheets":
		opts, err := sheets.ClientOptions(ctx, sheets.Credentials{
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
			OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		})
		if err != nil {
			return nil, err
		}
		return sheets.New(ctx, cfg.GoogleSpreadsheetID, opts...)
	}
	return nil, fmt.Errorf("unsupported statement sink: %s", cfg.StatementSink)
}

// OpenStatements wraps the configured sink in a statement service. It
// returns nil when statements are disabled.
func OpenStatements(ctx context.Context, logger *tplog.Logger, cfg *config.Config, store ledger.TransactionStore) (*statement.Service, error) {
	sink, err := OpenStatementSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		logger.Info("Statement export disabled")
		return nil, nil
	}
	logger.Info("Statement export enabled", "sink", cfg.StatementSink)
	return statement.NewService(store, sink), nil
}
