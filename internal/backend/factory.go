package backend

import (
	"context"
	"fmt"
	"log/slog"

	"thinkpay/internal/amqp"
	"thinkpay/internal/ledger/memory"
	"thinkpay/internal/services"
	"thinkpay/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the store selected by config.Type.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Store: repo, Type: SQLiteBackend, Cleanup: repo.Close}, nil

	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return &BackendResult{Store: repo, Type: PostgresBackend, Cleanup: repo.Close}, nil

	case MemoryBackend:
		f.logger.Warn("Using in-memory backend, data is lost on restart")
		return &BackendResult{Store: memory.New(), Type: MemoryBackend}, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
}

// CreateOutbox returns the AMQP publisher when an AMQP URL is configured
// and the logging outbox otherwise. A broker that cannot be reached at
// startup degrades to the logging outbox.
func (f *DefaultFactory) CreateOutbox(config Config) (services.Outbox, CleanupFunc) {
	if config.AMQPURL == "" {
		f.logger.Info("AMQP disabled, failed writes are only logged")
		return services.LogOutbox{}, nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, failed writes are only logged", "error", err)
		return services.LogOutbox{}, nil
	}
	f.logger.Info("Initialized AMQP outbox",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client, client.Close
}
