package main

import (
	"context"
	"errors"
	"os"

	"thinkpay/internal/amqp"
	"thinkpay/internal/cli"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(tplog.ComponentWorker)
	logger.Info("Starting thinkpay-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the replay worker")
		os.Exit(1)
	}

	res, _, _ := cli.OpenBackend(context.Background(), logger, cfg)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	replay := worker.NewReplayWorker(res.Store, client, cfg.SyncMaxRetries, cfg.SyncRetryDelay)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownGrace, func(context.Context) {
		cli.LogCleanup(logger, "amqp", client.Close)
		cli.LogCleanup(logger, "backend", res.Close)
	})

	logger.Info("Replaying failed ledger writes",
		"queue", cfg.AMQPQueue,
		"max_retries", cfg.SyncMaxRetries,
		"backend", res.Type)
	if err := client.ConsumeWrites(ctx, replay.HandleWriteMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		cli.LogCleanup(logger, "amqp", client.Close)
		cli.LogCleanup(logger, "backend", res.Close)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
