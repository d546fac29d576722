package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spendbook/internal/amqp"
	"spendbook/internal/cli"
	applog "spendbook/internal/log"
	"spendbook/internal/services"
	"spendbook/internal/worker"
)

const (
	dedupeSize = 10000
	dedupeTTL  = 24 * time.Hour
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.InfoContext(context.Background(), "Starting spendbook-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "Worker requires AMQP", errors.New("AMQP_URL is not set"))
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	ledger := services.NewLedgerService(repo, nil)
	digests := worker.NewDigestWorker(repo, ledger, dedupeSize, dedupeTTL)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)
	ctx = applog.WithContext(ctx, logger.WithComponent(applog.ComponentAMQP))

	if err := amqpClient.ConsumeEntryRecorded(ctx, digests.HandleEntryRecorded); err != nil && !errors.Is(err, context.Canceled) {
		cli.Fatal(logger, "Consumer stopped", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Worker stopped gracefully")
}
