package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendbook/internal/amqp"
	"spendbook/internal/auth"
	"spendbook/internal/cli"
	apphttp "spendbook/internal/http"
	applog "spendbook/internal/log"
	"spendbook/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Events are optional; only a non-nil client is handed to the service.
	var publisher services.EntryPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(context.Background(), "AMQP unavailable, entry events disabled", applog.FieldError, err)
		} else {
			amqpClient = client
			publisher = client
			logger.InfoContext(context.Background(), "AMQP publisher initialized",
				"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	tokens := auth.NewTokenManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL)
	accounts := services.NewAccountService(repo, tokens)
	ledger := services.NewLedgerService(repo, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, accounts, ledger, repo, apphttp.Options{
		SummaryCacheTTL:  cfg.SummaryCacheTTL,
		SummaryCacheSize: cfg.SummaryCacheSize,
		Logger:           logger.WithComponent(applog.ComponentHTTP),
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Server shutdown error", applog.FieldError, err)
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
	})

	logger.InfoContext(ctx, "Starting spendbook server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Server stopped gracefully")
}
