package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bakeledger/internal/amqp"
	"bakeledger/internal/cli"
	"bakeledger/internal/log"
	gsheet "bakeledger/internal/sheets/google"
	"bakeledger/internal/storage"
	"bakeledger/internal/worker"
)

func main() {
	cli.LoadEnv()
	logger := cli.SetupLogger(log.ComponentWorker)

	logger.Info("Starting bakeledger-worker")

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	if !cfg.ExportEnabled() {
		logger.Error("Spreadsheet export not configured - nothing to mirror, set GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize SQLite repository", err)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.NewFromEnv(context.Background(), cfg.Currency)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, sheetsClient, cfg.SyncBatchSize)

	ctx, stop := cli.SignalContext()
	defer stop()

	// Mirror anything queued while the worker was down before consuming.
	logger.Info("Performing startup sync check")
	if err := syncWorker.ProcessPendingRecords(ctx); err != nil {
		logger.Error("Startup sync check failed", log.FieldError, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.Consume(ctx, syncWorker.HandleMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Backup sync loop: the queue is best-effort, the ticker is the guarantee.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := syncWorker.ProcessPendingRecords(ctx); err != nil {
					logger.Error("Periodic sync failed", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		cli.Fatal(logger, "Worker terminated with error", err)
	}
	logger.Info("Worker shutdown complete")
}
