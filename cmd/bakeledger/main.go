package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"bakeledger/internal/backend"
	"bakeledger/internal/cli"
	"bakeledger/internal/core"
	apphttp "bakeledger/internal/http"
	"bakeledger/internal/identity"
	"bakeledger/internal/ledger"
	"bakeledger/internal/log"
	gsheet "bakeledger/internal/sheets/google"
	"bakeledger/internal/vision"
)

func main() {
	cli.LoadEnv()
	logger := cli.SetupLogger(log.ComponentApp)

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	userID, err := identity.Resolve(cfg.UserID, filepath.Dir(cfg.SQLiteDBPath))
	if err != nil {
		cli.Fatal(logger, "Failed to resolve user identity", err)
	}

	store, err := backend.Build(cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer store.Cleanup()

	tax := core.DefaultTaxonomy()
	engine := ledger.NewEngine(tax, store.Store)
	if err := engine.SetActiveUser(context.Background(), userID); err != nil {
		cli.Fatal(logger, "Failed to activate user", err)
	}
	defer engine.Close()

	opts := apphttp.Options{Currency: cfg.Currency}
	if cfg.ExportEnabled() {
		exporter, err := gsheet.NewFromEnv(context.Background(), cfg.Currency)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		opts.Exporter = exporter
		logger.Info("Spreadsheet export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Spreadsheet export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}
	if os.Getenv("GEMINI_API_KEY") != "" {
		scanner, err := vision.New(context.Background(), cfg.GeminiModel)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize receipt scanner", err)
		}
		opts.Scanner = scanner
		logger.Info("Receipt scanning enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("Receipt scanning disabled - no GEMINI_API_KEY provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, engine, tax, logger, opts)
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := cli.SignalContext()
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting bakeledger server",
		"port", cfg.Port, "backend", cfg.DataBackend, log.FieldUser, userID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cli.Fatal(logger, "Server error", err)
	}
	logger.Info("Server stopped gracefully")
}
