// Package backend selects and assembles the store the ledger engine runs on,
// based on configuration.
package backend

import (
	"fmt"

	"bakeledger/internal/amqp"
	"bakeledger/internal/config"
	"bakeledger/internal/ledger"
	"bakeledger/internal/log"
	"bakeledger/internal/services"
	"bakeledger/internal/storage"
)

// Result bundles the assembled store with the cleanup that releases its
// resources. Cleanup is never nil.
type Result struct {
	Store   ledger.Store
	Cleanup func() error
}

// Build assembles the configured backend. The sqlite backend pairs the
// repository with the AMQP sync channel when one is configured; a failed AMQP
// connection degrades to local-only persistence instead of failing startup.
func Build(cfg *config.Config, logger *log.Logger) (*Result, error) {
	switch cfg.DataBackend {
	case "memory":
		logger.Info("Initialized memory backend")
		return &Result{
			Store:   storage.NewMemStore(),
			Cleanup: func() error { return nil },
		}, nil

	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite repository: %w", err)
		}

		var amqpClient *amqp.Client
		if cfg.AMQPURL != "" {
			amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				logger.Warn("Failed to initialize AMQP client, continuing without spreadsheet sync",
					log.FieldError, err)
				amqpClient = nil
			}
		}

		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath, "amqp", amqpClient != nil)
		return &Result{
			Store: services.NewRecordService(repo, amqpClient),
			Cleanup: func() error {
				if amqpClient != nil {
					_ = amqpClient.Close()
				}
				return repo.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}
}
