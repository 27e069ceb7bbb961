// Package services composes the storage repository and the AMQP sync channel
// into the store the ledger engine talks to.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"bakeledger/internal/amqp"
	"bakeledger/internal/core"
	"bakeledger/internal/ledger"
	"bakeledger/internal/storage"
)

// RecordService persists records locally and queues spreadsheet mirroring.
// The queue publish is fire-and-forget: the record is saved either way and
// the periodic backup sync picks up anything the queue loses.
type RecordService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

var _ ledger.Store = (*RecordService)(nil)

func NewRecordService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *RecordService {
	return &RecordService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// Append implements ledger.Store.
func (s *RecordService) Append(ctx context.Context, userID string, rec core.Record) (string, error) {
	id, err := s.storage.Append(ctx, userID, rec)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}

	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "record_id", id)
		return id, nil
	}
	if err := s.amqpClient.PublishRecordSync(ctx, id, userID); err != nil {
		// The record is saved; the backup sync will mirror it.
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"record_id", id, "error", err)
	}
	return id, nil
}

// Remove implements ledger.Store.
func (s *RecordService) Remove(ctx context.Context, userID, id string) error {
	if err := s.storage.Remove(ctx, userID, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping delete message", "record_id", id)
		return nil
	}
	if err := s.amqpClient.PublishRecordDelete(ctx, id, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message",
			"record_id", id, "error", err)
	}
	return nil
}

// Subscribe implements ledger.Store.
func (s *RecordService) Subscribe(ctx context.Context, userID string, fn func([]core.Record)) (func(), error) {
	return s.storage.Subscribe(ctx, userID, fn)
}

// Close closes both storage and AMQP connections.
func (s *RecordService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close record service: %v", errs)
	}
	return nil
}
