// Package worker mirrors ledger records from SQLite to the export
// spreadsheet, driven by queue messages with a periodic backup pass for
// anything the queue loses.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bakeledger/internal/amqp"
	"bakeledger/internal/sheets"
	"bakeledger/internal/storage"
)

type SyncWorker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.RowWriter
	remover   sheets.RowRemover
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, writer sheets.RowWriter, remover sheets.RowRemover, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		writer:    writer,
		remover:   remover,
		batchSize: batchSize,
	}
}

// HandleMessage processes one queue message. Errors bubble up so the
// delivery gets requeued.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing record message",
		"kind", msg.Kind, "record_id", msg.RecordID)

	switch msg.Kind {
	case amqp.KindRecordSync, amqp.KindRecordDelete:
		return w.syncRecord(ctx, msg.RecordID)
	default:
		// Unknown kinds are dropped, not requeued forever.
		slog.WarnContext(ctx, "Unknown message kind, dropping", "kind", msg.Kind)
		return nil
	}
}

// syncRecord brings the spreadsheet in line with the stored record state:
// live records get a row appended, deleted ones get their row removed. Both
// message kinds converge here so a reordered delete/sync pair still ends in
// the right state.
func (w *SyncWorker) syncRecord(ctx context.Context, id string) error {
	rec, deleted, err := w.storage.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("get record from storage: %w", err)
	}

	if deleted {
		if err := w.remover.RemoveRow(ctx, id); err != nil {
			w.markError(ctx, id)
			return fmt.Errorf("remove row: %w", err)
		}
	} else {
		if _, err := w.writer.AppendRow(ctx, sheets.ProjectRow(rec)); err != nil {
			w.markError(ctx, id)
			return fmt.Errorf("append row: %w", err)
		}
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (w *SyncWorker) markError(ctx context.Context, id string) {
	if err := w.storage.MarkSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "record_id", id, "error", err)
	}
}

// ProcessPendingRecords mirrors any records the queue missed. Failures are
// logged per record and the pass continues; the next tick retries.
func (w *SyncWorker) ProcessPendingRecords(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncRecords(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending records: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending records", "count", len(pending))

	for _, p := range pending {
		if err := w.syncRecord(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending record",
				"record_id", p.ID, "error", err)
		}
	}
	return nil
}
