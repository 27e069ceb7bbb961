// Package storage is the durable side of the ledger: a SQLite-backed
// repository that owns the authoritative record collection and pushes full
// snapshots to subscribers whenever a user's records change.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bakeledger/internal/core"
)

// Sync status values for the spreadsheet sync worker.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

type SQLiteRepository struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[string]map[int64]func([]core.Record) // userID -> token -> callback
	next int64
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:   db,
		subs: make(map[string]map[int64]func([]core.Record)),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append implements ledger.Store. The record id is assigned here; the new
// snapshot is pushed to all of the user's subscribers before returning.
func (r *SQLiteRepository) Append(ctx context.Context, userID string, rec core.Record) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records
			(id, user_id, type, amount_cents, main_category, sub_category, size, note, photo, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, string(rec.Type), rec.Amount.Cents,
		rec.MainCategory, rec.SubCategory, rec.Size, rec.Note, rec.Photo,
		rec.OccurredAt.Format(time.RFC3339Nano), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}

	slog.InfoContext(ctx, "Record saved",
		"record_id", id,
		"user_id", userID,
		"record_type", rec.Type,
		"amount_cents", rec.Amount.Cents,
		"main_category", rec.MainCategory)

	r.notify(ctx, userID)
	return id, nil
}

// Remove implements ledger.Store. Deletion is soft so the sync worker can
// mirror it to the export spreadsheet before the row disappears for good.
func (r *SQLiteRepository) Remove(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET deleted = 1, sync_status = ? WHERE id = ? AND user_id = ? AND deleted = 0`,
		SyncPending, id, userID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s not found for user %s", id, userID)
	}

	slog.InfoContext(ctx, "Record deleted", "record_id", id, "user_id", userID)

	r.notify(ctx, userID)
	return nil
}

// Subscribe implements ledger.Store. The current snapshot is delivered
// immediately, then again after every change, always as the full ordered
// list.
func (r *SQLiteRepository) Subscribe(ctx context.Context, userID string, fn func([]core.Record)) (func(), error) {
	snapshot, err := r.ListRecords(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.next++
	token := r.next
	if r.subs[userID] == nil {
		r.subs[userID] = make(map[int64]func([]core.Record))
	}
	r.subs[userID][token] = fn
	r.mu.Unlock()

	fn(snapshot)

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[userID], token)
	}
	return cancel, nil
}

func (r *SQLiteRepository) notify(ctx context.Context, userID string) {
	r.mu.Lock()
	fns := make([]func([]core.Record), 0, len(r.subs[userID]))
	for _, fn := range r.subs[userID] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	snapshot, err := r.ListRecords(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build snapshot for subscribers",
			"user_id", userID, "error", err)
		return
	}
	for _, fn := range fns {
		fn(snapshot)
	}
}

// ListRecords returns a user's live records ordered by occurrence time
// descending, newest first; ties break on creation time.
func (r *SQLiteRepository) ListRecords(ctx context.Context, userID string) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, amount_cents, main_category, sub_category, size, note, photo, occurred_at, created_at
		FROM records
		WHERE user_id = ? AND deleted = 0
		ORDER BY occurred_at DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (core.Record, error) {
	var (
		rec                  core.Record
		typ                  string
		cents                sql.NullInt64
		occurredAt, createdAt string
	)
	if err := s.Scan(&rec.ID, &typ, &cents, &rec.MainCategory, &rec.SubCategory,
		&rec.Size, &rec.Note, &rec.Photo, &occurredAt, &createdAt); err != nil {
		return core.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Type = core.RecordType(typ)
	// A NULL amount is a corrupt row, not a reason to fail the snapshot.
	if cents.Valid {
		rec.Amount = core.Money{Cents: cents.Int64}
	}
	rec.OccurredAt = parseStoredTime(occurredAt)
	rec.CreatedAt = parseStoredTime(createdAt)
	return rec, nil
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetRecord fetches a single record by id regardless of deletion state. The
// sync worker uses it to mirror both creations and deletions.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (core.Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, amount_cents, main_category, sub_category, size, note, photo, occurred_at, created_at, deleted
		FROM records WHERE id = ?`, id)
	var (
		rec                   core.Record
		typ                   string
		cents                 sql.NullInt64
		occurredAt, createdAt string
		deleted               int
	)
	err := row.Scan(&rec.ID, &typ, &cents, &rec.MainCategory, &rec.SubCategory,
		&rec.Size, &rec.Note, &rec.Photo, &occurredAt, &createdAt, &deleted)
	if err == sql.ErrNoRows {
		return core.Record{}, false, fmt.Errorf("record %s not found", id)
	}
	if err != nil {
		return core.Record{}, false, fmt.Errorf("get record: %w", err)
	}
	rec.Type = core.RecordType(typ)
	if cents.Valid {
		rec.Amount = core.Money{Cents: cents.Int64}
	}
	rec.OccurredAt = parseStoredTime(occurredAt)
	rec.CreatedAt = parseStoredTime(createdAt)
	return rec, deleted == 1, nil
}

// PendingSyncRecord is the minimal unit of work for the sync worker.
type PendingSyncRecord struct {
	ID      string
	UserID  string
	Deleted bool
}

// GetPendingSyncRecords returns records not yet mirrored to the export
// spreadsheet, oldest first. This is the backup path for lost queue messages,
// so it also picks up records whose last mirror attempt failed.
func (r *SQLiteRepository) GetPendingSyncRecords(ctx context.Context, limit int) ([]PendingSyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, deleted FROM records
		WHERE sync_status IN (?, ?)
		ORDER BY created_at ASC
		LIMIT ?`, SyncPending, SyncError, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync records: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncRecord
	for rows.Next() {
		var p PendingSyncRecord
		var deleted int
		if err := rows.Scan(&p.ID, &p.UserID, &deleted); err != nil {
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		p.Deleted = deleted == 1
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a record as successfully mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET sync_status = ?, synced_at = ? WHERE id = ?`,
		SyncDone, time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark record synced: %w", err)
	}
	return nil
}

// MarkSyncError marks a record so the periodic backup sync retries it later.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET sync_status = ? WHERE id = ?`, SyncError, id)
	if err != nil {
		return fmt.Errorf("mark record sync error: %w", err)
	}
	slog.WarnContext(ctx, "Record marked with sync error", "record_id", id)
	return nil
}
