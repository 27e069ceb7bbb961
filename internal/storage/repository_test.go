package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bakeledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRecord(occurred time.Time) core.Record {
	return core.Record{
		Type:         core.Income,
		Amount:       core.Money{Cents: 10000},
		MainCategory: "蛋糕",
		SubCategory:  "板栗蛋糕",
		Size:         "6寸",
		Note:         "birthday order",
		OccurredAt:   occurred,
		CreatedAt:    occurred,
	}
}

func TestAppendAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := testRecord(time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local))
	newer := testRecord(time.Date(2026, 1, 20, 10, 0, 0, 0, time.Local))

	if _, err := repo.Append(ctx, "baker-1", older); err != nil {
		t.Fatalf("append: %v", err)
	}
	id2, err := repo.Append(ctx, "baker-1", newer)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id2 == "" {
		t.Fatalf("append must assign an id")
	}

	got, err := repo.ListRecords(ctx, "baker-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	// Newest first
	if !got[0].OccurredAt.After(got[1].OccurredAt) {
		t.Fatalf("records not ordered occurredAt desc: %v then %v", got[0].OccurredAt, got[1].OccurredAt)
	}
	if got[0].ID != id2 {
		t.Fatalf("newest record id = %q, want %q", got[0].ID, id2)
	}
	if got[0].MainCategory != "蛋糕" || got[0].SubCategory != "板栗蛋糕" || got[0].Size != "6寸" {
		t.Fatalf("roundtrip lost fields: %+v", got[0])
	}

	// Other users see nothing
	other, err := repo.ListRecords(ctx, "baker-2")
	if err != nil {
		t.Fatalf("list other user: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("records leaked across users: %d", len(other))
	}
}

func TestSubscribePushesSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var snapshots [][]core.Record
	cancel, err := repo.Subscribe(ctx, "baker-1", func(s []core.Record) {
		snapshots = append(snapshots, s)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Initial snapshot is delivered immediately, even when empty.
	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("expected one empty initial snapshot, got %d", len(snapshots))
	}

	id, err := repo.Append(ctx, "baker-1", testRecord(time.Now()))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 1 {
		t.Fatalf("append should push a fresh snapshot, got %d snapshots", len(snapshots))
	}

	if err := repo.Remove(ctx, "baker-1", id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(snapshots) != 3 || len(snapshots[2]) != 0 {
		t.Fatalf("remove should push a fresh snapshot, got %d snapshots", len(snapshots))
	}

	// After cancel, changes stop arriving.
	cancel()
	if _, err := repo.Append(ctx, "baker-1", testRecord(time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("cancelled subscriber still notified")
	}
}

func TestRemoveUnknownRecord(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Remove(context.Background(), "baker-1", "missing"); err == nil {
		t.Fatalf("expected error for unknown record")
	}
}

func TestSyncBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Append(ctx, "baker-1", testRecord(time.Now()))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	pending, err := repo.GetPendingSyncRecords(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id || pending[0].Deleted {
		t.Fatalf("pending wrong: %+v", pending)
	}

	if err := repo.MarkSynced(ctx, id); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ = repo.GetPendingSyncRecords(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("synced record still pending")
	}

	// Deleting re-queues the record for the worker, flagged as deleted.
	if err := repo.Remove(ctx, "baker-1", id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	pending, _ = repo.GetPendingSyncRecords(ctx, 10)
	if len(pending) != 1 || !pending[0].Deleted {
		t.Fatalf("deleted record should be pending again: %+v", pending)
	}

	rec, deleted, err := repo.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !deleted || rec.ID != id {
		t.Fatalf("get record after delete: deleted=%v rec=%+v", deleted, rec)
	}

	// A failed mirror attempt stays in the backup queue for retry.
	if err := repo.MarkSyncError(ctx, id); err != nil {
		t.Fatalf("mark sync error: %v", err)
	}
	pending, _ = repo.GetPendingSyncRecords(ctx, 10)
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("errored record should remain in backup queue: %+v", pending)
	}
}
