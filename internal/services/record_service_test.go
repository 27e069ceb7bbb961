package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bakeledger/internal/core"
	"bakeledger/internal/storage"
)

func newTestService(t *testing.T) *RecordService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	// No AMQP in tests; the queue publish is best-effort anyway.
	svc := NewRecordService(repo, nil)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestAppendWithoutQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Append(ctx, "baker-1", core.Record{
		Type:         core.Expense,
		Amount:       core.Money{Cents: 500},
		MainCategory: "鸡蛋",
		OccurredAt:   time.Now(),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatalf("append must return the assigned id")
	}
}

func TestRemoveWithoutQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Append(ctx, "baker-1", core.Record{
		Type:         core.Expense,
		Amount:       core.Money{Cents: 500},
		MainCategory: "鸡蛋",
		OccurredAt:   time.Now(),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.Remove(ctx, "baker-1", id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := svc.Remove(ctx, "baker-1", id); err == nil {
		t.Fatalf("second remove should fail")
	}
}

func TestSubscribeDelegatesToStorage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var got [][]core.Record
	cancel, err := svc.Subscribe(ctx, "baker-1", func(s []core.Record) {
		got = append(got, s)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := svc.Append(ctx, "baker-1", core.Record{
		Type:         core.Income,
		Amount:       core.Money{Cents: 100},
		MainCategory: "甜品",
		SubCategory:  "花酥",
		OccurredAt:   time.Now(),
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if len(got) != 2 || len(got[1]) != 1 {
		t.Fatalf("expected initial + change snapshot, got %d", len(got))
	}
}
