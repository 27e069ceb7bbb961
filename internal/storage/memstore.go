package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bakeledger/internal/core"
)

// MemStore is an in-memory implementation of the ledger.Store port, used for
// the memory backend and in tests. Same contract as the SQLite repository:
// full snapshots, occurredAt descending, pushed on every change.
type MemStore struct {
	mu      sync.Mutex
	records map[string][]core.Record // per user
	subs    map[string]map[int64]func([]core.Record)
	next    int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string][]core.Record),
		subs:    make(map[string]map[int64]func([]core.Record)),
	}
}

func (s *MemStore) Append(_ context.Context, userID string, rec core.Record) (string, error) {
	s.mu.Lock()
	rec.ID = uuid.NewString()
	s.records[userID] = append(s.records[userID], rec)
	sort.SliceStable(s.records[userID], func(i, j int) bool {
		return s.records[userID][i].OccurredAt.After(s.records[userID][j].OccurredAt)
	})
	fns, snapshot := s.subscribersLocked(userID)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	return rec.ID, nil
}

func (s *MemStore) Remove(_ context.Context, userID, id string) error {
	s.mu.Lock()
	recs := s.records[userID]
	found := false
	kept := recs[:0]
	for _, r := range recs {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	s.records[userID] = kept
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("record %s not found for user %s", id, userID)
	}
	fns, snapshot := s.subscribersLocked(userID)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	return nil
}

func (s *MemStore) Subscribe(_ context.Context, userID string, fn func([]core.Record)) (func(), error) {
	s.mu.Lock()
	s.next++
	token := s.next
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int64]func([]core.Record))
	}
	s.subs[userID][token] = fn
	snapshot := append([]core.Record(nil), s.records[userID]...)
	s.mu.Unlock()

	fn(snapshot)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[userID], token)
	}, nil
}

func (s *MemStore) subscribersLocked(userID string) ([]func([]core.Record), []core.Record) {
	fns := make([]func([]core.Record), 0, len(s.subs[userID]))
	for _, fn := range s.subs[userID] {
		fns = append(fns, fn)
	}
	return fns, append([]core.Record(nil), s.records[userID]...)
}
