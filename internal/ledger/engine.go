// Package ledger implements the in-memory ledger engine: it owns the record
// collection for the active user, validates and submits mutations to the
// storage layer and answers month-scoped queries over the latest snapshot.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bakeledger/internal/core"
)

var (
	ErrMissingActiveUser = errors.New("no active user")
	ErrNotFound          = errors.New("record not found")
	ErrPersistenceFailed = errors.New("persistence failed")
)

// Store is the storage collaborator boundary. Snapshots delivered through
// Subscribe are the full ordered record list for the user, occurredAt
// descending, pushed at least once per change with no ordering guarantee
// relative to Append/Remove calls.
type Store interface {
	Append(ctx context.Context, userID string, r core.Record) (id string, err error)
	Remove(ctx context.Context, userID, id string) error
	Subscribe(ctx context.Context, userID string, fn func(snapshot []core.Record)) (cancel func(), err error)
}

// CreateInput is a record creation request as it arrives from the caller,
// with the amount still in user-entered form.
type CreateInput struct {
	Type         core.RecordType
	Amount       string
	MainCategory string
	SubCategory  string
	Size         string
	Note         string
	Photo        string
}

// Engine holds the record collection for exactly one active user. All reads
// return copies; the internal slice is swapped wholesale on each snapshot and
// never mutated in place.
type Engine struct {
	tax   *core.Taxonomy
	store Store
	now   func() time.Time

	mu          sync.RWMutex
	userID      string
	generation  uint64
	revision    uint64
	unsubscribe func()
	records     []core.Record
	byID        map[string]struct{}
}

func NewEngine(tax *core.Taxonomy, store Store) *Engine {
	return &Engine{
		tax:   tax,
		store: store,
		now:   time.Now,
		byID:  make(map[string]struct{}),
	}
}

// SetActiveUser switches the engine to a new user: the previous subscription
// is cancelled, local state is cleared and a fresh subscription is opened.
// Snapshots still in flight for the previous user are dropped via the
// generation tag. An empty userID just clears the engine.
func (e *Engine) SetActiveUser(ctx context.Context, userID string) error {
	e.mu.Lock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.generation++
	e.revision++
	gen := e.generation
	e.userID = userID
	e.records = nil
	e.byID = make(map[string]struct{})
	e.mu.Unlock()

	if userID == "" {
		return nil
	}

	cancel, err := e.store.Subscribe(ctx, userID, func(snapshot []core.Record) {
		e.applySnapshot(gen, snapshot)
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe for user %s: %v", ErrPersistenceFailed, userID, err)
	}

	e.mu.Lock()
	if e.generation != gen {
		// Superseded while subscribing; drop the new subscription too.
		e.mu.Unlock()
		cancel()
		return nil
	}
	e.unsubscribe = cancel
	e.mu.Unlock()
	return nil
}

// ActiveUser returns the current user id, empty when none.
func (e *Engine) ActiveUser() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userID
}

// Close cancels the active subscription and clears the engine.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.generation++
	e.revision++
	e.userID = ""
	e.records = nil
	e.byID = make(map[string]struct{})
}

// ReplaceAll atomically replaces the whole collection with a fresh snapshot.
// Last snapshot wins; there are no partial-merge semantics, so calling it
// repeatedly with the same snapshot is idempotent.
func (e *Engine) ReplaceAll(snapshot []core.Record) {
	e.mu.RLock()
	gen := e.generation
	e.mu.RUnlock()
	e.applySnapshot(gen, snapshot)
}

func (e *Engine) applySnapshot(gen uint64, snapshot []core.Record) {
	records := append([]core.Record(nil), snapshot...)
	byID := make(map[string]struct{}, len(records))
	for _, r := range records {
		byID[r.ID] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		// Stale callback for a superseded user.
		return
	}
	e.records = records
	e.byID = byID
	e.revision++
}

// Revision increases monotonically with every applied snapshot. Derived views
// cached under an older revision are stale.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

// Create validates the input against the taxonomy, stamps the timestamps and
// submits the record to the storage layer. It rejects bad input before any
// side effect and returns the pending record with the id assigned by storage.
// The record counts as confirmed only once a later snapshot reflects it.
func (e *Engine) Create(ctx context.Context, in CreateInput) (core.Record, error) {
	e.mu.RLock()
	userID := e.userID
	e.mu.RUnlock()
	if userID == "" {
		return core.Record{}, ErrMissingActiveUser
	}

	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return core.Record{}, err
	}

	now := e.now()
	r := core.Record{
		Type:         in.Type,
		Amount:       core.Money{Cents: cents},
		MainCategory: in.MainCategory,
		SubCategory:  in.SubCategory,
		Size:         in.Size,
		Note:         in.Note,
		Photo:        in.Photo,
		OccurredAt:   now,
		CreatedAt:    now,
	}
	r = r.Normalize(e.tax)
	if err := r.Validate(e.tax); err != nil {
		return core.Record{}, err
	}

	id, err := e.store.Append(ctx, userID, r)
	if err != nil {
		// Local state stays untouched; the authoritative snapshot will not
		// change either, so nothing can diverge.
		return core.Record{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	r.ID = id
	return r, nil
}

// Delete submits a deletion for the given id. A locally unknown id fails with
// ErrNotFound; this is advisory, since the local copy may lag the store.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.RLock()
	userID := e.userID
	_, present := e.byID[id]
	e.mu.RUnlock()
	if userID == "" {
		return ErrMissingActiveUser
	}
	if !present {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := e.store.Remove(ctx, userID, id); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// Records returns a copy of the current snapshot in delivery order.
func (e *Engine) Records() []core.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]core.Record(nil), e.records...)
}

// Has reports whether a record id is present in the current snapshot, i.e.
// the store has confirmed it.
func (e *Engine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.byID[id]
	return ok
}

// RecordsInMonth filters the current snapshot to records occurring in the
// given calendar month. Delivery order is preserved; the engine never
// re-sorts.
func (e *Engine) RecordsInMonth(year int, month time.Month) []core.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []core.Record
	for _, r := range e.records {
		if r.InMonth(year, month) {
			out = append(out, r)
		}
	}
	return out
}

// MonthStatistics computes the running totals over the given month's records.
func (e *Engine) MonthStatistics(year int, month time.Month) core.Statistics {
	return core.ComputeStatistics(e.RecordsInMonth(year, month))
}
