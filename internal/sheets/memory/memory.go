// Package memory is an in-process spreadsheet stand-in used by tests and by
// deployments without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bakeledger/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	rows    []sheets.Row
	exports map[string][]sheets.Row // "YYYY-MM" -> last exported rows
}

func New() *Store {
	return &Store{exports: make(map[string][]sheets.Row)}
}

// AppendRow implements sheets.RowWriter.
func (s *Store) AppendRow(_ context.Context, row sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// RemoveRow implements sheets.RowRemover.
func (s *Store) RemoveRow(_ context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.RecordID != recordID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

// ExportMonth implements sheets.MonthExporter. The last export per month
// wins, like rewriting a report sheet.
func (s *Store) ExportMonth(_ context.Context, year int, month time.Month, rows []sheets.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%04d-%02d", year, int(month))
	s.exports[key] = append([]sheets.Row(nil), rows...)
	return nil
}

// Rows returns a copy of all mirrored rows, append order.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}

// Export returns the last exported rows for a month.
func (s *Store) Export(year int, month time.Month) []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%04d-%02d", year, int(month))
	return append([]sheets.Row(nil), s.exports[key]...)
}
