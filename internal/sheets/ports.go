// Package sheets defines the export collaborator boundary: the flat row
// projection of ledger records and the ports spreadsheet adapters implement.
package sheets

import (
	"context"
	"time"
)

// Ports for outbound spreadsheet adapters.
type (
	// RowWriter mirrors a single record row, returning an adapter-specific
	// row reference.
	RowWriter interface {
		AppendRow(ctx context.Context, row Row) (rowRef string, err error)
	}

	// RowRemover removes a previously mirrored row by record id.
	RowRemover interface {
		RemoveRow(ctx context.Context, recordID string) error
	}

	// MonthExporter writes a whole month's rows as one report sheet.
	MonthExporter interface {
		ExportMonth(ctx context.Context, year int, month time.Month, rows []Row) error
	}
)
