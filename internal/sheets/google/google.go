// Package google mirrors ledger rows to a Google spreadsheet. One running
// sheet receives every record as it is created; month reports are rewritten
// wholesale on export.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "bakeledger/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	recordsSheet  string
	currency      string
}

// Ensure interface conformance
var (
	_ ports.RowWriter     = (*Client)(nil)
	_ ports.RowRemover    = (*Client)(nil)
	_ ports.MonthExporter = (*Client)(nil)
)

// The record id rides in the column right after the display columns so
// RemoveRow can find the row later.
const idColumnOffset = 7

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS. GOOGLE_SHEET_NAME defaults to "Records".
func NewFromEnv(ctx context.Context, currency string) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	recordsSheet := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if recordsSheet == "" {
		recordsSheet = "Records"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		recordsSheet:  recordsSheet,
		currency:      currency,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendRow implements ports.RowWriter.
func (c *Client) AppendRow(ctx context.Context, row ports.Row) (string, error) {
	cells := make([]interface{}, 0, idColumnOffset+1)
	for _, v := range row.Columns() {
		cells = append(cells, v)
	}
	cells = append(cells, row.RecordID)

	vr := &gsheet.ValueRange{Values: [][]interface{}{cells}}
	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.recordsSheet+"!A:H", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append row: %w", err)
	}

	ref := c.recordsSheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Row mirrored to spreadsheet",
		"record_id", row.RecordID, "sheet_ref", ref)
	return ref, nil
}

// RemoveRow implements ports.RowRemover. It scans the id column for the
// record and deletes the matching row.
func (c *Client) RemoveRow(ctx context.Context, recordID string) error {
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, c.recordsSheet+"!H:H").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read id column: %w", err)
	}

	rowIndex := -1
	for i, cells := range resp.Values {
		if len(cells) > 0 && fmt.Sprint(cells[0]) == recordID {
			rowIndex = i
			break
		}
	}
	if rowIndex < 0 {
		// Already gone; removal is idempotent.
		slog.WarnContext(ctx, "Row not found in spreadsheet, skipping removal",
			"record_id", recordID)
		return nil
	}

	sheetID, err := c.sheetID(ctx, c.recordsSheet)
	if err != nil {
		return err
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowIndex),
					EndIndex:   int64(rowIndex) + 1,
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}

	slog.InfoContext(ctx, "Row removed from spreadsheet", "record_id", recordID)
	return nil
}

// ExportMonth implements ports.MonthExporter. The month gets its own sheet,
// created on first export and rewritten on each subsequent one.
func (c *Client) ExportMonth(ctx context.Context, year int, month time.Month, rows []ports.Row) error {
	sheetName := fmt.Sprintf("%04d-%02d", year, int(month))

	if _, err := c.sheetID(ctx, sheetName); err != nil {
		_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheet.Request{{
				AddSheet: &gsheet.AddSheetRequest{
					Properties: &gsheet.SheetProperties{Title: sheetName},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("create month sheet %s: %w", sheetName, err)
		}
	}

	if _, err := c.svc.Spreadsheets.Values.
		Clear(c.spreadsheetID, sheetName+"!A:G", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear month sheet %s: %w", sheetName, err)
	}

	values := make([][]interface{}, 0, len(rows)+1)
	header := make([]interface{}, 0, idColumnOffset)
	for _, h := range ports.Header(c.currency) {
		header = append(header, h)
	}
	values = append(values, header)
	for _, row := range rows {
		cells := make([]interface{}, 0, idColumnOffset)
		for _, v := range row.Columns() {
			cells = append(cells, v)
		}
		values = append(values, cells)
	}

	_, err := c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, sheetName+"!A1", &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write month sheet %s: %w", sheetName, err)
	}

	slog.InfoContext(ctx, "Month exported to spreadsheet",
		"year", year, "month", int(month), "rows", len(rows))
	return nil
}

func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}
