package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bakeledger/internal/core"
	"bakeledger/internal/ledger"
	"bakeledger/internal/log"
	"bakeledger/internal/sheets"
	"bakeledger/internal/vision"
)

// maxScanImageBytes bounds receipt uploads; phone photos compress well below
// this.
const maxScanImageBytes = 8 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type recordJSON struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	AmountCents  int64  `json:"amountCents"`
	MainCategory string `json:"mainCategory"`
	SubCategory  string `json:"subCategory,omitempty"`
	Size         string `json:"size,omitempty"`
	Note         string `json:"note,omitempty"`
	Photo        string `json:"photo,omitempty"`
	OccurredAt   string `json:"occurredAt"`
	CreatedAt    string `json:"createdAt"`
}

func toRecordJSON(r core.Record) recordJSON {
	return recordJSON{
		ID:           r.ID,
		Type:         string(r.Type),
		Amount:       r.Amount.String(),
		AmountCents:  r.Amount.Cents,
		MainCategory: r.MainCategory,
		SubCategory:  r.SubCategory,
		Size:         r.Size,
		Note:         r.Note,
		Photo:        r.Photo,
		OccurredAt:   r.OccurredAt.Format(time.RFC3339),
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}

type createRecordRequest struct {
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	MainCategory string `json:"mainCategory"`
	SubCategory  string `json:"subCategory"`
	Size         string `json:"size"`
	Note         string `json:"note"`
	Photo        string `json:"photo"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	var req createRecordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.engine.Create(r.Context(), ledger.CreateInput{
		Type:         core.RecordType(strings.TrimSpace(req.Type)),
		Amount:       req.Amount,
		MainCategory: strings.TrimSpace(req.MainCategory),
		SubCategory:  strings.TrimSpace(req.SubCategory),
		Size:         strings.TrimSpace(req.Size),
		Note:         strings.TrimSpace(req.Note),
		Photo:        req.Photo,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrMissingActiveUser):
			writeError(w, http.StatusServiceUnavailable, "no active user")
		case errors.Is(err, ledger.ErrPersistenceFailed):
			logger.ErrorContext(r.Context(), "Record creation failed",
				log.FieldOperation, log.OpCreate, log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "could not save record")
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}

	logger.InfoContext(r.Context(), "Record created",
		log.FieldOperation, log.OpCreate,
		log.FieldRecordID, rec.ID,
		log.FieldRecordType, string(rec.Type),
		log.FieldAmountCents, rec.Amount.Cents,
		log.FieldMainCat, rec.MainCategory,
	)
	writeJSON(w, http.StatusCreated, toRecordJSON(rec))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	id := r.PathValue("id")

	if err := s.engine.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ledger.ErrMissingActiveUser):
			writeError(w, http.StatusServiceUnavailable, "no active user")
		case errors.Is(err, ledger.ErrNotFound):
			writeError(w, http.StatusNotFound, "record not found")
		default:
			logger.ErrorContext(r.Context(), "Record deletion failed",
				log.FieldOperation, log.OpDelete, log.FieldRecordID, id, log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "could not delete record")
		}
		return
	}

	logger.InfoContext(r.Context(), "Record deleted",
		log.FieldOperation, log.OpDelete, log.FieldRecordID, id)
	w.WriteHeader(http.StatusNoContent)
}

// monthParams reads year and month query parameters, defaulting to the
// current month.
func monthParams(r *http.Request) (int, time.Month, error) {
	now := time.Now()
	year, month := now.Year(), now.Month()

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return 0, 0, errors.New("invalid year parameter")
		}
		year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, errors.New("invalid month parameter")
		}
		month = time.Month(m)
	}
	return year, month, nil
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	year, month, err := monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view := s.monthViewFor(year, month)
	records := make([]recordJSON, len(view.Records))
	for i, rec := range view.Records {
		records[i] = toRecordJSON(rec)
	}

	writeJSON(w, http.StatusOK, struct {
		Year    int          `json:"year"`
		Month   int          `json:"month"`
		Records []recordJSON `json:"records"`
	}{Year: year, Month: int(month), Records: records})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	year, month, err := monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats := s.monthViewFor(year, month).Stats
	writeJSON(w, http.StatusOK, struct {
		Year                 int    `json:"year"`
		Month                int    `json:"month"`
		Currency             string `json:"currency"`
		Income               string `json:"income"`
		IncomeCents          int64  `json:"incomeCents"`
		Expense              string `json:"expense"`
		ExpenseCents         int64  `json:"expenseCents"`
		Net                  string `json:"net"`
		NetCents             int64  `json:"netCents"`
		ProjectedAnnual      string `json:"projectedAnnual"`
		ProjectedAnnualCents int64  `json:"projectedAnnualCents"`
	}{
		Year:                 year,
		Month:                int(month),
		Currency:             s.currency,
		Income:               stats.Income.String(),
		IncomeCents:          stats.Income.Cents,
		Expense:              stats.Expense.String(),
		ExpenseCents:         stats.Expense.Cents,
		Net:                  stats.Net().String(),
		NetCents:             stats.Net().Cents,
		ProjectedAnnual:      stats.ProjectedAnnual().String(),
		ProjectedAnnualCents: stats.ProjectedAnnual().Cents,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	type incomeCategoryJSON struct {
		Name          string   `json:"name"`
		Subcategories []string `json:"subcategories"`
		HasSize       bool     `json:"hasSize"`
	}

	mains := s.tax.MainCategories(core.Income)
	income := make([]incomeCategoryJSON, 0, len(mains))
	for _, name := range mains {
		subs, err := s.tax.SubCategories(name)
		if err != nil {
			continue
		}
		hasSize, _ := s.tax.HasSizeAttribute(name)
		income = append(income, incomeCategoryJSON{Name: name, Subcategories: subs, HasSize: hasSize})
	}

	writeJSON(w, http.StatusOK, struct {
		Income  []incomeCategoryJSON `json:"income"`
		Expense []string             `json:"expense"`
		Sizes   []string             `json:"sizes"`
	}{Income: income, Expense: s.tax.MainCategories(core.Expense), Sizes: s.tax.SuggestedSizes()})
}

type exportRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	var req exportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Year < 1 || req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}
	month := time.Month(req.Month)

	records := s.engine.RecordsInMonth(req.Year, month)
	if err := s.exporter.ExportMonth(r.Context(), req.Year, month, sheets.ProjectRows(records)); err != nil {
		logger.ErrorContext(r.Context(), "Month export failed",
			log.FieldOperation, log.OpExport,
			log.FieldYear, req.Year, log.FieldMonth, req.Month,
			log.FieldError, err)
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}

	logger.InfoContext(r.Context(), "Month exported",
		log.FieldOperation, log.OpExport,
		log.FieldYear, req.Year, log.FieldMonth, req.Month,
		"record_count", len(records))
	writeJSON(w, http.StatusOK, struct {
		Exported int `json:"exported"`
	}{Exported: len(records)})
}

func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if s.scanner == nil {
		writeError(w, http.StatusNotImplemented, "receipt scanning is not configured")
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "expected an image body")
		return
	}
	image, err := io.ReadAll(io.LimitReader(r.Body, maxScanImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image body")
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "empty image body")
		return
	}
	if len(image) > maxScanImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	receipt, err := s.scanner.ScanReceipt(r.Context(), image, mimeType)
	if err != nil {
		if errors.Is(err, vision.ErrNoReceiptData) {
			writeError(w, http.StatusUnprocessableEntity, "no usable receipt data")
			return
		}
		logger.ErrorContext(r.Context(), "Receipt scan failed",
			log.FieldOperation, log.OpScan, log.FieldError, err)
		writeError(w, http.StatusBadGateway, "receipt scan failed")
		return
	}

	total := core.Money{Cents: receipt.TotalCents}
	logger.InfoContext(r.Context(), "Receipt scanned",
		log.FieldOperation, log.OpScan,
		log.FieldAmountCents, total.Cents,
		"item_count", len(receipt.Items))
	writeJSON(w, http.StatusOK, struct {
		Amount      string `json:"amount"`
		AmountCents int64  `json:"amountCents"`
		Note        string `json:"note"`
	}{Amount: total.String(), AmountCents: total.Cents, Note: receipt.NoteSummary()})
}
