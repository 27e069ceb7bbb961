package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bakeledger/internal/core"
	"bakeledger/internal/ledger"
	"bakeledger/internal/log"
	"bakeledger/internal/sheets/memory"
	"bakeledger/internal/storage"
	"bakeledger/internal/vision"
)

type fakeScanner struct {
	receipt vision.Receipt
	err     error
}

func (f *fakeScanner) ScanReceipt(_ context.Context, _ []byte, _ string) (vision.Receipt, error) {
	return f.receipt, f.err
}

func newTestServer(t *testing.T, opts Options) (*Server, *ledger.Engine) {
	t.Helper()
	tax := core.DefaultTaxonomy()
	engine := ledger.NewEngine(tax, storage.NewMemStore())
	if err := engine.SetActiveUser(context.Background(), "baker-1"); err != nil {
		t.Fatalf("set active user: %v", err)
	}
	t.Cleanup(engine.Close)

	s := NewServer(":0", engine, tax, log.New(log.DefaultConfig()), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, engine
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateAndListRecords(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodPost, "/records", createRecordRequest{
		Type:         "income",
		Amount:       "88.00",
		MainCategory: "蛋糕",
		SubCategory:  "抹茶红豆乳蛋糕",
		Size:         "8寸",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[recordJSON](t, rec)
	if created.ID == "" || created.Amount != "88.00" || created.AmountCents != 8800 {
		t.Fatalf("unexpected record: %+v", created)
	}

	now := time.Now()
	list := doJSON(t, s, http.MethodGet, fmt.Sprintf("/records?year=%d&month=%d", now.Year(), int(now.Month())), nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", list.Code)
	}
	body := decodeBody[struct {
		Records []recordJSON `json:"records"`
	}](t, list)
	if len(body.Records) != 1 || body.Records[0].ID != created.ID {
		t.Fatalf("expected 1 record, got %+v", body.Records)
	}
}

func TestCreateRecordRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	cases := []struct {
		name string
		req  createRecordRequest
		want int
	}{
		{"bad amount", createRecordRequest{Type: "income", Amount: "abc", MainCategory: "蛋糕", SubCategory: "其它"}, http.StatusUnprocessableEntity},
		{"zero amount", createRecordRequest{Type: "income", Amount: "0", MainCategory: "蛋糕", SubCategory: "其它"}, http.StatusUnprocessableEntity},
		{"unknown category", createRecordRequest{Type: "income", Amount: "10", MainCategory: "面包", SubCategory: "其它"}, http.StatusUnprocessableEntity},
		{"unknown type", createRecordRequest{Type: "transfer", Amount: "10", MainCategory: "蛋糕", SubCategory: "其它"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/records", tc.req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}

	raw := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, raw)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestDeleteRecord(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	created := decodeBody[recordJSON](t, doJSON(t, s, http.MethodPost, "/records", createRecordRequest{
		Type: "expense", Amount: "30", MainCategory: "鸡蛋",
	}))

	del := doJSON(t, s, http.MethodDelete, "/records/"+created.ID, nil)
	if del.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", del.Code, del.Body.String())
	}

	again := doJSON(t, s, http.MethodDelete, "/records/"+created.ID, nil)
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", again.Code)
	}
}

func TestStatistics(t *testing.T) {
	s, _ := newTestServer(t, Options{Currency: "AED"})

	for _, req := range []createRecordRequest{
		{Type: "income", Amount: "100", MainCategory: "甜品", SubCategory: "马卡龙"},
		{Type: "income", Amount: "50", MainCategory: "烘焙课程", SubCategory: "初级烘焙课"},
		{Type: "expense", Amount: "30", MainCategory: "新鲜水果"},
	} {
		if rec := doJSON(t, s, http.MethodPost, "/records", req); rec.Code != http.StatusCreated {
			t.Fatalf("seed record: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/statistics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stats := decodeBody[struct {
		Currency             string `json:"currency"`
		IncomeCents          int64  `json:"incomeCents"`
		ExpenseCents         int64  `json:"expenseCents"`
		NetCents             int64  `json:"netCents"`
		ProjectedAnnualCents int64  `json:"projectedAnnualCents"`
	}](t, rec)

	if stats.Currency != "AED" {
		t.Fatalf("expected AED, got %q", stats.Currency)
	}
	if stats.IncomeCents != 15000 || stats.ExpenseCents != 3000 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.NetCents != 12000 {
		t.Fatalf("net: expected 12000, got %d", stats.NetCents)
	}
	if stats.ProjectedAnnualCents != 180000 {
		t.Fatalf("projected annual: expected 180000, got %d", stats.ProjectedAnnualCents)
	}
}

func TestStatisticsRejectsBadMonth(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	if rec := doJSON(t, s, http.MethodGet, "/statistics?month=13", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/records?year=zero", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCategories(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodGet, "/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[struct {
		Income []struct {
			Name          string   `json:"name"`
			Subcategories []string `json:"subcategories"`
			HasSize       bool     `json:"hasSize"`
		} `json:"income"`
		Expense []string `json:"expense"`
		Sizes   []string `json:"sizes"`
	}](t, rec)

	if len(body.Income) != 3 || body.Income[0].Name != "蛋糕" || !body.Income[0].HasSize {
		t.Fatalf("unexpected income categories: %+v", body.Income)
	}
	if body.Income[1].HasSize {
		t.Fatalf("甜品 must not carry a size attribute")
	}
	if len(body.Expense) != 8 || body.Expense[0] != "基础主材（面粉类、糖类）" {
		t.Fatalf("unexpected expense categories: %+v", body.Expense)
	}
	if len(body.Sizes) != 5 || body.Sizes[0] != "4寸" {
		t.Fatalf("unexpected sizes: %+v", body.Sizes)
	}
}

func TestExport(t *testing.T) {
	sheet := memory.New()
	s, _ := newTestServer(t, Options{Exporter: sheet})

	if rec := doJSON(t, s, http.MethodPost, "/records", createRecordRequest{
		Type: "income", Amount: "120", MainCategory: "甜品", SubCategory: "花酥",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("seed record: %d", rec.Code)
	}

	now := time.Now()
	rec := doJSON(t, s, http.MethodPost, "/export", exportRequest{Year: now.Year(), Month: int(now.Month())})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Exported int `json:"exported"`
	}](t, rec)
	if body.Exported != 1 {
		t.Fatalf("expected 1 exported record, got %d", body.Exported)
	}

	rows := sheet.Export(now.Year(), now.Month())
	if len(rows) != 1 || rows[0].TypeLabel != "收入" || rows[0].Amount != "120.00" {
		t.Fatalf("unexpected exported rows: %+v", rows)
	}
}

func TestExportNotConfigured(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := doJSON(t, s, http.MethodPost, "/export", exportRequest{Year: 2026, Month: 1})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func scanRequest(s *Server, body string, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/scan-receipt", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestScanReceipt(t *testing.T) {
	scanner := &fakeScanner{receipt: vision.Receipt{
		TotalCents: 3650,
		Items:      []vision.ReceiptItem{{Name: "面粉", PriceCents: 1200, Qty: 2}, {Name: "黄油", PriceCents: 1250, Qty: 1}},
	}}
	s, _ := newTestServer(t, Options{Scanner: scanner})

	rec := scanRequest(s, "fake image bytes", "image/jpeg")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Amount      string `json:"amount"`
		AmountCents int64  `json:"amountCents"`
		Note        string `json:"note"`
	}](t, rec)
	if body.Amount != "36.50" || body.AmountCents != 3650 {
		t.Fatalf("unexpected amount: %+v", body)
	}
	if !strings.HasPrefix(body.Note, "小票识别: ") || !strings.Contains(body.Note, "面粉") {
		t.Fatalf("unexpected note: %q", body.Note)
	}
}

func TestScanReceiptErrors(t *testing.T) {
	s, _ := newTestServer(t, Options{Scanner: &fakeScanner{err: vision.ErrNoReceiptData}})

	if rec := scanRequest(s, "fake image", "image/png"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unreadable receipt: expected 422, got %d", rec.Code)
	}
	if rec := scanRequest(s, "not an image", "application/json"); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wrong content type: expected 415, got %d", rec.Code)
	}
	if rec := scanRequest(s, "", "image/png"); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rec.Code)
	}

	unconfigured, _ := newTestServer(t, Options{})
	if rec := scanRequest(unconfigured, "img", "image/png"); rec.Code != http.StatusNotImplemented {
		t.Fatalf("no scanner: expected 501, got %d", rec.Code)
	}
}

func TestReadyRequiresActiveUser(t *testing.T) {
	s, engine := newTestServer(t, Options{})

	if rec := doJSON(t, s, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rec.Code)
	}

	engine.Close()
	if rec := doJSON(t, s, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing nosniff header, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("missing frame options header, got %q", got)
	}
}

func TestMonthViewCacheInvalidatesOnNewSnapshot(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	now := time.Now()
	path := fmt.Sprintf("/records?year=%d&month=%d", now.Year(), int(now.Month()))

	before := decodeBody[struct {
		Records []recordJSON `json:"records"`
	}](t, doJSON(t, s, http.MethodGet, path, nil))
	if len(before.Records) != 0 {
		t.Fatalf("expected empty month, got %+v", before.Records)
	}

	if rec := doJSON(t, s, http.MethodPost, "/records", createRecordRequest{
		Type: "expense", Amount: "5", MainCategory: "其它",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	after := decodeBody[struct {
		Records []recordJSON `json:"records"`
	}](t, doJSON(t, s, http.MethodGet, path, nil))
	if len(after.Records) != 1 {
		t.Fatalf("stale cached view served after snapshot change: %+v", after.Records)
	}
}
