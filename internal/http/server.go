// Package http exposes the ledger over a JSON API: record mutations,
// month-scoped queries, statistics, spreadsheet export and receipt scanning.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bakeledger/internal/cache"
	"bakeledger/internal/core"
	"bakeledger/internal/ledger"
	"bakeledger/internal/log"
	"bakeledger/internal/middleware/ratelimit"
	"bakeledger/internal/middleware/security"
	"bakeledger/internal/middleware/trace"
	"bakeledger/internal/sheets"
	"bakeledger/internal/vision"
)

// ReceiptScanner is the receipt recognition collaborator. Nil disables the
// scan endpoint.
type ReceiptScanner interface {
	ScanReceipt(ctx context.Context, image []byte, mimeType string) (vision.Receipt, error)
}

type monthView struct {
	Records []core.Record
	Stats   core.Statistics
}

type Server struct {
	http.Server

	engine   *ledger.Engine
	tax      *core.Taxonomy
	exporter sheets.MonthExporter
	scanner  ReceiptScanner
	currency string
	logger   *log.Logger

	limiter   *ratelimit.Limiter
	extractor *security.ClientIPExtractor

	monthCache  *cache.LRU[monthView]
	cancelCache context.CancelFunc

	shutdownOnce sync.Once
}

// Options carries the optional collaborators. Export and scanning degrade to
// 501 responses when their collaborator is absent.
type Options struct {
	Exporter sheets.MonthExporter
	Scanner  ReceiptScanner
	Currency string
}

func NewServer(addr string, engine *ledger.Engine, tax *core.Taxonomy, logger *log.Logger, opts Options) *Server {
	if opts.Currency == "" {
		opts.Currency = "AED"
	}

	s := &Server{
		engine:     engine,
		tax:        tax,
		exporter:   opts.Exporter,
		scanner:    opts.Scanner,
		currency:   opts.Currency,
		logger:     logger.WithComponent(log.ComponentHTTP),
		limiter:    ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		extractor:  security.NewClientIPExtractor(),
		monthCache: cache.NewLRU[monthView](100, 5*time.Minute),
	}

	cacheCtx, cancel := context.WithCancel(context.Background())
	s.cancelCache = cancel
	s.monthCache.StartJanitor(cacheCtx, 10*time.Minute)

	mux := http.NewServeMux()
	limited := s.limiter.Middleware(s.extractor.ExtractClientIP)

	mux.Handle("POST /records", limited(http.HandlerFunc(s.handleCreateRecord)))
	mux.Handle("DELETE /records/{id}", limited(http.HandlerFunc(s.handleDeleteRecord)))
	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("GET /statistics", s.handleStatistics)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.Handle("POST /export", limited(http.HandlerFunc(s.handleExport)))
	mux.Handle("POST /scan-receipt", limited(http.HandlerFunc(s.handleScanReceipt)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	handler := trace.Middleware(log.Middleware(logger)(headers.Middleware(mux)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Shutdown stops the background loops and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cancelCache()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// monthKey includes the snapshot revision, so a new snapshot naturally
// invalidates all cached views without explicit purging.
func (s *Server) monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%s|%d|%04d-%02d", s.engine.ActiveUser(), s.engine.Revision(), year, int(month))
}

func (s *Server) monthViewFor(year int, month time.Month) monthView {
	key := s.monthKey(year, month)
	if view, ok := s.monthCache.Get(key); ok {
		return view
	}
	records := s.engine.RecordsInMonth(year, month)
	view := monthView{Records: records, Stats: core.ComputeStatistics(records)}
	s.monthCache.Set(key, view)
	return view
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.engine.ActiveUser() == "" {
		http.Error(w, "no active user", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
