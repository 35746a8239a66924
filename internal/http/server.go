package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/invoice"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/session"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
	ports "ledger/internal/sheets"

	gocache "github.com/patrickmn/go-cache"
)

// Ledger is the service surface the handlers use. *services.Ledger
// implements it.
type Ledger interface {
	Load(ctx context.Context, t core.TableName) (core.Table, error)
	AppendRow(ctx context.Context, t core.TableName, row core.Row) (core.Table, error)
	ReplaceTable(ctx context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error)
	UpdateRow(ctx context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error)
	MarkMilestonePaid(ctx context.Context, index int, slot core.MilestoneSlot, expectedVersion string) (core.Table, error)
	Summary(ctx context.Context) (core.Summary, error)
	Archive(ctx context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error)
	ArchiveAll(ctx context.Context, at time.Time) services.ArchiveReport
	ListArchives(ctx context.Context, t core.TableName) ([]ports.ArchiveInfo, error)
	ReadArchive(ctx context.Context, t core.TableName, id string) (core.Table, error)
	GenerateProjectInvoice(ctx context.Context, index int) (invoice.Invoice, error)
	GenerateMonthlyInvoice(ctx context.Context, index int) (invoice.Invoice, error)
	ExportWorkbook(ctx context.Context) ([]byte, error)
	ImportWorkbook(ctx context.Context, r io.Reader) ([]core.TableName, error)
}

type Options struct {
	Logger       *applog.Logger
	RateLimit    ratelimit.Config
	SessionTTL   time.Duration
	SecureCookie bool
	// SummaryTTL bounds how long a computed summary is served.
	SummaryTTL time.Duration
	// Sessions, when set, is reported by /readyz.
	Sessions interface{ Len() int }
	Now      func() time.Time
}

type Server struct {
	http.Server
	ledger  Ledger
	logger  *applog.Logger
	now     func() time.Time
	started time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	sessions interface{ Len() int }

	summaries     *gocache.Cache
	summaryHits   atomic.Int64
	summaryMisses atomic.Int64
	// archives holds snapshots read back from the store; they never change.
	archives *cache.LRUCache[core.Table]
	caches   *cache.Manager

	shutdownOnce sync.Once
}

const (
	summaryKey      = "summary"
	archiveCacheMax = 64
	archiveCacheTTL = time.Hour
)

// NewServer wires the routes and middleware; the caller runs ListenAndServe.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = time.Minute
	}

	s := &Server{
		ledger:    ledger,
		logger:    opts.Logger.WithComponent(applog.ComponentHTTP),
		now:       opts.Now,
		started:   opts.Now(),
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  security.NewDetector(),
		sessions:  opts.Sessions,
		summaries: gocache.New(opts.SummaryTTL, 2*opts.SummaryTTL),
		archives:  cache.NewLRUCache[core.Table](archiveCacheMax, archiveCacheTTL),
		caches:    cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, opts.Logger)
	s.caches.Register(s.archives)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/tables/{table}", s.handleLoadTable)
	mux.HandleFunc("PUT /api/tables/{table}", s.handleReplaceTable)
	mux.HandleFunc("POST /api/tables/{table}/rows", s.handleAppendRow)
	mux.HandleFunc("PATCH /api/tables/{table}/rows/{index}", s.handleUpdateRow)
	mux.HandleFunc("POST /api/tables/{table}/archive", s.handleArchiveTable)
	mux.HandleFunc("GET /api/tables/{table}/archives", s.handleListArchives)
	mux.HandleFunc("GET /api/tables/{table}/archives/{id}", s.handleReadArchive)

	mux.HandleFunc("POST /api/archive", s.handleArchiveAll)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/projects/{index}/milestones/{slot}/pay", s.handleMarkMilestonePaid)
	mux.HandleFunc("POST /api/invoices/project/{index}", s.handleProjectInvoice)
	mux.HandleFunc("POST /api/invoices/monthly/{index}", s.handleMonthlyInvoice)
	mux.HandleFunc("GET /api/export.xlsx", s.handleExport)
	mux.HandleFunc("POST /api/import.xlsx", s.handleImport)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	sessions := session.NewMiddleware(opts.SessionTTL, opts.SecureCookie)

	var h http.Handler = mux
	h = sessions.Middleware(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h)
	h = s.rejectSuspicious(h)
	h = applog.Middleware(s.logger, requestFields)(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func requestFields(r *http.Request) []any {
	if id := trace.GetRequestID(r.Context()); id != "" {
		return []any{applog.FieldRequestID, id}
	}
	return nil
}

// StartBackground runs the periodic cache sweep until ctx ends.
func (s *Server) StartBackground(ctx context.Context, interval time.Duration) {
	s.caches.StartCleanup(ctx, interval)
}

// Shutdown stops background work and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidate drops derived views after a successful write. Archive
// snapshots are immutable and stay cached.
func (s *Server) invalidate() {
	s.summaries.Flush()
}

func (s *Server) cachedSummary() (summaryResponse, bool) {
	if v, ok := s.summaries.Get(summaryKey); ok {
		s.summaryHits.Add(1)
		return v.(summaryResponse), true
	}
	s.summaryMisses.Add(1)
	return summaryResponse{}, false
}

func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.IsSuspicious(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected suspicious request",
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.detector.ExtractClientIP(r))
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady loads the smallest table as a store round trip.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := map[string]any{}
	status, code := "ready", http.StatusOK
	if _, err := s.ledger.Load(ctx, core.Clients); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	checks["summary_cache"] = map[string]any{"hits": s.summaryHits.Load(), "misses": s.summaryMisses.Load()}
	archives := s.archives.Stats()
	checks["archive_cache"] = map[string]any{
		"entries": s.archives.Size(), "hits": archives.Hits, "misses": archives.Misses, "evictions": archives.Evictions,
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}
	if s.sessions != nil {
		checks["session_cache"] = map[string]any{"entries": s.sessions.Len()}
	}
	requests := s.tracer.GetMetrics()
	checks["requests"] = map[string]any{
		"total": requests.TotalRequests, "avg_response_us": requests.AverageResponseTime,
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}
