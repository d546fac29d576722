// Package http exposes the account and ledger services as a small JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"spendbook/internal/auth"
	"spendbook/internal/cache"
	"spendbook/internal/core"
	applog "spendbook/internal/log"
	"spendbook/internal/services"
	"spendbook/internal/summary"
)

// AccountService is the subset of services.AccountService the handlers use.
type AccountService interface {
	Register(ctx context.Context, username, credential string) error
	Login(ctx context.Context, username, credential string) (auth.Session, error)
	Resolve(ctx context.Context, token string) (auth.Session, error)
}

// LedgerService is the subset of services.LedgerService the handlers use.
type LedgerService interface {
	RecordEntry(ctx context.Context, accountID int64, in services.NewEntry) (core.Entry, error)
	Entries(ctx context.Context, accountID int64) ([]core.Entry, error)
	Overview(ctx context.Context, accountID int64) (summary.Overview, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options tunes the server. Zero values take the defaults.
type Options struct {
	SummaryCacheTTL  time.Duration
	SummaryCacheSize int
	// WriteLimit is the number of POST requests allowed per client per minute.
	WriteLimit int
	Logger     *applog.Logger
}

const (
	defaultWriteLimit   = 60
	maxRequestBodyBytes = 1 << 20
	readyTimeout        = 2 * time.Second
)

type Server struct {
	http.Server
	accounts AccountService
	ledger   LedgerService
	health   HealthChecker
	logger   *applog.Logger

	rateLimiter *rateLimiter
	metrics     securityMetrics

	summaries    *cache.LRUCache[summaryResponse]
	cacheManager *cache.Manager
	loads        singleflight.Group
	summaryGen   atomic.Uint64

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, accounts AccountService, ledger LedgerService, health HealthChecker, opts Options) *Server {
	if opts.SummaryCacheSize <= 0 {
		opts.SummaryCacheSize = 100
	}
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = defaultWriteLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}

	s := &Server{
		accounts:     accounts,
		ledger:       ledger,
		health:       health,
		logger:       logger,
		rateLimiter:  newRateLimiter(opts.WriteLimit, time.Minute),
		summaries:    cache.NewLRUCache[summaryResponse](opts.SummaryCacheSize, opts.SummaryCacheTTL),
		cacheManager: cache.NewManager(),
	}

	go s.rateLimiter.startCleanup(5 * time.Minute)
	s.cacheManager.Register(s.summaries)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/entries", s.requireSession(s.handleCreateEntry))
	mux.HandleFunc("GET /api/entries", s.requireSession(s.handleListEntries))
	mux.HandleFunc("GET /api/summary", s.requireSession(s.handleSummary))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return s
}

// Shutdown stops background cleanup and gracefully shuts down the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
