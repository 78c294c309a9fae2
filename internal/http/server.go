// Package http serves the budgeting JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finny/internal/billing"
	"finny/internal/core"
	"finny/internal/finance"
	"finny/internal/limits"
	"finny/internal/log"
	"finny/internal/middleware/ratelimit"
	"finny/internal/middleware/security"
	"finny/internal/middleware/trace"
	"finny/internal/services"
	"finny/internal/session"
)

// Budget is the service surface the API needs.
type Budget interface {
	State(ctx context.Context, userID string) (session.State, error)
	CurrentPeriod() core.Period
	Profile(ctx context.Context, userID string) (core.Profile, error)
	SaveProfile(ctx context.Context, userID string, p core.Profile) (core.Profile, error)
	CompleteOnboarding(ctx context.Context, userID string, p core.Profile, fixed []core.FixedExpense) (session.State, error)
	AddTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error)
	RemoveTransaction(ctx context.Context, userID, id string) error
	Transactions(ctx context.Context, userID string, period core.Period) ([]core.Transaction, error)
	AddFixedExpense(ctx context.Context, userID string, e core.FixedExpense) (core.FixedExpense, error)
	UpdateFixedExpense(ctx context.Context, userID, id string, edit func(core.FixedExpense) core.FixedExpense) (core.FixedExpense, error)
	ToggleFixedExpense(ctx context.Context, userID, id string) (core.FixedExpense, error)
	RemoveFixedExpense(ctx context.Context, userID, id string) error
	AddTemporaryExpense(ctx context.Context, userID string, e core.TemporaryExpense) (core.TemporaryExpense, error)
	RemoveTemporaryExpense(ctx context.Context, userID, id string) error
	SetMonthlyGoal(ctx context.Context, userID string, g core.MonthlyGoal) error
	Dashboard(ctx context.Context, userID string, period core.Period) (services.Dashboard, error)
	Usage(ctx context.Context, userID string) (limits.UsageReport, error)
	Subscription(ctx context.Context, userID string) (billing.Subscription, error)
	Annual(ctx context.Context, userID string, year int) (finance.AnnualSummary, error)
	Export(ctx context.Context, userID string) ([]byte, error)
	Import(ctx context.Context, userID string, data []byte) (session.State, error)
	Ping(ctx context.Context) error
}

var _ Budget = (*services.BudgetService)(nil)

// Options wires the middleware of the server. Auth is required; a nil
// Limiter or Detector disables that layer.
type Options struct {
	Logger   *log.Logger
	Auth     *Authenticator
	Limiter  *ratelimit.Limiter
	Detector *security.Detector
	Headers  security.HeadersConfig
	Now      func() time.Time
}

type Server struct {
	http.Server
	budget Budget
	tracer *trace.Middleware
	now    func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, budget Budget, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Headers == (security.HeadersConfig{}) {
		opts.Headers = security.DefaultHeadersConfig()
	}
	clientIP := func(r *http.Request) string { return r.RemoteAddr }
	if opts.Detector != nil {
		clientIP = opts.Detector.ExtractClientIP
	}

	s := &Server{
		budget: budget,
		tracer: trace.NewMiddleware(opts.Logger, clientIP),
		now:    opts.Now,
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/categories", handleCategories)
	api.HandleFunc("GET /api/dashboard", s.handleDashboard)
	api.HandleFunc("GET /api/annual", s.handleAnnual)
	api.HandleFunc("GET /api/usage", s.handleUsage)
	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("POST /api/fixed-expenses", s.handleCreateFixedExpense)
	api.HandleFunc("PATCH /api/fixed-expenses/{id}", s.handlePatchFixedExpense)
	api.HandleFunc("DELETE /api/fixed-expenses/{id}", s.handleDeleteFixedExpense)
	api.HandleFunc("POST /api/temporary-expenses", s.handleCreateTemporaryExpense)
	api.HandleFunc("DELETE /api/temporary-expenses/{id}", s.handleDeleteTemporaryExpense)
	api.HandleFunc("PUT /api/goals", s.handleSetGoal)
	api.HandleFunc("GET /api/profile", s.handleGetProfile)
	api.HandleFunc("PUT /api/profile", s.handleSaveProfile)
	api.HandleFunc("POST /api/onboarding", s.handleOnboarding)
	api.HandleFunc("GET /api/export", s.handleExport)
	api.HandleFunc("POST /api/import", s.handleImport)

	var protected http.Handler = api
	if opts.Limiter != nil {
		protected = opts.Limiter.Middleware(func(r *http.Request) string {
			if id := UserID(r.Context()); id != "" {
				return "user:" + id
			}
			return "ip:" + clientIP(r)
		}, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		})(protected)
	}
	protected = opts.Auth.Middleware(protected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", protected)

	var handler http.Handler = mux
	if opts.Detector != nil {
		handler = opts.Detector.Middleware(handler)
	}
	handler = security.NewHeadersMiddleware(opts.Headers).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.budget.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
