package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"finny/internal/amqp"
	"finny/internal/cache"
	"finny/internal/cli"
	"finny/internal/config"
	"finny/internal/finance"
	apphttp "finny/internal/http"
	"finny/internal/log"
	"finny/internal/middleware/ratelimit"
	"finny/internal/middleware/security"
	"finny/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	cli.MustValidate(logger, cfg.ValidateAPI)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	logger.Info("Starting finny",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
}

// api holds the wired components of the HTTP binary.
type api struct {
	logger       *log.Logger
	cfg          *config.Config
	srv          *apphttp.Server
	auth         *apphttp.Authenticator
	budget       *services.BudgetService
	amqpClient   *amqp.Client
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
}

func newAPI(ctx context.Context, cfg *config.Config, logger *log.Logger) (*api, error) {
	backendResult, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	// AMQP is optional for the API: without it writes are not announced and
	// billing events are not consumed.
	var (
		amqpClient *amqp.Client
		publisher  services.Publisher
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(ctx, amqp.Config{
			URL:          cfg.AMQPURL,
			Exchange:     cfg.AMQPExchange,
			BillingQueue: cfg.AMQPBillingQueue,
			SyncQueue:    cfg.AMQPSyncQueue,
		})
		if err != nil {
			_ = backendResult.Cleanup()
			return nil, fmt.Errorf("initialize AMQP client: %w", err)
		}
		publisher = amqpClient
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	annual := cache.NewLRUCache[finance.AnnualSummary](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(cfg.CacheCleanupInterval)
	cacheManager.Register("annual", annual)

	budget := services.NewBudgetService(backendResult.Repository, publisher, annual)
	auth := apphttp.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
	srv := apphttp.NewServer(":"+cfg.Port, budget, apphttp.Options{
		Logger:   logger.WithComponent(log.ComponentHTTP),
		Auth:     auth,
		Limiter:  limiter,
		Detector: security.NewDetector(),
	})

	return &api{
		logger:       logger,
		cfg:          cfg,
		srv:          srv,
		auth:         auth,
		budget:       budget,
		amqpClient:   amqpClient,
		cacheManager: cacheManager,
		limiter:      limiter,
	}, nil
}

// serve runs the server and background loops until ctx is done.
func (a *api) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", a.srv.Addr)
		return a.srv.Run(gctx)
	})
	g.Go(func() error { return a.cacheManager.Run(gctx) })
	g.Go(func() error { return a.limiter.Run(gctx) })
	if a.amqpClient != nil {
		g.Go(func() error {
			return cli.KeepConsuming(gctx, a.logger, a.cfg.AMQPBillingQueue, func(ctx context.Context) error {
				return a.amqpClient.ConsumeBillingEvents(ctx, a.budget.HandleBillingMessage)
			})
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *api) close() {
	if a.amqpClient != nil {
		if err := a.amqpClient.Close(); err != nil {
			a.logger.Error("Failed to close AMQP client", log.FieldError, err.Error())
		}
	}
	if err := a.budget.Close(); err != nil {
		a.logger.Error("Failed to close repository", log.FieldError, err.Error())
	}
	m := a.srv.Metrics()
	a.logger.Info("Shutdown complete",
		log.FieldOperation, log.OpShutdown,
		"total_requests", m.TotalRequests,
		"server_errors", m.ServerErrors,
		"sessions", a.budget.Sessions())
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	a, err := newAPI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return a.serve(ctx)
}
