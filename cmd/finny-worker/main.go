package main

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"finny/internal/amqp"
	"finny/internal/cli"
	"finny/internal/config"
	"finny/internal/log"
	gsheet "finny/internal/sheets/google"
	"finny/internal/storage"
	"finny/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	cli.MustValidate(logger, cfg.ValidateWorker)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	logger.Info("Starting finny-worker", log.FieldOperation, log.OpStartup)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err.Error(),
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	exporter, err := gsheet.NewFromConfig(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(ctx, amqp.Config{
		URL:          cfg.AMQPURL,
		Exchange:     cfg.AMQPExchange,
		BillingQueue: cfg.AMQPBillingQueue,
		SyncQueue:    cfg.AMQPSyncQueue,
	})
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, exporter, cfg.SyncBatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cli.KeepConsuming(gctx, logger, cfg.AMQPSyncQueue, func(ctx context.Context) error {
			return amqpClient.ConsumeSnapshotChanges(ctx, syncWorker.HandleSnapshotChanged)
		})
	})
	g.Go(func() error {
		logger.Info("Periodic sync enabled", "interval", cfg.SyncInterval, "batch_size", cfg.SyncBatchSize)
		return syncWorker.Run(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("finny-worker stopped", log.FieldOperation, log.OpShutdown)
}
