// Package worker mirrors committed snapshots to the spreadsheet export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finny/internal/amqp"
	"finny/internal/core"
	"finny/internal/finance"
	"finny/internal/log"
	"finny/internal/sheets"
)

// SnapshotSource is the read side of the repository.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, userID string) (core.Snapshot, uint64, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SyncWorker exports the current-year summary of a user whenever their
// snapshot changes, and periodically for every user as a backstop for
// lost messages.
type SyncWorker struct {
	source    SnapshotSource
	exporter  sheets.AnnualExporter
	batchSize int
	now       func() time.Time
	logger    *log.Logger

	mu       sync.Mutex
	exported map[string]exportMark
}

// exportMark is the last version exported for a user and the year it was
// exported for.
type exportMark struct {
	version uint64
	year    int
}

// SyncStats summarizes one full pass.
type SyncStats struct {
	Users    int
	Exported int
	Skipped  int
	Failed   int
}

func NewSyncWorker(source SnapshotSource, exporter sheets.AnnualExporter, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		source:    source,
		exporter:  exporter,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentWorker),
		exported:  make(map[string]exportMark),
	}
}

// WithClock replaces the wall clock that picks the exported year.
func (w *SyncWorker) WithClock(now func() time.Time) *SyncWorker {
	w.now = now
	return w
}

// HandleSnapshotChanged processes one change notification. The latest
// stored snapshot is exported, so out-of-order messages are harmless.
func (w *SyncWorker) HandleSnapshotChanged(ctx context.Context, msg *amqp.SnapshotChangedMessage) error {
	w.logger.DebugContext(ctx, "Processing snapshot change",
		log.FieldUserID, msg.UserID,
		log.FieldVersion, msg.Version)
	_, err := w.SyncUser(ctx, msg.UserID)
	return err
}

// SyncUser exports userID unless the stored version was already exported
// for the current year. It reports whether an export happened.
func (w *SyncWorker) SyncUser(ctx context.Context, userID string) (bool, error) {
	snap, version, err := w.source.LoadSnapshot(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", userID, err)
	}
	if snap.Profile == nil {
		return false, nil
	}
	year := w.now().Year()
	if w.alreadyExported(userID, version, year) {
		return false, nil
	}

	sum := finance.New(snap).AnnualSummary(year)
	if err := w.exporter.ExportAnnual(ctx, userID, sum); err != nil {
		return false, fmt.Errorf("export %s: %w", userID, err)
	}
	w.markExported(userID, version, year)

	w.logger.InfoContext(ctx, "Synced annual summary",
		log.FieldUserID, userID,
		log.FieldVersion, version,
		log.FieldYear, year)
	return true, nil
}

func (w *SyncWorker) alreadyExported(userID string, version uint64, year int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	mark, ok := w.exported[userID]
	return ok && mark.year == year && mark.version >= version
}

func (w *SyncWorker) markExported(userID string, version uint64, year int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if mark, ok := w.exported[userID]; ok && mark.year == year && mark.version > version {
		return
	}
	w.exported[userID] = exportMark{version: version, year: year}
}

// FullSync exports every user, at most batchSize at a time. Failures of
// single users are logged and counted; the pass continues.
func (w *SyncWorker) FullSync(ctx context.Context) (SyncStats, error) {
	users, err := w.source.ListUserIDs(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("list users: %w", err)
	}

	var (
		mu    sync.Mutex
		stats = SyncStats{Users: len(users)}
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, userID := range users {
		g.Go(func() error {
			exported, err := w.SyncUser(gctx, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				errs = append(errs, err)
				w.logger.ErrorContext(gctx, "Failed to sync user",
					log.FieldUserID, userID,
					log.FieldError, err.Error())
			case exported:
				stats.Exported++
			default:
				stats.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	w.logger.InfoContext(ctx, "Full sync completed",
		"users", stats.Users,
		"exported", stats.Exported,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	if len(errs) > 0 {
		return stats, fmt.Errorf("%d of %d users failed: %w", stats.Failed, stats.Users, errors.Join(errs...))
	}
	return stats, nil
}

// Run performs a full sync right away and then every interval until ctx
// is canceled.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.FullSync(ctx); err != nil && ctx.Err() == nil {
		w.logger.WarnContext(ctx, "Startup sync incomplete", log.FieldError, err.Error())
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.FullSync(ctx); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "Periodic sync incomplete", log.FieldError, err.Error())
			}
		}
	}
}
