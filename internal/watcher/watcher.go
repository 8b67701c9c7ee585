package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tallyfin/ledger-worker/internal/config"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/service"
)

// JobProcessor runs one claimed job to completion.
type JobProcessor interface {
	Process(ctx context.Context, job models.IngestJob) error
}

// Syncer runs one sync pass for a connection.
type Syncer interface {
	Sync(ctx context.Context, connectionID string, direction models.SyncDirection, fullRefresh bool) (*models.SyncRun, error)
}

// Watcher is the polling loop behind two background duties: sweeping
// async jobs that sat queued past the staleness window, and kicking off
// syncs for connections with auto-sync enabled.
type Watcher struct {
	cfg         *config.Config
	jobs        service.JobStore
	connections service.ConnectionStore
	processor   JobProcessor
	engine      Syncer
	log         *logrus.Logger
}

func New(
	cfg *config.Config,
	jobs service.JobStore,
	connections service.ConnectionStore,
	processor JobProcessor,
	engine Syncer,
	log *logrus.Logger,
) *Watcher {
	return &Watcher{
		cfg:         cfg,
		jobs:        jobs,
		connections: connections,
		processor:   processor,
		engine:      engine,
		log:         log,
	}
}

// Start runs the polling loop until the context is cancelled. A sweep is
// run immediately on startup to pick up whatever a previous process left
// behind.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("starting watcher")

	w.tick(ctx)

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	if _, err := w.SweepStuckJobs(ctx); err != nil {
		w.log.WithError(err).Error("stuck-job sweep failed")
	}
	if err := w.runAutoSyncs(ctx); err != nil {
		w.log.WithError(err).Error("auto-sync pass failed")
	}
}

// SweepStuckJobs finds async jobs still queued past the staleness window
// and processes them. Each job is claimed individually inside Process, so
// concurrent sweeps never double-process, and one job's failure never
// blocks the rest of the batch. Returns how many jobs were picked up.
func (w *Watcher) SweepStuckJobs(ctx context.Context) (int, error) {
	window := time.Duration(w.cfg.StalenessWindow) * time.Minute
	stuck, err := w.jobs.GetStuckQueuedJobs(ctx, window, w.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	w.log.WithField("count", len(stuck)).Info("sweeping stuck jobs")

	processed := 0
	for _, job := range stuck {
		if err := w.processor.Process(ctx, job); err != nil {
			// Process already recorded the failure on the job row.
			w.log.WithField("job_id", job.ID).WithError(err).Error("swept job failed")
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *Watcher) runAutoSyncs(ctx context.Context) error {
	conns, err := w.connections.ListAutoSync(ctx, w.cfg.SweepBatchSize)
	if err != nil {
		return err
	}

	for _, conn := range conns {
		_, err := w.engine.Sync(ctx, conn.ID, models.DirectionBidirectional, false)
		if err != nil {
			if errors.Is(err, service.ErrSyncInProgress) {
				continue
			}
			w.log.WithField("connection_id", conn.ID).WithError(err).Error("auto-sync failed")
		}
	}
	return nil
}
