package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/tallyfin/ledger-worker/internal/api"
	"github.com/tallyfin/ledger-worker/internal/config"
	"github.com/tallyfin/ledger-worker/internal/credentials"
	"github.com/tallyfin/ledger-worker/internal/database"
	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/repository"
	"github.com/tallyfin/ledger-worker/internal/secrets"
	"github.com/tallyfin/ledger-worker/internal/service"
	"github.com/tallyfin/ledger-worker/internal/sheets"
	"github.com/tallyfin/ledger-worker/internal/storage"
	"github.com/tallyfin/ledger-worker/internal/watcher"
)

func main() {
	log := config.GetLogger()
	if err := run(); err != nil {
		log.WithError(err).Fatal("application error")
	}
}

func run() error {
	log := config.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info("database connected")

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Info("migrations applied")

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	box, err := secrets.New(cfg.CredentialKey)
	if err != nil {
		return err
	}

	jobRepo := repository.NewJobRepository(sqlDB)
	txRepo := repository.NewTransactionRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	runRepo := repository.NewSyncRunRepository(db)
	credRepo := repository.NewCredentialRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var blobs storage.BlobStore
	if cfg.StorageBucket != "" {
		gcs, err := storage.NewGCSStore(ctx, cfg.StorageBucket)
		if err != nil {
			return err
		}
		blobs = gcs
		log.WithField("bucket", cfg.StorageBucket).Info("using GCS blob store")
	} else {
		blobs = storage.NewMemoryStore()
		log.Warn("STORAGE_BUCKET not set, uploads are held in memory")
	}

	dispatcher := &extraction.Dispatcher{
		Spreadsheet: extraction.NewXLSXExtractor(),
		CSV:         extraction.NewCSVExtractor(),
	}
	if cfg.OCRServiceURL != "" {
		dispatcher.Receipt = extraction.NewReceiptClient(cfg.OCRServiceURL, cfg.OCRServiceKey)
	}

	resolver := credentials.NewResolver(credRepo, credRepo, box, log,
		cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.ServiceAccountJSON)

	merge := service.NewMergeEngine(txRepo, log)
	processor := service.NewIngestProcessor(jobRepo, blobs, dispatcher, merge, log)
	engine := service.NewSyncEngine(
		connRepo, txRepo, conflictRepo, runRepo, resolver,
		func(ts oauth2.TokenSource) sheets.Client { return sheets.NewGoogleClient(ts) },
		merge, cfg.MaxRetries, log,
	)
	conflictSvc := service.NewConflictService(conflictRepo, txRepo, log)
	cleanupSvc := service.NewCleanupService(jobRepo, log)

	w := watcher.New(cfg, jobRepo, connRepo, processor, engine, log)

	server := api.NewServer(
		processor, jobRepo, txRepo, cleanupSvc, engine,
		connRepo, runRepo, conflictSvc, w,
		cfg.SweepSecret, log,
	)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- w.Start(ctx)
	}()
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown did not finish cleanly")
		}

		select {
		case <-shutdownCtx.Done():
			log.Warn("shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("watcher error during shutdown")
			}
		}

		log.Info("application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
