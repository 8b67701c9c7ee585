package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/service"
)

// Consumer-side contracts for the handlers, implemented by the service
// layer and the watcher.

type Uploader interface {
	CreateJob(ctx context.Context, req service.UploadRequest) (*models.IngestJob, error)
}

type Syncer interface {
	Sync(ctx context.Context, connectionID string, direction models.SyncDirection, fullRefresh bool) (*models.SyncRun, error)
}

type Sweeper interface {
	SweepStuckJobs(ctx context.Context) (int, error)
}

type Cleaner interface {
	Cleanup(ctx context.Context, tenantID, userID, category string) (int64, error)
}

type ConflictResolver interface {
	Get(ctx context.Context, conflictID string) (*models.Conflict, error)
	ListPending(ctx context.Context, tenantID string) ([]models.Conflict, error)
	CountPending(ctx context.Context, connectionID string) (int64, error)
	Resolve(ctx context.Context, conflictID, choice, resolvedBy string, manualValues map[string]interface{}) error
	Ignore(ctx context.Context, conflictID, resolvedBy string) error
}

// Server wires the HTTP surface. Identity arrives as X-Tenant-ID and
// X-User-ID headers, set by the gateway in front of this service.
type Server struct {
	uploader     Uploader
	jobs         service.JobStore
	transactions service.TransactionStore
	cleaner      Cleaner
	syncer       Syncer
	connections  service.ConnectionStore
	runs         service.SyncRunStore
	conflicts    ConflictResolver
	sweeper      Sweeper
	sweepSecret  string
	log          *logrus.Logger
}

func NewServer(
	uploader Uploader,
	jobs service.JobStore,
	transactions service.TransactionStore,
	cleaner Cleaner,
	syncer Syncer,
	connections service.ConnectionStore,
	runs service.SyncRunStore,
	conflicts ConflictResolver,
	sweeper Sweeper,
	sweepSecret string,
	log *logrus.Logger,
) *Server {
	return &Server{
		uploader:     uploader,
		jobs:         jobs,
		transactions: transactions,
		cleaner:      cleaner,
		syncer:       syncer,
		connections:  connections,
		runs:         runs,
		conflicts:    conflicts,
		sweeper:      sweeper,
		sweepSecret:  sweepSecret,
		log:          log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1", s.requireIdentity())
	{
		v1.POST("/jobs", s.handleUpload)
		v1.GET("/jobs", s.handleListJobs)
		v1.GET("/jobs/:id", s.handleGetJob)
		v1.POST("/jobs/cleanup", s.handleCleanup)

		v1.GET("/transactions", s.handleListTransactions)
		v1.POST("/transactions/:id/confirm", s.handleConfirmTransaction)

		v1.GET("/connections", s.handleListConnections)
		v1.POST("/connections/:id/sync", s.handleTriggerSync)
		v1.GET("/connections/:id/runs", s.handleListRuns)

		v1.GET("/conflicts", s.handleListConflicts)
		v1.POST("/conflicts/:id/resolve", s.handleResolveConflict)
		v1.POST("/conflicts/:id/ignore", s.handleIgnoreConflict)
	}

	// Invoked by the scheduler, not end users; guarded by a shared secret
	// instead of gateway identity.
	r.POST("/internal/sweep", s.handleSweep)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}

func (s *Server) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Tenant-ID") == "" || c.GetHeader("X-User-ID") == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing identity headers"})
			return
		}
		c.Next()
	}
}

func tenantID(c *gin.Context) string { return c.GetHeader("X-Tenant-ID") }
func userID(c *gin.Context) string   { return c.GetHeader("X-User-ID") }

func (s *Server) handleSweep(c *gin.Context) {
	if c.GetHeader("X-Sweep-Secret") != s.sweepSecret {
		c.JSON(403, gin.H{"error": "forbidden"})
		return
	}

	n, err := s.sweeper.SweepStuckJobs(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("sweep failed")
		c.JSON(500, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(200, gin.H{"processed": n})
}
