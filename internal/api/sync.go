package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tallyfin/ledger-worker/internal/credentials"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/repository"
	"github.com/tallyfin/ledger-worker/internal/service"
)

// Connections and conflicts are tenant-scoped: a lookup from another
// tenant 404s the same way job lookups do.

func (s *Server) connectionForCaller(c *gin.Context) (*models.SheetConnection, bool) {
	conn, err := s.connections.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrConnectionNotFound) {
			c.JSON(404, gin.H{"error": "connection not found"})
		} else {
			s.log.WithError(err).Error("connection lookup failed")
			c.JSON(500, gin.H{"error": "could not load connection"})
		}
		return nil, false
	}
	if conn.TenantID != tenantID(c) {
		c.JSON(404, gin.H{"error": "connection not found"})
		return nil, false
	}
	return conn, true
}

func (s *Server) conflictForCaller(c *gin.Context) (*models.Conflict, bool) {
	conflict, err := s.conflicts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrConflictNotFound) {
			c.JSON(404, gin.H{"error": "conflict not found"})
		} else {
			s.log.WithError(err).Error("conflict lookup failed")
			c.JSON(500, gin.H{"error": "could not load conflict"})
		}
		return nil, false
	}
	if conflict.TenantID != tenantID(c) {
		c.JSON(404, gin.H{"error": "conflict not found"})
		return nil, false
	}
	return conflict, true
}

type connectionView struct {
	models.SheetConnection
	PendingConflicts int64 `json:"pending_conflicts"`
}

func (s *Server) handleListConnections(c *gin.Context) {
	conns, err := s.connections.ListByTenant(c.Request.Context(), tenantID(c))
	if err != nil {
		s.log.WithError(err).Error("connection list failed")
		c.JSON(500, gin.H{"error": "could not list connections"})
		return
	}

	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		pending, err := s.conflicts.CountPending(c.Request.Context(), conn.ID)
		if err != nil {
			s.log.WithError(err).Error("conflict count failed")
			c.JSON(500, gin.H{"error": "could not list connections"})
			return
		}
		views = append(views, connectionView{SheetConnection: conn, PendingConflicts: pending})
	}
	c.JSON(200, gin.H{"connections": views})
}

type syncRequest struct {
	Direction   string `json:"direction"`
	FullRefresh bool   `json:"full_refresh"`
}

func (s *Server) handleTriggerSync(c *gin.Context) {
	var req syncRequest
	// Body is optional: an empty trigger means a bidirectional sync.
	_ = c.ShouldBindJSON(&req)

	direction := models.SyncDirection(req.Direction)
	switch direction {
	case "", models.DirectionPush, models.DirectionPull, models.DirectionBidirectional:
	default:
		c.JSON(400, gin.H{"error": "unknown sync direction"})
		return
	}

	conn, ok := s.connectionForCaller(c)
	if !ok {
		return
	}

	run, err := s.syncer.Sync(c.Request.Context(), conn.ID, direction, req.FullRefresh)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			c.JSON(409, gin.H{"error": "a sync is already running for this connection"})
		case errors.Is(err, credentials.ErrNoCredentials),
			errors.Is(err, credentials.ErrReconnectRequired):
			c.JSON(422, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrExternalPermission):
			c.JSON(422, gin.H{"error": "the connected account has no access to the spreadsheet"})
		default:
			s.log.WithError(err).Error("sync failed")
			c.JSON(500, gin.H{"error": "sync failed", "run": run})
		}
		return
	}

	c.JSON(200, run)
}

func (s *Server) handleListRuns(c *gin.Context) {
	conn, ok := s.connectionForCaller(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := s.runs.ListByConnection(c.Request.Context(), conn.ID, limit)
	if err != nil {
		s.log.WithError(err).Error("run list failed")
		c.JSON(500, gin.H{"error": "could not list sync runs"})
		return
	}
	c.JSON(200, gin.H{"runs": runs})
}

func (s *Server) handleListConflicts(c *gin.Context) {
	conflicts, err := s.conflicts.ListPending(c.Request.Context(), tenantID(c))
	if err != nil {
		s.log.WithError(err).Error("conflict list failed")
		c.JSON(500, gin.H{"error": "could not list conflicts"})
		return
	}
	c.JSON(200, gin.H{"conflicts": conflicts})
}

type resolveRequest struct {
	Choice string                 `json:"choice" binding:"required"`
	Values map[string]interface{} `json:"values"`
}

func (s *Server) handleResolveConflict(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "choice is required"})
		return
	}

	conflict, ok := s.conflictForCaller(c)
	if !ok {
		return
	}

	err := s.conflicts.Resolve(c.Request.Context(), conflict.ID, req.Choice, userID(c), req.Values)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "resolved"})
}

func (s *Server) handleIgnoreConflict(c *gin.Context) {
	conflict, ok := s.conflictForCaller(c)
	if !ok {
		return
	}

	if err := s.conflicts.Ignore(c.Request.Context(), conflict.ID, userID(c)); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "ignored"})
}
