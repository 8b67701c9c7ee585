package api

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/repository"
	"github.com/tallyfin/ledger-worker/internal/service"
)

// maxUploadBytes caps one uploaded document.
const maxUploadBytes = 25 << 20

func (s *Server) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(400, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(413, gin.H{"error": "file too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(400, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		c.JSON(400, gin.H{"error": "could not read file"})
		return
	}

	jobType := models.JobType(c.DefaultPostForm("type", string(models.JobTypeSpreadsheet)))
	switch jobType {
	case models.JobTypeSpreadsheet, models.JobTypeInvoice, models.JobTypeBatch:
	default:
		c.JSON(400, gin.H{"error": "unknown job type"})
		return
	}

	mode := models.ProcessingMode(c.DefaultPostForm("mode", string(models.ProcessingModeSync)))
	switch mode {
	case models.ProcessingModeSync, models.ProcessingModeAsync:
	default:
		c.JSON(400, gin.H{"error": "unknown processing mode"})
		return
	}

	force, _ := strconv.ParseBool(c.PostForm("force"))

	job, err := s.uploader.CreateJob(c.Request.Context(), service.UploadRequest{
		TenantID: tenantID(c),
		UserID:   userID(c),
		Type:     jobType,
		Mode:     mode,
		FileName: fileHeader.Filename,
		Data:     data,
		Force:    force,
	})
	if err != nil {
		var dup *service.DuplicateFileError
		if errors.As(err, &dup) {
			c.JSON(409, gin.H{
				"error":           "duplicate file",
				"existing_job_id": dup.ExistingJobID,
			})
			return
		}
		s.log.WithError(err).Error("upload failed")
		c.JSON(500, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(201, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	filter := repository.JobFilter{
		Status: models.JobStatus(c.Query("status")),
		Type:   models.JobType(c.Query("type")),
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	jobs, err := s.jobs.List(c.Request.Context(), tenantID(c), userID(c), filter)
	if err != nil {
		s.log.WithError(err).Error("job list failed")
		c.JSON(500, gin.H{"error": "could not list jobs"})
		return
	}
	c.JSON(200, gin.H{"jobs": jobs})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(404, gin.H{"error": "job not found"})
			return
		}
		s.log.WithError(err).Error("job lookup failed")
		c.JSON(500, gin.H{"error": "could not load job"})
		return
	}
	if job.TenantID != tenantID(c) || job.UserID != userID(c) {
		c.JSON(404, gin.H{"error": "job not found"})
		return
	}
	c.JSON(200, job)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	txs, err := s.transactions.GetByOwner(c.Request.Context(), tenantID(c), userID(c))
	if err != nil {
		s.log.WithError(err).Error("transaction list failed")
		c.JSON(500, gin.H{"error": "could not list transactions"})
		return
	}
	c.JSON(200, gin.H{"transactions": txs})
}

func (s *Server) handleConfirmTransaction(c *gin.Context) {
	id := c.Param("id")
	tx, err := s.transactions.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(404, gin.H{"error": "transaction not found"})
		return
	}
	if tx.TenantID != tenantID(c) {
		c.JSON(404, gin.H{"error": "transaction not found"})
		return
	}

	if err := s.transactions.Confirm(c.Request.Context(), id); err != nil {
		s.log.WithError(err).Error("confirm failed")
		c.JSON(500, gin.H{"error": "could not confirm transaction"})
		return
	}
	c.JSON(200, gin.H{"status": "confirmed"})
}

type cleanupRequest struct {
	Category string `json:"category" binding:"required"`
}

func (s *Server) handleCleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "category is required"})
		return
	}

	deleted, err := s.cleaner.Cleanup(c.Request.Context(), tenantID(c), userID(c), req.Category)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"deleted": deleted})
}
