package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kaiwen/pricewatch/internal/repository"
	"github.com/kaiwen/pricewatch/internal/service"
)

// JobHandler handles batch job endpoints.
type JobHandler struct {
	jobs     *service.JobService
	reporter *service.ReportService
	upcRepo  *repository.UPCRepository
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs *service.JobService, reporter *service.ReportService, upcRepo *repository.UPCRepository) *JobHandler {
	return &JobHandler{jobs: jobs, reporter: reporter, upcRepo: upcRepo}
}

type createJobRequest struct {
	Name string   `json:"name"`
	UPCs []string `json:"upcs"`
}

// normalizeUPCs trims, drops blanks, and dedupes while preserving order.
func normalizeUPCs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var codes []string
	for _, upc := range raw {
		upc = strings.TrimSpace(upc)
		if upc == "" {
			continue
		}
		if _, ok := seen[upc]; ok {
			continue
		}
		seen[upc] = struct{}{}
		codes = append(codes, upc)
	}
	return codes
}

// CreateJob handles POST /api/v1/jobs. With no explicit UPC list the current
// store snapshot is used.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Partitioning assumes a deduplicated snapshot, so an explicit list gets
	// the same normalization the store enforces.
	upcs := normalizeUPCs(req.UPCs)
	if len(upcs) == 0 {
		var err error
		upcs, err = h.upcRepo.ListCodes(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to snapshot UPC store: " + err.Error()})
			return
		}
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Manual Report - %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), name, upcs)
	if err != nil {
		if errors.Is(err, service.ErrEmptyInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No UPCs to process"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetJobStatus handles GET /api/v1/jobs/:id/status.
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job status: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// TriggerJob handles POST /api/v1/jobs/:id/trigger. Processing continues in
// the background; clients poll the status endpoint.
func (h *JobHandler) TriggerJob(c *gin.Context) {
	jobID := c.Param("id")
	if err := h.jobs.Trigger(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, service.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": "Job is already processing"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to trigger job: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": "processing",
	})
}

// ListJobAlerts handles GET /api/v1/jobs/:id/alerts.
func (h *JobHandler) ListJobAlerts(c *gin.Context) {
	alerts, err := h.jobs.ListAlerts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// DownloadJobReport handles GET /api/v1/jobs/:id/report, streaming the CSV
// alert report.
func (h *JobHandler) DownloadJobReport(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		return
	}

	data, err := h.reporter.GenerateCSV(c.Request.Context(), job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate report: " + err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s.csv", job.ID)))
	c.Data(http.StatusOK, "text/csv", data)
}
