package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kaiwen/pricewatch/internal/service"
)

// BatchHandler handles batch endpoints.
type BatchHandler struct {
	jobs *service.JobService
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(jobs *service.JobService) *BatchHandler {
	return &BatchHandler{jobs: jobs}
}

// GetBatch handles GET /api/v1/batches/:id.
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batch, err := h.jobs.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batch: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListBatchItems handles GET /api/v1/batches/:id/items.
func (h *BatchHandler) ListBatchItems(c *gin.Context) {
	items, err := h.jobs.ListBatchItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list batch items: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// StopBatch handles POST /api/v1/batches/:id/stop. The stop is cooperative;
// a running batch finishes its current item first.
func (h *BatchHandler) StopBatch(c *gin.Context) {
	batchID := c.Param("id")
	if err := h.jobs.StopBatch(c.Request.Context(), batchID); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		case errors.Is(err, service.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": "Batch is already finished"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop batch: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batchID,
		"status":   "stopping",
	})
}
