package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kaiwen/pricewatch/internal/service"
)

// SchedulerHandler handles schedule configuration endpoints.
type SchedulerHandler struct {
	scheduler *service.Scheduler
}

// NewSchedulerHandler creates a new scheduler handler.
func NewSchedulerHandler(scheduler *service.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// GetSchedule handles GET /api/v1/scheduler.
func (h *SchedulerHandler) GetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings": h.scheduler.Settings(),
		"next_run": h.scheduler.NextRun().Format(time.RFC3339),
	})
}

// UpdateSchedule handles PUT /api/v1/scheduler. The new time takes effect
// for the next fire.
func (h *SchedulerHandler) UpdateSchedule(c *gin.Context) {
	var settings service.ScheduleSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := h.scheduler.UpdateSettings(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": h.scheduler.Settings(),
		"next_run": h.scheduler.NextRun().Format(time.RFC3339),
	})
}
