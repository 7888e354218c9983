package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kaiwen/pricewatch/internal/domain"
	"github.com/kaiwen/pricewatch/internal/repository"
)

// UPCHandler handles UPC store endpoints.
type UPCHandler struct {
	upcRepo *repository.UPCRepository
}

// NewUPCHandler creates a new UPC handler.
func NewUPCHandler(upcRepo *repository.UPCRepository) *UPCHandler {
	return &UPCHandler{upcRepo: upcRepo}
}

type addUPCsRequest struct {
	UPCs []string `json:"upcs" binding:"required"`
}

// AddUPCs handles POST /api/v1/upcs. Blank codes are dropped; duplicates
// are ignored silently.
func (h *UPCHandler) AddUPCs(c *gin.Context) {
	var req addUPCsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	now := time.Now().UTC()
	rows := make([]domain.UPC, 0, len(req.UPCs))
	for _, upc := range req.UPCs {
		upc = strings.TrimSpace(upc)
		if upc == "" {
			continue
		}
		rows = append(rows, domain.UPC{
			ID:        uuid.New().String(),
			UPC:       upc,
			CreatedAt: now,
		})
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No UPCs provided"})
		return
	}

	if err := h.upcRepo.CreateBatch(c.Request.Context(), rows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store UPCs: " + err.Error()})
		return
	}

	total, err := h.upcRepo.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count UPCs: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"added": len(rows),
		"total": total,
	})
}

// ListUPCs handles GET /api/v1/upcs.
func (h *UPCHandler) ListUPCs(c *gin.Context) {
	upcs, err := h.upcRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list UPCs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upcs":  upcs,
		"count": len(upcs),
	})
}

// DeleteUPC handles DELETE /api/v1/upcs/:upc.
func (h *UPCHandler) DeleteUPC(c *gin.Context) {
	upc := c.Param("upc")
	if err := h.upcRepo.Delete(c.Request.Context(), upc); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "UPC not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete UPC: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": upc})
}
