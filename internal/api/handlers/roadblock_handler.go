package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/services"
)

// RoadblockHandler exposes the block record audit trail. Records are
// read-only apart from the admin override flag; scores only change through
// the evaluation path.
type RoadblockHandler struct {
	service *services.RoadblockService
}

func NewRoadblockHandler(service *services.RoadblockService) *RoadblockHandler {
	return &RoadblockHandler{service: service}
}

func (h *RoadblockHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := h.service.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list roadblocks"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *RoadblockHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid roadblock ID"})
		return
	}
	record, err := h.service.Get(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Roadblock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load roadblock"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// Override sets or clears the admin override. An overridden record stops
// blocking immediately but keeps its score and history.
func (h *RoadblockHandler) Override(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid roadblock ID"})
		return
	}
	var req struct {
		Override bool `json:"override"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetAdminOverride(uint(id), req.Override); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Roadblock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update override"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Override updated"})
}
