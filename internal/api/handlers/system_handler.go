package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roadwarden/roadwarden/internal/services"
	"github.com/roadwarden/roadwarden/internal/version"
)

// SystemHandler exposes operational endpoints: version info and an on-demand
// history truncation run.
type SystemHandler struct {
	retention *services.RetentionService
}

func NewSystemHandler(retention *services.RetentionService) *SystemHandler {
	return &SystemHandler{retention: retention}
}

func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    version.Name,
		"version": version.Version,
	})
}

// Truncate runs one retention pass immediately, outside the cron schedule.
func (h *SystemHandler) Truncate(c *gin.Context) {
	result, err := h.retention.Truncate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Truncation failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
