package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
	"github.com/roadwarden/roadwarden/internal/services"
)

// RuleHandler exposes CRUD for rules and their inspectors.
type RuleHandler struct {
	db        *gorm.DB
	inspector *services.InspectorService
}

func NewRuleHandler(db *gorm.DB, inspector *services.InspectorService) *RuleHandler {
	return &RuleHandler{db: db, inspector: inspector}
}

func (h *RuleHandler) List(c *gin.Context) {
	var rules []models.Rule
	if err := h.db.Preload("RequestTypes").Preload("Inspectors").Order("title asc").Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *RuleHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}
	var rule models.Rule
	if err := h.db.Preload("RequestTypes").Preload("Inspectors").First(&rule, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Create(c *gin.Context) {
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rule.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}
	if err := h.db.Create(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}
	var existing models.Rule
	if err := h.db.First(&existing, uint(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = existing.ID
	if err := h.db.Save(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		return
	}
	if rule.RequestTypes != nil {
		if err := h.db.Model(&rule).Association("RequestTypes").Replace(rule.RequestTypes); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update request types"})
			return
		}
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}
	if err := h.db.Delete(&models.Rule{}, uint(id)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}

// Inspect runs every inspector attached to the rule and reports the
// pass/fail outcome of each.
func (h *RuleHandler) Inspect(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}
	results, err := h.inspector.RunRule(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Inspector run failed"})
		return
	}
	if len(results) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No inspectors configured for rule"})
		return
	}
	c.JSON(http.StatusOK, results)
}
