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

// RequestTypeHandler exposes CRUD for request types, their URL rules and the
// IP rule lists.
type RequestTypeHandler struct {
	db *gorm.DB
}

func NewRequestTypeHandler(db *gorm.DB) *RequestTypeHandler {
	return &RequestTypeHandler{db: db}
}

func (h *RequestTypeHandler) List(c *gin.Context) {
	var types []models.RequestType
	if err := h.db.Preload("URLRules", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order asc")
	}).Preload("IPRules").Order("title asc").Find(&types).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list request types"})
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *RequestTypeHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request type ID"})
		return
	}
	var rt models.RequestType
	if err := h.db.Preload("URLRules", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order asc")
	}).Preload("IPRules").First(&rt, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Request type not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load request type"})
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (h *RequestTypeHandler) Create(c *gin.Context) {
	var rt models.RequestType
	if err := c.ShouldBindJSON(&rt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rt.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}
	if err := h.db.Create(&rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create request type"})
		return
	}
	c.JSON(http.StatusCreated, rt)
}

func (h *RequestTypeHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request type ID"})
		return
	}
	var existing models.RequestType
	if err := h.db.First(&existing, uint(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request type not found"})
		return
	}
	var rt models.RequestType
	if err := c.ShouldBindJSON(&rt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt.ID = existing.ID
	if err := h.db.Save(&rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update request type"})
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (h *RequestTypeHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request type ID"})
		return
	}
	if err := h.db.Where("request_type_id = ?", uint(id)).Delete(&models.URLRule{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete URL rules"})
		return
	}
	if err := h.db.Delete(&models.RequestType{}, uint(id)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete request type"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request type deleted"})
}

func (h *RequestTypeHandler) ListIPRules(c *gin.Context) {
	var rules []models.IPRule
	query := h.db.Order("permission asc, ip_address asc")
	if permission := c.Query("permission"); permission != "" {
		query = query.Where("permission = ?", permission)
	}
	if err := query.Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list IP rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *RequestTypeHandler) CreateIPRule(c *gin.Context) {
	var rule models.IPRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := services.ValidateIPExpression(rule.IPAddress); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.Create(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create IP rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RequestTypeHandler) DeleteIPRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid IP rule ID"})
		return
	}
	if err := h.db.Delete(&models.IPRule{}, uint(id)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete IP rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "IP rule deleted"})
}
