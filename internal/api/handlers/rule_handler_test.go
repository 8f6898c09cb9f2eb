package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
	"github.com/roadwarden/roadwarden/internal/services"
)

func setupRuleRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)

	inspector := services.NewInspectorService(db,
		services.NewEvaluatorService(db, services.NewMembershipService(db)))
	h := NewRuleHandler(db, inspector)

	r := gin.New()
	r.GET("/rules", h.List)
	r.GET("/rules/:id", h.Get)
	r.POST("/rules", h.Create)
	r.PUT("/rules/:id", h.Update)
	r.DELETE("/rules/:id", h.Delete)
	r.POST("/rules/:id/inspect", h.Inspect)
	return r, db
}

func TestRuleHandler_CreateAndGet(t *testing.T) {
	r, _ := setupRuleRouter(t)

	body, _ := json.Marshal(gin.H{
		"title": "Search hammering", "level": "session",
		"count": 30, "start_offset": 60, "score": 50, "enabled": true,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/rules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Rule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Search hammering", created.Title)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/rules/1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Search hammering")
}

func TestRuleHandler_CreateRequiresTitle(t *testing.T) {
	r, _ := setupRuleRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/rules", bytes.NewBufferString(`{"score":10}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Title is required")
}

func TestRuleHandler_GetNotFound(t *testing.T) {
	r, _ := setupRuleRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/rules/42", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/rules/not-a-number", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleHandler_UpdateAndDelete(t *testing.T) {
	r, db := setupRuleRouter(t)

	rule := models.Rule{Title: "Login brute force", Count: 10, Enabled: true}
	require.NoError(t, db.Create(&rule).Error)

	body, _ := json.Marshal(gin.H{"title": "Login brute force", "count": 20, "enabled": true})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/rules/1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var saved models.Rule
	require.NoError(t, db.First(&saved, rule.ID).Error)
	assert.Equal(t, 20, saved.Count)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/rules/1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.Rule{}).Count(&count)
	assert.Zero(t, count)
}

func TestRuleHandler_InspectWithoutInspectors(t *testing.T) {
	r, db := setupRuleRouter(t)

	rule := models.Rule{Title: "bare", Enabled: true}
	require.NoError(t, db.Create(&rule).Error)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/rules/1/inspect", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No inspectors configured")
}

func TestRuleHandler_InspectRunsInspectors(t *testing.T) {
	r, db := setupRuleRouter(t)

	rule := models.Rule{Title: "dormant", Enabled: false}
	require.NoError(t, db.Create(&rule).Error)
	require.NoError(t, db.Create(&models.RuleInspector{
		RuleID:         rule.ID,
		Title:          "disabled trace",
		ExpectedResult: "Rule dormant is disabled, skipping",
	}).Error)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/rules/1/inspect", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"passed":true`)
}
