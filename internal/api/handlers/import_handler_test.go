package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
	"github.com/roadwarden/roadwarden/internal/services"
)

func setupImportRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)

	h := NewImportHandler(services.NewImportService(db))
	r := gin.New()
	r.POST("/import/request-types", h.RequestTypes)
	r.POST("/import/url-rules", h.URLRules)
	return r, db
}

func TestImportHandler_RawBody(t *testing.T) {
	r, db := setupImportRouter(t)

	csv := "Title,Description,IPRules\n" +
		"login,Auth endpoints,allowed|10.0.0.0/8\n" +
		"search,Search pages,\n"
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/import/request-types", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":2`)

	var count int64
	db.Model(&models.RequestType{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestImportHandler_MultipartUpload(t *testing.T) {
	r, db := setupImportRouter(t)

	rt := models.RequestType{Title: "login"}
	require.NoError(t, db.Create(&rt).Error)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "url_rules.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Title,Pattern,Order,RequestType,Enabled\n" +
		"login page,^/login,1,login,true\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/import/url-rules", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":1`)

	var rules []models.URLRule
	require.NoError(t, db.Find(&rules).Error)
	require.Len(t, rules, 1)
	assert.Equal(t, `^/login`, rules[0].Pattern)
}
