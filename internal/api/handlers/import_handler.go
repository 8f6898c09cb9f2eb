package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roadwarden/roadwarden/internal/services"
)

// ImportHandler accepts CSV uploads for bulk configuration. Each endpoint
// takes the file either as a multipart "file" field or as the raw request
// body.
type ImportHandler struct {
	service *services.ImportService
}

func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

func (h *ImportHandler) RequestTypes(c *gin.Context) {
	h.runImport(c, h.service.ImportRequestTypes)
}

func (h *ImportHandler) URLRules(c *gin.Context) {
	h.runImport(c, h.service.ImportURLRules)
}

func (h *ImportHandler) Rules(c *gin.Context) {
	h.runImport(c, h.service.ImportRules)
}

func (h *ImportHandler) Inspectors(c *gin.Context) {
	h.runImport(c, h.service.ImportInspectors)
}

func (h *ImportHandler) runImport(c *gin.Context, importer func(io.Reader) (*services.ImportSummary, error)) {
	reader, cleanup, err := csvReader(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	summary, err := importer(reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func csvReader(c *gin.Context) (io.Reader, func(), error) {
	file, _, err := c.Request.FormFile("file")
	if err == nil {
		return file, func() { file.Close() }, nil
	}
	return c.Request.Body, func() {}, nil
}
