package handlers

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/middleware"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
	"gorm.io/gorm"
)

type BundleHandler struct {
	bundleService *services.BundleService
}

func NewBundleHandler(db *gorm.DB) *BundleHandler {
	return &BundleHandler{bundleService: services.NewBundleService(db)}
}

// Export serializes a template with its workflows into a portable bundle
// GET /api/templates/:id/export
func (h *BundleHandler) Export(c *gin.Context) {
	templateID, ok := pathID(c, "id")
	if !ok {
		return
	}

	bundle, err := h.bundleService.ExportTemplate(templateID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s.json", bundle.Template.Name))
	response.Success(c, bundle)
}

// ValidateImport dry-runs a bundle against the current installation
// POST /api/templates/import/validate
func (h *BundleHandler) ValidateImport(c *gin.Context) {
	bundle, ok := h.readBundle(c)
	if !ok {
		return
	}

	result, err := h.bundleService.ValidateImport(bundle)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// Import recreates a bundled template under fresh identifiers
// POST /api/templates/import
func (h *BundleHandler) Import(c *gin.Context) {
	bundle, ok := h.readBundle(c)
	if !ok {
		return
	}

	opts := services.ImportOptions{
		OverwriteExisting: c.Query("overwrite") == "true",
		TargetBinding:     c.Query("binding"),
	}

	tpl, err := h.bundleService.ImportTemplate(bundle, opts, middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, tpl)
}

// readBundle accepts either a raw JSON body or a multipart file upload.
func (h *BundleHandler) readBundle(c *gin.Context) (*services.Bundle, bool) {
	var data []byte

	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			response.BadRequest(c, "cannot open uploaded file")
			return nil, false
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			response.BadRequest(c, "cannot read uploaded file")
			return nil, false
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			response.BadRequest(c, "empty request body")
			return nil, false
		}
		data = body
	}

	bundle, err := services.ParseBundle(data)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return bundle, true
}
