package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/middleware"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
	"gorm.io/gorm"
)

type TemplateHandler struct {
	templateService *services.TemplateService
}

func NewTemplateHandler(db *gorm.DB, sync *services.SchemaSyncService) *TemplateHandler {
	return &TemplateHandler{
		templateService: services.NewTemplateService(db, sync),
	}
}

// List returns templates with pagination
// GET /api/templates
func (h *TemplateHandler) List(c *gin.Context) {
	req := services.TemplateListRequest{Page: 1, PageSize: 20}
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.templateService.List(&req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, resp)
}

// Get returns a template with its tables and fields
// GET /api/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tpl, err := h.templateService.GetByID(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, tpl)
}

// Create creates a template with its implicit main table
// POST /api/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	var req services.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tpl, err := h.templateService.Create(&req, middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, tpl)
}

// Update modifies template metadata
// PUT /api/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tpl, err := h.templateService.Update(id, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, tpl)
}

// Delete removes a template with all its tables, fields and workflows
// DELETE /api/templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.templateService.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "template deleted"})
}

// AddTable attaches a new table to a template
// POST /api/templates/:id/tables
func (h *TemplateHandler) AddTable(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.AddTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	table, err := h.templateService.AddTable(id, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, table)
}

// UpdateTable modifies a table's alias, label or relation settings
// PUT /api/tables/:tableId
func (h *TemplateHandler) UpdateTable(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	var req services.UpdateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	table, err := h.templateService.UpdateTable(tableID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, table)
}

// RemoveTable detaches a non-main table from its template
// DELETE /api/tables/:tableId
func (h *TemplateHandler) RemoveTable(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	actorID := middleware.GetUserID(c)
	if err := h.templateService.RemoveTable(tableID, &actorID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "table removed"})
}
