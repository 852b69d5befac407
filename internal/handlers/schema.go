package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
	"gorm.io/gorm"
)

type SchemaHandler struct {
	db          *gorm.DB
	syncService *services.SchemaSyncService
}

func NewSchemaHandler(db *gorm.DB, sync *services.SchemaSyncService) *SchemaHandler {
	return &SchemaHandler{db: db, syncService: sync}
}

// RefreshCatalog pulls the field and generic-table catalogs for a binding
// POST /api/schema/refresh
func (h *SchemaHandler) RefreshCatalog(c *gin.Context) {
	binding := c.Query("binding")
	if binding == "" {
		response.BadRequest(c, "binding is required")
		return
	}

	if err := h.syncService.RefreshCatalog(binding); err != nil {
		response.BadGateway(c, err.Error())
		return
	}
	response.Success(c, gin.H{"message": "catalog refreshed"})
}

// ListTableFields returns the cached field catalog of one external table
// GET /api/schema/fields?binding=&table=
func (h *SchemaHandler) ListTableFields(c *gin.Context) {
	binding := c.Query("binding")
	table := c.Query("table")
	if binding == "" || table == "" {
		response.BadRequest(c, "binding and table are required")
		return
	}

	var fields []models.SchemaField
	if err := h.db.Where("binding = ? AND table_name = ?", binding, table).
		Order("position").Find(&fields).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"items": fields})
}

// ListGenericTables returns the cached generic-table catalog of a binding
// GET /api/schema/generic-tables?binding=
func (h *SchemaHandler) ListGenericTables(c *gin.Context) {
	binding := c.Query("binding")
	if binding == "" {
		response.BadRequest(c, "binding is required")
		return
	}

	var tables []models.GenericTable
	if err := h.db.Where("binding = ?", binding).
		Order("code").Find(&tables).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"items": tables})
}

// RefreshTableFields resyncs a template table's schema-sourced fields
// POST /api/tables/:tableId/refresh-fields
func (h *SchemaHandler) RefreshTableFields(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	var table models.TemplateTable
	if err := h.db.First(&table, tableID).Error; err != nil {
		respondServiceError(c, services.ErrTableNotFound)
		return
	}

	var tpl models.Template
	if err := h.db.First(&tpl, table.TemplateID).Error; err != nil {
		respondServiceError(c, services.ErrTemplateNotFound)
		return
	}

	if err := h.syncService.RefreshTemplateFields(&table, tpl.BindingCode); err != nil {
		response.BadGateway(c, err.Error())
		return
	}
	response.Success(c, gin.H{"message": "fields refreshed"})
}
