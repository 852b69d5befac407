package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/middleware"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
	"gorm.io/gorm"
)

type FieldHandler struct {
	fieldService    *services.FieldService
	orderingService *services.OrderingService
}

func NewFieldHandler(db *gorm.DB) *FieldHandler {
	return &FieldHandler{
		fieldService:    services.NewFieldService(db),
		orderingService: services.NewOrderingService(db),
	}
}

// AddCustomField appends a custom field to a table
// POST /api/tables/:tableId/fields
func (h *FieldHandler) AddCustomField(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	var req services.AddCustomFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	field, err := h.fieldService.AddCustomField(tableID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, field)
}

// UpdateField modifies a field's presentation or configuration
// PUT /api/fields/:fieldId
func (h *FieldHandler) UpdateField(c *gin.Context) {
	fieldID, ok := pathID(c, "fieldId")
	if !ok {
		return
	}

	var req services.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	actorID := middleware.GetUserID(c)
	field, err := h.fieldService.UpdateField(fieldID, &req, &actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, field)
}

// DeleteCustomField removes a custom field and closes the order gap
// DELETE /api/fields/:fieldId
func (h *FieldHandler) DeleteCustomField(c *gin.Context) {
	fieldID, ok := pathID(c, "fieldId")
	if !ok {
		return
	}

	actorID := middleware.GetUserID(c)
	if err := h.fieldService.DeleteCustomField(fieldID, &actorID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "field deleted"})
}

type moveFieldRequest struct {
	FieldID   uint                   `json:"field_id" binding:"required"`
	Direction services.MoveDirection `json:"direction" binding:"required,oneof=up down"`
}

// MoveField swaps a field with its neighbor
// POST /api/tables/:tableId/fields/move
func (h *FieldHandler) MoveField(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	var req moveFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.orderingService.MoveField(tableID, req.FieldID, req.Direction); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "field moved"})
}

// GroupVisibleToTop partitions a table's fields visible-first
// POST /api/tables/:tableId/fields/group-visible
func (h *FieldHandler) GroupVisibleToTop(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	if err := h.orderingService.GroupVisibleToTop(tableID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "fields regrouped"})
}

type reorderRequest struct {
	FieldIDs []uint `json:"field_ids" binding:"required"`
}

// ReorderFields applies a full permutation of a table's fields
// PUT /api/tables/:tableId/fields/order
func (h *FieldHandler) ReorderFields(c *gin.Context) {
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.orderingService.ReorderFields(tableID, req.FieldIDs); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "fields reordered"})
}
