package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/middleware"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
	"gorm.io/gorm"
)

type WorkflowHandler struct {
	workflowService *services.WorkflowService
}

func NewWorkflowHandler(db *gorm.DB) *WorkflowHandler {
	return &WorkflowHandler{workflowService: services.NewWorkflowService(db)}
}

// Save creates or replaces a workflow with its complete level list
// POST /api/templates/:id/workflows
func (h *WorkflowHandler) Save(c *gin.Context) {
	templateID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.SaveWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	wf, err := h.workflowService.SaveWorkflow(templateID, &req, middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, wf)
}

// ListByTemplate returns every workflow of a template
// GET /api/templates/:id/workflows
func (h *WorkflowHandler) ListByTemplate(c *gin.Context) {
	templateID, ok := pathID(c, "id")
	if !ok {
		return
	}

	workflows, err := h.workflowService.ListByTemplate(templateID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"items": workflows})
}

// GetActive returns the template's single active workflow
// GET /api/templates/:id/workflows/active
func (h *WorkflowHandler) GetActive(c *gin.Context) {
	templateID, ok := pathID(c, "id")
	if !ok {
		return
	}

	wf, err := h.workflowService.GetActiveWorkflow(templateID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, wf)
}

// Get returns a workflow with its levels
// GET /api/workflows/:workflowId
func (h *WorkflowHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "workflowId")
	if !ok {
		return
	}

	wf, err := h.workflowService.GetByID(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, wf)
}

// Deactivate turns a workflow off without deleting it
// POST /api/workflows/:workflowId/deactivate
func (h *WorkflowHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c, "workflowId")
	if !ok {
		return
	}

	if err := h.workflowService.Deactivate(id); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "workflow deactivated"})
}
