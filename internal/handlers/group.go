package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/pkg/response"
	"gorm.io/gorm"
)

type GroupHandler struct {
	groupService *services.ApprovalGroupService
}

func NewGroupHandler(db *gorm.DB) *GroupHandler {
	return &GroupHandler{groupService: services.NewApprovalGroupService(db)}
}

// List returns all approval groups
// GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.groupService.List()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"items": groups})
}

// Get returns one approval group
// GET /api/groups/:groupId
func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	group, err := h.groupService.GetByID(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, group)
}

// Create creates an approval group
// POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var req services.SaveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groupService.Create(&req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, group)
}

// Update modifies an approval group
// PUT /api/groups/:groupId
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	var req services.SaveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groupService.Update(id, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, group)
}

// Delete removes a group and its memberships
// DELETE /api/groups/:groupId
func (h *GroupHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	if err := h.groupService.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "group deleted"})
}

type setMembersRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
}

// SetMembers replaces the group's membership
// PUT /api/groups/:groupId/members
func (h *GroupHandler) SetMembers(c *gin.Context) {
	id, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	var req setMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.groupService.SetMembers(id, req.UserIDs); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "members updated"})
}

// ResolveMembers returns the group's active member users
// GET /api/groups/:groupId/members
func (h *GroupHandler) ResolveMembers(c *gin.Context) {
	id, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	members, err := h.groupService.ResolveMembers(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"items": members})
}
