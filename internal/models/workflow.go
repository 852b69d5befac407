package models

import (
	"time"

	"gorm.io/gorm"
)

// Workflow is a multi-level approval configuration owned by a template.
// At most one workflow per template is active at a time; NeedsReview is
// raised when a structural template change invalidates a level's editable
// field scope and cleared by the next successful save.
type Workflow struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TemplateID  uint            `gorm:"index;not null" json:"template_id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Description string          `gorm:"size:500" json:"description"`
	Active      bool            `gorm:"default:false" json:"active"`
	NeedsReview bool            `gorm:"default:false" json:"needs_review"`
	Levels      []WorkflowLevel `gorm:"foreignKey:WorkflowID" json:"levels,omitempty"`
	CreatedBy   uint            `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// WorkflowLevel is one approval gate. LevelOrder is dense and 1-based
// within the workflow. Approvers are stored as references (user ids and
// group ids); group membership is flattened at validation/evaluation time,
// never snapshotted here. Parallel=true requires every resolved approver
// to approve; Parallel=false is satisfied by any one of them.
type WorkflowLevel struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WorkflowID     uint      `gorm:"index;not null" json:"workflow_id"`
	LevelOrder     int       `gorm:"not null" json:"level_order"`
	Name           string    `gorm:"size:200" json:"name"`
	UserIDs        []uint    `gorm:"type:text;serializer:json" json:"user_ids"`
	GroupIDs       []uint    `gorm:"type:text;serializer:json" json:"group_ids"`
	EditableFields []string  `gorm:"type:text;serializer:json" json:"editable_fields"`
	Parallel       bool      `gorm:"default:false" json:"parallel"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (WorkflowLevel) TableName() string { return "workflow_levels" }
