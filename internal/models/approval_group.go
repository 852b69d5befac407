package models

import (
	"time"

	"gorm.io/gorm"
)

// ApprovalGroup is a named, mutable set of users. Workflow levels reference
// groups by id, so membership changes propagate to every workflow that
// uses the group.
type ApprovalGroup struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex;size:200;not null" json:"name"`
	Description string         `gorm:"size:500" json:"description"`
	Active      bool           `gorm:"default:true" json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ApprovalGroup) TableName() string { return "approval_groups" }

// GroupMember links one user to one approval group.
type GroupMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uint      `gorm:"uniqueIndex:idx_group_user;not null" json:"group_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_group_user;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (GroupMember) TableName() string { return "group_members" }
