package models

import (
	"time"

	"gorm.io/gorm"
)

// RelationType describes how a TemplateTable participates in its template.
type RelationType string

const (
	RelationUnset       RelationType = ""
	RelationParent      RelationType = "parent"
	RelationChild       RelationType = "child"
	RelationIndependent RelationType = "independent"
)

// Valid reports whether rt is one of the known relation types.
func (rt RelationType) Valid() bool {
	switch rt {
	case RelationUnset, RelationParent, RelationChild, RelationIndependent:
		return true
	}
	return false
}

// Template is an admin-defined form definition bound to one or more
// external ERP tables. Single-table templates still own exactly one
// TemplateTable row so the invariant checks never special-case them.
type Template struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Description string          `gorm:"size:500" json:"description"`
	MainTable   string          `gorm:"size:100;not null;index" json:"main_table"`
	Active      bool            `gorm:"default:true" json:"active"`
	MultiTable  bool            `gorm:"default:false" json:"multi_table"`
	BindingCode string          `gorm:"size:50" json:"binding_code"` // origin country/connection code
	Version     int             `gorm:"default:1" json:"version"`
	CreatedBy   uint            `json:"created_by"`
	Tables      []TemplateTable `gorm:"foreignKey:TemplateID" json:"tables,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// ForeignKeyPair links one parent-side field to one child-side field.
// Composite keys are expressed as an ordered list of pairs.
type ForeignKeyPair struct {
	ParentField string `json:"parent_field"`
	ChildField  string `json:"child_field"`
}

// TemplateTable is one external table's participation in a template.
// TableName is immutable after creation; Alias is the namespace key used
// when composing submitted payloads.
type TemplateTable struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	TemplateID    uint             `gorm:"index;not null" json:"template_id"`
	TableName     string           `gorm:"size:100;not null" json:"table_name"`
	Alias         string           `gorm:"size:100;not null" json:"alias"`
	Label         string           `gorm:"size:200" json:"label"`
	RelationType  RelationType     `gorm:"size:20" json:"relation_type"`
	ParentTableID *uint            `gorm:"index" json:"parent_table_id"`
	ForeignKeys   []ForeignKeyPair `gorm:"type:text;serializer:json" json:"foreign_keys"`
	Position      int              `json:"position"`
	Fields        []FormField      `gorm:"foreignKey:TableID" json:"fields,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `gorm:"index" json:"-"`
}
