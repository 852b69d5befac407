package models

import (
	"time"

	"gorm.io/gorm"
)

// FieldType enumerates the renderable field kinds.
type FieldType string

const (
	FieldString       FieldType = "string"
	FieldNumber       FieldType = "number"
	FieldDate         FieldType = "date"
	FieldBoolean      FieldType = "boolean"
	FieldTextarea     FieldType = "textarea"
	FieldSelect       FieldType = "select"
	FieldCheckbox     FieldType = "checkbox"
	FieldRadio        FieldType = "radio"
	FieldAutocomplete FieldType = "autocomplete"
	FieldMultiselect  FieldType = "multiselect"
	FieldAttachment   FieldType = "attachment"
)

// Valid reports whether ft is a known field type.
func (ft FieldType) Valid() bool {
	switch ft {
	case FieldString, FieldNumber, FieldDate, FieldBoolean, FieldTextarea,
		FieldSelect, FieldCheckbox, FieldRadio, FieldAutocomplete,
		FieldMultiselect, FieldAttachment:
		return true
	}
	return false
}

// SupportsDataSource reports whether a data source may be attached to
// fields of this type.
func (ft FieldType) SupportsDataSource() bool {
	switch ft {
	case FieldSelect, FieldRadio, FieldAutocomplete, FieldMultiselect:
		return true
	}
	return false
}

// DataSourceType selects which variant of DataSourceConfig applies.
type DataSourceType string

const (
	SourceNone         DataSourceType = ""
	SourceFixed        DataSourceType = "fixed"
	SourceSQL          DataSourceType = "sql"
	SourceGenericTable DataSourceType = "generic_table" // SX5-style catalog table
)

func (dt DataSourceType) Valid() bool {
	switch dt {
	case SourceNone, SourceFixed, SourceSQL, SourceGenericTable:
		return true
	}
	return false
}

// FixedOption is one entry of a fixed option list.
type FixedOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FixedSource is an inline, ordered option list.
type FixedSource struct {
	Options []FixedOption `json:"options"`
}

// SQLSource draws options from an arbitrary query on the backing system.
type SQLSource struct {
	Query       string `json:"query"`
	KeyColumn   string `json:"key_column"`
	ValueColumn string `json:"value_column"`
	LabelColumn string `json:"label_column"`
}

// GenericTableSource draws options from the external generic-table catalog.
type GenericTableSource struct {
	TableCode string `json:"table_code"`
}

// DataSourceConfig is a tagged union: exactly the variant matching the
// field's DataSourceType is populated, the others are nil.
type DataSourceConfig struct {
	Fixed   *FixedSource        `json:"fixed,omitempty"`
	SQL     *SQLSource          `json:"sql,omitempty"`
	Generic *GenericTableSource `json:"generic,omitempty"`
}

// ValidationRules is an optional validation overlay on a field.
type ValidationRules struct {
	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// AttachmentConfig is mandatory exactly when the field type is attachment.
type AttachmentConfig struct {
	MimeTypes    []string `json:"mime_types"`
	MaxSizeBytes int64    `json:"max_size_bytes"`
	MaxFiles     int      `json:"max_files"`
}

// FormField is one presentable field of a TemplateTable. Schema-sourced
// fields (IsCustom=false) mirror the external catalog: their Name and Type
// are immutable and only presentation metadata is admin-editable. Custom
// fields are fully admin-owned.
type FormField struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	TableID        uint              `gorm:"index;not null" json:"table_id"`
	Name           string            `gorm:"size:100;not null" json:"name"`
	Label          string            `gorm:"size:200" json:"label"`
	Type           FieldType         `gorm:"size:30;not null" json:"type"`
	Required       bool              `gorm:"default:false" json:"required"`
	Visible        bool              `gorm:"default:true" json:"visible"`
	Enabled        bool              `gorm:"default:true" json:"enabled"`
	OrderIndex     int               `gorm:"not null" json:"order_index"`
	DisplayGroup   string            `gorm:"size:100" json:"display_group"`
	IsCustom       bool              `gorm:"default:false" json:"is_custom"`
	DataSourceType DataSourceType    `gorm:"size:30" json:"data_source_type"`
	DataSource     *DataSourceConfig `gorm:"type:text;serializer:json" json:"data_source,omitempty"`
	Validation     *ValidationRules  `gorm:"type:text;serializer:json" json:"validation,omitempty"`
	Attachment     *AttachmentConfig `gorm:"type:text;serializer:json" json:"attachment,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (FormField) TableName() string { return "form_fields" }
