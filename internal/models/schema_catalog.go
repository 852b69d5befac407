package models

import "time"

// SchemaField is one cached entry of the external per-table field catalog
// (SX3-style dictionary). Rows are replaced wholesale on refresh.
type SchemaField struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Binding   string    `gorm:"size:50;index:idx_schema_field,priority:1" json:"binding"`
	TableName string    `gorm:"size:100;index:idx_schema_field,priority:2" json:"table_name"`
	FieldName string    `gorm:"size:100;not null" json:"field_name"`
	Label     string    `gorm:"size:200" json:"label"`
	BaseType  string    `gorm:"size:30" json:"base_type"` // string, number, date, boolean
	Size      int       `json:"size"`
	Decimals  int       `json:"decimals"`
	Mask      string    `gorm:"size:100" json:"mask"`
	Required  bool      `json:"required"`
	Lookup    string    `gorm:"size:100" json:"lookup"`
	Position  int       `json:"position"`
	SyncedAt  time.Time `json:"synced_at"`
}

// GenericTable is one cached entry of the external generic-table catalog
// (SX5-style), referenced by generic_table data sources.
type GenericTable struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Binding  string    `gorm:"size:50;index:idx_generic_table,priority:1" json:"binding"`
	Code     string    `gorm:"size:50;index:idx_generic_table,priority:2" json:"code"`
	Label    string    `gorm:"size:200" json:"label"`
	SyncedAt time.Time `json:"synced_at"`
}

func (GenericTable) TableName() string { return "generic_tables" }
