package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rmaraujo/formbridge/backend/internal/config"
	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// SchemaFieldDef is one field definition from the external per-table
// catalog (SX3-style dictionary).
type SchemaFieldDef struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	BaseType string `json:"base_type"` // string, number, date, boolean, memo
	Size     int    `json:"size"`
	Decimals int    `json:"decimals"`
	Mask     string `json:"mask"`
	Required bool   `json:"required"`
	Lookup   string `json:"lookup"`
}

// GenericTableDef is one entry of the external generic-table catalog
// (SX5-style).
type GenericTableDef struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// SchemaProvider supplies the canonical field and generic-table catalogs
// of one backing system binding.
type SchemaProvider interface {
	TableFields(binding, table string) ([]SchemaFieldDef, error)
	GenericTables(binding string) ([]GenericTableDef, error)
}

// HTTPSchemaProvider talks to the schema-sync endpoint of the backing
// system.
type HTTPSchemaProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSchemaProvider(cfg *config.SyncConfig) *HTTPSchemaProvider {
	return &HTTPSchemaProvider{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPSchemaProvider) TableFields(binding, table string) ([]SchemaFieldDef, error) {
	var fields []SchemaFieldDef
	path := fmt.Sprintf("/schema/%s/tables/%s/fields", url.PathEscape(binding), url.PathEscape(table))
	if err := p.get(path, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *HTTPSchemaProvider) GenericTables(binding string) ([]GenericTableDef, error) {
	var tables []GenericTableDef
	if err := p.get("/schema/"+url.PathEscape(binding)+"/generic-tables", &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (p *HTTPSchemaProvider) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("schema sync request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("schema sync returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SchemaSyncService caches the external catalogs in the database and
// populates schema-sourced fields for template tables.
type SchemaSyncService struct {
	db       *gorm.DB
	provider SchemaProvider
	cron     *cron.Cron
}

func NewSchemaSyncService(db *gorm.DB, provider SchemaProvider) *SchemaSyncService {
	return &SchemaSyncService{db: db, provider: provider}
}

// RefreshCatalog pulls the current catalogs for one binding and replaces
// the cached rows.
func (s *SchemaSyncService) RefreshCatalog(binding string) error {
	if s.provider == nil {
		return fmt.Errorf("no schema provider configured")
	}

	generics, err := s.provider.GenericTables(binding)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("binding = ?", binding).Delete(&models.GenericTable{}).Error; err != nil {
			return err
		}
		for _, g := range generics {
			row := models.GenericTable{Binding: binding, Code: g.Code, Label: g.Label, SyncedAt: now}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Refresh the field catalog for every table used by a template on
	// this binding.
	var tableNames []string
	if err := s.db.Model(&models.TemplateTable{}).
		Joins("JOIN templates ON templates.id = template_tables.template_id AND templates.deleted_at IS NULL").
		Where("templates.binding_code = ?", binding).
		Distinct("template_tables.table_name").
		Pluck("template_tables.table_name", &tableNames).Error; err != nil {
		return err
	}

	for _, name := range tableNames {
		defs, err := s.provider.TableFields(binding, name)
		if err != nil {
			logger.Warn().Err(err).Str("table", name).Msg("field catalog refresh failed")
			continue
		}
		if err := s.storeFieldCatalog(binding, name, defs, now); err != nil {
			return err
		}
	}

	logger.Info().Str("binding", binding).Int("generic_tables", len(generics)).Int("tables", len(tableNames)).Msg("schema catalog refreshed")
	return nil
}

func (s *SchemaSyncService) storeFieldCatalog(binding, table string, defs []SchemaFieldDef, now time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("binding = ? AND table_name = ?", binding, table).Delete(&models.SchemaField{}).Error; err != nil {
			return err
		}
		for i, d := range defs {
			row := models.SchemaField{
				Binding:   binding,
				TableName: table,
				FieldName: d.Name,
				Label:     d.Label,
				BaseType:  d.BaseType,
				Size:      d.Size,
				Decimals:  d.Decimals,
				Mask:      d.Mask,
				Required:  d.Required,
				Lookup:    d.Lookup,
				Position:  i,
				SyncedAt:  now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PopulateTableFields creates schema-sourced form fields for a freshly
// added table from the cached catalog, in catalog order. A table whose
// catalog has not been synced yet simply starts with no fields.
func (s *SchemaSyncService) PopulateTableFields(tx *gorm.DB, table *models.TemplateTable, binding string) error {
	var defs []models.SchemaField
	if err := tx.Where("binding = ? AND table_name = ?", binding, table.TableName).
		Order("position").Find(&defs).Error; err != nil {
		return err
	}

	for i, d := range defs {
		field := models.FormField{
			TableID:    table.ID,
			Name:       d.FieldName,
			Label:      d.Label,
			Type:       fieldTypeFor(d.BaseType),
			Required:   d.Required,
			Visible:    true,
			Enabled:    true,
			OrderIndex: i,
			IsCustom:   false,
		}
		if err := tx.Create(&field).Error; err != nil {
			return err
		}
	}
	return nil
}

// RefreshTemplateFields reconciles a table's schema-sourced fields with
// the cached catalog: new catalog fields are appended at the end of the
// order, existing ones get their label and base type updated while the
// admin's presentation metadata (visibility, order, group, overlay) is
// preserved. Nothing is removed; fields gone from the catalog stay until
// an admin hides them.
func (s *SchemaSyncService) RefreshTemplateFields(table *models.TemplateTable, binding string) error {
	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	var defs []models.SchemaField
	if err := s.db.Where("binding = ? AND table_name = ?", binding, table.TableName).
		Order("position").Find(&defs).Error; err != nil {
		return err
	}

	var fields []models.FormField
	if err := s.db.Where("table_id = ?", table.ID).Order("order_index").Find(&fields).Error; err != nil {
		return err
	}
	byName := make(map[string]*models.FormField, len(fields))
	for i := range fields {
		byName[fields[i].Name] = &fields[i]
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		next := len(fields)
		for _, d := range defs {
			if existing, ok := byName[d.FieldName]; ok {
				if existing.IsCustom {
					continue
				}
				existing.Label = d.Label
				existing.Type = fieldTypeFor(d.BaseType)
				existing.Required = d.Required
				if err := tx.Save(existing).Error; err != nil {
					return err
				}
				continue
			}
			field := models.FormField{
				TableID:    table.ID,
				Name:       d.FieldName,
				Label:      d.Label,
				Type:       fieldTypeFor(d.BaseType),
				Required:   d.Required,
				Visible:    true,
				Enabled:    true,
				OrderIndex: next,
				IsCustom:   false,
			}
			next++
			if err := tx.Create(&field).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// fieldTypeFor maps catalog base types onto renderable field types.
func fieldTypeFor(baseType string) models.FieldType {
	switch baseType {
	case "number":
		return models.FieldNumber
	case "date":
		return models.FieldDate
	case "boolean":
		return models.FieldBoolean
	case "memo":
		return models.FieldTextarea
	default:
		return models.FieldString
	}
}

// StartScheduler refreshes the catalogs of every binding in use on the
// given cron schedule.
func (s *SchemaSyncService) StartScheduler(spec string) error {
	if spec == "" {
		spec = "@every 6h"
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		var bindings []string
		if err := s.db.Model(&models.Template{}).
			Where("binding_code <> ''").
			Distinct("binding_code").
			Pluck("binding_code", &bindings).Error; err != nil {
			logger.Warn().Err(err).Msg("binding lookup for scheduled refresh failed")
			return
		}
		for _, b := range bindings {
			if err := s.RefreshCatalog(b); err != nil {
				logger.Warn().Err(err).Str("binding", b).Msg("scheduled catalog refresh failed")
			}
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	logger.Info().Str("schedule", spec).Msg("schema catalog refresh scheduled")
	return nil
}

func (s *SchemaSyncService) StopScheduler() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
