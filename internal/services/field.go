package services

import (
	"errors"

	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
	"gorm.io/gorm"
)

// allowedMimeTypes is the attachment allow-list.
var allowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"image/png":          true,
	"image/jpeg":         true,
	"image/gif":          true,
	"text/plain":         true,
	"text/csv":           true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/zip": true,
}

type FieldService struct {
	db *gorm.DB
}

func NewFieldService(db *gorm.DB) *FieldService {
	return &FieldService{db: db}
}

type AddCustomFieldRequest struct {
	Name           string                   `json:"name" binding:"required"`
	Label          string                   `json:"label"`
	Type           models.FieldType         `json:"type" binding:"required"`
	Required       bool                     `json:"required"`
	Visible        *bool                    `json:"visible"`
	Enabled        *bool                    `json:"enabled"`
	DisplayGroup   string                   `json:"display_group"`
	DataSourceType models.DataSourceType    `json:"data_source_type"`
	DataSource     *models.DataSourceConfig `json:"data_source"`
	Validation     *models.ValidationRules  `json:"validation"`
	Attachment     *models.AttachmentConfig `json:"attachment"`
}

type UpdateFieldRequest struct {
	Name           *string                  `json:"name"`
	Label          *string                  `json:"label"`
	Type           *models.FieldType        `json:"type"`
	Required       *bool                    `json:"required"`
	Visible        *bool                    `json:"visible"`
	Enabled        *bool                    `json:"enabled"`
	DisplayGroup   *string                  `json:"display_group"`
	DataSourceType *models.DataSourceType   `json:"data_source_type"`
	DataSource     *models.DataSourceConfig `json:"data_source"`
	Validation     *models.ValidationRules  `json:"validation"`
	Attachment     *models.AttachmentConfig `json:"attachment"`
}

// AddCustomField creates an admin-owned field at the end of the table's
// order. Schema-sourced fields never pass through here; they are created
// by the schema sync.
func (s *FieldService) AddCustomField(tableID uint, req *AddCustomFieldRequest) (*models.FormField, error) {
	table, err := s.getTable(tableID)
	if err != nil {
		return nil, err
	}

	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	if !identRe.MatchString(req.Name) {
		return nil, newValidationError("field", "name", "must be lowercase alphanumerics and underscore")
	}
	if !req.Type.Valid() {
		return nil, newValidationError("field", "type", "unknown field type")
	}

	var clash int64
	s.db.Model(&models.FormField{}).Where("table_id = ? AND name = ?", tableID, req.Name).Count(&clash)
	if clash > 0 {
		return nil, newValidationError("field", "name", "already used on this table")
	}

	field := models.FormField{
		TableID:        tableID,
		Name:           req.Name,
		Label:          req.Label,
		Type:           req.Type,
		Required:       req.Required,
		Visible:        true,
		Enabled:        true,
		DisplayGroup:   req.DisplayGroup,
		IsCustom:       true,
		DataSourceType: req.DataSourceType,
		DataSource:     req.DataSource,
		Validation:     req.Validation,
		Attachment:     req.Attachment,
	}
	if req.Visible != nil {
		field.Visible = *req.Visible
	}
	if req.Enabled != nil {
		field.Enabled = *req.Enabled
	}

	if err := validateFieldConfig(&field); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.FormField{}).Where("table_id = ?", tableID).Count(&count).Error; err != nil {
			return err
		}
		field.OrderIndex = int(count)
		return tx.Create(&field).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("table_id", tableID).Str("field", field.Name).Msg("custom field added")
	return &field, nil
}

// UpdateField applies partial changes. For schema-sourced fields only the
// presentation metadata (label, visibility, enablement, group, validation
// overlay, data source) is editable; name and type are locked to the
// catalog.
func (s *FieldService) UpdateField(fieldID uint, req *UpdateFieldRequest, actorID *uint) (*models.FormField, error) {
	field, err := s.getField(fieldID)
	if err != nil {
		return nil, err
	}
	table, err := s.getTable(field.TableID)
	if err != nil {
		return nil, err
	}

	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	if !field.IsCustom {
		if (req.Name != nil && *req.Name != field.Name) || (req.Type != nil && *req.Type != field.Type) {
			return nil, ErrFixedFieldImmutable
		}
	}

	oldName := field.Name
	wasVisible := field.Visible

	if req.Name != nil && field.IsCustom && *req.Name != field.Name {
		if !identRe.MatchString(*req.Name) {
			return nil, newValidationError("field", "name", "must be lowercase alphanumerics and underscore")
		}
		var clash int64
		s.db.Model(&models.FormField{}).Where("table_id = ? AND name = ? AND id <> ?", field.TableID, *req.Name, field.ID).Count(&clash)
		if clash > 0 {
			return nil, newValidationError("field", "name", "already used on this table")
		}
		field.Name = *req.Name
	}
	if req.Type != nil && field.IsCustom {
		if !req.Type.Valid() {
			return nil, newValidationError("field", "type", "unknown field type")
		}
		field.Type = *req.Type
	}
	if req.Label != nil {
		field.Label = *req.Label
	}
	if req.Required != nil {
		field.Required = *req.Required
	}
	if req.Enabled != nil {
		field.Enabled = *req.Enabled
	}
	if req.DisplayGroup != nil {
		field.DisplayGroup = *req.DisplayGroup
	}
	if req.DataSourceType != nil {
		field.DataSourceType = *req.DataSourceType
	}
	if req.DataSource != nil {
		field.DataSource = req.DataSource
	}
	if req.Validation != nil {
		field.Validation = req.Validation
	}
	if req.Attachment != nil {
		field.Attachment = req.Attachment
	}

	if req.Visible != nil {
		field.Visible = *req.Visible
	}

	if err := validateFieldConfig(field); err != nil {
		return nil, err
	}

	// A rename or a hide both remove the old name from the template's
	// visible-name set; any workflow level scoping it needs review.
	nameLost := wasVisible && (field.Name != oldName || !field.Visible)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(field).Error; err != nil {
			return err
		}
		if nameLost {
			return flagWorkflowsReferencing(tx, table.TemplateID, []string{oldName}, actorID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

// DeleteCustomField removes an admin-owned field and closes the order gap.
// Schema-sourced fields cannot be deleted, only hidden.
func (s *FieldService) DeleteCustomField(fieldID uint, actorID *uint) error {
	field, err := s.getField(fieldID)
	if err != nil {
		return err
	}
	if !field.IsCustom {
		return ErrFixedFieldUndeletable
	}
	table, err := s.getTable(field.TableID)
	if err != nil {
		return err
	}

	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.FormField{}, field.ID).Error; err != nil {
			return err
		}
		// Close the gap so 0..N-1 stays dense.
		if err := tx.Model(&models.FormField{}).
			Where("table_id = ? AND order_index > ?", field.TableID, field.OrderIndex).
			Update("order_index", gorm.Expr("order_index - 1")).Error; err != nil {
			return err
		}
		if field.Visible {
			return flagWorkflowsReferencing(tx, table.TemplateID, []string{field.Name}, actorID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().Uint("table_id", field.TableID).Str("field", field.Name).Msg("custom field deleted")
	return nil
}

func (s *FieldService) getField(fieldID uint) (*models.FormField, error) {
	var field models.FormField
	err := s.db.First(&field, fieldID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFieldNotFound
	}
	if err != nil {
		return nil, err
	}
	return &field, nil
}

func (s *FieldService) getTable(tableID uint) (*models.TemplateTable, error) {
	var table models.TemplateTable
	err := s.db.First(&table, tableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// validateFieldConfig shape-checks the variant payloads against the
// field's type and data-source type.
func validateFieldConfig(f *models.FormField) error {
	if !f.DataSourceType.Valid() {
		return newValidationError("field", "data_source_type", "unknown data source type")
	}

	if f.DataSourceType != models.SourceNone && !f.Type.SupportsDataSource() {
		return newValidationError("field", "data_source_type", "only select, radio, autocomplete and multiselect fields take a data source")
	}

	switch f.DataSourceType {
	case models.SourceNone:
		if f.DataSource != nil {
			return newValidationError("field", "data_source", "set without a data source type")
		}
	case models.SourceFixed:
		if f.DataSource == nil || f.DataSource.Fixed == nil || len(f.DataSource.Fixed.Options) == 0 {
			return newValidationError("field", "data_source", "fixed sources need a non-empty option list")
		}
		if f.DataSource.SQL != nil || f.DataSource.Generic != nil {
			return newValidationError("field", "data_source", "exactly one source variant may be set")
		}
	case models.SourceSQL:
		if f.DataSource == nil || f.DataSource.SQL == nil {
			return newValidationError("field", "data_source", "sql sources need a query configuration")
		}
		src := f.DataSource.SQL
		if src.Query == "" || src.KeyColumn == "" || src.ValueColumn == "" || src.LabelColumn == "" {
			return newValidationError("field", "data_source", "sql sources need query, key, value and label columns")
		}
		if f.DataSource.Fixed != nil || f.DataSource.Generic != nil {
			return newValidationError("field", "data_source", "exactly one source variant may be set")
		}
	case models.SourceGenericTable:
		if f.DataSource == nil || f.DataSource.Generic == nil || f.DataSource.Generic.TableCode == "" {
			return newValidationError("field", "data_source", "generic-table sources need a catalog table code")
		}
		if f.DataSource.Fixed != nil || f.DataSource.SQL != nil {
			return newValidationError("field", "data_source", "exactly one source variant may be set")
		}
	}

	if f.Type == models.FieldAttachment {
		if f.Attachment == nil {
			return newValidationError("field", "attachment", "attachment fields need an attachment configuration")
		}
		if len(f.Attachment.MimeTypes) == 0 {
			return newValidationError("field", "attachment", "at least one MIME type is required")
		}
		for _, mt := range f.Attachment.MimeTypes {
			if !allowedMimeTypes[mt] {
				return newValidationError("field", "attachment", "MIME type "+mt+" is not allowed")
			}
		}
		if f.Attachment.MaxSizeBytes <= 0 {
			return newValidationError("field", "attachment", "max size must be positive")
		}
		if f.Attachment.MaxFiles < 1 {
			return newValidationError("field", "attachment", "max files must be at least 1")
		}
	} else if f.Attachment != nil {
		return newValidationError("field", "attachment", "only attachment fields take an attachment configuration")
	}

	if v := f.Validation; v != nil {
		if v.MinLength != nil && *v.MinLength < 0 {
			return newValidationError("field", "validation", "min length cannot be negative")
		}
		if v.MaxLength != nil && *v.MaxLength < 0 {
			return newValidationError("field", "validation", "max length cannot be negative")
		}
		if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
			return newValidationError("field", "validation", "min length exceeds max length")
		}
	}

	return nil
}
