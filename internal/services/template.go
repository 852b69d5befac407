package services

import (
	"errors"
	"regexp"

	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
	"gorm.io/gorm"
)

// identRe constrains aliases and custom field names: the alias is the
// namespace key of submitted payloads, so it must stay url/json safe.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type TemplateService struct {
	db   *gorm.DB
	sync *SchemaSyncService
}

func NewTemplateService(db *gorm.DB, sync *SchemaSyncService) *TemplateService {
	return &TemplateService{db: db, sync: sync}
}

type TemplateListRequest struct {
	Page     int    `form:"page" binding:"min=1"`
	PageSize int    `form:"page_size" binding:"min=1,max=100"`
	Name     string `form:"name"`
	Active   *bool  `form:"active"`
}

type TemplateListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.Template `json:"items"`
}

type CreateTemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	MainTable   string `json:"main_table" binding:"required"`
	BindingCode string `json:"binding_code"`
	MultiTable  bool   `json:"multi_table"`
}

type UpdateTemplateRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
	BindingCode *string `json:"binding_code"`
}

type AddTableRequest struct {
	TableName     string                  `json:"table_name" binding:"required"`
	Alias         string                  `json:"alias" binding:"required"`
	Label         string                  `json:"label"`
	RelationType  models.RelationType     `json:"relation_type"`
	ParentTableID *uint                   `json:"parent_table_id"`
	ForeignKeys   []models.ForeignKeyPair `json:"foreign_keys"`
}

type UpdateTableRequest struct {
	Alias         *string                 `json:"alias"`
	Label         *string                 `json:"label"`
	RelationType  *models.RelationType    `json:"relation_type"`
	ParentTableID *uint                   `json:"parent_table_id"`
	ForeignKeys   []models.ForeignKeyPair `json:"foreign_keys"`
}

// List returns paginated templates.
func (s *TemplateService) List(req *TemplateListRequest) (*TemplateListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var templates []models.Template
	var total int64

	query := s.db.Model(&models.Template{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Active != nil {
		query = query.Where("active = ?", *req.Active)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&templates).Error; err != nil {
		return nil, err
	}

	return &TemplateListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    templates,
	}, nil
}

// GetByID returns a template with its tables and ordered fields.
func (s *TemplateService) GetByID(id uint) (*models.Template, error) {
	var tpl models.Template
	err := s.db.
		Preload("Tables", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Tables.Fields", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		First(&tpl, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Create creates a template together with its implicit primary table.
// Single-table templates are modeled uniformly as a table list of length
// one, so every invariant check walks the same path.
func (s *TemplateService) Create(req *CreateTemplateRequest, userID uint) (*models.Template, error) {
	alias := req.MainTable
	if !identRe.MatchString(alias) {
		// External table names are upper-case codes more often than not;
		// derive a safe default alias and let the admin rename it later.
		alias = "main"
	}

	tpl := models.Template{
		Name:        req.Name,
		Description: req.Description,
		MainTable:   req.MainTable,
		Active:      true,
		MultiTable:  req.MultiTable,
		BindingCode: req.BindingCode,
		CreatedBy:   userID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tpl).Error; err != nil {
			return err
		}
		table := models.TemplateTable{
			TemplateID:   tpl.ID,
			TableName:    req.MainTable,
			Alias:        alias,
			Label:        req.Name,
			RelationType: models.RelationUnset,
			Position:     0,
		}
		if err := tx.Create(&table).Error; err != nil {
			return err
		}
		return s.sync.PopulateTableFields(tx, &table, tpl.BindingCode)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("template_id", tpl.ID).Str("main_table", tpl.MainTable).Msg("template created")
	return s.GetByID(tpl.ID)
}

// Update applies partial template changes.
func (s *TemplateService) Update(id uint, req *UpdateTemplateRequest) (*models.Template, error) {
	tpl, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.BindingCode != nil {
		updates["binding_code"] = *req.BindingCode
	}

	if len(updates) > 0 {
		if err := s.db.Model(&models.Template{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByID(tpl.ID)
}

// Delete removes a template with all its tables, fields and workflows.
func (s *TemplateService) Delete(id uint) error {
	unlock := lockTemplate(id)
	defer unlock()

	tpl, err := s.GetByID(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		return deleteTemplateTree(tx, tpl.ID)
	})
}

// deleteTemplateTree removes a template and every row hanging off it.
// Shared with the import reconciler's overwrite path.
func deleteTemplateTree(tx *gorm.DB, templateID uint) error {
	var tableIDs []uint
	if err := tx.Model(&models.TemplateTable{}).Where("template_id = ?", templateID).Pluck("id", &tableIDs).Error; err != nil {
		return err
	}
	if len(tableIDs) > 0 {
		if err := tx.Where("table_id IN ?", tableIDs).Delete(&models.FormField{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("template_id = ?", templateID).Delete(&models.TemplateTable{}).Error; err != nil {
		return err
	}
	var workflowIDs []uint
	if err := tx.Model(&models.Workflow{}).Where("template_id = ?", templateID).Pluck("id", &workflowIDs).Error; err != nil {
		return err
	}
	if len(workflowIDs) > 0 {
		if err := tx.Where("workflow_id IN ?", workflowIDs).Delete(&models.WorkflowLevel{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("template_id = ?", templateID).Delete(&models.Workflow{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Template{}, templateID).Error
}

// AddTable validates and attaches one more external table to a template.
// Candidate parents are restricted to tables whose own relation type is
// not child, which keeps the relation graph a single level deep by
// construction.
func (s *TemplateService) AddTable(templateID uint, req *AddTableRequest) (*models.TemplateTable, error) {
	unlock := lockTemplate(templateID)
	defer unlock()

	tpl, err := s.GetByID(templateID)
	if err != nil {
		return nil, err
	}

	if err := validateTableSpec(tpl, 0, req.TableName, req.Alias, req.RelationType, req.ParentTableID, req.ForeignKeys); err != nil {
		return nil, err
	}

	table := models.TemplateTable{
		TemplateID:    templateID,
		TableName:     req.TableName,
		Alias:         req.Alias,
		Label:         req.Label,
		RelationType:  req.RelationType,
		ParentTableID: req.ParentTableID,
		ForeignKeys:   req.ForeignKeys,
		Position:      len(tpl.Tables),
	}
	if table.RelationType != models.RelationChild {
		table.ParentTableID = nil
		table.ForeignKeys = nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&table).Error; err != nil {
			return err
		}
		if err := s.sync.PopulateTableFields(tx, &table, tpl.BindingCode); err != nil {
			return err
		}
		return tx.Model(&models.Template{}).Where("id = ?", templateID).Update("multi_table", true).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("template_id", templateID).Str("table", table.TableName).Str("alias", table.Alias).Msg("table added")
	return &table, nil
}

// UpdateTable applies partial changes to a table. The external table name
// is immutable; moving the relation type away from child clears the parent
// reference and foreign keys in the same write, so a child-without-parent
// state is never observable.
func (s *TemplateService) UpdateTable(tableID uint, req *UpdateTableRequest) (*models.TemplateTable, error) {
	table, err := s.getTable(tableID)
	if err != nil {
		return nil, err
	}

	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	tpl, err := s.GetByID(table.TemplateID)
	if err != nil {
		return nil, err
	}

	alias := table.Alias
	if req.Alias != nil {
		alias = *req.Alias
	}
	relType := table.RelationType
	if req.RelationType != nil {
		relType = *req.RelationType
	}
	parentID := table.ParentTableID
	if req.ParentTableID != nil {
		parentID = req.ParentTableID
	}
	fks := table.ForeignKeys
	if req.ForeignKeys != nil {
		fks = req.ForeignKeys
	}

	if err := validateTableSpec(tpl, table.ID, table.TableName, alias, relType, parentID, fks); err != nil {
		return nil, err
	}

	// A table that siblings reference as parent cannot itself become a
	// child, or the relation graph would nest two levels deep.
	if relType == models.RelationChild {
		var childAliases []string
		for _, t := range tpl.Tables {
			if t.ParentTableID != nil && *t.ParentTableID == table.ID {
				childAliases = append(childAliases, t.Alias)
			}
		}
		if len(childAliases) > 0 {
			return nil, &TableHasChildrenError{TableID: table.ID, ChildAliases: childAliases}
		}
	}

	table.Alias = alias
	table.RelationType = relType
	if req.Label != nil {
		table.Label = *req.Label
	}
	if relType == models.RelationChild {
		table.ParentTableID = parentID
		table.ForeignKeys = fks
	} else {
		table.ParentTableID = nil
		table.ForeignKeys = nil
	}

	if err := s.db.Save(table).Error; err != nil {
		return nil, err
	}
	return s.getTable(tableID)
}

// RemoveTable deletes a table and its fields. Removal is blocked while
// sibling tables still reference it as parent: cascading here would also
// silently invalidate workflow field scopes, so the admin has to detach
// the children first. Workflows referencing the removed fields are flagged
// for review.
func (s *TemplateService) RemoveTable(tableID uint, actorID *uint) error {
	table, err := s.getTable(tableID)
	if err != nil {
		return err
	}

	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	var children []models.TemplateTable
	if err := s.db.Where("template_id = ? AND parent_table_id = ?", table.TemplateID, table.ID).Find(&children).Error; err != nil {
		return err
	}
	if len(children) > 0 {
		aliases := make([]string, 0, len(children))
		for _, c := range children {
			aliases = append(aliases, c.Alias)
		}
		return &TableHasChildrenError{TableID: table.ID, ChildAliases: aliases}
	}

	var fieldNames []string
	if err := s.db.Model(&models.FormField{}).Where("table_id = ? AND visible = ?", table.ID, true).Pluck("name", &fieldNames).Error; err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_id = ?", table.ID).Delete(&models.FormField{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.TemplateTable{}, table.ID).Error; err != nil {
			return err
		}
		return flagWorkflowsReferencing(tx, table.TemplateID, fieldNames, actorID)
	})
	if err != nil {
		return err
	}

	logger.Info().Uint("template_id", table.TemplateID).Str("alias", table.Alias).Msg("table removed")
	return nil
}

func (s *TemplateService) getTable(tableID uint) (*models.TemplateTable, error) {
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

// validateTableSpec checks every TemplateTable invariant against the
// template's current table set. selfID is zero for a new table.
func validateTableSpec(tpl *models.Template, selfID uint, tableName, alias string, relType models.RelationType, parentID *uint, fks []models.ForeignKeyPair) error {
	if tableName == "" {
		return newValidationError("table", "table_name", "must not be empty")
	}
	if !identRe.MatchString(alias) {
		return newValidationError("table", "alias", "must be lowercase alphanumerics and underscore")
	}
	if !relType.Valid() {
		return newValidationError("table", "relation_type", "unknown relation type")
	}

	for _, t := range tpl.Tables {
		if t.ID == selfID {
			continue
		}
		if t.TableName == tableName {
			return newValidationError("table", "table_name", "already used in this template")
		}
		if t.Alias == alias {
			return newValidationError("table", "alias", "already used in this template")
		}
	}

	if relType != models.RelationChild {
		return nil
	}

	if parentID == nil {
		return newValidationError("table", "parent_table_id", "required for child tables")
	}
	if selfID != 0 && *parentID == selfID {
		return newValidationError("table", "parent_table_id", "a table cannot be its own parent")
	}

	var parent *models.TemplateTable
	for i := range tpl.Tables {
		if tpl.Tables[i].ID == *parentID {
			parent = &tpl.Tables[i]
			break
		}
	}
	if parent == nil {
		return newValidationError("table", "parent_table_id", "parent must belong to the same template")
	}
	if parent.RelationType == models.RelationChild {
		return newValidationError("table", "parent_table_id", "a child table cannot be chosen as parent")
	}

	if len(fks) == 0 {
		return newValidationError("table", "foreign_keys", "child tables need at least one key pair")
	}
	for _, fk := range fks {
		if fk.ParentField == "" || fk.ChildField == "" {
			return newValidationError("table", "foreign_keys", "both sides of every key pair must be set")
		}
	}
	return nil
}
