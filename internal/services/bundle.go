package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
	"gorm.io/gorm"
)

// BundleFormatVersion is the current export format. ValidateImport rejects
// bundles declaring any other version instead of guessing at their layout.
const BundleFormatVersion = 1

// Bundle is the portable serialization of one template with its tables,
// fields, relations and workflows. Inside the bundle tables reference
// each other by alias, never by database id, so an import can remap
// everything onto freshly generated identifiers.
type Bundle struct {
	FormatVersion int            `json:"format_version"`
	BundleID      string         `json:"bundle_id"`
	ExportedAt    time.Time      `json:"exported_at"`
	BindingCode   string         `json:"binding_code"`
	Template      BundleTemplate `json:"template"`
}

type BundleTemplate struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	MainTable   string           `json:"main_table"`
	MultiTable  bool             `json:"multi_table"`
	Tables      []BundleTable    `json:"tables"`
	Workflows   []BundleWorkflow `json:"workflows,omitempty"`
}

type BundleTable struct {
	TableName    string                  `json:"table_name"`
	Alias        string                  `json:"alias"`
	Label        string                  `json:"label"`
	RelationType models.RelationType     `json:"relation_type"`
	ParentAlias  string                  `json:"parent_alias,omitempty"`
	ForeignKeys  []models.ForeignKeyPair `json:"foreign_keys,omitempty"`
	Position     int                     `json:"position"`
	Fields       []BundleField           `json:"fields"`
}

type BundleField struct {
	Name           string                   `json:"name"`
	Label          string                   `json:"label"`
	Type           models.FieldType         `json:"type"`
	Required       bool                     `json:"required"`
	Visible        bool                     `json:"visible"`
	Enabled        bool                     `json:"enabled"`
	OrderIndex     int                      `json:"order_index"`
	DisplayGroup   string                   `json:"display_group,omitempty"`
	IsCustom       bool                     `json:"is_custom"`
	DataSourceType models.DataSourceType    `json:"data_source_type,omitempty"`
	DataSource     *models.DataSourceConfig `json:"data_source,omitempty"`
	Validation     *models.ValidationRules  `json:"validation,omitempty"`
	Attachment     *models.AttachmentConfig `json:"attachment,omitempty"`
}

type BundleWorkflow struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Active      bool          `json:"active"`
	Levels      []BundleLevel `json:"levels"`
}

type BundleLevel struct {
	LevelOrder     int      `json:"level_order"`
	Name           string   `json:"name"`
	UserIDs        []uint   `json:"user_ids,omitempty"`
	GroupIDs       []uint   `json:"group_ids,omitempty"`
	EditableFields []string `json:"editable_fields,omitempty"`
	Parallel       bool     `json:"parallel"`
}

// ImportValidation is the outcome of a dry-run check of a bundle against
// this installation. Conflicts block a plain import; warnings do not.
type ImportValidation struct {
	Valid     bool     `json:"valid"`
	Conflicts []string `json:"conflicts"`
	Warnings  []string `json:"warnings"`
}

type ImportOptions struct {
	OverwriteExisting bool   `json:"overwrite_existing"`
	TargetBinding     string `json:"target_binding"`
}

type BundleService struct {
	db *gorm.DB
}

func NewBundleService(db *gorm.DB) *BundleService {
	return &BundleService{db: db}
}

// ExportTemplate serializes a template with tables, fields, relations and
// workflows into a portable bundle.
func (s *BundleService) ExportTemplate(templateID uint) (*Bundle, error) {
	var tpl models.Template
	err := s.db.
		Preload("Tables", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Tables.Fields", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		First(&tpl, templateID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	aliasByID := make(map[uint]string, len(tpl.Tables))
	for _, t := range tpl.Tables {
		aliasByID[t.ID] = t.Alias
	}

	bundle := &Bundle{
		FormatVersion: BundleFormatVersion,
		BundleID:      uuid.NewString(),
		ExportedAt:    time.Now().UTC(),
		BindingCode:   tpl.BindingCode,
		Template: BundleTemplate{
			Name:        tpl.Name,
			Description: tpl.Description,
			MainTable:   tpl.MainTable,
			MultiTable:  tpl.MultiTable,
		},
	}

	for _, t := range tpl.Tables {
		bt := BundleTable{
			TableName:    t.TableName,
			Alias:        t.Alias,
			Label:        t.Label,
			RelationType: t.RelationType,
			ForeignKeys:  t.ForeignKeys,
			Position:     t.Position,
		}
		if t.ParentTableID != nil {
			bt.ParentAlias = aliasByID[*t.ParentTableID]
		}
		for _, f := range t.Fields {
			bt.Fields = append(bt.Fields, BundleField{
				Name:           f.Name,
				Label:          f.Label,
				Type:           f.Type,
				Required:       f.Required,
				Visible:        f.Visible,
				Enabled:        f.Enabled,
				OrderIndex:     f.OrderIndex,
				DisplayGroup:   f.DisplayGroup,
				IsCustom:       f.IsCustom,
				DataSourceType: f.DataSourceType,
				DataSource:     f.DataSource,
				Validation:     f.Validation,
				Attachment:     f.Attachment,
			})
		}
		bundle.Template.Tables = append(bundle.Template.Tables, bt)
	}

	var workflows []models.Workflow
	if err := s.db.Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("level_order") }).
		Where("template_id = ?", templateID).Find(&workflows).Error; err != nil {
		return nil, err
	}
	for _, wf := range workflows {
		bw := BundleWorkflow{
			Name:        wf.Name,
			Description: wf.Description,
			Active:      wf.Active,
		}
		for _, lvl := range wf.Levels {
			bw.Levels = append(bw.Levels, BundleLevel{
				LevelOrder:     lvl.LevelOrder,
				Name:           lvl.Name,
				UserIDs:        lvl.UserIDs,
				GroupIDs:       lvl.GroupIDs,
				EditableFields: lvl.EditableFields,
				Parallel:       lvl.Parallel,
			})
		}
		bundle.Template.Workflows = append(bundle.Template.Workflows, bw)
	}

	logger.Info().Uint("template_id", templateID).Str("bundle_id", bundle.BundleID).Msg("template exported")
	return bundle, nil
}

// ParseBundle decodes raw JSON into a Bundle, failing fast on malformed
// or unversioned input.
func ParseBundle(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, &InvalidBundleError{Reason: "malformed JSON: " + err.Error()}
	}
	if err := checkBundleShape(&bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func checkBundleShape(bundle *Bundle) error {
	if bundle == nil {
		return &InvalidBundleError{Reason: "empty bundle"}
	}
	if bundle.FormatVersion == 0 {
		return &InvalidBundleError{Reason: "missing format version"}
	}
	if bundle.FormatVersion != BundleFormatVersion {
		return &UnsupportedVersionError{Version: bundle.FormatVersion}
	}
	if bundle.Template.MainTable == "" {
		return &InvalidBundleError{Reason: "bundle has no template"}
	}
	if len(bundle.Template.Tables) == 0 {
		return &InvalidBundleError{Reason: "template has no tables"}
	}
	return nil
}

// ValidateImport dry-runs a bundle against this installation and reports
// conflicts and warnings without writing anything.
func (s *BundleService) ValidateImport(bundle *Bundle) (*ImportValidation, error) {
	if err := checkBundleShape(bundle); err != nil {
		return nil, err
	}

	result := &ImportValidation{Valid: true}

	var count int64
	s.db.Model(&models.Template{}).Where("main_table = ?", bundle.Template.MainTable).Count(&count)
	if count > 0 {
		result.Valid = false
		result.Conflicts = append(result.Conflicts, "templateExists: a template for table "+bundle.Template.MainTable+" already exists")
	}

	for _, t := range bundle.Template.Tables {
		for _, f := range t.Fields {
			if f.DataSourceType != models.SourceGenericTable || f.DataSource == nil || f.DataSource.Generic == nil {
				continue
			}
			code := f.DataSource.Generic.TableCode
			var n int64
			s.db.Model(&models.GenericTable{}).Where("code = ?", code).Count(&n)
			if n == 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("field %s.%s references generic table %s, absent from the destination catalog", t.Alias, f.Name, code))
			}
		}
	}

	if bundle.BindingCode != "" {
		var n int64
		s.db.Model(&models.SchemaField{}).Where("binding = ?", bundle.BindingCode).Count(&n)
		if n == 0 {
			result.Warnings = append(result.Warnings,
				"bundle targets binding "+bundle.BindingCode+" which has no synced schema catalog here")
		}
	}

	return result, nil
}

// ImportTemplate recreates the bundle's template under fresh identifiers.
// If a template for the same external table exists the import fails with
// ErrTemplateExists unless OverwriteExisting is set, in which case the
// existing template tree is deleted and recreated inside one transaction.
// Any failure rolls the destination back to its pre-import state.
func (s *BundleService) ImportTemplate(bundle *Bundle, opts ImportOptions, userID uint) (*models.Template, error) {
	if err := checkBundleShape(bundle); err != nil {
		return nil, err
	}
	if err := validateBundleContent(bundle); err != nil {
		return nil, err
	}

	binding := bundle.BindingCode
	if opts.TargetBinding != "" {
		binding = opts.TargetBinding
	}

	var existing models.Template
	lookupErr := s.db.Where("main_table = ?", bundle.Template.MainTable).First(&existing).Error
	if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return nil, lookupErr
	}
	hasExisting := lookupErr == nil
	if hasExisting && !opts.OverwriteExisting {
		return nil, ErrTemplateExists
	}
	if hasExisting {
		unlock := lockTemplate(existing.ID)
		defer unlock()
	}

	var newID uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if hasExisting {
			if err := deleteTemplateTree(tx, existing.ID); err != nil {
				return err
			}
		}

		tpl := models.Template{
			Name:        bundle.Template.Name,
			Description: bundle.Template.Description,
			MainTable:   bundle.Template.MainTable,
			Active:      true,
			MultiTable:  bundle.Template.MultiTable,
			BindingCode: binding,
			CreatedBy:   userID,
		}
		if err := tx.Create(&tpl).Error; err != nil {
			return err
		}
		newID = tpl.ID

		// Two passes: non-child tables first so every parent alias
		// resolves to a freshly generated id by the time children land.
		idByAlias := make(map[string]uint, len(bundle.Template.Tables))
		for _, bt := range bundle.Template.Tables {
			if bt.RelationType == models.RelationChild {
				continue
			}
			id, err := createBundleTable(tx, tpl.ID, bt, nil)
			if err != nil {
				return err
			}
			idByAlias[bt.Alias] = id
		}
		for _, bt := range bundle.Template.Tables {
			if bt.RelationType != models.RelationChild {
				continue
			}
			parentID, ok := idByAlias[bt.ParentAlias]
			if !ok {
				return &InvalidBundleError{Reason: "table " + bt.Alias + " references unknown parent " + bt.ParentAlias}
			}
			id, err := createBundleTable(tx, tpl.ID, bt, &parentID)
			if err != nil {
				return err
			}
			idByAlias[bt.Alias] = id
		}

		for _, bw := range bundle.Template.Workflows {
			wf := models.Workflow{
				TemplateID:  tpl.ID,
				Name:        bw.Name,
				Description: bw.Description,
				Active:      bw.Active,
				CreatedBy:   userID,
			}
			if err := tx.Create(&wf).Error; err != nil {
				return err
			}
			for _, bl := range bw.Levels {
				level := models.WorkflowLevel{
					WorkflowID:     wf.ID,
					LevelOrder:     bl.LevelOrder,
					Name:           bl.Name,
					UserIDs:        bl.UserIDs,
					GroupIDs:       bl.GroupIDs,
					EditableFields: bl.EditableFields,
					Parallel:       bl.Parallel,
				}
				if err := tx.Create(&level).Error; err != nil {
					return err
				}
			}
		}

		auditLog(tx, "info", "bundle", "import",
			"imported bundle "+bundle.BundleID+" for table "+bundle.Template.MainTable,
			&tpl.ID, &userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var tpl models.Template
	if err := s.db.
		Preload("Tables", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Tables.Fields", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		First(&tpl, newID).Error; err != nil {
		return nil, err
	}
	logger.Info().Uint("template_id", tpl.ID).Str("bundle_id", bundle.BundleID).Bool("overwrite", hasExisting).Msg("template imported")
	return &tpl, nil
}

func createBundleTable(tx *gorm.DB, templateID uint, bt BundleTable, parentID *uint) (uint, error) {
	table := models.TemplateTable{
		TemplateID:    templateID,
		TableName:     bt.TableName,
		Alias:         bt.Alias,
		Label:         bt.Label,
		RelationType:  bt.RelationType,
		ParentTableID: parentID,
		ForeignKeys:   bt.ForeignKeys,
		Position:      bt.Position,
	}
	if err := tx.Create(&table).Error; err != nil {
		return 0, err
	}
	for _, bf := range bt.Fields {
		field := models.FormField{
			TableID:        table.ID,
			Name:           bf.Name,
			Label:          bf.Label,
			Type:           bf.Type,
			Required:       bf.Required,
			Visible:        bf.Visible,
			Enabled:        bf.Enabled,
			OrderIndex:     bf.OrderIndex,
			DisplayGroup:   bf.DisplayGroup,
			IsCustom:       bf.IsCustom,
			DataSourceType: bf.DataSourceType,
			DataSource:     bf.DataSource,
			Validation:     bf.Validation,
			Attachment:     bf.Attachment,
		}
		if err := tx.Create(&field).Error; err != nil {
			return 0, err
		}
	}
	return table.ID, nil
}

// validateBundleContent re-runs the structural validation on the bundle's
// content: the same checks an interactive admin would hit building the
// template by hand.
func validateBundleContent(bundle *Bundle) error {
	aliases := make(map[string]bool)
	tableNames := make(map[string]bool)
	relByAlias := make(map[string]models.RelationType)
	visible := make(map[string]bool)

	for _, bt := range bundle.Template.Tables {
		if bt.TableName == "" {
			return &InvalidBundleError{Reason: "table with empty external name"}
		}
		if !identRe.MatchString(bt.Alias) {
			return &InvalidBundleError{Reason: "table " + bt.TableName + " has invalid alias " + bt.Alias}
		}
		if aliases[bt.Alias] {
			return &InvalidBundleError{Reason: "duplicate alias " + bt.Alias}
		}
		if tableNames[bt.TableName] {
			return &InvalidBundleError{Reason: "duplicate table " + bt.TableName}
		}
		if !bt.RelationType.Valid() {
			return &InvalidBundleError{Reason: "table " + bt.Alias + " has unknown relation type"}
		}
		aliases[bt.Alias] = true
		tableNames[bt.TableName] = true
		relByAlias[bt.Alias] = bt.RelationType
	}

	for _, bt := range bundle.Template.Tables {
		if bt.RelationType != models.RelationChild {
			if bt.ParentAlias != "" || len(bt.ForeignKeys) > 0 {
				return &InvalidBundleError{Reason: "table " + bt.Alias + " carries parent data without child relation"}
			}
			continue
		}
		if bt.ParentAlias == "" || !aliases[bt.ParentAlias] {
			return &InvalidBundleError{Reason: "table " + bt.Alias + " references unknown parent " + bt.ParentAlias}
		}
		if bt.ParentAlias == bt.Alias {
			return &InvalidBundleError{Reason: "table " + bt.Alias + " is its own parent"}
		}
		if relByAlias[bt.ParentAlias] == models.RelationChild {
			return &InvalidBundleError{Reason: "table " + bt.Alias + " has a child table as parent"}
		}
		if len(bt.ForeignKeys) == 0 {
			return &InvalidBundleError{Reason: "child table " + bt.Alias + " has no foreign keys"}
		}
		for _, fk := range bt.ForeignKeys {
			if fk.ParentField == "" || fk.ChildField == "" {
				return &InvalidBundleError{Reason: "child table " + bt.Alias + " has an incomplete key pair"}
			}
		}
	}

	for _, bt := range bundle.Template.Tables {
		seen := make(map[int]bool, len(bt.Fields))
		names := make(map[string]bool, len(bt.Fields))
		for _, bf := range bt.Fields {
			if !bf.Type.Valid() {
				return &InvalidBundleError{Reason: "field " + bt.Alias + "." + bf.Name + " has unknown type"}
			}
			if names[bf.Name] {
				return &InvalidBundleError{Reason: "duplicate field " + bt.Alias + "." + bf.Name}
			}
			if bf.IsCustom && !identRe.MatchString(bf.Name) {
				return &InvalidBundleError{Reason: "custom field " + bt.Alias + "." + bf.Name + " has an invalid name"}
			}
			names[bf.Name] = true
			if bf.OrderIndex < 0 || bf.OrderIndex >= len(bt.Fields) || seen[bf.OrderIndex] {
				return &InvalidBundleError{Reason: "table " + bt.Alias + " has a non-dense field order"}
			}
			seen[bf.OrderIndex] = true
			shape := models.FormField{
				Name:           bf.Name,
				Type:           bf.Type,
				DataSourceType: bf.DataSourceType,
				DataSource:     bf.DataSource,
				Validation:     bf.Validation,
				Attachment:     bf.Attachment,
			}
			if err := validateFieldConfig(&shape); err != nil {
				return &InvalidBundleError{Reason: "field " + bt.Alias + "." + bf.Name + ": " + err.Error()}
			}
			if bf.Visible {
				visible[bf.Name] = true
			}
		}
	}

	activeSeen := false
	for _, bw := range bundle.Template.Workflows {
		if bw.Active {
			if activeSeen {
				return &InvalidBundleError{Reason: "bundle carries more than one active workflow"}
			}
			activeSeen = true
		}
		for i, bl := range bw.Levels {
			if bl.LevelOrder != i+1 {
				return &InvalidBundleError{Reason: "workflow " + bw.Name + " has a non-dense level order"}
			}
			if len(bl.UserIDs) == 0 && len(bl.GroupIDs) == 0 {
				return &InvalidBundleError{Reason: fmt.Sprintf("workflow %s level %d has no approvers", bw.Name, bl.LevelOrder)}
			}
			for _, name := range bl.EditableFields {
				if !visible[name] {
					return &InvalidBundleError{Reason: fmt.Sprintf("workflow %s level %d scopes unknown field %s", bw.Name, bl.LevelOrder, name)}
				}
			}
		}
	}

	return nil
}
