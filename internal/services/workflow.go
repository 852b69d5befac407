package services

import (
	"errors"
	"strconv"

	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
	"gorm.io/gorm"
)

type WorkflowService struct {
	db *gorm.DB
}

func NewWorkflowService(db *gorm.DB) *WorkflowService {
	return &WorkflowService{db: db}
}

type LevelSpec struct {
	Name           string   `json:"name"`
	UserIDs        []uint   `json:"user_ids"`
	GroupIDs       []uint   `json:"group_ids"`
	EditableFields []string `json:"editable_fields"`
	Parallel       bool     `json:"parallel"`
}

type SaveWorkflowRequest struct {
	WorkflowID  *uint       `json:"workflow_id"` // nil creates a new workflow
	Name        string      `json:"name" binding:"required"`
	Description string      `json:"description"`
	Active      bool        `json:"active"`
	Levels      []LevelSpec `json:"levels" binding:"required"`
}

// SaveWorkflow validates and persists a workflow with its complete level
// list. The level list is replaced wholesale: either every level passes
// validation and is written, or nothing changes. A successful save clears
// the needs-review flag; saving with Active=true deactivates any other
// active workflow of the template so at most one is active.
func (s *WorkflowService) SaveWorkflow(templateID uint, req *SaveWorkflowRequest, userID uint) (*models.Workflow, error) {
	unlock := lockTemplate(templateID)
	defer unlock()

	var tpl models.Template
	if err := s.db.First(&tpl, templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	if len(req.Levels) == 0 {
		return nil, newValidationError("workflow", "levels", "at least one level is required")
	}

	visible, err := visibleFieldNames(s.db, templateID)
	if err != nil {
		return nil, err
	}

	// Validate every level before touching the database. Group membership
	// is flattened here, at validation time, so the check always sees the
	// directory's latest state.
	for i, lvl := range req.Levels {
		order := i + 1
		resolved, err := s.resolveApprovers(lvl.UserIDs, lvl.GroupIDs)
		if err != nil {
			return nil, err
		}
		if len(resolved) == 0 {
			return nil, &EmptyApproverSetError{LevelOrder: order}
		}
		for _, name := range lvl.EditableFields {
			if !visible[name] {
				return nil, &UnknownEditableFieldError{LevelOrder: order, FieldName: name}
			}
		}
	}

	var wf models.Workflow
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if req.WorkflowID != nil {
			if err := tx.First(&wf, *req.WorkflowID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrWorkflowNotFound
				}
				return err
			}
			if wf.TemplateID != templateID {
				return newValidationError("workflow", "workflow_id", "workflow belongs to another template")
			}
			if err := tx.Where("workflow_id = ?", wf.ID).Delete(&models.WorkflowLevel{}).Error; err != nil {
				return err
			}
		} else {
			wf = models.Workflow{TemplateID: templateID, CreatedBy: userID}
			if err := tx.Create(&wf).Error; err != nil {
				return err
			}
		}

		wf.Name = req.Name
		wf.Description = req.Description
		wf.Active = req.Active
		wf.NeedsReview = false
		if err := tx.Save(&wf).Error; err != nil {
			return err
		}

		if req.Active {
			if err := tx.Model(&models.Workflow{}).
				Where("template_id = ? AND id <> ? AND active = ?", templateID, wf.ID, true).
				Update("active", false).Error; err != nil {
				return err
			}
		}

		for i, lvl := range req.Levels {
			level := models.WorkflowLevel{
				WorkflowID:     wf.ID,
				LevelOrder:     i + 1,
				Name:           lvl.Name,
				UserIDs:        lvl.UserIDs,
				GroupIDs:       lvl.GroupIDs,
				EditableFields: lvl.EditableFields,
				Parallel:       lvl.Parallel,
			}
			if err := tx.Create(&level).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("template_id", templateID).Uint("workflow_id", wf.ID).Int("levels", len(req.Levels)).Msg("workflow saved")
	return s.GetByID(wf.ID)
}

// GetActiveWorkflow returns the template's single active workflow, or
// ErrWorkflowNotFound when none is active.
func (s *WorkflowService) GetActiveWorkflow(templateID uint) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.db.
		Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("level_order") }).
		Where("template_id = ? AND active = ?", templateID, true).
		First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetByID returns a workflow with ordered levels.
func (s *WorkflowService) GetByID(id uint) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.db.
		Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("level_order") }).
		First(&wf, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListByTemplate returns every workflow of a template, active or not.
// Deactivated workflows are retained as history.
func (s *WorkflowService) ListByTemplate(templateID uint) ([]models.Workflow, error) {
	var wfs []models.Workflow
	err := s.db.
		Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("level_order") }).
		Where("template_id = ?", templateID).
		Order("created_at DESC").
		Find(&wfs).Error
	return wfs, err
}

// Deactivate retires a workflow without deleting its history.
func (s *WorkflowService) Deactivate(id uint) error {
	res := s.db.Model(&models.Workflow{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// resolveApprovers flattens explicit users and group memberships into the
// concrete approver set for one level. Disabled users drop out, so a
// level whose only approvers were deactivated fails the non-empty check.
func (s *WorkflowService) resolveApprovers(userIDs, groupIDs []uint) (map[uint]bool, error) {
	resolved := make(map[uint]bool)
	if len(userIDs) > 0 {
		var active []uint
		err := s.db.Model(&models.User{}).
			Where("id IN ? AND is_active = ?", userIDs, true).
			Pluck("id", &active).Error
		if err != nil {
			return nil, err
		}
		for _, id := range active {
			resolved[id] = true
		}
	}
	if len(groupIDs) > 0 {
		var memberIDs []uint
		err := s.db.Model(&models.GroupMember{}).
			Joins("JOIN approval_groups ON approval_groups.id = group_members.group_id AND approval_groups.deleted_at IS NULL").
			Joins("JOIN users ON users.id = group_members.user_id AND users.deleted_at IS NULL").
			Where("group_members.group_id IN ? AND approval_groups.active = ? AND users.is_active = ?", groupIDs, true, true).
			Pluck("group_members.user_id", &memberIDs).Error
		if err != nil {
			return nil, err
		}
		for _, id := range memberIDs {
			resolved[id] = true
		}
	}
	return resolved, nil
}

// visibleFieldNames collects the names of every visible field across the
// template's tables. Workflow level field scoping validates against this
// set.
func visibleFieldNames(db *gorm.DB, templateID uint) (map[string]bool, error) {
	var names []string
	err := db.Model(&models.FormField{}).
		Joins("JOIN template_tables ON template_tables.id = form_fields.table_id AND template_tables.deleted_at IS NULL").
		Where("template_tables.template_id = ? AND form_fields.visible = ?", templateID, true).
		Pluck("form_fields.name", &names).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

// flagWorkflowsReferencing marks every workflow of the template that
// scopes editing to one of the given field names as needing review. The
// stale reference is kept as-is: repairing the level silently would hide
// the configuration drift from the admin.
func flagWorkflowsReferencing(tx *gorm.DB, templateID uint, fieldNames []string, actorID *uint) error {
	if len(fieldNames) == 0 {
		return nil
	}
	removed := make(map[string]bool, len(fieldNames))
	for _, n := range fieldNames {
		removed[n] = true
	}

	var workflows []models.Workflow
	if err := tx.Preload("Levels").Where("template_id = ?", templateID).Find(&workflows).Error; err != nil {
		return err
	}

	for i := range workflows {
		wf := &workflows[i]
		if wf.NeedsReview {
			continue
		}
		for _, lvl := range wf.Levels {
			flagged := false
			for _, name := range lvl.EditableFields {
				if removed[name] {
					if err := tx.Model(&models.Workflow{}).Where("id = ?", wf.ID).Update("needs_review", true).Error; err != nil {
						return err
					}
					auditLog(tx, "warning", "workflow", "flag_review",
						"level "+strconv.Itoa(lvl.LevelOrder)+" references removed or hidden field "+name,
						&templateID, actorID)
					flagged = true
					break
				}
			}
			if flagged {
				break
			}
		}
	}
	return nil
}
