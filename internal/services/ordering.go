package services

import (
	"errors"
	"fmt"

	"github.com/rmaraujo/formbridge/backend/internal/models"
	"gorm.io/gorm"
)

// MoveDirection is the direction of a single-step field move.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

// OrderingService maintains the dense presentation order of a table's
// fields: after every operation the order indices are exactly 0..N-1.
type OrderingService struct {
	db *gorm.DB
}

func NewOrderingService(db *gorm.DB) *OrderingService {
	return &OrderingService{db: db}
}

// MoveField swaps a field with its immediate neighbor in the requested
// direction. At either boundary the call is a no-op. Both indices are
// written in one transaction so a duplicate index is never observable.
func (s *OrderingService) MoveField(tableID, fieldID uint, direction MoveDirection) error {
	if direction != MoveUp && direction != MoveDown {
		return newValidationError("field", "direction", "must be up or down")
	}

	table, err := s.getTable(tableID)
	if err != nil {
		return err
	}
	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	fields, err := s.orderedFields(tableID)
	if err != nil {
		return err
	}

	pos := -1
	for i, f := range fields {
		if f.ID == fieldID {
			pos = i
			break
		}
	}
	if pos == -1 {
		return ErrFieldNotFound
	}

	var other int
	switch direction {
	case MoveUp:
		other = pos - 1
	case MoveDown:
		other = pos + 1
	}
	if other < 0 || other >= len(fields) {
		return nil // boundary no-op
	}

	a, b := fields[pos], fields[other]
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FormField{}).Where("id = ?", a.ID).Update("order_index", b.OrderIndex).Error; err != nil {
			return err
		}
		return tx.Model(&models.FormField{}).Where("id = ?", b.ID).Update("order_index", a.OrderIndex).Error
	})
}

// GroupVisibleToTop stable-partitions the table's fields into visible
// fields followed by hidden ones, each keeping its relative order, and
// reassigns dense indices. Running it twice with unchanged visibility
// changes nothing.
func (s *OrderingService) GroupVisibleToTop(tableID uint) error {
	table, err := s.getTable(tableID)
	if err != nil {
		return err
	}
	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	fields, err := s.orderedFields(tableID)
	if err != nil {
		return err
	}

	reordered := make([]models.FormField, 0, len(fields))
	for _, f := range fields {
		if f.Visible {
			reordered = append(reordered, f)
		}
	}
	for _, f := range fields {
		if !f.Visible {
			reordered = append(reordered, f)
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for i, f := range reordered {
			if f.OrderIndex == i {
				continue
			}
			if err := tx.Model(&models.FormField{}).Where("id = ?", f.ID).Update("order_index", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReorderFields assigns order = position in ids. The request is rejected
// unless ids is exactly a permutation of the table's current field ids;
// on rejection the stored order is untouched.
func (s *OrderingService) ReorderFields(tableID uint, ids []uint) error {
	table, err := s.getTable(tableID)
	if err != nil {
		return err
	}
	unlock := lockTemplate(table.TemplateID)
	defer unlock()

	fields, err := s.orderedFields(tableID)
	if err != nil {
		return err
	}

	if len(ids) != len(fields) {
		return &InvalidPermutationError{TableID: tableID}
	}
	current := make(map[uint]bool, len(fields))
	for _, f := range fields {
		current[f.ID] = true
	}
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !current[id] || seen[id] {
			return &InvalidPermutationError{TableID: tableID}
		}
		seen[id] = true
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&models.FormField{}).Where("id = ?", id).Update("order_index", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// orderedFields loads the table's fields and asserts the stored order is
// dense. A gap or duplicate can only come from a write that bypassed
// validation, so it is treated as corruption rather than handled.
func (s *OrderingService) orderedFields(tableID uint) ([]models.FormField, error) {
	var fields []models.FormField
	if err := s.db.Where("table_id = ?", tableID).Order("order_index").Find(&fields).Error; err != nil {
		return nil, err
	}
	for i, f := range fields {
		if f.OrderIndex != i {
			panic(fmt.Sprintf("field order corrupt for table %d: index %d at position %d", tableID, f.OrderIndex, i))
		}
	}
	return fields, nil
}

func (s *OrderingService) getTable(tableID uint) (*models.TemplateTable, error) {
	var table models.TemplateTable
	if err := s.db.First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	return &table, nil
}
