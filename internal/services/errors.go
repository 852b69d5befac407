package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services.
var (
	ErrTemplateNotFound      = errors.New("template not found")
	ErrTableNotFound         = errors.New("table not found")
	ErrFieldNotFound         = errors.New("field not found")
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrGroupNotFound         = errors.New("approval group not found")
	ErrFixedFieldImmutable   = errors.New("schema-sourced fields cannot change name or type")
	ErrFixedFieldUndeletable = errors.New("schema-sourced fields cannot be deleted, hide them instead")
	ErrTemplateExists        = errors.New("a template for this table already exists")
)

// ValidationError rejects a structural mutation before any write. Entity
// and Field give the caller enough context to report the failure.
type ValidationError struct {
	Entity string // template, table, field, workflow, level, bundle
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

func newValidationError(entity, field, reason string) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}

// InvalidPermutationError rejects a reorder request that is not an exact
// permutation of the table's current field ids.
type InvalidPermutationError struct {
	TableID uint
}

func (e *InvalidPermutationError) Error() string {
	return fmt.Sprintf("table %d: requested order is not a permutation of the current field set", e.TableID)
}

// EmptyApproverSetError rejects a workflow level whose resolved approver
// set (explicit users plus flattened group members) is empty.
type EmptyApproverSetError struct {
	LevelOrder int
}

func (e *EmptyApproverSetError) Error() string {
	return fmt.Sprintf("level %d: resolved approver set is empty", e.LevelOrder)
}

// UnknownEditableFieldError rejects a workflow level that scopes editing to
// a field not currently visible on the template.
type UnknownEditableFieldError struct {
	LevelOrder int
	FieldName  string
}

func (e *UnknownEditableFieldError) Error() string {
	return fmt.Sprintf("level %d: editable field %q is not visible on the template", e.LevelOrder, e.FieldName)
}

// TableHasChildrenError blocks removal of a table still referenced as
// parent by sibling tables.
type TableHasChildrenError struct {
	TableID      uint
	ChildAliases []string
}

func (e *TableHasChildrenError) Error() string {
	return fmt.Sprintf("table %d: still referenced as parent by %v", e.TableID, e.ChildAliases)
}

// InvalidBundleError rejects a malformed or unversioned export bundle.
type InvalidBundleError struct {
	Reason string
}

func (e *InvalidBundleError) Error() string {
	return "invalid bundle: " + e.Reason
}

// UnsupportedVersionError rejects a bundle whose format version is not
// understood by this installation.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported bundle format version %d", e.Version)
}
