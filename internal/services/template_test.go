package services

import (
	"errors"
	"testing"

	"github.com/rmaraujo/formbridge/backend/internal/models"
)

func TestTemplateService_Create_ImplicitMainTable(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))

	tpl, err := svc.Create(&CreateTemplateRequest{Name: "Purchase Orders", MainTable: "orders"}, 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(tpl.Tables) != 1 {
		t.Fatalf("expected 1 implicit table, got %d", len(tpl.Tables))
	}
	main := tpl.Tables[0]
	if main.TableName != "orders" || main.Alias != "orders" {
		t.Errorf("main table = %s/%s, expected orders/orders", main.TableName, main.Alias)
	}
	if main.Position != 0 {
		t.Errorf("Position = %d, expected 0", main.Position)
	}
	if tpl.CreatedBy != 7 {
		t.Errorf("CreatedBy = %d, expected 7", tpl.CreatedBy)
	}
}

func TestTemplateService_Create_AliasFallbackForUppercaseTable(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))

	tpl, err := svc.Create(&CreateTemplateRequest{Name: "SC7 Orders", MainTable: "SC7010"}, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tpl.Tables[0].Alias != "main" {
		t.Errorf("Alias = %q, expected fallback %q", tpl.Tables[0].Alias, "main")
	}
	if tpl.Tables[0].TableName != "SC7010" {
		t.Errorf("TableName = %q, expected SC7010", tpl.Tables[0].TableName)
	}
}

func TestTemplateService_AddTable_Invariants(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tpl, main := createTestTemplate(t, db, "Header", "header")

	fks := []models.ForeignKeyPair{{ParentField: "order_id", ChildField: "order_id"}}

	tests := []struct {
		name string
		req  AddTableRequest
	}{
		{"duplicate alias", AddTableRequest{TableName: "other", Alias: main.Alias, RelationType: models.RelationIndependent}},
		{"duplicate table name", AddTableRequest{TableName: main.TableName, Alias: "other", RelationType: models.RelationIndependent}},
		{"bad alias", AddTableRequest{TableName: "other", Alias: "Other Items", RelationType: models.RelationIndependent}},
		{"unknown relation", AddTableRequest{TableName: "other", Alias: "other", RelationType: "sideways"}},
		{"child without parent", AddTableRequest{TableName: "items", Alias: "items", RelationType: models.RelationChild, ForeignKeys: fks}},
		{"child without keys", AddTableRequest{TableName: "items", Alias: "items", RelationType: models.RelationChild, ParentTableID: &main.ID}},
		{"incomplete key pair", AddTableRequest{TableName: "items", Alias: "items", RelationType: models.RelationChild, ParentTableID: &main.ID,
			ForeignKeys: []models.ForeignKeyPair{{ParentField: "order_id"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddTable(tpl.ID, &tt.req)
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Errorf("AddTable = %v, expected validation error", err)
			}
		})
	}

	var count int64
	db.Model(&models.TemplateTable{}).Where("template_id = ?", tpl.ID).Count(&count)
	if count != 1 {
		t.Errorf("table count = %d after rejected adds, expected 1", count)
	}
}

func TestTemplateService_AddTable_HeaderItemsSub(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tpl, main := createTestTemplate(t, db, "Order Entry", "header")

	items, err := svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:     "items",
		Alias:         "items",
		RelationType:  models.RelationChild,
		ParentTableID: &main.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "order_id", ChildField: "order_id"}},
	})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}

	// A second level of nesting is rejected: a child cannot parent a table.
	_, err = svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:     "sub_items",
		Alias:         "sub_items",
		RelationType:  models.RelationChild,
		ParentTableID: &items.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "item_id", ChildField: "item_id"}},
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("child-of-child = %v, expected validation error", err)
	}

	// The same table attached to the header is fine.
	_, err = svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:     "sub_items",
		Alias:         "sub_items",
		RelationType:  models.RelationChild,
		ParentTableID: &main.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "order_id", ChildField: "order_id"}},
	})
	if err != nil {
		t.Fatalf("add sub_items under header: %v", err)
	}

	got, err := svc.GetByID(tpl.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.MultiTable {
		t.Error("MultiTable should be true after adding a second table")
	}
	if len(got.Tables) != 3 {
		t.Errorf("table count = %d, expected 3", len(got.Tables))
	}
}

func TestTemplateService_AddTable_ParentFromOtherTemplate(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tplA, _ := createTestTemplate(t, db, "A", "table_a")
	_, mainB := createTestTemplate(t, db, "B", "table_b")

	_, err := svc.AddTable(tplA.ID, &AddTableRequest{
		TableName:     "items",
		Alias:         "items",
		RelationType:  models.RelationChild,
		ParentTableID: &mainB.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "id", ChildField: "a_id"}},
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("AddTable = %v, expected validation error for foreign parent", err)
	}
}

func TestTemplateService_UpdateTable_RelationChangeClearsParentData(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tpl, main := createTestTemplate(t, db, "Orders", "header")

	items, err := svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:     "items",
		Alias:         "items",
		RelationType:  models.RelationChild,
		ParentTableID: &main.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "order_id", ChildField: "order_id"}},
	})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}

	indep := models.RelationIndependent
	updated, err := svc.UpdateTable(items.ID, &UpdateTableRequest{RelationType: &indep})
	if err != nil {
		t.Fatalf("UpdateTable: %v", err)
	}
	if updated.ParentTableID != nil {
		t.Error("ParentTableID should be cleared when leaving the child relation")
	}
	if len(updated.ForeignKeys) != 0 {
		t.Errorf("ForeignKeys = %v, expected empty after relation change", updated.ForeignKeys)
	}
}

func TestTemplateService_UpdateTable_TableNameImmutable(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	_, main := createTestTemplate(t, db, "Orders", "header")

	alias := "renamed"
	updated, err := svc.UpdateTable(main.ID, &UpdateTableRequest{Alias: &alias})
	if err != nil {
		t.Fatalf("UpdateTable: %v", err)
	}
	if updated.Alias != "renamed" {
		t.Errorf("Alias = %q, expected renamed", updated.Alias)
	}
	if updated.TableName != "header" {
		t.Errorf("TableName = %q, must stay header", updated.TableName)
	}
}

func TestTemplateService_UpdateTable_RetypeParentBlockedByChildren(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tpl, main := createTestTemplate(t, db, "Orders", "header")

	_, err := svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:     "items",
		Alias:         "items",
		RelationType:  models.RelationChild,
		ParentTableID: &main.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "order_id", ChildField: "order_id"}},
	})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}
	root, err := svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:    "root",
		Alias:        "root",
		RelationType: models.RelationIndependent,
	})
	if err != nil {
		t.Fatalf("add root: %v", err)
	}

	// Retyping the header to child of root would put items two levels deep.
	child := models.RelationChild
	_, err = svc.UpdateTable(main.ID, &UpdateTableRequest{
		RelationType:  &child,
		ParentTableID: &root.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "id", ChildField: "root_id"}},
	})
	var childErr *TableHasChildrenError
	if !errors.As(err, &childErr) {
		t.Fatalf("UpdateTable = %v, expected TableHasChildrenError", err)
	}
	if len(childErr.ChildAliases) != 1 || childErr.ChildAliases[0] != "items" {
		t.Errorf("ChildAliases = %v, expected [items]", childErr.ChildAliases)
	}

	var header models.TemplateTable
	if err := db.First(&header, main.ID).Error; err != nil {
		t.Fatalf("reload header: %v", err)
	}
	if header.RelationType == models.RelationChild || header.ParentTableID != nil {
		t.Errorf("header relation changed despite the rejection: type=%s parent=%v", header.RelationType, header.ParentTableID)
	}
}

func TestTemplateService_RemoveTable_BlockedByChildren(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tpl, main := createTestTemplate(t, db, "Orders", "header")

	_, err := svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:     "items",
		Alias:         "items",
		RelationType:  models.RelationChild,
		ParentTableID: &main.ID,
		ForeignKeys:   []models.ForeignKeyPair{{ParentField: "order_id", ChildField: "order_id"}},
	})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}

	err = svc.RemoveTable(main.ID, nil)
	var childErr *TableHasChildrenError
	if !errors.As(err, &childErr) {
		t.Fatalf("RemoveTable = %v, expected TableHasChildrenError", err)
	}
	if len(childErr.ChildAliases) != 1 || childErr.ChildAliases[0] != "items" {
		t.Errorf("ChildAliases = %v, expected [items]", childErr.ChildAliases)
	}

	// The blocked removal must not have touched anything.
	var count int64
	db.Model(&models.TemplateTable{}).Where("template_id = ?", tpl.ID).Count(&count)
	if count != 2 {
		t.Errorf("table count = %d, expected 2", count)
	}
}

func TestTemplateService_RemoveTable_FlagsWorkflows(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	wfSvc := NewWorkflowService(db)
	tpl, main := createTestTemplate(t, db, "Orders", "header")

	extra, err := svc.AddTable(tpl.ID, &AddTableRequest{
		TableName:    "notes",
		Alias:        "notes",
		RelationType: models.RelationIndependent,
	})
	if err != nil {
		t.Fatalf("add notes: %v", err)
	}
	createTestField(t, db, main.ID, "status", 0, true, false)
	createTestField(t, db, extra.ID, "remark", 0, true, true)

	approver := createTestUser(t, db, "approver", true)
	wf, err := wfSvc.SaveWorkflow(tpl.ID, &SaveWorkflowRequest{
		Name:   "Review",
		Active: true,
		Levels: []LevelSpec{{Name: "L1", UserIDs: []uint{approver.ID}, EditableFields: []string{"remark"}}},
	}, approver.ID)
	if err != nil {
		t.Fatalf("SaveWorkflow: %v", err)
	}
	if wf.NeedsReview {
		t.Fatal("fresh workflow must not need review")
	}

	if err := svc.RemoveTable(extra.ID, &approver.ID); err != nil {
		t.Fatalf("RemoveTable: %v", err)
	}

	got, err := wfSvc.GetByID(wf.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.NeedsReview {
		t.Error("workflow referencing the removed field must be flagged for review")
	}
}

func TestTemplateService_Delete_RemovesWholeTree(t *testing.T) {
	db := newTestDB(t)
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	wfSvc := NewWorkflowService(db)
	tpl, main := createTestTemplate(t, db, "Orders", "header")
	createTestField(t, db, main.ID, "status", 0, true, false)

	approver := createTestUser(t, db, "approver", true)
	_, err := wfSvc.SaveWorkflow(tpl.ID, &SaveWorkflowRequest{
		Name:   "Review",
		Levels: []LevelSpec{{UserIDs: []uint{approver.ID}}},
	}, approver.ID)
	if err != nil {
		t.Fatalf("SaveWorkflow: %v", err)
	}

	if err := svc.Delete(tpl.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.GetByID(tpl.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("GetByID after delete = %v, expected ErrTemplateNotFound", err)
	}
	var tables, fields, workflows, levels int64
	db.Model(&models.TemplateTable{}).Where("template_id = ?", tpl.ID).Count(&tables)
	db.Model(&models.FormField{}).Where("table_id = ?", main.ID).Count(&fields)
	db.Model(&models.Workflow{}).Where("template_id = ?", tpl.ID).Count(&workflows)
	db.Model(&models.WorkflowLevel{}).Count(&levels)
	if tables+fields+workflows+levels != 0 {
		t.Errorf("leftovers after delete: tables=%d fields=%d workflows=%d levels=%d", tables, fields, workflows, levels)
	}
}
