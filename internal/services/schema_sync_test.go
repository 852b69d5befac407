package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/rmaraujo/formbridge/backend/internal/models"
)

// stubProvider serves fixed catalogs so the sync logic can be exercised
// without the backing system.
type stubProvider struct {
	fields   map[string][]SchemaFieldDef
	generics []GenericTableDef
	fail     bool
}

func (p *stubProvider) TableFields(binding, table string) ([]SchemaFieldDef, error) {
	if p.fail {
		return nil, fmt.Errorf("provider unavailable")
	}
	return p.fields[table], nil
}

func (p *stubProvider) GenericTables(binding string) ([]GenericTableDef, error) {
	if p.fail {
		return nil, fmt.Errorf("provider unavailable")
	}
	return p.generics, nil
}

func TestFieldTypeFor(t *testing.T) {
	tests := []struct {
		baseType string
		expected models.FieldType
	}{
		{"string", models.FieldString},
		{"number", models.FieldNumber},
		{"date", models.FieldDate},
		{"boolean", models.FieldBoolean},
		{"memo", models.FieldTextarea},
		{"character", models.FieldString},
		{"", models.FieldString},
	}
	for _, tt := range tests {
		if got := fieldTypeFor(tt.baseType); got != tt.expected {
			t.Errorf("fieldTypeFor(%q) = %q, expected %q", tt.baseType, got, tt.expected)
		}
	}
}

func TestSchemaSyncService_RefreshCatalog_ReplacesGenericTables(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{
		generics: []GenericTableDef{{Code: "00", Label: "States"}, {Code: "4L", Label: "Units"}},
	}
	svc := NewSchemaSyncService(db, provider)

	if err := svc.RefreshCatalog("primary"); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	var count int64
	db.Model(&models.GenericTable{}).Where("binding = ?", "primary").Count(&count)
	if count != 2 {
		t.Fatalf("generic table count = %d, expected 2", count)
	}

	// The next pull replaces the cache rather than accumulating rows.
	provider.generics = []GenericTableDef{{Code: "00", Label: "States"}}
	if err := svc.RefreshCatalog("primary"); err != nil {
		t.Fatalf("second RefreshCatalog: %v", err)
	}
	db.Model(&models.GenericTable{}).Where("binding = ?", "primary").Count(&count)
	if count != 1 {
		t.Errorf("generic table count = %d, expected 1 after replace", count)
	}
}

func TestSchemaSyncService_RefreshCatalog_ProviderFailure(t *testing.T) {
	db := newTestDB(t)
	svc := NewSchemaSyncService(db, &stubProvider{fail: true})
	if err := svc.RefreshCatalog("primary"); err == nil {
		t.Error("RefreshCatalog with failing provider did not error")
	}

	none := NewSchemaSyncService(db, nil)
	if err := none.RefreshCatalog("primary"); err == nil {
		t.Error("RefreshCatalog without a provider did not error")
	}
}

func TestSchemaSyncService_RefreshCatalog_FillsFieldCatalogForUsedTables(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{
		fields: map[string][]SchemaFieldDef{
			"SC7010": {
				{Name: "c7_num", Label: "Order No", BaseType: "string", Required: true},
				{Name: "c7_total", Label: "Total", BaseType: "number"},
			},
		},
	}
	svc := NewSchemaSyncService(db, provider)
	tplSvc := NewTemplateService(db, svc)
	user := createTestUser(t, db, "admin", true)

	if _, err := tplSvc.Create(&CreateTemplateRequest{
		Name:        "Orders",
		MainTable:   "SC7010",
		BindingCode: "primary",
	}, user.ID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.RefreshCatalog("primary"); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	var defs []models.SchemaField
	db.Where("binding = ? AND table_name = ?", "primary", "SC7010").Order("position").Find(&defs)
	if len(defs) != 2 {
		t.Fatalf("field catalog count = %d, expected 2", len(defs))
	}
	if defs[0].FieldName != "c7_num" || defs[0].Position != 0 || !defs[0].Required {
		t.Errorf("first catalog row = %+v, expected c7_num at position 0, required", defs[0])
	}
	if defs[1].FieldName != "c7_total" || defs[1].Position != 1 {
		t.Errorf("second catalog row = %+v, expected c7_total at position 1", defs[1])
	}
}

func TestSchemaSyncService_PopulateTableFields_FromCachedCatalog(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{
		fields: map[string][]SchemaFieldDef{
			"SC7010": {
				{Name: "c7_num", Label: "Order No", BaseType: "string", Required: true},
				{Name: "c7_emissao", Label: "Issued", BaseType: "date"},
				{Name: "c7_obs", Label: "Notes", BaseType: "memo"},
			},
		},
	}
	svc := NewSchemaSyncService(db, provider)
	tplSvc := NewTemplateService(db, svc)
	user := createTestUser(t, db, "admin", true)

	// Cache the catalog first so template creation finds it.
	if err := svc.storeFieldCatalog("primary", "SC7010", provider.fields["SC7010"], time.Now()); err != nil {
		t.Fatalf("storeFieldCatalog: %v", err)
	}

	tpl, err := tplSvc.Create(&CreateTemplateRequest{
		Name:        "Orders",
		MainTable:   "SC7010",
		BindingCode: "primary",
	}, user.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var table models.TemplateTable
	if err := db.Where("template_id = ?", tpl.ID).First(&table).Error; err != nil {
		t.Fatalf("load table: %v", err)
	}
	names := fieldOrder(t, db, table.ID)
	if !sameOrder(names, []string{"c7_num", "c7_emissao", "c7_obs"}) {
		t.Fatalf("field order = %v, expected catalog order", names)
	}

	var fields []models.FormField
	db.Where("table_id = ?", table.ID).Order("order_index").Find(&fields)
	if fields[1].Type != models.FieldDate || fields[2].Type != models.FieldTextarea {
		t.Errorf("mapped types = %q/%q, expected date/textarea", fields[1].Type, fields[2].Type)
	}
	for _, f := range fields {
		if f.IsCustom || !f.Visible || !f.Enabled {
			t.Errorf("field %q = custom=%v visible=%v enabled=%v, expected schema-sourced defaults", f.Name, f.IsCustom, f.Visible, f.Enabled)
		}
	}
}

func TestSchemaSyncService_RefreshTemplateFields(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{
		fields: map[string][]SchemaFieldDef{
			"SC7010": {
				{Name: "c7_num", Label: "Order No", BaseType: "string", Required: true},
				{Name: "c7_total", Label: "Total", BaseType: "number"},
			},
		},
	}
	svc := NewSchemaSyncService(db, provider)
	tplSvc := NewTemplateService(db, svc)
	fieldSvc := NewFieldService(db)
	user := createTestUser(t, db, "admin", true)

	if err := svc.storeFieldCatalog("primary", "SC7010", provider.fields["SC7010"], time.Now()); err != nil {
		t.Fatalf("storeFieldCatalog: %v", err)
	}
	tpl, err := tplSvc.Create(&CreateTemplateRequest{
		Name:        "Orders",
		MainTable:   "SC7010",
		BindingCode: "primary",
	}, user.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var table models.TemplateTable
	if err := db.Where("template_id = ?", tpl.ID).First(&table).Error; err != nil {
		t.Fatalf("load table: %v", err)
	}

	// Admin customizes the presentation and adds a custom field.
	hidden := false
	if _, err := fieldSvc.UpdateField(fieldID(t, db, table.ID, "c7_total"), &UpdateFieldRequest{Visible: &hidden}, &user.ID); err != nil {
		t.Fatalf("hide c7_total: %v", err)
	}
	if _, err := fieldSvc.AddCustomField(table.ID, &AddCustomFieldRequest{Name: "priority", Label: "Priority", Type: models.FieldString}); err != nil {
		t.Fatalf("AddCustomField: %v", err)
	}

	// The catalog evolves: c7_total becomes required and gains a new
	// label, and c7_cond appears. c7_num is dropped upstream.
	provider.fields["SC7010"] = []SchemaFieldDef{
		{Name: "c7_total", Label: "Grand Total", BaseType: "number", Required: true},
		{Name: "c7_cond", Label: "Payment Terms", BaseType: "string"},
	}
	if err := svc.storeFieldCatalog("primary", "SC7010", provider.fields["SC7010"], time.Now()); err != nil {
		t.Fatalf("restore catalog: %v", err)
	}

	if err := svc.RefreshTemplateFields(&table, "primary"); err != nil {
		t.Fatalf("RefreshTemplateFields: %v", err)
	}

	names := fieldOrder(t, db, table.ID)
	if !sameOrder(names, []string{"c7_num", "c7_total", "priority", "c7_cond"}) {
		t.Fatalf("field order = %v, expected existing order kept and c7_cond appended", names)
	}

	var total models.FormField
	db.Where("table_id = ? AND name = ?", table.ID, "c7_total").First(&total)
	if total.Label != "Grand Total" || !total.Required {
		t.Errorf("c7_total = label %q required %v, expected catalog update applied", total.Label, total.Required)
	}
	if total.Visible {
		t.Error("c7_total became visible, expected the admin's hide preserved")
	}

	// Fields dropped from the catalog are kept, not deleted.
	var num models.FormField
	if err := db.Where("table_id = ? AND name = ?", table.ID, "c7_num").First(&num).Error; err != nil {
		t.Errorf("c7_num gone after refresh: %v", err)
	}
}

func TestSchemaSyncService_RefreshTemplateFields_SkipsCustomNameClash(t *testing.T) {
	db := newTestDB(t)
	svc := NewSchemaSyncService(db, &stubProvider{})
	fieldSvc := NewFieldService(db)
	_, table := createTestTemplate(t, db, "Orders", "SC7010")

	if _, err := fieldSvc.AddCustomField(table.ID, &AddCustomFieldRequest{Name: "c7_obs", Label: "Notes", Type: models.FieldString}); err != nil {
		t.Fatalf("AddCustomField: %v", err)
	}
	if err := svc.storeFieldCatalog("primary", "SC7010", []SchemaFieldDef{
		{Name: "c7_obs", Label: "Observation", BaseType: "memo"},
	}, time.Now()); err != nil {
		t.Fatalf("storeFieldCatalog: %v", err)
	}

	if err := svc.RefreshTemplateFields(table, "primary"); err != nil {
		t.Fatalf("RefreshTemplateFields: %v", err)
	}

	// The custom field wins the name; the refresh neither overwrites it
	// nor creates a duplicate.
	var fields []models.FormField
	db.Where("table_id = ? AND name = ?", table.ID, "c7_obs").Find(&fields)
	if len(fields) != 1 {
		t.Fatalf("c7_obs count = %d, expected 1", len(fields))
	}
	if !fields[0].IsCustom || fields[0].Label != "Notes" {
		t.Errorf("c7_obs = custom %v label %q, expected the custom field untouched", fields[0].IsCustom, fields[0].Label)
	}
}
