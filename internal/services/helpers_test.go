package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rmaraujo/formbridge/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq int64

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Template{},
		&models.TemplateTable{},
		&models.FormField{},
		&models.Workflow{},
		&models.WorkflowLevel{},
		&models.ApprovalGroup{},
		&models.GroupMember{},
		&models.SchemaField{},
		&models.GenericTable{},
		&models.SystemLog{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string, active bool) models.User {
	t.Helper()
	user := models.User{Username: username, Role: "user", AuthType: "local", IsActive: active}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// createTestTemplate creates a template through the service so the
// implicit main table exists, then returns both.
func createTestTemplate(t *testing.T, db *gorm.DB, name, mainTable string) (*models.Template, *models.TemplateTable) {
	t.Helper()
	svc := NewTemplateService(db, NewSchemaSyncService(db, nil))
	tpl, err := svc.Create(&CreateTemplateRequest{Name: name, MainTable: mainTable}, 1)
	if err != nil {
		t.Fatalf("create template %s: %v", name, err)
	}
	if len(tpl.Tables) != 1 {
		t.Fatalf("template %s has %d tables, expected 1", name, len(tpl.Tables))
	}
	return tpl, &tpl.Tables[0]
}

func createTestField(t *testing.T, db *gorm.DB, tableID uint, name string, order int, visible, custom bool) models.FormField {
	t.Helper()
	field := models.FormField{
		TableID:    tableID,
		Name:       name,
		Label:      name,
		Type:       models.FieldString,
		Visible:    visible,
		Enabled:    true,
		OrderIndex: order,
		IsCustom:   custom,
	}
	if err := db.Create(&field).Error; err != nil {
		t.Fatalf("create field %s: %v", name, err)
	}
	return field
}

func fieldID(t *testing.T, db *gorm.DB, tableID uint, name string) uint {
	t.Helper()
	var field models.FormField
	if err := db.Where("table_id = ? AND name = ?", tableID, name).First(&field).Error; err != nil {
		t.Fatalf("load field %s: %v", name, err)
	}
	return field.ID
}

// fieldOrder returns the table's field names in stored presentation order.
func fieldOrder(t *testing.T, db *gorm.DB, tableID uint) []string {
	t.Helper()
	var fields []models.FormField
	if err := db.Where("table_id = ?", tableID).Order("order_index").Find(&fields).Error; err != nil {
		t.Fatalf("load fields: %v", err)
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		if f.OrderIndex != i {
			t.Fatalf("order not dense: field %s has index %d at position %d", f.Name, f.OrderIndex, i)
		}
		names[i] = f.Name
	}
	return names
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
