package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/craftbound/portal/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupMigrateTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	return conn
}

func TestMigrateSeedsPermissionsAndRoles(t *testing.T) {
	t.Parallel()

	conn := setupMigrateTestDB(t)
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var permCount int64
	if errCount := conn.Model(&models.Permission{}).Count(&permCount).Error; errCount != nil {
		t.Fatalf("count permissions: %v", errCount)
	}
	if permCount != int64(len(seedPermissions)) {
		t.Fatalf("expected %d permissions, got %d", len(seedPermissions), permCount)
	}

	var admin models.Role
	if errFind := conn.Where("name = ?", "admin").First(&admin).Error; errFind != nil {
		t.Fatalf("admin role missing: %v", errFind)
	}
	if !admin.IsSystem {
		t.Fatalf("admin role must be a system role")
	}

	var grants int64
	if errCount := conn.Model(&models.RolePermission{}).Where("role_id = ?", admin.ID).Count(&grants).Error; errCount != nil {
		t.Fatalf("count grants: %v", errCount)
	}
	if grants != permCount {
		t.Fatalf("admin role should carry all %d permissions, got %d", permCount, grants)
	}

	var member models.Role
	if errFind := conn.Where("name = ?", "member").First(&member).Error; errFind != nil {
		t.Fatalf("member role missing: %v", errFind)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := setupMigrateTestDB(t)
	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate run %d: %v", i, errMigrate)
		}
	}

	var roleCount int64
	if errCount := conn.Model(&models.Role{}).Count(&roleCount).Error; errCount != nil {
		t.Fatalf("count roles: %v", errCount)
	}
	if roleCount != 2 {
		t.Fatalf("expected 2 seeded roles, got %d", roleCount)
	}
	var permCount int64
	if errCount := conn.Model(&models.Permission{}).Count(&permCount).Error; errCount != nil {
		t.Fatalf("count permissions: %v", errCount)
	}
	if permCount != int64(len(seedPermissions)) {
		t.Fatalf("expected %d permissions after rerun, got %d", len(seedPermissions), permCount)
	}
}
