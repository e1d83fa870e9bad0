// internal/database/testing.go
package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/remix-engine/internal/config"
)

// NewTestDB opens a private in-memory SQLite database with the schema
// migrated. Each call gets its own database.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := Initialize(config.DatabaseConfig{
		Driver:      "sqlite",
		SQLitePath:  fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
		MaxLifetime: 0,
		LogLevel:    "silent",
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := RunMigrations(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() { Close(db) })
	return db
}
