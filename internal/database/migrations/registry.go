// Package migrations provides database migration management for tvarr-replay.
package migrations

import (
	"github.com/jmylchreest/tvarr-replay/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates the catalog and scheduler tables using
// GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create catalog and job tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.CatalogEntry{},
				&models.Job{},
				&models.JobHistory{},
			)
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				"job_history",
				"jobs",
				"catalog_entries",
			)
		},
	}
}
