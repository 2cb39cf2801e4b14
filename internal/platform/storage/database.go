// Package storage is the gorm/sqlite persistence layer: training jobs, voice
// models, the job event history and the optional write-through cache store.
// Repositories here implement the interfaces the owning domains declare.
package storage

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chorus-server-go/internal/platform/config"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/storage/migrations"
)

// InitDatabase opens the sqlite database, creating its directory when needed,
// and brings the schema up to date.
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "data/chorus.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.init", "cannot create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.init", "cannot open database", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs AutoMigrate for the record types, then the versioned
// migrations for everything AutoMigrate cannot express (partial indexes).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&TrainingJobRecord{},
		&VoiceModelRecord{},
		&JobEventRecord{},
		&CacheEntryRecord{},
	); err != nil {
		return errors.Wrap(errors.KindStorage, "storage.migrate", "auto-migration failed", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})
	manager.AddMigration(&migrations.Migration002ModelActivation{})
	manager.AddMigration(&migrations.Migration003CacheEntries{})
	return manager.RunMigrations()
}
