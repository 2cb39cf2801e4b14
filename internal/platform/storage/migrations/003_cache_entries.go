package migrations

import (
	"gorm.io/gorm"
)

// Migration003CacheEntries creates the write-through cache table used when
// the cache driver is sqlite.
type Migration003CacheEntries struct{}

func (m *Migration003CacheEntries) Version() string {
	return "003_cache_entries"
}

func (m *Migration003CacheEntries) Description() string {
	return "Create the synthesis cache table"
}

func (m *Migration003CacheEntries) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key VARCHAR(64) PRIMARY KEY,
			audio BLOB NOT NULL,
			compressed BOOLEAN DEFAULT FALSE,
			format VARCHAR(16),
			sample_rate INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			provider VARCHAR(32),
			cost REAL DEFAULT 0,
			hit_count INTEGER DEFAULT 0,
			created_at DATETIME,
			last_accessed DATETIME,
			expires_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_entries_last_accessed ON cache_entries(last_accessed)`).Error
}

func (m *Migration003CacheEntries) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS cache_entries`).Error
}
