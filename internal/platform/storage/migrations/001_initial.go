package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the core tables: training jobs, voice models
// and the job event history.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create training job, voice model and job event tables"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	// Raw SQL keeps the schema explicit; AutoMigrate covers the same tables
	// as a safety net on fresh databases.
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS training_jobs (
			id VARCHAR(36) PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			model_name VARCHAR(255),
			status VARCHAR(16) NOT NULL,
			stage VARCHAR(16),
			progress REAL DEFAULT 0,
			priority INTEGER DEFAULT 0,
			retries INTEGER DEFAULT 0,
			max_retries INTEGER DEFAULT 0,
			cancel_requested BOOLEAN DEFAULT FALSE,
			samples JSON,
			params JSON,
			estimate JSON,
			actual_cost REAL DEFAULT 0,
			quality JSON,
			voice_model_id VARCHAR(36),
			error TEXT,
			log JSON,
			not_before DATETIME,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS voice_models (
			id VARCHAR(36) PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			name VARCHAR(255) NOT NULL,
			language VARCHAR(16),
			job_id VARCHAR(36),
			storage_path VARCHAR(512),
			reference_text TEXT,
			quality REAL DEFAULT 0,
			active BOOLEAN DEFAULT FALSE,
			status VARCHAR(16) NOT NULL,
			sample_count INTEGER DEFAULT 0,
			sample_seconds REAL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS job_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id VARCHAR(36) NOT NULL,
			owner_id VARCHAR(255),
			status VARCHAR(16),
			data JSON NOT NULL,
			created_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_training_jobs_owner_id ON training_jobs(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_training_jobs_status ON training_jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_training_jobs_created_at ON training_jobs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_models_owner_id ON voice_models(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_models_job_id ON voice_models(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_models_status ON voice_models(status)`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_owner_id ON job_events(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_created_at ON job_events(created_at)`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS job_events`).Error; err != nil {
		return err
	}
	if err := db.Exec(`DROP TABLE IF EXISTS voice_models`).Error; err != nil {
		return err
	}
	if err := db.Exec(`DROP TABLE IF EXISTS training_jobs`).Error; err != nil {
		return err
	}

	return nil
}
