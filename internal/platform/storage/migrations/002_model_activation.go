package migrations

import (
	"gorm.io/gorm"
)

// Migration002ModelActivation enforces at most one active voice model per
// owner with a partial unique index, which AutoMigrate cannot express.
type Migration002ModelActivation struct{}

func (m *Migration002ModelActivation) Version() string {
	return "002_model_activation"
}

func (m *Migration002ModelActivation) Description() string {
	return "Enforce one active voice model per owner"
}

func (m *Migration002ModelActivation) Up(db *gorm.DB) error {
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uix_voice_models_owner_active
		ON voice_models(owner_id) WHERE active = 1
	`).Error
}

func (m *Migration002ModelActivation) Down(db *gorm.DB) error {
	return db.Exec(`DROP INDEX IF EXISTS uix_voice_models_owner_active`).Error
}
