package storage

import (
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"

	"chorus-server-go/internal/platform/errors"
)

// TrainingJobRecord is the persisted shape of a training job. Structured
// fields (samples, params, estimate, quality, log) live in JSON columns so
// the row survives schema drift in those payloads.
type TrainingJobRecord struct {
	ID              string  `gorm:"type:varchar(36);primaryKey"`
	OwnerID         string  `gorm:"type:varchar(255);index;not null"`
	Provider        string  `gorm:"type:varchar(32);not null"`
	ModelName       string  `gorm:"type:varchar(255)"`
	Status          string  `gorm:"type:varchar(16);index;not null"`
	Stage           string  `gorm:"type:varchar(16)"`
	Progress        float64 `gorm:"default:0"`
	Priority        int     `gorm:"default:0"`
	Retries         int     `gorm:"default:0"`
	MaxRetries      int     `gorm:"default:0"`
	CancelRequested bool    `gorm:"default:false"`
	Samples         datatypes.JSON
	Params          datatypes.JSON
	Estimate        datatypes.JSON
	ActualCost      float64 `gorm:"default:0"`
	Quality         datatypes.JSON
	VoiceModelID    string `gorm:"type:varchar(36)"`
	Error           string `gorm:"type:text"`
	Log             datatypes.JSON
	NotBefore       *time.Time
	CreatedAt       time.Time `gorm:"index;not null"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

func (TrainingJobRecord) TableName() string {
	return "training_jobs"
}

// VoiceModelRecord is the persisted shape of a trained voice model.
type VoiceModelRecord struct {
	ID            string `gorm:"type:varchar(36);primaryKey"`
	OwnerID       string `gorm:"type:varchar(255);index;not null"`
	Provider      string `gorm:"type:varchar(32);not null"`
	Name          string `gorm:"type:varchar(255);not null"`
	Language      string `gorm:"type:varchar(16)"`
	JobID         string `gorm:"type:varchar(36);index"`
	StoragePath   string `gorm:"type:varchar(512)"`
	ReferenceText string `gorm:"type:text"`
	Quality       float64
	Active        bool   `gorm:"index;default:false"`
	Status        string `gorm:"type:varchar(16);index;not null"`
	SampleCount   int
	SampleSeconds float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (VoiceModelRecord) TableName() string {
	return "voice_models"
}

// JobEventRecord stores one training lifecycle event. The full payload is
// kept as JSON; the indexed columns exist for querying.
type JobEventRecord struct {
	ID        uint           `gorm:"primaryKey"`
	JobID     string         `gorm:"type:varchar(36);index;not null"`
	OwnerID   string         `gorm:"type:varchar(255);index"`
	Status    string         `gorm:"type:varchar(16)"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

func (JobEventRecord) TableName() string {
	return "job_events"
}

// CacheEntryRecord is the write-through row behind the sqlite cache store.
// A NULL expires_at means the entry never expires.
type CacheEntryRecord struct {
	Key          string `gorm:"type:varchar(64);primaryKey"`
	Audio        []byte `gorm:"not null"`
	Compressed   bool
	Format       string `gorm:"type:varchar(16)"`
	SampleRate   int
	DurationMs   int64
	Provider     string `gorm:"type:varchar(32)"`
	Cost         float64
	HitCount     int64 `gorm:"default:0"`
	CreatedAt    time.Time
	LastAccessed time.Time  `gorm:"index"`
	ExpiresAt    *time.Time `gorm:"index"`
}

func (CacheEntryRecord) TableName() string {
	return "cache_entries"
}

// marshalJSON encodes a payload for a JSON column.
func marshalJSON(op string, v interface{}) (datatypes.JSON, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "cannot encode json column", err)
	}
	return datatypes.JSON(data), nil
}

// unmarshalJSON decodes a JSON column, tolerating empty and null values.
func unmarshalJSON(op string, data datatypes.JSON, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.KindStorage, op, "corrupt json column", err)
	}
	return nil
}
