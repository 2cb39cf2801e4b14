package training

import (
	"time"

	"github.com/google/uuid"
)

// ModelStatus is the lifecycle state of a voice model.
type ModelStatus string

const (
	// ModelStatusTraining marks a model whose job is still running.
	ModelStatusTraining ModelStatus = "training"
	// ModelStatusReady marks a model that passed validation and can render.
	ModelStatusReady ModelStatus = "ready"
	// ModelStatusFailed marks a model whose job failed or fell below the
	// quality threshold; it never renders.
	ModelStatusFailed ModelStatus = "failed"
)

// VoiceModel is a trained voice owned by one account. At most one model per
// owner is active at a time; the store flips siblings off in the same
// transaction that activates one.
type VoiceModel struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	Provider      string      `json:"provider"`
	Name          string      `json:"name"`
	Language      string      `json:"language,omitempty"`
	JobID         string      `json:"job_id"`
	StoragePath   string      `json:"storage_path,omitempty"`
	ReferenceText string      `json:"reference_text,omitempty"`
	Quality       float64     `json:"quality"`
	Active        bool        `json:"active"`
	Status        ModelStatus `json:"status"`
	SampleCount   int         `json:"sample_count"`
	SampleSeconds float64     `json:"sample_seconds"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewVoiceModel builds a model row in the training state, claimed by the
// given job.
func NewVoiceModel(ownerID, provider, name, language, jobID string) *VoiceModel {
	now := time.Now()
	return &VoiceModel{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Provider:  provider,
		Name:      name,
		Language:  language,
		JobID:     jobID,
		Status:    ModelStatusTraining,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkReady records a validated artifact and flips the model renderable.
func (m *VoiceModel) MarkReady(storagePath string, quality float64) {
	m.StoragePath = storagePath
	m.Quality = quality
	m.Status = ModelStatusReady
	m.UpdatedAt = time.Now()
}

// MarkFailed records a failed or rejected training run. The artifact path is
// cleared because the file is removed alongside.
func (m *VoiceModel) MarkFailed(quality float64) {
	m.StoragePath = ""
	m.Quality = quality
	m.Active = false
	m.Status = ModelStatusFailed
	m.UpdatedAt = time.Now()
}

// Renderable reports whether the model can serve synthesis requests.
func (m *VoiceModel) Renderable() bool {
	return m.Status == ModelStatusReady && m.StoragePath != ""
}
