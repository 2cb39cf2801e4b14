package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chorus-server-go/internal/domain/training"
	"chorus-server-go/internal/platform/errors"
)

type voiceModelRepository struct {
	db *gorm.DB
}

// NewVoiceModelRepository creates the gorm-backed voice model store.
func NewVoiceModelRepository(db *gorm.DB) training.ModelRepository {
	return &voiceModelRepository{
		db: db,
	}
}

func (r *voiceModelRepository) Save(ctx context.Context, model *training.VoiceModel) error {
	if err := r.db.WithContext(ctx).Create(r.toRecord(model)).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "model.save", "failed to save voice model", err)
	}
	return nil
}

func (r *voiceModelRepository) FindByID(ctx context.Context, id string) (*training.VoiceModel, error) {
	var record VoiceModelRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "model.find_by_id", "failed to find voice model", err)
	}
	return r.fromRecord(&record), nil
}

func (r *voiceModelRepository) FindByJobID(ctx context.Context, jobID string) (*training.VoiceModel, error) {
	var record VoiceModelRecord
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "model.find_by_job_id", "failed to find voice model", err)
	}
	return r.fromRecord(&record), nil
}

func (r *voiceModelRepository) Update(ctx context.Context, model *training.VoiceModel) error {
	if err := r.db.WithContext(ctx).Save(r.toRecord(model)).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "model.update", "failed to update voice model", err)
	}
	return nil
}

func (r *voiceModelRepository) ListByOwner(ctx context.Context, ownerID string) ([]*training.VoiceModel, error) {
	var records []VoiceModelRecord
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "model.list_by_owner", "failed to list voice models", err)
	}

	models := make([]*training.VoiceModel, len(records))
	for i := range records {
		models[i] = r.fromRecord(&records[i])
	}
	return models, nil
}

func (r *voiceModelRepository) FindActiveByOwner(ctx context.Context, ownerID string) (*training.VoiceModel, error) {
	var record VoiceModelRecord
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND active = ?", ownerID, true).
		First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "model.find_active", "failed to find active voice model", err)
	}
	return r.fromRecord(&record), nil
}

// Activate flips the model active and deactivates the owner's other models in
// the same transaction. Deactivation runs first so the partial unique index
// on (owner_id, active) never sees two active rows.
func (r *voiceModelRepository) Activate(ctx context.Context, id, ownerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&VoiceModelRecord{}).
			Where("owner_id = ? AND active = ? AND id <> ?", ownerID, true, id).
			Updates(map[string]interface{}{"active": false, "updated_at": now}).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "model.activate", "failed to deactivate previous model", err)
		}

		result := tx.Model(&VoiceModelRecord{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Updates(map[string]interface{}{"active": true, "updated_at": now})
		if result.Error != nil {
			return errors.Wrap(errors.KindStorage, "model.activate", "failed to activate model", result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.New(errors.KindNotFound, "model.activate", "voice model not found")
		}
		return nil
	})
}

func (r *voiceModelRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&VoiceModelRecord{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "model.delete", "failed to delete voice model", err)
	}
	return nil
}

func (r *voiceModelRepository) toRecord(model *training.VoiceModel) *VoiceModelRecord {
	return &VoiceModelRecord{
		ID:            model.ID,
		OwnerID:       model.OwnerID,
		Provider:      model.Provider,
		Name:          model.Name,
		Language:      model.Language,
		JobID:         model.JobID,
		StoragePath:   model.StoragePath,
		ReferenceText: model.ReferenceText,
		Quality:       model.Quality,
		Active:        model.Active,
		Status:        string(model.Status),
		SampleCount:   model.SampleCount,
		SampleSeconds: model.SampleSeconds,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func (r *voiceModelRepository) fromRecord(record *VoiceModelRecord) *training.VoiceModel {
	return &training.VoiceModel{
		ID:            record.ID,
		OwnerID:       record.OwnerID,
		Provider:      record.Provider,
		Name:          record.Name,
		Language:      record.Language,
		JobID:         record.JobID,
		StoragePath:   record.StoragePath,
		ReferenceText: record.ReferenceText,
		Quality:       record.Quality,
		Active:        record.Active,
		Status:        training.ModelStatus(record.Status),
		SampleCount:   record.SampleCount,
		SampleSeconds: record.SampleSeconds,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}
