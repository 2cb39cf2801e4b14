package storage

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"chorus-server-go/internal/domain/training"
	"chorus-server-go/internal/platform/errors"
)

type trainingJobRepository struct {
	db *gorm.DB
}

// NewTrainingJobRepository creates the gorm-backed training job store.
func NewTrainingJobRepository(db *gorm.DB) training.JobRepository {
	return &trainingJobRepository{
		db: db,
	}
}

func (r *trainingJobRepository) Save(ctx context.Context, job *training.Job) error {
	record, err := r.toRecord(job)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "job.save", "failed to save training job", err)
	}
	return nil
}

func (r *trainingJobRepository) FindByID(ctx context.Context, id string) (*training.Job, error) {
	var record TrainingJobRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "job.find_by_id", "failed to find training job", err)
	}
	return r.fromRecord(&record)
}

func (r *trainingJobRepository) Update(ctx context.Context, job *training.Job) error {
	record, err := r.toRecord(job)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "job.update", "failed to update training job", err)
	}
	return nil
}

// UpdateProgress appends one log event and overwrites stage and progress,
// leaving status and the rest of the row to the transition updates.
func (r *trainingJobRepository) UpdateProgress(ctx context.Context, id string, stage training.Stage, progress float64, event training.StageEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record TrainingJobRecord
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.New(errors.KindStorage, "job.update_progress", "training job not found")
			}
			return errors.Wrap(errors.KindStorage, "job.update_progress", "failed to load training job", err)
		}

		var log []training.StageEvent
		if err := unmarshalJSON("job.update_progress", record.Log, &log); err != nil {
			return err
		}
		log = append(log, event)
		encoded, err := marshalJSON("job.update_progress", log)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"stage":    string(stage),
			"progress": progress,
			"log":      encoded,
		}
		if err := tx.Model(&TrainingJobRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "job.update_progress", "failed to update progress", err)
		}
		return nil
	})
}

// RequestCancel flips the cancellation flag without touching the rest of the
// row.
func (r *trainingJobRepository) RequestCancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&TrainingJobRecord{}).Where("id = ?", id).
		Update("cancel_requested", true)
	if result.Error != nil {
		return errors.Wrap(errors.KindStorage, "job.request_cancel", "failed to flag cancellation", result.Error)
	}
	return nil
}

func (r *trainingJobRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*training.Job, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&TrainingJobRecord{}).
		Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(errors.KindStorage, "job.list_by_owner", "failed to count training jobs", err)
	}

	var records []TrainingJobRecord
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, errors.Wrap(errors.KindStorage, "job.list_by_owner", "failed to list training jobs", err)
	}

	jobs := make([]*training.Job, len(records))
	for i := range records {
		job, err := r.fromRecord(&records[i])
		if err != nil {
			return nil, 0, err
		}
		jobs[i] = job
	}
	return jobs, total, nil
}

func (r *trainingJobRepository) FindByStatus(ctx context.Context, status training.Status) ([]*training.Job, error) {
	var records []TrainingJobRecord
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).
		Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "job.find_by_status", "failed to find training jobs", err)
	}

	jobs := make([]*training.Job, len(records))
	for i := range records {
		job, err := r.fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		jobs[i] = job
	}
	return jobs, nil
}

func (r *trainingJobRepository) toRecord(job *training.Job) (*TrainingJobRecord, error) {
	samples, err := marshalJSON("job.encode", job.Samples)
	if err != nil {
		return nil, err
	}
	params, err := marshalJSON("job.encode", job.Params)
	if err != nil {
		return nil, err
	}
	estimate, err := marshalJSON("job.encode", job.Estimate)
	if err != nil {
		return nil, err
	}
	log, err := marshalJSON("job.encode", job.Log)
	if err != nil {
		return nil, err
	}
	var quality datatypes.JSON
	if job.Quality != nil {
		if quality, err = marshalJSON("job.encode", job.Quality); err != nil {
			return nil, err
		}
	}

	record := &TrainingJobRecord{
		ID:              job.ID,
		OwnerID:         job.OwnerID,
		Provider:        job.Provider,
		ModelName:       job.ModelName,
		Status:          string(job.Status),
		Stage:           string(job.Stage),
		Progress:        job.Progress,
		Priority:        job.Priority,
		Retries:         job.Retries,
		MaxRetries:      job.MaxRetries,
		CancelRequested: job.CancelRequested,
		Samples:         samples,
		Params:          params,
		Estimate:        estimate,
		ActualCost:      job.ActualCost,
		Quality:         quality,
		VoiceModelID:    job.VoiceModelID,
		Error:           job.Error,
		Log:             log,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
	if !job.NotBefore.IsZero() {
		notBefore := job.NotBefore
		record.NotBefore = &notBefore
	}
	return record, nil
}

func (r *trainingJobRepository) fromRecord(record *TrainingJobRecord) (*training.Job, error) {
	job := &training.Job{
		ID:              record.ID,
		OwnerID:         record.OwnerID,
		Provider:        record.Provider,
		ModelName:       record.ModelName,
		Status:          training.Status(record.Status),
		Stage:           training.Stage(record.Stage),
		Progress:        record.Progress,
		Priority:        record.Priority,
		Retries:         record.Retries,
		MaxRetries:      record.MaxRetries,
		CancelRequested: record.CancelRequested,
		ActualCost:      record.ActualCost,
		VoiceModelID:    record.VoiceModelID,
		Error:           record.Error,
		CreatedAt:       record.CreatedAt,
		StartedAt:       record.StartedAt,
		CompletedAt:     record.CompletedAt,
	}
	if record.NotBefore != nil {
		job.NotBefore = *record.NotBefore
	}

	if err := unmarshalJSON("job.decode", record.Samples, &job.Samples); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("job.decode", record.Params, &job.Params); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("job.decode", record.Estimate, &job.Estimate); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("job.decode", record.Log, &job.Log); err != nil {
		return nil, err
	}
	if len(record.Quality) > 0 && string(record.Quality) != "null" {
		var quality training.QualityMetrics
		if err := unmarshalJSON("job.decode", record.Quality, &quality); err != nil {
			return nil, err
		}
		job.Quality = &quality
	}
	return job, nil
}
