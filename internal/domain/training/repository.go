package training

import "context"

// JobRepository persists training jobs. Lookups return (nil, nil) when the
// row does not exist so callers can map absence to their own error kind.
type JobRepository interface {
	// Save inserts a new job.
	Save(ctx context.Context, job *Job) error

	// FindByID loads one job.
	FindByID(ctx context.Context, id string) (*Job, error)

	// Update overwrites the whole job row after a status transition.
	Update(ctx context.Context, job *Job) error

	// UpdateProgress appends one log event and overwrites stage and
	// progress without touching the rest of the row, so concurrent status
	// changes are not clobbered by a progress tick.
	UpdateProgress(ctx context.Context, id string, stage Stage, progress float64, event StageEvent) error

	// RequestCancel flips the cancellation flag without touching the rest
	// of the row.
	RequestCancel(ctx context.Context, id string) error

	// ListByOwner pages an owner's jobs newest-first and reports the total
	// count for pagination.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Job, int64, error)

	// FindByStatus loads every job in the given status, oldest first. Used
	// for crash recovery at startup.
	FindByStatus(ctx context.Context, status Status) ([]*Job, error)
}

// ModelRepository persists voice models.
type ModelRepository interface {
	// Save inserts a new model.
	Save(ctx context.Context, model *VoiceModel) error

	// FindByID loads one model.
	FindByID(ctx context.Context, id string) (*VoiceModel, error)

	// FindByJobID loads the model claimed by a training job, or (nil, nil).
	// Retried jobs reuse their provisional row instead of inserting twins.
	FindByJobID(ctx context.Context, jobID string) (*VoiceModel, error)

	// Update overwrites the model row.
	Update(ctx context.Context, model *VoiceModel) error

	// ListByOwner returns an owner's models newest-first.
	ListByOwner(ctx context.Context, ownerID string) ([]*VoiceModel, error)

	// FindActiveByOwner returns the owner's single active model, or
	// (nil, nil) when none is active.
	FindActiveByOwner(ctx context.Context, ownerID string) (*VoiceModel, error)

	// Activate flips the given model active and deactivates the owner's
	// other models in the same transaction.
	Activate(ctx context.Context, id, ownerID string) error

	// Delete removes the model row.
	Delete(ctx context.Context, id string) error
}
