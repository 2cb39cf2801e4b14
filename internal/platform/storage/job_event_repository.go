package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chorus-server-go/internal/domain/eventbus"
	"chorus-server-go/internal/platform/errors"
)

// JobEventRepository persists the training event stream. It feeds the bus's
// persistence sink and serves the job detail endpoint's event history.
type JobEventRepository struct {
	db *gorm.DB
}

func NewJobEventRepository(db *gorm.DB) *JobEventRepository {
	return &JobEventRepository{
		db: db,
	}
}

// RecordJobEvent stores one lifecycle event.
func (r *JobEventRepository) RecordJobEvent(ctx context.Context, event eventbus.JobEvent) error {
	data, err := marshalJSON("event.record", event)
	if err != nil {
		return err
	}

	record := &JobEventRecord{
		JobID:     event.JobID,
		OwnerID:   event.OwnerID,
		Status:    event.Status,
		Data:      data,
		CreatedAt: event.At,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.record", "failed to save job event", err)
	}
	return nil
}

// ListByJobID returns a job's events oldest-first. A limit of zero returns
// everything.
func (r *JobEventRepository) ListByJobID(ctx context.Context, jobID string, limit int) ([]eventbus.JobEvent, error) {
	query := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []JobEventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.list", "failed to list job events", err)
	}

	events := make([]eventbus.JobEvent, 0, len(records))
	for i := range records {
		var event eventbus.JobEvent
		if err := unmarshalJSON("event.decode", records[i].Data, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
