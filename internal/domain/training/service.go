package training

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ServiceOptions carry the enqueue-time defaults.
type ServiceOptions struct {
	MaxRetries       int
	Epochs           int
	MinSampleSeconds float64
}

func (o ServiceOptions) withDefaults() ServiceOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Epochs <= 0 {
		o.Epochs = 10
	}
	if o.MinSampleSeconds <= 0 {
		o.MinSampleSeconds = 3.0
	}
	return o
}

// Service is the training API surface: enqueue, status, cancel, list, plus
// the voice-model read/activate/delete operations.
type Service struct {
	jobs      JobRepository
	models    ModelRepository
	queue     *Queue
	estimator *Estimator
	logger    *logging.Logger
	opts      ServiceOptions
}

// NewService wires the facade.
func NewService(jobs JobRepository, models ModelRepository, queue *Queue, estimator *Estimator, logger *logging.Logger, opts ServiceOptions) *Service {
	return &Service{
		jobs:      jobs,
		models:    models,
		queue:     queue,
		estimator: estimator,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// EnqueueTraining validates the request, prices it and hands the job to the
// queue. The returned job carries the fresh ID and the cost estimate.
func (s *Service) EnqueueTraining(ctx context.Context, ownerID, provider, modelName string, samples []SampleRef, params Params, priority int) (*Job, error) {
	if !s.estimator.Supports(provider) {
		return nil, errors.New(errors.KindInvalidRequest, "training.enqueue",
			"provider "+provider+" does not support voice training")
	}
	if err := s.inspectSamples(samples); err != nil {
		return nil, err
	}
	if params.Epochs <= 0 {
		params.Epochs = s.opts.Epochs
	}
	if modelName == "" {
		modelName = "voice-" + uuid.NewString()[:8]
	}

	estimate, err := s.estimator.Estimate(provider, samples, params)
	if err != nil {
		return nil, err
	}

	job, err := NewJob(ownerID, provider, modelName, samples, params, priority, s.opts.MaxRetries)
	if err != nil {
		return nil, err
	}
	job.Estimate = estimate

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoTag(logTag, "job %s queued for %s: %d samples, est $%.4f",
			job.ID, ownerID, len(samples), estimate.Total)
	}
	return job, nil
}

// inspectSamples fills in metadata for inline samples and rejects requests
// that are already known to be invalid. The processor re-verifies against
// the real bytes before training.
func (s *Service) inspectSamples(samples []SampleRef) error {
	if len(samples) == 0 {
		return errors.New(errors.KindInvalidRequest, "training.enqueue",
			"at least one reference sample is required")
	}
	for i := range samples {
		ref := &samples[i]
		if len(ref.Data) == 0 && ref.Path == "" {
			return errors.New(errors.KindInvalidRequest, "training.enqueue",
				fmt.Sprintf("sample %d has neither data nor path", i+1))
		}
		if len(ref.Data) > 0 {
			ref.SizeBytes = int64(len(ref.Data))
			if f := util.DetectFormat(ref.Data); f != "" {
				ref.Format = f
				if d, err := util.ProbeDuration(ref.Data, f); err == nil {
					ref.DurationSeconds = d.Seconds()
				}
			}
		}
		if ref.DurationSeconds > 0 && ref.DurationSeconds < s.opts.MinSampleSeconds {
			return errors.New(errors.KindInvalidRequest, "training.enqueue",
				fmt.Sprintf("sample %d is %.1fs, below the %.1fs minimum",
					i+1, ref.DurationSeconds, s.opts.MinSampleSeconds))
		}
	}
	return nil
}

// GetTrainingStatus returns the live snapshot of one job.
func (s *Service) GetTrainingStatus(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "training.status", "cannot load job", err)
	}
	if job == nil {
		return nil, errors.New(errors.KindNotFound, "training.status", "job not found")
	}
	return job, nil
}

// CancelTraining stops a job on behalf of its owner.
func (s *Service) CancelTraining(ctx context.Context, jobID, ownerID string) error {
	return s.queue.Cancel(ctx, jobID, ownerID)
}

// ListJobs pages an owner's jobs newest-first.
func (s *Service) ListJobs(ctx context.Context, ownerID string, page, pageSize int) ([]*Job, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	jobs, total, err := s.jobs.ListByOwner(ctx, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, errors.Wrap(errors.KindStorage, "training.list", "cannot list jobs", err)
	}
	return jobs, total, nil
}

// ListModels returns an owner's voice models.
func (s *Service) ListModels(ctx context.Context, ownerID string) ([]*VoiceModel, error) {
	models, err := s.models.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "training.models", "cannot list models", err)
	}
	return models, nil
}

// GetModel loads one voice model.
func (s *Service) GetModel(ctx context.Context, id string) (*VoiceModel, error) {
	model, err := s.models.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "training.models", "cannot load model", err)
	}
	if model == nil {
		return nil, errors.New(errors.KindNotFound, "training.models", "voice model not found")
	}
	return model, nil
}

// ActiveModel returns the owner's active voice model, or nil when none is
// active.
func (s *Service) ActiveModel(ctx context.Context, ownerID string) (*VoiceModel, error) {
	model, err := s.models.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "training.models", "cannot load active model", err)
	}
	return model, nil
}

// ActivateModel makes one model the owner's active voice, deactivating the
// others in the same transaction.
func (s *Service) ActivateModel(ctx context.Context, id, ownerID string) error {
	model, err := s.models.FindByID(ctx, id)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "training.activate", "cannot load model", err)
	}
	if model == nil || (ownerID != "" && model.OwnerID != ownerID) {
		return errors.New(errors.KindNotFound, "training.activate", "voice model not found")
	}
	if model.Status != ModelStatusReady {
		return errors.New(errors.KindInvalidRequest, "training.activate",
			"model is "+string(model.Status)+", not ready")
	}
	if err := s.models.Activate(ctx, model.ID, model.OwnerID); err != nil {
		return errors.Wrap(errors.KindStorage, "training.activate", "cannot activate model", err)
	}
	return nil
}

// DeleteModel removes a model row and its artifact.
func (s *Service) DeleteModel(ctx context.Context, id, ownerID string) error {
	model, err := s.models.FindByID(ctx, id)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "training.delete", "cannot load model", err)
	}
	if model == nil || (ownerID != "" && model.OwnerID != ownerID) {
		return errors.New(errors.KindNotFound, "training.delete", "voice model not found")
	}
	if err := s.models.Delete(ctx, model.ID); err != nil {
		return errors.Wrap(errors.KindStorage, "training.delete", "cannot delete model", err)
	}
	if model.StoragePath != "" {
		if err := os.Remove(model.StoragePath); err != nil && !os.IsNotExist(err) && s.logger != nil {
			s.logger.WarnTag(logTag, "cannot remove artifact %s: %v", model.StoragePath, err)
		}
	}
	return nil
}
