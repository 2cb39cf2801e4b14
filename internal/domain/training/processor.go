package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chorus-server-go/internal/domain/eventbus"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

const logTag = "Training"

// Simulated convergence curve: the loss halves each epoch from lossStart,
// and an epoch improving less than lossMinDelta counts toward the
// early-stopping patience.
const (
	lossStart    = 0.9
	lossDecay    = 0.5
	lossMinDelta = 0.01
)

// ProcessorOptions tune one processor. Zero values fall back to the
// defaults below.
type ProcessorOptions struct {
	StorageDir       string
	Epochs           int
	QualityThreshold float64
	MinSampleSeconds float64
	Patience         int
	// EpochDuration is the simulated wall time per training epoch. Tests
	// shrink it to keep runs instant.
	EpochDuration time.Duration
	Assessor      QualityAssessor
}

func (o ProcessorOptions) withDefaults() ProcessorOptions {
	if o.StorageDir == "" {
		o.StorageDir = "data/models"
	}
	if o.Epochs <= 0 {
		o.Epochs = 10
	}
	if o.QualityThreshold <= 0 {
		o.QualityThreshold = 0.7
	}
	if o.MinSampleSeconds <= 0 {
		o.MinSampleSeconds = 3.0
	}
	if o.Patience <= 0 {
		o.Patience = 2
	}
	if o.EpochDuration <= 0 {
		o.EpochDuration = 200 * time.Millisecond
	}
	if o.Assessor == nil {
		o.Assessor = HeuristicAssessor
	}
	return o
}

// RunOutcome is what a successful run hands back to the queue.
type RunOutcome struct {
	Model      *VoiceModel
	Quality    QualityMetrics
	ActualCost float64
}

// Processor executes one training job through its fixed stages, persisting
// every progress tick and publishing it on the bus. Cancellation is
// cooperative: the context is checked at stage boundaries and between
// epochs, never mid-stage.
type Processor struct {
	jobs   JobRepository
	models ModelRepository
	bus    *eventbus.Bus
	logger *logging.Logger
	opts   ProcessorOptions
}

// NewProcessor wires a processor to its stores and bus. bus and logger may
// be nil (tests).
func NewProcessor(jobs JobRepository, models ModelRepository, bus *eventbus.Bus, logger *logging.Logger, opts ProcessorOptions) *Processor {
	return &Processor{
		jobs:   jobs,
		models: models,
		bus:    bus,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

type preparedSample struct {
	data    []byte
	format  string
	seconds float64
}

// Run drives a RUNNING job to its outcome. It mutates the job's stage,
// progress, log and quality in place; status transitions stay with the
// caller. A context error means the job was cancelled at a boundary.
func (p *Processor) Run(ctx context.Context, job *Job) (*RunOutcome, error) {
	prepared, err := p.preprocess(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, epochs, err := p.initialize(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	epochsRun, err := p.train(ctx, job, epochs)
	if err != nil {
		return nil, err
	}

	artifact, err := p.writeWorkArtifact(job, prepared)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics, err := p.validate(ctx, job, artifact)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.finalize(ctx, job, model, artifact, metrics, epochsRun, epochs)
}

// preprocess checks every reference sample: readable, known container, long
// enough. Violations are itemized and fail the job permanently; retrying
// would not fix bad input.
func (p *Processor) preprocess(ctx context.Context, job *Job) ([]preparedSample, error) {
	p.advance(ctx, job, StagePreprocessing, 0,
		fmt.Sprintf("validating %d reference samples", len(job.Samples)))

	var issues []string
	prepared := make([]preparedSample, 0, len(job.Samples))
	for i := range job.Samples {
		s := &job.Samples[i]

		data := s.Data
		if len(data) == 0 && s.Path != "" {
			var err error
			data, err = os.ReadFile(s.Path)
			if err != nil {
				issues = append(issues, fmt.Sprintf("sample %d unreadable: %v", i+1, err))
				continue
			}
		}
		if len(data) == 0 {
			issues = append(issues, fmt.Sprintf("sample %d is empty", i+1))
			continue
		}

		format := util.DetectFormat(data)
		if format == "" {
			issues = append(issues, fmt.Sprintf("sample %d has an unrecognized container", i+1))
			continue
		}

		seconds := s.DurationSeconds
		if d, err := util.ProbeDuration(data, format); err == nil {
			seconds = d.Seconds()
		}
		if seconds <= 0 {
			issues = append(issues, fmt.Sprintf("sample %d duration unknown", i+1))
			continue
		}
		if seconds < p.opts.MinSampleSeconds {
			issues = append(issues, fmt.Sprintf("sample %d is %.1fs, below the %.1fs minimum",
				i+1, seconds, p.opts.MinSampleSeconds))
			continue
		}

		s.Format = format
		s.DurationSeconds = seconds
		s.SizeBytes = int64(len(data))
		prepared = append(prepared, preparedSample{data: data, format: format, seconds: seconds})

		p.progress(ctx, job, progressPreprocessed*float64(i+1)/float64(len(job.Samples)),
			fmt.Sprintf("sample %d/%d: %s, %.1fs", i+1, len(job.Samples), format, seconds))
	}

	if len(issues) > 0 {
		vErr := &ValidationError{
			Issues: issues,
			Recommendations: []string{
				"re-record samples shorter than the minimum reference duration",
				"convert unsupported containers to wav or mp3",
			},
		}
		return nil, errors.Wrap(errors.KindValidationFailed, "training.preprocess",
			"reference samples rejected", vErr)
	}
	return prepared, nil
}

// initialize prepares the storage layout and the provisional model row. A
// retried job reuses the row from its earlier attempt.
func (p *Processor) initialize(ctx context.Context, job *Job) (*VoiceModel, int, error) {
	p.advance(ctx, job, StageInitializing, progressPreprocessed, "preparing training environment")

	if err := os.MkdirAll(filepath.Join(p.opts.StorageDir, "work"), 0o755); err != nil {
		return nil, 0, errors.Wrap(errors.KindInternal, "training.initialize",
			"cannot create model storage", err)
	}

	model, err := p.models.FindByJobID(ctx, job.ID)
	if err != nil {
		return nil, 0, err
	}
	if model == nil {
		model = NewVoiceModel(job.OwnerID, job.Provider, job.ModelName, job.Params.Language, job.ID)
		if err := p.models.Save(ctx, model); err != nil {
			return nil, 0, err
		}
	} else if model.Status != ModelStatusTraining {
		model.Status = ModelStatusTraining
		model.UpdatedAt = time.Now()
		if err := p.models.Update(ctx, model); err != nil {
			return nil, 0, err
		}
	}

	epochs := job.Params.Epochs
	if epochs <= 0 {
		epochs = p.opts.Epochs
	}
	return model, epochs, nil
}

// train walks the epoch loop, reporting progress inside the 10-85 band and
// stopping early once the loss curve plateaus for the configured patience.
func (p *Processor) train(ctx context.Context, job *Job, epochs int) (int, error) {
	p.advance(ctx, job, StageTraining, progressPreprocessed,
		fmt.Sprintf("training for up to %d epochs", epochs))

	patience := job.Params.Patience
	if patience <= 0 {
		patience = p.opts.Patience
	}

	loss := lossStart
	noImprove := 0
	band := progressTrained - progressPreprocessed

	for epoch := 1; epoch <= epochs; epoch++ {
		select {
		case <-ctx.Done():
			return epoch - 1, ctx.Err()
		case <-time.After(p.opts.EpochDuration):
		}

		next := loss * lossDecay
		if loss-next < lossMinDelta {
			noImprove++
		} else {
			noImprove = 0
		}
		loss = next

		p.progress(ctx, job, progressPreprocessed+band*float64(epoch)/float64(epochs),
			fmt.Sprintf("epoch %d/%d loss %.4f", epoch, epochs, loss))

		if noImprove >= patience {
			p.progress(ctx, job, job.Progress, fmt.Sprintf("early stopping after epoch %d", epoch))
			return epoch, nil
		}
	}
	return epochs, nil
}

// writeWorkArtifact assembles the checkpoint from the longest reference
// sample, normalized to wav where a decoder is available.
func (p *Processor) writeWorkArtifact(job *Job, prepared []preparedSample) (string, error) {
	best := prepared[0]
	for _, s := range prepared[1:] {
		if s.seconds > best.seconds {
			best = s
		}
	}

	data := best.data
	if best.format == util.FormatMP3 {
		if pcm, rate, err := util.MP3ToPCM(best.data); err == nil {
			if wav, err := util.PCMToWAV(pcm, rate, 2); err == nil {
				data = wav
			}
		}
	}

	path := filepath.Join(p.opts.StorageDir, "work", job.ID+".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(errors.KindInternal, "training.train", "cannot write checkpoint", err)
	}
	return path, nil
}

// validate runs the pluggable assessor and records the metrics on the job,
// pass or fail.
func (p *Processor) validate(ctx context.Context, job *Job, artifact string) (QualityMetrics, error) {
	p.advance(ctx, job, StageValidating, progressTrained, "assessing model quality")

	metrics, err := p.opts.Assessor(ctx, artifact, job.Samples)
	if err != nil {
		return QualityMetrics{}, errors.Wrap(errors.KindInternal, "training.validate",
			"quality assessment failed", err)
	}
	job.Quality = &metrics

	p.progress(ctx, job, progressValidated, fmt.Sprintf(
		"quality similarity=%.2f naturalness=%.2f clarity=%.2f overall=%.2f",
		metrics.Similarity, metrics.Naturalness, metrics.Clarity, metrics.Overall))
	return metrics, nil
}

// finalize moves the artifact into place and applies the acceptance gate. A
// model below the threshold is rejected permanently: the compute succeeded,
// but the result is not worth serving.
func (p *Processor) finalize(ctx context.Context, job *Job, model *VoiceModel, artifact string, metrics QualityMetrics, epochsRun, epochs int) (*RunOutcome, error) {
	p.advance(ctx, job, StageFinalizing, progressValidated, "packaging model artifact")

	finalPath := filepath.Join(p.opts.StorageDir, model.ID+".wav")
	if err := os.Rename(artifact, finalPath); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "training.finalize",
			"cannot store model artifact", err)
	}

	model.SampleCount = len(job.Samples)
	model.SampleSeconds = 0
	model.ReferenceText = longestTranscript(job.Samples)
	for _, s := range job.Samples {
		model.SampleSeconds += s.DurationSeconds
	}

	if metrics.Overall < p.opts.QualityThreshold {
		if err := os.Remove(finalPath); err != nil && p.logger != nil {
			p.logger.WarnTag(logTag, "cannot remove rejected artifact %s: %v", finalPath, err)
		}
		model.MarkFailed(metrics.Overall)
		if err := p.models.Update(ctx, model); err != nil {
			return nil, err
		}
		vErr := NewValidationError(metrics, p.opts.QualityThreshold)
		return nil, errors.Wrap(errors.KindValidationFailed, "training.finalize",
			"trained model rejected by quality gate", vErr)
	}

	model.MarkReady(finalPath, metrics.Overall)
	if err := p.models.Update(ctx, model); err != nil {
		return nil, err
	}

	// The owner's first model activates itself; later ones wait for an
	// explicit activation.
	active, err := p.models.FindActiveByOwner(ctx, job.OwnerID)
	if err == nil && active == nil {
		if err := p.models.Activate(ctx, model.ID, job.OwnerID); err == nil {
			model.Active = true
		}
	}

	p.progress(ctx, job, progressDone, "model ready")

	return &RunOutcome{
		Model:      model,
		Quality:    metrics,
		ActualCost: p.actualCost(job, epochsRun, epochs),
	}, nil
}

// actualCost rescales the compute estimate by the epochs actually run; the
// storage, transfer and fee terms do not depend on convergence.
func (p *Processor) actualCost(job *Job, epochsRun, epochs int) float64 {
	e := job.Estimate
	if epochs <= 0 {
		return e.Total
	}
	compute := e.Compute * float64(epochsRun) / float64(epochs)
	return round4(compute + e.Storage + e.DataTransfer + e.APIFees)
}

func (p *Processor) advance(ctx context.Context, job *Job, stage Stage, progress float64, message string) {
	job.AdvanceStage(stage, progress, message)
	p.persistProgress(ctx, job)
}

func (p *Processor) progress(ctx context.Context, job *Job, progress float64, message string) {
	job.SetProgress(progress)
	job.AppendLog(job.Stage, message)
	p.persistProgress(ctx, job)
}

// persistProgress appends the newest log event and overwrites the progress
// column, then mirrors the tick onto the bus. Persistence failures are
// logged and swallowed: losing one tick is better than failing the job.
func (p *Processor) persistProgress(ctx context.Context, job *Job) {
	event := job.Log[len(job.Log)-1]
	if err := p.jobs.UpdateProgress(ctx, job.ID, job.Stage, job.Progress, event); err != nil {
		if p.logger != nil {
			p.logger.WarnTag(logTag, "progress update for job %s not persisted: %v", job.ID, err)
		}
	}
	if p.bus != nil {
		p.bus.PublishAsync(eventbus.TopicJobProgress, eventbus.JobEvent{
			JobID:     job.ID,
			OwnerID:   job.OwnerID,
			ModelName: job.ModelName,
			Status:    string(job.Status),
			Stage:     string(job.Stage),
			Progress:  job.Progress,
			Attempt:   job.Retries,
			At:        time.Now(),
		})
	}
}

func longestTranscript(samples []SampleRef) string {
	var text string
	for _, s := range samples {
		if len(s.Text) > len(text) {
			text = s.Text
		}
	}
	return text
}
