package training

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"chorus-server-go/internal/platform/errors"
)

// Status is the lifecycle state of a training job. Transitions are monotone
// with one exception: FAILED moves back to QUEUED on an automatic retry until
// the retry cap is reached. COMPLETED and CANCELLED are terminal.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition can leave this status.
// FAILED is terminal only once the retry budget is spent; the queue settles
// that before persisting, so a stored FAILED row is always permanent.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage is one of the fixed execution phases of a running job. Each stage
// owns a slice of the 0-100 progress range.
type Stage string

const (
	StagePreprocessing Stage = "PREPROCESSING"
	StageInitializing  Stage = "INITIALIZING"
	StageTraining      Stage = "TRAINING"
	StageValidating    Stage = "VALIDATING"
	StageFinalizing    Stage = "FINALIZING"
)

// Progress checkpoints per stage. PREPROCESSING fills 0-10, TRAINING 10-85
// subdivided per epoch, VALIDATING 85-95 and FINALIZING 95-100.
const (
	progressPreprocessed = 10.0
	progressTrained      = 85.0
	progressValidated    = 95.0
	progressDone         = 100.0
)

// SampleRef points at one uploaded reference recording. Either Path or Data
// is set; Format and DurationSeconds are caller-supplied hints re-verified
// during preprocessing.
type SampleRef struct {
	Path            string  `json:"path,omitempty"`
	Data            []byte  `json:"data,omitempty"`
	Text            string  `json:"text,omitempty"`
	Format          string  `json:"format,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
}

// Params are the tunable knobs of one training run. Zero values fall back to
// the service defaults at enqueue time.
type Params struct {
	Epochs       int     `json:"epochs,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	Patience     int     `json:"patience,omitempty"`
	Language     string  `json:"language,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
}

// QualityMetrics is the final assessment of a trained model. All scores are
// in [0,1]; Overall is the weighted composite checked against the acceptance
// threshold.
type QualityMetrics struct {
	Similarity  float64 `json:"similarity"`
	Naturalness float64 `json:"naturalness"`
	Clarity     float64 `json:"clarity"`
	Overall     float64 `json:"overall"`
}

// StageEvent is one line of the append-only job log. The log survives
// retries, so a rerun shows its full history including the failed attempts.
type StageEvent struct {
	At       time.Time `json:"at"`
	Stage    Stage     `json:"stage,omitempty"`
	Status   Status    `json:"status,omitempty"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message"`
}

// Job is the training aggregate. Mutations go through the transition methods
// so the state machine cannot be bypassed; the repository persists whatever
// the methods produced.
type Job struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Provider        string          `json:"provider"`
	ModelName       string          `json:"model_name"`
	Status          Status          `json:"status"`
	Stage           Stage           `json:"stage,omitempty"`
	Progress        float64         `json:"progress"`
	Priority        int             `json:"priority"`
	Retries         int             `json:"retries"`
	MaxRetries      int             `json:"max_retries"`
	CancelRequested bool            `json:"cancel_requested,omitempty"`
	Samples         []SampleRef     `json:"samples"`
	Params          Params          `json:"params"`
	Estimate        CostEstimate    `json:"estimate"`
	ActualCost      float64         `json:"actual_cost"`
	Quality         *QualityMetrics `json:"quality,omitempty"`
	VoiceModelID    string          `json:"voice_model_id,omitempty"`
	Error           string          `json:"error,omitempty"`
	Log             []StageEvent    `json:"log"`
	NotBefore       time.Time       `json:"not_before,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// NewJob builds a QUEUED job with a fresh identifier.
func NewJob(ownerID, provider, modelName string, samples []SampleRef, params Params, priority, maxRetries int) (*Job, error) {
	if ownerID == "" {
		return nil, errors.New(errors.KindInvalidRequest, "training.new_job", "owner is required")
	}
	if provider == "" {
		return nil, errors.New(errors.KindInvalidRequest, "training.new_job", "provider is required")
	}
	if len(samples) == 0 {
		return nil, errors.New(errors.KindInvalidRequest, "training.new_job", "at least one reference sample is required")
	}

	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Provider:   provider,
		ModelName:  modelName,
		Status:     StatusQueued,
		Priority:   priority,
		MaxRetries: maxRetries,
		Samples:    samples,
		Params:     params,
		CreatedAt:  now,
	}
	job.appendLog(StageEvent{Status: StatusQueued, Message: "job accepted"})
	return job, nil
}

// Start moves QUEUED to RUNNING.
func (j *Job) Start() error {
	if j.Status != StatusQueued {
		return j.transitionError("training.start", StatusRunning)
	}
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.appendLog(StageEvent{Status: StatusRunning, Progress: j.Progress, Message: "job started"})
	return nil
}

// Complete moves RUNNING to COMPLETED and pins the final artifacts.
func (j *Job) Complete(modelID string, quality QualityMetrics, actualCost float64) error {
	if j.Status != StatusRunning {
		return j.transitionError("training.complete", StatusCompleted)
	}
	now := time.Now()
	j.Status = StatusCompleted
	j.Progress = progressDone
	j.VoiceModelID = modelID
	j.Quality = &quality
	j.ActualCost = actualCost
	j.Error = ""
	j.CompletedAt = &now
	j.appendLog(StageEvent{Status: StatusCompleted, Progress: j.Progress, Message: "job completed"})
	return nil
}

// Fail moves RUNNING to FAILED and records the reason. Whether the failure is
// permanent is the queue's call: it either leaves the job FAILED (terminal) or
// follows up with Requeue.
func (j *Job) Fail(reason string) error {
	if j.Status != StatusRunning {
		return j.transitionError("training.fail", StatusFailed)
	}
	now := time.Now()
	j.Status = StatusFailed
	j.Error = reason
	j.CompletedAt = &now
	j.appendLog(StageEvent{Status: StatusFailed, Stage: j.Stage, Progress: j.Progress, Message: reason})
	return nil
}

// Requeue moves FAILED back to QUEUED for an automatic retry, spending one
// unit of the retry budget. notBefore gates the next dequeue (backoff).
func (j *Job) Requeue(notBefore time.Time) error {
	if j.Status != StatusFailed {
		return j.transitionError("training.requeue", StatusQueued)
	}
	if j.Retries >= j.MaxRetries {
		return errors.New(errors.KindJobRetryExhausted, "training.requeue", "retry budget exhausted")
	}
	j.Retries++
	j.Status = StatusQueued
	j.Stage = ""
	j.Progress = 0
	j.NotBefore = notBefore
	j.CompletedAt = nil
	j.appendLog(StageEvent{Status: StatusQueued, Progress: j.Progress,
		Message: "scheduled retry " + strconv.Itoa(j.Retries) + " of " + strconv.Itoa(j.MaxRetries)})
	return nil
}

// Park returns an interrupted RUNNING job to QUEUED without spending the
// retry budget. Used on graceful shutdown so the next start resumes it.
func (j *Job) Park() error {
	if j.Status != StatusRunning {
		return j.transitionError("training.park", StatusQueued)
	}
	j.Status = StatusQueued
	j.Stage = ""
	j.Progress = 0
	j.appendLog(StageEvent{Status: StatusQueued, Message: "interrupted by shutdown, requeued"})
	return nil
}

// Cancel moves QUEUED or RUNNING to CANCELLED. Terminal jobs report
// AlreadyTerminal so callers can distinguish "too late" from "unknown job".
func (j *Job) Cancel() error {
	if j.Status.Terminal() {
		return errors.New(errors.KindAlreadyTerminal, "training.cancel", "job already "+string(j.Status))
	}
	now := time.Now()
	j.Status = StatusCancelled
	j.CancelRequested = false
	j.CompletedAt = &now
	j.appendLog(StageEvent{Status: StatusCancelled, Progress: j.Progress, Message: "job cancelled"})
	return nil
}

// RequestCancel flags a RUNNING job for cooperative cancellation. The worker
// honours the flag at the next stage or epoch boundary.
func (j *Job) RequestCancel() {
	j.CancelRequested = true
}

// CanRetry reports whether another automatic retry is allowed.
func (j *Job) CanRetry() bool {
	return j.Retries < j.MaxRetries
}

// AdvanceStage records entry into a stage at the given progress point.
func (j *Job) AdvanceStage(stage Stage, progress float64, message string) {
	j.Stage = stage
	j.SetProgress(progress)
	j.appendLog(StageEvent{Stage: stage, Progress: j.Progress, Message: message})
}

// SetProgress overwrites the progress percentage, clamped to [0,100] and
// never moving backwards within one attempt.
func (j *Job) SetProgress(progress float64) {
	if progress < j.Progress {
		return
	}
	if progress > progressDone {
		progress = progressDone
	}
	j.Progress = progress
}

// AppendLog adds a free-form event to the job log.
func (j *Job) AppendLog(stage Stage, message string) {
	j.appendLog(StageEvent{Stage: stage, Progress: j.Progress, Message: message})
}

// Duration is the wall-clock span of the last attempt, zero until started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

func (j *Job) appendLog(event StageEvent) {
	event.At = time.Now()
	j.Log = append(j.Log, event)
}

func (j *Job) transitionError(op string, to Status) error {
	if j.Status.Terminal() {
		return errors.New(errors.KindAlreadyTerminal, op, "job already "+string(j.Status))
	}
	return errors.New(errors.KindInternal, op, "cannot move "+string(j.Status)+" job to "+string(to))
}
