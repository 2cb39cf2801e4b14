package training

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chorus-server-go/internal/domain/eventbus"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

// QueueOptions tune the worker pool.
type QueueOptions struct {
	Workers        int
	JobsPerMinute  int
	BaseRetryDelay time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.JobsPerMinute <= 0 {
		o.JobsPerMinute = 5
	}
	if o.BaseRetryDelay <= 0 {
		o.BaseRetryDelay = 30 * time.Second
	}
	return o
}

// Queue owns the training job lifecycle: a priority-ordered pending queue, a
// fixed worker pool throttled by a global token bucket, automatic retries
// with exponential backoff, and cooperative cancellation of running jobs.
type Queue struct {
	jobs      JobRepository
	models    ModelRepository
	processor *Processor
	bus       *eventbus.Bus
	logger    *logging.Logger
	opts      QueueOptions

	pending *util.PriorityQueue[string]
	limiter *rate.Limiter
	cancels sync.Map // job ID -> context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue wires a queue to its stores, processor and bus. bus and logger
// may be nil (tests).
func NewQueue(jobs JobRepository, models ModelRepository, processor *Processor, bus *eventbus.Bus, logger *logging.Logger, opts QueueOptions) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		jobs:      jobs,
		models:    models,
		processor: processor,
		bus:       bus,
		logger:    logger,
		opts:      opts,
		pending:   util.NewPriorityQueue[string](),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.JobsPerMinute)), 1),
	}
}

// Run recovers persisted work, starts the worker pool and blocks until ctx
// is cancelled, then drains: running jobs stop at their next cancellation
// checkpoint and are parked back to QUEUED.
func (q *Queue) Run(ctx context.Context) error {
	q.recover(ctx)

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	<-ctx.Done()
	q.pending.Close()
	q.wg.Wait()
	return nil
}

// Enqueue persists a fresh job and hands it to the workers.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.jobs.Save(ctx, job); err != nil {
		return errors.Wrap(errors.KindStorage, "training.enqueue", "cannot persist job", err)
	}
	if err := q.pending.PushItem(job.ID, job.Priority); err != nil {
		return errors.Wrap(errors.KindInternal, "training.enqueue", "queue closed", err)
	}
	q.publish(eventbus.TopicJobQueued, job)
	return nil
}

// Cancel stops a job on behalf of its owner. QUEUED jobs flip immediately;
// RUNNING jobs are flagged and stop at the next stage or epoch boundary.
// Unknown jobs and foreign owners both report NotFound.
func (q *Queue) Cancel(ctx context.Context, jobID, ownerID string) error {
	job, err := q.jobs.FindByID(ctx, jobID)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "training.cancel", "cannot load job", err)
	}
	if job == nil || (ownerID != "" && job.OwnerID != ownerID) {
		return errors.New(errors.KindNotFound, "training.cancel", "job not found")
	}

	if job.Status.Terminal() {
		return errors.New(errors.KindAlreadyTerminal, "training.cancel",
			"job already "+string(job.Status))
	}

	// Flag first: a worker claiming the job after this point sees the flag
	// on its post-claim load.
	if err := q.jobs.RequestCancel(ctx, jobID); err != nil {
		return errors.Wrap(errors.KindStorage, "training.cancel", "cannot flag cancellation", err)
	}
	if fn, ok := q.cancels.Load(jobID); ok {
		// A worker holds the job; it settles the cancellation at the next
		// stage or epoch checkpoint.
		fn.(context.CancelFunc)()
		return nil
	}
	if job.Status == StatusQueued {
		// No worker holds it; settle here.
		if err := job.Cancel(); err != nil {
			return err
		}
		if err := q.jobs.Update(ctx, job); err != nil {
			return errors.Wrap(errors.KindStorage, "training.cancel", "cannot persist cancellation", err)
		}
		q.publish(eventbus.TopicJobCancelled, job)
	}
	return nil
}

// Size reports how many jobs are waiting in memory.
func (q *Queue) Size() int {
	return q.pending.Size()
}

// recover pushes persisted QUEUED jobs back into the in-memory queue and
// parks jobs a previous process left RUNNING. Jobs flagged for cancellation
// before the crash are cancelled instead of rerun.
func (q *Queue) recover(ctx context.Context) {
	running, err := q.jobs.FindByStatus(ctx, StatusRunning)
	if err != nil {
		q.warn("cannot scan interrupted jobs: %v", err)
	}
	for _, job := range running {
		if job.CancelRequested {
			if err := job.Cancel(); err != nil {
				continue
			}
			if err := q.jobs.Update(ctx, job); err != nil {
				q.warn("cannot cancel interrupted job %s: %v", job.ID, err)
				continue
			}
			q.publish(eventbus.TopicJobCancelled, job)
			continue
		}
		if err := job.Park(); err != nil {
			continue
		}
		if err := q.jobs.Update(ctx, job); err != nil {
			q.warn("cannot requeue interrupted job %s: %v", job.ID, err)
		}
	}

	queued, err := q.jobs.FindByStatus(ctx, StatusQueued)
	if err != nil {
		q.warn("cannot scan queued jobs: %v", err)
		return
	}
	for _, job := range queued {
		q.schedule(job)
	}
	if n := len(running) + len(queued); n > 0 {
		q.info("recovered %d persisted jobs", n)
	}
}

// schedule pushes a job now, or after its backoff gate expires.
func (q *Queue) schedule(job *Job) {
	if delay := time.Until(job.NotBefore); delay > 0 {
		id, prio := job.ID, job.Priority
		time.AfterFunc(delay, func() {
			// Push errors after shutdown are expected; the job stays
			// QUEUED in the store and is recovered next start.
			_ = q.pending.PushItem(id, prio)
		})
		return
	}
	_ = q.pending.PushItem(job.ID, job.Priority)
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		jobID, err := q.pending.PopItem(ctx, 0)
		if err != nil {
			return
		}
		if err := q.limiter.Wait(ctx); err != nil {
			// Shutdown while throttled; the popped job stays QUEUED in
			// the store.
			return
		}
		q.runJob(ctx, jobID)
	}
}

// runJob drives one job from QUEUED to its next resting state.
func (q *Queue) runJob(ctx context.Context, jobID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	if _, held := q.cancels.LoadOrStore(jobID, cancel); held {
		// Another worker already holds this job; the queue can carry
		// duplicate entries after recovery.
		cancel()
		return
	}
	defer func() {
		q.cancels.Delete(jobID)
		cancel()
	}()

	// Loading after the claim means any cancellation persisted before this
	// point is visible below.
	job, err := q.jobs.FindByID(ctx, jobID)
	if err != nil || job == nil {
		if err != nil {
			q.warn("cannot load job %s: %v", jobID, err)
		}
		return
	}
	if job.Status != StatusQueued {
		// Cancelled or completed while waiting; nothing to run.
		return
	}
	if job.CancelRequested {
		q.finishCancelled(ctx, job)
		return
	}
	if delay := time.Until(job.NotBefore); delay > 0 {
		q.schedule(job)
		return
	}

	if err := job.Start(); err != nil {
		q.warn("job %s: %v", job.ID, err)
		return
	}
	if err := q.jobs.Update(ctx, job); err != nil {
		q.warn("cannot persist start of job %s: %v", job.ID, err)
		return
	}
	q.publish(eventbus.TopicJobStarted, job)

	outcome, runErr := q.processor.Run(jobCtx, job)

	// Settlement must persist even when the triggering context is already
	// dead (shutdown, user cancel), so it gets its own deadline.
	settleCtx, settleDone := context.WithTimeout(context.Background(), 10*time.Second)
	defer settleDone()

	switch {
	case runErr == nil:
		if err := job.Complete(outcome.Model.ID, outcome.Quality, outcome.ActualCost); err != nil {
			q.warn("job %s: %v", job.ID, err)
			return
		}
		if err := q.jobs.Update(settleCtx, job); err != nil {
			q.warn("cannot persist completion of job %s: %v", job.ID, err)
		}
		q.publish(eventbus.TopicJobCompleted, job)
		q.info("job %s completed, model %s quality %.2f", job.ID, job.VoiceModelID, outcome.Quality.Overall)

	case jobCtx.Err() != nil:
		q.finishInterrupted(ctx, settleCtx, job)

	case errors.IsKind(runErr, errors.KindValidationFailed):
		// Bad input or a rejected model; retrying cannot fix either.
		q.finishFailed(settleCtx, job, runErr.Error())

	default:
		q.retryOrFail(settleCtx, job, runErr)
	}
}

// finishInterrupted settles a job whose context died mid-run: a user cancel
// flips it CANCELLED, a shutdown parks it for the next start.
func (q *Queue) finishInterrupted(runCtx, settleCtx context.Context, job *Job) {
	userCancel := runCtx.Err() == nil
	if !userCancel {
		if fresh, err := q.jobs.FindByID(settleCtx, job.ID); err == nil && fresh != nil {
			userCancel = fresh.CancelRequested
		}
	}
	if userCancel {
		q.finishCancelled(settleCtx, job)
		return
	}

	if err := job.Park(); err != nil {
		q.warn("job %s: %v", job.ID, err)
		return
	}
	if err := q.jobs.Update(settleCtx, job); err != nil {
		q.warn("cannot park job %s: %v", job.ID, err)
	}
}

func (q *Queue) finishCancelled(ctx context.Context, job *Job) {
	if err := job.Cancel(); err != nil {
		q.warn("job %s: %v", job.ID, err)
		return
	}
	if err := q.jobs.Update(ctx, job); err != nil {
		q.warn("cannot persist cancellation of job %s: %v", job.ID, err)
	}
	q.abandonModel(ctx, job)
	q.publish(eventbus.TopicJobCancelled, job)
	q.info("job %s cancelled", job.ID)
}

// retryOrFail reschedules a transient failure with exponential backoff, or
// fails the job for good once the budget is spent.
func (q *Queue) retryOrFail(ctx context.Context, job *Job, runErr error) {
	if !job.CanRetry() {
		q.finishFailed(ctx, job, fmt.Sprintf("retry budget exhausted (%d/%d): %v",
			job.Retries, job.MaxRetries, runErr))
		return
	}

	delay := q.opts.BaseRetryDelay << job.Retries
	if err := job.Fail(runErr.Error()); err != nil {
		q.warn("job %s: %v", job.ID, err)
		return
	}
	if err := job.Requeue(time.Now().Add(delay)); err != nil {
		q.warn("job %s: %v", job.ID, err)
		return
	}
	if err := q.jobs.Update(ctx, job); err != nil {
		q.warn("cannot persist retry of job %s: %v", job.ID, err)
		return
	}
	q.publish(eventbus.TopicJobQueued, job)
	q.schedule(job)
	q.info("job %s retry %d/%d in %s: %v", job.ID, job.Retries, job.MaxRetries, delay, runErr)
}

func (q *Queue) finishFailed(ctx context.Context, job *Job, reason string) {
	if err := job.Fail(reason); err != nil {
		q.warn("job %s: %v", job.ID, err)
		return
	}
	if err := q.jobs.Update(ctx, job); err != nil {
		q.warn("cannot persist failure of job %s: %v", job.ID, err)
	}
	q.abandonModel(ctx, job)
	q.publish(eventbus.TopicJobFailed, job)
	q.warn("job %s failed permanently: %s", job.ID, reason)
}

// abandonModel marks the job's provisional model row failed, if one was
// created and not already settled by the processor.
func (q *Queue) abandonModel(ctx context.Context, job *Job) {
	model, err := q.models.FindByJobID(ctx, job.ID)
	if err != nil || model == nil || model.Status != ModelStatusTraining {
		return
	}
	var quality float64
	if job.Quality != nil {
		quality = job.Quality.Overall
	}
	model.MarkFailed(quality)
	if err := q.models.Update(ctx, model); err != nil {
		q.warn("cannot mark model %s failed: %v", model.ID, err)
	}
}

func (q *Queue) publish(topic string, job *Job) {
	if q.bus == nil {
		return
	}
	q.bus.PublishAsync(topic, eventbus.JobEvent{
		JobID:        job.ID,
		OwnerID:      job.OwnerID,
		ModelName:    job.ModelName,
		VoiceModelID: job.VoiceModelID,
		Status:       string(job.Status),
		Stage:        string(job.Stage),
		Progress:     job.Progress,
		Attempt:      job.Retries,
		Error:        job.Error,
		At:           time.Now(),
	})
}

func (q *Queue) info(format string, args ...interface{}) {
	if q.logger != nil {
		q.logger.InfoTag(logTag, format, args...)
	}
}

func (q *Queue) warn(format string, args ...interface{}) {
	if q.logger != nil {
		q.logger.WarnTag(logTag, format, args...)
	}
}
