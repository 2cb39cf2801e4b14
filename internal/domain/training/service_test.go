package training

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/util"
)

// newTestService wires a service over in-memory stores. The queue is never
// run, so enqueued jobs stay QUEUED.
func newTestService(t *testing.T) (*Service, *memJobs, *memModels) {
	t.Helper()
	jobs := newMemJobs()
	models := newMemModels()
	p := NewProcessor(jobs, models, nil, nil, ProcessorOptions{
		StorageDir:    t.TempDir(),
		EpochDuration: time.Millisecond,
	})
	q := NewQueue(jobs, models, p, nil, nil, QueueOptions{})
	return NewService(jobs, models, q, NewEstimator(), nil, ServiceOptions{}), jobs, models
}

func TestServiceEnqueueTraining(t *testing.T) {
	svc, jobs, _ := newTestService(t)
	ctx := context.Background()

	samples := []SampleRef{testWAVSample(t, 5), testWAVSample(t, 8)}
	job, err := svc.EnqueueTraining(ctx, "owner-1", "neural", "", samples, Params{}, 2)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.True(t, strings.HasPrefix(job.ModelName, "voice-"), "a name is generated when none is given")
	assert.Equal(t, 10, job.Params.Epochs, "epochs default from the service options")
	assert.Equal(t, 2, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Greater(t, job.Estimate.Total, 0.0)
	assert.Equal(t, "USD", job.Estimate.Currency)

	stored, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "the job is persisted before the workers see it")
	assert.Equal(t, StatusQueued, stored.Status)
	assert.Equal(t, 1, svc.queue.Size())
}

func TestServiceEnqueueRejectsUntrainableProvider(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.EnqueueTraining(context.Background(), "owner-1", "edge", "v",
		[]SampleRef{testWAVSample(t, 5)}, Params{}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))
	assert.Contains(t, err.Error(), "does not support voice training")
}

func TestServiceEnqueueRejectsBadSamples(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnqueueTraining(ctx, "owner-1", "neural", "v", nil, Params{}, 0)
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))

	_, err = svc.EnqueueTraining(ctx, "owner-1", "neural", "v",
		[]SampleRef{{Text: "transcript only"}}, Params{}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))
	assert.Contains(t, err.Error(), "neither data nor path")
}

func TestServiceEnqueueProbesInlineAudio(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Five seconds of mono 24 kHz silence, duration left for the probe.
	wav, _ := util.PCMToWAV(make([]byte, 5*24000*2), 24000, 1)
	samples := []SampleRef{{Data: wav}}

	job, err := svc.EnqueueTraining(context.Background(), "owner-1", "neural", "probed",
		samples, Params{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "wav", job.Samples[0].Format)
	assert.InDelta(t, 5.0, job.Samples[0].DurationSeconds, 0.05)
	assert.Equal(t, int64(len(wav)), job.Samples[0].SizeBytes)
}

func TestServiceEnqueueRejectsShortInlineAudio(t *testing.T) {
	svc, _, _ := newTestService(t)

	wav, _ := util.PCMToWAV(make([]byte, 1*24000*2), 24000, 1)
	_, err := svc.EnqueueTraining(context.Background(), "owner-1", "neural", "v",
		[]SampleRef{{Data: wav}}, Params{}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))
	assert.Contains(t, err.Error(), "below the 3.0s minimum")
}

func TestServiceTrainingStatusAndCancel(t *testing.T) {
	svc, jobs, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetTrainingStatus(ctx, "no-such-job")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	job, err := svc.EnqueueTraining(ctx, "owner-1", "neural", "v",
		[]SampleRef{testWAVSample(t, 5)}, Params{}, 0)
	require.NoError(t, err)

	got, err := svc.GetTrainingStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	require.NoError(t, svc.CancelTraining(ctx, job.ID, "owner-1"))
	assert.Equal(t, StatusCancelled, jobs.status(job.ID))
}

func TestServiceListJobsNormalizesPaging(t *testing.T) {
	svc, jobs, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.EnqueueTraining(ctx, "owner-1", "neural", "v",
			[]SampleRef{testWAVSample(t, 5)}, Params{}, 0)
		require.NoError(t, err)
	}

	got, total, err := svc.ListJobs(ctx, "owner-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, defaultPageSize, jobs.lastLimit)
	assert.Equal(t, 0, jobs.lastOffset)

	_, _, err = svc.ListJobs(ctx, "owner-1", 3, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, jobs.lastLimit)
	assert.Equal(t, 14, jobs.lastOffset)

	_, _, err = svc.ListJobs(ctx, "owner-1", 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, jobs.lastLimit)
}

func TestServiceActivateModel(t *testing.T) {
	svc, _, models := newTestService(t)
	ctx := context.Background()

	first := NewVoiceModel("owner-1", "neural", "first", "en", "job-a")
	first.MarkReady(filepath.Join(t.TempDir(), "a.wav"), 0.8)
	require.NoError(t, models.Save(ctx, first))

	second := NewVoiceModel("owner-1", "neural", "second", "en", "job-b")
	second.MarkReady(filepath.Join(t.TempDir(), "b.wav"), 0.9)
	require.NoError(t, models.Save(ctx, second))

	training := NewVoiceModel("owner-1", "neural", "in-progress", "en", "job-c")
	require.NoError(t, models.Save(ctx, training))

	err := svc.ActivateModel(ctx, training.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))
	assert.Contains(t, err.Error(), "not ready")

	err = svc.ActivateModel(ctx, first.ID, "someone-else")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	require.NoError(t, svc.ActivateModel(ctx, first.ID, "owner-1"))
	require.NoError(t, svc.ActivateModel(ctx, second.ID, "owner-1"))

	active, err := svc.ActiveModel(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	got, err := svc.GetModel(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.Active, "activation deactivates the previous model")
}

func TestServiceDeleteModelRemovesArtifact(t *testing.T) {
	svc, _, models := newTestService(t)
	ctx := context.Background()

	artifact := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(artifact, []byte("audio"), 0o644))

	model := NewVoiceModel("owner-1", "neural", "doomed", "en", "job-a")
	model.MarkReady(artifact, 0.9)
	require.NoError(t, models.Save(ctx, model))

	err := svc.DeleteModel(ctx, model.ID, "someone-else")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	_, err = svc.GetModel(ctx, model.ID)
	assert.NoError(t, err, "a foreign delete leaves the row alone")

	require.NoError(t, svc.DeleteModel(ctx, model.ID, "owner-1"))
	_, err = svc.GetModel(ctx, model.ID)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))

	got, err := svc.ListModels(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
