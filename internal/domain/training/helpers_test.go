package training

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"chorus-server-go/internal/util"
)

// memJobs is an in-memory JobRepository with store semantics: rows are
// copied on the way in and out, so a held aggregate never aliases the store.
type memJobs struct {
	mu           sync.Mutex
	rows         map[string]*Job
	startedOrder []string
	lastLimit    int
	lastOffset   int
}

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[string]*Job)}
}

func (m *memJobs) Save(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.rows[job.ID] = cloneJob(job)
	return nil
}

func (m *memJobs) FindByID(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(row), nil
}

func (m *memJobs) Update(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.rows[job.ID]
	if !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	if prev.Status != StatusRunning && job.Status == StatusRunning {
		m.startedOrder = append(m.startedOrder, job.ID)
	}
	m.rows[job.ID] = cloneJob(job)
	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, id string, stage Stage, progress float64, event StageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	row.Stage = stage
	row.Progress = progress
	row.Log = append(row.Log, event)
	return nil
}

func (m *memJobs) RequestCancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	row.CancelRequested = true
	return nil
}

func (m *memJobs) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]*Job, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit, m.lastOffset = limit, offset

	var all []*Job
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			all = append(all, cloneJob(row))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memJobs) FindByStatus(_ context.Context, status Status) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, row := range m.rows {
		if row.Status == status {
			out = append(out, cloneJob(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memJobs) status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return ""
	}
	return row.Status
}

// memModels is an in-memory ModelRepository.
type memModels struct {
	mu   sync.Mutex
	rows map[string]*VoiceModel
}

func newMemModels() *memModels {
	return &memModels{rows: make(map[string]*VoiceModel)}
}

func (m *memModels) Save(_ context.Context, model *VoiceModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[model.ID]; ok {
		return fmt.Errorf("model %s already exists", model.ID)
	}
	m.rows[model.ID] = cloneModel(model)
	return nil
}

func (m *memModels) FindByID(_ context.Context, id string) (*VoiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return cloneModel(row), nil
}

func (m *memModels) FindByJobID(_ context.Context, jobID string) (*VoiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.JobID == jobID {
			return cloneModel(row), nil
		}
	}
	return nil, nil
}

func (m *memModels) Update(_ context.Context, model *VoiceModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[model.ID]; !ok {
		return fmt.Errorf("model %s not found", model.ID)
	}
	m.rows[model.ID] = cloneModel(model)
	return nil
}

func (m *memModels) ListByOwner(_ context.Context, ownerID string) ([]*VoiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*VoiceModel
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			out = append(out, cloneModel(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memModels) FindActiveByOwner(_ context.Context, ownerID string) (*VoiceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.OwnerID == ownerID && row.Active {
			return cloneModel(row), nil
		}
	}
	return nil, nil
}

func (m *memModels) Activate(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("model %s not found", id)
	}
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			row.Active = false
		}
	}
	target.Active = true
	return nil
}

func (m *memModels) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memModels) byJob(jobID string) *VoiceModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.JobID == jobID {
			return cloneModel(row)
		}
	}
	return nil
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Samples = append([]SampleRef(nil), j.Samples...)
	c.Log = append([]StageEvent(nil), j.Log...)
	if j.Quality != nil {
		q := *j.Quality
		c.Quality = &q
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneModel(m *VoiceModel) *VoiceModel {
	c := *m
	return &c
}

// testWAVSample builds a silent mono wav of the given length.
func testWAVSample(t *testing.T, seconds float64) SampleRef {
	t.Helper()
	pcm := make([]byte, int(seconds*24000)*2)
	wav, err := util.PCMToWAV(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("build test wav: %v", err)
	}
	return SampleRef{Data: wav, DurationSeconds: seconds}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
