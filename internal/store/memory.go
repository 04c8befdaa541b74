package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"video-concat-service/internal/models"
)

// Memory is an in-process Store used when no Postgres DSN is configured
// and in tests. Records do not survive restarts.
type Memory struct {
	mu    sync.RWMutex
	jobs  map[string]models.Job
	audit []models.AuditLog
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]models.Job)}
}

func (m *Memory) CreateJob(_ context.Context, job models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return job, nil
}

func (m *Memory) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !transitionAllowed(job.Status, status) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, status, id)
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return nil
}

func (m *Memory) MarkCompleted(_ context.Context, id, outputURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !transitionAllowed(job.Status, models.StatusCompleted) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, models.StatusCompleted, id)
	}
	job.Status = models.StatusCompleted
	job.OutputURL = &outputURL
	job.LastError = nil
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !transitionAllowed(job.Status, models.StatusFailed) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, models.StatusFailed, id)
	}
	job.Status = models.StatusFailed
	job.LastError = &detail
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, jobID, event, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, models.AuditLog{
		JobID:    jobID,
		Event:    event,
		Detail:   detail,
		Recorded: time.Now().UTC(),
	})
	return nil
}

func (m *Memory) Close() {}
