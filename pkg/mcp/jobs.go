package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a background cycle job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a crawl cycle triggered through the tool surface
type Job struct {
	ID            string    `json:"id"`
	Scope         string    `json:"scope"` // Category key, or "all"
	Categories    []string  `json:"categories,omitempty"`
	Fresh         bool      `json:"fresh"`
	Status        JobStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	SeedsAdmitted int       `json:"seeds_admitted"`
	Processed     int64     `json:"processed"`
	Completed     int64     `json:"completed"`
	Failed        int64     `json:"failed"`
	ErrorMessage  string    `json:"error_message,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

func (j *Job) active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// JobManager tracks background cycle jobs
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	byScope map[string]string // scope -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		byScope: make(map[string]string),
	}
}

// CreateJob creates a new job for scope. An active job for the same scope is returned instead.
func (m *JobManager) CreateJob(scope string, categories []string, fresh bool) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingJobID, exists := m.byScope[scope]; exists {
		existingJob := m.jobs[existingJobID]
		if existingJob != nil && existingJob.active() {
			return existingJob, nil
		}
	}
	return m.createLocked(scope, categories, fresh), nil
}

// CreateExclusiveJob creates a job only when no job of any scope is active.
// Otherwise a snapshot of the active job is returned with created set to false.
func (m *JobManager) CreateExclusiveJob(scope string, categories []string, fresh bool) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active := m.activeLocked(); active != nil {
		return active, false
	}
	return m.createLocked(scope, categories, fresh), true
}

func (m *JobManager) createLocked(scope string, categories []string, fresh bool) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:         uuid.New().String(),
		Scope:      scope,
		Categories: append([]string(nil), categories...),
		Fresh:      fresh,
		Status:     JobStatusPending,
		StartedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.jobs[job.ID] = job
	m.byScope[scope] = job.ID
	return job
}

// GetJob returns a snapshot of a job by ID, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// ActiveJob returns a snapshot of any pending or running job, or nil
func (m *JobManager) ActiveJob() *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *JobManager) activeLocked() *Job {
	for _, jobID := range m.byScope {
		if job := m.jobs[jobID]; job != nil && job.active() {
			snapshot := *job
			return &snapshot
		}
	}
	return nil
}

// IsRunning checks if a job is currently active for a scope
func (m *JobManager) IsRunning(scope string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.byScope[scope]; exists {
		job := m.jobs[jobID]
		return job != nil && job.active()
	}
	return false
}

// UpdateStatus updates the status of a job
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status == JobStatusCancelled {
		return
	}
	job.Status = status
	if !job.active() {
		job.CompletedAt = time.Now()
		delete(m.byScope, job.Scope)
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// UpdateProgress records the seeding and crawl counters of a job
func (m *JobManager) UpdateProgress(jobID string, admitted int, processed, completed, failed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.SeedsAdmitted = admitted
		job.Processed = processed
		job.Completed = completed
		job.Failed = failed
	}
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists && job.active() {
		job.cancel()
		job.Status = JobStatusCancelled
		job.CompletedAt = time.Now()
		delete(m.byScope, job.Scope)
		return true
	}
	return false
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.active() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byScope = make(map[string]string)
}

// ListJobs returns snapshots of all jobs
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// GetContext returns the context a job's cycle runs under
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
