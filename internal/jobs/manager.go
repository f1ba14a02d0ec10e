package jobs

import (
	"errors"
	"fmt"
	"sync"

	"potrace-svg/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active conversion.
var ErrJobAlreadyRunning = errors.New("conversion already running")

// ErrNoRunningJob is returned when a running job is required but none exists.
var ErrNoRunningJob = errors.New("no running conversion")

// Manager tracks the single allowed active conversion and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start registers a new job in creating_temp state.
func (m *Manager) Start(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}

	job.Status = domain.JobStatusCreatingTemp
	m.current = job
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears a finished job and returns the manager to idle.
// A running job is left untouched.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	m.current = domain.Job{Status: domain.JobStatusIdle}
	return nil
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Fail moves an active job to failed from whatever stage it reached.
func (m *Manager) Fail() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusFailed
	return nil
}

// isRunning checks if a status represents active pipeline execution.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusCreatingTemp, domain.JobStatusRasterizing, domain.JobStatusTracing:
		return true
	default:
		return false
	}
}

// isValidTransition enforces Idle -> CreatingTemp -> Rasterizing -> Tracing -> {Done, Failed}.
// Returning to Idle goes through Reset.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusCreatingTemp
	case domain.JobStatusCreatingTemp:
		return to == domain.JobStatusRasterizing || to == domain.JobStatusFailed
	case domain.JobStatusRasterizing:
		return to == domain.JobStatusTracing || to == domain.JobStatusFailed
	case domain.JobStatusTracing:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed
	case domain.JobStatusDone, domain.JobStatusFailed:
		return to == domain.JobStatusCreatingTemp
	default:
		return false
	}
}
