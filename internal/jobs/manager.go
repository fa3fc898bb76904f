package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IgorLLC/MeetingPro/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single allowed active job and its transitions.
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

// Start creates a new job and moves it to the converting stage. Terminal
// jobs are replaced; a finished run is never resumed.
func (m *Manager) Start(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:     jobID,
		Status: domain.JobStatusConverting,
	}
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
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

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Cancel moves an active job to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusCancelled
	return nil
}

// isRunning checks if a status represents active pipeline execution.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusConverting, domain.JobStatusTranscribing, domain.JobStatusAnalyzing:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges. Done,
// failed, and cancelled are terminal; only Start can begin a new job.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusConverting
	case domain.JobStatusConverting:
		return to == domain.JobStatusTranscribing || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusAnalyzing || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusAnalyzing:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	default:
		return false
	}
}
