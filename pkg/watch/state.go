package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "watch_state.json"

// TaskState contains the last run information for a task
type TaskState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	LastCount      int       `json:"last_count"`
	Runs           int64     `json:"runs"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watch runner
type WatchState struct {
	Tasks     map[string]TaskState `json:"tasks"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Tasks: make(map[string]TaskState),
		},
	}
}

// Load loads the state from disk
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{
				Tasks: make(map[string]TaskState),
			}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	if m.state.Tasks == nil {
		m.state.Tasks = make(map[string]TaskState)
	}

	return nil
}

// Save saves the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// GetTaskState returns the state for a specific task
func (m *StateManager) GetTaskState(name string) (TaskState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Tasks[name]
	return state, ok
}

// UpdateTaskState records the outcome of a task run
func (m *StateManager) UpdateTaskState(name string, success bool, count int, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.Tasks[name]
	m.state.Tasks[name] = TaskState{
		LastRunTime:    time.Now(),
		LastRunSuccess: success,
		LastCount:      count,
		Runs:           prev.Runs + 1,
		ErrorMessage:   errorMsg,
	}
}

// GetAllTaskStates returns a copy of all task states
func (m *StateManager) GetAllTaskStates() map[string]TaskState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]TaskState, len(m.state.Tasks))
	for k, v := range m.state.Tasks {
		result[k] = v
	}
	return result
}
