// Package status is a small thread-safe registry of background task state,
// queryable by operational tooling. Mutation happens only through the
// Report* entry points; reads hand out copies.
package status

import (
	"sort"
	"sync"
	"time"
)

// State is the last reported phase of a task.
type State string

const (
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// TaskStatus is a snapshot of one task's reported state.
type TaskStatus struct {
	Task           string     `json:"task"`
	State          State      `json:"state"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	Message        string     `json:"message,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Registry stores task statuses keyed by task name.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskStatus

	now func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]TaskStatus),
		now:   time.Now,
	}
}

// ReportScheduled records that the task will next run at the given time.
func (r *Registry) ReportScheduled(task string, nextRunAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.tasks[task]
	ts.Task = task
	ts.State = StateScheduled
	ts.NextRunAt = &nextRunAt
	r.tasks[task] = ts
}

// ReportStart records that a run of the task has begun.
func (r *Registry) ReportStart(task string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	ts := r.tasks[task]
	ts.Task = task
	ts.State = StateRunning
	ts.LastStartedAt = &now
	r.tasks[task] = ts
}

// ReportSuccess records a successful run and the next scheduled fire time.
func (r *Registry) ReportSuccess(task string, nextRunAt time.Time, message string) {
	r.finish(task, StateSucceeded, nextRunAt, message, "")
}

// ReportFailure records a failed run; the task stays scheduled regardless.
func (r *Registry) ReportFailure(task string, nextRunAt time.Time, errMsg string) {
	r.finish(task, StateFailed, nextRunAt, "", errMsg)
}

func (r *Registry) finish(task string, state State, nextRunAt time.Time, message, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	ts := r.tasks[task]
	ts.Task = task
	ts.State = state
	ts.NextRunAt = &nextRunAt
	ts.LastFinishedAt = &now
	ts.Message = message
	ts.LastError = errMsg
	r.tasks[task] = ts
}

// Get returns the status of one task.
func (r *Registry) Get(task string) (TaskStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts, ok := r.tasks[task]
	return ts, ok
}

// Snapshot returns a stable, sorted copy of all task statuses.
func (r *Registry) Snapshot() []TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TaskStatus, 0, len(r.tasks))
	for _, ts := range r.tasks {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}
