// internal/task/task.go

// Package task implements the lifecycle state machine for a single automation
// task and the control handle its owner uses to pause, resume, and cancel it.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Handle is the control surface for one task. The decision loop mutates the
// task through it; external callers only pause, resume, cancel, and await.
//
// Pause and Cancel are cooperative requests. The loop observes them at cycle
// boundaries via Checkpoint, so an in-flight action always finishes first.
type Handle struct {
	mu      sync.Mutex
	resumed *sync.Cond

	task   *schemas.Task
	logger *zap.Logger

	cancelled bool
	done      chan struct{}
}

// New creates a task in PENDING with a fresh id.
func New(logger *zap.Logger, description, startURL string) *Handle {
	h := &Handle{
		task: &schemas.Task{
			ID:          uuid.NewString(),
			Description: description,
			StartURL:    startURL,
			Status:      schemas.TaskStatusPending,
			CreatedAt:   time.Now().UTC(),
		},
		logger: logger.Named("task"),
		done:   make(chan struct{}),
	}
	h.resumed = sync.NewCond(&h.mu)
	return h
}

// ID returns the task's immutable identifier.
func (h *Handle) ID() string {
	return h.task.ID
}

// Status returns the current lifecycle status.
func (h *Handle) Status() schemas.TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.task.Status
}

// Snapshot returns a copy of the task record, safe to serialize while the
// loop keeps running.
func (h *Handle) Snapshot() schemas.Task {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := *h.task
	t.Steps = make([]schemas.AgentStep, len(h.task.Steps))
	copy(t.Steps, h.task.Steps)
	return t
}

// Pause requests the loop suspend at the next cycle boundary. Pausing a task
// that is not RUNNING is a no-op. The returned status is the effective status
// after the call.
func (h *Handle) Pause() schemas.TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.task.Status == schemas.TaskStatusRunning {
		h.task.Status = schemas.TaskStatusPaused
		h.logger.Info("Task paused.", zap.String("task_id", h.task.ID))
	}
	return h.task.Status
}

// Resume lifts a pause. Resuming a task that is not PAUSED is a no-op.
func (h *Handle) Resume() schemas.TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.task.Status == schemas.TaskStatusPaused {
		h.task.Status = schemas.TaskStatusRunning
		h.logger.Info("Task resumed.", zap.String("task_id", h.task.ID))
		h.resumed.Broadcast()
	}
	return h.task.Status
}

// Cancel requests termination. The loop stops at the next cycle boundary; a
// paused task is woken so it can observe the request. Cancelling a task that
// already reached a terminal state is a no-op and the terminal state wins.
func (h *Handle) Cancel() schemas.TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.task.Status.IsTerminal() {
		return h.task.Status
	}
	h.cancelled = true
	h.logger.Info("Task cancellation requested.", zap.String("task_id", h.task.ID))
	h.resumed.Broadcast()
	return h.task.Status
}

// Checkpoint is called by the decision loop at every cycle boundary. It
// blocks while the task is paused and reports true when the loop should stop
// because cancellation was requested. On a stop report the task transitions
// to CANCELLED.
func (h *Handle) Checkpoint() (stop bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.task.Status == schemas.TaskStatusPaused && !h.cancelled {
		h.resumed.Wait()
	}
	if h.cancelled && !h.task.Status.IsTerminal() {
		h.task.Status = schemas.TaskStatusCancelled
		close(h.done)
		return true
	}
	return false
}

// Start moves PENDING to RUNNING. It reports false if the task was cancelled
// before it ever ran.
func (h *Handle) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled {
		if !h.task.Status.IsTerminal() {
			h.task.Status = schemas.TaskStatusCancelled
			close(h.done)
		}
		return false
	}
	if h.task.Status == schemas.TaskStatusPending {
		h.task.Status = schemas.TaskStatusRunning
	}
	return true
}

// RecordStep appends one executed cycle to the task history.
func (h *Handle) RecordStep(step schemas.AgentStep) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Steps = append(h.task.Steps, step)
}

// StepCount returns how many steps have been recorded.
func (h *Handle) StepCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.task.Steps)
}

// Complete finalizes the task from the reserved completion action. A task
// already in a terminal state is left untouched.
func (h *Handle) Complete(success bool, output string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.task.Status.IsTerminal() {
		return
	}
	if success {
		h.task.Status = schemas.TaskStatusCompleted
	} else {
		h.task.Status = schemas.TaskStatusFailed
		h.task.Error = "task declared failed by the model"
	}
	h.task.Output = output
	close(h.done)
}

// Fail finalizes the task after an unrecoverable loop error.
func (h *Handle) Fail(cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.task.Status.IsTerminal() {
		return
	}
	h.task.Status = schemas.TaskStatusFailed
	if cause != nil {
		h.task.Error = cause.Error()
	}
	close(h.done)
}

// Done is closed once the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the task is terminal and returns the final record.
func (h *Handle) Result() schemas.Task {
	<-h.done
	return h.Snapshot()
}
