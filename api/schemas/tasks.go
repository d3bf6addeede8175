// api/schemas/tasks.go
package schemas

import (
	"encoding/json"
	"time"
)

// TaskStatus tracks a task through its lifecycle. The three terminal states
// (CANCELLED, COMPLETED, FAILED) are final: once a task reaches one of them
// its status never changes again.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusPaused    TaskStatus = "PAUSED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCancelled, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// Task is one natural-language automation request tracked through its
// lifecycle. It is created on submission and mutated only by its own decision
// loop or its control handle.
type Task struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Status      TaskStatus  `json:"status"`
	StartURL    string      `json:"start_url,omitempty"`
	Steps       []AgentStep `json:"steps"`
	Error       string      `json:"error,omitempty"`
	Output      string      `json:"output,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// AgentDecision is the model's answer for one cycle: a reasoning summary, an
// updated running memory, and exactly one chosen action with its parameters.
type AgentDecision struct {
	Reasoning string          `json:"reasoning"`
	Memory    string          `json:"memory"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// AgentStep records one executed decision cycle. Steps are append-only per
// task and indices increase monotonically.
type AgentStep struct {
	Index    int           `json:"index"`
	Decision AgentDecision `json:"decision"`
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
}

// ActionSchema is the declared shape of one registered action, handed to the
// model so it can pick an action and emit well-formed parameters.
type ActionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}
