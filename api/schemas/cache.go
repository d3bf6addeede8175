// api/schemas/cache.go
package schemas

import "time"

// ActionCacheEntry captures exactly how one step was physically executed:
// the original instruction, the resolved element, the concrete low-level
// method and arguments, and the xpath at execution time. An entry is
// sufficient to reproduce the step without another model call and is
// immutable once written.
type ActionCacheEntry struct {
	StepIndex   int                    `json:"step_index"`
	Instruction string                 `json:"instruction,omitempty"`
	ElementID   string                 `json:"element_id,omitempty"`
	Method      string                 `json:"method,omitempty"`
	Args        []interface{}          `json:"args,omitempty"`
	Params      map[string]interface{} `json:"params,omitempty"`
	FrameIndex  int                    `json:"frame_index"`
	XPath       string                 `json:"xpath,omitempty"`
	ActionType  string                 `json:"action_type"`
	Success     bool                   `json:"success"`
	Message     string                 `json:"message,omitempty"`
}

// ActionCacheOutput is the ordered record of a whole task, produced once the
// task reaches a terminal status and retrievable by task id afterwards.
type ActionCacheOutput struct {
	TaskID    string             `json:"task_id"`
	CreatedAt time.Time          `json:"created_at"`
	Status    TaskStatus         `json:"status"`
	Entries   []ActionCacheEntry `json:"entries"`
}

// ReplayStepMeta describes how one cache entry was replayed: whether the
// cached xpath resolved, whether the instruction fallback was needed, and
// how many resolution attempts were spent.
type ReplayStepMeta struct {
	StepIndex         int    `json:"step_index"`
	CachedPathUsed    bool   `json:"cached_path_used"`
	FallbackUsed      bool   `json:"fallback_used"`
	Retries           int    `json:"retries"`
	CachedXPath       string `json:"cached_xpath,omitempty"`
	FallbackXPath     string `json:"fallback_xpath,omitempty"`
	FallbackElementID string `json:"fallback_element_id,omitempty"`
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
}

// ActionCacheReplayResult aggregates the per-step outcomes of one replay run.
// Status is COMPLETED only if every processed entry succeeded.
type ActionCacheReplayResult struct {
	ReplayID string           `json:"replay_id"`
	TaskID   string           `json:"task_id"`
	Steps    []ReplayStepMeta `json:"steps"`
	Status   TaskStatus       `json:"status"`
}
