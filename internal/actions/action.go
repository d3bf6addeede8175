// internal/actions/action.go
package actions

import (
	"context"
	encodingjson "encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

// CompleteActionName is the reserved action the model invokes to finish a
// task. The decision loop treats it specially; no other action may claim it.
const CompleteActionName = "complete"

// ExecutionContext carries everything an action executor may need: the live
// page, the snapshot the model decided against, a model handle for
// extraction-style actions, and the task's variable bag.
type ExecutionContext struct {
	Page     browser.Page
	Snapshot *schemas.Snapshot
	Model    schemas.LLMClient
	Vars     map[string]string
	Logger   *zap.Logger
}

// Result is an action's outcome plus the physical targeting details the
// cache needs to reproduce the step without another model call.
type Result struct {
	Success   bool
	Message   string
	Extracted string

	// How the element was physically targeted, if the action touched one.
	ElementID  string
	FrameIndex int
	XPath      string
	Method     string
	Args       []interface{}

	// Free-form instruction describing the element, kept for replay fallback.
	Instruction string

	// Set only by the reserved complete action.
	TaskDone    bool
	TaskSuccess bool
	Output      string
}

// Action is one pluggable operation type selectable by the decision loop.
// Each action owns its parameter schema and validation; the registry enforces
// name uniqueness at registration time, never at call time.
type Action interface {
	Name() string
	Description() string
	// Schema declares the JSON shape of Params for the model.
	Schema() map[string]interface{}
	// Validate rejects malformed parameters before execution. A validation
	// failure is recorded as a failed step, not a fatal loop error.
	Validate(params encodingjson.RawMessage) error
	Execute(ctx context.Context, ec *ExecutionContext, params encodingjson.RawMessage) (*Result, error)
}

// resolveElement normalizes a raw element reference from the model and looks
// up its xpath in the snapshot captured for this cycle.
func resolveElement(ec *ExecutionContext, raw interface{}) (id string, frameIndex int, xpath string, err error) {
	id, err = dom.NormalizeElementID(raw)
	if err != nil {
		return "", 0, "", fmt.Errorf("%s: %w", ErrCodeInvalidParameters, err)
	}
	if ec.Snapshot == nil {
		return "", 0, "", fmt.Errorf("%s: no snapshot to resolve element %s against", ErrCodeElementNotFound, id)
	}

	frameIndex, _, err = dom.DecodeElementID(id)
	if err != nil {
		return "", 0, "", fmt.Errorf("%s: %w", ErrCodeInvalidParameters, err)
	}

	if xpath = ec.Snapshot.Selectors[id]; xpath == "" {
		if el, ok := ec.Snapshot.ElementByID(id); ok {
			xpath = el.XPath
		}
	}
	if xpath == "" {
		return "", 0, "", fmt.Errorf("%s: element %s is not in the current snapshot", ErrCodeElementNotFound, id)
	}
	return id, frameIndex, xpath, nil
}
