// internal/actions/builtin.go
package actions

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepilot/internal/browser"
)

// builtin models one built-in action as a closed {validate, run, describe}
// variant keyed by name.
type builtin struct {
	name        string
	description string
	schema      map[string]interface{}
	validate    func(raw encodingjson.RawMessage) error
	run         func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error)
}

func (b *builtin) Name() string                   { return b.name }
func (b *builtin) Description() string            { return b.description }
func (b *builtin) Schema() map[string]interface{} { return b.schema }

func (b *builtin) Validate(raw encodingjson.RawMessage) error {
	if b.validate == nil {
		return nil
	}
	return b.validate(raw)
}

func (b *builtin) Execute(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
	return b.run(ctx, ec, raw)
}

// objectSchema assembles a JSON schema for an action's parameters.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func decodeParams(raw encodingjson.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		raw = encodingjson.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%s: %w", ErrCodeInvalidParameters, err)
	}
	return nil
}

// -- Parameter shapes --

// elementParams is shared by every DOM-touching action. Element accepts both
// string and number forms because the model may emit either; normalization
// happens once in resolveElement.
type elementParams struct {
	Element     interface{} `json:"element"`
	Instruction string      `json:"instruction,omitempty"`
}

type valueParams struct {
	elementParams
	Value string `json:"value"`
}

type checkedParams struct {
	elementParams
	Checked bool `json:"checked"`
}

type goToUrlParams struct {
	URL string `json:"url"`
}

type waitParams struct {
	Seconds float64 `json:"seconds"`
}

type loadStateParams struct {
	State string `json:"state,omitempty"`
}

type extractParams struct {
	Instruction string `json:"instruction"`
}

type completeParams struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
}

var elementProperty = map[string]interface{}{
	"type":        []string{"string", "number"},
	"description": "Encoded element id from the snapshot, e.g. \"0-1234\".",
}

var instructionProperty = map[string]interface{}{
	"type":        "string",
	"description": "Short human description of the target element, used to re-locate it during replay.",
}

// -- Built-in set --

func builtinActions() []Action {
	acts := []Action{
		&builtin{
			name:        "goToUrl",
			description: "Navigate the active page to an absolute URL.",
			schema: objectSchema(map[string]interface{}{
				"url": map[string]interface{}{"type": "string"},
			}, "url"),
			validate: func(raw encodingjson.RawMessage) error {
				var p goToUrlParams
				if err := decodeParams(raw, &p); err != nil {
					return err
				}
				if p.URL == "" {
					return fmt.Errorf("%s: url is required", ErrCodeInvalidParameters)
				}
				return nil
			},
			run: func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
				var p goToUrlParams
				if err := decodeParams(raw, &p); err != nil {
					return nil, err
				}
				if err := ec.Page.Navigate(ctx, p.URL); err != nil {
					return nil, fmt.Errorf("%s: %w", ErrCodeNavigationError, err)
				}
				return &Result{Success: true, Message: fmt.Sprintf("navigated to %s", p.URL)}, nil
			},
		},
		&builtin{
			name:        "goBack",
			description: "Go back one entry in the active page's history.",
			schema:      objectSchema(map[string]interface{}{}),
			run: func(ctx context.Context, ec *ExecutionContext, _ encodingjson.RawMessage) (*Result, error) {
				if err := ec.Page.GoBack(ctx); err != nil {
					return nil, fmt.Errorf("%s: %w", ErrCodeNavigationError, err)
				}
				return &Result{Success: true, Message: "went back"}, nil
			},
		},
		&builtin{
			name:        "reload",
			description: "Reload the active page.",
			schema:      objectSchema(map[string]interface{}{}),
			run: func(ctx context.Context, ec *ExecutionContext, _ encodingjson.RawMessage) (*Result, error) {
				if err := ec.Page.Reload(ctx); err != nil {
					return nil, fmt.Errorf("%s: %w", ErrCodeNavigationError, err)
				}
				return &Result{Success: true, Message: "reloaded"}, nil
			},
		},
		&builtin{
			name:        "wait",
			description: "Wait for a fixed number of seconds.",
			schema: objectSchema(map[string]interface{}{
				"seconds": map[string]interface{}{"type": "number", "minimum": 0},
			}, "seconds"),
			validate: func(raw encodingjson.RawMessage) error {
				var p waitParams
				if err := decodeParams(raw, &p); err != nil {
					return err
				}
				if p.Seconds <= 0 || p.Seconds > 120 {
					return fmt.Errorf("%s: seconds must be in (0, 120], got %v", ErrCodeInvalidParameters, p.Seconds)
				}
				return nil
			},
			run: func(ctx context.Context, _ *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
				var p waitParams
				if err := decodeParams(raw, &p); err != nil {
					return nil, err
				}
				select {
				case <-time.After(time.Duration(p.Seconds * float64(time.Second))):
					return &Result{Success: true, Message: fmt.Sprintf("waited %.1fs", p.Seconds)}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
		&builtin{
			name:        "waitForLoadState",
			description: "Wait for the page to reach a lifecycle state (load, domcontentloaded, networkidle).",
			schema: objectSchema(map[string]interface{}{
				"state": map[string]interface{}{
					"type": "string",
					"enum": []string{"load", "domcontentloaded", "networkidle"},
				},
			}),
			validate: func(raw encodingjson.RawMessage) error {
				var p loadStateParams
				if err := decodeParams(raw, &p); err != nil {
					return err
				}
				switch p.State {
				case "", "load", "domcontentloaded", "networkidle":
					return nil
				}
				return fmt.Errorf("%s: unknown load state %q", ErrCodeInvalidParameters, p.State)
			},
			run: func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
				var p loadStateParams
				if err := decodeParams(raw, &p); err != nil {
					return nil, err
				}
				state := p.State
				if state == "" {
					state = "load"
				}
				if err := ec.Page.WaitLoadState(ctx, state, 0); err != nil {
					return nil, fmt.Errorf("%s: %w", ErrCodeTimeoutError, err)
				}
				return &Result{Success: true, Message: fmt.Sprintf("reached %s", state)}, nil
			},
		},
		&builtin{
			name:        "extract",
			description: "Extract information from the current page per the instruction.",
			schema: objectSchema(map[string]interface{}{
				"instruction": map[string]interface{}{"type": "string"},
			}, "instruction"),
			validate: func(raw encodingjson.RawMessage) error {
				var p extractParams
				if err := decodeParams(raw, &p); err != nil {
					return err
				}
				if p.Instruction == "" {
					return fmt.Errorf("%s: instruction is required", ErrCodeInvalidParameters)
				}
				return nil
			},
			run: func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
				var p extractParams
				if err := decodeParams(raw, &p); err != nil {
					return nil, err
				}
				data, err := ec.Page.Extract(ctx, p.Instruction)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", ErrCodeExtractionUnsupported, err)
				}
				return &Result{
					Success:     true,
					Message:     "extracted",
					Extracted:   data,
					Instruction: p.Instruction,
				}, nil
			},
		},
		&builtin{
			name:        CompleteActionName,
			description: "Finish the task, declaring success or failure and an optional output.",
			schema: objectSchema(map[string]interface{}{
				"success": map[string]interface{}{"type": "boolean"},
				"output":  map[string]interface{}{"type": "string"},
			}, "success"),
			run: func(_ context.Context, _ *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
				var p completeParams
				if err := decodeParams(raw, &p); err != nil {
					return nil, err
				}
				msg := "task declared complete"
				if !p.Success {
					msg = "task declared failed"
				}
				return &Result{
					Success:     true,
					Message:     msg,
					TaskDone:    true,
					TaskSuccess: p.Success,
					Output:      p.Output,
				}, nil
			},
		},
	}

	// DOM-touching actions share the element resolution and dispatch path.
	acts = append(acts,
		elementAction("click", "Click an element.", browser.MethodClick, nil),
		elementAction("hover", "Hover over an element.", browser.MethodHover, nil),
		elementAction("scroll", "Scroll an element into view.", browser.MethodScroll, nil),
		valueAction("fill", "Replace an input's value in one shot.", browser.MethodFill),
		valueAction("type", "Type text into an element key by key.", browser.MethodType),
		valueAction("selectOption", "Select a dropdown option by value.", browser.MethodSelect),
		&builtin{
			name:        "setChecked",
			description: "Check or uncheck a checkbox or radio button.",
			schema: objectSchema(map[string]interface{}{
				"element":     elementProperty,
				"checked":     map[string]interface{}{"type": "boolean"},
				"instruction": instructionProperty,
			}, "element", "checked"),
			validate: func(raw encodingjson.RawMessage) error {
				var p checkedParams
				if err := decodeParams(raw, &p); err != nil {
					return err
				}
				if p.Element == nil {
					return fmt.Errorf("%s: element is required", ErrCodeInvalidParameters)
				}
				return nil
			},
			run: func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
				var p checkedParams
				if err := decodeParams(raw, &p); err != nil {
					return nil, err
				}
				return performOnElement(ctx, ec, p.elementParams, browser.MethodSetChecked, []interface{}{p.Checked})
			},
		},
	)

	return acts
}

// elementAction builds a DOM action whose only parameter is the target
// element (click, hover, scroll).
func elementAction(name, description, method string, args []interface{}) Action {
	return &builtin{
		name:        name,
		description: description,
		schema: objectSchema(map[string]interface{}{
			"element":     elementProperty,
			"instruction": instructionProperty,
		}, "element"),
		validate: func(raw encodingjson.RawMessage) error {
			var p elementParams
			if err := decodeParams(raw, &p); err != nil {
				return err
			}
			if p.Element == nil {
				return fmt.Errorf("%s: element is required", ErrCodeInvalidParameters)
			}
			return nil
		},
		run: func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
			var p elementParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return performOnElement(ctx, ec, p, method, args)
		},
	}
}

// valueAction builds a DOM action taking a target element plus a string
// value (fill, type, selectOption).
func valueAction(name, description, method string) Action {
	return &builtin{
		name:        name,
		description: description,
		schema: objectSchema(map[string]interface{}{
			"element":     elementProperty,
			"value":       map[string]interface{}{"type": "string"},
			"instruction": instructionProperty,
		}, "element", "value"),
		validate: func(raw encodingjson.RawMessage) error {
			var p valueParams
			if err := decodeParams(raw, &p); err != nil {
				return err
			}
			if p.Element == nil {
				return fmt.Errorf("%s: element is required", ErrCodeInvalidParameters)
			}
			return nil
		},
		run: func(ctx context.Context, ec *ExecutionContext, raw encodingjson.RawMessage) (*Result, error) {
			var p valueParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return performOnElement(ctx, ec, p.elementParams, method, []interface{}{p.Value})
		},
	}
}

// performOnElement resolves the element and dispatches the low-level method,
// returning a result carrying the exact physical targeting for the cache.
func performOnElement(ctx context.Context, ec *ExecutionContext, p elementParams, method string, args []interface{}) (*Result, error) {
	id, frameIndex, xpath, err := resolveElement(ec, p.Element)
	if err != nil {
		return nil, err
	}
	if err := ec.Page.Perform(ctx, frameIndex, method, xpath, args); err != nil {
		return nil, fmt.Errorf("%s: %s on %s: %w", ErrCodeExecutionFailure, method, id, err)
	}
	return &Result{
		Success:     true,
		Message:     fmt.Sprintf("%s on %s", method, id),
		ElementID:   id,
		FrameIndex:  frameIndex,
		XPath:       xpath,
		Method:      method,
		Args:        args,
		Instruction: p.Instruction,
	}, nil
}
