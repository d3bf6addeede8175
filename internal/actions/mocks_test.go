package actions_test

import (
	"context"
	encodingjson "encoding/json"
	"time"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/actions"
	"github.com/xkilldash9x/pagepilot/internal/browser"
)

// stubAction is a minimal Action used to exercise the registry.
type stubAction struct {
	name string
}

func (s *stubAction) Name() string                   { return s.name }
func (s *stubAction) Description() string            { return "stub" }
func (s *stubAction) Schema() map[string]interface{} { return map[string]interface{}{} }
func (s *stubAction) Validate(encodingjson.RawMessage) error {
	return nil
}
func (s *stubAction) Execute(context.Context, *actions.ExecutionContext, encodingjson.RawMessage) (*actions.Result, error) {
	return &actions.Result{Success: true}, nil
}

// performCall records one low-level dispatch into fakePage.
type performCall struct {
	Frame  int
	Method string
	XPath  string
	Args   []interface{}
}

// fakePage records every call so executor tests can assert exact dispatch.
type fakePage struct {
	performs    []performCall
	performErr  error
	navigated   []string
	navErr      error
	wentBack    int
	reloaded    int
	waitedState []string
	extractOut  string
	extractErr  error
}

func (f *fakePage) TargetID() string { return "T1" }

func (f *fakePage) URL(context.Context) (string, error) { return "https://example.test/", nil }

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakePage) GoBack(context.Context) error {
	f.wentBack++
	return nil
}

func (f *fakePage) Reload(context.Context) error {
	f.reloaded++
	return nil
}

func (f *fakePage) WaitLoadState(_ context.Context, state string, _ time.Duration) error {
	f.waitedState = append(f.waitedState, state)
	return nil
}

func (f *fakePage) Perform(_ context.Context, frameIndex int, method, xpath string, args []interface{}) error {
	f.performs = append(f.performs, performCall{Frame: frameIndex, Method: method, XPath: xpath, Args: args})
	return f.performErr
}

func (f *fakePage) LocateByInstruction(context.Context, string) (*schemas.ElementNode, error) {
	return nil, browser.ErrElementNotFound
}

func (f *fakePage) Extract(context.Context, string) (string, error) {
	return f.extractOut, f.extractErr
}

// snapshotWith builds a one-element snapshot keyed by the encoded id.
func snapshotWith(id, xpath string) *schemas.Snapshot {
	return &schemas.Snapshot{
		URL:       "https://example.test/",
		Elements:  map[string]*schemas.ElementNode{id: {EncodedID: id, XPath: xpath, Tag: "button"}},
		Selectors: map[string]string{id: xpath},
	}
}
