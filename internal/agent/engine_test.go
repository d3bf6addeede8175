package agent_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/actions"
	"github.com/xkilldash9x/pagepilot/internal/agent"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/cache"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedLLM returns canned responses in order, wrapped in markdown fences
// the way real models tend to answer even when asked for raw JSON.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *scriptedLLM) GenerateResponse(context.Context, schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("scripted llm exhausted after %d calls", s.calls)
	}
	r := s.responses[s.calls]
	s.calls++
	return "```json\n" + r + "\n```", nil
}

type fakePage struct {
	mu        sync.Mutex
	performs  []string
	navigated []string
}

func (f *fakePage) TargetID() string                    { return "T1" }
func (f *fakePage) URL(context.Context) (string, error) { return "https://example.test/", nil }
func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return nil
}
func (f *fakePage) GoBack(context.Context) error { return nil }
func (f *fakePage) Reload(context.Context) error { return nil }
func (f *fakePage) WaitLoadState(context.Context, string, time.Duration) error {
	return nil
}
func (f *fakePage) Perform(_ context.Context, _ int, method, xpath string, _ []interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performs = append(f.performs, method+" "+xpath)
	return nil
}
func (f *fakePage) LocateByInstruction(context.Context, string) (*schemas.ElementNode, error) {
	return nil, browser.ErrElementNotFound
}
func (f *fakePage) Extract(context.Context, string) (string, error) {
	return "", browser.ErrExtractionUnsupported
}

type fakeSnapshotter struct{}

func (fakeSnapshotter) Capture(context.Context, browser.Page, int) (*schemas.Snapshot, error) {
	return &schemas.Snapshot{
		URL:        "https://example.test/",
		Title:      "Example",
		Elements:   map[string]*schemas.ElementNode{"0-42": {EncodedID: "0-42", XPath: "//button[1]", Tag: "button"}},
		Selectors:  map[string]string{"0-42": "//button[1]"},
		Serialized: `[0-42] <button> "Go"`,
	}, nil
}

func newEngine(t *testing.T, llm schemas.LLMClient, page browser.Page, store cache.Store) *agent.Engine {
	t.Helper()
	return agent.NewEngine(
		zap.NewNop(),
		config.AgentConfig{MaxSteps: 5, SnapshotTokenBudget: 4000, MaxConcurrentTasks: 2},
		config.BrowserConfig{NavigationTimeout: time.Second, ActionTimeout: time.Second},
		actions.NewDefaultRegistry(zap.NewNop()),
		llm,
		func() browser.Page { return page },
		fakeSnapshotter{},
		store,
	)
}

func TestTaskRunsToCompletion(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"reasoning": "click it", "memory": "clicked go", "action": "click", "params": {"element": "0-42", "instruction": "the go button"}}`,
		`{"reasoning": "done", "memory": "finished", "action": "complete", "params": {"success": true, "output": "all good"}}`,
	}}
	page := &fakePage{}
	store := cache.NewMemoryStore()
	e := newEngine(t, llm, page, store)

	h, err := e.Submit(context.Background(), "press the go button", "https://example.test/start")
	require.NoError(t, err)

	res := h.Result()
	assert.Equal(t, schemas.TaskStatusCompleted, res.Status)
	assert.Equal(t, "all good", res.Output)
	require.Len(t, res.Steps, 2)
	assert.True(t, res.Steps[0].Success)

	assert.Equal(t, []string{"https://example.test/start"}, page.navigated)
	assert.Equal(t, []string{"click //button[1]"}, page.performs)

	// The persisted trace freezes the physical targeting of each step.
	trace, err := store.Get(context.Background(), h.ID())
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskStatusCompleted, trace.Status)
	require.Len(t, trace.Entries, 2)
	first := trace.Entries[0]
	assert.Equal(t, "click", first.ActionType)
	assert.Equal(t, "0-42", first.ElementID)
	assert.Equal(t, "//button[1]", first.XPath)
	assert.Equal(t, "the go button", first.Instruction)
	assert.Equal(t, "complete", trace.Entries[1].ActionType)
	e.Wait()
}

func TestUnknownActionIsAFailedStepNotAFailedTask(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"reasoning": "try", "action": "teleport", "params": {}}`,
		`{"reasoning": "ok then", "action": "complete", "params": {"success": true}}`,
	}}
	store := cache.NewMemoryStore()
	e := newEngine(t, llm, &fakePage{}, store)

	h, err := e.Submit(context.Background(), "do a thing", "")
	require.NoError(t, err)

	res := h.Result()
	assert.Equal(t, schemas.TaskStatusCompleted, res.Status)
	require.Len(t, res.Steps, 2)
	assert.False(t, res.Steps[0].Success)
	assert.Contains(t, res.Steps[0].Message, string(actions.ErrCodeUnknownAction))

	// Failed dispatches never reach the trace.
	trace, err := store.Get(context.Background(), h.ID())
	require.NoError(t, err)
	require.Len(t, trace.Entries, 1)
	assert.Equal(t, "complete", trace.Entries[0].ActionType)
	e.Wait()
}

func TestInvalidParamsIsAFailedStep(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"reasoning": "oops", "action": "click", "params": {}}`,
		`{"reasoning": "give up", "action": "complete", "params": {"success": false}}`,
	}}
	e := newEngine(t, llm, &fakePage{}, cache.NewMemoryStore())

	h, err := e.Submit(context.Background(), "do a thing", "")
	require.NoError(t, err)

	res := h.Result()
	assert.Equal(t, schemas.TaskStatusFailed, res.Status)
	assert.False(t, res.Steps[0].Success)
	assert.Contains(t, res.Steps[0].Message, string(actions.ErrCodeInvalidParameters))
	e.Wait()
}

func TestStepBudgetExhaustionFailsTask(t *testing.T) {
	// The model keeps clicking and never completes.
	responses := make([]string, 6)
	for i := range responses {
		responses[i] = `{"reasoning": "again", "action": "click", "params": {"element": "0-42"}}`
	}
	e := newEngine(t, &scriptedLLM{responses: responses}, &fakePage{}, cache.NewMemoryStore())

	h, err := e.Submit(context.Background(), "loop forever", "")
	require.NoError(t, err)

	res := h.Result()
	assert.Equal(t, schemas.TaskStatusFailed, res.Status)
	assert.Contains(t, res.Error, h.ID())
	assert.Contains(t, res.Error, "step budget")
	e.Wait()
}

func TestCancelBeforeStartYieldsCancelled(t *testing.T) {
	llm := &scriptedLLM{responses: []string{}}
	store := cache.NewMemoryStore()
	e := newEngine(t, llm, &fakePage{}, store)

	h, err := e.Submit(context.Background(), "never mind", "")
	require.NoError(t, err)
	h.Cancel()

	res := h.Result()
	e.Wait()
	if res.Status != schemas.TaskStatusCancelled {
		// The loop may have started before the cancel landed; either way the
		// task must end terminal without completing.
		assert.True(t, res.Status.IsTerminal())
		assert.NotEqual(t, schemas.TaskStatusCompleted, res.Status)
	}
}

// gatedLLM holds its first response back until the gate opens, keeping the
// task observably live.
type gatedLLM struct {
	gate     chan struct{}
	response string
}

func (g *gatedLLM) GenerateResponse(ctx context.Context, _ schemas.GenerationRequest) (string, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "```json\n" + g.response + "\n```", nil
}

func TestGetReturnsLiveTaskAndDropsFinished(t *testing.T) {
	gate := make(chan struct{})
	llm := &gatedLLM{gate: gate, response: `{"reasoning": "", "action": "complete", "params": {"success": true}}`}
	e := newEngine(t, llm, &fakePage{}, cache.NewMemoryStore())

	h, err := e.Submit(context.Background(), "t", "")
	require.NoError(t, err)

	got, ok := e.Get(h.ID())
	require.True(t, ok)
	assert.Equal(t, h.ID(), got.ID())

	_, ok = e.Get("missing")
	assert.False(t, ok)

	close(gate)
	h.Result()
	e.Wait()

	_, ok = e.Get(h.ID())
	assert.False(t, ok, "terminal tasks leave the live set")
}
