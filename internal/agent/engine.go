// internal/agent/engine.go
package agent

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/actions"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/cache"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/task"
)

// stepLookback bounds how many recent steps are replayed into the prompt.
const stepLookback = 10

// Engine owns every live task: it submits them, runs their decision loops
// under a concurrency cap, and hands the finished trace to the action cache.
type Engine struct {
	logger      *zap.Logger
	cfg         config.AgentConfig
	browserCfg  config.BrowserConfig
	registry    *actions.Registry
	mind        *Mind
	model       schemas.LLMClient
	pages       browser.PageSupplier
	snapshotter browser.Snapshotter
	store       cache.Store

	sem *semaphore.Weighted

	mu    sync.Mutex
	tasks map[string]*task.Handle
	wg    sync.WaitGroup
}

func NewEngine(
	logger *zap.Logger,
	cfg config.AgentConfig,
	browserCfg config.BrowserConfig,
	registry *actions.Registry,
	model schemas.LLMClient,
	pages browser.PageSupplier,
	snapshotter browser.Snapshotter,
	store cache.Store,
) *Engine {
	maxConcurrent := cfg.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Engine{
		logger:      logger.Named("agent"),
		cfg:         cfg,
		browserCfg:  browserCfg,
		registry:    registry,
		mind:        NewMind(logger, model),
		model:       model,
		pages:       pages,
		snapshotter: snapshotter,
		store:       store,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		tasks:       make(map[string]*task.Handle),
	}
}

// Submit creates a task and starts its decision loop in the background. The
// returned handle controls and awaits the task.
func (e *Engine) Submit(ctx context.Context, description, startURL string) (*task.Handle, error) {
	if description == "" {
		return nil, fmt.Errorf("task description is required")
	}

	h := task.New(e.logger, description, startURL)
	e.mu.Lock()
	e.tasks[h.ID()] = h
	e.mu.Unlock()

	e.logger.Info("Task submitted.", zap.String("task_id", h.ID()), zap.String("description", description))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.remove(h.ID())
		e.run(ctx, h)
	}()
	return h, nil
}

// Get returns the handle of a live task. Finished tasks are dropped from the
// live set; their outcome survives in the persisted trace.
func (e *Engine) Get(taskID string) (*task.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.tasks[taskID]
	return h, ok
}

func (e *Engine) remove(taskID string) {
	e.mu.Lock()
	delete(e.tasks, taskID)
	e.mu.Unlock()
}

// Wait blocks until every submitted task has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// run drives one task to a terminal state and persists its action trace.
func (e *Engine) run(ctx context.Context, h *task.Handle) {
	logger := e.logger.With(zap.String("task_id", h.ID()))

	if err := e.sem.Acquire(ctx, 1); err != nil {
		h.Fail(fmt.Errorf("task %s: %w", h.ID(), err))
		e.saveTrace(h, nil)
		return
	}
	defer e.sem.Release(1)

	if !h.Start() {
		e.saveTrace(h, nil)
		return
	}

	var entries []schemas.ActionCacheEntry
	fail := func(err error) {
		logger.Error("Task failed.", zap.Error(err))
		h.Fail(fmt.Errorf("task %s: %w", h.ID(), err))
		e.saveTrace(h, entries)
	}

	page := e.pages()
	if page == nil {
		fail(fmt.Errorf("no active page"))
		return
	}

	if startURL := h.Snapshot().StartURL; startURL != "" {
		navCtx, cancel := context.WithTimeout(ctx, e.browserCfg.NavigationTimeout)
		err := page.Navigate(navCtx, startURL)
		cancel()
		if err != nil {
			fail(fmt.Errorf("initial navigation to %s: %w", startURL, err))
			return
		}
	}

	memory := ""
	for stepIdx := 0; ; stepIdx++ {
		// Pause and cancellation are observed here, between cycles, never
		// mid-action.
		if h.Checkpoint() {
			logger.Info("Task cancelled at cycle boundary.")
			e.saveTrace(h, entries)
			return
		}
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
		if stepIdx >= e.cfg.MaxSteps {
			fail(fmt.Errorf("step budget of %d exhausted", e.cfg.MaxSteps))
			return
		}

		// The supplier is re-consulted every cycle; a popup may have changed
		// the active page since the last one.
		page = e.pages()
		if page == nil {
			fail(fmt.Errorf("active page disappeared"))
			return
		}

		snapshot, err := e.snapshotter.Capture(ctx, page, e.cfg.SnapshotTokenBudget)
		if err != nil {
			fail(fmt.Errorf("snapshot capture: %w", err))
			return
		}

		decision, err := e.mind.Decide(ctx, h.Snapshot().Description, memory, lastSteps(h, stepLookback), snapshot, e.registry.Schemas())
		if err != nil {
			fail(err)
			return
		}
		if decision.Memory != "" {
			memory = decision.Memory
		}

		step := schemas.AgentStep{Index: stepIdx, Decision: decision}
		result, execErr := e.dispatch(ctx, page, snapshot, decision)
		if execErr != nil {
			// A bad decision is a failed step, not a dead task. The failure
			// is fed back to the model on the next cycle.
			step.Success = false
			step.Message = execErr.Error()
			h.RecordStep(step)
			logger.Warn("Step failed.", zap.Int("step", stepIdx), zap.String("action", decision.Action), zap.Error(execErr))
			continue
		}

		step.Success = result.Success
		step.Message = result.Message
		h.RecordStep(step)
		entries = append(entries, buildCacheEntry(stepIdx, decision, result))

		logger.Debug("Step executed.",
			zap.Int("step", stepIdx),
			zap.String("action", decision.Action),
			zap.Bool("success", result.Success))

		if result.TaskDone {
			output := result.Output
			if output == "" {
				output = result.Extracted
			}
			h.Complete(result.TaskSuccess, output)
			e.saveTrace(h, entries)
			return
		}
	}
}

// dispatch validates and executes one decided action, containing panics from
// action executors.
func (e *Engine) dispatch(ctx context.Context, page browser.Page, snapshot *schemas.Snapshot, decision schemas.AgentDecision) (result *actions.Result, err error) {
	act, ok := e.registry.Get(decision.Action)
	if !ok {
		return nil, fmt.Errorf("%s: %q", actions.ErrCodeUnknownAction, decision.Action)
	}

	params := encodingjson.RawMessage(decision.Params)
	if err := act.Validate(params); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during action execution.",
				zap.String("action", decision.Action),
				zap.Any("panic_value", r),
				zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("%s: panic in %s: %v", actions.ErrCodeExecutionFailure, decision.Action, r)
		}
	}()

	actionTimeout := e.browserCfg.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = 15 * time.Second
	}
	actCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	ec := &actions.ExecutionContext{
		Page:     page,
		Snapshot: snapshot,
		Model:    e.model,
		Logger:   e.logger,
	}
	return act.Execute(actCtx, ec, params)
}

// buildCacheEntry freezes the physical targeting of one executed step.
func buildCacheEntry(stepIdx int, decision schemas.AgentDecision, result *actions.Result) schemas.ActionCacheEntry {
	var params map[string]interface{}
	if len(decision.Params) > 0 {
		// A decode failure here means the params already passed validation in
		// a non-map shape; keep the entry without them.
		_ = json.Unmarshal(decision.Params, &params)
	}
	return schemas.ActionCacheEntry{
		StepIndex:   stepIdx,
		Instruction: result.Instruction,
		ElementID:   result.ElementID,
		Method:      result.Method,
		Args:        result.Args,
		Params:      params,
		FrameIndex:  result.FrameIndex,
		XPath:       result.XPath,
		ActionType:  decision.Action,
		Success:     result.Success,
		Message:     result.Message,
	}
}

func (e *Engine) saveTrace(h *task.Handle, entries []schemas.ActionCacheEntry) {
	out := &schemas.ActionCacheOutput{
		TaskID:    h.ID(),
		CreatedAt: time.Now().UTC(),
		Status:    h.Status(),
		Entries:   entries,
	}
	if err := e.store.Save(context.Background(), out); err != nil {
		e.logger.Error("Failed to persist action trace.", zap.String("task_id", h.ID()), zap.Error(err))
	}
}

func lastSteps(h *task.Handle, n int) []schemas.AgentStep {
	steps := h.Snapshot().Steps
	if len(steps) > n {
		steps = steps[len(steps)-n:]
	}
	return steps
}
