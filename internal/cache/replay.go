// internal/cache/replay.go
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
)

// retryPause separates consecutive attempts to resolve a cached xpath, giving
// slow-rendering pages a chance to settle.
const retryPause = 250 * time.Millisecond

// ReplayOptions tunes one replay run.
type ReplayOptions struct {
	// MaxXPathRetries is the total number of attempts to act through the
	// cached xpath before the instruction fallback is considered.
	MaxXPathRetries int
	// Debug logs every individual resolution attempt.
	Debug bool
}

// Replayer re-executes a recorded trace against a live page without any
// model involvement, unless a cached xpath has gone stale and the recorded
// instruction must be used to re-locate the element.
type Replayer struct {
	logger *zap.Logger
	store  Store
	opts   ReplayOptions
}

func NewReplayer(logger *zap.Logger, store Store, opts ReplayOptions) *Replayer {
	if opts.MaxXPathRetries < 1 {
		opts.MaxXPathRetries = 1
	}
	return &Replayer{
		logger: logger.Named("replay"),
		store:  store,
		opts:   opts,
	}
}

// Replay loads the trace recorded for taskID and replays it entry by entry,
// in ascending step order. The supplier is consulted per entry because a
// replayed step can legitimately change the active tab. The first entry that
// cannot be reproduced halts the run; entries after it are not processed.
func (r *Replayer) Replay(ctx context.Context, taskID string, pages browser.PageSupplier) (*schemas.ActionCacheReplayResult, error) {
	trace, err := r.store.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading trace for task %s: %w", taskID, err)
	}

	entries := make([]schemas.ActionCacheEntry, len(trace.Entries))
	copy(entries, trace.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].StepIndex < entries[j].StepIndex })

	result := &schemas.ActionCacheReplayResult{
		ReplayID: uuid.NewString(),
		TaskID:   taskID,
		Status:   schemas.TaskStatusCompleted,
	}
	logger := r.logger.With(zap.String("task_id", taskID), zap.String("replay_id", result.ReplayID))
	logger.Info("Replay started.", zap.Int("entries", len(entries)))

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		page := pages()
		if page == nil {
			result.Steps = append(result.Steps, schemas.ReplayStepMeta{
				StepIndex: entry.StepIndex,
				Message:   "no active page to replay against",
			})
			result.Status = schemas.TaskStatusFailed
			break
		}

		meta := r.replayEntry(ctx, logger, page, entry)
		result.Steps = append(result.Steps, meta)

		if !meta.Success {
			logger.Warn("Replay halted on failed step.",
				zap.Int("step", entry.StepIndex),
				zap.String("message", meta.Message))
			result.Status = schemas.TaskStatusFailed
			break
		}
	}

	logger.Info("Replay finished.",
		zap.String("status", string(result.Status)),
		zap.Int("steps_processed", len(result.Steps)))
	return result, nil
}

// replayEntry reproduces one recorded step. A panic in the underlying driver
// is contained and reported as that step's failure.
func (r *Replayer) replayEntry(ctx context.Context, logger *zap.Logger, page browser.Page, entry schemas.ActionCacheEntry) (meta schemas.ReplayStepMeta) {
	meta = schemas.ReplayStepMeta{
		StepIndex:   entry.StepIndex,
		CachedXPath: entry.XPath,
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic recovered during replay step.",
				zap.Int("step", entry.StepIndex),
				zap.Any("panic_value", rec),
				zap.Stack("stack"))
			meta.Success = false
			meta.Message = fmt.Sprintf("panic while replaying step %d: %v", entry.StepIndex, rec)
		}
	}()

	// Entries without a physical method were not element-bound; they are
	// simply re-issued.
	if entry.Method == "" {
		if err := r.reissue(ctx, page, entry); err != nil {
			meta.Message = err.Error()
			return meta
		}
		meta.Success = true
		meta.Message = fmt.Sprintf("re-issued %s", entry.ActionType)
		return meta
	}

	// Cached physical path first. The xpath recorded at execution time is
	// usually still valid and costs nothing to try.
	if entry.XPath != "" {
		for attempt := 0; attempt < r.opts.MaxXPathRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(retryPause):
				case <-ctx.Done():
					meta.Message = ctx.Err().Error()
					return meta
				}
			}

			err := page.Perform(ctx, entry.FrameIndex, entry.Method, entry.XPath, entry.Args)
			if err == nil {
				meta.Success = true
				meta.CachedPathUsed = true
				meta.Message = fmt.Sprintf("%s via cached xpath", entry.Method)
				return meta
			}
			meta.Retries++
			if r.opts.Debug {
				logger.Debug("Cached xpath attempt failed.",
					zap.Int("step", entry.StepIndex),
					zap.Int("attempt", attempt+1),
					zap.String("xpath", entry.XPath),
					zap.Error(err))
			}
		}
	}

	// The cached xpath is stale (or absent). Fall back to re-locating the
	// element from the recorded instruction.
	if entry.Instruction == "" {
		meta.Message = fmt.Sprintf("cannot replay step %d: cached xpath did not resolve and no instruction was recorded", entry.StepIndex)
		return meta
	}

	meta.FallbackUsed = true
	node, err := page.LocateByInstruction(ctx, entry.Instruction)
	if err != nil {
		meta.Message = fmt.Sprintf("fallback locate for %q: %v", entry.Instruction, err)
		return meta
	}
	meta.FallbackXPath = node.XPath
	meta.FallbackElementID = node.EncodedID

	if err := page.Perform(ctx, node.FrameIndex, entry.Method, node.XPath, entry.Args); err != nil {
		meta.Message = fmt.Sprintf("%s via fallback xpath: %v", entry.Method, err)
		return meta
	}
	meta.Success = true
	meta.Message = fmt.Sprintf("%s via instruction fallback", entry.Method)
	return meta
}

// reissue replays a non-element action from its recorded parameters.
func (r *Replayer) reissue(ctx context.Context, page browser.Page, entry schemas.ActionCacheEntry) error {
	switch entry.ActionType {
	case "goToUrl":
		url, _ := entry.Params["url"].(string)
		if url == "" {
			return fmt.Errorf("recorded goToUrl step %d carries no url", entry.StepIndex)
		}
		return page.Navigate(ctx, url)

	case "goBack":
		return page.GoBack(ctx)

	case "reload":
		return page.Reload(ctx)

	case "wait":
		seconds, _ := entry.Params["seconds"].(float64)
		select {
		case <-time.After(time.Duration(seconds * float64(time.Second))):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case "waitForLoadState":
		state, _ := entry.Params["state"].(string)
		if state == "" {
			state = "load"
		}
		return page.WaitLoadState(ctx, state, 0)

	case "extract":
		instruction := entry.Instruction
		if instruction == "" {
			instruction, _ = entry.Params["instruction"].(string)
		}
		out, err := page.Extract(ctx, instruction)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("extraction for step %d returned nothing", entry.StepIndex)
		}
		return nil

	case "complete":
		// The terminal marker carries no page effect.
		return nil

	default:
		return fmt.Errorf("recorded step %d has action %q with no physical method", entry.StepIndex, entry.ActionType)
	}
}
