// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Low-level method names recorded into the action cache. Replay re-issues a
// recorded method verbatim, so these strings are part of the cache format.
const (
	MethodClick      = "click"
	MethodFill       = "fill"
	MethodType       = "type"
	MethodSelect     = "selectOption"
	MethodHover      = "hover"
	MethodSetChecked = "setChecked"
	MethodScroll     = "scrollIntoView"
)

var (
	// ErrElementNotFound means an xpath (or encoded id) did not resolve on the
	// live page. Callers treat it as the trigger for the fallback chain.
	ErrElementNotFound = errors.New("element not found")
	// ErrReadinessTimeout means an element readiness wait (enabled, stable)
	// expired. Recoverable; replay retries or falls back.
	ErrReadinessTimeout = errors.New("element readiness wait timed out")
	// ErrExtractionUnsupported means the page has no extraction capability
	// wired, so extract steps cannot be replayed against it.
	ErrExtractionUnsupported = errors.New("page has no extraction capability")
)

// Page is the contract consumed from the low-level browser driver. One Page
// is one target (tab); element operations address nodes by a frame index
// plus an xpath local to that frame's document, produced either by the
// snapshotter or by the fallback locator.
type Page interface {
	// TargetID identifies the tab for multi-tab tracking.
	TargetID() string
	URL(ctx context.Context) (string, error)

	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	Reload(ctx context.Context) error
	// WaitLoadState blocks until the given lifecycle state ("load",
	// "domcontentloaded", "networkidle") or the timeout.
	WaitLoadState(ctx context.Context, state string, timeout time.Duration) error

	// Perform executes one low-level element method against the node at
	// xpath inside the given frame. Frame 0 is the main document; higher
	// indices follow snapshot pre-order, matching the encoded element ids.
	// Returns ErrElementNotFound when the xpath does not resolve there.
	Perform(ctx context.Context, frameIndex int, method, xpath string, args []interface{}) error

	// LocateByInstruction re-locates an element from free-form instruction
	// text, used by the replay fallback when a cached xpath went stale.
	LocateByInstruction(ctx context.Context, instruction string) (*schemas.ElementNode, error)

	// Extract answers an extraction instruction from the current page
	// content. Returns ErrExtractionUnsupported when no extractor is wired.
	Extract(ctx context.Context, instruction string) (string, error)
}

// PageSupplier yields the page an operation should run against at call time.
// Replay takes a supplier rather than a page so the target can legitimately
// change between steps (e.g. a popup became the active tab).
type PageSupplier func() Page

// Snapshotter is the contract consumed from the DOM-extraction collaborator.
// Capture returns a snapshot whose serialized form fits tokenBudget.
type Snapshotter interface {
	Capture(ctx context.Context, page Page, tokenBudget int) (*schemas.Snapshot, error)
}
