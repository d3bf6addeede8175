// internal/browser/tabs/stack.go
package tabs

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/browser"
)

// Stack tracks the active page for one task as a stack of tabs. A child tab
// becomes the new focus only when its opener is the page currently on top;
// tabs opened by unrelated pages are ignored. Closing any page removes it
// from whatever position it occupies.
type Stack struct {
	mu     sync.Mutex
	logger *zap.Logger
	pages  []browser.Page
}

// New creates a tab stack seeded with the task's starting page.
func New(logger *zap.Logger, root browser.Page) *Stack {
	s := &Stack{logger: logger.Named("tabs")}
	if root != nil {
		s.pages = []browser.Page{root}
	}
	return s
}

// Active returns the page on top of the stack at call time, or nil when
// every tracked page has closed. The answer may legitimately differ between
// two calls.
func (s *Stack) Active() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return nil
	}
	return s.pages[len(s.pages)-1]
}

// Supplier adapts the stack to the PageSupplier contract used by replay and
// the decision loop.
func (s *Stack) Supplier() browser.PageSupplier {
	return s.Active
}

// PageOpened reports a newly created tab. It is pushed only if openerID names
// the current top of the stack; anything else is a popup from a background
// page and does not steal focus. Returns whether the page was pushed.
func (s *Stack) PageOpened(page browser.Page, openerID string) bool {
	if page == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pages) == 0 || s.pages[len(s.pages)-1].TargetID() != openerID {
		s.logger.Debug("Ignoring tab opened by a non-active page.",
			zap.String("target_id", page.TargetID()),
			zap.String("opener_id", openerID))
		return false
	}

	s.pages = append(s.pages, page)
	s.logger.Debug("New tab is now the active page.", zap.String("target_id", page.TargetID()))
	return true
}

// PageClosed removes the page with the given target id, wherever it sits,
// preserving the relative order of the remainder. Unknown ids are a no-op.
func (s *Stack) PageClosed(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pages {
		if p.TargetID() == targetID {
			s.pages = append(s.pages[:i], s.pages[i+1:]...)
			s.logger.Debug("Tab removed from stack.", zap.String("target_id", targetID))
			return
		}
	}
}

// Len reports how many tabs are currently tracked.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}
