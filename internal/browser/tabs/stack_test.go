package tabs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/browser/tabs"
)

type fakePage struct{ id string }

func (f *fakePage) TargetID() string                         { return f.id }
func (f *fakePage) URL(context.Context) (string, error)      { return "about:blank", nil }
func (f *fakePage) Navigate(context.Context, string) error   { return nil }
func (f *fakePage) GoBack(context.Context) error             { return nil }
func (f *fakePage) Reload(context.Context) error             { return nil }
func (f *fakePage) WaitLoadState(context.Context, string, time.Duration) error { return nil }
func (f *fakePage) Perform(context.Context, int, string, string, []interface{}) error { return nil }
func (f *fakePage) LocateByInstruction(context.Context, string) (*schemas.ElementNode, error) {
	return nil, browser.ErrElementNotFound
}
func (f *fakePage) Extract(context.Context, string) (string, error) {
	return "", browser.ErrExtractionUnsupported
}

func TestPushOnlyWhenOpenerIsActive(t *testing.T) {
	a := &fakePage{id: "A"}
	b := &fakePage{id: "B"}
	c := &fakePage{id: "C"}

	stack := tabs.New(zap.NewNop(), a)

	// B opened by the active page A: pushed, becomes active.
	assert.True(t, stack.PageOpened(b, "A"))
	assert.Equal(t, "B", stack.Active().TargetID())

	// C opened by A, which is no longer on top: ignored.
	assert.False(t, stack.PageOpened(c, "A"))
	assert.Equal(t, "B", stack.Active().TargetID())
	assert.Equal(t, 2, stack.Len())
}

func TestCloseRevertsToOpener(t *testing.T) {
	a := &fakePage{id: "A"}
	b := &fakePage{id: "B"}

	stack := tabs.New(zap.NewNop(), a)
	stack.PageOpened(b, "A")

	stack.PageClosed("B")
	assert.Equal(t, "A", stack.Active().TargetID())
}

func TestPopupChainFollowsCurrentTop(t *testing.T) {
	// A opens B, then B (now the active page) opens C. The opener check runs
	// against the current top at open time, so C is pushed as well, and the
	// chain unwinds tab by tab as each closes.
	a := &fakePage{id: "A"}
	b := &fakePage{id: "B"}
	c := &fakePage{id: "C"}

	stack := tabs.New(zap.NewNop(), a)
	assert.True(t, stack.PageOpened(b, "A"))
	assert.True(t, stack.PageOpened(c, "B"))
	assert.Equal(t, "C", stack.Active().TargetID())

	stack.PageClosed("C")
	assert.Equal(t, "B", stack.Active().TargetID())
	stack.PageClosed("B")
	assert.Equal(t, "A", stack.Active().TargetID())
}

func TestCloseFromMiddlePreservesOrder(t *testing.T) {
	a := &fakePage{id: "A"}
	b := &fakePage{id: "B"}
	c := &fakePage{id: "C"}

	stack := tabs.New(zap.NewNop(), a)
	stack.PageOpened(b, "A")
	stack.PageOpened(c, "B")

	// Closing B (the middle entry) keeps C active with A beneath it.
	stack.PageClosed("B")
	assert.Equal(t, "C", stack.Active().TargetID())
	stack.PageClosed("C")
	assert.Equal(t, "A", stack.Active().TargetID())
}

func TestCloseUnknownAndEmpty(t *testing.T) {
	a := &fakePage{id: "A"}
	stack := tabs.New(zap.NewNop(), a)

	stack.PageClosed("nope")
	assert.Equal(t, "A", stack.Active().TargetID())

	stack.PageClosed("A")
	assert.Nil(t, stack.Active())
	assert.Nil(t, stack.Supplier()())
}
