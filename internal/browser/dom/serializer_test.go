package dom_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

func snapshotWithElements(n int) *schemas.Snapshot {
	snap := &schemas.Snapshot{
		URL:      "https://example.com",
		Title:    "Example",
		Elements: map[string]*schemas.ElementNode{},
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("0-%d", i+1)
		snap.Elements[id] = &schemas.ElementNode{
			EncodedID:     id,
			BackendNodeID: int64(i + 1),
			Tag:           "button",
			Text:          fmt.Sprintf("Button number %d", i+1),
			XPath:         fmt.Sprintf("/html[1]/body[1]/button[%d]", i+1),
		}
	}
	return snap
}

func TestSerializeIncludesElementsInOrder(t *testing.T) {
	s := dom.NewSerializer(zap.NewNop())
	snap := snapshotWithElements(3)
	snap.Elements["1-9"] = &schemas.ElementNode{
		EncodedID: "1-9", FrameIndex: 1, BackendNodeID: 9, Tag: "a", Text: "iframe link",
	}

	s.Serialize(snap, 100000)

	assert.False(t, snap.Truncated)
	first := strings.Index(snap.Serialized, "[0-1]")
	second := strings.Index(snap.Serialized, "[0-2]")
	framed := strings.Index(snap.Serialized, "[1-9]")
	assert.True(t, first >= 0 && second > first, "main frame elements in document order")
	assert.True(t, framed > second, "iframe elements serialize after the main frame")
	assert.Contains(t, snap.Serialized, "(iframe 1)")
}

func TestSerializeRespectsTokenBudget(t *testing.T) {
	s := dom.NewSerializer(zap.NewNop())
	snap := snapshotWithElements(200)

	s.Serialize(snap, 120)

	assert.True(t, snap.Truncated)
	// The budget admits the header plus a handful of lines, never all 200.
	assert.Less(t, strings.Count(snap.Serialized, "\n"), 50)
	assert.LessOrEqual(t, s.CountTokens(snap.Serialized), 120)
}

func TestCountTokensMonotonic(t *testing.T) {
	s := dom.NewSerializer(zap.NewNop())
	short := s.CountTokens("click")
	long := s.CountTokens(strings.Repeat("click the large button ", 50))
	assert.Greater(t, long, short)
}
