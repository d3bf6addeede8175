// internal/browser/dom/serializer.go
package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Serializer renders a snapshot's element map into the flat, token-budgeted
// text form handed to the model. One line per element, frames in order,
// nested iframes marked by their frame index.
type Serializer struct {
	logger  *zap.Logger
	encoder *tiktoken.Tiktoken
}

// NewSerializer creates a serializer. Token counting uses the cl100k_base
// encoding; when the encoding cannot be loaded a chars/4 estimate is used
// instead so capture never fails on tokenizer setup.
func NewSerializer(logger *zap.Logger) *Serializer {
	s := &Serializer{logger: logger.Named("serializer")}
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		logger.Warn("Token encoding unavailable, falling back to character estimate.", zap.Error(err))
	} else {
		s.encoder = enc
	}
	return s
}

// CountTokens returns the token cost of text under the active encoding.
func (s *Serializer) CountTokens(text string) int {
	if s.encoder != nil {
		return len(s.encoder.Encode(text, nil, nil))
	}
	// Rough heuristic used by most providers for English-ish text.
	return (len(text) + 3) / 4
}

// Serialize fills snapshot.Serialized with as many element lines as fit the
// token budget, most-important-first (main frame before iframes, document
// order within a frame). Sets Truncated when the budget cut elements off.
func (s *Serializer) Serialize(snapshot *schemas.Snapshot, tokenBudget int) {
	if snapshot == nil {
		return
	}

	elements := make([]*schemas.ElementNode, 0, len(snapshot.Elements))
	for _, el := range snapshot.Elements {
		elements = append(elements, el)
	}
	sort.Slice(elements, func(i, j int) bool {
		if elements[i].FrameIndex != elements[j].FrameIndex {
			return elements[i].FrameIndex < elements[j].FrameIndex
		}
		return elements[i].BackendNodeID < elements[j].BackendNodeID
	})

	var sb strings.Builder
	header := fmt.Sprintf("Page: %s (%s)\n", snapshot.Title, snapshot.URL)
	sb.WriteString(header)
	used := s.CountTokens(header)

	for i, el := range elements {
		line := formatElementLine(el)
		cost := s.CountTokens(line)
		if used+cost > tokenBudget {
			snapshot.Truncated = true
			s.logger.Debug("Snapshot serialization truncated by token budget.",
				zap.Int("budget", tokenBudget),
				zap.Int("included", i),
				zap.Int("total", len(elements)))
			break
		}
		sb.WriteString(line)
		used += cost
	}

	snapshot.Serialized = sb.String()
}

func formatElementLine(el *schemas.ElementNode) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(el.EncodedID)
	sb.WriteString("] <")
	sb.WriteString(el.Tag)

	// Only identity-bearing attributes; the full set would blow the budget.
	for _, key := range locatorAttrs {
		if v, ok := el.Attributes[key]; ok && v != "" {
			fmt.Fprintf(&sb, ` %s=%q`, key, truncate(v, 60))
		}
	}
	if v, ok := el.Attributes["type"]; ok && v != "" {
		fmt.Fprintf(&sb, ` type=%q`, v)
	}
	sb.WriteString(">")

	if el.Text != "" {
		fmt.Fprintf(&sb, " %q", truncate(el.Text, 80))
	}
	if el.FrameIndex > 0 {
		fmt.Fprintf(&sb, " (iframe %d)", el.FrameIndex)
	}
	sb.WriteString("\n")
	return sb.String()
}
