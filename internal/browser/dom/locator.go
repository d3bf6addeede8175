// internal/browser/dom/locator.go
package dom

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Candidates for instruction-based relocation. Broad on purpose; scoring
// narrows the field.
const locatorXPath = `
    //a[@href] | //button | //input | //textarea | //select |
    //summary | //label |
    //*[normalize-space(@contenteditable)='true' or normalize-space(@contenteditable)=''] |
    //*[(@role='button' or @role='link' or @role='tab' or @role='menuitem' or @role='checkbox' or @role='radio')]
`

// Attributes whose values carry enough identity to match against an
// instruction.
var locatorAttrs = []string{"aria-label", "placeholder", "title", "name", "value", "alt", "id", "data-testid"}

// Locator re-locates elements from free-form instruction text ("the blue
// Submit button under the login form"). It backs the replay fallback path
// when a cached xpath no longer resolves.
type Locator struct {
	frameIndex int
}

// NewLocator creates a locator for nodes of the given frame.
func NewLocator(frameIndex int) *Locator {
	return &Locator{frameIndex: frameIndex}
}

// Locate parses the document and returns the node that best matches the
// instruction, with a freshly generated unique xpath.
func (l *Locator) Locate(r io.Reader, instruction string) (*schemas.ElementNode, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, fmt.Errorf("cannot locate element from an empty instruction")
	}

	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	tokens := tokenize(instruction)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("instruction %q contains no usable terms", instruction)
	}

	var best *html.Node
	bestScore := 0.0
	for _, node := range htmlquery.Find(doc, locatorXPath) {
		if score := scoreNode(node, tokens); score > bestScore {
			best, bestScore = node, score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no element matching instruction %q", instruction)
	}

	xpath := UniqueXPath(best)
	if xpath == "" || xpath == "/" {
		return nil, fmt.Errorf("could not derive a selector for instruction %q", instruction)
	}

	attrs := make(map[string]string, len(best.Attr))
	for _, a := range best.Attr {
		attrs[a.Key] = a.Val
	}
	return &schemas.ElementNode{
		EncodedID:  EncodeElementID(l.frameIndex, 0),
		FrameIndex: l.frameIndex,
		Tag:        strings.ToLower(best.Data),
		Text:       truncate(strings.TrimSpace(htmlquery.InnerText(best)), 120),
		Attributes: attrs,
		XPath:      xpath,
	}, nil
}

// scoreNode measures token overlap between the instruction and the node's
// visible text and identity attributes. Text matches weigh double: the
// instruction usually quotes what the user saw.
func scoreNode(node *html.Node, tokens []string) float64 {
	text := strings.ToLower(htmlquery.InnerText(node))
	var attrText strings.Builder
	for _, key := range locatorAttrs {
		if v := htmlquery.SelectAttr(node, key); v != "" {
			attrText.WriteString(strings.ToLower(v))
			attrText.WriteByte(' ')
		}
	}

	score := 0.0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			score += 2
		}
		if strings.Contains(attrText.String(), tok) {
			score++
		}
	}
	if score == 0 {
		return 0
	}
	// Prefer tight matches over giant containers that mention everything.
	if n := len(text); n > 200 {
		score *= 200.0 / float64(n)
	}
	return score
}

// Filler words carry no identity and would reward random containers.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "on": true, "in": true, "to": true,
	"of": true, "and": true, "or": true, "with": true, "click": true,
	"press": true, "select": true, "into": true, "type": true, "fill": true,
	"button": true, "link": true, "field": true, "element": true,
}

func tokenize(instruction string) []string {
	fields := strings.FieldsFunc(strings.ToLower(instruction), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TruncateUTF8 shortens s to at most n bytes, backing off to the previous
// rune boundary so the result is always valid UTF-8.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return TruncateUTF8(s, n) + "..."
}
