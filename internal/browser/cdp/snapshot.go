// internal/browser/cdp/snapshot.go
package cdp

import (
	"context"
	"fmt"
	"strings"

	cdpproto "github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

// Snapshotter captures the interactive surface of a page as encoded element
// ids backed by DevTools backend node ids, serialized to a token budget.
type Snapshotter struct {
	logger     *zap.Logger
	serializer *dom.Serializer
}

func NewSnapshotter(logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		logger:     logger.Named("snapshot"),
		serializer: dom.NewSerializer(logger),
	}
}

// Capture walks the full pierced DOM tree (iframes included) and records
// every interactive element with its backend node id and absolute xpath.
func (s *Snapshotter) Capture(ctx context.Context, page browser.Page, tokenBudget int) (*schemas.Snapshot, error) {
	cp, ok := page.(*Page)
	if !ok {
		return nil, fmt.Errorf("snapshot capture requires a devtools page, got %T", page)
	}

	snapshot := &schemas.Snapshot{
		Elements:  make(map[string]*schemas.ElementNode),
		Selectors: make(map[string]string),
	}

	var root *cdpproto.Node
	err := cp.run(ctx,
		chromedp.Location(&snapshot.URL),
		chromedp.Title(&snapshot.Title),
		chromedp.ActionFunc(func(c context.Context) error {
			var err error
			root, err = cdpdom.GetDocument().WithDepth(-1).WithPierce(true).Do(c)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("capturing document tree: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("document tree came back empty")
	}

	w := &walker{snapshot: snapshot}
	w.walkDocument(root, snapshot.URL)
	snapshot.Frames = w.frames

	s.serializer.Serialize(snapshot, tokenBudget)
	s.logger.Debug("Snapshot captured.",
		zap.String("url", snapshot.URL),
		zap.Int("elements", len(snapshot.Elements)),
		zap.Int("frames", len(snapshot.Frames)),
		zap.Bool("truncated", snapshot.Truncated))
	return snapshot, nil
}

// walker accumulates elements over the pierced tree. Frame indices are
// assigned in document pre-order, so index 0 is always the main frame.
type walker struct {
	snapshot  *schemas.Snapshot
	frames    []schemas.FrameInfo
	nextFrame int
}

func (w *walker) walkDocument(doc *cdpproto.Node, url string) {
	idx := w.nextFrame
	w.nextFrame++
	w.frames = append(w.frames, schemas.FrameInfo{Index: idx, URL: url})
	w.walkChildren(doc.Children, idx, "")
}

func (w *walker) walkChildren(children []*cdpproto.Node, frameIdx int, parentPath string) {
	counts := make(map[string]int)
	for _, child := range children {
		if child == nil || child.NodeType != cdpproto.NodeTypeElement {
			continue
		}
		tag := strings.ToLower(child.NodeName)
		counts[tag]++
		path := fmt.Sprintf("%s/%s[%d]", parentPath, tag, counts[tag])

		// An iframe with an attached document starts a new frame; the iframe
		// element itself is not interactive.
		if child.ContentDocument != nil {
			w.walkDocument(child.ContentDocument, child.ContentDocument.DocumentURL)
			continue
		}

		attrs := attrMap(child.Attributes)
		if isInteractive(tag, attrs) {
			backendID := int64(child.BackendNodeID)
			encoded := dom.EncodeElementID(frameIdx, backendID)
			w.snapshot.Elements[encoded] = &schemas.ElementNode{
				EncodedID:     encoded,
				FrameIndex:    frameIdx,
				BackendNodeID: backendID,
				Tag:           tag,
				Text:          collectText(child),
				Attributes:    attrs,
				XPath:         path,
			}
			w.snapshot.Selectors[encoded] = path
			w.frames[frameIdx].NodeCount++
		}

		w.walkChildren(child.Children, frameIdx, path)
	}
}

var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true,
	"textarea": true, "summary": true, "label": true, "option": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "tab": true, "menuitem": true,
	"checkbox": true, "radio": true, "combobox": true, "searchbox": true,
	"textbox": true, "switch": true,
}

func isInteractive(tag string, attrs map[string]string) bool {
	if interactiveTags[tag] {
		return true
	}
	if interactiveRoles[attrs["role"]] {
		return true
	}
	if _, ok := attrs["onclick"]; ok {
		return true
	}
	if v, ok := attrs["contenteditable"]; ok && (v == "" || v == "true") {
		return true
	}
	return false
}

func attrMap(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs[strings.ToLower(pairs[i])] = pairs[i+1]
	}
	return attrs
}

// collectText gathers the node's own text content, capped so giant
// containers cannot dominate a serialized snapshot line.
func collectText(node *cdpproto.Node) string {
	var parts []string
	var gather func(n *cdpproto.Node, depth int)
	gather = func(n *cdpproto.Node, depth int) {
		if n == nil || depth > 3 {
			return
		}
		for _, c := range n.Children {
			if c.NodeType == cdpproto.NodeTypeText {
				if t := strings.TrimSpace(c.NodeValue); t != "" {
					parts = append(parts, t)
				}
			} else if c.NodeType == cdpproto.NodeTypeElement {
				gather(c, depth+1)
			}
		}
	}
	gather(node, 0)

	return dom.TruncateUTF8(strings.Join(parts, " "), 160)
}
