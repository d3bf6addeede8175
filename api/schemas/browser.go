// api/schemas/browser.go
package schemas

// ElementNode is one interactive node discovered in a snapshot. EncodedID is
// the frame-qualified handle ("<frameIndex>-<backendNodeId>") the model uses
// to refer to the node; XPath is the absolute path the driver resolves.
type ElementNode struct {
	EncodedID     string            `json:"encoded_id"`
	FrameIndex    int               `json:"frame_index"`
	BackendNodeID int64             `json:"backend_node_id"`
	Tag           string            `json:"tag"`
	Text          string            `json:"text,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	XPath         string            `json:"xpath"`
}

// FrameInfo carries per-frame diagnostics for a snapshot, including nested
// iframes in document order. Index 0 is always the main frame.
type FrameInfo struct {
	Index     int    `json:"index"`
	URL       string `json:"url,omitempty"`
	NodeCount int    `json:"node_count"`
	Error     string `json:"error,omitempty"`
}

// Snapshot is one token-budget-bounded capture of the page. Element ids are
// unique within the snapshot and meaningless outside it.
type Snapshot struct {
	URL        string                  `json:"url,omitempty"`
	Title      string                  `json:"title,omitempty"`
	Elements   map[string]*ElementNode `json:"elements"`
	Selectors  map[string]string       `json:"selectors"`
	Serialized string                  `json:"serialized"`
	Frames     []FrameInfo             `json:"frames,omitempty"`
	Truncated  bool                    `json:"truncated,omitempty"`
}

// ElementByID looks up a node by its encoded id.
func (s *Snapshot) ElementByID(id string) (*ElementNode, bool) {
	if s == nil || s.Elements == nil {
		return nil, false
	}
	el, ok := s.Elements[id]
	return el, ok
}
