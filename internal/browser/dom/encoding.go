// internal/browser/dom/encoding.go
package dom

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeElementID builds the frame-qualified handle for one node within one
// snapshot: "<frameIndex>-<backendNodeId>". The frame component disambiguates
// same-shaped elements across iframe boundaries, including nested iframes.
func EncodeElementID(frameIndex int, backendNodeID int64) string {
	return fmt.Sprintf("%d-%d", frameIndex, backendNodeID)
}

// DecodeElementID splits an encoded identifier back into its components.
func DecodeElementID(id string) (frameIndex int, backendNodeID int64, err error) {
	head, tail, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed element id %q: missing frame separator", id)
	}
	frameIndex, err = strconv.Atoi(head)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed element id %q: bad frame index: %w", id, err)
	}
	backendNodeID, err = strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed element id %q: bad backend node id: %w", id, err)
	}
	return frameIndex, backendNodeID, nil
}

// NormalizeElementID converts whatever shape the model emitted for an element
// identifier into the canonical string form. Models reply with JSON, so the
// same identifier may arrive as a string, an integer or a float; everything
// downstream only ever sees the canonical form produced here.
func NormalizeElementID(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", fmt.Errorf("empty element id")
		}
		// A bare number means frame 0 of the main document.
		if !strings.Contains(s, "-") {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				return "", fmt.Errorf("element id %q is neither encoded nor numeric", s)
			}
			return "0-" + s, nil
		}
		if _, _, err := DecodeElementID(s); err != nil {
			return "", err
		}
		return s, nil
	case float64:
		if v != float64(int64(v)) {
			return "", fmt.Errorf("element id %v is not an integer", v)
		}
		return EncodeElementID(0, int64(v)), nil
	case int:
		return EncodeElementID(0, int64(v)), nil
	case int64:
		return EncodeElementID(0, v), nil
	case nil:
		return "", fmt.Errorf("element id is missing")
	default:
		return "", fmt.Errorf("unsupported element id type %T", raw)
	}
}
