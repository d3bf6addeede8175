package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id := dom.EncodeElementID(2, 4711)
	assert.Equal(t, "2-4711", id)

	frame, node, err := dom.DecodeElementID(id)
	require.NoError(t, err)
	assert.Equal(t, 2, frame)
	assert.Equal(t, int64(4711), node)
}

func TestDecodeElementIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "4711", "a-1", "1-b", "--"} {
		_, _, err := dom.DecodeElementID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestNormalizeElementID(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"canonical string", "1-42", "1-42"},
		{"bare numeric string", "42", "0-42"},
		{"json number", float64(42), "0-42"},
		{"int", 42, "0-42"},
		{"padded string", "  0-7 ", "0-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dom.NormalizeElementID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeElementIDErrors(t *testing.T) {
	for _, raw := range []interface{}{nil, "", "x-y", 1.5, true} {
		_, err := dom.NormalizeElementID(raw)
		assert.Error(t, err, "raw %v", raw)
	}
}

// String and number forms of the same identifier must resolve identically,
// because the model may emit either.
func TestNormalizeElementIDStringNumberEquivalence(t *testing.T) {
	fromString, err := dom.NormalizeElementID("99")
	require.NoError(t, err)
	fromNumber, err := dom.NormalizeElementID(float64(99))
	require.NoError(t, err)
	assert.Equal(t, fromString, fromNumber)
}
