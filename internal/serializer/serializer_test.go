package serializer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdpscope/browseragent/internal/merger"
)

func sampleNode(id int64, tag string, confidence float64) merger.EnhancedNode {
	return merger.EnhancedNode{
		BackendNodeID:   id,
		TagName:         tag,
		BoundsCSS:       merger.Bounds{X: 1, Y: 2, Width: 30, Height: 10},
		ClickPoint:      [2]float64{16, 7},
		Attributes:      map[string]string{"id": "submit-btn", "class": "primary"},
		TextContent:     "Submit",
		AXName:          "Submit form",
		IsClickable:     true,
		IsFocusable:     true,
		ActionType:      "click",
		ConfidenceScore: confidence,
	}
}

func TestSerializeProducesOneLinePerNodeAndMatchingSelectorMap(t *testing.T) {
	nodes := []merger.EnhancedNode{sampleNode(10, "button", 0.9)}

	out := Serialize(nodes, Options{})

	require.Len(t, out.Lines, 1)
	require.Len(t, out.SelectorMap, 1)

	entry, ok := out.SelectorMap[1]
	require.True(t, ok)
	assert.Equal(t, int64(10), entry.BackendNodeID)
	assert.Equal(t, "click", entry.ActionType)

	line := out.Lines[0]
	assert.Contains(t, line, "[1] <button")
	assert.Contains(t, line, `id="submit-btn"`)
	assert.Contains(t, line, "action=click")
	assert.Contains(t, line, "conf=0.90")
	assert.Contains(t, line, `name="Submit form"`)
	assert.Contains(t, line, `text="Submit"`)
	assert.Contains(t, line, "focusable")
	assert.NotContains(t, line, "not-clickable")
}

func TestSerializeMarksNonClickableClickNodes(t *testing.T) {
	n := sampleNode(11, "span", 0.5)
	n.IsClickable = false

	out := Serialize([]merger.EnhancedNode{n}, Options{})
	assert.Contains(t, out.Lines[0], "not-clickable")
}

func TestSerializeOmitsDuplicateTextMatchingAXName(t *testing.T) {
	n := sampleNode(12, "button", 0.8)
	n.TextContent = n.AXName

	out := Serialize([]merger.EnhancedNode{n}, Options{})
	assert.NotContains(t, out.Lines[0], "text=")
}

func TestSerializeTruncatesBeyondMaxLines(t *testing.T) {
	nodes := make([]merger.EnhancedNode, 5)
	for i := range nodes {
		nodes[i] = sampleNode(int64(i+1), "button", 0.5)
	}

	out := Serialize(nodes, Options{MaxLines: 2})
	require.Len(t, out.Lines, 3) // 2 real lines + 1 truncation notice
	assert.True(t, strings.HasPrefix(out.Lines[2], "... truncated 3 additional elements"))
	assert.Len(t, out.SelectorMap, 2)
}

func TestSerializeTruncatesLongAttributeValues(t *testing.T) {
	n := sampleNode(13, "button", 0.5)
	n.Attributes["title"] = strings.Repeat("x", 200)

	out := Serialize([]merger.EnhancedNode{n}, Options{MaxTextLength: 10})
	assert.Contains(t, out.Lines[0], `title="xxxxxxx..."`)
}

func TestTextJoinsLinesWithNewlines(t *testing.T) {
	out := SerializedOutput{Lines: []string{"a", "b"}}
	assert.Equal(t, "a\nb", out.Text())
}
