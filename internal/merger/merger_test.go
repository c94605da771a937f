package merger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsJSON(width, height float64) json.RawMessage {
	raw, _ := json.Marshal(map[string]interface{}{
		"visualViewport":    map[string]interface{}{"clientWidth": width},
		"cssVisualViewport": map[string]interface{}{"clientWidth": width, "clientHeight": height},
	})
	return raw
}

func snapshotJSON(entries map[int64]struct {
	bounds []float64
	styles map[string]string
	paint  int
}) json.RawMessage {
	strings := []string{}
	internIdx := map[string]int{}
	intern := func(s string) int {
		if i, ok := internIdx[s]; ok {
			return i
		}
		strings = append(strings, s)
		internIdx[s] = len(strings) - 1
		return len(strings) - 1
	}

	var backendIDs []int64
	var nodeNames []int
	var bounds [][]float64
	var styleRows [][]int
	var paints []int

	for id, e := range entries {
		backendIDs = append(backendIDs, id)
		nodeNames = append(nodeNames, intern("DIV"))
		bounds = append(bounds, e.bounds)
		var row []int
		for k, v := range e.styles {
			row = append(row, intern(k), intern(v))
		}
		styleRows = append(styleRows, row)
		paints = append(paints, e.paint)
	}

	doc := map[string]interface{}{
		"nodes": map[string]interface{}{
			"backendNodeId": backendIDs,
			"nodeName":      nodeNames,
		},
		"layout": map[string]interface{}{
			"bounds":      bounds,
			"styles":      styleRows,
			"paintOrders": paints,
		},
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"documents": []interface{}{doc},
		"strings":   strings,
	})
	return raw
}

func domJSON(t *testing.T, node map[string]interface{}) json.RawMessage {
	raw, err := json.Marshal(map[string]interface{}{"root": node})
	require.NoError(t, err)
	return raw
}

func button(id int64, text string, children ...map[string]interface{}) map[string]interface{} {
	kids := []map[string]interface{}{
		{"nodeType": 3, "nodeValue": text},
	}
	kids = append(kids, children...)
	return map[string]interface{}{
		"backendNodeId": id,
		"nodeType":      1,
		"nodeName":      "BUTTON",
		"children":      kids,
	}
}

func TestMergeProducesVisibleInteractiveClickableButton(t *testing.T) {
	m := New(1280, 720)

	dom := domJSON(t, button(7, "Submit"))
	snap := snapshotJSON(map[int64]struct {
		bounds []float64
		styles map[string]string
		paint  int
	}{
		7: {bounds: []float64{10, 10, 100, 30}, styles: map[string]string{"cursor": "pointer", "display": "block"}, paint: 1},
	})
	ax, _ := json.Marshal(map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"backendDOMNodeId": 7, "role": map[string]interface{}{"value": "button"}, "name": map[string]interface{}{"value": "Submit"}},
		},
	})
	metrics := metricsJSON(1280, 720)

	nodes, err := m.Merge(dom, snap, ax, metrics)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	n := nodes[0]
	assert.Equal(t, "button", n.TagName)
	assert.True(t, n.IsVisible)
	assert.True(t, n.IsInteractive)
	assert.True(t, n.IsClickable)
	assert.Equal(t, "click", n.ActionType)
	assert.Equal(t, "Submit", n.TextContent)
	assert.InDelta(t, 60.0, n.ClickPoint[0], 0.001)
	assert.InDelta(t, 25.0, n.ClickPoint[1], 0.001)
	assert.GreaterOrEqual(t, n.ConfidenceScore, 0.3)
}

func TestMergeFiltersOutInvisibleElements(t *testing.T) {
	m := New(1280, 720)
	dom := domJSON(t, button(9, "Hidden"))
	snap := snapshotJSON(map[int64]struct {
		bounds []float64
		styles map[string]string
		paint  int
	}{
		9: {bounds: []float64{10, 10, 100, 30}, styles: map[string]string{"display": "none"}, paint: 1},
	})

	nodes, err := m.Merge(dom, snap, nil, metricsJSON(1280, 720))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestMergeDegradesGracefullyWithoutAXTree(t *testing.T) {
	m := New(1280, 720)
	dom := domJSON(t, button(11, "Click me"))
	snap := snapshotJSON(map[int64]struct {
		bounds []float64
		styles map[string]string
		paint  int
	}{
		11: {bounds: []float64{0, 0, 50, 20}, styles: map[string]string{"cursor": "pointer"}, paint: 1},
	})

	nodes, err := m.Merge(dom, snap, nil, metricsJSON(1280, 720))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "", nodes[0].AXRole)
	assert.True(t, nodes[0].IsInteractive)
}

func TestOcclusionMarksFullyCoveredElementUnclickable(t *testing.T) {
	m := New(1280, 720)
	dom := domJSON(t, map[string]interface{}{
		"backendNodeId": 1,
		"nodeType":      1,
		"nodeName":      "DIV",
		"children": []map[string]interface{}{
			button(2, "Underneath"),
			{
				"backendNodeId": 3,
				"nodeType":      1,
				"nodeName":      "DIV",
			},
		},
	})
	snap := snapshotJSON(map[int64]struct {
		bounds []float64
		styles map[string]string
		paint  int
	}{
		2: {bounds: []float64{0, 0, 100, 100}, styles: map[string]string{"cursor": "pointer"}, paint: 1},
		3: {bounds: []float64{0, 0, 100, 100}, styles: map[string]string{}, paint: 5},
	})

	nodes, err := m.Merge(dom, snap, nil, metricsJSON(1280, 720))
	require.NoError(t, err)
	// The occluding div isn't interactive so it's filtered from the final
	// list, but the button underneath it must be dropped too.
	for _, n := range nodes {
		assert.NotEqual(t, int64(2), n.BackendNodeID, "occluded button should not be actionable")
	}
}

func TestIntersectionCoverageComputesHalfOverlapRatio(t *testing.T) {
	target := Bounds{X: 0, Y: 0, Width: 100, Height: 100}
	obstacle := Bounds{X: 50, Y: 0, Width: 100, Height: 100}
	ratio := intersectionCoverage(target, obstacle, target.Width*target.Height)
	assert.InDelta(t, 0.5, ratio, 0.001)
}

func TestCalculateConfidenceScoreClampedToUnitRange(t *testing.T) {
	score := calculateConfidenceScore(true, true, axEntry{role: "button", name: "x", properties: map[string]interface{}{"focusable": true}}, Bounds{Width: 20, Height: 20})
	assert.LessOrEqual(t, score, 1.0)

	low := calculateConfidenceScore(false, false, axEntry{}, Bounds{Width: 2, Height: 2})
	assert.GreaterOrEqual(t, low, 0.0)
}
