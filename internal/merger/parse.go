package merger

import "encoding/json"

// rawDOMNode mirrors the wire shape of DOM.getDocument's node tree. Decoded
// by hand rather than through cdproto's dom.Node because the traversal only
// needs a handful of fields and a flat struct keeps the iterative walk
// simple; cdpclient's action dispatch uses the typed cdproto params instead,
// where the wire shape is flat and the generated builders pull their
// weight.
type rawDOMNode struct {
	BackendNodeID    int64        `json:"backendNodeId"`
	NodeType         int          `json:"nodeType"`
	NodeName         string       `json:"nodeName"`
	NodeValue        string       `json:"nodeValue"`
	Attributes       []string     `json:"attributes"`
	FrameID          string       `json:"frameId"`
	Children         []rawDOMNode `json:"children"`
	ContentDocument  *rawDOMNode  `json:"contentDocument"`
	ShadowRoots      []rawDOMNode `json:"shadowRoots"`
}

type rawDOMDocument struct {
	Root rawDOMNode `json:"root"`
}

func parseDOM(raw json.RawMessage) (*rawDOMNode, error) {
	var doc rawDOMDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc.Root, nil
}

// rawSnapshotResult mirrors DOMSnapshot.captureSnapshot's result: one
// rawSnapshotDoc per "documents" entry, and a "strings" table shared across
// all documents.
type rawSnapshotResult struct {
	Documents []rawSnapshotDoc `json:"documents"`
	Strings   []string         `json:"strings"`
}

type rawSnapshotDoc struct {
	Nodes  rawSnapshotNodes  `json:"nodes"`
	Layout rawSnapshotLayout `json:"layout"`
}

type rawSnapshotNodes struct {
	BackendNodeID []int64 `json:"backendNodeId"`
	NodeType      []int   `json:"nodeType"`
	NodeName      []int   `json:"nodeName"`
}

type rawSnapshotLayout struct {
	NodeIndex    []int       `json:"nodeIndex"`
	Bounds       [][]float64 `json:"bounds"`
	Styles       [][]int     `json:"styles"`
	PaintOrders  []int       `json:"paintOrders"`
}

func parseSnapshot(raw json.RawMessage) (*rawSnapshotResult, error) {
	var result rawSnapshotResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// rawAXNode mirrors one entry of Accessibility.getFullAXTree's "nodes" list.
type rawAXNode struct {
	BackendDOMNodeID int64           `json:"backendDOMNodeId"`
	Role             rawAXValue      `json:"role"`
	Name             rawAXValue      `json:"name"`
	Properties       []rawAXProperty `json:"properties"`
}

type rawAXValue struct {
	Value json.RawMessage `json:"value"`
}

func (v rawAXValue) asString() string {
	var s string
	_ = json.Unmarshal(v.Value, &s)
	return s
}

type rawAXProperty struct {
	Name  string     `json:"name"`
	Value rawAXValue `json:"value"`
}

func (p rawAXProperty) asAny() interface{} {
	var out interface{}
	_ = json.Unmarshal(p.Value.Value, &out)
	return out
}

type rawAXResult struct {
	Nodes []rawAXNode `json:"nodes"`
}

func parseAX(raw json.RawMessage) (*rawAXResult, error) {
	var result rawAXResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type rawMetrics struct {
	VisualViewport    rawViewport `json:"visualViewport"`
	CSSVisualViewport rawViewport `json:"cssVisualViewport"`
}

type rawViewport struct {
	ClientWidth  float64 `json:"clientWidth"`
	ClientHeight float64 `json:"clientHeight"`
}

func parseMetrics(raw json.RawMessage) (*rawMetrics, error) {
	var result rawMetrics
	if len(raw) == 0 {
		return &rawMetrics{}, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
