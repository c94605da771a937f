// Package merger fuses DOM.getDocument, DOMSnapshot.captureSnapshot, and
// Accessibility.getFullAXTree into a list of EnhancedNode ranked by
// confidence. Each element is annotated with visibility, interactivity,
// occlusion, an action-type guess, and a confidence score; only visible,
// interactive, unoccluded elements scoring at least 0.3 are returned. The traversal is
// iterative (stack-based) so a pathologically deep DOM never blows the
// goroutine stack the way a naive recursive walk would.
package merger

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Merger holds the viewport dimensions used for off-screen visibility
// checks; these are refreshed from Page.getLayoutMetrics on every merge.
type Merger struct {
	viewportWidth  float64
	viewportHeight float64
}

// New constructs a Merger with a starting viewport guess; Merge overwrites
// it from each snapshot's metrics.
func New(viewportWidth, viewportHeight float64) *Merger {
	return &Merger{viewportWidth: viewportWidth, viewportHeight: viewportHeight}
}

type snapshotEntry struct {
	boundsCSS      Bounds
	nodeName       string
	computedStyles map[string]string
	paintOrder     int
}

type axEntry struct {
	role       string
	name       string
	properties map[string]interface{}
}

// Merge is the main entry point: decode the three raw payloads, build
// lookup tables, walk the DOM tree once, run occlusion detection, then
// filter and rank. A nil/empty raw payload degrades gracefully — e.g. no AX
// tree means every node's ax fields stay zero-valued.
func (m *Merger) Merge(domRaw, snapshotRaw, axRaw, metricsRaw json.RawMessage) ([]EnhancedNode, error) {
	metrics, err := parseMetrics(metricsRaw)
	if err != nil {
		return nil, err
	}
	dpr := calculateDPR(metrics)
	m.updateViewport(metrics)

	snapshotLookup := map[int64]snapshotEntry{}
	if len(snapshotRaw) > 0 {
		snap, err := parseSnapshot(snapshotRaw)
		if err == nil {
			snapshotLookup = buildSnapshotLookup(snap, dpr)
		}
	}

	axLookup := map[int64]axEntry{}
	if len(axRaw) > 0 {
		ax, err := parseAX(axRaw)
		if err == nil {
			axLookup = buildAXLookup(ax)
		}
	}

	var nodes []EnhancedNode
	if len(domRaw) > 0 {
		root, err := parseDOM(domRaw)
		if err == nil {
			nodes = m.traverse(root, snapshotLookup, axLookup)
		}
	}

	applyOcclusionDetection(nodes)
	return filterActionable(nodes), nil
}

func calculateDPR(metrics *rawMetrics) float64 {
	cssWidth := metrics.CSSVisualViewport.ClientWidth
	visualWidth := metrics.VisualViewport.ClientWidth
	if cssWidth <= 0 {
		return 1.0
	}
	return visualWidth / cssWidth
}

func (m *Merger) updateViewport(metrics *rawMetrics) {
	if metrics.CSSVisualViewport.ClientWidth > 0 {
		m.viewportWidth = metrics.CSSVisualViewport.ClientWidth
	}
	if metrics.CSSVisualViewport.ClientHeight > 0 {
		m.viewportHeight = metrics.CSSVisualViewport.ClientHeight
	}
}

// buildSnapshotLookup iterates every document in the snapshot — main frame
// and iframes alike — so elements inside an <iframe> still resolve.
func buildSnapshotLookup(snap *rawSnapshotResult, dpr float64) map[int64]snapshotEntry {
	lookup := make(map[int64]snapshotEntry)
	if dpr <= 0 {
		dpr = 1.0
	}

	for _, doc := range snap.Documents {
		backendIDs := doc.Nodes.BackendNodeID
		nodeNames := doc.Nodes.NodeName
		bounds := doc.Layout.Bounds
		styles := doc.Layout.Styles
		paintOrders := doc.Layout.PaintOrders

		for i, backendID := range backendIDs {
			if backendID == 0 || i >= len(bounds) {
				continue
			}
			deviceBounds := bounds[i]
			if len(deviceBounds) != 4 {
				continue
			}
			css := Bounds{
				X:      deviceBounds[0] / dpr,
				Y:      deviceBounds[1] / dpr,
				Width:  deviceBounds[2] / dpr,
				Height: deviceBounds[3] / dpr,
			}

			nodeName := ""
			if i < len(nodeNames) {
				if idx := nodeNames[i]; idx >= 0 && idx < len(snap.Strings) {
					nodeName = snap.Strings[idx]
				}
			}

			computedStyles := map[string]string{}
			if i < len(styles) {
				pairs := styles[i]
				for j := 0; j+1 < len(pairs); j += 2 {
					propIdx, valIdx := pairs[j], pairs[j+1]
					if propIdx >= 0 && propIdx < len(snap.Strings) && valIdx >= 0 && valIdx < len(snap.Strings) {
						computedStyles[snap.Strings[propIdx]] = snap.Strings[valIdx]
					}
				}
			}

			paintOrder := 0
			if i < len(paintOrders) {
				paintOrder = paintOrders[i]
			}

			lookup[backendID] = snapshotEntry{
				boundsCSS:      css,
				nodeName:       nodeName,
				computedStyles: computedStyles,
				paintOrder:     paintOrder,
			}
		}
	}
	return lookup
}

func buildAXLookup(ax *rawAXResult) map[int64]axEntry {
	lookup := make(map[int64]axEntry)
	for _, node := range ax.Nodes {
		if node.BackendDOMNodeID == 0 {
			continue
		}
		props := map[string]interface{}{}
		for _, p := range node.Properties {
			props[p.Name] = p.asAny()
		}
		lookup[node.BackendDOMNodeID] = axEntry{
			role:       node.Role.asString(),
			name:       node.Name.asString(),
			properties: props,
		}
	}
	return lookup
}

type stackFrame struct {
	node    *rawDOMNode
	frameID string
}

// traverse is the stack-based walk described in spec.md §4.F: children are
// pushed in reverse so they pop in document order, frame-owner nodes update
// the current frame id for their subtree, and both contentDocument and
// shadowRoots are folded into the same stack.
func (m *Merger) traverse(root *rawDOMNode, snapshotLookup map[int64]snapshotEntry, axLookup map[int64]axEntry) []EnhancedNode {
	var nodes []EnhancedNode
	stack := []stackFrame{{node: root, frameID: ""}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, frameID := top.node, top.frameID
		if node.FrameID != "" {
			frameID = node.FrameID
		}

		if node.NodeType == 1 { // element node
			if snap, ok := snapshotLookup[node.BackendNodeID]; ok && node.BackendNodeID != 0 {
				enhanced := m.createEnhancedNode(node, snap, axLookup[node.BackendNodeID], frameID)
				nodes = append(nodes, enhanced)
			}
		}

		for i := len(node.Children) - 1; i >= 0; i-- {
			child := node.Children[i]
			stack = append(stack, stackFrame{node: &child, frameID: frameID})
		}
		if node.ContentDocument != nil {
			stack = append(stack, stackFrame{node: node.ContentDocument, frameID: frameID})
		}
		for i := len(node.ShadowRoots) - 1; i >= 0; i-- {
			root := node.ShadowRoots[i]
			stack = append(stack, stackFrame{node: &root, frameID: frameID})
		}
	}
	return nodes
}

func (m *Merger) createEnhancedNode(node *rawDOMNode, snap snapshotEntry, ax axEntry, frameID string) EnhancedNode {
	tagName := lower(node.NodeName)
	bounds := snap.boundsCSS
	clickPoint := [2]float64{bounds.X + bounds.Width/2, bounds.Y + bounds.Height/2}

	attributes := map[string]string{}
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		attributes[node.Attributes[i]] = node.Attributes[i+1]
	}

	isVisible := m.isElementVisible(bounds, snap.computedStyles)
	isInteractive := isElementInteractive(tagName, attributes, ax, snap.computedStyles)
	isClickable := isElementClickable(tagName, attributes, ax, snap.computedStyles, isInteractive)
	isFocusable, _ := ax.properties["focusable"].(bool)

	return EnhancedNode{
		BackendNodeID:   node.BackendNodeID,
		TagName:         tagName,
		BoundsCSS:       bounds,
		ClickPoint:      clickPoint,
		Attributes:      attributes,
		TextContent:     extractTextContent(node),
		AXRole:          ax.role,
		AXName:          ax.name,
		AXProperties:    ax.properties,
		IsVisible:       isVisible,
		IsInteractive:   isInteractive,
		IsClickable:     isClickable,
		IsFocusable:     isFocusable,
		IsOccluded:      false,
		ComputedStyles:  snap.computedStyles,
		PaintOrder:      snap.paintOrder,
		ActionType:      determineActionType(tagName, attributes, ax),
		ConfidenceScore: calculateConfidenceScore(isVisible, isInteractive, ax, bounds),
		FrameID:         frameID,
	}
}

func extractTextContent(node *rawDOMNode) string {
	var parts []string
	stack := []*rawDOMNode{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.NodeType == 3 {
			text := trimSpace(n.NodeValue)
			if text != "" {
				parts = append(parts, text)
			}
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, &n.Children[i])
		}
	}
	return joinWithSpace(parts)
}

func (m *Merger) isElementVisible(b Bounds, styles map[string]string) bool {
	if b.Width < 1 || b.Height < 1 {
		return false
	}
	if b.X > m.viewportWidth || b.Y > m.viewportHeight {
		return false
	}
	if b.X+b.Width < 0 || b.Y+b.Height < 0 {
		return false
	}
	if styles["display"] == "none" || styles["visibility"] == "hidden" {
		return false
	}
	if opacity, ok := parseFloat(styles["opacity"]); ok && opacity < 0.1 {
		return false
	}
	return true
}

func isElementInteractive(tagName string, attrs map[string]string, ax axEntry, styles map[string]string) bool {
	if styles["cursor"] == "pointer" {
		return true
	}
	if styles["pointer-events"] == "none" {
		return false
	}
	if _, ok := interactiveTags[tagName]; ok {
		return true
	}
	for _, a := range eventAttrs {
		if _, ok := attrs[a]; ok {
			return true
		}
	}
	if _, ok := interactiveRoles[lower(attrs["role"])]; ok {
		return true
	}
	if _, ok := interactiveRoles[lower(ax.role)]; ok {
		return true
	}
	if focusable, _ := ax.properties["focusable"].(bool); focusable {
		return true
	}
	if tabindex := attrs["tabindex"]; tabindex != "" && tabindex != "-1" {
		return true
	}
	return false
}

func isElementClickable(tagName string, attrs map[string]string, ax axEntry, styles map[string]string, isInteractive bool) bool {
	if !isInteractive {
		return false
	}
	if v := attrs["disabled"]; v == "true" || v == "" {
		if _, present := attrs["disabled"]; present {
			return false
		}
	}
	if disabled, _ := ax.properties["disabled"].(bool); disabled {
		return false
	}
	if styles["cursor"] == "pointer" {
		return true
	}
	if styles["pointer-events"] == "none" {
		return false
	}
	if tagName == "button" || tagName == "a" {
		return true
	}
	if tagName == "input" {
		inputType := lower(attrs["type"])
		if inputType == "" {
			inputType = "text"
		}
		switch inputType {
		case "button", "submit", "reset", "checkbox", "radio":
			return true
		default:
			return false
		}
	}
	return true
}

func determineActionType(tagName string, attrs map[string]string, ax axEntry) string {
	if tagName == "input" {
		inputType := lower(attrs["type"])
		if inputType == "" {
			inputType = "text"
		}
		if _, ok := inputTypesText[inputType]; ok {
			return "input"
		}
		if _, ok := inputTypesToggle[inputType]; ok {
			return "toggle"
		}
		if _, ok := inputTypesClick[inputType]; ok {
			return "click"
		}
	}
	if tagName == "textarea" {
		return "input"
	}
	if tagName == "select" {
		return "select"
	}

	switch lower(ax.role) {
	case "textbox", "searchbox":
		return "input"
	case "combobox", "listbox":
		return "select"
	case "checkbox", "radio", "switch":
		return "toggle"
	}
	return "click"
}

func calculateConfidenceScore(isVisible, isInteractive bool, ax axEntry, bounds Bounds) float64 {
	score := 0.0
	if isVisible {
		score += 0.3
	}
	if isInteractive {
		score += 0.3
	}
	if ax.role != "" {
		score += 0.2
	}
	if ax.name != "" {
		score += 0.1
	}
	if focusable, _ := ax.properties["focusable"].(bool); focusable {
		score += 0.1
	}
	if bounds.Width >= 10 && bounds.Height >= 10 {
		score += 0.1
	} else if bounds.Width < 5 || bounds.Height < 5 {
		score -= 0.2
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// applyOcclusionDetection is an O(n^2) pass over the visible nodes: for each
// target, walk obstacles painted after it (higher paint order) and compute
// intersection-area coverage rather than a center-point test, so a mostly
// (but not fully) covered element is still penalized correctly.
func applyOcclusionDetection(nodes []EnhancedNode) {
	var visible []*EnhancedNode
	for i := range nodes {
		n := &nodes[i]
		if n.IsVisible && n.BoundsCSS.Width > 0 && n.BoundsCSS.Height > 0 {
			visible = append(visible, n)
		}
	}
	sortByPaintOrderDescending(visible)

	for i := range nodes {
		target := &nodes[i]
		if !target.IsVisible {
			continue
		}
		targetArea := target.BoundsCSS.Width * target.BoundsCSS.Height
		if targetArea <= 0 {
			continue
		}

		for _, obstacle := range visible {
			if obstacle.PaintOrder <= target.PaintOrder {
				break
			}
			if obstacle.ComputedStyles["pointer-events"] == "none" {
				continue
			}
			if opacity, ok := parseFloat(obstacle.ComputedStyles["opacity"]); ok && opacity < 0.1 {
				continue
			}

			ratio := intersectionCoverage(target.BoundsCSS, obstacle.BoundsCSS, targetArea)
			if ratio > 0.9 {
				target.IsOccluded = true
				target.IsClickable = false
				target.ConfidenceScore *= 0.1
				break
			} else if ratio > 0.5 {
				target.ConfidenceScore *= 1 - ratio*0.5
			}
		}
	}
}

func intersectionCoverage(target, obstacle Bounds, targetArea float64) float64 {
	ix := max(target.X, obstacle.X)
	iy := max(target.Y, obstacle.Y)
	ix2 := min(target.X+target.Width, obstacle.X+obstacle.Width)
	iy2 := min(target.Y+target.Height, obstacle.Y+obstacle.Height)
	if ix >= ix2 || iy >= iy2 {
		return 0
	}
	return (ix2 - ix) * (iy2 - iy) / targetArea
}

func sortByPaintOrderDescending(nodes []*EnhancedNode) {
	// Insertion sort: visible node counts in practice stay in the low
	// hundreds, and this keeps the occlusion pass free of an extra import.
	for i := 1; i < len(nodes); i++ {
		j := i
		for j > 0 && nodes[j-1].PaintOrder < nodes[j].PaintOrder {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
			j--
		}
	}
}

func filterActionable(nodes []EnhancedNode) []EnhancedNode {
	var out []EnhancedNode
	for _, n := range nodes {
		if !n.IsVisible || n.IsOccluded {
			continue
		}
		if !n.IsInteractive {
			continue
		}
		if n.ConfidenceScore < 0.3 {
			continue
		}
		if n.BoundsCSS.Width < 3 || n.BoundsCSS.Height < 3 {
			continue
		}
		out = append(out, n)
	}
	sortByConfidenceDescending(out)
	return out
}

func sortByConfidenceDescending(nodes []EnhancedNode) {
	for i := 1; i < len(nodes); i++ {
		j := i
		for j > 0 && nodes[j-1].ConfidenceScore < nodes[j].ConfidenceScore {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
			j--
		}
	}
}

func lower(s string) string { return strings.ToLower(s) }

func trimSpace(s string) string { return strings.TrimSpace(s) }

func joinWithSpace(parts []string) string { return strings.Join(parts, " ") }

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
