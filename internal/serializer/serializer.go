// Package serializer turns a ranked []merger.EnhancedNode into the compact,
// LLM-facing text block and selector map an agent loop actually consumes:
// one line per element, one map entry per 1-indexed selector.
package serializer

import (
	"fmt"
	"strings"

	"github.com/cdpscope/browseragent/internal/merger"
)

// SelectorEntry is the lightweight, index-addressable record an action
// primitive resolves before dispatching a click/type/select.
type SelectorEntry struct {
	BackendNodeID   int64
	FrameID         string
	ActionType      string
	ClickPoint      [2]float64
	BoundsCSS       merger.Bounds
	Attributes      map[string]string
	ConfidenceScore float64
}

// SerializedOutput is the result of serializing one set of actionable
// nodes: the text lines and the index -> SelectorEntry map they describe.
type SerializedOutput struct {
	Lines       []string
	SelectorMap map[int]SelectorEntry
}

// Text joins Lines with newlines, the form an agent loop actually reads.
func (s SerializedOutput) Text() string {
	return strings.Join(s.Lines, "\n")
}

// DefaultAttrAllowlist is the set of attributes exposed in each serialized
// line; anything else on the element stays in the selector map only.
var DefaultAttrAllowlist = []string{
	"id", "name", "class", "type", "role", "aria-label", "title", "placeholder",
}

// Options configures Serialize; a zero value uses sane defaults (400 max
// lines, DefaultAttrAllowlist, 80-char truncation).
type Options struct {
	MaxLines      int
	AttrAllowlist []string
	MaxTextLength int
}

func (o Options) withDefaults() Options {
	if o.MaxLines <= 0 {
		o.MaxLines = 400
	}
	if o.AttrAllowlist == nil {
		o.AttrAllowlist = DefaultAttrAllowlist
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = 80
	}
	return o
}

// Serialize renders nodes (already filtered for actionability by the
// merger) into compact text lines plus a parallel 1-indexed selector map.
func Serialize(nodes []merger.EnhancedNode, opts Options) SerializedOutput {
	opts = opts.withDefaults()

	lines := make([]string, 0, len(nodes))
	selectorMap := make(map[int]SelectorEntry, len(nodes))

	total := len(nodes)
	for i, node := range nodes {
		index := i + 1
		selectorMap[index] = SelectorEntry{
			BackendNodeID:   node.BackendNodeID,
			FrameID:         node.FrameID,
			ActionType:      node.ActionType,
			ClickPoint:      node.ClickPoint,
			BoundsCSS:       node.BoundsCSS,
			Attributes:      copyAttrs(node.Attributes),
			ConfidenceScore: node.ConfidenceScore,
		}

		lines = append(lines, renderLine(index, node, opts))

		if len(lines) >= opts.MaxLines {
			remaining := total - index
			if remaining > 0 {
				lines = append(lines, fmt.Sprintf("... truncated %d additional elements", remaining))
			}
			break
		}
	}

	return SerializedOutput{Lines: lines, SelectorMap: selectorMap}
}

func renderLine(index int, node merger.EnhancedNode, opts Options) string {
	var attrParts []string
	for _, attr := range opts.AttrAllowlist {
		value := node.Attributes[attr]
		if value != "" {
			attrParts = append(attrParts, fmt.Sprintf("%s=%q", attr, truncate(value, opts.MaxTextLength)))
		}
	}

	tagRepr := fmt.Sprintf("<%s>", node.TagName)
	if len(attrParts) > 0 {
		tagRepr = fmt.Sprintf("<%s %s>", node.TagName, strings.Join(attrParts, " "))
	}

	infoParts := []string{
		fmt.Sprintf("[%d] %s", index, tagRepr),
		fmt.Sprintf("action=%s", node.ActionType),
		fmt.Sprintf("conf=%.2f", node.ConfidenceScore),
	}

	if node.AXName != "" {
		infoParts = append(infoParts, fmt.Sprintf("name=%q", truncate(node.AXName, opts.MaxTextLength)))
	}

	textContent := strings.TrimSpace(node.TextContent)
	if textContent != "" && textContent != node.AXName {
		infoParts = append(infoParts, fmt.Sprintf("text=%q", truncate(textContent, opts.MaxTextLength)))
	}

	if node.IsFocusable {
		infoParts = append(infoParts, "focusable")
	}

	if !node.IsClickable && node.ActionType == "click" {
		infoParts = append(infoParts, "not-clickable")
	}

	return strings.Join(infoParts, " | ")
}

func truncate(value string, maxLen int) string {
	value = strings.TrimSpace(value)
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return value[:maxLen]
	}
	return value[:maxLen-3] + "..."
}

func copyAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
