package merger

// interactiveTags are element tags treated as interactive regardless of ARIA
// role, unless an earlier style check decides first (cursor: pointer makes
// any element interactive; pointer-events: none otherwise rules it out).
var interactiveTags = map[string]struct{}{
	"button": {}, "a": {}, "input": {}, "select": {}, "textarea": {}, "details": {}, "summary": {},
}

var interactiveRoles = map[string]struct{}{
	"button": {}, "link": {}, "textbox": {}, "combobox": {}, "checkbox": {}, "radio": {},
	"tab": {}, "menuitem": {}, "option": {}, "switch": {}, "searchbox": {}, "listbox": {},
}

var eventAttrs = []string{"onclick", "onmousedown", "onmouseup", "onkeydown", "onkeyup"}

var inputTypesText = map[string]struct{}{
	"text": {}, "email": {}, "password": {}, "search": {}, "url": {}, "tel": {},
}

var inputTypesToggle = map[string]struct{}{
	"checkbox": {}, "radio": {},
}

var inputTypesClick = map[string]struct{}{
	"button": {}, "submit": {}, "reset": {},
}

// Bounds is an element's box in CSS pixels: x, y, width, height.
type Bounds struct {
	X, Y, Width, Height float64
}

// EnhancedNode is the unified element representation the merger produces,
// carrying everything an action primitive or serializer line needs.
type EnhancedNode struct {
	BackendNodeID   int64
	TagName         string
	BoundsCSS       Bounds
	ClickPoint      [2]float64
	Attributes      map[string]string
	TextContent     string
	AXRole          string
	AXName          string
	AXProperties    map[string]interface{}
	IsVisible       bool
	IsInteractive   bool
	IsClickable     bool
	IsFocusable     bool
	IsOccluded      bool
	ComputedStyles  map[string]string
	PaintOrder      int
	ActionType      string
	ConfidenceScore float64
	FrameID         string
}

func (n EnhancedNode) hasAttr(name string) bool {
	_, ok := n.Attributes[name]
	return ok
}
