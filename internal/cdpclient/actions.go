package cdpclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpscope/browseragent/internal/cdperrors"
	"github.com/cdpscope/browseragent/internal/humanoid"
)

// ActionTarget is the minimal addressing information an action primitive
// needs about an element: its backend node id, the frame it lives in, and
// the click point the merger last computed (used only until geometry is
// refreshed).
type ActionTarget struct {
	BackendNodeID int64
	ClickPoint    [2]float64
	FrameID       string
}

// ClickNode scrolls the target into view, recomputes its box model (the
// merger's click point may be stale after the scroll), drives the cursor
// there along a humanlike trajectory, then presses and releases the left
// button at the refreshed center.
func (c *Client) ClickNode(ctx context.Context, target ActionTarget, engine *humanoid.Engine) error {
	scrollParams := dom.NewScrollIntoViewIfNeeded().WithBackendNodeID(dom.BackendNodeID(target.BackendNodeID))
	if _, err := c.Send(ctx, "DOM.scrollIntoViewIfNeeded", scrollParams); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "scrollIntoViewIfNeeded failed", err)
	}

	center, err := c.refreshedCenter(ctx, target.BackendNodeID)
	if err != nil {
		return err
	}

	path := engine.PlanMove(center)
	for _, step := range path.Points {
		params := input.NewDispatchMouseEvent(input.MouseMoved, step.X, step.Y)
		if _, err := c.Send(ctx, "Input.dispatchMouseEvent", params); err != nil {
			return cdperrors.Wrap(cdperrors.KindInput, "mouse move dispatch failed", err)
		}
		if err := sleepCtx(ctx, step.Delay); err != nil {
			return err
		}
	}
	engine.Commit(center)

	press := input.NewDispatchMouseEvent(input.MousePressed, center.X, center.Y).
		WithButton(input.Left).WithClickCount(1)
	if _, err := c.Send(ctx, "Input.dispatchMouseEvent", press); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "mouse press dispatch failed", err)
	}

	if err := sleepCtx(ctx, engine.ClickHoldDuration()); err != nil {
		return err
	}

	release := input.NewDispatchMouseEvent(input.MouseReleased, center.X, center.Y).
		WithButton(input.Left).WithClickCount(1)
	if _, err := c.Send(ctx, "Input.dispatchMouseEvent", release); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "mouse release dispatch failed", err)
	}
	return nil
}

// refreshedCenter calls DOM.getBoxModel and returns the center of the
// content quad in CSS pixels.
func (c *Client) refreshedCenter(ctx context.Context, backendNodeID int64) (humanoid.Vector2D, error) {
	params := dom.NewGetBoxModel().WithBackendNodeID(dom.BackendNodeID(backendNodeID))
	raw, err := c.Send(ctx, "DOM.getBoxModel", params)
	if err != nil {
		return humanoid.Vector2D{}, cdperrors.Wrap(cdperrors.KindNotVisible, "getBoxModel failed", err)
	}
	var result struct {
		Model struct {
			Content []float64 `json:"content"`
		} `json:"model"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return humanoid.Vector2D{}, cdperrors.Wrap(cdperrors.KindProtocol, "malformed getBoxModel result", err)
	}
	quad := result.Model.Content
	if len(quad) != 8 {
		return humanoid.Vector2D{}, cdperrors.New(cdperrors.KindNotVisible, "element has no content quad")
	}
	var sumX, sumY float64
	for i := 0; i < 8; i += 2 {
		sumX += quad[i]
		sumY += quad[i+1]
	}
	return humanoid.Vector2D{X: sumX / 4, Y: sumY / 4}, nil
}

// TypeText focuses the target via DOM.focus, optionally clears its current
// value, then dispatches one Input.insertText call per rune of text. Control
// characters such as '\n' and '\t' are inserted as text too; no key events
// are sent for them.
func (c *Client) TypeText(ctx context.Context, target ActionTarget, text string, clearExisting bool) error {
	focusParams := dom.NewFocus().WithBackendNodeID(dom.BackendNodeID(target.BackendNodeID))
	if _, err := c.Send(ctx, "DOM.focus", focusParams); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "focus failed before type", err)
	}

	if clearExisting {
		if err := c.selectAllAndDelete(ctx); err != nil {
			return err
		}
	}

	for _, r := range text {
		params := input.NewInsertText(string(r))
		if _, err := c.Send(ctx, "Input.insertText", params); err != nil {
			return cdperrors.Wrap(cdperrors.KindInput, "insertText failed", err)
		}
		if err := sleepCtx(ctx, 12*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) selectAllAndDelete(ctx context.Context) error {
	if err := c.PressKey(ctx, "a", []string{"ctrl"}); err != nil {
		return err
	}
	return c.PressKey(ctx, "Backspace", nil)
}

// keySpec carries the key/code/virtual-keycode triple CDP expects for a
// mnemonic key name.
type keySpec struct {
	key                   string
	code                  string
	windowsVirtualKeyCode int64
}

var mnemonicKeys = map[string]keySpec{
	"Enter":      {"Enter", "Enter", 13},
	"Escape":     {"Escape", "Escape", 27},
	"Tab":        {"Tab", "Tab", 9},
	"Backspace":  {"Backspace", "Backspace", 8},
	"Delete":     {"Delete", "Delete", 46},
	"ArrowUp":    {"ArrowUp", "ArrowUp", 38},
	"ArrowDown":  {"ArrowDown", "ArrowDown", 40},
	"ArrowLeft":  {"ArrowLeft", "ArrowLeft", 37},
	"ArrowRight": {"ArrowRight", "ArrowRight", 39},
	"Home":       {"Home", "Home", 36},
	"End":        {"End", "End", 35},
	"PageUp":     {"PageUp", "PageUp", 33},
	"PageDown":   {"PageDown", "PageDown", 34},
}

const (
	modifierAlt   int64 = 1
	modifierCtrl  int64 = 2
	modifierMeta  int64 = 4
	modifierShift int64 = 8
)

var modifierBits = map[string]int64{
	"alt":   modifierAlt,
	"ctrl":  modifierCtrl,
	"meta":  modifierMeta,
	"shift": modifierShift,
}

// PressKey dispatches a rawKeyDown + keyUp pair for a mnemonic key (Enter,
// Escape, Tab, Backspace, Delete, the Arrow keys, Home, End, PageUp/Down, or
// any single printable character) with optional modifiers, applying the
// Ctrl=2/Shift=8/Alt=1/Meta=4 bitmask CDP expects.
func (c *Client) PressKey(ctx context.Context, key string, modifiers []string) error {
	spec, known := mnemonicKeys[key]
	if !known {
		spec = keySpec{key: key, code: "Key" + key}
	}

	var mod int64
	for _, m := range modifiers {
		mod |= modifierBits[m]
	}

	down := map[string]interface{}{
		"type":                  "rawKeyDown",
		"key":                   spec.key,
		"code":                  spec.code,
		"windowsVirtualKeyCode": spec.windowsVirtualKeyCode,
		"modifiers":             mod,
	}
	if _, err := c.Send(ctx, "Input.dispatchKeyEvent", down); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, fmt.Sprintf("key down for %q failed", key), err)
	}

	up := map[string]interface{}{
		"type":                  "keyUp",
		"key":                   spec.key,
		"code":                  spec.code,
		"windowsVirtualKeyCode": spec.windowsVirtualKeyCode,
		"modifiers":             mod,
	}
	if _, err := c.Send(ctx, "Input.dispatchKeyEvent", up); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, fmt.Sprintf("key up for %q failed", key), err)
	}
	return nil
}

// SelectOption sets a <select>'s value via Runtime.callFunctionOn against
// the backend node and dispatches synthetic input+change events, matching
// the "by" mode (value, text, or index) the caller requested.
func (c *Client) SelectOption(ctx context.Context, target ActionTarget, value string, by string) error {
	objectID, err := c.resolveObjectID(ctx, target.BackendNodeID)
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"objectId":            objectID,
		"functionDeclaration": buildSelectExpression(by, value),
		"arguments":           []interface{}{},
	}
	if _, err := c.Send(ctx, "Runtime.callFunctionOn", params); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "select option failed", err)
	}
	return nil
}

func buildSelectExpression(by, value string) string {
	switch by {
	case "text":
		return fmt.Sprintf(`function() {
			for (const opt of this.options) { if (opt.text === %q) { this.selectedIndex = opt.index; break; } }
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
		}`, value)
	case "index":
		return fmt.Sprintf(`function() {
			this.selectedIndex = %s;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
		}`, value)
	default:
		return fmt.Sprintf(`function() {
			this.value = %q;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
		}`, value)
	}
}

func (c *Client) resolveObjectID(ctx context.Context, backendNodeID int64) (string, error) {
	params := dom.NewResolveNode().WithBackendNodeID(dom.BackendNodeID(backendNodeID))
	raw, err := c.Send(ctx, "DOM.resolveNode", params)
	if err != nil {
		return "", cdperrors.Wrap(cdperrors.KindNotFound, "failed to resolve node", err)
	}
	var result struct {
		Object struct {
			ObjectID string `json:"objectId"`
		} `json:"object"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", cdperrors.Wrap(cdperrors.KindProtocol, "malformed resolveNode result", err)
	}
	return result.Object.ObjectID, nil
}

// Scroll dispatches a synthetic mouse wheel event at the current viewport
// center, queried dynamically via Page.getLayoutMetrics rather than assumed.
func (c *Client) Scroll(ctx context.Context, direction string, amount int) error {
	cx, cy, err := c.viewportCenter(ctx)
	if err != nil {
		return err
	}

	dx, dy := 0.0, 0.0
	switch direction {
	case "down":
		dy = float64(amount)
	case "up":
		dy = -float64(amount)
	case "right":
		dx = float64(amount)
	case "left":
		dx = -float64(amount)
	default:
		return cdperrors.New(cdperrors.KindInput, fmt.Sprintf("unknown scroll direction %q", direction))
	}

	params := input.NewDispatchMouseEvent(input.MouseWheel, cx, cy).WithDeltaX(dx).WithDeltaY(dy)
	if _, err := c.Send(ctx, "Input.dispatchMouseEvent", params); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "scroll dispatch failed", err)
	}
	return nil
}

func (c *Client) viewportCenter(ctx context.Context) (float64, float64, error) {
	raw, err := c.Send(ctx, "Page.getLayoutMetrics", map[string]interface{}{})
	if err != nil {
		return 0, 0, cdperrors.Wrap(cdperrors.KindConnection, "getLayoutMetrics failed", err)
	}
	var result struct {
		CSSLayoutViewport struct {
			ClientWidth  float64 `json:"clientWidth"`
			ClientHeight float64 `json:"clientHeight"`
		} `json:"cssLayoutViewport"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, 0, cdperrors.Wrap(cdperrors.KindProtocol, "malformed getLayoutMetrics result", err)
	}
	return result.CSSLayoutViewport.ClientWidth / 2, result.CSSLayoutViewport.ClientHeight / 2, nil
}

// CaptureScreenshot requests Page.captureScreenshot and decodes the
// base64-on-the-wire payload into raw bytes; callers above this layer never
// see base64. When fullPage is set, the clip is widened to the page's full
// scrollable content size (cssContentSize) rather than the viewport.
func (c *Client) CaptureScreenshot(ctx context.Context, format string, quality int, fullPage bool) ([]byte, error) {
	params := page.NewCaptureScreenshot().WithFormat(page.CaptureScreenshotFormat(format))
	if format == "jpeg" {
		params = params.WithQuality(int64(quality))
	}
	if fullPage {
		clip, err := c.fullPageClip(ctx)
		if err != nil {
			return nil, err
		}
		params = params.WithClip(clip).WithCaptureBeyondViewport(true)
	}
	raw, err := c.Send(ctx, "Page.captureScreenshot", params)
	if err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindConnection, "screenshot capture failed", err)
	}
	var result struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindProtocol, "malformed screenshot result", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindProtocol, "malformed screenshot base64 payload", err)
	}
	return decoded, nil
}

// fullPageClip queries Page.getLayoutMetrics and returns a Viewport
// covering the full scrollable content area at device pixel ratio 1.
func (c *Client) fullPageClip(ctx context.Context) (*page.Viewport, error) {
	raw, err := c.Send(ctx, "Page.getLayoutMetrics", map[string]interface{}{})
	if err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindConnection, "getLayoutMetrics failed", err)
	}
	var result struct {
		CSSContentSize struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"cssContentSize"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindProtocol, "malformed getLayoutMetrics result", err)
	}
	return &page.Viewport{
		X:      0,
		Y:      0,
		Width:  result.CSSContentSize.Width,
		Height: result.CSSContentSize.Height,
		Scale:  1,
	}, nil
}

// Navigate sends Page.navigate and, if wait is set, blocks for document
// readiness in WaitForLoad.
func (c *Client) Navigate(ctx context.Context, url string, wait bool, timeout time.Duration) error {
	params := page.NewNavigate(url)
	if _, err := c.Send(ctx, "Page.navigate", params); err != nil {
		return cdperrors.Wrap(cdperrors.KindConnection, "navigate failed", err)
	}
	if !wait {
		return nil
	}
	return c.WaitForLoad(ctx, timeout)
}

// WaitForLoad waits for Page.loadEventFired (bounded by timeout) and then a
// fixed 500ms settle window for network idleness. If the event does not
// arrive in time, it instead makes one Runtime.evaluate check of
// document.readyState and fails unless the document is complete.
func (c *Client) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.awaitLoadEvent(waitCtx); err != nil {
		return c.readyStateGuard(ctx)
	}

	if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	return nil
}

func (c *Client) readyStateGuard(ctx context.Context) error {
	params := runtime.NewEvaluate("document.readyState === 'complete'")
	raw, err := c.Send(ctx, "Runtime.evaluate", params)
	if err != nil {
		return cdperrors.Wrap(cdperrors.KindTimeout, "readyState guard failed", err)
	}
	var result struct {
		Result struct {
			Value bool `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return cdperrors.Wrap(cdperrors.KindProtocol, "malformed evaluate result", err)
	}
	if !result.Result.Value {
		return cdperrors.New(cdperrors.KindTimeout, "document never reached readyState complete")
	}
	return nil
}

func (c *Client) GoBack(ctx context.Context) (bool, error) {
	return c.navigateHistory(ctx, -1)
}

func (c *Client) GoForward(ctx context.Context) (bool, error) {
	return c.navigateHistory(ctx, 1)
}

func (c *Client) navigateHistory(ctx context.Context, direction int) (bool, error) {
	raw, err := c.Send(ctx, "Page.getNavigationHistory", map[string]interface{}{})
	if err != nil {
		return false, cdperrors.Wrap(cdperrors.KindConnection, "failed to read navigation history", err)
	}
	var history struct {
		CurrentIndex int `json:"currentIndex"`
		Entries      []struct {
			ID int64 `json:"id"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(raw, &history); err != nil {
		return false, cdperrors.Wrap(cdperrors.KindProtocol, "malformed navigation history", err)
	}
	target := history.CurrentIndex + direction
	if target < 0 || target >= len(history.Entries) {
		return false, nil
	}
	_, err = c.Send(ctx, "Page.navigateToHistoryEntry", map[string]interface{}{
		"entryId": history.Entries[target].ID,
	})
	if err != nil {
		return false, cdperrors.Wrap(cdperrors.KindConnection, "navigateToHistoryEntry failed", err)
	}
	return true, nil
}

func (c *Client) Refresh(ctx context.Context) error {
	if _, err := c.Send(ctx, "Page.reload", map[string]interface{}{}); err != nil {
		return cdperrors.Wrap(cdperrors.KindConnection, "reload failed", err)
	}
	return nil
}

func (c *Client) GetCurrentURL(ctx context.Context) (string, error) {
	info, err := c.targetInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (c *Client) GetPageTitle(ctx context.Context) (string, error) {
	info, err := c.targetInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (c *Client) targetInfo(ctx context.Context) (struct{ URL, Title string }, error) {
	raw, err := c.Send(ctx, "Target.getTargetInfo", map[string]interface{}{"targetId": c.pageTargetID})
	if err != nil {
		return struct{ URL, Title string }{}, err
	}
	var result struct {
		TargetInfo struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"targetInfo"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return struct{ URL, Title string }{}, cdperrors.Wrap(cdperrors.KindProtocol, "malformed getTargetInfo result", err)
	}
	return struct{ URL, Title string }{URL: result.TargetInfo.URL, Title: result.TargetInfo.Title}, nil
}

// HighlightNode overlays a target element for `duration`, then hides the
// highlight; used for debug/demo screenshots rather than any production
// action.
func (c *Client) HighlightNode(ctx context.Context, backendNodeID int64, duration time.Duration) error {
	if !c.registry.IsDomainEnabled(mustActiveSessionForLog(c), "Overlay") {
		if _, err := c.Send(ctx, "Overlay.enable", map[string]interface{}{}); err == nil {
			if sid, ok := c.registry.ActiveSession(); ok {
				c.registry.MarkDomainEnabled(sid, "Overlay")
			}
		}
	}

	params := map[string]interface{}{
		"backendNodeId": backendNodeID,
		"highlightConfig": map[string]interface{}{
			"contentColor": map[string]interface{}{"r": 111, "g": 168, "b": 220, "a": 0.4},
		},
	}
	if _, err := c.Send(ctx, "Overlay.highlightNode", params); err != nil {
		return cdperrors.Wrap(cdperrors.KindInput, "highlightNode failed", err)
	}

	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		<-timer.C
		_, _ = c.Send(context.Background(), "Overlay.hideHighlight", map[string]interface{}{})
	}()
	return nil
}

func mustActiveSessionForLog(c *Client) string {
	sid, _ := c.registry.ActiveSession()
	return sid
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return cdperrors.Wrap(cdperrors.KindTimeout, "cancelled during action", ctx.Err())
	}
}
