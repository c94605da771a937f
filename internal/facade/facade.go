// Package facade is the high-level, user-facing browser automation
// surface: it owns the Chrome lifecycle, turns the four raw CDP collections
// into a BrowserState, and resolves index-addressed actions back to
// concrete CDP primitives. Ported from browser.py's Browser class — same
// method set, same "connect to an existing Chrome, else launch one" start
// sequence, same dict-then-linear-scan index lookup.
package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cdpscope/browseragent/internal/cdpclient"
	"github.com/cdpscope/browseragent/internal/cdperrors"
	"github.com/cdpscope/browseragent/internal/httpdiscover"
	"github.com/cdpscope/browseragent/internal/humanoid"
	"github.com/cdpscope/browseragent/internal/launcher"
	"github.com/cdpscope/browseragent/internal/merger"
	"github.com/cdpscope/browseragent/internal/rawcollector"
	"github.com/cdpscope/browseragent/internal/serializer"
)

// BrowserConfig mirrors browser.py's BrowserConfig dataclass: the knobs
// that control how Chrome is found/launched and how state is collected.
type BrowserConfig struct {
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	Host              string
	Port              int
	PageLoadTimeout   time.Duration
	ActionTimeout     time.Duration
	NetworkIdleWindow time.Duration
	ScreenshotQuality int
	ScreenshotFormat  string
	UserDataDir       string
	ScreenshotDir     string
	Debug             bool
}

// DefaultBrowserConfig matches browser.py's dataclass field defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		ViewportWidth:     1280,
		ViewportHeight:    720,
		Host:              "localhost",
		Port:              9222,
		PageLoadTimeout:   15 * time.Second,
		ActionTimeout:     5 * time.Second,
		NetworkIdleWindow: 500 * time.Millisecond,
		ScreenshotQuality: 80,
		ScreenshotFormat:  "jpeg",
		ScreenshotDir:     os.TempDir(),
	}
}

// ActionResult is the uniform result every action primitive returns,
// matching spec.md §6: success, which action ran, which element (if any),
// an error kind on failure, and an optional screenshot reference.
type ActionResult struct {
	Success          bool
	ActionType       string
	ElementIndex     *int
	ErrorKind        cdperrors.Kind
	ErrorMessage     string
	ExtractedContent string
	ScreenshotRef    string
	URLAfter         string
}

func ok(actionType string, index *int, extracted string) ActionResult {
	return ActionResult{Success: true, ActionType: actionType, ElementIndex: index, ExtractedContent: extracted}
}

func fail(actionType string, index *int, err error) ActionResult {
	kind := cdperrors.KindProtocol
	if ce, ok := err.(*cdperrors.Error); ok {
		kind = ce.Kind
	}
	return ActionResult{Success: false, ActionType: actionType, ElementIndex: index, ErrorKind: kind, ErrorMessage: err.Error()}
}

// BrowserState is the immutable snapshot handed to an LLM: URL, title,
// the serialized element text, the index-addressable selector map, and at
// most one in-memory screenshot.
type BrowserState struct {
	URL             string
	Title           string
	DOMText         string
	SelectorMap     map[int]serializer.SelectorEntry
	ScreenshotBytes []byte
	ViewportWidth   int
	ViewportHeight  int
}

// ElementCount is the number of actionable elements in this state.
func (s BrowserState) ElementCount() int { return len(s.SelectorMap) }

// Browser is the high-level automation handle. Zero value is not usable;
// construct with New.
type Browser struct {
	config BrowserConfig
	logger *zap.Logger

	client  *cdpclient.Client
	process *launcher.Process
	engine  *humanoid.Engine

	nodes       []merger.EnhancedNode
	selectorMap map[int]serializer.SelectorEntry
	lastState   *BrowserState
}

// New constructs a Browser with the given config, applying defaults for
// anything left zero-valued.
func New(config BrowserConfig, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultBrowserConfig()
	if config.ViewportWidth == 0 {
		config.ViewportWidth = defaults.ViewportWidth
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = defaults.ViewportHeight
	}
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.PageLoadTimeout == 0 {
		config.PageLoadTimeout = defaults.PageLoadTimeout
	}
	if config.ActionTimeout == 0 {
		config.ActionTimeout = defaults.ActionTimeout
	}
	if config.NetworkIdleWindow == 0 {
		config.NetworkIdleWindow = defaults.NetworkIdleWindow
	}
	if config.ScreenshotQuality == 0 {
		config.ScreenshotQuality = defaults.ScreenshotQuality
	}
	if config.ScreenshotFormat == "" {
		config.ScreenshotFormat = defaults.ScreenshotFormat
	}
	if config.ScreenshotDir == "" {
		config.ScreenshotDir = defaults.ScreenshotDir
	}
	return &Browser{config: config, logger: logger, selectorMap: map[int]serializer.SelectorEntry{}}
}

// Start connects to an already-running Chrome instance if one answers at
// config.Host:Port, otherwise launches a new one, then establishes the CDP
// session. Mirrors browser.py's Browser.start.
func (b *Browser) Start(ctx context.Context) error {
	discover := httpdiscover.New(b.logger)
	wsURL, err := discover.BrowserWebSocketURL(ctx, b.config.Host, b.config.Port)
	if err != nil {
		b.logger.Info("facade: no existing chrome found, launching")
		proc, launchErr := launcher.Launch(ctx, launcher.Config{
			Headless:       b.config.Headless,
			ViewportWidth:  b.config.ViewportWidth,
			ViewportHeight: b.config.ViewportHeight,
			Host:           b.config.Host,
			Port:           b.config.Port,
			UserDataDir:    b.config.UserDataDir,
		}, b.logger)
		if launchErr != nil {
			return launchErr
		}
		b.process = proc
		wsURL = proc.WsURL
	} else {
		b.logger.Info("facade: connected to existing chrome", zap.String("host", b.config.Host))
	}

	client, err := cdpclient.Connect(ctx, wsURL, b.logger)
	if err != nil {
		b.process.Stop()
		b.process = nil
		return err
	}
	b.client = client
	b.engine = humanoid.NewEngine(int64(uuid.New().ID()), humanoid.Vector2D{X: float64(b.config.ViewportWidth) / 2, Y: float64(b.config.ViewportHeight) / 2})
	return nil
}

// Stop closes the CDP connection and, if this Browser launched Chrome
// itself, terminates the subprocess.
func (b *Browser) Stop() error {
	var err error
	if b.client != nil {
		err = b.client.Close()
		b.client = nil
	}
	if b.process != nil {
		b.process.Stop()
		b.process = nil
	}
	return err
}

func (b *Browser) ensureConnected() (*cdpclient.Client, error) {
	if b.client == nil {
		return nil, cdperrors.New(cdperrors.KindConnection, "browser not connected; call Start first")
	}
	return b.client, nil
}

// GetState collects DOM/Snapshot/AX/Metrics, merges and serializes them,
// and concurrently fetches URL, title, and (if requested) a screenshot —
// never sequentially, per spec.md §4.H.
func (b *Browser) GetState(ctx context.Context, includeScreenshot bool) (*BrowserState, error) {
	client, err := b.ensureConnected()
	if err != nil {
		return nil, err
	}

	raw := rawcollector.Collect(ctx, client, rawcollector.DefaultTimeout)
	if raw.FullyFailed() {
		return nil, cdperrors.New(cdperrors.KindConnection, "all DOM data sources failed")
	}

	m := merger.New(float64(b.config.ViewportWidth), float64(b.config.ViewportHeight))
	nodes, err := m.Merge(raw.DOM, raw.Snapshot, raw.AX, raw.Metrics)
	if err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindProtocol, "merging DOM data", err)
	}
	b.nodes = nodes

	serialized := serializer.Serialize(nodes, serializer.Options{})
	b.selectorMap = serialized.SelectorMap

	var url, title string
	var screenshot []byte

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		u, err := client.GetCurrentURL(egCtx)
		if err != nil {
			return err
		}
		url = u
		return nil
	})
	eg.Go(func() error {
		t, err := client.GetPageTitle(egCtx)
		if err != nil {
			return err
		}
		title = t
		return nil
	})
	if includeScreenshot {
		eg.Go(func() error {
			s, err := client.CaptureScreenshot(egCtx, b.config.ScreenshotFormat, b.config.ScreenshotQuality, false)
			if err != nil {
				return err
			}
			screenshot = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindConnection, "collecting url/title/screenshot", err)
	}

	state := &BrowserState{
		URL:             url,
		Title:           title,
		DOMText:         serialized.Text(),
		SelectorMap:     b.selectorMap,
		ScreenshotBytes: screenshot,
		ViewportWidth:   b.config.ViewportWidth,
		ViewportHeight:  b.config.ViewportHeight,
	}
	b.lastState = state
	return state, nil
}

// LastState returns the most recently collected BrowserState, or nil if
// GetState has never been called.
func (b *Browser) LastState() *BrowserState { return b.lastState }

// getNodeByIndex resolves a 1-based selector index to its EnhancedNode:
// a map lookup into the selector map, then a linear scan of the last
// merge's nodes for a matching backend node id — mirrors
// browser.py's _get_node_by_index exactly, linear scan included.
func (b *Browser) getNodeByIndex(index int) (*merger.EnhancedNode, bool) {
	entry, ok := b.selectorMap[index]
	if !ok {
		return nil, false
	}
	for i := range b.nodes {
		if b.nodes[i].BackendNodeID == entry.BackendNodeID {
			return &b.nodes[i], true
		}
	}
	return nil, false
}

func notFoundResult(actionType string, index int) ActionResult {
	return ActionResult{
		Success:      false,
		ActionType:   actionType,
		ElementIndex: &index,
		ErrorKind:    cdperrors.KindNotFound,
		ErrorMessage: fmt.Sprintf("element [%d] not found; call GetState first or the element may have changed", index),
	}
}

func actionTarget(node *merger.EnhancedNode) cdpclient.ActionTarget {
	return cdpclient.ActionTarget{
		BackendNodeID: node.BackendNodeID,
		ClickPoint:    node.ClickPoint,
		FrameID:       node.FrameID,
	}
}

// Click clicks the element at index via a humanlike cursor path.
func (b *Browser) Click(ctx context.Context, index int) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("click", &index, err)
	}
	node, found := b.getNodeByIndex(index)
	if !found {
		return notFoundResult("click", index)
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.ActionTimeout)
	defer cancel()
	if err := client.ClickNode(ctx, actionTarget(node), b.engine); err != nil {
		return fail("click", &index, err)
	}
	return ok("click", &index, "")
}

// Type types text into the element at index.
func (b *Browser) Type(ctx context.Context, index int, text string, clearExisting bool) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("type", &index, err)
	}
	node, found := b.getNodeByIndex(index)
	if !found {
		return notFoundResult("type", index)
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.ActionTimeout)
	defer cancel()
	if err := client.TypeText(ctx, actionTarget(node), text, clearExisting); err != nil {
		return fail("type", &index, err)
	}
	return ok("type", &index, "")
}

// Select picks an option in a <select> element at index.
func (b *Browser) Select(ctx context.Context, index int, value string, by string) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("select", &index, err)
	}
	node, found := b.getNodeByIndex(index)
	if !found {
		return notFoundResult("select", index)
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.ActionTimeout)
	defer cancel()
	if err := client.SelectOption(ctx, actionTarget(node), value, by); err != nil {
		return fail("select", &index, err)
	}
	return ok("select", &index, value)
}

// Scroll scrolls the page in direction by amount pixels.
func (b *Browser) Scroll(ctx context.Context, direction string, amount int) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("scroll", nil, err)
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.ActionTimeout)
	defer cancel()
	if err := client.Scroll(ctx, direction, amount); err != nil {
		return fail("scroll", nil, err)
	}
	return ok("scroll", nil, fmt.Sprintf("%s %dpx", direction, amount))
}

// PressKey sends a single keypress with optional modifiers.
func (b *Browser) PressKey(ctx context.Context, key string, modifiers []string) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("press_key", nil, err)
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.ActionTimeout)
	defer cancel()
	if err := client.PressKey(ctx, key, modifiers); err != nil {
		return fail("press_key", nil, err)
	}
	extracted := key
	if len(modifiers) > 0 {
		extracted = fmt.Sprintf("%s+%s", key, joinModifiers(modifiers))
	}
	return ok("press_key", nil, extracted)
}

func joinModifiers(mods []string) string {
	out := mods[0]
	for _, m := range mods[1:] {
		out += "+" + m
	}
	return out
}

// Navigate loads url, optionally waiting for the load event.
func (b *Browser) Navigate(ctx context.Context, url string, waitForLoad bool) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("navigate", nil, err)
	}
	if err := client.Navigate(ctx, url, waitForLoad, b.config.PageLoadTimeout); err != nil {
		return fail("navigate", nil, err)
	}
	return ok("navigate", nil, url)
}

// GoBack navigates back one entry in browser history.
func (b *Browser) GoBack(ctx context.Context) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("go_back", nil, err)
	}
	moved, err := client.GoBack(ctx)
	if err != nil {
		return fail("go_back", nil, err)
	}
	if !moved {
		return fail("go_back", nil, cdperrors.New(cdperrors.KindNotFound, "no history to go back to"))
	}
	return ok("go_back", nil, "")
}

// GoForward navigates forward one entry in browser history.
func (b *Browser) GoForward(ctx context.Context) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("go_forward", nil, err)
	}
	moved, err := client.GoForward(ctx)
	if err != nil {
		return fail("go_forward", nil, err)
	}
	if !moved {
		return fail("go_forward", nil, cdperrors.New(cdperrors.KindNotFound, "no history to go forward to"))
	}
	return ok("go_forward", nil, "")
}

// Refresh reloads the current page.
func (b *Browser) Refresh(ctx context.Context) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("refresh", nil, err)
	}
	if err := client.Refresh(ctx); err != nil {
		return fail("refresh", nil, err)
	}
	return ok("refresh", nil, "")
}

// Screenshot captures the current page and persists it to a temp file,
// returning the path as ScreenshotRef — screenshots never live in
// long-lived history as raw bytes (spec.md §9).
func (b *Browser) Screenshot(ctx context.Context, fullPage bool) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("screenshot", nil, err)
	}
	data, err := client.CaptureScreenshot(ctx, b.config.ScreenshotFormat, b.config.ScreenshotQuality, fullPage)
	if err != nil {
		return fail("screenshot", nil, err)
	}

	ext := "jpg"
	if b.config.ScreenshotFormat == "png" {
		ext = "png"
	}
	path := filepath.Join(b.config.ScreenshotDir, fmt.Sprintf("browseragent-%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fail("screenshot", nil, cdperrors.Wrap(cdperrors.KindConnection, "writing screenshot file", err))
	}

	result := ok("screenshot", nil, "")
	result.ScreenshotRef = path
	return result
}

// HighlightNode draws a transient overlay outline around the element at
// index, for duration.
func (b *Browser) HighlightNode(ctx context.Context, index int, duration time.Duration) ActionResult {
	client, err := b.ensureConnected()
	if err != nil {
		return fail("highlight", &index, err)
	}
	node, found := b.getNodeByIndex(index)
	if !found {
		return notFoundResult("highlight", index)
	}
	if err := client.HighlightNode(ctx, node.BackendNodeID, duration); err != nil {
		return fail("highlight", &index, err)
	}
	return ok("highlight", &index, "")
}

// GetElement returns the selector metadata for index, mirroring
// browser.py's Browser.get_element.
func (b *Browser) GetElement(index int) (serializer.SelectorEntry, bool) {
	entry, ok := b.selectorMap[index]
	return entry, ok
}

// ElementCount is the number of actionable elements from the last state.
func (b *Browser) ElementCount() int { return len(b.selectorMap) }
