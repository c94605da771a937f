// Package rawcollector fans out the four CDP round-trips the merger needs
// — DOM tree, paint/layout snapshot, accessibility tree, and layout metrics
// — under one overall timeout. Each subresult is allowed to fail
// independently; the merger degrades to whatever subset came back rather
// than the whole call failing because one domain errored.
package rawcollector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// computedStyleAllowlist is the fixed set of computed style properties asked
// of DOMSnapshot.captureSnapshot; it is a module-level constant so callers
// never vary it per request.
var computedStyleAllowlist = []string{
	"display", "visibility", "opacity",
	"overflow", "overflow-x", "overflow-y",
	"cursor", "pointer-events", "position", "user-select",
}

// DefaultTimeout bounds the whole four-way fetch when the caller doesn't
// supply its own deadline.
const DefaultTimeout = 30 * time.Second

// Sender is the subset of cdpclient.Client the collector depends on, kept
// narrow so it can be faked in tests without standing up a WebSocket.
type Sender interface {
	Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
}

// RawSnapshot holds whichever subset of the four CDP payloads came back
// before the timeout. A nil field means that subresult failed or never
// returned; Failures records why.
type RawSnapshot struct {
	DOM      json.RawMessage
	Snapshot json.RawMessage
	AX       json.RawMessage
	Metrics  json.RawMessage
	Failures []SourceFailure
}

// SourceFailure names which CDP domain call failed and why, surfaced so
// callers can log degraded collection without losing the rest of the data.
type SourceFailure struct {
	Source string
	Err    error
}

// Collect issues the four calls concurrently under timeout and returns
// whatever subset succeeded. It never itself returns an error: total
// failure is represented as a RawSnapshot with every field nil and four
// entries in Failures.
func Collect(ctx context.Context, sender Sender, timeout time.Duration) *RawSnapshot {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap := &RawSnapshot{}
	var mu sync.Mutex
	recordFailure := func(source string, err error) {
		mu.Lock()
		snap.Failures = append(snap.Failures, SourceFailure{Source: source, Err: err})
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		raw, err := sender.Send(egCtx, "DOM.getDocument", map[string]interface{}{
			"depth":  -1,
			"pierce": true,
		})
		if err != nil {
			recordFailure("dom", err)
			return nil
		}
		mu.Lock()
		snap.DOM = raw
		mu.Unlock()
		return nil
	})

	eg.Go(func() error {
		raw, err := sender.Send(egCtx, "DOMSnapshot.captureSnapshot", map[string]interface{}{
			"computedStyles":    computedStyleAllowlist,
			"includePaintOrder": true,
			"includeDOMRects":   true,
		})
		if err != nil {
			recordFailure("snapshot", err)
			return nil
		}
		mu.Lock()
		snap.Snapshot = raw
		mu.Unlock()
		return nil
	})

	eg.Go(func() error {
		raw, err := sender.Send(egCtx, "Accessibility.getFullAXTree", map[string]interface{}{})
		if err != nil {
			recordFailure("ax", err)
			return nil
		}
		mu.Lock()
		snap.AX = raw
		mu.Unlock()
		return nil
	})

	eg.Go(func() error {
		raw, err := sender.Send(egCtx, "Page.getLayoutMetrics", map[string]interface{}{})
		if err != nil {
			recordFailure("metrics", err)
			return nil
		}
		mu.Lock()
		snap.Metrics = raw
		mu.Unlock()
		return nil
	})

	_ = eg.Wait() // every Go func swallows its own error; Wait never fails

	return snap
}

// FullyFailed reports whether every one of the four subresults was lost,
// the one condition under which the facade should surface a hard error
// instead of a degraded state.
func (s *RawSnapshot) FullyFailed() bool {
	return s.DOM == nil && s.Snapshot == nil && s.AX == nil && s.Metrics == nil
}
