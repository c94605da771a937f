// Package cdpclient is the multiplexed Chrome DevTools Protocol client: one
// WebSocket connection, many attached sessions, domain auto-enable, and a
// two-step dispatch state machine that retries a command exactly once after
// session recovery (spec note: no recursive retry — Try calls TryOnce,
// optionally calls RecoverOnce, then calls TryOnce again and stops).
package cdpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"go.uber.org/zap"

	"github.com/cdpscope/browseragent/internal/cdperrors"
	"github.com/cdpscope/browseragent/internal/cdpregistry"
	"github.com/cdpscope/browseragent/internal/cdptransport"
	"github.com/cdpscope/browseragent/internal/cdpwire"
)

// autoEnabledDomains are enabled once per session on attach, and again on the
// session a recovery reattach produces.
var autoEnabledDomains = []string{"DOM", "Page", "Network", "Runtime", "Accessibility", "DOMSnapshot", "Overlay"}

// DefaultCommandTimeout bounds any Send call that doesn't pass its own
// deadline via ctx.
const DefaultCommandTimeout = 10 * time.Second

// Client drives one browser-level WebSocket connection and the page session
// attached to it.
type Client struct {
	conn     *cdptransport.Connection
	codec    *cdpwire.Table
	registry *cdpregistry.Registry
	logger   *zap.Logger

	wsURL        string
	pageTargetID string
	recoverOnce  chan struct{} // guards concurrent recovery attempts

	eventMu     sync.Mutex
	loadWaiters []chan struct{}
}

// Connect dials wsURL, performs Target.setAutoAttach + attach-to-first-page,
// and enables the standard domain set on the resulting session.
func Connect(ctx context.Context, wsURL string, logger *zap.Logger) (*Client, error) {
	c := &Client{
		codec:       cdpwire.NewTable(),
		registry:    cdpregistry.New(),
		logger:      logger,
		wsURL:       wsURL,
		recoverOnce: make(chan struct{}, 1),
	}

	conn, err := cdptransport.Dial(ctx, wsURL, c, logger)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if err := c.bootstrap(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// OnMessage implements cdptransport.Handler; it classifies and routes each
// inbound frame, resolving pending commands or handling lifecycle events.
func (c *Client) OnMessage(raw []byte) {
	frame, err := cdpwire.Decode(raw)
	if err != nil {
		c.logger.Warn("cdpclient: dropping malformed frame", zap.Error(err))
		return
	}
	if frame.Response != nil {
		c.codec.Resolve(*frame.Response)
		return
	}
	c.handleEvent(*frame.Event)
}

// OnClose implements cdptransport.Handler; it fails every pending command so
// no caller blocks forever once the socket is gone.
func (c *Client) OnClose(cause error) {
	c.codec.FailAll(cause)
}

func (c *Client) handleEvent(ev cdpwire.Event) {
	switch ev.Method {
	case "Target.attachedToTarget":
		var params target.EventAttachedToTarget
		if err := json.Unmarshal(ev.Params, &params); err != nil {
			return
		}
		info := params.TargetInfo
		c.registry.AddTarget(string(info.TargetID), string(info.Type), info.URL, info.Title, string(info.BrowserContextID))
		c.registry.AddSession(string(params.SessionID), string(info.TargetID))

	case "Target.detachedFromTarget":
		var params target.EventDetachedFromTarget
		if err := json.Unmarshal(ev.Params, &params); err != nil {
			return
		}
		c.registry.MarkSessionDisconnected(string(params.SessionID))

	case "Target.targetDestroyed":
		var params target.EventTargetDestroyed
		if err := json.Unmarshal(ev.Params, &params); err != nil {
			return
		}
		c.registry.RemoveTarget(string(params.TargetID))

	case "Page.frameAttached":
		var params struct {
			FrameID       string `json:"frameId"`
			ParentFrameID string `json:"parentFrameId"`
		}
		if err := json.Unmarshal(ev.Params, &params); err != nil {
			return
		}
		c.registry.AddFrame(params.FrameID, params.ParentFrameID, "", "", "", ev.SessionID)

	case "Page.frameNavigated":
		var params struct {
			Frame struct {
				ID       string `json:"id"`
				ParentID string `json:"parentId"`
				URL      string `json:"url"`
			} `json:"frame"`
		}
		if err := json.Unmarshal(ev.Params, &params); err != nil {
			return
		}
		c.registry.AddFrame(params.Frame.ID, params.Frame.ParentID, params.Frame.URL, extractOriginLoose(params.Frame.URL), "", ev.SessionID)

	case "Page.frameDetached":
		var params struct {
			FrameID string `json:"frameId"`
		}
		if err := json.Unmarshal(ev.Params, &params); err != nil {
			return
		}
		c.registry.RemoveFrame(params.FrameID)

	case "Page.loadEventFired":
		c.broadcastLoadEvent()
	}
}

// awaitLoadEvent registers a waiter for the next Page.loadEventFired and
// blocks until it fires or ctx is done.
func (c *Client) awaitLoadEvent(ctx context.Context) error {
	ch := make(chan struct{})
	c.eventMu.Lock()
	c.loadWaiters = append(c.loadWaiters, ch)
	c.eventMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return cdperrors.Wrap(cdperrors.KindTimeout, "timed out waiting for load event", ctx.Err())
	}
}

func (c *Client) broadcastLoadEvent() {
	c.eventMu.Lock()
	waiters := c.loadWaiters
	c.loadWaiters = nil
	c.eventMu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func extractOriginLoose(rawURL string) string {
	return rawURL
}

// bootstrap performs the initial Target.setAutoAttach / getTargets /
// attachToTarget / enable-domains sequence against the first page target,
// mirroring the prototype's CDPClient.connect().
func (c *Client) bootstrap(ctx context.Context) error {
	_, err := c.sendRaw(ctx, "", "Target.setAutoAttach", map[string]interface{}{
		"autoAttach":             true,
		"flatten":                true,
		"waitForDebuggerOnStart": false,
	})
	if err != nil {
		return err
	}

	raw, err := c.sendRaw(ctx, "", "Target.getTargets", map[string]interface{}{})
	if err != nil {
		return err
	}
	var targets struct {
		TargetInfos []target.Info `json:"targetInfos"`
	}
	if err := json.Unmarshal(raw, &targets); err != nil {
		return cdperrors.Wrap(cdperrors.KindProtocol, "malformed Target.getTargets result", err)
	}

	var page *target.Info
	for i := range targets.TargetInfos {
		if targets.TargetInfos[i].Type == "page" {
			page = &targets.TargetInfos[i]
			break
		}
	}
	if page == nil {
		return cdperrors.New(cdperrors.KindNotFound, "no page target found")
	}
	c.pageTargetID = string(page.TargetID)
	c.registry.AddTarget(c.pageTargetID, page.Type, page.URL, page.Title, string(page.BrowserContextID))

	raw, err = c.sendRaw(ctx, "", "Target.attachToTarget", map[string]interface{}{
		"targetId": c.pageTargetID,
		"flatten":  true,
	})
	if err != nil {
		return err
	}
	var attachResult struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &attachResult); err != nil {
		return cdperrors.Wrap(cdperrors.KindProtocol, "malformed Target.attachToTarget result", err)
	}

	c.registry.AddSession(attachResult.SessionID, c.pageTargetID)
	c.registry.SetActiveSession(attachResult.SessionID)

	return c.enableDomains(ctx, attachResult.SessionID, autoEnabledDomains)
}

func (c *Client) enableDomains(ctx context.Context, sessionID string, domains []string) error {
	for _, domain := range domains {
		if c.registry.IsDomainEnabled(sessionID, domain) {
			continue
		}
		if _, err := c.sendRaw(ctx, sessionID, domain+".enable", map[string]interface{}{}); err != nil {
			return err
		}
		c.registry.MarkDomainEnabled(sessionID, domain)
	}
	return nil
}

// activeSession returns the current page session id, recovering once if it
// has been marked disconnected.
func (c *Client) activeSession(ctx context.Context) (string, error) {
	sid, ok := c.registry.ActiveSession()
	if ok {
		if s, _ := c.registry.GetSession(sid); s != nil && s.Status != cdpregistry.StatusDisconnected {
			return sid, nil
		}
	}
	return c.recoverSession(ctx)
}

// recoverSession performs the bounded, one-shot reattach described in spec
// §9: re-run Target.attachToTarget against the known page target id and
// re-enable domains. It never calls itself recursively.
func (c *Client) recoverSession(ctx context.Context) (string, error) {
	select {
	case c.recoverOnce <- struct{}{}:
		defer func() { <-c.recoverOnce }()
	default:
		return "", cdperrors.New(cdperrors.KindSessionLost, "recovery already in progress")
	}

	if sid, ok := c.registry.ActiveSession(); ok {
		if s, _ := c.registry.GetSession(sid); s != nil && s.Status != cdpregistry.StatusDisconnected {
			return sid, nil
		}
	}

	raw, err := c.sendRaw(ctx, "", "Target.attachToTarget", map[string]interface{}{
		"targetId": c.pageTargetID,
		"flatten":  true,
	})
	if err != nil {
		return "", cdperrors.Wrap(cdperrors.KindSessionLost, "session recovery failed", err)
	}
	var attachResult struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &attachResult); err != nil {
		return "", cdperrors.Wrap(cdperrors.KindSessionLost, "malformed recovery response", err)
	}

	c.registry.AddSession(attachResult.SessionID, c.pageTargetID)
	c.registry.SetActiveSession(attachResult.SessionID)
	if err := c.enableDomains(ctx, attachResult.SessionID, autoEnabledDomains); err != nil {
		return "", err
	}
	return attachResult.SessionID, nil
}

// sendRaw submits one command on an explicit session (empty = browser-level)
// without any session-recovery logic; it is the primitive both bootstrap
// and the recovering Send build on.
func (c *Client) sendRaw(ctx context.Context, sessionID, method string, params interface{}) (json.RawMessage, error) {
	id, ch, err := c.codec.Register(method)
	if err != nil {
		return nil, err
	}

	cmd := cdpwire.Command{ID: id, Method: method, Params: params, SessionID: sessionID}
	payload, err := cdpwire.Encode(cmd)
	if err != nil {
		c.codec.Cancel(id)
		return nil, cdperrors.Wrap(cdperrors.KindProtocol, "failed to encode command", err)
	}

	if err := c.conn.Send(payload); err != nil {
		c.codec.Cancel(id)
		return nil, err
	}

	timeoutCtx, cancel := ensureDeadline(ctx, DefaultCommandTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err.AsCoreError().WithContext(sessionID, "", method)
		}
		return resp.Result, nil
	case <-timeoutCtx.Done():
		c.codec.Cancel(id)
		return nil, cdperrors.Wrap(cdperrors.KindTimeout, fmt.Sprintf("%s timed out", method), timeoutCtx.Err())
	}
}

func ensureDeadline(ctx context.Context, def time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, def)
}

// Send dispatches a command on the active page session, attempting recovery
// exactly once if the session has been lost. This is the two-step state
// machine: tryOnce, then (if session lost) recoverOnce + tryOnce again.
func (c *Client) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	sid, err := c.activeSession(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.sendRaw(ctx, sid, method, params)
	if err == nil {
		return result, nil
	}
	if !isSessionLost(err) {
		return nil, err
	}

	c.registry.MarkSessionDisconnected(sid)
	newSid, recErr := c.recoverSession(ctx)
	if recErr != nil {
		return nil, recErr
	}
	return c.sendRaw(ctx, newSid, method, params)
}

// SendBrowserLevel dispatches a command with no sessionId, for
// browser-global methods like Target.getTargets.
func (c *Client) SendBrowserLevel(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.sendRaw(ctx, "", method, params)
}

func isSessionLost(err error) bool {
	var coreErr *cdperrors.Error
	for e := err; e != nil; {
		if ce, ok := e.(*cdperrors.Error); ok {
			coreErr = ce
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if coreErr == nil {
		return false
	}
	lower := strings.ToLower(coreErr.Message)
	return coreErr.Kind == cdperrors.KindProtocol &&
		(strings.Contains(lower, "session") && (strings.Contains(lower, "not found") || strings.Contains(lower, "no session")))
}

// Close shuts the underlying connection down, awaiting the reader goroutine.
func (c *Client) Close() error {
	return c.conn.Close()
}

// PageTargetID returns the target id of the attached page.
func (c *Client) PageTargetID() string { return c.pageTargetID }
