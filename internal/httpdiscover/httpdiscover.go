// Package httpdiscover probes a running Chrome DevTools instance's
// `/json/version` endpoint for the browser-level WebSocket debugger URL —
// the one piece of bootstrap information cdpclient.Connect needs before it
// can dial anything. Built on the teacher's HTTP/2-capable network.Client
// rather than a bare http.Get, matching how every other outbound call in
// this codebase is made.
package httpdiscover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/cdpscope/browseragent/internal/network"
)

// versionResponse mirrors the subset of /json/version's payload this
// package needs.
type versionResponse struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	Browser              string `json:"Browser"`
}

// Client discovers a live Chrome DevTools endpoint over HTTP.
type Client struct {
	http   *network.Client
	logger *zap.Logger
}

// New builds a discovery client. A nil logger falls back to a no-op one.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := network.NewDefaultClientConfig()
	cfg.Logger = logger
	return &Client{http: network.NewClient(cfg), logger: logger}
}

// BrowserWebSocketURL fetches http://host:port/json/version and returns the
// browser-level WebSocket debugger URL it advertises.
func (c *Client) BrowserWebSocketURL(ctx context.Context, host string, port int) (string, error) {
	endpoint := fmt.Sprintf("http://%s:%d/json/version", host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("httpdiscover: building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpdiscover: no chrome devtools endpoint at %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("httpdiscover: %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("httpdiscover: reading response body: %w", err)
	}

	var v versionResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("httpdiscover: decoding /json/version: %w", err)
	}
	if v.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("httpdiscover: %s did not advertise a webSocketDebuggerUrl", endpoint)
	}

	c.logger.Debug("httpdiscover: found chrome endpoint", zap.String("browser", v.Browser), zap.String("ws_url", v.WebSocketDebuggerURL))
	return v.WebSocketDebuggerURL, nil
}
