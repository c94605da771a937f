package httpdiscover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserWebSocketURLReturnsAdvertisedEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json/version", r.URL.Path)
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120.0","webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/abc"}`))
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)

	c := New(nil)
	wsURL, err := c.BrowserWebSocketURL(context.Background(), host, port)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", wsURL)
}

func TestBrowserWebSocketURLErrorsOnMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120.0"}`))
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)

	c := New(nil)
	_, err := c.BrowserWebSocketURL(context.Background(), host, port)
	assert.Error(t, err)
}

func TestBrowserWebSocketURLErrorsWhenUnreachable(t *testing.T) {
	c := New(nil)
	_, err := c.BrowserWebSocketURL(context.Background(), "127.0.0.1", 1)
	assert.Error(t, err)
}

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}
