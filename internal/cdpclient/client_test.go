package cdpclient

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFrame is the minimal shape of an inbound command the fake server needs
// to classify and respond to.
type fakeFrame struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeServer is a bare CDP WebSocket endpoint: one accepted connection,
// framed with the same gobwas/ws stack the real transport uses, driven by a
// test-supplied responder closure.
type fakeServer struct {
	ln  net.Listener
	url string
}

func newFakeServer(t *testing.T, respond func(conn net.Conn, frame fakeFrame)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeServer{ln: ln, url: "ws://" + ln.Addr().String() + "/devtools/browser/fake"}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if _, err := ws.Upgrade(conn); err != nil {
			conn.Close()
			return
		}
		for {
			msg, _, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			var frame fakeFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				continue
			}
			respond(conn, frame)
		}
	}()

	return srv
}

func (s *fakeServer) Close() { _ = s.ln.Close() }

func writeResult(t *testing.T, conn net.Conn, id int64, result interface{}) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"id": id, "result": result})
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteServerText(conn, payload))
}

func writeProtocolError(t *testing.T, conn net.Conn, id int64, code int64, message string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":    id,
		"error": map[string]interface{}{"code": code, "message": message},
	})
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteServerText(conn, payload))
}

func pageTargetsResult() map[string]interface{} {
	return map[string]interface{}{
		"targetInfos": []map[string]interface{}{
			{
				"targetId":         "T1",
				"type":             "page",
				"title":            "Example",
				"url":              "https://example.com",
				"attached":         true,
				"browserContextId": "B1",
			},
		},
	}
}

func TestConnectBootstrapsSessionAndEnablesDomains(t *testing.T) {
	srv := newFakeServer(t, func(conn net.Conn, frame fakeFrame) {
		switch frame.Method {
		case "Target.getTargets":
			writeResult(t, conn, frame.ID, pageTargetsResult())
		case "Target.attachToTarget":
			writeResult(t, conn, frame.ID, map[string]interface{}{"sessionId": "S1"})
		default:
			writeResult(t, conn, frame.ID, map[string]interface{}{})
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, srv.url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "T1", client.PageTargetID())
}

func TestConnectFailsWhenNoPageTargetExists(t *testing.T) {
	srv := newFakeServer(t, func(conn net.Conn, frame fakeFrame) {
		switch frame.Method {
		case "Target.getTargets":
			writeResult(t, conn, frame.ID, map[string]interface{}{"targetInfos": []map[string]interface{}{}})
		default:
			writeResult(t, conn, frame.ID, map[string]interface{}{})
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, srv.url, zap.NewNop())
	require.Error(t, err)
}

func TestSendRecoversSessionExactlyOnceAfterSessionLost(t *testing.T) {
	var attachCount int
	var navigateFailed bool

	srv := newFakeServer(t, func(conn net.Conn, frame fakeFrame) {
		switch frame.Method {
		case "Target.getTargets":
			writeResult(t, conn, frame.ID, pageTargetsResult())
		case "Target.attachToTarget":
			attachCount++
			sid := "S1"
			if attachCount > 1 {
				sid = "S2"
			}
			writeResult(t, conn, frame.ID, map[string]interface{}{"sessionId": sid})
		case "Page.navigate":
			if !navigateFailed {
				navigateFailed = true
				writeProtocolError(t, conn, frame.ID, -32000, "No session with given id")
				return
			}
			writeResult(t, conn, frame.ID, map[string]interface{}{})
		default:
			writeResult(t, conn, frame.ID, map[string]interface{}{})
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, srv.url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Send(ctx, "Page.navigate", map[string]interface{}{"url": "https://example.com/next"})
	require.NoError(t, err)
	assert.Equal(t, 2, attachCount, "expected one bootstrap attach and exactly one recovery attach")
}

func TestSendReturnsProtocolErrorWhenNotSessionLoss(t *testing.T) {
	srv := newFakeServer(t, func(conn net.Conn, frame fakeFrame) {
		switch frame.Method {
		case "Target.getTargets":
			writeResult(t, conn, frame.ID, pageTargetsResult())
		case "Target.attachToTarget":
			writeResult(t, conn, frame.ID, map[string]interface{}{"sessionId": "S1"})
		case "DOM.resolveNode":
			writeProtocolError(t, conn, frame.ID, -32000, "Could not find node with given id")
		default:
			writeResult(t, conn, frame.ID, map[string]interface{}{})
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, srv.url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Send(ctx, "DOM.resolveNode", map[string]interface{}{"backendNodeId": 42})
	require.Error(t, err)
}

func TestOnCloseFailsPendingCommands(t *testing.T) {
	ready := make(chan net.Conn, 1)
	srv := newFakeServer(t, func(conn net.Conn, frame fakeFrame) {
		switch frame.Method {
		case "Target.getTargets":
			writeResult(t, conn, frame.ID, pageTargetsResult())
		case "Target.attachToTarget":
			writeResult(t, conn, frame.ID, map[string]interface{}{"sessionId": "S1"})
		case "Page.navigate":
			select {
			case ready <- conn:
			default:
			}
			// deliberately never respond, then the server connection closes.
		default:
			writeResult(t, conn, frame.ID, map[string]interface{}{})
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, srv.url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, sendErr := client.Send(ctx, "Page.navigate", map[string]interface{}{"url": "https://example.com"})
		done <- sendErr
	}()

	conn := <-ready
	_ = conn.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Send did not unblock after server closed the connection")
	}
}
