// Package cdptransport owns the single WebSocket connection to a Chrome
// DevTools Protocol browser endpoint: one reader goroutine, bounded
// reconnect-with-backoff on dial, and a Close that cancels and awaits the
// reader before returning so no frame is processed after teardown.
package cdptransport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/cdpscope/browseragent/internal/cdperrors"
)

// Handler receives raw inbound frames and, when the reader exits, the error
// that ended it. That error is never nil: after Close it is the read error
// from the closed socket or the cancelled context's error.
type Handler interface {
	OnMessage(raw []byte)
	OnClose(cause error)
}

const (
	maxDialAttempts   = 5
	initialBackoff    = 200 * time.Millisecond
	maxBackoff        = 5 * time.Second
)

// Connection wraps one dialed WebSocket plus its owned reader goroutine.
type Connection struct {
	conn    net.Conn
	logger  *zap.Logger
	writeMu sync.Mutex

	readerDone chan struct{}
	cancel     context.CancelFunc
}

// Dial connects to url with bounded exponential-backoff retry, then starts
// the single reader goroutine that feeds h until the connection closes.
func Dial(ctx context.Context, url string, h Handler, logger *zap.Logger) (*Connection, error) {
	var lastErr error
	backoff := initialBackoff
	var conn net.Conn

	for attempt := 0; attempt < maxDialAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		c, _, _, err := ws.DefaultDialer.Dial(dialCtx, url)
		cancel()
		if err == nil {
			conn = c
			break
		}
		lastErr = err
		logger.Warn("cdptransport: dial attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, cdperrors.Wrap(cdperrors.KindConnection, "dial cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	if conn == nil {
		return nil, cdperrors.Wrap(cdperrors.KindConnection, fmt.Sprintf("failed to dial %s after %d attempts", url, maxDialAttempts), lastErr)
	}

	readerCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:       conn,
		logger:     logger,
		readerDone: make(chan struct{}),
		cancel:     cancel,
	}
	go c.readLoop(readerCtx, h)
	return c, nil
}

func (c *Connection) readLoop(ctx context.Context, h Handler) {
	defer close(c.readerDone)

	var exitErr error
	for {
		if ctx.Err() != nil {
			exitErr = ctx.Err()
			break
		}
		msg, _, err := wsutil.ReadServerData(c.conn)
		if err != nil {
			exitErr = err
			break
		}
		h.OnMessage(msg)
	}
	_ = c.conn.Close()
	h.OnClose(exitErr)
}

// Send writes one text frame. Concurrent Send calls are serialized; the
// single reader goroutine never writes.
func (c *Connection) Send(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientText(c.conn, raw); err != nil {
		return cdperrors.Wrap(cdperrors.KindConnection, "write failed", err)
	}
	return nil
}

// Close cancels and awaits the reader goroutine before returning, so a
// caller can rely on no further Handler calls occurring afterward.
func (c *Connection) Close() error {
	c.cancel()
	err := c.conn.Close()
	<-c.readerDone
	return err
}
