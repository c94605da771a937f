// Package cdpwire implements the raw JSON framing of the Chrome DevTools
// Protocol: outbound command envelopes, inbound response/event
// disambiguation, and the pending-command table a connection uses to match
// responses back to callers.
package cdpwire

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cdpscope/browseragent/internal/cdperrors"
)

// Command is the outbound envelope for a CDP method call. SessionID is
// omitted for browser-level (non-flattened) targets.
type Command struct {
	ID        int64       `json:"id"`
	Method    string      `json:"method"`
	Params    interface{} `json:"params,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
}

// rawMessage is used to classify an inbound frame before fully decoding it.
type rawMessage struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *rawError       `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type rawError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// Response is a decoded reply to a previously-sent Command.
type Response struct {
	ID        int64
	Result    json.RawMessage
	Err       *cdperrors.ProtocolError
	SessionID string
}

// Event is a decoded, unsolicited CDP notification.
type Event struct {
	Method    string
	Params    json.RawMessage
	SessionID string
}

// Frame is the result of classifying one inbound message: exactly one of
// Response or Event is non-nil.
type Frame struct {
	Response *Response
	Event    *Event
}

// Decode classifies a raw inbound JSON frame as a Response or an Event.
func Decode(raw []byte) (Frame, error) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Frame{}, fmt.Errorf("cdpwire: malformed frame: %w", err)
	}

	if msg.Method != "" && msg.ID == 0 {
		return Frame{Event: &Event{Method: msg.Method, Params: msg.Params, SessionID: msg.SessionID}}, nil
	}

	resp := &Response{ID: msg.ID, Result: msg.Result, SessionID: msg.SessionID}
	if msg.Error != nil {
		resp.Err = &cdperrors.ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
	}
	return Frame{Response: resp}, nil
}

// Encode marshals a Command to its wire form.
func Encode(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// pending tracks one in-flight command awaiting a Response.
type pending struct {
	method string
	ch     chan Response
}

// Table is the pending-command bookkeeping a single CDP connection owns. It
// is safe for concurrent use: Send-side code calls Register to mint an id
// (and Cancel when it gives up waiting), the reader goroutine calls Resolve
// per inbound frame, and FailAll is called once when the connection tears
// down.
type Table struct {
	mu      sync.Mutex
	nextID  int64
	waiting map[int64]pending
	closed  bool
}

func NewTable() *Table {
	return &Table{waiting: make(map[int64]pending)}
}

// Register allocates the next monotonic id and returns a channel that will
// receive exactly one Response: the reply, or the connection-error Response
// FailAll delivers if the table is torn down first.
func (t *Table) Register(method string) (id int64, ch chan Response, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, nil, cdperrors.New(cdperrors.KindConnection, "connection closed")
	}
	t.nextID++
	id = t.nextID
	ch = make(chan Response, 1)
	t.waiting[id] = pending{method: method, ch: ch}
	return id, ch, nil
}

// Cancel removes a pending entry without resolving it, used when a caller's
// timeout fires and the late response (if any) should be discarded.
func (t *Table) Cancel(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.waiting, id)
}

// Resolve delivers an inbound Response to its waiting caller. Responses for
// unknown ids (already cancelled, or a duplicate) are silently dropped, as
// CDP's wire contract gives no way to distinguish a bug from a late timeout.
func (t *Table) Resolve(resp Response) {
	t.mu.Lock()
	p, ok := t.waiting[resp.ID]
	if ok {
		delete(t.waiting, resp.ID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	p.ch <- resp
}

// FailAll resolves every outstanding command with a connection error. Called
// once when the transport tears down so no caller blocks forever.
func (t *Table) FailAll(cause error) {
	t.mu.Lock()
	waiting := t.waiting
	t.waiting = make(map[int64]pending)
	t.closed = true
	t.mu.Unlock()

	for id, p := range waiting {
		p.ch <- Response{
			ID: id,
			Err: &cdperrors.ProtocolError{
				Method:  p.method,
				Message: cdperrors.Wrap(cdperrors.KindConnection, "connection closed", cause).Error(),
			},
		}
	}
}
