// Package cdperrors defines the closed error taxonomy surfaced by the
// browser core. Every failure that crosses an action boundary is one of
// these kinds; callers switch on Kind rather than matching strings.
package cdperrors

import "fmt"

// Kind identifies which category of failure occurred.
type Kind string

const (
	KindConnection  Kind = "connection"   // transport/websocket failure
	KindProtocol    Kind = "protocol"     // CDP returned an {error: ...} response
	KindSessionLost Kind = "session_lost" // target/session detached mid-command
	KindTimeout     Kind = "timeout"      // command exceeded its deadline
	KindNotFound    Kind = "not_found"    // index/backend node no longer resolves
	KindOccluded    Kind = "occluded"     // element covered by another painted layer
	KindNotVisible  Kind = "not_visible"  // element has no visible box
	KindInput       Kind = "input"        // input dispatch rejected by the renderer
	KindPartial     Kind = "partial"      // one data source failed, others usable
)

// Error wraps an underlying cause with a Kind and optional CDP context.
type Error struct {
	Kind      Kind
	Message   string
	SessionID string
	TargetID  string
	Method    string
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Method != "" {
		msg += fmt.Sprintf(" (method=%s)", e.Method)
	}
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session=%s)", e.SessionID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, cdperrors.Timeout) style comparisons by
// treating any *Error target as a sentinel that matches every *Error of the
// same Kind. This mirrors the sentinel-error idiom while keeping structured
// context on the concrete error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext returns a copy of e annotated with CDP routing context.
func (e *Error) WithContext(sessionID, targetID, method string) *Error {
	cp := *e
	cp.SessionID = sessionID
	cp.TargetID = targetID
	cp.Method = method
	return &cp
}

// Connection, Protocol, SessionLost, Timeout, NotFound, Occluded, NotVisible,
// Input and Partial are sentinel *Error values usable with errors.Is.
var (
	Connection  = New(KindConnection, "connection error")
	Protocol    = New(KindProtocol, "protocol error")
	SessionLost = New(KindSessionLost, "session lost")
	Timeout     = New(KindTimeout, "timed out")
	NotFound    = New(KindNotFound, "not found")
	Occluded    = New(KindOccluded, "element occluded")
	NotVisible  = New(KindNotVisible, "element not visible")
	Input       = New(KindInput, "input rejected")
	Partial     = New(KindPartial, "partial data")
)

// ProtocolError carries the CDP error code/message verbatim (spec 4.A).
type ProtocolError struct {
	Method  string
	Code    int64
	Message string
}

func (p *ProtocolError) Error() string {
	return fmt.Sprintf("cdp error on %s: code=%d message=%s", p.Method, p.Code, p.Message)
}

// AsCoreError converts a ProtocolError into the taxonomy's *Error.
func (p *ProtocolError) AsCoreError() *Error {
	return Wrap(KindProtocol, p.Message, p).WithContext("", "", p.Method)
}
