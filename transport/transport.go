// Package transport defines the event protocol between the core and the
// assistant bridge, plus a WebSocket client that speaks it.
//
// Inbound traffic is a stream of Event envelopes, each addressed to one
// session. Outbound traffic is the small command set a session can issue:
// start a turn, cancel it, or answer a permission prompt. The core never
// talks to the assistant directly; the bridge owns that.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEvent is returned when an inbound frame cannot be decoded into
// a valid Event. Malformed frames are dropped; they never reach a session.
var ErrMalformedEvent = errors.New("malformed event")

// EventKind discriminates the inbound event envelope.
type EventKind string

const (
	EventSessionOpen       EventKind = "session_open"
	EventSessionClose      EventKind = "session_close"
	EventToolStart         EventKind = "tool_start"
	EventToolResult        EventKind = "tool_result"
	EventPermissionRequest EventKind = "permission_request"
	EventResponseComplete  EventKind = "response_complete"
	EventCancelAck         EventKind = "cancel_ack"
	EventError             EventKind = "error"
)

func (k EventKind) valid() bool {
	switch k {
	case EventSessionOpen, EventSessionClose,
		EventToolStart, EventToolResult, EventPermissionRequest,
		EventResponseComplete, EventCancelAck, EventError:
		return true
	}
	return false
}

// Event is the envelope for all inbound bridge traffic. Payload is decoded
// lazily by the session handling the event.
type Event struct {
	SessionID string          `json:"sessionId"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParseEvent decodes and validates one inbound frame. A frame with invalid
// JSON, a missing session ID, or an unknown kind yields ErrMalformedEvent.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedEvent)
	}
	if !ev.Kind.valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, ev.Kind)
	}
	return &ev, nil
}

// SessionOpenPayload announces a session the bridge has opened. Kind is
// "assistant" or "terminal"; empty means assistant.
type SessionOpenPayload struct {
	Kind       string `json:"kind,omitempty"`
	Title      string `json:"title,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`
}

// ToolStartPayload announces a tool call beginning.
type ToolStartPayload struct {
	ToolUseID string          `json:"toolUseId"`
	ToolName  string          `json:"toolName"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// ToolResultPayload carries the outcome of a previously started tool call.
// The result body stays raw; the activity layer extracts what it needs.
type ToolResultPayload struct {
	ToolUseID string          `json:"toolUseId"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// ResponseCompletePayload ends a turn.
type ResponseCompletePayload struct {
	DurationMs int     `json:"durationMs,omitempty"`
	NumTurns   int     `json:"numTurns,omitempty"`
	CostUSD    float64 `json:"costUsd,omitempty"`
}

// ErrorPayload reports a bridge-side failure for a session.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Command kinds for outbound frames.
const (
	CommandStart             = "start"
	CommandCancel            = "cancel"
	CommandResolvePermission = "resolve_permission"
)

// Command is the envelope for outbound frames to the bridge.
type Command struct {
	SessionID string          `json:"sessionId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewCommand builds an outbound command with the payload marshaled in place.
func NewCommand(sessionID, kind string, payload any) (*Command, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		raw = data
	}
	return &Command{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// StartPayload opens a turn with a user prompt.
type StartPayload struct {
	Prompt string `json:"prompt"`
}

// ResolvePermissionPayload answers a permission prompt.
type ResolvePermissionPayload struct {
	RequestID string `json:"requestId"`
	Decision  string `json:"decision"` // "approve" | "deny"
}

// Transport is the outbound surface a session uses to drive the bridge.
type Transport interface {
	Start(sessionID, prompt string) error
	Cancel(sessionID string) error
	ResolvePermission(sessionID, requestID, decision string) error
}
