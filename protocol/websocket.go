package protocol

import (
	"encoding/json"

	"github.com/nedpals/nfc-session/nfc"
)

// WebSocket message type constants
const (
	WSTypeArmRead     = "armRead"
	WSTypeArmWrite    = "armWrite"
	WSTypeDisarm      = "disarm"
	WSTypeSuspend     = "suspend"
	WSTypeResume      = "resume"
	WSTypeStatus      = "status"
	WSTypeEvent       = "event"
	WSTypeReadResult  = "readResult"
	WSTypeWriteResult = "writeResult"
	WSTypeError       = "error"
)

// WebSocketMessage is the generic envelope for server-initiated messages.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is an incoming request from a WebSocket client.
type WebSocketRequest struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocketResponse answers a WebSocketRequest with the same ID.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ArmWritePayload is the payload of an armWrite request. Data takes
// precedence over Text; when both are empty the default payload is written.
type ArmWritePayload struct {
	Text string `json:"text,omitempty" validate:"max=8192"`
	Data []byte `json:"data,omitempty" validate:"max=8192"`
}

// Bytes returns the payload to write, or nil for the default payload.
func (p ArmWritePayload) Bytes() []byte {
	if len(p.Data) > 0 {
		return p.Data
	}
	if p.Text != "" {
		return []byte(p.Text)
	}
	return nil
}

// EventPayload is broadcast to every client for each session event.
type EventPayload struct {
	Kind      string `json:"kind"`
	Op        string `json:"op"`
	SessionID string `json:"sessionId"`
	TagID     string `json:"tagId,omitempty"`
	Attempt   int    `json:"attempt"`
	Text      string `json:"text,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Time      string `json:"time"` // RFC3339 format
}

// ResultPayload is sent to the client that armed a request once it resolves.
type ResultPayload struct {
	Op        string `json:"op"`
	SessionID string `json:"sessionId,omitempty"`
	TagID     string `json:"tagId,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Text      string `json:"text,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// StatusPayload describes the controller for status requests and GET /status.
type StatusPayload struct {
	State     string             `json:"state"`
	Suspended bool               `json:"suspended"`
	Arming    nfc.ArmingSnapshot `json:"arming"`
	Session   *nfc.SessionInfo   `json:"session,omitempty"`
	Clients   int                `json:"clients"`
	Version   string             `json:"version"`
}
