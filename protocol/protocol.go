// Package protocol defines the JSON messages exchanged with WebSocket clients
// of the session server. It depends only on the nfc package so external
// tools can import it without pulling in server dependencies.
package protocol

// Error codes carried in error responses for request-level failures.
// Session failures carry the nfc error code name instead.
const (
	ErrCodeParseError     = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)
