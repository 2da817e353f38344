package protocol

import (
	"time"

	"github.com/nedpals/nfc-session/nfc"
)

// FromEvent converts a session event into its wire form.
func FromEvent(ev nfc.Event) EventPayload {
	p := EventPayload{
		Kind:      ev.Kind.String(),
		Op:        ev.Op.String(),
		SessionID: ev.SessionID,
		TagID:     ev.TagID,
		Attempt:   ev.Attempt,
		Text:      ev.Text,
		Data:      ev.Data,
		Time:      ev.Time.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
		p.ErrorCode = ErrorCode(ev.Err)
	}
	return p
}

// FromResult converts the outcome of a pending request into its wire form.
func FromResult(op nfc.Operation, res nfc.Result, err error) ResultPayload {
	if err != nil {
		return ResultPayload{
			Op:        op.String(),
			Error:     err.Error(),
			ErrorCode: ErrorCode(err),
		}
	}
	return ResultPayload{
		Op:        op.String(),
		SessionID: res.SessionID,
		TagID:     res.TagID,
		Attempts:  res.Attempts,
		Text:      res.Text,
		Data:      res.Data,
	}
}

// ResultType returns the message type used to deliver the result of op.
func ResultType(op nfc.Operation) string {
	if op == nfc.OpWrite {
		return WSTypeWriteResult
	}
	return WSTypeReadResult
}

// ErrorCode returns the taxonomy name of err, or INTERNAL_ERROR when err
// carries no nfc error code.
func ErrorCode(err error) string {
	if code := nfc.GetErrorCode(err); code != 0 {
		return code.String()
	}
	return ErrCodeInternalError
}
