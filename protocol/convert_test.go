package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nedpals/nfc-session/nfc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEvent(t *testing.T) {
	ev := nfc.Event{
		Kind:      nfc.EventCardRemoved,
		Op:        nfc.OpWrite,
		SessionID: "s1",
		TagID:     "04A1",
		Attempt:   2,
		Err:       nfc.NewTagRemovedError("write", nil),
		Time:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	p := FromEvent(ev)
	assert.Equal(t, "card_removed", p.Kind)
	assert.Equal(t, "write", p.Op)
	assert.Equal(t, "TagRemoved", p.ErrorCode)
	assert.Equal(t, "2024-05-01T12:00:00Z", p.Time)
	assert.Equal(t, 2, p.Attempt)
}

func TestFromEvent_ReadCompleteJSON(t *testing.T) {
	p := FromEvent(nfc.Event{Kind: nfc.EventReadComplete, Op: nfc.OpRead, Text: "hi", Data: []byte("hi")})

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "read_complete", decoded["kind"])
	assert.Equal(t, "hi", decoded["text"])
	assert.Equal(t, "aGk=", decoded["data"], "bytes are base64 encoded")
	assert.NotContains(t, decoded, "error")
}

func TestFromResult(t *testing.T) {
	ok := FromResult(nfc.OpRead, nfc.Result{SessionID: "s", Text: "hello", Attempts: 1}, nil)
	assert.Equal(t, "hello", ok.Text)
	assert.Empty(t, ok.Error)

	failed := FromResult(nfc.OpWrite, nfc.Result{}, nfc.NewCapacityExceededError("write", "01", 200, 137))
	assert.Equal(t, "CapacityExceeded", failed.ErrorCode)
	assert.Equal(t, "write", failed.Op)

	plain := FromResult(nfc.OpRead, nfc.Result{}, errors.New("boom"))
	assert.Equal(t, ErrCodeInternalError, plain.ErrorCode)
}

func TestArmWritePayload_Bytes(t *testing.T) {
	assert.Nil(t, ArmWritePayload{}.Bytes())
	assert.Equal(t, []byte("txt"), ArmWritePayload{Text: "txt"}.Bytes())
	assert.Equal(t, []byte{1, 2}, ArmWritePayload{Text: "txt", Data: []byte{1, 2}}.Bytes())
}

func TestResultType(t *testing.T) {
	assert.Equal(t, WSTypeReadResult, ResultType(nfc.OpRead))
	assert.Equal(t, WSTypeWriteResult, ResultType(nfc.OpWrite))
}
