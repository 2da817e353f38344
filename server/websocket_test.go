package server

import (
	"testing"
	"time"

	"github.com/nedpals/nfc-session/protocol"
	"github.com/rs/zerolog"
)

func TestBroadcastDropsStalledClient(t *testing.T) {
	hub := newClientHub(zerolog.Nop())
	// No write pump runs, so nothing drains the queue.
	stalled := newClient(nil, zerolog.Nop())
	hub.register(stalled)

	msg := protocol.WebSocketMessage{Type: protocol.WSTypeEvent, Payload: protocol.EventPayload{Kind: "read_start"}}

	start := time.Now()
	for i := 0; i < sendQueueSize; i++ {
		hub.broadcast(msg)
	}
	if hub.count() != 1 {
		t.Fatalf("Client dropped before its queue was full")
	}

	hub.broadcast(msg)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Broadcast blocked for %v on a stalled client", elapsed)
	}
	if hub.count() != 0 {
		t.Error("Stalled client should be dropped once its queue is full")
	}
	if err := stalled.Send(msg); err != errClientClosed {
		t.Errorf("Send after drop = %v, want %v", err, errClientClosed)
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := newClient(nil, zerolog.Nop())
	c.close()
	c.close()

	select {
	case <-c.done:
	default:
		t.Fatal("done not closed")
	}
}
