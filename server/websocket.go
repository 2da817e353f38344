package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nedpals/nfc-session/nfc"
	"github.com/nedpals/nfc-session/protocol"
	"github.com/rs/zerolog"
)

// Client is one WebSocket connection. Messages are queued on send and
// written by writePump, so event broadcasts never wait on a slow socket.
type Client struct {
	ID     string
	conn   *websocket.Conn
	logger zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	watchMu  sync.Mutex
	watching map[*nfc.Pending]bool
}

func newClient(conn *websocket.Conn, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		ID:       id,
		conn:     conn,
		logger:   logger.With().Str("client", id).Logger(),
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		watching: make(map[*nfc.Pending]bool),
	}
}

// Send queues v as a JSON text frame. It fails without blocking when the
// client is closed or its queue is full.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendQueueFull
	}
}

// writePump writes queued messages until the client is closed or a write
// fails.
func (c *Client) writePump() {
	defer c.close()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// close stops the write pump and closes the connection. It is safe to call
// more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Respond sends a successful response to the request with the given ID.
func (c *Client) Respond(requestID, responseType string, payload any) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    responseType,
		Success: true,
		Payload: payload,
	})
}

// SendError sends a structured error response to the client.
func (c *Client) SendError(requestID, code, message string) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// watch marks p as delivered to this client. It returns false when p is
// already being watched.
func (c *Client) watch(p *nfc.Pending) bool {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.watching[p] {
		return false
	}
	c.watching[p] = true
	return true
}

func (c *Client) unwatch(p *nfc.Pending) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	delete(c.watching, p)
}

var (
	errClientClosed  = errors.New("client closed")
	errSendQueueFull = errors.New("send queue full")
)

// clientHub tracks connected clients and broadcasts to them.
type clientHub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  zerolog.Logger
}

func newClientHub(logger zerolog.Logger) *clientHub {
	return &clientHub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *clientHub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

func (h *clientHub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID)
}

func (h *clientHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends message to every client. Clients that fail to receive it
// are closed and dropped.
func (h *clientHub) broadcast(message protocol.WebSocketMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(message); err != nil {
			h.logger.Warn().Err(err).Str("client", c.ID).Msg("Dropping WebSocket client")
			c.close()
			h.unregister(c)
		}
	}
}

// closeAll closes all client connections.
func (h *clientHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}
