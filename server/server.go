// Package server exposes an nfc.Controller over HTTP and WebSocket.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/nedpals/nfc-session/buildinfo"
	"github.com/nedpals/nfc-session/nfc"
	"github.com/nedpals/nfc-session/protocol"
	"github.com/rs/zerolog"
)

// Config holds the server configuration
type Config struct {
	Controller *nfc.Controller
	Host       string
	Port       int
	APISecret  string // Optional secret required on /ws and /status
	EnableMDNS bool
	Logger     zerolog.Logger
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config   Config
	logger   zerolog.Logger
	hub      *clientHub
	registry *HandlerRegistry
	upgrader websocket.Upgrader
	listener *nfc.Listener

	mu         sync.Mutex
	httpServer *http.Server
	mdnsServer *zeroconf.Server
}

// New creates a server and subscribes it to the controller's events.
func New(config Config) *Server {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	logger := config.Logger.With().Str("component", "server").Logger()

	s := &Server{
		config:   config,
		logger:   logger,
		hub:      newClientHub(logger),
		registry: NewHandlerRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}

	handler := &sessionHandler{server: s, validate: validator.New()}
	handler.register(s.registry)

	s.listener = nfc.NewListener(s.broadcastEvent)
	config.Controller.Bus().SubscribeAll(s.listener)
	return s
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", enableCORS(s.handleHealthCheck))
	mux.HandleFunc("/status", enableCORS(s.requireSecret(s.handleStatus)))
	mux.HandleFunc("/ws", s.requireSecret(s.handleWebSocket))
	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(buildinfo.DisplayName + " server running"))
	}))
	return mux
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting server")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.config.EnableMDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to start mDNS service, auto-discovery unavailable")
		}
	}

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Server context cancelled, initiating shutdown")
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Stop shuts the server down and detaches it from the controller.
func (s *Server) Stop() {
	s.mu.Lock()
	mdnsServer, httpServer := s.mdnsServer, s.httpServer
	s.mdnsServer, s.httpServer = nil, nil
	s.mu.Unlock()

	if mdnsServer != nil {
		mdnsServer.Shutdown()
		s.logger.Info().Msg("mDNS service stopped")
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Server shutdown error")
		}
	}
	s.config.Controller.Bus().UnsubscribeAll(s.listener)
	s.hub.closeAll()
}

// Status returns a snapshot of the controller and the connected clients.
func (s *Server) Status() protocol.StatusPayload {
	c := s.config.Controller
	status := protocol.StatusPayload{
		State:     c.State().String(),
		Suspended: c.Suspended(),
		Arming:    c.Arming(),
		Clients:   s.hub.count(),
		Version:   buildinfo.FullVersion(),
	}
	if info, ok := c.Current(); ok {
		status.Session = &info
	}
	return status
}

func (s *Server) broadcastEvent(ev nfc.Event) {
	s.hub.broadcast(protocol.WebSocketMessage{
		Type:    protocol.WSTypeEvent,
		Payload: protocol.FromEvent(ev),
	})
}

// startMDNS registers the server as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	s.logger.Info().Str("service", MDNSServiceType).Int("port", s.config.Port).Msg("mDNS service registered")
	return nil
}

// handleWebSocket upgrades the connection and runs the request loop until
// the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := newClient(conn, s.logger)
	s.hub.register(client)
	client.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket connected")

	defer func() {
		cancel()
		s.hub.unregister(client)
		client.close()
		client.logger.Info().Msg("WebSocket disconnected")
	}()
	go client.writePump()

	client.Send(protocol.WebSocketMessage{Type: protocol.WSTypeStatus, Payload: s.Status()})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			client.logger.Debug().Err(err).Msg("Failed to parse WebSocket message")
			client.SendError("", protocol.ErrCodeParseError, "Invalid message format")
			continue
		}

		handler, ok := s.registry.Get(req.Type)
		if !ok {
			client.SendError(req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}
		if err := handler(ctx, client, req); err != nil {
			client.logger.Warn().Err(err).Str("type", req.Type).Msg("Handler error")
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// requireSecret rejects requests that do not carry the configured API secret
// as a bearer token or a secret query parameter.
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.APISecret == "" {
			next(w, r)
			return
		}
		secret := r.URL.Query().Get("secret")
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			secret = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.APISecret)) != 1 {
			s.logger.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("Rejected request with invalid API secret")
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}
