package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumostime/lumos-relay/internal/observability"
	"github.com/lumostime/lumos-relay/internal/tracing"
	"github.com/lumostime/lumos-relay/pkg/ipc"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var _ ipc.Main = (*Server)(nil)

// Server is the privileged side of the bridge, reachable over WebSocket
type Server struct {
	host              string
	port              int
	requestsPerMinute int
	maxConcurrent     int
	shutdownTimeout   time.Duration
	server            *http.Server
	listener          net.Listener
	upgrader          websocket.Upgrader
	clients           *ClientRegistry
	router            *ChannelRouter
	authHandler       *AuthHandler
	broadcaster       *EventBroadcaster
	logger            zerolog.Logger
	isShuttingDown    bool
	shutdownMu        sync.RWMutex
	inFlightReqs      sync.WaitGroup
	handlerCtx        context.Context
	cancelHandlers    context.CancelFunc
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	SharedSecret      string
	RequestsPerMinute int
	MaxConcurrent     int
	ShutdownTimeout   time.Duration
	Logger            zerolog.Logger
}

// NewServer creates a new bridge server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	clients := NewClientRegistry()
	handlerCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		host:              cfg.Host,
		port:              cfg.Port,
		requestsPerMinute: cfg.RequestsPerMinute,
		maxConcurrent:     cfg.MaxConcurrent,
		shutdownTimeout:   cfg.ShutdownTimeout,
		clients:           clients,
		router:            NewChannelRouter(),
		authHandler:       NewAuthHandler(cfg.SharedSecret),
		broadcaster:       NewEventBroadcaster(clients, cfg.Logger),
		logger:            cfg.Logger,
		handlerCtx:        handlerCtx,
		cancelHandlers:    cancel,
		upgrader: websocket.Upgrader{
			// The bridge authenticates with the shared secret, not the origin.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	return s, nil
}

// Handler returns the HTTP handler serving the bridge endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting bridge server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Bridge server error")
		}
	}()

	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the bridge server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down bridge server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight invokes completed")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}
	s.cancelHandlers()

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Bridge server stopped")
	return nil
}

// beginInvoke counts an invoke as in flight unless Stop has begun.
// The check and the Add happen under shutdownMu.
func (s *Server) beginInvoke() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"clients":  s.clients.Count(),
		"channels": s.router.Channels(),
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewClientRateLimiterWithLimits(s.requestsPerMinute, s.maxConcurrent),
		state:        StateConnecting,
	}

	s.clients.Add(client)
	observability.SetClientsConnected(s.clients.Count())

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.Remove(clientID)
		observability.SetClientsConnected(s.clients.Count())
		return
	}

	go s.handleClient(client)
}

func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.IssueChallenge(client)
	if err != nil {
		return err
	}

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

// handleClient reads frames until the connection closes
func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		observability.SetClientsConnected(s.clients.Count())
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)
		s.handleMessage(client, message)
	}
}

// handleMessage handles a single message from a client
func (s *Server) handleMessage(client *Client, message []byte) {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		s.handleAuthMessage(client, authResp)
		return
	}

	if !client.IsAuthenticated() {
		s.sendError(client, "", AuthenticationRequired, "Authentication required")
		return
	}

	frame, err := s.router.ParseFrame(message)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			s.sendError(client, "", rpcErr.Code, rpcErr.Message)
		} else {
			s.sendError(client, "", ParseError, err.Error())
		}
		return
	}

	switch frame.Type {
	case FrameSubscribe:
		s.clients.Subscribe(client.ID, frame.Channel)
	case FrameUnsubscribe:
		s.clients.Unsubscribe(client.ID, frame.Channel)
	case FrameSend:
		observability.RecordSend()
		s.router.Dispatch(s.eventFor(client, frame.Channel), frame.Payload)
	case FrameInvoke:
		s.handleInvoke(client, frame)
	}
}

func (s *Server) handleInvoke(client *Client, frame *Frame) {
	if !s.beginInvoke() {
		s.sendError(client, frame.ID, ShuttingDown, "Server is shutting down")
		return
	}

	allowed, reason := client.RateLimiter.TryAcquire()
	if !allowed {
		s.inFlightReqs.Done()
		code := RateLimitExceeded
		if reason == ReasonTooManyConcurrent {
			code = TooManyConcurrent
		}
		s.sendError(client, frame.ID, code, reason)
		return
	}

	go func() {
		defer client.RateLimiter.Release()
		defer s.inFlightReqs.Done()

		ctx := tracing.NewInvokeContext(s.handlerCtx, client.ID, frame.Channel, frame.ID)
		logger := tracing.LoggerFromContext(ctx, s.logger)

		start := time.Now()
		response := s.router.Route(ctx, s.eventFor(client, frame.Channel), frame)

		status := "success"
		if response.Error != nil {
			status = "error"
			logger.Warn().Str("error", response.Error.Message).Msg("Invoke failed")
		}
		observability.RecordInvoke(time.Since(start), status)

		if err := client.WriteJSON(response); err != nil {
			logger.Error().Err(err).Msg("Failed to send invoke result")
		}
	}()
}

func (s *Server) eventFor(client *Client, channel string) ipc.Event {
	return ipc.Event{
		Channel:   channel,
		SenderID:  client.ID,
		Timestamp: time.Now(),
	}
}

func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) {
	result, exhausted := s.authHandler.HandleAuthResponse(client, authResp.Signature)

	if err := client.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return
	}

	if !result.Success {
		s.logger.Warn().
			Str("clientId", client.ID).
			Str("reason", result.Message).
			Msg("Authentication failed")

		if exhausted {
			client.Conn.Close()
		}
		return
	}

	s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
}

// sendError answers a frame with an error. Errors tied to an invoke are sent as
// its result so the caller's pending invoke resolves.
func (s *Server) sendError(client *Client, requestID string, code int, message string) {
	frameType := FrameError
	if requestID != "" {
		frameType = FrameResult
	}

	response := Frame{
		Type: frameType,
		ID:   requestID,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}

	if err := client.WriteJSON(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

// Handle registers the invoke handler for channel
func (s *Server) Handle(channel string, handler ipc.InvokeHandler) error {
	return s.router.Handle(channel, handler)
}

// RemoveHandler removes the invoke handler for channel
func (s *Server) RemoveHandler(channel string) {
	s.router.RemoveHandler(channel)
}

// OnMessage registers a receiver for sends on channel
func (s *Server) OnMessage(channel string, handler ipc.MessageHandler) func() {
	return s.router.OnMessage(channel, handler)
}

// Emit sends payload to every client subscribed to channel
func (s *Server) Emit(channel string, payload ...any) {
	s.broadcaster.Emit(channel, payload)
}

// EmitTo sends payload on channel to a single client
func (s *Server) EmitTo(clientID, channel string, payload ...any) error {
	return s.broadcaster.EmitTo(clientID, channel, payload)
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.GetConnectedClients()
}
