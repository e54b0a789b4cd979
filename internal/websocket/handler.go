package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"gamelobby/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Lobby is the part of the coordinator that tracks connection lifetimes
type Lobby interface {
	Connect(ctx context.Context, conn interfaces.Connection) error
	Disconnect(ctx context.Context, connectionID string) error
}

// Options tunes heartbeat and buffering
type Options struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
}

// DefaultOptions returns the settings used when none are configured
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   DefaultWriteTimeout,
		SendBufferSize: DefaultSendBufferSize,
		MaxMessageSize: 4096,
	}
}

// Handler is the connection gateway: it authenticates upgrade requests,
// registers the connection with the lobby and pumps inbound frames to the router
// ARCHITECTURAL DISCOVERY: Multi-stage validation (credential -> identity -> upgrade -> registration)
// ensures unauthenticated clients never consume a websocket or a session
type Handler struct {
	lobby         Lobby
	router        interfaces.CommandRouter
	authenticator interfaces.Authenticator
	options       Options
	upgrader      websocket.Upgrader
	newID         func() string

	mu      sync.Mutex
	conns   map[string]*Connection
	closing bool // set by CloseAll; no connection is accepted afterwards
}

// NewHandler creates a gateway handler with dependency injection
func NewHandler(lobby Lobby, router interfaces.CommandRouter, authenticator interfaces.Authenticator, options Options) *Handler {
	defaults := DefaultOptions()
	if options.PingInterval <= 0 {
		options.PingInterval = defaults.PingInterval
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = defaults.ReadTimeout
	}
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = defaults.MaxMessageSize
	}

	return &Handler{
		lobby:         lobby,
		router:        router,
		authenticator: authenticator,
		options:       options,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// FUNCTIONAL DISCOVERY: Allow all origins; browsers authenticate with a bearer token, not cookies
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
		newID: func() string { return uuid.New().String() },
		conns: make(map[string]*Connection),
	}
}

// HandleWebSocket authenticates and upgrades a lobby connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isClosing() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	credential := credentialFromRequest(r)
	if credential == "" {
		log.Printf("Connection rejected: remote=%s error=%v", r.RemoteAddr, interfaces.ErrMissingCredential)
		http.Error(w, "Missing credential", http.StatusUnauthorized)
		return
	}

	// The identity service call happens before any lobby state exists
	identity, err := h.authenticator.Authenticate(r.Context(), credential)
	if err == nil {
		err = identity.Validate()
	}
	if err != nil {
		log.Printf("Authentication failed: remote=%s error=%v", r.RemoteAddr, err)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws, h.newID(), identity, h.options.SendBufferSize, h.options.WriteTimeout)

	// ARCHITECTURAL DISCOVERY: Tracking before registration means CloseAll either
	// sees this connection or has already refused it; none slips through shutdown
	if !h.track(conn) {
		log.Printf("Connection refused during shutdown: user=%s", identity.Username)
		_ = conn.Close()
		return
	}

	// TECHNICAL DISCOVERY: The request context ends when this handler returns,
	// so the connection lifetime gets its own background context
	if err := h.lobby.Connect(context.Background(), conn); err != nil {
		log.Printf("Failed to register connection: user=%s error=%v", identity.Username, err)
		_ = conn.Close()
		h.untrack(conn)
		return
	}

	log.Printf("Connection registered: connection=%s user=%s account=%s", conn.ID(), identity.Username, identity.AccountID)
	go h.handleConnection(conn)
}

// handleConnection runs heartbeat and the read pump until the client goes away
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures the disconnect cascade
		// runs however the read pump exits
		_ = conn.Close()
		if err := h.lobby.Disconnect(context.Background(), conn.ID()); err != nil {
			log.Printf("Disconnect cleanup failed: connection=%s error=%v", conn.ID(), err)
		}
		h.router.Forget(conn.ID())
		h.untrack(conn)
		log.Printf("Connection unregistered: connection=%s user=%s", conn.ID(), conn.Identity().Username)
	}()

	ws := conn.conn
	ws.SetReadLimit(h.options.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	})

	go h.heartbeat(conn)

	ctx := context.Background()
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: connection=%s error=%v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		// Rejections are already reported to the client and logged
		_ = h.router.Route(ctx, conn, data)
	}
}

// heartbeat pings the client until the connection closes
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// TECHNICAL DISCOVERY: WriteControl is safe alongside the writer goroutine
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// track reports false once CloseAll has run
func (h *Handler) track(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn.ID()] = conn
	return true
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
}

// ActiveConnections returns the number of open gateway connections
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll stops accepting connections and closes every open one; each runs
// its own disconnect cascade
func (h *Handler) CloseAll() {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil && !errors.Is(err, ErrConnectionClosed) {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
}

// credentialFromRequest reads the bearer token from the Authorization header
// or the token query parameter
func credentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
