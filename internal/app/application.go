package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"gamelobby/internal/api"
	"gamelobby/internal/auth"
	"gamelobby/internal/broadcast"
	"gamelobby/internal/config"
	"gamelobby/internal/database"
	"gamelobby/internal/hub"
	"gamelobby/internal/room"
	"gamelobby/internal/router"
	"gamelobby/internal/session"
	"gamelobby/internal/telemetry"
	"gamelobby/internal/websocket"
	pkgdatabase "gamelobby/pkg/database"
)

// rateLimitCleanupInterval is how often idle rate limit windows are dropped
const rateLimitCleanupInterval = time.Minute

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config            *config.Config
	eventLog          *database.Manager
	sessions          *session.Registry
	dispatcher        *broadcast.Dispatcher
	lobby             *hub.Hub
	commandRouter     *router.Router
	wsHandler         *websocket.Handler
	httpServer        *http.Server
	shutdownTelemetry telemetry.ShutdownFunc

	mu       sync.Mutex
	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Telemetry → Database → Registries → Hub → Router → Gateway → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	authenticator, err := auth.NewTokenAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	// STEP 1: Tracing first so the hub's tracer resolves to the real provider
	shutdownTelemetry, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// STEP 2: Activity log (foundation layer)
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.EventBufferSize = cfg.Database.EventBufferSize

	eventLog, err := database.NewManager(dbConfig)
	if err != nil {
		_ = shutdownTelemetry(context.Background())
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()
	if err := eventLog.HealthCheck(healthCtx); err != nil {
		_ = eventLog.Close()
		_ = shutdownTelemetry(context.Background())
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	log.Printf("Activity log ready: path=%s", cfg.Database.Path)

	// STEP 3: Lobby state, owned by the hub goroutine once started
	sessions := session.NewRegistry()
	rooms := room.NewRegistry(cfg.Lobby.RoomCapacity, cfg.Lobby.MaxRoomNameLength)
	dispatcher := broadcast.NewDispatcher()
	lobby := hub.NewHub(sessions, rooms, dispatcher, eventLog)

	// STEP 4: Command routing and the websocket gateway
	commandRouter := router.NewRouter(lobby, cfg.Lobby.CommandsPerMinute)
	wsHandler := websocket.NewHandler(lobby, commandRouter, authenticator, websocket.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBufferSize: cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})

	// STEP 5: Read API
	apiServer := api.NewServer(lobby, eventLog, map[string]api.StatsSource{
		"sessions":   sessions,
		"dispatcher": dispatcher,
	})

	// STEP 6: Setup HTTP server with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:            cfg,
		eventLog:          eventLog,
		sessions:          sessions,
		dispatcher:        dispatcher,
		lobby:             lobby,
		commandRouter:     commandRouter,
		wsHandler:         wsHandler,
		httpServer:        httpServer,
		shutdownTelemetry: shutdownTelemetry,
		stopCh:            make(chan struct{}),
	}, nil
}

// Start begins application execution
// Hub starts first to handle commands, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting game lobby on %s", app.httpServer.Addr)

	// STEP 1: Start the lobby hub (single writer for all lobby state)
	if err := app.lobby.Start(ctx); err != nil {
		return fmt.Errorf("failed to start lobby hub: %w", err)
	}

	// STEP 2: Bind before returning so callers can use Addr immediately
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.lobby.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = listener
	app.mu.Unlock()

	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	go app.cleanupLoop()

	log.Printf("Game lobby started successfully on %s", listener.Addr())
	return nil
}

// cleanupLoop periodically drops rate limit windows of idle connections
func (app *Application) cleanupLoop() {
	defer app.wg.Done()
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.commandRouter.CleanupRateLimits()
		case <-app.stopCh:
			return
		}
	}
}

// Stop gracefully shuts down the application. Calls after the first are no-ops.
// New connections are refused first, then open ones are closed while the hub
// still runs so every session goes through the normal disconnect cascade,
// then Hub → Database → Telemetry
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() { app.stop(ctx) })
	return nil
}

func (app *Application) stop(ctx context.Context) {
	log.Printf("Shutting down game lobby")

	// STEP 1: Stop accepting new connections
	// Upgraded websockets are hijacked, so Shutdown does not wait for them
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	close(app.stopCh)
	app.wg.Wait()

	// STEP 2: Close websocket connections and wait for their cascades
	app.wsHandler.CloseAll()
	app.waitForConnections(ctx)

	// STEP 3: Stop command processing
	if err := app.lobby.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Lobby hub shutdown error: %v", err)
	}

	// STEP 4: Flush and close the activity log
	if err := app.eventLog.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	// STEP 5: Flush pending spans
	if err := app.shutdownTelemetry(ctx); err != nil {
		log.Printf("Telemetry shutdown error: %v", err)
	}

	log.Printf("Game lobby shutdown complete")
}

func (app *Application) waitForConnections(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for app.wsHandler.ActiveConnections() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Printf("Shutdown deadline reached with %d connections still open", app.wsHandler.ActiveConnections())
			return
		}
	}
}

// GetAddr returns the bound listener address once started, else the configured one
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// EventLog exposes the activity log for tests and tooling
func (app *Application) EventLog() *database.Manager {
	return app.eventLog
}
