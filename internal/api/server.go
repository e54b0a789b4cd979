package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"gamelobby/internal/hub"
	"gamelobby/pkg/types"
)

// Lobby is the read side of the coordinator used by the HTTP API
type Lobby interface {
	RoomSnapshots(ctx context.Context) ([]types.RoomSnapshot, error)
	IsRunning() bool
}

// EventLog is the read side of the activity log
type EventLog interface {
	ListEvents(ctx context.Context, roomID string, limit int) ([]*types.LobbyEvent, error)
	HealthCheck(ctx context.Context) error
}

// StatsSource reports counters for the health endpoint
type StatsSource interface {
	GetStats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Read-only: every lobby mutation goes through the websocket command path
type Server struct {
	lobby   Lobby
	events  EventLog
	stats   map[string]StatsSource
	router  *http.ServeMux
	started time.Time
}

// NewServer wires the read API. stats maps a component name to its counters.
func NewServer(lobby Lobby, events EventLog, stats map[string]StatsSource) *Server {
	s := &Server{
		lobby:   lobby,
		events:  events,
		stats:   stats,
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: CORS and JSON middleware applied to all routes for web client compatibility
func (s *Server) setupRoutes() {
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRooms))))
	s.router.Handle("/api/events", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleEvents))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type RoomsResponse struct {
	Rooms []types.RoomSnapshot `json:"rooms"`
}

type EventsResponse struct {
	Events []*types.LobbyEvent `json:"events"`
}

type HealthResponse struct {
	Status      string                    `json:"status"`
	Timestamp   time.Time                 `json:"timestamp"`
	Lobby       string                    `json:"lobby"`
	Database    string                    `json:"database"`
	Connections map[string]map[string]int `json:"connections"`
	System      map[string]interface{}    `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/rooms - room snapshots read through the coordinator
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms, err := s.lobby.RoomSnapshots(r.Context())
	if err != nil {
		if errors.Is(err, hub.ErrHubNotRunning) {
			s.sendError(w, "Lobby is not running", http.StatusServiceUnavailable)
		} else {
			log.Printf("Failed to read room snapshots: %v", err)
			s.sendError(w, "Failed to list rooms", http.StatusInternalServerError)
		}
		return
	}
	if rooms == nil {
		rooms = []types.RoomSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, RoomsResponse{Rooms: rooms})
}

// GET /api/events?room_id=&limit= - newest activity first
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.events.ListEvents(r.Context(), query.Get("room_id"), limit)
	if err != nil {
		log.Printf("Failed to list lobby events: %v", err)
		s.sendError(w, "Failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*types.LobbyEvent{}
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	lobbyStatus := "running"
	dbStatus := "healthy"

	if !s.lobby.IsRunning() {
		status = "unhealthy"
		lobbyStatus = "stopped"
	}
	if err := s.events.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	connections := make(map[string]map[string]int, len(s.stats))
	for name, source := range s.stats {
		connections[name] = source.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Lobby:       lobbyStatus,
		Database:    dbStatus,
		Connections: connections,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
