package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gamelobby/internal/auth"
	"gamelobby/internal/config"
	"gamelobby/pkg/types"
	"github.com/gorilla/websocket"
)

const testSecret = "application-test-secret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "lobby.db")
	cfg.Auth.Secret = testSecret
	cfg.Auth.Issuer = "identity"
	return cfg
}

func startApplication(t *testing.T) *Application {
	t.Helper()
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return application
}

func issueToken(t *testing.T, id, username string) string {
	t.Helper()
	issuer, err := auth.NewTokenAuthenticator(testSecret, "identity")
	if err != nil {
		t.Fatalf("NewTokenAuthenticator failed: %v", err)
	}
	token, err := issuer.Issue(types.Identity{ID: id, Username: username}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, ws *websocket.Conn, eventType string) inboundEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = ws.SetReadDeadline(deadline)
		var event inboundEvent
		if err := ws.ReadJSON(&event); err != nil {
			t.Fatalf("Failed waiting for %s: %v", eventType, err)
		}
		if event.Type == eventType {
			return event
		}
	}
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Secret = ""
	if application, err := NewApplication(cfg); err == nil || application != nil {
		t.Error("Expected missing secret to be rejected")
	}

	cfg = testConfig(t)
	cfg.HTTP.Port = -1
	if _, err := NewApplication(cfg); err == nil {
		t.Error("Expected invalid port to be rejected")
	}
}

func TestApplication_EndToEnd(t *testing.T) {
	application := startApplication(t)
	addr := application.GetAddr()

	// Unauthenticated upgrades never reach the lobby
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token=forged", nil)
	if err == nil {
		t.Fatal("Expected forged token to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %v", resp)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+issueToken(t, "1", "alice"))
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", header)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = ws.Close() }()

	if err := ws.WriteJSON(map[string]any{"type": "createRoom", "payload": map[string]string{"name": "Arena"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	created := readUntil(t, ws, types.EventRoomCreated)
	var snapshot types.RoomSnapshot
	if err := json.Unmarshal(created.Payload, &snapshot); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snapshot.Name != "Arena" || snapshot.HostName != "alice" {
		t.Errorf("Unexpected snapshot: %+v", snapshot)
	}

	// The read API sees the room through the hub
	httpResp, err := http.Get("http://" + addr + "/api/rooms")
	if err != nil {
		t.Fatalf("GET /api/rooms failed: %v", err)
	}
	var rooms struct {
		Rooms []types.RoomSnapshot `json:"rooms"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&rooms); err != nil {
		t.Fatalf("Failed to decode rooms: %v", err)
	}
	_ = httpResp.Body.Close()
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].ID != snapshot.ID {
		t.Errorf("Expected the created room, got %+v", rooms.Rooms)
	}

	healthResp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	_ = healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Errorf("Expected healthy status, got %d", healthResp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.EventLog().Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	events, err := application.EventLog().ListEvents(ctx, snapshot.ID, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != types.LobbyEventRoomCreated {
		t.Errorf("Expected room_created in activity log, got %+v", events)
	}

	// Shutdown closes the connection and runs the disconnect cascade, which
	// deletes the now-empty room before the log is closed
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Events queued before the close may still drain; the server close must follow
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			t.Error("Expected connection to be closed after Stop")
		}
		break
	}
	if application.lobby.IsRunning() {
		t.Error("Expected hub to be stopped")
	}
}

func TestApplication_StartFailsOnBusyPort(t *testing.T) {
	first := startApplication(t)
	defer func() { _ = first.Stop(context.Background()) }()

	second, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	second.httpServer.Addr = first.GetAddr()

	err = second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to listen") {
		t.Fatalf("Expected listen failure, got %v", err)
	}
	if second.lobby.IsRunning() {
		t.Error("Hub should be stopped after a failed start")
	}
	_ = second.eventLog.Close()
}

func TestApplication_StopIsIdempotent(t *testing.T) {
	application := startApplication(t)
	addr := application.GetAddr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("First Stop failed: %v", err)
	}
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}

	// The listener is gone, so nothing can reach the gateway after Stop
	header := http.Header{}
	header.Set("Authorization", "Bearer "+issueToken(t, "2", "late"))
	if ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", header); err == nil {
		_ = ws.Close()
		t.Error("Expected dial after Stop to fail")
	}
	if application.wsHandler.ActiveConnections() != 0 {
		t.Errorf("Expected no open connections, got %d", application.wsHandler.ActiveConnections())
	}
}
