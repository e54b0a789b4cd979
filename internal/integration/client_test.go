package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamelobby/internal/app"
	"gamelobby/internal/auth"
	"gamelobby/internal/config"
	"gamelobby/pkg/types"
	"github.com/gorilla/websocket"
)

const integrationSecret = "integration-secret"

// lobbyServer is a running application plus the means to mint player tokens
type lobbyServer struct {
	app    *app.Application
	addr   string
	issuer *auth.TokenAuthenticator
}

// startLobby boots the whole application on an ephemeral port
func startLobby(t testing.TB, mutate func(*config.Config)) *lobbyServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "lobby.db")
	cfg.Auth.Secret = integrationSecret
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}

	issuer, err := auth.NewTokenAuthenticator(integrationSecret, cfg.Auth.Issuer)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}

	s := &lobbyServer{app: application, addr: application.GetAddr(), issuer: issuer}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return s
}

// TestClient is a websocket player used by the lobby scenarios
type TestClient struct {
	Username string

	conn   *websocket.Conn
	events chan inboundEvent
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// connect authenticates as username and starts the read loop
func (s *lobbyServer) connect(t testing.TB, username string) *TestClient {
	t.Helper()
	token, err := s.issuer.Issue(types.Identity{ID: "id-" + username, Username: username}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.addr+"/ws", header)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", username, err)
	}

	tc := &TestClient{
		Username: username,
		conn:     conn,
		events:   make(chan inboundEvent, 256),
		done:     make(chan struct{}),
	}
	go tc.readLoop()
	t.Cleanup(func() { _ = tc.Close() })
	return tc
}

// readLoop continuously reads events from the websocket connection
func (tc *TestClient) readLoop() {
	defer close(tc.done)
	for {
		var event inboundEvent
		if err := tc.conn.ReadJSON(&event); err != nil {
			return
		}
		select {
		case tc.events <- event:
		default:
			// A stalled test would otherwise block the read loop forever
		}
	}
}

// Send writes one command frame
func (tc *TestClient) Send(commandType string, payload any) error {
	frame := map[string]any{"type": commandType}
	if payload != nil {
		frame["payload"] = payload
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	_ = tc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return tc.conn.WriteJSON(frame)
}

// WaitFor returns the first event whose type is one of eventTypes, skipping others
func (tc *TestClient) WaitFor(timeout time.Duration, eventTypes ...string) (inboundEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case event := <-tc.events:
			for _, want := range eventTypes {
				if event.Type == want {
					return event, nil
				}
			}
		case <-deadline:
			return inboundEvent{}, fmt.Errorf("%s: timeout waiting for %v", tc.Username, eventTypes)
		case <-tc.done:
			return inboundEvent{}, fmt.Errorf("%s: connection closed waiting for %v", tc.Username, eventTypes)
		}
	}
}

// Drain discards buffered events
func (tc *TestClient) Drain() {
	for {
		select {
		case <-tc.events:
		default:
			return
		}
	}
}

// Close sends a close frame and closes the connection
func (tc *TestClient) Close() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.closed {
		return nil
	}
	tc.closed = true
	_ = tc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return tc.conn.Close()
}

// mustWait fails the test when the event does not arrive
func mustWait(t testing.TB, tc *TestClient, eventTypes ...string) inboundEvent {
	t.Helper()
	event, err := tc.WaitFor(3*time.Second, eventTypes...)
	if err != nil {
		t.Fatal(err)
	}
	return event
}

func decode[T any](t testing.TB, event inboundEvent) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(event.Payload, &v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", event.Type, err)
	}
	return v
}
