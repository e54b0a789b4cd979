package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamelobby/pkg/database"
	"gamelobby/pkg/types"
)

// Test database setup helpers
func setupTestDB(t *testing.T) *Manager {
	t.Helper()
	config := database.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "nested", "test.db")

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Logf("Failed to close manager: %v", err)
		}
	})
	return manager
}

func flush(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	config := database.DefaultConfig()
	config.DatabasePath = ""
	if _, err := NewManager(config); err == nil {
		t.Error("Expected error for empty database path")
	}
}

func TestNewManager_ReopenKeepsEvents(t *testing.T) {
	config := database.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "lobby.db")

	first, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	first.Record(&types.LobbyEvent{Kind: types.LobbyEventRoomCreated, RoomID: "r1", RoomName: "Alpha", Players: 1})
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Migrations are not re-applied on an existing database
	second, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to reopen manager: %v", err)
	}
	defer func() { _ = second.Close() }()

	events, err := second.ListEvents(context.Background(), "r1", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event after reopen, got %d", len(events))
	}
}

func TestRecord_AssignsIDAndTimestamp(t *testing.T) {
	m := setupTestDB(t)

	m.Record(&types.LobbyEvent{
		Kind:     types.LobbyEventPlayerJoined,
		RoomID:   "r1",
		RoomName: "Alpha",
		UserID:   "7",
		Username: "alice",
		Players:  2,
	})
	flush(t, m)

	events, err := m.ListEvents(context.Background(), "r1", 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID == "" {
		t.Error("Expected generated event ID")
	}
	if got.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
	if got.Kind != types.LobbyEventPlayerJoined || got.UserID != "7" || got.Username != "alice" || got.Players != 2 {
		t.Errorf("Unexpected event: %+v", got)
	}
}

func TestRecord_NilIsIgnored(t *testing.T) {
	m := setupTestDB(t)
	m.Record(nil)
	flush(t, m)

	if stats := m.Stats(); stats["events_written"] != 0 || stats["events_dropped"] != 0 {
		t.Errorf("Expected no activity, got %v", stats)
	}
}

func TestListEvents_NewestFirstAndFiltered(t *testing.T) {
	m := setupTestDB(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	kinds := []string{
		types.LobbyEventRoomCreated,
		types.LobbyEventPlayerJoined,
		types.LobbyEventGameStarted,
	}
	for i, kind := range kinds {
		m.Record(&types.LobbyEvent{Kind: kind, RoomID: "r1", RoomName: "Alpha", Players: i + 1, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	m.Record(&types.LobbyEvent{Kind: types.LobbyEventRoomCreated, RoomID: "r2", RoomName: "Beta", Players: 1, Timestamp: base.Add(10 * time.Second)})
	flush(t, m)

	events, err := m.ListEvents(context.Background(), "r1", 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events for r1, got %d", len(events))
	}
	for i, want := range []string{types.LobbyEventGameStarted, types.LobbyEventPlayerJoined, types.LobbyEventRoomCreated} {
		if events[i].Kind != want {
			t.Errorf("events[%d].Kind = %s, want %s", i, events[i].Kind, want)
		}
	}

	all, err := m.ListEvents(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected limit of 2, got %d", len(all))
	}
	if all[0].RoomID != "r2" {
		t.Errorf("Expected newest event from r2, got %s", all[0].RoomID)
	}
}

func TestListEvents_ClampsLimit(t *testing.T) {
	m := setupTestDB(t)
	for i := 0; i < DefaultEventLimit+5; i++ {
		m.Record(&types.LobbyEvent{Kind: types.LobbyEventPlayerLeft, RoomID: "r1", RoomName: "Alpha"})
	}
	flush(t, m)

	events, err := m.ListEvents(context.Background(), "r1", -1)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != DefaultEventLimit {
		t.Errorf("Expected default limit %d, got %d", DefaultEventLimit, len(events))
	}

	events, err = m.ListEvents(context.Background(), "r1", MaxEventLimit*10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != DefaultEventLimit+5 {
		t.Errorf("Expected all %d events, got %d", DefaultEventLimit+5, len(events))
	}
}

func TestRecord_InvalidKindIsDropped(t *testing.T) {
	m := setupTestDB(t)
	m.retryDelay = time.Millisecond

	m.Record(&types.LobbyEvent{Kind: "room_exploded", RoomID: "r1", RoomName: "Alpha"})
	flush(t, m)

	if got := m.Stats()["events_dropped"]; got != 1 {
		t.Errorf("Expected 1 dropped event, got %d", got)
	}
}

func TestRecord_ConcurrentWriters(t *testing.T) {
	m := setupTestDB(t)

	const writers, perWriter = 10, 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m.Record(&types.LobbyEvent{
					Kind:     types.LobbyEventPlayerJoined,
					RoomID:   fmt.Sprintf("room-%d", w),
					RoomName: "Concurrent",
					Players:  i,
				})
			}
		}(w)
	}
	wg.Wait()
	flush(t, m)

	stats := m.Stats()
	if stats["events_written"]+stats["events_dropped"] != writers*perWriter {
		t.Errorf("Expected %d events accounted for, got %v", writers*perWriter, stats)
	}
	if stats["events_dropped"] != 0 {
		t.Errorf("Expected no drops with default buffer, got %d", stats["events_dropped"])
	}
}

func TestClose_DrainsQueueAndRejectsLaterWrites(t *testing.T) {
	config := database.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "lobby.db")
	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	for i := 0; i < 5; i++ {
		m.Record(&types.LobbyEvent{Kind: types.LobbyEventRoomCreated, RoomID: "r1", RoomName: "Alpha"})
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := m.Stats()["events_written"]; got != 5 {
		t.Errorf("Expected 5 events written before close, got %d", got)
	}

	m.Record(&types.LobbyEvent{Kind: types.LobbyEventRoomCreated, RoomID: "r1", RoomName: "Alpha"})
	if got := m.Stats()["events_dropped"]; got != 1 {
		t.Errorf("Expected write after close to be dropped, got %d", got)
	}
	if err := m.Flush(context.Background()); err == nil {
		t.Error("Expected Flush to fail after Close")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	m := setupTestDB(t)
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
