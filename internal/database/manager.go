package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	dbconfig "gamelobby/pkg/database"
	"gamelobby/pkg/interfaces"
	"gamelobby/pkg/types"
	"github.com/google/uuid"
	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultEventLimit is used when ListEvents is called without a limit
	DefaultEventLimit = 50
	// MaxEventLimit caps a single ListEvents page
	MaxEventLimit = 500
)

// Manager is the SQLite-backed lobby activity log
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
	written      atomic.Int64
	dropped      atomic.Int64
}

var _ interfaces.EventStore = (*Manager)(nil)

// writeOperation carries either an event to insert or a flush marker
type writeOperation struct {
	event   *types.LobbyEvent
	flushed chan struct{}
}

// NewManager opens the database, applies migrations and starts the writer
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if config.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db, config.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, config.EventBufferSize),
		shutdown:     make(chan struct{}),
		retryDelay:   100 * time.Millisecond,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all inserts in a single goroutine and drains the
// queue before exiting
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.process(op)

		case <-m.shutdown:
			for {
				select {
				case op := <-m.writeChannel:
					m.process(op)
				default:
					log.Println("Activity log writer shutting down")
					return
				}
			}
		}
	}
}

func (m *Manager) process(op writeOperation) {
	if op.event != nil {
		err := m.insert(op.event)
		if err != nil {
			log.Printf("Activity log write failed, retrying: %v", err)
			time.Sleep(m.retryDelay)
			err = m.insert(op.event) // Retry once
		}
		if err != nil {
			log.Printf("Activity log write failed after retry, dropping %s event for room %s: %v", op.event.Kind, op.event.RoomID, err)
			m.dropped.Add(1)
		} else {
			m.written.Add(1)
		}
	}
	if op.flushed != nil {
		close(op.flushed)
	}
}

func (m *Manager) insert(event *types.LobbyEvent) error {
	_, err := m.db.Exec(`
		INSERT INTO lobby_events (id, kind, room_id, room_name, user_id, username, players, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Kind,
		event.RoomID,
		event.RoomName,
		nullString(event.UserID),
		nullString(event.Username),
		event.Players,
		event.Timestamp,
	)
	return err
}

// Record queues event for insertion without blocking. A full queue or a
// closed manager drops the event.
func (m *Manager) Record(event *types.LobbyEvent) {
	if event == nil {
		return
	}
	entry := *event
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	// TECHNICAL DISCOVERY: Holding the read lock across the send keeps Close
	// from shutting the writer down between the closed check and the enqueue
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.dropped.Add(1)
		return
	}

	select {
	case m.writeChannel <- writeOperation{event: &entry}:
	default:
		m.dropped.Add(1)
		log.Printf("Activity log queue full, dropping %s event for room %s", entry.Kind, entry.RoomID)
	}
}

// Flush blocks until every event queued before the call has been written
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	flushed := make(chan struct{})
	select {
	case m.writeChannel <- writeOperation{flushed: flushed}:
		m.mu.RUnlock()
	case <-ctx.Done():
		m.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListEvents returns the newest events first. An empty roomID lists all rooms.
func (m *Manager) ListEvents(ctx context.Context, roomID string, limit int) ([]*types.LobbyEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	query := `
		SELECT id, kind, room_id, room_name, user_id, username, players, timestamp
		FROM lobby_events
	`
	args := []any{}
	if roomID != "" {
		query += " WHERE room_id = ?"
		args = append(args, roomID)
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lobby events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*types.LobbyEvent, 0, limit)
	for rows.Next() {
		var event types.LobbyEvent
		var userID, username sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.Kind,
			&event.RoomID,
			&event.RoomName,
			&userID,
			&username,
			&event.Players,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lobby event row: %w", err)
		}
		event.UserID = userID.String
		event.Username = username.String
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lobby event rows: %w", err)
	}
	return events, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lobby_events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Stats reports writer counters for the health endpoint
func (m *Manager) Stats() map[string]int64 {
	return map[string]int64{
		"events_written": m.written.Load(),
		"events_dropped": m.dropped.Load(),
		"events_queued":  int64(len(m.writeChannel)),
	}
}

// Close drains queued events and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
