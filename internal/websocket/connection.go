package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gamelobby/pkg/types"
	"github.com/gorilla/websocket"
)

// Default transport settings
const (
	DefaultSendBufferSize = 64
	DefaultWriteTimeout   = 5 * time.Second
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	id           string
	identity     types.Identity
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded socket for an authenticated identity and
// starts its writer goroutine
func NewConnection(conn *websocket.Conn, id string, identity types.Identity, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBufferSize
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		id:           id,
		identity:     identity,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()
	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	// A failed write ends the connection so the read pump unblocks and the
	// disconnect cascade runs
	defer func() { _ = c.Close() }()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write failed: connection=%s error=%v", c.id, err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Identity() types.Identity {
	return c.identity
}

// WriteJSON queues v for the writer goroutine without blocking.
// A client that cannot keep up is disconnected rather than stalling the lobby.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		log.Printf("Slow consumer disconnected: connection=%s user=%s buffer=%d", c.id, c.identity.Username, cap(c.writeCh))
		_ = c.Close()
		return ErrSendBufferFull
	}
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
