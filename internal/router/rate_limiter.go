package router

import (
	"sync"
	"time"
)

// DefaultCommandsPerMinute is used when no limit is configured
const DefaultCommandsPerMinute = 120

// RateLimiter implements per-connection command rate limiting
// ARCHITECTURAL DISCOVERY: Per-connection state tracking with explicit Forget on
// disconnect and periodic Cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientLimit
	now     func() time.Time
}

// clientLimit tracks the current window for a single connection
type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit commands per minute for each connection
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultCommandsPerMinute
	}
	return &RateLimiter{
		limit:   limit,
		window:  time.Minute,
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

// Allow reports whether the connection may issue another command
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	client, exists := rl.clients[connectionID]
	if !exists {
		rl.clients[connectionID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	// TECHNICAL DISCOVERY: Fixed window resets exactly once per window
	if now.Sub(client.windowStart) >= rl.window {
		client.count = 1
		client.windowStart = now
		return true
	}

	if client.count >= rl.limit {
		return false
	}
	client.count++
	return true
}

// Forget drops the state for a disconnected connection
func (rl *RateLimiter) Forget(connectionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connectionID)
}

// Cleanup removes entries idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for connectionID, client := range rl.clients {
		if now.Sub(client.windowStart) > 5*rl.window {
			delete(rl.clients, connectionID)
		}
	}
}

// Tracked returns the number of connections with rate limit state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
