package router

import (
	"testing"
	"time"
)

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("c1") || !rl.Allow("c1") {
		t.Fatal("First two commands should be allowed")
	}
	if rl.Allow("c1") {
		t.Error("Third command inside the window should be rejected")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("c1") {
		t.Error("A new window should reset the budget")
	}
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl.limit != DefaultCommandsPerMinute {
		t.Errorf("Expected default limit %d, got %d", DefaultCommandsPerMinute, rl.limit)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(4 * time.Minute)
	rl.Allow("fresh")
	now = now.Add(2 * time.Minute)

	rl.Cleanup()
	if rl.Tracked() != 1 {
		t.Errorf("Expected only the fresh entry to remain, tracked=%d", rl.Tracked())
	}

	rl.Forget("fresh")
	if rl.Tracked() != 0 {
		t.Errorf("Forget should drop the entry, tracked=%d", rl.Tracked())
	}
}
