package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_RequiresAuthSecret(t *testing.T) {
	t.Setenv("GAMELOBBY_AUTH_SECRET", "")
	t.Setenv("GAMELOBBY_CONFIG_FILE", "")
	t.Setenv("GAMELOBBY_DATABASE_PATH", filepath.Join(t.TempDir(), "lobby.db"))

	err := run()
	if err == nil || !strings.Contains(err.Error(), "auth secret") {
		t.Fatalf("Expected missing secret error, got %v", err)
	}
}

func TestRun_RejectsMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": `), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("GAMELOBBY_AUTH_SECRET", "secret")
	t.Setenv("GAMELOBBY_CONFIG_FILE", path)

	if err := run(); err == nil || !strings.Contains(err.Error(), "failed to load configuration") {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}
