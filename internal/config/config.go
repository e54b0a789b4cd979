package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "GAMELOBBY_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_"`
	Lobby     *LobbyConfig     `json:"lobby" envPrefix:"LOBBY_"`
	Auth      *AuthConfig      `json:"auth" envPrefix:"AUTH_"`
	Telemetry *TelemetryConfig `json:"telemetry" envPrefix:"TELEMETRY_"`
}

// DatabaseConfig locates the activity log. Timeout bounds the startup health check.
type DatabaseConfig struct {
	Path            string        `json:"path" env:"PATH"`
	Timeout         time.Duration `json:"timeout" env:"TIMEOUT"`
	MaxConnections  int           `json:"max_connections" env:"MAX_CONNECTIONS"`
	EventBufferSize int           `json:"event_buffer_size" env:"EVENT_BUFFER_SIZE"`
}

type HTTPConfig struct {
	Port            int           `json:"port" env:"PORT"`
	Host            string        `json:"host" env:"HOST"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// FUNCTIONAL DISCOVERY: 30s heartbeat with a 60s read deadline detects dead peers
// within two missed pongs
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout    time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize     int           `json:"buffer_size" env:"BUFFER_SIZE"`
	MaxMessageSize int64         `json:"max_message_size" env:"MAX_MESSAGE_SIZE"`
}

type LobbyConfig struct {
	RoomCapacity      int `json:"room_capacity" env:"ROOM_CAPACITY"`
	MaxRoomNameLength int `json:"max_room_name_length" env:"MAX_ROOM_NAME_LENGTH"`
	CommandsPerMinute int `json:"commands_per_minute" env:"COMMANDS_PER_MINUTE"`
}

// AuthConfig holds the shared secret of the identity service tokens
type AuthConfig struct {
	Secret string `json:"secret" env:"SECRET"`
	Issuer string `json:"issuer" env:"ISSUER"`
}

type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" env:"ENABLED"`
	Endpoint    string `json:"endpoint" env:"ENDPOINT"` // OTLP/HTTP collector URL
	ServiceName string `json:"service_name" env:"SERVICE_NAME"`
}

// DefaultConfig returns defaults for everything except the auth secret,
// which has no safe default
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:            "./data/gamelobby.db",
			Timeout:         30 * time.Second,
			MaxConnections:  10,
			EventBufferSize: 1024,
		},
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   5 * time.Second,
			BufferSize:     64,
			MaxMessageSize: 4096,
		},
		Lobby: &LobbyConfig{
			RoomCapacity:      4,
			MaxRoomNameLength: 32,
			CommandsPerMinute: 120,
		},
		Auth: &AuthConfig{},
		Telemetry: &TelemetryConfig{
			Endpoint:    "http://localhost:4318",
			ServiceName: "gamelobby",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.EventBufferSize <= 0 {
		return fmt.Errorf("database event buffer size must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Lobby == nil {
		return fmt.Errorf("lobby configuration is required")
	}
	if c.Lobby.RoomCapacity < 1 {
		return fmt.Errorf("room capacity must be at least 1")
	}
	if c.Lobby.MaxRoomNameLength < 1 {
		return fmt.Errorf("max room name length must be at least 1")
	}
	if c.Lobby.CommandsPerMinute < 1 {
		return fmt.Errorf("commands per minute must be at least 1")
	}

	if c.Auth == nil || c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set %sAUTH_SECRET)", EnvPrefix)
	}

	if c.Telemetry == nil {
		return fmt.Errorf("telemetry configuration is required")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}

	return nil
}

// LoadFromEnv returns the defaults overridden by GAMELOBBY_* variables,
// e.g. GAMELOBBY_HTTP_PORT or GAMELOBBY_WEBSOCKET_PING_INTERVAL
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings;
// absent fields leave the underlying value untouched
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Lobby     *LobbyConfig         `json:"lobby"`
	Auth      *AuthConfig          `json:"auth"`
	Telemetry *TelemetryConfig     `json:"telemetry"`
}

type DatabaseConfigFile struct {
	Path            string `json:"path"`
	Timeout         string `json:"timeout"`
	MaxConnections  int    `json:"max_connections"`
	EventBufferSize int    `json:"event_buffer_size"`
}

type HTTPConfigFile struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	BufferSize     int    `json:"buffer_size"`
	MaxMessageSize int64  `json:"max_message_size"`
}

// LoadFromFile returns the defaults overridden by the JSON file at path
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if d := file.Database; d != nil {
		setString(&config.Database.Path, d.Path)
		setInt(&config.Database.MaxConnections, d.MaxConnections)
		setInt(&config.Database.EventBufferSize, d.EventBufferSize)
		if err := setDuration(&config.Database.Timeout, "database.timeout", d.Timeout); err != nil {
			return err
		}
	}

	if h := file.HTTP; h != nil {
		setInt(&config.HTTP.Port, h.Port)
		setString(&config.HTTP.Host, h.Host)
		for _, d := range []struct {
			dst  *time.Duration
			name string
			raw  string
		}{
			{&config.HTTP.ReadTimeout, "http.read_timeout", h.ReadTimeout},
			{&config.HTTP.WriteTimeout, "http.write_timeout", h.WriteTimeout},
			{&config.HTTP.ShutdownTimeout, "http.shutdown_timeout", h.ShutdownTimeout},
		} {
			if err := setDuration(d.dst, d.name, d.raw); err != nil {
				return err
			}
		}
	}

	if w := file.WebSocket; w != nil {
		setInt(&config.WebSocket.BufferSize, w.BufferSize)
		if w.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = w.MaxMessageSize
		}
		for _, d := range []struct {
			dst  *time.Duration
			name string
			raw  string
		}{
			{&config.WebSocket.PingInterval, "websocket.ping_interval", w.PingInterval},
			{&config.WebSocket.ReadTimeout, "websocket.read_timeout", w.ReadTimeout},
			{&config.WebSocket.WriteTimeout, "websocket.write_timeout", w.WriteTimeout},
		} {
			if err := setDuration(d.dst, d.name, d.raw); err != nil {
				return err
			}
		}
	}

	if l := file.Lobby; l != nil {
		setInt(&config.Lobby.RoomCapacity, l.RoomCapacity)
		setInt(&config.Lobby.MaxRoomNameLength, l.MaxRoomNameLength)
		setInt(&config.Lobby.CommandsPerMinute, l.CommandsPerMinute)
	}

	if a := file.Auth; a != nil {
		setString(&config.Auth.Secret, a.Secret)
		setString(&config.Auth.Issuer, a.Issuer)
	}

	if t := file.Telemetry; t != nil {
		// A telemetry block in the file is authoritative for the flag
		config.Telemetry.Enabled = t.Enabled
		setString(&config.Telemetry.Endpoint, t.Endpoint)
		setString(&config.Telemetry.ServiceName, t.ServiceName)
	}

	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// A missing file is not an error; a malformed one is
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if path != "" {
		err := applyFile(config, path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("Config file %s not found, using environment and defaults", path)
		case err != nil:
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}

func setDuration(dst *time.Duration, name, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", name, err)
	}
	*dst = d
	return nil
}
