// Package config provides application configuration.
//
// Configuration is loaded from environment variables with sensible
// defaults. All timeouts and operational parameters are configurable.
//
// For a complete list of all environment variables, see .env.example
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SessionConfig holds room-lifecycle and matchmaking parameters.
type SessionConfig struct {
	IdleTTL time.Duration // session idle expiry (default 30s)
	TurnTimeout time.Duration // per-turn timeout (default 20s)
	TurnWarningWindow time.Duration // window before expiry that emits turn_timeout_warning (default 5s)
	MaxMultiplayerHumanPlayers int // human seat cap per session (default 6)
	RoomCodeLength int // generated room code length (default 4)
	RoomCodeAllocAttempts int // generation attempts before createSession fails with 500 internal_error (default 20)
	DefaultListRoomsLimit int // listRooms default limit (default 20)
	MaxListRoomsLimit int // listRooms hard cap (default 100)
}

// SweepConfig holds background-sweeper intervals.
type SweepConfig struct {
	TurnTimeoutInterval time.Duration // turn-timeout sweep wake interval (default 1s)
	IdleSweepInterval time.Duration // session-idle sweep wake interval (default 5s)
}

// AuditConfig holds audit-log listing bounds
type AuditConfig struct {
	DefaultLimit int // default 60
	HardCap int // default 250
	GlobalCap int // default 500
	LogCapacity int // in-memory World log capacity, default 10_000
}

// RetryConfig holds database retry attempts and delays, matching the
// teacher's RetryConfig shape.
type RetryConfig struct {
	DatabaseMaxRetries int
	DatabaseRetryBaseDelay time.Duration
}

// SocketConfig holds WebSocket-layer tunables.
type SocketConfig struct {
	MaxMessageBytes int // max inbound frame payload, default 16 KiB
	UpgradeGraceWindow time.Duration // session_expired grace during upgrade, default 5s
}

// BootstrapConfig names the static owner allowlists consulted by
// resolveAdminRoleForIdentity before falling back to stored state.
type BootstrapConfig struct {
	OwnerUIDs []string
	OwnerEmails []string // stored lowercase
}

// Config holds all application configuration.
type Config struct {
	Port string
	FrontendURL string
	DBPath string
	PostgresDSN string
	StorageKind string // "memory" | "sqlite" | "postgres"

	Session SessionConfig
	Sweep SweepConfig
	Audit AuditConfig
	Retry RetryConfig
	Socket SocketConfig
	Bootstrap BootstrapConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath: getEnv("DB_PATH", "./data/tablecore.db"),
		PostgresDSN: getEnv("DATABASE_URL", ""),
		StorageKind: getEnv("STORAGE_KIND", "memory"),

		Session: SessionConfig{
			IdleTTL: getEnvDuration("TABLECORE_SESSION_IDLE_TTL", 30*time.Second),
			TurnTimeout: getEnvDuration("TABLECORE_TURN_TIMEOUT", 20*time.Second),
			TurnWarningWindow: getEnvDuration("TABLECORE_TURN_WARNING_WINDOW", 5*time.Second),
			MaxMultiplayerHumanPlayers: getEnvInt("TABLECORE_MAX_HUMAN_PLAYERS", 6),
			RoomCodeLength: getEnvInt("TABLECORE_ROOM_CODE_LENGTH", 4),
			RoomCodeAllocAttempts: getEnvInt("TABLECORE_ROOM_CODE_ALLOC_ATTEMPTS", 20),
			DefaultListRoomsLimit: getEnvInt("TABLECORE_LIST_ROOMS_DEFAULT_LIMIT", 20),
			MaxListRoomsLimit: getEnvInt("TABLECORE_LIST_ROOMS_MAX_LIMIT", 100),
		},
		Sweep: SweepConfig{
			TurnTimeoutInterval: getEnvDuration("TABLECORE_TURN_SWEEP_INTERVAL", time.Second),
			IdleSweepInterval: getEnvDuration("TABLECORE_IDLE_SWEEP_INTERVAL", 5*time.Second),
		},
		Audit: AuditConfig{
			DefaultLimit: getEnvInt("TABLECORE_AUDIT_DEFAULT_LIMIT", 60),
			HardCap: getEnvInt("TABLECORE_AUDIT_HARD_CAP", 250),
			GlobalCap: getEnvInt("TABLECORE_AUDIT_GLOBAL_CAP", 500),
			LogCapacity: getEnvInt("TABLECORE_LOG_CAPACITY", 10_000),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries: getEnvInt("TABLECORE_DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("TABLECORE_DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Socket: SocketConfig{
			MaxMessageBytes: getEnvInt("TABLECORE_SOCKET_MAX_MESSAGE_BYTES", 16*1024),
			UpgradeGraceWindow: getEnvDuration("TABLECORE_SOCKET_UPGRADE_GRACE", 5*time.Second),
		},
		Bootstrap: BootstrapConfig{
			OwnerUIDs: splitAndTrim(getEnv("TABLECORE_BOOTSTRAP_OWNER_UIDS", "")),
			OwnerEmails: lowercaseAll(splitAndTrim(getEnv("TABLECORE_BOOTSTRAP_OWNER_EMAILS", ""))),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StorageKind {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("STORAGE_KIND must be one of memory|sqlite|postgres, got %q", c.StorageKind)
	}
	if c.StorageKind == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when STORAGE_KIND=sqlite")
	}
	if c.StorageKind == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty when STORAGE_KIND=postgres")
	}
	if c.Session.MaxMultiplayerHumanPlayers <= 0 {
		return fmt.Errorf("TABLECORE_MAX_HUMAN_PLAYERS must be > 0")
	}
	if c.Session.RoomCodeLength <= 0 {
		return fmt.Errorf("TABLECORE_ROOM_CODE_LENGTH must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowercaseAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
