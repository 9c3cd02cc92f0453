package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file.
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	HTTPPort    int    `toml:"http_port"`
	MetricsPort int    `toml:"metrics_port"`
	StaticDir   string `toml:"static_dir"`
}

type LimitsSection struct {
	MaxPayloadBytes     int64 `toml:"max_payload_bytes"`
	PingIntervalSeconds int   `toml:"ping_interval_seconds"`
}

// ServerConfig holds runtime server configuration.
type ServerConfig struct {
	HTTPPort            int
	MetricsPort         int   // 0 = metrics listener disabled
	StaticDir           string // "" = static serving disabled
	MaxPayloadBytes     int64
	PingIntervalSeconds int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:            8080,
		MetricsPort:         9090,
		StaticDir:           "frontend",
		MaxPayloadBytes:     50 * 1024 * 1024, // image transfers can be large
		PingIntervalSeconds: 30,
	}
}

// DefaultTOMLConfig returns the default TOML configuration.
func DefaultTOMLConfig() TOMLConfig {
	def := DefaultConfig()
	return TOMLConfig{
		Server: ServerSection{
			HTTPPort:    def.HTTPPort,
			MetricsPort: def.MetricsPort,
			StaticDir:   def.StaticDir,
		},
		Limits: LimitsSection{
			MaxPayloadBytes:     def.MaxPayloadBytes,
			PingIntervalSeconds: def.PingIntervalSeconds,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates a default
// one if not found, and applies environment variable overrides.
func LoadConfig(path string) (TOMLConfig, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// Best effort: a read-only location still lets the server run
		// on defaults.
		_ = writeDefaultConfig(path)
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the
// config. Variables follow the pattern CHATAPP_SECTION_KEY, e.g.
// CHATAPP_SERVER_HTTP_PORT=8081. PORT is honored as a shorthand for the
// public HTTP port.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("CHATAPP_SERVER_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("CHATAPP_SERVER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.MetricsPort = port
		}
	}
	if val := os.Getenv("CHATAPP_SERVER_STATIC_DIR"); val != "" {
		config.Server.StaticDir = val
	}
	if val := os.Getenv("CHATAPP_LIMITS_MAX_PAYLOAD_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Limits.MaxPayloadBytes = n
		}
	}
	if val := os.Getenv("CHATAPP_LIMITS_PING_INTERVAL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Limits.PingIntervalSeconds = n
		}
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all
// options documented.
func writeDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# Chat relay server configuration
# This file was auto-generated with default values.
# Restart the server for changes to take effect.
#
# Environment variables can override these settings:
# CHATAPP_SECTION_KEY (e.g., CHATAPP_SERVER_HTTP_PORT=8081)
# PORT is honored as a shorthand for http_port.

[server]
# Port for the public HTTP server (/ws plus static assets)
http_port = 8080

# Port for the internal metrics server (/metrics, /health)
# Never expose this publicly.
metrics_port = 9090

# Directory of static frontend assets. Empty to disable.
static_dir = "frontend"

[limits]
# Maximum websocket payload size in bytes (images travel inline)
max_payload_bytes = 52428800

# Liveness probe interval in seconds. Connections that fail to answer
# a probe before the next tick are evicted.
ping_interval_seconds = 30
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig, falling back to
// defaults for unset values.
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}
	if c.Server.MetricsPort != 0 {
		cfg.MetricsPort = c.Server.MetricsPort
	}
	if strings.TrimSpace(c.Server.StaticDir) != "" {
		cfg.StaticDir = c.Server.StaticDir
	}

	if c.Limits.MaxPayloadBytes != 0 {
		cfg.MaxPayloadBytes = c.Limits.MaxPayloadBytes
	}
	if c.Limits.PingIntervalSeconds != 0 {
		cfg.PingIntervalSeconds = c.Limits.PingIntervalSeconds
	}

	return cfg
}
