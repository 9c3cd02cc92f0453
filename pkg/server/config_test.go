package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat-app.toml")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.HTTPPort)
	assert.Equal(t, 9090, config.Server.MetricsPort)
	assert.Equal(t, int64(50*1024*1024), config.Limits.MaxPayloadBytes)
	assert.Equal(t, 30, config.Limits.PingIntervalSeconds)

	// The default file was written so the operator can discover the
	// available options.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat-app.toml")
	content := `
[server]
http_port = 3000
static_dir = "public"

[limits]
ping_interval_seconds = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, config.Server.HTTPPort)
	assert.Equal(t, "public", config.Server.StaticDir)
	assert.Equal(t, 5, config.Limits.PingIntervalSeconds)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CHATAPP_SERVER_METRICS_PORT", "4100")
	t.Setenv("CHATAPP_LIMITS_MAX_PAYLOAD_BYTES", "1024")

	config := applyEnvOverrides(DefaultTOMLConfig())
	assert.Equal(t, 4000, config.Server.HTTPPort)
	assert.Equal(t, 4100, config.Server.MetricsPort)
	assert.Equal(t, int64(1024), config.Limits.MaxPayloadBytes)

	// The explicit variable wins over the PORT shorthand.
	t.Setenv("CHATAPP_SERVER_HTTP_PORT", "4001")
	config = applyEnvOverrides(DefaultTOMLConfig())
	assert.Equal(t, 4001, config.Server.HTTPPort)
}

func TestToServerConfigFillsDefaults(t *testing.T) {
	// A file with only [server].http_port set must not zero out the
	// rest of the runtime config.
	partial := TOMLConfig{}
	partial.Server.HTTPPort = 3000

	cfg := partial.ToServerConfig()
	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, "frontend", cfg.StaticDir)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxPayloadBytes)
	assert.Equal(t, 30, cfg.PingIntervalSeconds)
}
