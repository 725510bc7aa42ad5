package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfigValid tests that the defaults pass validation.
func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

// TestLoadFromYAMLFile tests YAML loading and section conversion.
func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rudp.yaml")
	content := []byte(`
protocol:
  maxPacketsInFlight: 64
  idleTimeoutMs: 3000
  heartbeatIntervalMs: 500
  fragmentSize: 512
  maxFragments: 16
  resendRTTMultiplier: 1.5
  maxOrderingStreams: 4
  eventBuffer: 256
socket:
  bindAddress: "127.0.0.1:33444"
  readBufferSize: 2048
  tos: 46
  pollingIntervalMs: 5
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	require.NoError(t, cfg.Validate())

	protocol := cfg.Protocol.ToProtocolConfig()
	assert.Equal(t, 64, protocol.MaxPacketsInFlight)
	assert.Equal(t, 3*time.Second, protocol.IdleConnectionTimeout)
	assert.Equal(t, 500*time.Millisecond, protocol.HeartbeatInterval)
	assert.Equal(t, 512, protocol.FragmentSize)
	assert.Equal(t, 16, protocol.MaxFragments)
	assert.Equal(t, 1.5, protocol.ResendRTTMultiplier)
	assert.Equal(t, 4, protocol.MaxOrderingStreams)
	assert.Equal(t, 256, protocol.SocketEventBuffer)

	sock := cfg.Socket.ToSocketConfig()
	assert.Equal(t, "127.0.0.1:33444", sock.BindAddress)
	assert.Equal(t, 2048, sock.ReadBufferSize)
	assert.Equal(t, 46, sock.TOS)
	assert.Equal(t, 5*time.Millisecond, sock.PollingInterval)

	assert.Equal(t, "debug", cfg.Logging.Level)
}

// TestSaveAndReload tests the JSON round trip through SaveToFile.
func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rudp.json")

	cfg := DefaultConfig()
	cfg.Protocol.FragmentSize = 768
	cfg.Socket.BindAddress = "0.0.0.0:9999"
	require.NoError(t, cfg.SaveToFile(path))

	loaded := DefaultConfig()
	require.NoError(t, LoadFromFile(path, loaded))
	assert.Equal(t, 768, loaded.Protocol.FragmentSize)
	assert.Equal(t, "0.0.0.0:9999", loaded.Socket.BindAddress)
}

// TestLoadFromEnv tests environment overrides, including duration parsing.
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RUDP_BIND_ADDRESS", "127.0.0.1:1234")
	t.Setenv("RUDP_IDLE_TIMEOUT", "7s")
	t.Setenv("RUDP_HEARTBEAT_INTERVAL", "250ms")
	t.Setenv("RUDP_FRAGMENT_SIZE", "256")
	t.Setenv("RUDP_DEBUG", "1")
	t.Setenv("LOGGING_LEVEL", "warn")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "127.0.0.1:1234", cfg.Socket.BindAddress)
	assert.Equal(t, 7000, cfg.Protocol.IdleTimeoutMs)
	assert.Equal(t, 250, cfg.Protocol.HeartbeatIntervalMs)
	assert.Equal(t, 256, cfg.Protocol.FragmentSize)
	assert.True(t, cfg.Socket.Debug)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

// TestValidateRejectsBadValues tests a few representative failures.
func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fragment size", func(c *Config) { c.Protocol.FragmentSize = 0 }},
		{"fragment count over wire limit", func(c *Config) { c.Protocol.MaxFragments = 300 }},
		{"bad bind address", func(c *Config) { c.Socket.BindAddress = "not-an-address" }},
		{"read buffer below fragment size", func(c *Config) { c.Socket.ReadBufferSize = 10 }},
		{"negative multiplier", func(c *Config) { c.Protocol.ResendRTTMultiplier = -1 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestUnsupportedFormatRejected tests the extension check.
func TestUnsupportedFormatRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rudp.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))
	assert.Error(t, LoadFromFile(path, DefaultConfig()))
	assert.Error(t, DefaultConfig().SaveToFile(path))
}
