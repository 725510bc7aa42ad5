// Package config provides configuration handling for the transport: file
// loading (YAML or JSON), environment overrides, validation, and wiring
// into the logging setup.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
	"github.com/irctrakz/rudp/pkg/socket"
)

// Config represents the complete transport configuration.
type Config struct {
	// Protocol contains the per-connection protocol configuration.
	Protocol ProtocolConfig `json:"protocol" yaml:"protocol"`

	// Socket contains the UDP transport configuration.
	Socket SocketConfig `json:"socket" yaml:"socket"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ProtocolConfig is the file-facing form of core.ProtocolConfig. Durations
// are denominated in milliseconds.
type ProtocolConfig struct {
	// MaxPacketsInFlight is the unacknowledged-packet cap before a
	// connection is dropped.
	MaxPacketsInFlight int `json:"maxPacketsInFlight" yaml:"maxPacketsInFlight"`

	// IdleTimeoutMs is how long a connection may receive nothing before it
	// is dropped (milliseconds).
	IdleTimeoutMs int `json:"idleTimeoutMs" yaml:"idleTimeoutMs"`

	// HeartbeatIntervalMs is the send-side idle interval before a heartbeat
	// goes out (milliseconds, 0 disables).
	HeartbeatIntervalMs int `json:"heartbeatIntervalMs" yaml:"heartbeatIntervalMs"`

	// FragmentSize is the maximum payload per wire packet.
	FragmentSize int `json:"fragmentSize" yaml:"fragmentSize"`

	// MaxFragments caps fragments per payload (at most 255).
	MaxFragments int `json:"maxFragments" yaml:"maxFragments"`

	// ResendRTTMultiplier scales smoothed RTT into the resend deadline.
	ResendRTTMultiplier float64 `json:"resendRTTMultiplier" yaml:"resendRTTMultiplier"`

	// MaxOrderingStreams is the per-connection stream count.
	MaxOrderingStreams int `json:"maxOrderingStreams" yaml:"maxOrderingStreams"`

	// MaxConnections caps the connection table (0 = unlimited).
	MaxConnections int `json:"maxConnections" yaml:"maxConnections"`

	// EventBuffer is the capacity of the application event channel.
	EventBuffer int `json:"eventBuffer" yaml:"eventBuffer"`
}

// SocketConfig is the file-facing form of socket.Config.
type SocketConfig struct {
	// BindAddress is the local UDP address, host:port.
	BindAddress string `json:"bindAddress" yaml:"bindAddress"`

	// ReadBufferSize is the per-datagram receive buffer.
	ReadBufferSize int `json:"readBufferSize" yaml:"readBufferSize"`

	// TOS sets the IPv4 TOS/DSCP byte on outgoing datagrams (0 = default).
	TOS int `json:"tos" yaml:"tos"`

	// PollingIntervalMs is the housekeeping tick cadence (milliseconds).
	PollingIntervalMs int `json:"pollingIntervalMs" yaml:"pollingIntervalMs"`

	// Debug enables per-datagram debug logging.
	Debug bool `json:"debug" yaml:"debug"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	protocol := core.DefaultProtocolConfig()
	sock := socket.DefaultConfig()
	return &Config{
		Protocol: ProtocolConfig{
			MaxPacketsInFlight:  protocol.MaxPacketsInFlight,
			IdleTimeoutMs:       int(protocol.IdleConnectionTimeout / time.Millisecond),
			HeartbeatIntervalMs: int(protocol.HeartbeatInterval / time.Millisecond),
			FragmentSize:        protocol.FragmentSize,
			MaxFragments:        protocol.MaxFragments,
			ResendRTTMultiplier: protocol.ResendRTTMultiplier,
			MaxOrderingStreams:  protocol.MaxOrderingStreams,
			MaxConnections:      protocol.MaxConnections,
			EventBuffer:         protocol.SocketEventBuffer,
		},
		Socket: SocketConfig{
			BindAddress:       sock.BindAddress,
			ReadBufferSize:    sock.ReadBufferSize,
			TOS:               sock.TOS,
			PollingIntervalMs: int(sock.PollingInterval / time.Millisecond),
			Debug:             sock.Debug,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// ToProtocolConfig converts the file-facing section into the runtime form.
func (p ProtocolConfig) ToProtocolConfig() core.ProtocolConfig {
	return core.ProtocolConfig{
		MaxPacketsInFlight:    p.MaxPacketsInFlight,
		IdleConnectionTimeout: time.Duration(p.IdleTimeoutMs) * time.Millisecond,
		HeartbeatInterval:     time.Duration(p.HeartbeatIntervalMs) * time.Millisecond,
		FragmentSize:          p.FragmentSize,
		MaxFragments:          p.MaxFragments,
		ResendRTTMultiplier:   p.ResendRTTMultiplier,
		MaxOrderingStreams:    p.MaxOrderingStreams,
		MaxConnections:        p.MaxConnections,
		SocketEventBuffer:     p.EventBuffer,
	}
}

// ToSocketConfig converts the file-facing section into the runtime form.
func (s SocketConfig) ToSocketConfig() socket.Config {
	return socket.Config{
		BindAddress:     s.BindAddress,
		ReadBufferSize:  s.ReadBufferSize,
		TOS:             s.TOS,
		PollingInterval: time.Duration(s.PollingIntervalMs) * time.Millisecond,
		Debug:           s.Debug,
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Protocol config
	if val := os.Getenv("RUDP_MAX_PACKETS_IN_FLIGHT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Protocol.MaxPacketsInFlight = n
		}
	}
	if val := os.Getenv("RUDP_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Protocol.IdleTimeoutMs = int(d / time.Millisecond)
		}
	}
	if val := os.Getenv("RUDP_HEARTBEAT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Protocol.HeartbeatIntervalMs = int(d / time.Millisecond)
		}
	}
	if val := os.Getenv("RUDP_FRAGMENT_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Protocol.FragmentSize = n
		}
	}
	if val := os.Getenv("RUDP_MAX_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Protocol.MaxConnections = n
		}
	}

	// Socket config
	if val := os.Getenv("RUDP_BIND_ADDRESS"); val != "" {
		config.Socket.BindAddress = val
	}
	if val := os.Getenv("RUDP_READ_BUFFER_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Socket.ReadBufferSize = n
		}
	}
	if val := os.Getenv("RUDP_TOS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Socket.TOS = n
		}
	}
	if val := os.Getenv("RUDP_DEBUG"); val != "" {
		config.Socket.Debug = val == "true" || val == "1"
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	if val := os.Getenv("LOGGING_MAX_SIZE"); val != "" {
		if maxSize, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxSize = maxSize
		}
	}
	if val := os.Getenv("LOGGING_MAX_BACKUPS"); val != "" {
		if maxBackups, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxBackups = maxBackups
		}
	}
	if val := os.Getenv("LOGGING_MAX_AGE"); val != "" {
		if maxAge, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxAge = maxAge
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Protocol config
	if c.Protocol.MaxPacketsInFlight <= 0 {
		return fmt.Errorf("maxPacketsInFlight must be positive: %d", c.Protocol.MaxPacketsInFlight)
	}
	if c.Protocol.IdleTimeoutMs <= 0 {
		return fmt.Errorf("idleTimeoutMs must be positive: %d", c.Protocol.IdleTimeoutMs)
	}
	if c.Protocol.HeartbeatIntervalMs < 0 {
		return fmt.Errorf("heartbeatIntervalMs cannot be negative: %d", c.Protocol.HeartbeatIntervalMs)
	}
	if c.Protocol.FragmentSize <= 0 {
		return fmt.Errorf("invalid fragment size: %d", c.Protocol.FragmentSize)
	}
	if c.Protocol.MaxFragments <= 0 || c.Protocol.MaxFragments > 255 {
		return fmt.Errorf("maxFragments must be in 1..255: %d", c.Protocol.MaxFragments)
	}
	if c.Protocol.ResendRTTMultiplier <= 0 {
		return fmt.Errorf("resendRTTMultiplier must be positive: %f", c.Protocol.ResendRTTMultiplier)
	}
	if c.Protocol.MaxOrderingStreams <= 0 {
		return fmt.Errorf("maxOrderingStreams must be positive: %d", c.Protocol.MaxOrderingStreams)
	}

	// Socket config
	if _, _, err := net.SplitHostPort(c.Socket.BindAddress); err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.Socket.BindAddress, err)
	}
	if c.Socket.ReadBufferSize < c.Protocol.FragmentSize {
		return fmt.Errorf("readBufferSize %d smaller than fragment size %d",
			c.Socket.ReadBufferSize, c.Protocol.FragmentSize)
	}
	if c.Socket.TOS < 0 || c.Socket.TOS > 255 {
		return fmt.Errorf("invalid TOS byte: %d", c.Socket.TOS)
	}
	if c.Socket.PollingIntervalMs <= 0 {
		return fmt.Errorf("pollingIntervalMs must be positive: %d", c.Socket.PollingIntervalMs)
	}

	// Logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	// Set log level
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "info":
		level = logging.InfoLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	default:
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	// Enable file logging if configured
	if c.Logging.File != "" {
		// Extract directory from file path
		dir := "."
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			dir = c.Logging.File[:lastSlash]
		}

		// Get filename
		filename := c.Logging.File
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			filename = c.Logging.File[lastSlash+1:]
		}

		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	// Create directory if it doesn't exist
	dir := "."
	if lastSlash := strings.LastIndex(path, "/"); lastSlash != -1 {
		dir = path[:lastSlash]
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
