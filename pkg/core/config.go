package core

import "time"

// ProtocolConfig contains the per-connection protocol configuration. It is
// read-only once a socket is started; every state-machine call reads it
// through the Messenger.
type ProtocolConfig struct {
	// MaxPacketsInFlight is the number of unacknowledged packets a
	// connection may accumulate before it is dropped.
	MaxPacketsInFlight int `json:"max_packets_in_flight" yaml:"maxPacketsInFlight"`

	// IdleConnectionTimeout is how long a connection may go without
	// receiving anything before it is dropped.
	IdleConnectionTimeout time.Duration `json:"idle_connection_timeout" yaml:"idleConnectionTimeout"`

	// HeartbeatInterval is how long an established connection may go
	// without sending before an empty heartbeat is emitted. Zero disables
	// heartbeats.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeatInterval"`

	// FragmentSize is the maximum payload carried by a single wire packet.
	// Larger reliable payloads are split into fragments of this size.
	FragmentSize int `json:"fragment_size" yaml:"fragmentSize"`

	// MaxFragments is the maximum fragment count for one payload. The wire
	// count field is a single byte, so values above 255 are clamped.
	MaxFragments int `json:"max_fragments" yaml:"maxFragments"`

	// ResendRTTMultiplier scales the smoothed round-trip time into the
	// retransmission deadline for unacknowledged packets.
	ResendRTTMultiplier float64 `json:"resend_rtt_multiplier" yaml:"resendRTTMultiplier"`

	// MaxOrderingStreams is the number of independent ordering/sequencing
	// streams per connection.
	MaxOrderingStreams int `json:"max_ordering_streams" yaml:"maxOrderingStreams"`

	// MaxConnections caps the connection table. Zero means unlimited.
	MaxConnections int `json:"max_connections" yaml:"maxConnections"`

	// SocketEventBuffer is the capacity of the event channel handed to the
	// application.
	SocketEventBuffer int `json:"socket_event_buffer" yaml:"socketEventBuffer"`
}

// DefaultProtocolConfig returns the default protocol configuration.
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		MaxPacketsInFlight:    512,
		IdleConnectionTimeout: 5 * time.Second,
		HeartbeatInterval:     0,
		FragmentSize:          1024,
		MaxFragments:          255,
		ResendRTTMultiplier:   2.0,
		MaxOrderingStreams:    8,
		MaxConnections:        0,
		SocketEventBuffer:     1024,
	}
}
