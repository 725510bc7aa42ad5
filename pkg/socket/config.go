package socket

import "time"

// Config contains configuration for the datagram transport and the
// socket's dispatch loop.
type Config struct {
	// BindAddress is the local UDP address to bind, host:port. Port 0
	// lets the OS pick.
	BindAddress string

	// ReadBufferSize is the receive buffer for one datagram. Datagrams
	// longer than this are truncated by the OS, so it must exceed the
	// fragment size plus header overhead.
	ReadBufferSize int

	// TOS sets the IPv4 TOS/DSCP byte on outgoing datagrams. 0 leaves
	// the OS default.
	TOS int

	// PollingInterval is the cadence of the housekeeping tick driving
	// retransmission, heartbeats and metrics.
	PollingInterval time.Duration

	// Enable debug logging
	Debug bool
}

// DefaultConfig returns the default configuration for the socket.
func DefaultConfig() Config {
	return Config{
		BindAddress:     "0.0.0.0:0",
		ReadBufferSize:  1500,
		TOS:             0,
		PollingInterval: 10 * time.Millisecond,
		Debug:           false,
	}
}
