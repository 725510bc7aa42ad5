package core

import "net"

// DatagramWriter sends raw datagrams to a remote address. The connection
// core never opens sockets; it writes through this boundary.
type DatagramWriter interface {
	// WriteTo sends one datagram to addr.
	WriteTo(addr net.Addr, payload []byte) error
}

// DatagramProcessor consumes raw inbound datagrams from a transport.
type DatagramProcessor interface {
	// ProcessDatagram handles one (address, payload) delivery.
	ProcessDatagram(addr net.Addr, payload []byte) error
}

// Transport is a running datagram endpoint.
type Transport interface {
	DatagramWriter

	// Start starts the transport.
	Start() error

	// Stop stops the transport.
	Stop() error

	// SetProcessor sets the consumer for inbound datagrams. Must be called
	// before Start.
	SetProcessor(processor DatagramProcessor)

	// LocalAddr returns the bound local address, or nil before Start.
	LocalAddr() net.Addr

	// Metrics returns counters for the transport.
	Metrics() TransportMetrics
}

// Messenger supplies each state-machine call with its configuration, the
// event sink, and the raw datagram sender.
type Messenger interface {
	// Config returns the protocol configuration.
	Config() *ProtocolConfig

	// SendEvent delivers a connection-level event to the application.
	SendEvent(event SocketEvent)

	// SendPacket sends raw wire bytes to addr.
	SendPacket(addr net.Addr, payload []byte)
}

// TransportMetrics contains counters for a datagram transport.
type TransportMetrics struct {
	// PacketsSent is the number of datagrams sent.
	PacketsSent uint64

	// PacketsReceived is the number of datagrams received.
	PacketsReceived uint64

	// BytesSent is the number of bytes sent.
	BytesSent uint64

	// BytesReceived is the number of bytes received.
	BytesReceived uint64

	// Errors is the number of send/receive errors encountered.
	Errors uint64
}
