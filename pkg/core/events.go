package core

import "net"

// EventKind discriminates connection-level events delivered to the
// application.
type EventKind uint8

const (
	// ConnectEvent fires once a connection has both sent and received.
	ConnectEvent EventKind = iota

	// DisconnectEvent fires when an established connection is dropped.
	DisconnectEvent

	// TimeoutEvent fires when any connection is dropped, established or not.
	TimeoutEvent

	// PacketEvent carries one received application packet.
	PacketEvent

	// MetricsEvent carries the once-per-second metrics snapshot.
	MetricsEvent
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case ConnectEvent:
		return "connect"
	case DisconnectEvent:
		return "disconnect"
	case TimeoutEvent:
		return "timeout"
	case PacketEvent:
		return "packet"
	case MetricsEvent:
		return "metrics"
	default:
		return "unknown"
	}
}

// SocketEvent is a connection-level event. Kind selects which of the
// optional fields is populated: Packet for PacketEvent, Metrics for
// MetricsEvent. Addr is always set.
type SocketEvent struct {
	Kind    EventKind
	Addr    net.Addr
	Packet  Packet
	Metrics Metrics
}

// Address returns the remote address the event concerns.
func (e SocketEvent) Address() net.Addr { return e.Addr }

// NewConnectEvent builds a ConnectEvent for addr.
func NewConnectEvent(addr net.Addr) SocketEvent {
	return SocketEvent{Kind: ConnectEvent, Addr: addr}
}

// NewDisconnectEvent builds a DisconnectEvent for addr.
func NewDisconnectEvent(addr net.Addr) SocketEvent {
	return SocketEvent{Kind: DisconnectEvent, Addr: addr}
}

// NewTimeoutEvent builds a TimeoutEvent for addr.
func NewTimeoutEvent(addr net.Addr) SocketEvent {
	return SocketEvent{Kind: TimeoutEvent, Addr: addr}
}

// NewPacketEvent builds a PacketEvent carrying a received packet.
func NewPacketEvent(packet Packet) SocketEvent {
	return SocketEvent{Kind: PacketEvent, Addr: packet.Addr(), Packet: packet}
}

// NewMetricsEvent builds a MetricsEvent carrying a metrics snapshot.
func NewMetricsEvent(addr net.Addr, metrics Metrics) SocketEvent {
	return SocketEvent{Kind: MetricsEvent, Addr: addr, Metrics: metrics}
}
