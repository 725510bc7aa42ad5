package core

import "net"

// DeliveryGuarantee selects whether a sent message requires
// acknowledgment and retransmission.
type DeliveryGuarantee uint8

const (
	// Unreliable packets are fire-and-forget; they may arrive zero or one times.
	Unreliable DeliveryGuarantee = iota

	// Reliable packets are tracked until acknowledged and resent on loss.
	Reliable
)

// OrderingGuarantee selects how received messages are released to the
// application relative to their send order.
type OrderingGuarantee uint8

const (
	// NoOrdering releases packets in arrival order.
	NoOrdering OrderingGuarantee = iota

	// Sequenced releases a packet only if it is newer than the newest
	// packet released so far on its stream; older arrivals are discarded.
	Sequenced

	// Ordered releases packets strictly in send order, buffering gaps.
	Ordered
)

// DefaultStream is the stream used when the caller does not pick one.
const DefaultStream uint8 = 0

// Packet is a user-facing message: a payload bound for (or received from)
// a remote address, tagged with its delivery and ordering guarantees.
type Packet struct {
	addr     net.Addr
	payload  []byte
	delivery DeliveryGuarantee
	ordering OrderingGuarantee
	stream   uint8
}

// NewUnreliable creates an unreliable, unordered packet.
func NewUnreliable(addr net.Addr, payload []byte) Packet {
	return Packet{addr: addr, payload: payload, delivery: Unreliable, ordering: NoOrdering}
}

// NewUnreliableSequenced creates an unreliable packet that is discarded on
// arrival if a newer packet on the same stream was already released.
func NewUnreliableSequenced(addr net.Addr, payload []byte, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: Unreliable, ordering: Sequenced, stream: stream}
}

// NewReliable creates a reliable, unordered packet.
func NewReliable(addr net.Addr, payload []byte) Packet {
	return Packet{addr: addr, payload: payload, delivery: Reliable, ordering: NoOrdering}
}

// NewReliableSequenced creates a reliable packet released only when newer
// than the newest released packet on its stream.
func NewReliableSequenced(addr net.Addr, payload []byte, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: Reliable, ordering: Sequenced, stream: stream}
}

// NewReliableOrdered creates a reliable packet released strictly in send
// order on its stream.
func NewReliableOrdered(addr net.Addr, payload []byte, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: Reliable, ordering: Ordered, stream: stream}
}

// NewReceived builds the application-facing view of an inbound packet.
// Used by the connection layer when emitting PacketReceived events.
func NewReceived(addr net.Addr, payload []byte, delivery DeliveryGuarantee, ordering OrderingGuarantee, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: delivery, ordering: ordering, stream: stream}
}

// Addr returns the remote address the packet is bound for or came from.
func (p Packet) Addr() net.Addr { return p.addr }

// Payload returns the packet payload.
func (p Packet) Payload() []byte { return p.payload }

// Delivery returns the delivery guarantee.
func (p Packet) Delivery() DeliveryGuarantee { return p.delivery }

// Ordering returns the ordering guarantee.
func (p Packet) Ordering() OrderingGuarantee { return p.ordering }

// Stream returns the ordering/sequencing stream index.
func (p Packet) Stream() uint8 { return p.stream }
