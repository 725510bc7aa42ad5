// Package reliability implements the per-connection reliability engine:
// acknowledgment tracking, congestion control, fragmentation/reassembly,
// metrics aggregation, and the ordering/sequencing streams. All types in
// this package are single-threaded; the owning connection serializes
// access.
package reliability

import (
	"sort"
	"time"

	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/wire"
)

// receivedBufferSize is the size of the ring remembering recently received
// remote sequence numbers, used for duplicate suppression and for building
// outgoing ack bitfields. Must comfortably exceed the ack bitfield width.
const receivedBufferSize = 1024

// SentPacket is the record of one sent packet awaiting acknowledgment.
// The handler owns it from registration until it is acked or drained as
// dropped; a drained record belongs to the caller that retransmits it.
type SentPacket struct {
	Seq      wire.SequenceNumber
	Payload  []byte
	SentAt   time.Time
	Delivery core.DeliveryGuarantee
	Ordering core.OrderingGuarantee
	Stream   uint8
	Type     wire.PacketType

	// OrderSeq is the per-stream arranging counter the packet was sent
	// with; a retransmission must reuse it.
	OrderSeq wire.SequenceNumber
}

// receivedSlot remembers one received remote sequence number. The stored
// sequence disambiguates ring collisions.
type receivedSlot struct {
	seq wire.SequenceNumber
	set bool
}

// AcknowledgmentHandler tracks sent packets awaiting acknowledgment and
// the remote sequence numbers needed to acknowledge the peer.
type AcknowledgmentHandler struct {
	nextSeq       wire.SequenceNumber
	lastRemoteSeq wire.SequenceNumber
	seenRemote    bool
	received      [receivedBufferSize]receivedSlot
	pending       map[wire.SequenceNumber]SentPacket
}

// NewAcknowledgmentHandler creates an empty handler.
func NewAcknowledgmentHandler() *AcknowledgmentHandler {
	return &AcknowledgmentHandler{
		pending: make(map[wire.SequenceNumber]SentPacket),
	}
}

// RegisterOutgoing assigns a sequence number to an outgoing packet, stores
// its record, and returns the sequence for header encoding. When reuseSeq
// is non-nil the record is re-registered under that sequence instead
// (retransmission of the same logical item). Unreliable packets are not
// registered; callers must not pass them here.
func (a *AcknowledgmentHandler) RegisterOutgoing(packetType wire.PacketType, payload []byte, ordering core.OrderingGuarantee, stream uint8, orderSeq wire.SequenceNumber, reuseSeq *wire.SequenceNumber, now time.Time) wire.SequenceNumber {
	seq := a.nextSeq
	if reuseSeq != nil {
		seq = *reuseSeq
	} else {
		a.nextSeq++
	}

	a.pending[seq] = SentPacket{
		Seq:      seq,
		Payload:  payload,
		SentAt:   now,
		Delivery: core.Reliable,
		Ordering: ordering,
		Stream:   stream,
		Type:     packetType,
		OrderSeq: orderSeq,
	}
	return seq
}

// NextSequence returns the sequence number the next registered packet will
// get. Unreliable packets consume a sequence number too, via ConsumeSequence.
func (a *AcknowledgmentHandler) NextSequence() wire.SequenceNumber {
	return a.nextSeq
}

// ConsumeSequence assigns a sequence number without storing a record, for
// packets that need no acknowledgment (unreliable data, heartbeats).
func (a *AcknowledgmentHandler) ConsumeSequence() wire.SequenceNumber {
	seq := a.nextSeq
	a.nextSeq++
	return seq
}

// RecordReceived remembers a remote sequence number so it is acknowledged
// by future outgoing headers and so duplicates can be suppressed.
func (a *AcknowledgmentHandler) RecordReceived(seq wire.SequenceNumber) {
	a.received[int(seq)%receivedBufferSize] = receivedSlot{seq: seq, set: true}
	if !a.seenRemote || wire.SequenceGreaterThan(seq, a.lastRemoteSeq) {
		a.lastRemoteSeq = seq
		a.seenRemote = true
	}
}

// IsDuplicate reports whether a remote sequence number was already
// recorded as received.
func (a *AcknowledgmentHandler) IsDuplicate(seq wire.SequenceNumber) bool {
	slot := a.received[int(seq)%receivedBufferSize]
	return slot.set && slot.seq == seq
}

// LastRemoteSeq returns the newest remote sequence number seen, for the
// ack field of outgoing headers.
func (a *AcknowledgmentHandler) LastRemoteSeq() wire.SequenceNumber {
	return a.lastRemoteSeq
}

// AckBitfield builds the bitmask acknowledging the 32 sequence numbers
// preceding LastRemoteSeq: bit i set means (lastRemoteSeq - i - 1) was
// received.
func (a *AcknowledgmentHandler) AckBitfield() uint32 {
	var bits uint32
	if !a.seenRemote {
		return 0
	}
	for i := 0; i < wire.AckBitfieldSize; i++ {
		seq := a.lastRemoteSeq - wire.SequenceNumber(i) - 1
		if a.IsDuplicate(seq) {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// ProcessIncoming applies the acknowledgment data of one incoming header.
// Every newly acknowledged record is removed exactly once and passed to
// onAck together with its round-trip time. Sequence numbers with no
// pending record are ignored.
func (a *AcknowledgmentHandler) ProcessIncoming(ack wire.SequenceNumber, ackBits uint32, now time.Time, onAck func(SentPacket, time.Duration)) {
	a.acknowledge(ack, now, onAck)
	for i := 0; i < wire.AckBitfieldSize; i++ {
		if ackBits&(1<<uint(i)) != 0 {
			a.acknowledge(ack-wire.SequenceNumber(i)-1, now, onAck)
		}
	}
}

func (a *AcknowledgmentHandler) acknowledge(seq wire.SequenceNumber, now time.Time, onAck func(SentPacket, time.Duration)) {
	record, ok := a.pending[seq]
	if !ok {
		return
	}
	delete(a.pending, seq)
	if onAck != nil {
		onAck(record, now.Sub(record.SentAt))
	}
}

// GatherDropped removes and returns every pending record older than the
// resend threshold, oldest first. Ownership of the returned records moves
// to the caller; a record is never returned twice unless re-registered.
func (a *AcknowledgmentHandler) GatherDropped(now time.Time, resendThreshold time.Duration) []SentPacket {
	var dropped []SentPacket
	for seq, record := range a.pending {
		if now.Sub(record.SentAt) >= resendThreshold {
			dropped = append(dropped, record)
			delete(a.pending, seq)
		}
	}
	// Map iteration order is random; resend oldest logical packets first.
	sort.Slice(dropped, func(i, j int) bool {
		return wire.SequenceLessThan(dropped[i].Seq, dropped[j].Seq)
	})
	return dropped
}

// PendingCount returns the number of packets currently in flight.
func (a *AcknowledgmentHandler) PendingCount() int {
	return len(a.pending)
}
