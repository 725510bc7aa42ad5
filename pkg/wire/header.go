package wire

import (
	"encoding/binary"
	"errors"

	"github.com/irctrakz/rudp/pkg/core"
)

// PacketType identifies what a wire packet carries.
type PacketType uint8

const (
	// TypeData is a complete application payload.
	TypeData PacketType = iota

	// TypeHeartbeat is an empty liveness packet; it still carries ack data.
	TypeHeartbeat

	// TypeFragment is one piece of an oversized payload.
	TypeFragment
)

// Header sizes in bytes. Fragment packets carry the standard header plus
// the fragment extension.
const (
	HeaderSize         = 14
	FragmentHeaderSize = HeaderSize + 4
)

// AckBitfieldSize is the number of sequence numbers before Ack that the
// AckBits field can acknowledge.
const AckBitfieldSize = 32

var (
	// ErrHeaderTooShort indicates a datagram shorter than its header.
	ErrHeaderTooShort = errors.New("received data too short for header")

	// ErrUnknownPacketType indicates an unrecognized packet type byte.
	ErrUnknownPacketType = errors.New("unknown packet type")
)

// Header is the decoded wire header. GroupID, FragIndex and FragTotal are
// meaningful only for TypeFragment packets.
type Header struct {
	Type     PacketType
	Delivery core.DeliveryGuarantee
	Ordering core.OrderingGuarantee
	Stream   uint8

	// Seq is this packet's sequence number. Fragments of one payload all
	// carry the sequence number of the logical packet they belong to.
	Seq SequenceNumber

	// Ack is the newest remote sequence number seen by the sender, and
	// AckBits acknowledges the 32 sequence numbers preceding it: bit i set
	// means sequence (Ack - i - 1) was received.
	Ack     SequenceNumber
	AckBits uint32

	// OrderSeq is the per-stream arranging counter for Ordered and
	// Sequenced packets. Independent of Seq, which is connection-global.
	OrderSeq SequenceNumber

	GroupID   SequenceNumber
	FragIndex uint8
	FragTotal uint8
}

// Size returns the encoded header size for this packet type.
func (h Header) Size() int {
	if h.Type == TypeFragment {
		return FragmentHeaderSize
	}
	return HeaderSize
}

// Encode serializes the header followed by payload into a fresh buffer.
func (h Header) Encode(payload []byte) []byte {
	buf := make([]byte, h.Size()+len(payload))
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Delivery)
	buf[2] = byte(h.Ordering)
	buf[3] = h.Stream
	binary.BigEndian.PutUint16(buf[4:6], h.Seq)
	binary.BigEndian.PutUint16(buf[6:8], h.Ack)
	binary.BigEndian.PutUint32(buf[8:12], h.AckBits)
	binary.BigEndian.PutUint16(buf[12:14], h.OrderSeq)
	if h.Type == TypeFragment {
		binary.BigEndian.PutUint16(buf[14:16], h.GroupID)
		buf[16] = h.FragIndex
		buf[17] = h.FragTotal
	}
	copy(buf[h.Size():], payload)
	return buf
}

// DecodeHeader parses the header of one datagram and returns it together
// with the remaining payload bytes. The payload slice aliases data.
func DecodeHeader(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, ErrHeaderTooShort
	}

	h := Header{
		Type:     PacketType(data[0]),
		Delivery: core.DeliveryGuarantee(data[1]),
		Ordering: core.OrderingGuarantee(data[2]),
		Stream:   data[3],
		Seq:      binary.BigEndian.Uint16(data[4:6]),
		Ack:      binary.BigEndian.Uint16(data[6:8]),
		AckBits:  binary.BigEndian.Uint32(data[8:12]),
		OrderSeq: binary.BigEndian.Uint16(data[12:14]),
	}

	switch h.Type {
	case TypeData, TypeHeartbeat:
		return h, data[HeaderSize:], nil
	case TypeFragment:
		if len(data) < FragmentHeaderSize {
			return Header{}, nil, ErrHeaderTooShort
		}
		h.GroupID = binary.BigEndian.Uint16(data[14:16])
		h.FragIndex = data[16]
		h.FragTotal = data[17]
		return h, data[FragmentHeaderSize:], nil
	default:
		return Header{}, nil, ErrUnknownPacketType
	}
}
