// Package connection implements the per-peer connection state machine and
// the connection table driving the reliability engine.
package connection

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
	"github.com/irctrakz/rudp/pkg/reliability"
	"github.com/irctrakz/rudp/pkg/wire"
)

// ErrReceivedDataTooShort indicates an empty inbound payload. It is logged
// and the payload discarded; it never drops the connection by itself.
var ErrReceivedDataTooShort = errors.New("received data too short")

// metricsInterval is how often a connection emits a metrics snapshot.
const metricsInterval = time.Second

// outgoing describes one logical packet to put on the wire.
type outgoing struct {
	payload   []byte
	delivery  core.DeliveryGuarantee
	ordering  core.OrderingGuarantee
	stream    uint8
	heartbeat bool
}

// VirtualConnection is the per-remote-address protocol state. All methods
// must be called from a single goroutine; the owning table serializes
// access and nothing here blocks.
type VirtualConnection struct {
	remoteAddr net.Addr

	everSent     bool
	everReceived bool
	established  bool

	lastSent   time.Time
	lastHeard  time.Time
	lastMetric time.Time

	acks       *reliability.AcknowledgmentHandler
	congestion *reliability.CongestionHandler
	fragments  *reliability.Fragmentation
	metrics    *reliability.MetricsHandler
	ordering   *reliability.OrderingSystem
	sequencing *reliability.SequencingSystem

	// Outgoing per-stream arranging counters.
	orderedSeqs   []wire.SequenceNumber
	sequencedSeqs []wire.SequenceNumber

	// Sends refused by the congestion gate, drained on tick.
	deferred []outgoing
}

// NewVirtualConnection creates the state for a remote address. The
// creation time primes every clock so a fresh connection is neither
// dropped nor heartbeated immediately.
func NewVirtualConnection(config *core.ProtocolConfig, addr net.Addr, now time.Time) *VirtualConnection {
	streams := config.MaxOrderingStreams
	if streams <= 0 {
		streams = 1
	}
	return &VirtualConnection{
		remoteAddr:    addr,
		lastSent:      now,
		lastHeard:     now,
		lastMetric:    now,
		acks:          reliability.NewAcknowledgmentHandler(),
		congestion:    reliability.NewCongestionHandler(config.ResendRTTMultiplier),
		fragments:     reliability.NewFragmentation(config.FragmentSize, config.MaxFragments),
		metrics:       reliability.NewMetricsHandler(),
		ordering:      reliability.NewOrderingSystem(streams),
		sequencing:    reliability.NewSequencingSystem(streams),
		orderedSeqs:   make([]wire.SequenceNumber, streams),
		sequencedSeqs: make([]wire.SequenceNumber, streams),
	}
}

// RemoteAddr returns the remote address this connection tracks.
func (c *VirtualConnection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// IsEstablished reports whether the connection has both sent and received
// at least one packet. Monotonic for the life of the connection.
func (c *VirtualConnection) IsEstablished() bool {
	return c.established
}

// PacketsInFlight returns the number of unacknowledged packets.
func (c *VirtualConnection) PacketsInFlight() int {
	return c.acks.PendingCount()
}

// recordSend notes an outgoing packet; true means the connection just
// became established.
func (c *VirtualConnection) recordSend() bool {
	c.everSent = true
	return c.refreshEstablished()
}

// recordReceive notes an incoming packet; true means the connection just
// became established.
func (c *VirtualConnection) recordReceive() bool {
	c.everReceived = true
	return c.refreshEstablished()
}

func (c *VirtualConnection) refreshEstablished() bool {
	if !c.established && c.everSent && c.everReceived {
		c.established = true
		return true
	}
	return false
}

// ShouldDrop evaluates the drop predicate and, when it fires, emits the
// Timeout event (plus Disconnect if established). The caller removes the
// connection afterwards; Dropped is terminal.
func (c *VirtualConnection) ShouldDrop(m core.Messenger, now time.Time) bool {
	packetsOver := c.acks.PendingCount() > m.Config().MaxPacketsInFlight
	timedOut := now.Sub(c.lastHeard) >= m.Config().IdleConnectionTimeout

	if packetsOver {
		logging.Warnf("Dropping connection to %s: too many unacknowledged packets (%d)",
			c.remoteAddr, c.acks.PendingCount())
	} else if timedOut {
		logging.Warnf("Dropping connection to %s: nothing received for %s",
			c.remoteAddr, m.Config().IdleConnectionTimeout)
	}

	if !packetsOver && !timedOut {
		return false
	}

	m.SendEvent(core.NewTimeoutEvent(c.remoteAddr))
	if c.established {
		m.SendEvent(core.NewDisconnectEvent(c.remoteAddr))
	}
	return true
}

// ProcessPacket handles one inbound datagram: parses it, updates
// acknowledgment state, reassembles fragments, and emits one Packet event
// per released logical packet. Parse failures are logged and the payload
// discarded; the connection survives.
func (c *VirtualConnection) ProcessPacket(m core.Messenger, payload []byte, now time.Time) {
	if len(payload) == 0 {
		logging.Errorf("Error processing packet from %s: %v", c.remoteAddr, ErrReceivedDataTooShort)
		return
	}

	released, err := c.processIncoming(payload, now)
	if err != nil {
		logging.Errorf("Error processing incoming packet from %s: %v", c.remoteAddr, err)
		return
	}

	if c.recordReceive() {
		m.SendEvent(core.NewConnectEvent(c.remoteAddr))
	}

	for _, pkt := range released {
		m.SendEvent(core.NewPacketEvent(pkt))
	}
}

// ProcessEvent handles one outgoing user packet. Reliable sends refused by
// the congestion gate are queued and drained on the next ticks.
func (c *VirtualConnection) ProcessEvent(m core.Messenger, packet core.Packet, now time.Time) {
	if c.recordSend() {
		m.SendEvent(core.NewConnectEvent(c.remoteAddr))
	}

	out := outgoing{
		payload:  packet.Payload(),
		delivery: packet.Delivery(),
		ordering: packet.Ordering(),
		stream:   packet.Stream(),
	}

	// Back-pressure: the window refuses the send rather than blocking.
	if out.delivery == core.Reliable && !c.congestion.MaySend(c.acks.PendingCount()) {
		c.deferred = append(c.deferred, out)
		logging.WithFields(logrus.Fields{
			"addr":     c.remoteAddr.String(),
			"deferred": len(c.deferred),
		}).Debugf("Congestion window full, send deferred")
		return
	}

	if err := c.processOutgoing(m, out, nil, now); err != nil {
		logging.Errorf("Error occurred processing user packet for %s: %v", c.remoteAddr, err)
	}
}

// Update runs the periodic housekeeping tick: retransmit dropped packets,
// drain deferred sends, heartbeat, and emit the once-per-second metrics
// snapshot. The step order is fixed.
func (c *VirtualConnection) Update(m core.Messenger, now time.Time) {
	// (1) Resend everything the acknowledgment handler considers dropped,
	// with the original ordering metadata and item identifier.
	dropped := c.acks.GatherDropped(now, c.congestion.ResendThreshold())
	if len(dropped) > 0 {
		c.metrics.RecordLoss(len(dropped))
		// One loss signal per tick batch; per-packet signals would
		// collapse the window on a single burst.
		c.congestion.OnLoss()
	}
	for i := range dropped {
		record := &dropped[i]
		out := outgoing{
			payload: record.Payload,
			// A delivery guarantee is only tracked for reliable packets.
			delivery: core.Reliable,
			ordering: record.Ordering,
			stream:   record.Stream,
		}
		if err := c.processOutgoing(m, out, record, now); err != nil {
			logging.Errorf("Error occurred processing dropped packets for %s: %v", c.remoteAddr, err)
		}
	}

	// (2) Drain sends the congestion gate deferred, while the window allows.
	for len(c.deferred) > 0 && c.congestion.MaySend(c.acks.PendingCount()) {
		out := c.deferred[0]
		c.deferred = c.deferred[1:]
		if err := c.processOutgoing(m, out, nil, now); err != nil {
			logging.Errorf("Error occurred processing deferred packet for %s: %v", c.remoteAddr, err)
		}
	}

	// (3) Heartbeat when established, configured, and idle on the send side.
	if c.established {
		if interval := m.Config().HeartbeatInterval; interval > 0 && now.Sub(c.lastSent) >= interval {
			if err := c.processOutgoing(m, outgoing{heartbeat: true}, nil, now); err != nil {
				logging.Errorf("Error occurred processing heartbeat packet for %s: %v", c.remoteAddr, err)
			}
		}
	}

	// (4) Metrics snapshot, at most once per interval.
	if now.Sub(c.lastMetric) >= metricsInterval {
		m.SendEvent(core.NewMetricsEvent(c.remoteAddr, c.metrics.CalculateOutput()))
		c.lastMetric = now
	}
}

// processOutgoing turns one logical packet into wire packets, registers
// reliable ones with the acknowledgment handler, and dispatches them in
// generation order. reuse, when non-nil, is the drained record being
// retransmitted: its sequence number and arranging counter are kept so the
// peer treats the retransmission as the same logical item.
func (c *VirtualConnection) processOutgoing(m core.Messenger, out outgoing, reuse *reliability.SentPacket, now time.Time) error {
	ack := c.acks.LastRemoteSeq()
	ackBits := c.acks.AckBitfield()

	if out.heartbeat {
		header := wire.Header{
			Type:    wire.TypeHeartbeat,
			Seq:     c.acks.ConsumeSequence(),
			Ack:     ack,
			AckBits: ackBits,
		}
		c.dispatch(m, header.Encode(nil), now)
		return nil
	}

	orderSeq := c.nextOrderSeq(out.ordering, out.stream, reuse)

	if len(out.payload) <= c.fragments.FragmentSize() {
		header := wire.Header{
			Type:     wire.TypeData,
			Delivery: out.delivery,
			Ordering: out.ordering,
			Stream:   out.stream,
			Ack:      ack,
			AckBits:  ackBits,
			OrderSeq: orderSeq,
		}
		if out.delivery == core.Reliable {
			var reuseSeq *wire.SequenceNumber
			if reuse != nil {
				reuseSeq = &reuse.Seq
			}
			header.Seq = c.acks.RegisterOutgoing(wire.TypeData, out.payload, out.ordering, out.stream, orderSeq, reuseSeq, now)
		} else {
			header.Seq = c.acks.ConsumeSequence()
		}
		c.dispatch(m, header.Encode(out.payload), now)
		return nil
	}

	// Oversized payloads are fragmented; only reliable delivery can carry
	// them, since a lost fragment would otherwise lose the whole payload.
	if out.delivery != core.Reliable {
		return reliability.ErrPayloadTooLarge
	}
	if !c.fragments.CanSplit(len(out.payload)) {
		return reliability.ErrPayloadTooLarge
	}

	var reuseSeq *wire.SequenceNumber
	if reuse != nil {
		reuseSeq = &reuse.Seq
	}
	seq := c.acks.RegisterOutgoing(wire.TypeFragment, out.payload, out.ordering, out.stream, orderSeq, reuseSeq, now)

	fragments, err := c.fragments.Split(seq, out.payload)
	if err != nil {
		return err
	}
	for _, frag := range fragments {
		header := wire.Header{
			Type:      wire.TypeFragment,
			Delivery:  out.delivery,
			Ordering:  out.ordering,
			Stream:    out.stream,
			Seq:       seq,
			Ack:       ack,
			AckBits:   ackBits,
			OrderSeq:  orderSeq,
			GroupID:   frag.GroupID,
			FragIndex: frag.Index,
			FragTotal: frag.Total,
		}
		c.dispatch(m, header.Encode(frag.Body), now)
	}
	return nil
}

// nextOrderSeq returns the arranging counter for an outgoing packet,
// advancing the per-stream counter for fresh sends and reusing the stored
// one for retransmissions.
func (c *VirtualConnection) nextOrderSeq(ordering core.OrderingGuarantee, stream uint8, reuse *reliability.SentPacket) wire.SequenceNumber {
	if reuse != nil {
		return reuse.OrderSeq
	}
	idx := int(stream) % len(c.orderedSeqs)
	switch ordering {
	case core.Ordered:
		seq := c.orderedSeqs[idx]
		c.orderedSeqs[idx]++
		return seq
	case core.Sequenced:
		seq := c.sequencedSeqs[idx]
		c.sequencedSeqs[idx]++
		return seq
	default:
		return 0
	}
}

// dispatch sends one wire packet and updates the send-side clocks and
// counters.
func (c *VirtualConnection) dispatch(m core.Messenger, buf []byte, now time.Time) {
	m.SendPacket(c.remoteAddr, buf)
	c.metrics.RecordSent(len(buf))
	c.lastSent = now
}

// processIncoming parses one datagram and returns the logical packets it
// released toward the application.
func (c *VirtualConnection) processIncoming(payload []byte, now time.Time) ([]core.Packet, error) {
	header, body, err := wire.DecodeHeader(payload)
	if err != nil {
		return nil, err
	}

	c.metrics.RecordReceived(len(payload))
	c.lastHeard = now

	// Piggybacked acknowledgment data rides on every header.
	c.acks.ProcessIncoming(header.Ack, header.AckBits, now, func(record reliability.SentPacket, rtt time.Duration) {
		c.congestion.OnAck(rtt)
		c.metrics.RecordRTT(rtt)
	})

	switch header.Type {
	case wire.TypeHeartbeat:
		// Liveness and ack data only.
		c.acks.RecordReceived(header.Seq)
		return nil, nil

	case wire.TypeData:
		if header.Delivery == core.Reliable {
			if c.acks.IsDuplicate(header.Seq) {
				return nil, nil
			}
			c.acks.RecordReceived(header.Seq)
		}
		return c.arrange(header, body), nil

	case wire.TypeFragment:
		reassembled, done, err := c.fragments.Accept(reliability.Fragment{
			GroupID: header.GroupID,
			Index:   header.FragIndex,
			Total:   header.FragTotal,
			Body:    body,
		})
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, nil
		}
		// The group's sequence is acknowledged only once the whole
		// logical packet is here; a retransmitted group is a duplicate.
		if c.acks.IsDuplicate(header.Seq) {
			return nil, nil
		}
		c.acks.RecordReceived(header.Seq)
		return c.arrange(header, reassembled), nil

	default:
		return nil, wire.ErrUnknownPacketType
	}
}

// arrange routes a complete payload through its ordering guarantee and
// wraps everything released into application packets.
func (c *VirtualConnection) arrange(header wire.Header, payload []byte) []core.Packet {
	var released [][]byte
	switch header.Ordering {
	case core.Ordered:
		released = c.ordering.Stream(header.Stream).Arrange(header.OrderSeq, payload)
	case core.Sequenced:
		if item, ok := c.sequencing.Stream(header.Stream).Arrange(header.OrderSeq, payload); ok {
			released = [][]byte{item}
		}
	default:
		released = [][]byte{payload}
	}

	packets := make([]core.Packet, 0, len(released))
	for _, item := range released {
		packets = append(packets, core.NewReceived(c.remoteAddr, item, header.Delivery, header.Ordering, header.Stream))
	}
	return packets
}
