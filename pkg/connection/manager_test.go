package connection

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/irctrakz/rudp/pkg/core"
)

// writerFunc adapts a function to core.DatagramWriter.
type writerFunc func(addr net.Addr, payload []byte) error

func (f writerFunc) WriteTo(addr net.Addr, payload []byte) error {
	return f(addr, payload)
}

func discardWriter() core.DatagramWriter {
	return writerFunc(func(net.Addr, []byte) error { return nil })
}

// TestManagerCreatesOnFirstContact tests implicit connection creation for
// both inbound datagrams and outbound user packets.
func TestManagerCreatesOnFirstContact(t *testing.T) {
	config := core.DefaultProtocolConfig()
	var events []core.SocketEvent
	mg := NewManager(&config, discardWriter(), func(ev core.SocketEvent) {
		events = append(events, ev)
	})
	now := time.Now()

	mg.ProcessDatagram(testAddr(9001), inboundData(0, []byte("hi")), now)
	if mg.Count() != 1 {
		t.Fatalf("Expected 1 connection after inbound, got %d", mg.Count())
	}

	mg.ProcessUserPacket(core.NewReliable(testAddr(9002), []byte("out")), now)
	if mg.Count() != 2 {
		t.Fatalf("Expected 2 connections after outbound, got %d", mg.Count())
	}

	// Same address reuses its connection.
	mg.ProcessDatagram(testAddr(9001), inboundData(1, []byte("again")), now)
	if mg.Count() != 2 {
		t.Fatalf("Expected address reuse, got %d connections", mg.Count())
	}
}

// TestManagerCapacity tests the connection cap: new addresses past the
// limit are refused, known addresses still work.
func TestManagerCapacity(t *testing.T) {
	config := core.DefaultProtocolConfig()
	config.MaxConnections = 1
	var events []core.SocketEvent
	mg := NewManager(&config, discardWriter(), func(ev core.SocketEvent) {
		events = append(events, ev)
	})
	now := time.Now()

	mg.ProcessDatagram(testAddr(9001), inboundData(0, []byte("a")), now)
	mg.ProcessDatagram(testAddr(9002), inboundData(0, []byte("b")), now)
	if mg.Count() != 1 {
		t.Fatalf("Expected cap of 1, got %d connections", mg.Count())
	}
	if mg.Connection(testAddr(9002)) != nil {
		t.Error("Refused address still entered the table")
	}
	if mg.Connection(testAddr(9001)) == nil {
		t.Error("Known address lost")
	}
}

// TestManagerRemovesDropped tests that the tick removes connections whose
// drop predicate fires and emits the timeout event.
func TestManagerRemovesDropped(t *testing.T) {
	config := core.DefaultProtocolConfig()
	var events []core.SocketEvent
	mg := NewManager(&config, discardWriter(), func(ev core.SocketEvent) {
		events = append(events, ev)
	})
	now := time.Now()

	mg.ProcessDatagram(testAddr(9001), inboundData(0, []byte("hi")), now)

	mg.Update(now.Add(config.IdleConnectionTimeout / 2))
	if mg.Count() != 1 {
		t.Fatalf("Connection removed before timeout")
	}

	mg.Update(now.Add(config.IdleConnectionTimeout))
	if mg.Count() != 0 {
		t.Fatalf("Expected connection removed, got %d", mg.Count())
	}

	var timeouts int
	for _, ev := range events {
		if ev.Kind == core.TimeoutEvent {
			timeouts++
		}
	}
	if timeouts != 1 {
		t.Errorf("Expected 1 timeout event, got %d", timeouts)
	}
}

// TestManagerLoopback wires two managers back to back and runs a reliable
// exchange through real wire bytes in both directions.
func TestManagerLoopback(t *testing.T) {
	configA := core.DefaultProtocolConfig()
	configB := core.DefaultProtocolConfig()
	addrA := testAddr(9001)
	addrB := testAddr(9002)
	now := time.Now()

	var a, b *Manager
	var eventsA, eventsB []core.SocketEvent

	// Each manager's writer delivers straight into the peer. The sender's
	// own address is fixed, so the peer keys the connection correctly.
	a = NewManager(&configA, writerFunc(func(_ net.Addr, payload []byte) error {
		b.ProcessDatagram(addrA, payload, now)
		return nil
	}), func(ev core.SocketEvent) { eventsA = append(eventsA, ev) })
	b = NewManager(&configB, writerFunc(func(_ net.Addr, payload []byte) error {
		a.ProcessDatagram(addrB, payload, now)
		return nil
	}), func(ev core.SocketEvent) { eventsB = append(eventsB, ev) })

	a.ProcessUserPacket(core.NewReliableOrdered(addrB, []byte("ping"), 0), now)
	b.ProcessUserPacket(core.NewReliableOrdered(addrA, []byte("pong"), 0), now)

	var gotB, gotA [][]byte
	for _, ev := range eventsB {
		if ev.Kind == core.PacketEvent {
			gotB = append(gotB, ev.Packet.Payload())
		}
	}
	for _, ev := range eventsA {
		if ev.Kind == core.PacketEvent {
			gotA = append(gotA, ev.Packet.Payload())
		}
	}
	if len(gotB) != 1 || !bytes.Equal(gotB[0], []byte("ping")) {
		t.Fatalf("Peer B expected ping, got %v", gotB)
	}
	if len(gotA) != 1 || !bytes.Equal(gotA[0], []byte("pong")) {
		t.Fatalf("Peer A expected pong, got %v", gotA)
	}

	// The pong carried an ack for the ping.
	if conn := a.Connection(addrB); conn == nil || conn.PacketsInFlight() != 0 {
		t.Errorf("Ping not acknowledged by return traffic")
	}

	// Both sides sent and received, so both report established.
	if !a.Connection(addrB).IsEstablished() || !b.Connection(addrA).IsEstablished() {
		t.Error("Expected both ends established")
	}
}
