package connection

import (
	"net"
	"time"

	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
)

// EventSink receives connection-level events from the manager.
type EventSink func(event core.SocketEvent)

// messenger is the core.Messenger handed to every state-machine call.
type messenger struct {
	config *core.ProtocolConfig
	sink   EventSink
	writer core.DatagramWriter
}

func (m *messenger) Config() *core.ProtocolConfig {
	return m.config
}

func (m *messenger) SendEvent(event core.SocketEvent) {
	m.sink(event)
}

func (m *messenger) SendPacket(addr net.Addr, payload []byte) {
	if err := m.writer.WriteTo(addr, payload); err != nil {
		logging.Errorf("Error sending to %s: %v", addr, err)
	}
}

// Manager owns the connection table. Connections are created implicitly on
// the first inbound datagram or the first outbound user packet for an
// unknown address, and removed when their drop predicate fires. Not safe
// for concurrent use; the socket's dispatch loop serializes all calls.
type Manager struct {
	messenger   *messenger
	connections map[string]*VirtualConnection
}

// NewManager creates an empty connection table writing through writer and
// delivering events through sink.
func NewManager(config *core.ProtocolConfig, writer core.DatagramWriter, sink EventSink) *Manager {
	return &Manager{
		messenger: &messenger{
			config: config,
			sink:   sink,
			writer: writer,
		},
		connections: make(map[string]*VirtualConnection),
	}
}

// ProcessDatagram routes one inbound datagram to its connection, creating
// the connection if the address is new and the table has room.
func (mg *Manager) ProcessDatagram(addr net.Addr, payload []byte, now time.Time) {
	conn := mg.lookup(addr, now)
	if conn == nil {
		return
	}
	conn.ProcessPacket(mg.messenger, payload, now)
}

// ProcessUserPacket routes one outbound user packet to its connection,
// creating the connection if the address is new and the table has room.
func (mg *Manager) ProcessUserPacket(packet core.Packet, now time.Time) {
	conn := mg.lookup(packet.Addr(), now)
	if conn == nil {
		return
	}
	conn.ProcessEvent(mg.messenger, packet, now)
}

// Update ticks every connection and removes the ones whose drop predicate
// fires. Call it at the socket's polling cadence.
func (mg *Manager) Update(now time.Time) {
	for key, conn := range mg.connections {
		conn.Update(mg.messenger, now)
		if conn.ShouldDrop(mg.messenger, now) {
			delete(mg.connections, key)
		}
	}
}

// Count returns the number of tracked connections.
func (mg *Manager) Count() int {
	return len(mg.connections)
}

// Connection returns the connection for addr, or nil.
func (mg *Manager) Connection(addr net.Addr) *VirtualConnection {
	return mg.connections[addr.String()]
}

// lookup returns the connection for addr, creating it when new. A nil
// return means the table is at its configured capacity.
func (mg *Manager) lookup(addr net.Addr, now time.Time) *VirtualConnection {
	key := addr.String()
	if conn, ok := mg.connections[key]; ok {
		return conn
	}
	if max := mg.messenger.config.MaxConnections; max > 0 && len(mg.connections) >= max {
		logging.Warnf("Connection table full (%d), refusing %s", max, addr)
		return nil
	}
	conn := NewVirtualConnection(mg.messenger.config, addr, now)
	mg.connections[key] = conn
	logging.Debugf("Tracking new connection to %s", addr)
	return conn
}
