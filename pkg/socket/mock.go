package socket

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
)

// SentDatagram records one datagram written through a mock transport.
type SentDatagram struct {
	Addr    net.Addr
	Payload []byte
}

// MockTransport is an in-memory core.Transport for testing. Two mocks
// linked with LinkMockTransports deliver each other's writes directly;
// DropFunc, when set, decides per datagram whether to simulate loss.
type MockTransport struct {
	// Local address the mock pretends to be bound to
	addr net.Addr

	// Processor for inbound datagrams
	processor core.DatagramProcessor

	// Linked peer receiving this mock's writes, nil for a loopback-less mock
	peer *MockTransport

	// DropFunc simulates loss: a true return discards the datagram.
	DropFunc func(payload []byte) bool

	// Metrics counters, updated atomically
	packetsSent     uint64
	packetsReceived uint64
	bytesSent       uint64
	bytesReceived   uint64
	errors          uint64

	// Control
	mu      sync.Mutex
	running bool
	sent    []SentDatagram
}

// Ensure MockTransport implements core.Transport
var _ core.Transport = (*MockTransport)(nil)

// NewMockTransport creates a mock transport claiming addr as its local
// address.
func NewMockTransport(addr net.Addr) *MockTransport {
	return &MockTransport{addr: addr}
}

// LinkMockTransports wires two mocks so each delivers its writes to the
// other.
func LinkMockTransports(a, b *MockTransport) {
	a.peer = b
	b.peer = a
}

// Start starts the mock transport.
func (m *MockTransport) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("transport already running")
	}
	if m.processor == nil {
		return fmt.Errorf("no datagram processor set")
	}
	m.running = true
	logging.Debugf("Mock transport started as %s", m.addr)
	return nil
}

// Stop stops the mock transport.
func (m *MockTransport) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// SetProcessor sets the consumer for inbound datagrams.
func (m *MockTransport) SetProcessor(processor core.DatagramProcessor) {
	m.processor = processor
}

// LocalAddr returns the address the mock claims to be bound to.
func (m *MockTransport) LocalAddr() net.Addr {
	return m.addr
}

// WriteTo records the datagram and, when linked, delivers it to the peer
// unless DropFunc discards it.
func (m *MockTransport) WriteTo(addr net.Addr, payload []byte) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("transport not running")
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.sent = append(m.sent, SentDatagram{Addr: addr, Payload: buf})
	m.mu.Unlock()

	atomic.AddUint64(&m.packetsSent, 1)
	atomic.AddUint64(&m.bytesSent, uint64(len(payload)))

	if m.DropFunc != nil && m.DropFunc(buf) {
		logging.Debugf("Mock transport dropped %d bytes to %s", len(buf), addr)
		return nil
	}
	if m.peer != nil {
		return m.peer.Deliver(m.addr, buf)
	}
	return nil
}

// Deliver injects one inbound datagram, as if it arrived from addr.
func (m *MockTransport) Deliver(addr net.Addr, payload []byte) error {
	m.mu.Lock()
	running := m.running
	processor := m.processor
	m.mu.Unlock()

	if !running {
		return fmt.Errorf("transport not running")
	}
	if processor == nil {
		return fmt.Errorf("no datagram processor set")
	}

	atomic.AddUint64(&m.packetsReceived, 1)
	atomic.AddUint64(&m.bytesReceived, uint64(len(payload)))

	if err := processor.ProcessDatagram(addr, payload); err != nil {
		atomic.AddUint64(&m.errors, 1)
		return err
	}
	return nil
}

// Sent returns a copy of every datagram written through the mock.
func (m *MockTransport) Sent() []SentDatagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentDatagram, len(m.sent))
	copy(out, m.sent)
	return out
}

// Metrics returns a snapshot of the transport counters.
func (m *MockTransport) Metrics() core.TransportMetrics {
	return core.TransportMetrics{
		PacketsSent:     atomic.LoadUint64(&m.packetsSent),
		PacketsReceived: atomic.LoadUint64(&m.packetsReceived),
		BytesSent:       atomic.LoadUint64(&m.bytesSent),
		BytesReceived:   atomic.LoadUint64(&m.bytesReceived),
		Errors:          atomic.LoadUint64(&m.errors),
	}
}
