// Package socket ties a datagram transport to the connection table and
// exposes the event-driven API: Send for outbound packets, Events for
// everything the protocol reports back.
package socket

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/irctrakz/rudp/pkg/connection"
	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
)

// datagram is one inbound delivery queued for the dispatch loop.
type datagram struct {
	addr    net.Addr
	payload []byte
}

// Socket is the application-facing endpoint. All protocol state is owned
// by a single dispatch goroutine; Send and the transport's listen loop
// only enqueue work, so no protocol structure needs locking.
type Socket struct {
	// Configuration
	config    Config
	protocol  core.ProtocolConfig
	transport core.Transport
	manager   *connection.Manager

	// Queues into the dispatch loop
	inbound chan datagram
	sends   chan core.Packet

	// Events out to the application
	events chan core.SocketEvent

	// Control
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Ensure Socket consumes transport deliveries
var _ core.DatagramProcessor = (*Socket)(nil)

// NewSocket creates a socket on an existing transport. Used directly by
// tests with mock transports; production callers usually go through Bind.
func NewSocket(transport core.Transport, config Config, protocol core.ProtocolConfig) *Socket {
	buffer := protocol.SocketEventBuffer
	if buffer <= 0 {
		buffer = core.DefaultProtocolConfig().SocketEventBuffer
	}
	s := &Socket{
		config:    config,
		protocol:  protocol,
		transport: transport,
		inbound:   make(chan datagram, buffer),
		sends:     make(chan core.Packet, buffer),
		events:    make(chan core.SocketEvent, buffer),
		stopCh:    make(chan struct{}),
	}
	s.manager = connection.NewManager(&s.protocol, transport, s.queueEvent)
	transport.SetProcessor(s)
	return s
}

// Bind creates a socket on a UDP transport bound to address.
func Bind(address string, protocol core.ProtocolConfig) (*Socket, error) {
	config := DefaultConfig()
	config.BindAddress = address
	return BindWith(config, protocol)
}

// BindWith creates a socket on a UDP transport with full transport
// configuration.
func BindWith(config Config, protocol core.ProtocolConfig) (*Socket, error) {
	if config.ReadBufferSize < protocol.FragmentSize+64 {
		return nil, fmt.Errorf("read buffer %d too small for fragment size %d",
			config.ReadBufferSize, protocol.FragmentSize)
	}
	return NewSocket(NewUDPTransport(config), config, protocol), nil
}

// Start starts the transport and the dispatch loop.
func (s *Socket) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("socket already running")
	}
	if err := s.transport.Start(); err != nil {
		return err
	}

	s.running = true
	s.wg.Add(1)
	go s.dispatchLoop()

	logging.Infof("Socket started on %s", s.transport.LocalAddr())
	return nil
}

// Stop stops the dispatch loop and the transport. Queued events may be
// lost; connections are not torn down gracefully.
func (s *Socket) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopCh)
	s.wg.Wait()
	s.running = false

	err := s.transport.Stop()
	logging.Infof("Socket stopped")
	return err
}

// Send queues one packet for delivery. It fails when the socket is
// stopped or the send queue is full; it never blocks the caller.
func (s *Socket) Send(packet core.Packet) error {
	select {
	case s.sends <- packet:
		return nil
	case <-s.stopCh:
		return fmt.Errorf("socket stopped")
	default:
		return fmt.Errorf("send queue full")
	}
}

// Events returns the channel carrying connection events, received packets
// and metrics snapshots.
func (s *Socket) Events() <-chan core.SocketEvent {
	return s.events
}

// LocalAddr returns the transport's bound address.
func (s *Socket) LocalAddr() net.Addr {
	return s.transport.LocalAddr()
}

// TransportMetrics returns the raw datagram counters of the transport.
func (s *Socket) TransportMetrics() core.TransportMetrics {
	return s.transport.Metrics()
}

// ProcessDatagram queues one inbound datagram from the transport's listen
// goroutine. A full queue drops the datagram; the protocol treats that
// like network loss.
func (s *Socket) ProcessDatagram(addr net.Addr, payload []byte) error {
	select {
	case s.inbound <- datagram{addr: addr, payload: payload}:
		return nil
	case <-s.stopCh:
		return fmt.Errorf("socket stopped")
	default:
		return fmt.Errorf("inbound queue full")
	}
}

// dispatchLoop owns the connection table: it applies inbound datagrams,
// user sends and the housekeeping tick strictly one at a time.
func (s *Socket) dispatchLoop() {
	defer s.wg.Done()

	interval := s.config.PollingInterval
	if interval <= 0 {
		interval = DefaultConfig().PollingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case d := <-s.inbound:
			s.manager.ProcessDatagram(d.addr, d.payload, time.Now())
		case packet := <-s.sends:
			s.manager.ProcessUserPacket(packet, time.Now())
		case <-ticker.C:
			s.manager.Update(time.Now())
		}
	}
}

// queueEvent hands one event to the application without ever blocking the
// dispatch loop. Overflow drops the event.
func (s *Socket) queueEvent(event core.SocketEvent) {
	select {
	case s.events <- event:
	default:
		logging.Warnf("Event queue full, dropping %s event for %s", event.Kind, event.Addr)
	}
}
