package socket

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
)

// readDeadline bounds each blocking read so the listen loop notices stop
// requests.
const readDeadline = 500 * time.Millisecond

// UDPTransport is the real datagram endpoint. It owns one UDP socket and
// a listen goroutine delivering datagrams to the configured processor.
type UDPTransport struct {
	// Configuration
	config Config

	// Processor for inbound datagrams
	processor core.DatagramProcessor

	// Metrics counters, updated atomically
	packetsSent     uint64
	packetsReceived uint64
	bytesSent       uint64
	bytesReceived   uint64
	errors          uint64

	conn net.PacketConn

	// Control
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Ensure UDPTransport implements core.Transport
var _ core.Transport = (*UDPTransport)(nil)

// NewUDPTransport creates a transport bound per config once started.
func NewUDPTransport(config Config) *UDPTransport {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	return &UDPTransport{
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start binds the UDP socket and starts the listen loop.
func (t *UDPTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("transport already running")
	}
	if t.processor == nil {
		return fmt.Errorf("no datagram processor set")
	}

	conn, err := net.ListenPacket("udp", t.config.BindAddress)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %v", t.config.BindAddress, err)
	}
	t.conn = conn

	if t.config.TOS > 0 {
		if err := ipv4.NewPacketConn(conn).SetTOS(t.config.TOS); err != nil {
			// Not fatal: some platforms refuse TOS on unprivileged sockets.
			logging.Warnf("Failed to set TOS 0x%02x: %v", t.config.TOS, err)
		}
	}

	t.running = true
	t.wg.Add(1)
	go t.listenLoop()

	logging.Debugf("UDP transport listening on %s", conn.LocalAddr())
	return nil
}

// Stop stops the listen loop and closes the socket.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)
	t.wg.Wait()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.running = false

	logging.Debugf("UDP transport stopped")
	return nil
}

// SetProcessor sets the consumer for inbound datagrams. Must be called
// before Start.
func (t *UDPTransport) SetProcessor(processor core.DatagramProcessor) {
	t.processor = processor
}

// LocalAddr returns the bound address, or nil before Start.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// WriteTo sends one datagram to addr.
func (t *UDPTransport) WriteTo(addr net.Addr, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("transport not running")
	}

	n, err := conn.WriteTo(payload, addr)
	if err != nil {
		atomic.AddUint64(&t.errors, 1)
		return err
	}
	atomic.AddUint64(&t.packetsSent, 1)
	atomic.AddUint64(&t.bytesSent, uint64(n))
	return nil
}

// Metrics returns a snapshot of the transport counters.
func (t *UDPTransport) Metrics() core.TransportMetrics {
	return core.TransportMetrics{
		PacketsSent:     atomic.LoadUint64(&t.packetsSent),
		PacketsReceived: atomic.LoadUint64(&t.packetsReceived),
		BytesSent:       atomic.LoadUint64(&t.bytesSent),
		BytesReceived:   atomic.LoadUint64(&t.bytesReceived),
		Errors:          atomic.LoadUint64(&t.errors),
	}
}

// listenLoop reads datagrams until stopped, delivering each to the
// processor. Read errors other than timeouts are counted and logged.
func (t *UDPTransport) listenLoop() {
	defer t.wg.Done()

	buf := make([]byte, t.config.ReadBufferSize)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			logging.Errorf("Failed to set read deadline: %v", err)
			return
		}

		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-t.stopCh:
				return
			default:
			}
			atomic.AddUint64(&t.errors, 1)
			logging.Errorf("Read error: %v", err)
			continue
		}

		atomic.AddUint64(&t.packetsReceived, 1)
		atomic.AddUint64(&t.bytesReceived, uint64(n))

		payload := make([]byte, n)
		copy(payload, buf[:n])
		if err := t.processor.ProcessDatagram(addr, payload); err != nil {
			atomic.AddUint64(&t.errors, 1)
			logging.Errorf("Failed to process datagram from %s: %v", addr, err)
		}

		if t.config.Debug {
			logging.Debugf("UDP transport received %d bytes from %s", n, addr)
		}
	}
}
