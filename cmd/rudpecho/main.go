// Command rudpecho runs an echo endpoint over the reliable UDP transport.
// In server mode it echoes every received payload back with the same
// guarantees; with -connect it acts as a client sending test messages.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/irctrakz/rudp/pkg/config"
	"github.com/irctrakz/rudp/pkg/core"
	"github.com/irctrakz/rudp/pkg/logging"
	"github.com/irctrakz/rudp/pkg/socket"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	listen := flag.String("listen", "", "bind address, overrides the config")
	connect := flag.String("connect", "", "run as client against this server address")
	message := flag.String("message", "hello", "client message payload")
	count := flag.Int("count", 10, "client message count")
	flag.Parse()

	// Debug logging toggle via DEBUG env (truthy parser)
	dval := strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG")))
	debugOn := dval == "1" || dval == "true" || dval == "yes" || dval == "on"
	metricsEnabled := strings.TrimSpace(os.Getenv("METRICS_LOG")) != ""

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if *listen != "" {
		cfg.Socket.BindAddress = *listen
	}
	if *connect != "" && *listen == "" {
		// Clients take an ephemeral port unless told otherwise.
		cfg.Socket.BindAddress = "0.0.0.0:0"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		log.Fatalf("logging: %v", err)
	}
	if debugOn {
		logging.SetLevel(logging.DebugLevel)
		logging.Infof("DEBUG enabled: verbose logging")
	}

	sock, err := socket.BindWith(cfg.Socket.ToSocketConfig(), cfg.Protocol.ToProtocolConfig())
	if err != nil {
		log.Fatalf("socket: %v", err)
	}
	if err := sock.Start(); err != nil {
		log.Fatalf("socket start: %v", err)
	}
	defer sock.Stop()

	if *connect != "" {
		runClient(sock, *connect, *message, *count)
		return
	}
	runServer(sock, metricsEnabled)
}

// runServer echoes every received payload back to its sender until the
// process is signalled.
func runServer(sock *socket.Socket, metricsEnabled bool) {
	logging.Infof("Echo server on %s", sock.LocalAddr())

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigc:
			logging.Infof("Shutting down")
			return
		case ev := <-sock.Events():
			switch ev.Kind {
			case core.ConnectEvent:
				logging.Infof("Connected: %s", ev.Address())
			case core.DisconnectEvent:
				logging.Infof("Disconnected: %s", ev.Address())
			case core.TimeoutEvent:
				logging.Warnf("Timed out: %s", ev.Address())
			case core.PacketEvent:
				p := ev.Packet
				echo := core.NewReceived(p.Addr(), p.Payload(), p.Delivery(), p.Ordering(), p.Stream())
				if err := sock.Send(echo); err != nil {
					logging.Errorf("Echo to %s failed: %v", p.Addr(), err)
				}
			case core.MetricsEvent:
				if metricsEnabled {
					m := ev.Metrics
					logging.Infof("metrics %s: sent=%d recv=%d tx=%.2fKB/s rx=%.2fKB/s loss=%.2f rtt=%.1fms",
						ev.Address(), m.SentPackets, m.ReceivedPackets,
						m.SentKBps, m.ReceiveKBps, m.PacketLoss, m.RTTMillis)
				}
			}
		}
	}
}

// runClient sends count reliable ordered messages and waits for their
// echoes.
func runClient(sock *socket.Socket, server, message string, count int) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		log.Fatalf("resolve %s: %v", server, err)
	}
	logging.Infof("Echo client %s -> %s", sock.LocalAddr(), addr)

	for i := 0; i < count; i++ {
		payload := []byte(fmt.Sprintf("%s %d", message, i))
		if err := sock.Send(core.NewReliableOrdered(addr, payload, core.DefaultStream)); err != nil {
			log.Fatalf("send: %v", err)
		}
	}

	received := 0
	deadline := time.After(10 * time.Second)
	for received < count {
		select {
		case <-deadline:
			log.Fatalf("timed out after %d of %d echoes", received, count)
		case ev := <-sock.Events():
			if ev.Kind != core.PacketEvent {
				continue
			}
			received++
			fmt.Printf("echo %d/%d: %s\n", received, count, ev.Packet.Payload())
		}
	}
	logging.Infof("All %d echoes received", count)
}
