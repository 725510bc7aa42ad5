package core

// Metrics is the smoothed per-connection metrics snapshot emitted once per
// second while a connection is alive.
type Metrics struct {
	// SentPackets is the number of packets sent during the last interval.
	SentPackets int

	// ReceivedPackets is the number of packets received during the last
	// interval.
	ReceivedPackets int

	// SentKBps is the smoothed average size of sent packets in kilobytes.
	SentKBps float64

	// ReceiveKBps is the smoothed average size of received packets in
	// kilobytes.
	ReceiveKBps float64

	// PacketLoss is the smoothed ratio of packets considered lost to
	// packets sent during the interval.
	PacketLoss float64

	// RTTMillis is the smoothed round-trip time in milliseconds.
	RTTMillis float64
}
