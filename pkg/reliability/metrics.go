package reliability

import (
	"time"

	"github.com/irctrakz/rudp/pkg/core"
)

// emaWarmup clamps the smoothing divisor: the first snapshot passes
// through unsmoothed, every later one averages with the previous
// snapshot. Exponential moving average with divisor = min(samplesSeen, 2).
const emaWarmup = 2

// metricsFrame accumulates raw per-interval samples. Mutated continuously
// and reset when a snapshot is produced.
type metricsFrame struct {
	sentKB     []float64
	receiveKB  []float64
	rttMillis  []float64
	packetLoss float64
}

func (f *metricsFrame) reset() {
	f.sentKB = f.sentKB[:0]
	f.receiveKB = f.receiveKB[:0]
	f.rttMillis = f.rttMillis[:0]
	f.packetLoss = 0
}

// MetricsHandler accumulates per-interval traffic counters and exposes a
// smoothed snapshot once per reporting interval.
type MetricsHandler struct {
	frame       metricsFrame
	snapshot    core.Metrics
	samplesSeen int
}

// NewMetricsHandler creates an empty handler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// RecordSent records one sent packet of the given size.
func (m *MetricsHandler) RecordSent(bytes int) {
	m.frame.sentKB = append(m.frame.sentKB, float64(bytes)/1000.0)
}

// RecordReceived records one received packet of the given size.
func (m *MetricsHandler) RecordReceived(bytes int) {
	m.frame.receiveKB = append(m.frame.receiveKB, float64(bytes)/1000.0)
}

// RecordLoss records packets considered lost during this interval.
func (m *MetricsHandler) RecordLoss(count int) {
	m.frame.packetLoss += float64(count)
}

// RecordRTT records one round-trip sample. Negative samples (clock skew
// artifacts) are recorded as their magnitude.
func (m *MetricsHandler) RecordRTT(sample time.Duration) {
	ms := float64(sample) / float64(time.Millisecond)
	if ms < 0 {
		ms = -ms
	}
	m.frame.rttMillis = append(m.frame.rttMillis, ms)
}

// CalculateOutput produces the smoothed snapshot for the interval and
// resets the frame. Called at most once per reporting interval. An empty
// frame yields zero rates.
func (m *MetricsHandler) CalculateOutput() core.Metrics {
	current := core.Metrics{
		SentPackets:     len(m.frame.sentKB),
		ReceivedPackets: len(m.frame.receiveKB),
		SentKBps:        mean(m.frame.sentKB),
		ReceiveKBps:     mean(m.frame.receiveKB),
		RTTMillis:       mean(m.frame.rttMillis),
	}
	if n := len(m.frame.sentKB); n > 0 {
		current.PacketLoss = m.frame.packetLoss / float64(n)
	}

	m.samplesSeen++
	divisor := float64(m.samplesSeen)
	if divisor > emaWarmup {
		divisor = emaWarmup
	}

	m.snapshot.SentPackets = current.SentPackets
	m.snapshot.ReceivedPackets = current.ReceivedPackets
	m.snapshot.SentKBps += (current.SentKBps - m.snapshot.SentKBps) / divisor
	m.snapshot.ReceiveKBps += (current.ReceiveKBps - m.snapshot.ReceiveKBps) / divisor
	m.snapshot.PacketLoss += (current.PacketLoss - m.snapshot.PacketLoss) / divisor
	m.snapshot.RTTMillis += (current.RTTMillis - m.snapshot.RTTMillis) / divisor

	m.frame.reset()
	return m.snapshot
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
