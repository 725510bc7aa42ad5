package reliability

import "time"

// Congestion control constants. AIMD over a packet-counted window with
// RFC 6298 round-trip estimation: slow start below ssthresh, additive
// increase above it, multiplicative decrease on loss.
const (
	initialWindow   = 32.0
	initialSsthresh = 256.0
	minWindow       = 2.0

	rttAlpha = 0.125
	rttBeta  = 0.25

	// defaultResendThreshold is used before the first RTT sample.
	defaultResendThreshold = 250 * time.Millisecond
	minResendThreshold     = 100 * time.Millisecond
	maxResendThreshold     = 5 * time.Second
)

// CongestionHandler maintains the send window from acknowledgment and loss
// feedback, and derives the retransmission deadline from the smoothed
// round-trip time.
type CongestionHandler struct {
	cwnd     float64
	ssthresh float64

	srtt   time.Duration
	rttvar time.Duration

	// multiplier scales srtt into the resend threshold.
	multiplier float64
}

// NewCongestionHandler creates a handler with the given resend-threshold
// RTT multiplier.
func NewCongestionHandler(multiplier float64) *CongestionHandler {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	return &CongestionHandler{
		cwnd:       initialWindow,
		ssthresh:   initialSsthresh,
		multiplier: multiplier,
	}
}

// OnAck feeds one successful delivery and its round-trip sample. The
// window only grows here: +1 packet per ack in slow start, +1/cwnd in
// congestion avoidance.
func (c *CongestionHandler) OnAck(rtt time.Duration) {
	c.updateRTT(rtt)
	if c.cwnd < c.ssthresh {
		c.cwnd++
	} else {
		c.cwnd += 1 / c.cwnd
	}
}

// OnLoss feeds one loss signal. The window only shrinks here: ssthresh
// drops to half the window and the window restarts from there.
func (c *CongestionHandler) OnLoss() {
	c.ssthresh = c.cwnd / 2
	if c.ssthresh < minWindow {
		c.ssthresh = minWindow
	}
	c.cwnd = c.ssthresh
}

// MaySend reports whether a packet may be sent immediately given the
// current number of unacknowledged packets.
func (c *CongestionHandler) MaySend(inFlight int) bool {
	return float64(inFlight) < c.cwnd
}

// Window returns the current window in packets.
func (c *CongestionHandler) Window() float64 {
	return c.cwnd
}

// RTT returns the smoothed round-trip time, zero before the first sample.
func (c *CongestionHandler) RTT() time.Duration {
	return c.srtt
}

// ResendThreshold returns how old an unacknowledged packet must be before
// it is considered dropped: srtt*multiplier + 4*rttvar, clamped.
func (c *CongestionHandler) ResendThreshold() time.Duration {
	if c.srtt == 0 {
		return defaultResendThreshold
	}
	threshold := time.Duration(float64(c.srtt)*c.multiplier) + 4*c.rttvar
	if threshold < minResendThreshold {
		threshold = minResendThreshold
	}
	if threshold > maxResendThreshold {
		threshold = maxResendThreshold
	}
	return threshold
}

// updateRTT applies the RFC 6298 smoothing recurrence.
func (c *CongestionHandler) updateRTT(rtt time.Duration) {
	if rtt < 0 {
		rtt = -rtt
	}
	if c.srtt == 0 {
		c.srtt = rtt
		c.rttvar = rtt / 2
		return
	}
	diff := c.srtt - rtt
	if diff < 0 {
		diff = -diff
	}
	c.rttvar = time.Duration((1-rttBeta)*float64(c.rttvar) + rttBeta*float64(diff))
	c.srtt = time.Duration((1-rttAlpha)*float64(c.srtt) + rttAlpha*float64(rtt))
}
