package reliability

import (
	"testing"
	"time"
)

// TestWindowGrowsOnAck tests slow-start then additive growth.
func TestWindowGrowsOnAck(t *testing.T) {
	c := NewCongestionHandler(2.0)
	before := c.Window()

	c.OnAck(20 * time.Millisecond)
	if c.Window() != before+1 {
		t.Errorf("Expected slow-start growth of 1, got %f -> %f", before, c.Window())
	}

	// Push past ssthresh and verify sub-packet growth.
	c.cwnd = c.ssthresh + 1
	before = c.Window()
	c.OnAck(20 * time.Millisecond)
	if c.Window() <= before || c.Window() >= before+1 {
		t.Errorf("Expected additive growth below 1 packet, got %f -> %f", before, c.Window())
	}
}

// TestWindowShrinksOnLoss tests multiplicative decrease and the floor.
func TestWindowShrinksOnLoss(t *testing.T) {
	c := NewCongestionHandler(2.0)
	c.cwnd = 100

	c.OnLoss()
	if c.Window() != 50 {
		t.Errorf("Expected window 50 after loss, got %f", c.Window())
	}

	// Repeated losses bottom out at the minimum window.
	for i := 0; i < 20; i++ {
		c.OnLoss()
	}
	if c.Window() != minWindow {
		t.Errorf("Expected window floor %f, got %f", minWindow, c.Window())
	}
}

// TestMonotoneResponse tests that loss never grows the window and a
// zero-loss ack run never shrinks it.
func TestMonotoneResponse(t *testing.T) {
	c := NewCongestionHandler(2.0)

	before := c.Window()
	c.OnLoss()
	if c.Window() > before {
		t.Errorf("Loss grew the window: %f -> %f", before, c.Window())
	}

	for i := 0; i < 1000; i++ {
		before = c.Window()
		c.OnAck(15 * time.Millisecond)
		if c.Window() < before {
			t.Fatalf("Ack shrank the window: %f -> %f", before, c.Window())
		}
	}
}

// TestMaySendGatesOnWindow tests the throttle decision.
func TestMaySendGatesOnWindow(t *testing.T) {
	c := NewCongestionHandler(2.0)
	c.cwnd = 4

	if !c.MaySend(3) {
		t.Error("Expected send allowed below the window")
	}
	if c.MaySend(4) {
		t.Error("Expected send refused at the window")
	}
}

// TestResendThreshold tests the RTT-derived retransmission deadline.
func TestResendThreshold(t *testing.T) {
	c := NewCongestionHandler(2.0)

	// Before any sample, the default applies.
	if got := c.ResendThreshold(); got != defaultResendThreshold {
		t.Errorf("Expected default threshold %s, got %s", defaultResendThreshold, got)
	}

	c.OnAck(200 * time.Millisecond)
	got := c.ResendThreshold()
	// srtt = 200ms, rttvar = 100ms: 200*2 + 4*100 = 800ms.
	if got != 800*time.Millisecond {
		t.Errorf("Expected threshold 800ms, got %s", got)
	}

	// Tiny RTTs clamp to the minimum.
	c2 := NewCongestionHandler(2.0)
	c2.OnAck(time.Millisecond)
	if got := c2.ResendThreshold(); got != minResendThreshold {
		t.Errorf("Expected clamped threshold %s, got %s", minResendThreshold, got)
	}
}

// TestNegativeRTTSampleUsedAsMagnitude tests the clock-skew guard.
func TestNegativeRTTSampleUsedAsMagnitude(t *testing.T) {
	c := NewCongestionHandler(2.0)
	c.OnAck(-50 * time.Millisecond)
	if c.RTT() != 50*time.Millisecond {
		t.Errorf("Expected srtt 50ms, got %s", c.RTT())
	}
}
