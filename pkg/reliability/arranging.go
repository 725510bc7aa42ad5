package reliability

import "github.com/irctrakz/rudp/pkg/wire"

// OrderingStream releases payloads strictly in send order, buffering gaps
// until the missing packets arrive. Duplicates and stale arrivals are
// discarded.
type OrderingStream struct {
	expected wire.SequenceNumber
	buffer   map[wire.SequenceNumber][]byte
}

// NewOrderingStream creates a stream expecting sequence 0 first.
func NewOrderingStream() *OrderingStream {
	return &OrderingStream{
		buffer: make(map[wire.SequenceNumber][]byte),
	}
}

// Arrange offers one arrival and returns the run of payloads that became
// deliverable, in order. Returns nil while the head of the stream is
// still missing.
func (s *OrderingStream) Arrange(seq wire.SequenceNumber, item []byte) [][]byte {
	if seq == s.expected {
		released := [][]byte{item}
		s.expected++
		for {
			next, ok := s.buffer[s.expected]
			if !ok {
				break
			}
			delete(s.buffer, s.expected)
			released = append(released, next)
			s.expected++
		}
		return released
	}

	if wire.SequenceGreaterThan(seq, s.expected) {
		s.buffer[seq] = item
	}
	// Older than expected: already delivered, drop.
	return nil
}

// Buffered returns how many out-of-order payloads are waiting.
func (s *OrderingStream) Buffered() int {
	return len(s.buffer)
}

// SequencingStream releases a payload only when it is newer than the
// newest payload released so far; older arrivals are discarded.
type SequencingStream struct {
	newest wire.SequenceNumber
	seen   bool
}

// NewSequencingStream creates an empty stream.
func NewSequencingStream() *SequencingStream {
	return &SequencingStream{}
}

// Arrange offers one arrival; ok reports whether it should be delivered.
func (s *SequencingStream) Arrange(seq wire.SequenceNumber, item []byte) ([]byte, bool) {
	if !s.seen || wire.SequenceGreaterThan(seq, s.newest) {
		s.newest = seq
		s.seen = true
		return item, true
	}
	return nil, false
}

// OrderingSystem holds the per-stream ordering state of one connection.
// Streams are created lazily; stream indices wrap into the configured
// stream count.
type OrderingSystem struct {
	streams []*OrderingStream
}

// NewOrderingSystem creates a system with the given number of streams.
func NewOrderingSystem(maxStreams int) *OrderingSystem {
	if maxStreams <= 0 {
		maxStreams = 1
	}
	return &OrderingSystem{streams: make([]*OrderingStream, maxStreams)}
}

// Stream returns the ordering stream for an index, creating it on first use.
func (o *OrderingSystem) Stream(index uint8) *OrderingStream {
	i := int(index) % len(o.streams)
	if o.streams[i] == nil {
		o.streams[i] = NewOrderingStream()
	}
	return o.streams[i]
}

// SequencingSystem holds the per-stream sequencing state of one connection.
type SequencingSystem struct {
	streams []*SequencingStream
}

// NewSequencingSystem creates a system with the given number of streams.
func NewSequencingSystem(maxStreams int) *SequencingSystem {
	if maxStreams <= 0 {
		maxStreams = 1
	}
	return &SequencingSystem{streams: make([]*SequencingStream, maxStreams)}
}

// Stream returns the sequencing stream for an index, creating it on first use.
func (s *SequencingSystem) Stream(index uint8) *SequencingStream {
	i := int(index) % len(s.streams)
	if s.streams[i] == nil {
		s.streams[i] = NewSequencingStream()
	}
	return s.streams[i]
}
