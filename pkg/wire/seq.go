// Package wire implements the packet header codec and the wrapping
// sequence-number arithmetic shared by the reliability layer.
package wire

// SequenceNumber is a wrapping per-connection packet counter. All
// comparisons must go through the helpers below; raw integer comparison
// breaks at the wrap point.
type SequenceNumber = uint16

// halfRange is the midpoint of the sequence space. Two sequence numbers
// are compared by which half of the space separates them.
const halfRange = 1 << 15

// SequenceGreaterThan reports whether a is newer than b, accounting for
// wraparound.
func SequenceGreaterThan(a, b SequenceNumber) bool {
	return (a > b && a-b <= halfRange) || (a < b && b-a > halfRange)
}

// SequenceLessThan reports whether a is older than b, accounting for
// wraparound.
func SequenceLessThan(a, b SequenceNumber) bool {
	return SequenceGreaterThan(b, a)
}

// SequenceDistance returns the forward modular distance from b to a, i.e.
// how many increments take b to a.
func SequenceDistance(a, b SequenceNumber) uint16 {
	return a - b
}
