package reliability

import (
	"errors"

	"github.com/irctrakz/rudp/pkg/wire"
)

var (
	// ErrPayloadTooLarge indicates a payload needing more fragments than
	// the wire count field can represent.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum fragment count")

	// ErrFragmentGroupMismatch indicates fragment metadata conflicting
	// with an earlier fragment of the same group.
	ErrFragmentGroupMismatch = errors.New("fragment metadata conflicts with its group")
)

// Fragment is one piece of an oversized payload. All fragments of one
// payload share a group id; indices run 0..Total-1.
type Fragment struct {
	GroupID wire.SequenceNumber
	Index   uint8
	Total   uint8
	Body    []byte
}

// reassembly is the partial buffer for one fragment group.
type reassembly struct {
	total    int
	received int
	parts    [][]byte
}

// Fragmentation splits oversized payloads into wire-safe fragments and
// reassembles incoming fragments, exactly once per group. Partial groups
// are retained until completion or connection teardown; the engine dies
// with its connection.
type Fragmentation struct {
	fragmentSize int
	maxFragments int
	groups       map[wire.SequenceNumber]*reassembly
}

// NewFragmentation creates an engine producing fragments of at most
// fragmentSize bytes, at most maxFragments per payload. The wire count
// field is one byte, so maxFragments is clamped to 255.
func NewFragmentation(fragmentSize, maxFragments int) *Fragmentation {
	if maxFragments <= 0 || maxFragments > 255 {
		maxFragments = 255
	}
	return &Fragmentation{
		fragmentSize: fragmentSize,
		maxFragments: maxFragments,
		groups:       make(map[wire.SequenceNumber]*reassembly),
	}
}

// FragmentSize returns the maximum fragment body size.
func (f *Fragmentation) FragmentSize() int {
	return f.fragmentSize
}

// Needed returns the number of fragments a payload of the given length
// splits into.
func (f *Fragmentation) Needed(payloadLen int) int {
	n := payloadLen / f.fragmentSize
	if payloadLen%f.fragmentSize != 0 {
		n++
	}
	return n
}

// CanSplit reports whether a payload of the given length fits in the
// representable fragment count.
func (f *Fragmentation) CanSplit(payloadLen int) bool {
	return f.Needed(payloadLen) <= f.maxFragments
}

// Split cuts payload into fragments sharing groupID, preserving byte
// order across fragment boundaries. Fails with ErrPayloadTooLarge when
// the fragment count would exceed the representable maximum.
func (f *Fragmentation) Split(groupID wire.SequenceNumber, payload []byte) ([]Fragment, error) {
	total := f.Needed(len(payload))
	if total > f.maxFragments {
		return nil, ErrPayloadTooLarge
	}

	fragments := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * f.fragmentSize
		end := start + f.fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		fragments = append(fragments, Fragment{
			GroupID: groupID,
			Index:   uint8(i),
			Total:   uint8(total),
			Body:    payload[start:end],
		})
	}
	return fragments, nil
}

// Accept stores one incoming fragment in its group's buffer. It returns
// the reassembled payload with ok=true exactly when the group completes,
// discarding the group afterwards. A duplicate index overwrites its slot
// and does not count twice toward completion. Conflicting metadata yields
// ErrFragmentGroupMismatch.
func (f *Fragmentation) Accept(frag Fragment) ([]byte, bool, error) {
	if frag.Total == 0 || int(frag.Index) >= int(frag.Total) {
		return nil, false, ErrFragmentGroupMismatch
	}

	group, ok := f.groups[frag.GroupID]
	if !ok {
		group = &reassembly{
			total: int(frag.Total),
			parts: make([][]byte, frag.Total),
		}
		f.groups[frag.GroupID] = group
	} else if group.total != int(frag.Total) {
		return nil, false, ErrFragmentGroupMismatch
	}

	if group.parts[frag.Index] == nil {
		group.received++
	}
	body := make([]byte, len(frag.Body))
	copy(body, frag.Body)
	group.parts[frag.Index] = body

	if group.received < group.total {
		return nil, false, nil
	}

	size := 0
	for _, part := range group.parts {
		size += len(part)
	}
	payload := make([]byte, 0, size)
	for _, part := range group.parts {
		payload = append(payload, part...)
	}
	delete(f.groups, frag.GroupID)
	return payload, true, nil
}

// PartialGroups returns the number of incomplete reassembly groups held.
func (f *Fragmentation) PartialGroups() int {
	return len(f.groups)
}
