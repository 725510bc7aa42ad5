package reliability

import (
	"bytes"
	"math/rand"
	"testing"
)

// TestSplitPreservesByteOrder tests deterministic splitting.
func TestSplitPreservesByteOrder(t *testing.T) {
	f := NewFragmentation(4, 255)
	payload := []byte("abcdefghij") // 10 bytes -> 4+4+2

	fragments, err := f.Split(7, payload)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(fragments) != 3 {
		t.Fatalf("Expected 3 fragments, got %d", len(fragments))
	}

	var joined []byte
	for i, frag := range fragments {
		if frag.GroupID != 7 {
			t.Errorf("Fragment %d: expected group 7, got %d", i, frag.GroupID)
		}
		if int(frag.Index) != i {
			t.Errorf("Expected index %d, got %d", i, frag.Index)
		}
		if frag.Total != 3 {
			t.Errorf("Expected total 3, got %d", frag.Total)
		}
		joined = append(joined, frag.Body...)
	}
	if !bytes.Equal(joined, payload) {
		t.Errorf("Fragment bodies do not concatenate to the payload")
	}
}

// TestSplitPayloadTooLarge tests the representable-count limit.
func TestSplitPayloadTooLarge(t *testing.T) {
	f := NewFragmentation(10, 4)
	if _, err := f.Split(0, make([]byte, 41)); err != ErrPayloadTooLarge {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
	// Exactly at the limit is fine.
	if _, err := f.Split(0, make([]byte, 40)); err != nil {
		t.Errorf("Expected split at the limit to succeed, got %v", err)
	}
}

// TestReassemblyOrderIndependent tests that fragments fed back in any
// order reassemble to the original payload byte-for-byte.
func TestReassemblyOrderIndependent(t *testing.T) {
	f := NewFragmentation(16, 255)
	payload := make([]byte, 500)
	rng := rand.New(rand.NewSource(42))
	rng.Read(payload)

	fragments, err := f.Split(3, payload)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	rng.Shuffle(len(fragments), func(i, j int) {
		fragments[i], fragments[j] = fragments[j], fragments[i]
	})

	var result []byte
	for i, frag := range fragments {
		out, ok, err := f.Accept(frag)
		if err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		if i < len(fragments)-1 && ok {
			t.Fatalf("Group completed early at fragment %d", i)
		}
		if ok {
			result = out
		}
	}

	if !bytes.Equal(result, payload) {
		t.Error("Reassembled payload differs from the original")
	}
	if f.PartialGroups() != 0 {
		t.Errorf("Expected group buffer consumed, %d groups remain", f.PartialGroups())
	}
}

// TestIncompleteGroupNeverCompletes tests that duplicates of present
// indices never substitute for a missing index.
func TestIncompleteGroupNeverCompletes(t *testing.T) {
	f := NewFragmentation(4, 255)
	fragments, err := f.Split(1, []byte("abcdefghij"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	// Feed fragments 0 and 2 repeatedly, never 1.
	for i := 0; i < 10; i++ {
		for _, idx := range []int{0, 2} {
			if _, ok, err := f.Accept(fragments[idx]); err != nil || ok {
				t.Fatalf("Iteration %d fragment %d: ok=%v err=%v", i, idx, ok, err)
			}
		}
	}

	// The missing fragment completes the group.
	out, ok, err := f.Accept(fragments[1])
	if err != nil || !ok {
		t.Fatalf("Expected completion, ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(out, []byte("abcdefghij")) {
		t.Errorf("Expected %q, got %q", "abcdefghij", out)
	}
}

// TestFragmentGroupMismatch tests rejection of conflicting metadata.
func TestFragmentGroupMismatch(t *testing.T) {
	f := NewFragmentation(4, 255)

	if _, _, err := f.Accept(Fragment{GroupID: 5, Index: 0, Total: 3, Body: []byte("aaaa")}); err != nil {
		t.Fatalf("First fragment rejected: %v", err)
	}

	// Same group, different declared total.
	if _, _, err := f.Accept(Fragment{GroupID: 5, Index: 1, Total: 4, Body: []byte("bbbb")}); err != ErrFragmentGroupMismatch {
		t.Errorf("Expected ErrFragmentGroupMismatch, got %v", err)
	}

	// Index outside the declared total.
	if _, _, err := f.Accept(Fragment{GroupID: 6, Index: 3, Total: 3, Body: []byte("cccc")}); err != ErrFragmentGroupMismatch {
		t.Errorf("Expected ErrFragmentGroupMismatch for bad index, got %v", err)
	}

	// Zero total is malformed.
	if _, _, err := f.Accept(Fragment{GroupID: 7, Index: 0, Total: 0}); err != ErrFragmentGroupMismatch {
		t.Errorf("Expected ErrFragmentGroupMismatch for zero total, got %v", err)
	}
}

// TestGroupsDoNotMerge tests group-scoped reassembly.
func TestGroupsDoNotMerge(t *testing.T) {
	f := NewFragmentation(4, 255)
	a, _ := f.Split(1, []byte("aaaabbbb"))
	b, _ := f.Split(2, []byte("ccccdddd"))

	if _, ok, _ := f.Accept(a[0]); ok {
		t.Fatal("Group 1 completed with one fragment")
	}
	if _, ok, _ := f.Accept(b[1]); ok {
		t.Fatal("Group 2 completed with one fragment")
	}
	if f.PartialGroups() != 2 {
		t.Fatalf("Expected 2 partial groups, got %d", f.PartialGroups())
	}

	out, ok, err := f.Accept(a[1])
	if err != nil || !ok || !bytes.Equal(out, []byte("aaaabbbb")) {
		t.Errorf("Group 1: ok=%v err=%v out=%q", ok, err, out)
	}
	out, ok, err = f.Accept(b[0])
	if err != nil || !ok || !bytes.Equal(out, []byte("ccccdddd")) {
		t.Errorf("Group 2: ok=%v err=%v out=%q", ok, err, out)
	}
}
