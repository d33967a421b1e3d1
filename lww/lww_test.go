package lww

import (
	"testing"

	"github.com/nullstream/collabdoc/clock"
)

func ts(physical uint64, logical uint32, client clock.ClientId) clock.Timestamp {
	return clock.Timestamp{Physical: physical, Logical: logical, ClientID: client}
}

func TestSetAcceptsStrictlyLaterWrite(t *testing.T) {
	m := New[string, string]()

	if !m.Set("bold", "true", ts(100, 0, 1)) {
		t.Fatalf("first write to a key must be accepted")
	}
	if m.Set("bold", "false", ts(100, 0, 1)) {
		t.Fatalf("a write at the same timestamp must not override")
	}
	if !m.Set("bold", "false", ts(101, 0, 2)) {
		t.Fatalf("a strictly later write must be accepted")
	}

	v, ok := m.Get("bold")
	if !ok || v != "false" {
		t.Fatalf("expected bold=false after the later write, got %q ok=%v", v, ok)
	}
}

func TestConcurrentSetsConverge(t *testing.T) {
	a := New[string, int]()
	b := New[string, int]()

	earlier := ts(100, 0, 1)
	later := ts(100, 0, 2) // same physical/logical, higher client id wins tiebreak

	a.Set("size", 12, earlier)
	a.Set("size", 14, later)

	b.Set("size", 14, later)
	b.Set("size", 12, earlier)

	va, _ := a.Get("size")
	vb, _ := b.Get("size")
	if va != vb {
		t.Fatalf("replicas applying the same two writes in different orders diverged: a=%d b=%d", va, vb)
	}
	if va != 14 {
		t.Fatalf("expected the later timestamp to win regardless of delivery order, got %d", va)
	}
}

func TestRemoveWinsOverEarlierSet(t *testing.T) {
	m := New[string, string]()

	m.Set("italic", "true", ts(100, 0, 1))
	if !m.Remove("italic", ts(101, 0, 1)) {
		t.Fatalf("Remove strictly after the last write must be accepted")
	}

	if _, ok := m.Get("italic"); ok {
		t.Fatalf("a removed key must not be visible via Get")
	}
	if _, present := m.Snapshot()["italic"]; present {
		t.Fatalf("a removed key must not appear in Snapshot")
	}
}

func TestSetCannotResurrectBeforeRemoveTimestamp(t *testing.T) {
	m := New[string, string]()

	m.Remove("italic", ts(200, 0, 1))
	if m.Set("italic", "true", ts(150, 0, 1)) {
		t.Fatalf("a Set earlier than a recorded tombstone must be rejected")
	}
	if _, ok := m.Get("italic"); ok {
		t.Fatalf("key must remain absent after a rejected resurrection attempt")
	}
}

func TestLenCountsOnlyLiveEntries(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1, ts(1, 0, 1))
	m.Set("b", 2, ts(1, 0, 1))
	m.Remove("a", ts(2, 0, 1))

	if m.Len() != 1 {
		t.Fatalf("expected Len 1 after removing one of two entries, got %d", m.Len())
	}
}
