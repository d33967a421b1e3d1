package clock

import "testing"

func TestVectorClockMergeIsElementwiseMax(t *testing.T) {
	a := VectorClock{1: 3, 2: 1}
	b := VectorClock{2: 5, 3: 2}

	merged := a.Merge(b)
	if merged.Get(1) != 3 || merged.Get(2) != 5 || merged.Get(3) != 2 {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
	// Inputs must be untouched.
	if a.Get(2) != 1 {
		t.Fatalf("Merge must not mutate its receiver")
	}
}

func TestHappenedBeforeAndConcurrent(t *testing.T) {
	a := VectorClock{1: 1, 2: 1}
	b := VectorClock{1: 2, 2: 1}
	c := VectorClock{1: 2, 2: 0}

	if !HappenedBefore(a, b) {
		t.Error("a should happen before b")
	}
	if HappenedBefore(b, a) {
		t.Error("b should not happen before a")
	}
	if !Concurrent(a, c) {
		t.Error("a and c diverge on both components in opposite directions: expected concurrent")
	}
	if HappenedBefore(a, a) {
		t.Error("a clock cannot happen before itself")
	}
}

func TestVectorClockMissingReadsAsZero(t *testing.T) {
	v := NewVectorClock()
	if v.Get(42) != 0 {
		t.Fatalf("expected unseen client to read as 0, got %d", v.Get(42))
	}
}
