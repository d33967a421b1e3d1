package crdtop

import (
	"testing"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/tree"
)

func opID(client clock.ClientId, seq uint64) clock.OpId {
	return clock.OpId{ClientID: client, Seq: seq}
}

func TestResolveTextInsertsSameAnchorConflict(t *testing.T) {
	r := ConflictResolver{}
	block := tree.NodeId("block-1")
	parent := opID(1, 5)

	a := CrdtOp{Kind: TextInsert, ID: opID(1, 6), NodeID: block, ParentOpID: parent, Char: 'A'}
	b := CrdtOp{Kind: TextInsert, ID: opID(2, 6), NodeID: block, ParentOpID: parent, Char: 'B'}

	if v := r.Resolve(a, b); v != Loses {
		t.Fatalf("expected a to lose to the higher client-id tiebreak, got %v", v)
	}
	if v := r.Resolve(b, a); v != Wins {
		t.Fatalf("expected Resolve to mirror: b should win over a, got %v", v)
	}
}

func TestResolveTextInsertsDifferentParentNoConflict(t *testing.T) {
	r := ConflictResolver{}
	block := tree.NodeId("block-1")

	a := CrdtOp{Kind: TextInsert, ID: opID(1, 6), NodeID: block, ParentOpID: opID(1, 5)}
	b := CrdtOp{Kind: TextInsert, ID: opID(2, 6), NodeID: block, ParentOpID: opID(1, 4)}

	if v := r.Resolve(a, b); v != NoConflict {
		t.Fatalf("expected distinct parent_op_id to be NoConflict, got %v", v)
	}
}

func TestResolveFormatSetSameAttributeOverlap(t *testing.T) {
	r := ConflictResolver{}
	block := tree.NodeId("block-1")

	earlier := clock.Timestamp{Physical: 100, ClientID: 1}
	later := clock.Timestamp{Physical: 200, ClientID: 1}

	a := CrdtOp{Kind: FormatSet, ID: opID(1, 1), NodeID: block, Attribute: "bold",
		StartOpID: opID(1, 1), EndOpID: opID(1, 5), Timestamp: earlier}
	b := CrdtOp{Kind: FormatSet, ID: opID(2, 1), NodeID: block, Attribute: "bold",
		StartOpID: opID(1, 3), EndOpID: opID(1, 8), Timestamp: later}

	if v := r.Resolve(a, b); v != Loses {
		t.Fatalf("expected the earlier timestamp to lose, got %v", v)
	}
	if v := r.Resolve(b, a); v != Wins {
		t.Fatalf("expected the mirror to report Wins, got %v", v)
	}
}

func TestResolveFormatSetDifferentAttributeCompatible(t *testing.T) {
	r := ConflictResolver{}
	block := tree.NodeId("block-1")

	a := CrdtOp{Kind: FormatSet, ID: opID(1, 1), NodeID: block, Attribute: "bold",
		StartOpID: opID(1, 1), EndOpID: opID(1, 5)}
	b := CrdtOp{Kind: FormatSet, ID: opID(2, 1), NodeID: block, Attribute: "italic",
		StartOpID: opID(1, 1), EndOpID: opID(1, 5)}

	if v := r.Resolve(a, b); v != Compatible {
		t.Fatalf("expected different attributes on the same node to be Compatible per spec's literal rule, got %v", v)
	}
}

func TestResolveFormatSetNonOverlappingRangesNoConflict(t *testing.T) {
	r := ConflictResolver{}
	block := tree.NodeId("block-1")

	a := CrdtOp{Kind: FormatSet, ID: opID(1, 1), NodeID: block, Attribute: "bold",
		StartOpID: opID(1, 1), EndOpID: opID(1, 2)}
	b := CrdtOp{Kind: FormatSet, ID: opID(2, 1), NodeID: block, Attribute: "bold",
		StartOpID: opID(1, 10), EndOpID: opID(1, 12)}

	if v := r.Resolve(a, b); v != NoConflict {
		t.Fatalf("expected disjoint ranges to be NoConflict, got %v", v)
	}
}

func TestResolveDeleteAbsorbsTarget(t *testing.T) {
	r := ConflictResolver{}
	block := tree.NodeId("block-1")

	insert := CrdtOp{Kind: TextInsert, ID: opID(1, 1), NodeID: block}
	del := CrdtOp{Kind: TextDelete, ID: opID(2, 1), TargetID: insert.ID}

	if v := r.Resolve(del, insert); v != Wins {
		t.Fatalf("expected a delete targeting insert.ID to win, got %v", v)
	}
	if v := r.Resolve(insert, del); v != Loses {
		t.Fatalf("expected the mirror to report Loses, got %v", v)
	}
}

func TestResolveDistinctNodesNoConflict(t *testing.T) {
	r := ConflictResolver{}

	a := CrdtOp{Kind: BlockInsert, ID: opID(1, 1), ParentOpID: opID(0, 0), AfterSibling: clock.RootOpId}
	b := CrdtOp{Kind: BlockUpdate, ID: opID(2, 1), Target: opID(9, 9)}

	if v := r.Resolve(a, b); v != NoConflict {
		t.Fatalf("expected unrelated op kinds/targets to be NoConflict, got %v", v)
	}
}
