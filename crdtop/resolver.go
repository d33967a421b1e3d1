package crdtop

import "github.com/nullstream/collabdoc/clock"

// Verdict is the outcome of comparing two ops for conflict, asymmetric with
// respect to the first argument passed to Resolve.
type Verdict int

const (
	// NoConflict means the two ops touch unrelated state; both apply as-is.
	NoConflict Verdict = iota
	// Compatible means the two ops can both apply on the same target
	// without one overriding the other (e.g. two FormatSet ops on
	// different attributes).
	Compatible
	// Wins means the first op (a in Resolve(a, b)) supersedes the second.
	Wins
	// Loses means the first op is superseded by the second.
	Loses
)

func (v Verdict) String() string {
	switch v {
	case NoConflict:
		return "NoConflict"
	case Compatible:
		return "Compatible"
	case Wins:
		return "Wins"
	case Loses:
		return "Loses"
	default:
		return "Unknown"
	}
}

// ConflictResolver classifies pairs of CrdtOps. It generalizes
// resolvers/crdt/lww.go's Resolve(path, op, ...) bool idiom from a single
// accept/reject bit to the four-way NoConflict/Compatible/Wins/Loses
// taxonomy a CmRDT op log needs when two ops are recorded rather than one
// overwriting the other in place.
type ConflictResolver struct{}

// Resolve answers how a relates to b. It is pure, deterministic, and
// commutative: Resolve(a, b) and Resolve(b, a) always report mirrored
// verdicts (Wins<->Loses, NoConflict/Compatible unchanged).
func (ConflictResolver) Resolve(a, b CrdtOp) Verdict {
	if isDelete(a.Kind) && targets(a) == b.ID {
		return Wins
	}
	if isDelete(b.Kind) && targets(b) == a.ID {
		return Loses
	}

	switch {
	case a.Kind == TextInsert && b.Kind == TextInsert:
		if a.NodeID != b.NodeID || a.ParentOpID != b.ParentOpID {
			return NoConflict
		}
		return winnerByOpId(a.ID, b.ID)

	case a.Kind == BlockInsert && b.Kind == BlockInsert:
		if a.ParentOpID != b.ParentOpID || a.AfterSibling != b.AfterSibling {
			return NoConflict
		}
		return winnerByOpId(a.ID, b.ID)

	case a.Kind == FormatSet && b.Kind == FormatSet:
		if a.NodeID != b.NodeID {
			return NoConflict
		}
		if a.Attribute != b.Attribute {
			return Compatible
		}
		if !rangesOverlap(a.StartOpID, a.EndOpID, b.StartOpID, b.EndOpID) {
			return NoConflict
		}
		return winnerByTimestamp(a.Timestamp, b.Timestamp)
	}

	return NoConflict
}

func isDelete(k OpKind) bool {
	return k == TextDelete || k == BlockDelete
}

// targets returns the OpId a delete op tombstones.
func targets(op CrdtOp) clock.OpId {
	if op.Kind == TextDelete {
		return op.TargetID
	}
	return op.Target
}

func winnerByOpId(a, b clock.OpId) Verdict {
	if a == b {
		return NoConflict
	}
	if a.After(b) {
		return Wins
	}
	return Loses
}

func winnerByTimestamp(a, b clock.Timestamp) Verdict {
	switch a.Compare(b) {
	case 0:
		return NoConflict
	case 1:
		return Wins
	default:
		return Loses
	}
}

// rangesOverlap treats each (start, end) pair as the inclusive span of
// OpIds covered by a FormatSet, ordered by the same total order as
// clock.OpId.Less. Two ranges overlap unless one ends strictly before the
// other begins.
func rangesOverlap(aStart, aEnd, bStart, bEnd clock.OpId) bool {
	if aEnd.Less(bStart) {
		return false
	}
	if bEnd.Less(aStart) {
		return false
	}
	return true
}
