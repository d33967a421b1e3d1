package collabdoc

import (
	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
	"github.com/nullstream/collabdoc/tree"
)

// undoKind tags which user operation an undoEntry compensates for.
type undoKind int

const (
	undoInsertBlock undoKind = iota
	undoInsertText
	undoDeleteText
	undoFormat
)

// undoEntry is the minimum information needed to emit the compensating op
// for one user-visible operation (Insert->Delete,
// Delete->Insert-with-same-content-and-position,
// Format->Format-to-previous-value-with-new-timestamp). Only the fields
// relevant to kind are populated.
type undoEntry struct {
	kind undoKind

	blockOpID clock.OpId // undoInsertBlock: the block to delete

	nodeID  tree.NodeId  // undoInsertText, undoDeleteText, undoFormat
	charIDs []clock.OpId // undoInsertText: chars to delete

	startOffset int  // undoDeleteText: where to reinsert
	chars       []rune

	startID       clock.OpId // undoFormat
	endID         clock.OpId
	attribute     string
	previousValue any
}

func (d *CollaborativeDocument) recordUndo(e undoEntry) {
	d.undo = append(d.undo, e)
}

// GenerateUndo pops up to n entries off the per-replica undo log (most
// recent first) and, for each, applies and emits its compensating CrdtOp.
// Undo is a local convenience only: every op it produces is a first-class
// CrdtOp, queued to the SyncEngine exactly like any other local edit.
func (d *CollaborativeDocument) GenerateUndo(n int) []crdtop.CrdtOp {
	if n > len(d.undo) {
		n = len(d.undo)
	}
	if n <= 0 {
		return nil
	}

	var ops []crdtop.CrdtOp
	for i := 0; i < n; i++ {
		entry := d.undo[len(d.undo)-1]
		d.undo = d.undo[:len(d.undo)-1]
		ops = append(ops, d.undoOne(entry)...)
	}
	return ops
}

func (d *CollaborativeDocument) undoOne(e undoEntry) []crdtop.CrdtOp {
	switch e.kind {
	case undoInsertBlock:
		d.tree.DeleteBlock(e.blockOpID)
		id := d.seq.Next()
		return []crdtop.CrdtOp{d.queueAndRecord(crdtop.CrdtOp{Kind: crdtop.BlockDelete, ID: id, Target: e.blockOpID})}

	case undoInsertText:
		blockOpID, bs, err := d.blockByNodeID(e.nodeID)
		if err != nil {
			return nil
		}
		var ops []crdtop.CrdtOp
		for _, charID := range e.charIDs {
			bs.text.Delete(charID)
			id := d.seq.Next()
			ops = append(ops, d.queueAndRecord(crdtop.CrdtOp{Kind: crdtop.TextDelete, ID: id, TargetID: charID}))
		}
		_ = blockOpID
		return ops

	case undoDeleteText:
		ops, _ := d.InsertText(e.nodeID, e.startOffset, string(e.chars))
		if len(ops) > 0 {
			// InsertText recorded its own undo entry; drop it so the
			// compensating insert is not itself popped as a user operation.
			d.undo = d.undo[:len(d.undo)-1]
		}
		return ops

	case undoFormat:
		_, bs, err := d.blockByNodeID(e.nodeID)
		if err != nil {
			return nil
		}
		ts := d.hlc.Now()
		id := d.seq.Next()
		op := d.queueAndRecord(crdtop.CrdtOp{
			Kind: crdtop.FormatSet, ID: id, NodeID: e.nodeID,
			StartOpID: e.startID, EndOpID: e.endID, Attribute: e.attribute,
			Value: e.previousValue, Timestamp: ts,
		})
		bs.formatting.Set(formatKey{start: e.startID, attribute: e.attribute}, formatValue{end: e.endID, value: e.previousValue}, ts)
		return []crdtop.CrdtOp{op}
	}
	return nil
}
