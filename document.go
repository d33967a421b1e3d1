// Package collabdoc is a CRDT-based collaborative rich-text document
// engine: concurrent edits from any number of replicas converge to
// byte-identical state without a central arbiter. CollaborativeDocument
// is the façade, composing a tree.CrdtTree (block structure), one
// rga.RGA[rune] per text-bearing block, one lww.LwwMap per block for
// character-range formatting attributes, and a syncengine.SyncEngine
// for the op log and outgoing batch.
package collabdoc

import (
	"fmt"

	"github.com/barkimedes/go-deepcopy"
	"github.com/huandu/go-clone"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
	"github.com/nullstream/collabdoc/lww"
	"github.com/nullstream/collabdoc/rga"
	"github.com/nullstream/collabdoc/syncengine"
	"github.com/nullstream/collabdoc/tree"
)

// formatKey identifies one formatting register: the attribute name plus
// the OpId the attributed range starts at. A formatting span is
// "attribute name starting at (start_op_id, end_op_id)"; collapsing that
// pair plus the attribute name into the LwwMap key, with the end
// boundary carried in the value, stores formatting per character range
// as attributed segments without a separate span index.
type formatKey struct {
	start     clock.OpId
	attribute string
}

type formatValue struct {
	end   clock.OpId
	value any
}

// blockState is everything CollaborativeDocument tracks per text-bearing
// block beyond the tree node itself.
type blockState struct {
	text       *rga.RGA[rune]
	formatting *lww.LwwMap[formatKey, formatValue]
}

// CollaborativeDocument is one replica's view of a document.
type CollaborativeDocument struct {
	clientID clock.ClientId
	seq      *clock.Sequence
	hlc      *clock.HybridClock
	tree     *tree.CrdtTree
	blocks   map[clock.OpId]*blockState
	sync     *syncengine.SyncEngine

	// charBlock maps every character OpId this replica knows about back to
	// the block it lives in, so a TextDelete (which carries only
	// {id, target_id}, not the owning block) can be routed without a
	// linear scan over every block's RGA.
	charBlock map[clock.OpId]clock.OpId
	// pendingCharDeletes buffers TextDelete ops whose target character
	// hasn't been indexed yet (its TextInsert hasn't arrived), the same
	// forward-reference tolerance RGA itself applies to out-of-order
	// TextInsert ops.
	pendingCharDeletes map[clock.OpId][]crdtop.CrdtOp

	undo []undoEntry
}

// New creates an empty document (a single root block) for clientID.
func New(clientID clock.ClientId) *CollaborativeDocument {
	seq := clock.NewSequence(clientID)
	return &CollaborativeDocument{
		clientID:           clientID,
		seq:                seq,
		hlc:                clock.NewHybridClock(clientID),
		tree:               tree.New(seq),
		blocks:             make(map[clock.OpId]*blockState),
		sync:               syncengine.New(clientID, seq),
		charBlock:          make(map[clock.OpId]clock.OpId),
		pendingCharDeletes: make(map[clock.OpId][]crdtop.CrdtOp),
	}
}

func (d *CollaborativeDocument) newBlock(blockOpID clock.OpId) *blockState {
	bs := &blockState{text: rga.New[rune](d.seq), formatting: lww.New[formatKey, formatValue]()}
	d.blocks[blockOpID] = bs
	return bs
}

func (d *CollaborativeDocument) blockByNodeID(nodeID tree.NodeId) (clock.OpId, *blockState, error) {
	node, ok := d.tree.GetByNodeID(nodeID)
	if !ok {
		return clock.OpId{}, nil, fmt.Errorf("collabdoc: unknown block %v", nodeID)
	}
	bs, ok := d.blocks[node.ID]
	if !ok {
		return clock.OpId{}, nil, fmt.Errorf("collabdoc: block %v has no text state", nodeID)
	}
	return node.ID, bs, nil
}

func (d *CollaborativeDocument) queueAndRecord(op crdtop.CrdtOp) crdtop.CrdtOp {
	d.sync.QueueLocal(op)
	return op
}

// InsertParagraph inserts a new Paragraph block under the root, after the
// last currently visible child, and returns its external NodeId handle
// plus the ops produced.
func (d *CollaborativeDocument) InsertParagraph() (tree.NodeId, []crdtop.CrdtOp) {
	root := d.tree.Root()
	after := lastVisibleChild(d.tree, root)

	nodeID := tree.NewNodeId()
	data := tree.NewParagraph(nil)
	id := d.tree.InsertBlock(root, after, nodeID, data)
	d.newBlock(id)

	op := d.queueAndRecord(crdtop.CrdtOp{
		Kind: crdtop.BlockInsert, ID: id,
		ParentOpID: root, AfterSibling: after, NodeID: nodeID, Data: data,
	})
	d.recordUndo(undoEntry{kind: undoInsertBlock, blockOpID: id})
	return nodeID, []crdtop.CrdtOp{op}
}

func lastVisibleChild(t *tree.CrdtTree, parent clock.OpId) clock.OpId {
	children := t.Children(parent)
	if len(children) == 0 {
		return clock.RootOpId
	}
	return children[len(children)-1]
}

// predecessorAt returns the OpId the caller should insert after to land at
// offset (0-based) in the block's visible character sequence, clamping
// offset to the block's length, since the caller may name a stale offset.
func predecessorAt(ids []clock.OpId, offset int) clock.OpId {
	if offset <= 0 {
		return clock.RootOpId
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	return ids[offset-1]
}

// InsertText inserts text into blockNodeID's visible sequence at offset,
// causally chaining each character's parent_op_id to the one emitted
// immediately before it.
func (d *CollaborativeDocument) InsertText(blockNodeID tree.NodeId, offset int, text string) ([]crdtop.CrdtOp, error) {
	blockOpID, bs, err := d.blockByNodeID(blockNodeID)
	if err != nil {
		return nil, err
	}

	after := predecessorAt(bs.text.IDs(), offset)
	ops := make([]crdtop.CrdtOp, 0, len(text))
	for _, ch := range text {
		id := bs.text.Insert(after, ch)
		d.charBlock[id] = blockOpID
		op := d.queueAndRecord(crdtop.CrdtOp{
			Kind: crdtop.TextInsert, ID: id,
			NodeID: blockNodeID, ParentOpID: after, Char: ch,
		})
		ops = append(ops, op)
		after = id
	}
	if len(ops) > 0 {
		d.recordUndo(undoEntry{kind: undoInsertText, nodeID: blockNodeID, charIDs: idsOf(ops)})
	}
	return ops, nil
}

func idsOf(ops []crdtop.CrdtOp) []clock.OpId {
	out := make([]clock.OpId, len(ops))
	for i, op := range ops {
		out[i] = op.ID
	}
	return out
}

// DeleteText tombstones the characters of blockNodeID in [start, end).
func (d *CollaborativeDocument) DeleteText(blockNodeID tree.NodeId, start, end int) ([]crdtop.CrdtOp, error) {
	_, bs, err := d.blockByNodeID(blockNodeID)
	if err != nil {
		return nil, err
	}

	ids := bs.text.IDs()
	if start < 0 {
		start = 0
	}
	if end > len(ids) {
		end = len(ids)
	}

	var ops []crdtop.CrdtOp
	var deletedChars []rune
	for i := start; i < end; i++ {
		target := ids[i]
		ch, _ := bs.text.Get(target)
		bs.text.Delete(target)
		id := d.seq.Next()
		op := d.queueAndRecord(crdtop.CrdtOp{Kind: crdtop.TextDelete, ID: id, TargetID: target})
		ops = append(ops, op)
		deletedChars = append(deletedChars, ch)
	}
	if len(ops) > 0 {
		d.recordUndo(undoEntry{kind: undoDeleteText, nodeID: blockNodeID, startOffset: start, chars: deletedChars})
	}
	return ops, nil
}

// FormatText attaches attribute=value to blockNodeID's [start, end) range,
// stamped with a fresh HLC timestamp so concurrent formatting of the same
// attribute resolves by last-writer-wins.
func (d *CollaborativeDocument) FormatText(blockNodeID tree.NodeId, start, end int, attribute string, value any) ([]crdtop.CrdtOp, error) {
	_, bs, err := d.blockByNodeID(blockNodeID)
	if err != nil {
		return nil, err
	}
	ids := bs.text.IDs()
	if len(ids) == 0 || start >= end || start < 0 || end > len(ids) {
		return nil, fmt.Errorf("collabdoc: empty or out-of-range format span [%d,%d)", start, end)
	}

	startID, endID := ids[start], ids[end-1]
	ts := d.hlc.Now()

	var previous any
	if prior, ok := bs.formatting.Get(formatKey{start: startID, attribute: attribute}); ok {
		previous = prior.value
	}

	id := d.seq.Next()
	op := d.queueAndRecord(crdtop.CrdtOp{
		Kind: crdtop.FormatSet, ID: id, NodeID: blockNodeID,
		StartOpID: startID, EndOpID: endID, Attribute: attribute, Value: value, Timestamp: ts,
	})
	bs.formatting.Set(formatKey{start: startID, attribute: attribute}, formatValue{end: endID, value: value}, ts)

	d.recordUndo(undoEntry{kind: undoFormat, nodeID: blockNodeID, startID: startID, endID: endID, attribute: attribute, previousValue: previous})
	return []crdtop.CrdtOp{op}, nil
}

// SplitParagraph inserts a new paragraph immediately after blockNodeID and
// moves every visible character from offset onward into it. The CRDT does
// not preserve character identity across the split: the moved text is
// deleted from the old block and reinserted with fresh OpIds in the new
// one.
func (d *CollaborativeDocument) SplitParagraph(blockNodeID tree.NodeId, offset int) (tree.NodeId, []crdtop.CrdtOp, error) {
	oldBlockOpID, bs, err := d.blockByNodeID(blockNodeID)
	if err != nil {
		return "", nil, err
	}
	oldNode, _ := d.tree.GetNode(oldBlockOpID)

	ids := bs.text.IDs()
	if offset < 0 {
		offset = 0
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	tail := ids[offset:]

	var ops []crdtop.CrdtOp

	newNodeID := tree.NewNodeId()
	var parent clock.OpId
	if oldNode.HasParent {
		parent = oldNode.ParentID
	} else {
		parent = d.tree.Root()
	}
	data := tree.NewParagraph(nil)
	newBlockOpID := d.tree.InsertBlock(parent, oldBlockOpID, newNodeID, data)
	newBS := d.newBlock(newBlockOpID)
	ops = append(ops, d.queueAndRecord(crdtop.CrdtOp{
		Kind: crdtop.BlockInsert, ID: newBlockOpID,
		ParentOpID: parent, AfterSibling: oldBlockOpID, NodeID: newNodeID, Data: data,
	}))

	var after clock.OpId
	for _, charID := range tail {
		ch, _ := bs.text.Get(charID)
		bs.text.Delete(charID)
		delID := d.seq.Next()
		ops = append(ops, d.queueAndRecord(crdtop.CrdtOp{Kind: crdtop.TextDelete, ID: delID, TargetID: charID}))

		newCharID := newBS.text.Insert(after, ch)
		d.charBlock[newCharID] = newBlockOpID
		ops = append(ops, d.queueAndRecord(crdtop.CrdtOp{
			Kind: crdtop.TextInsert, ID: newCharID, NodeID: newNodeID, ParentOpID: after, Char: ch,
		}))
		after = newCharID
	}

	return newNodeID, ops, nil
}

// MergeParagraphs appends every visible character of b to a (as fresh
// inserts chained onto a's end) and tombstones b.
func (d *CollaborativeDocument) MergeParagraphs(a, b tree.NodeId) ([]crdtop.CrdtOp, error) {
	aOpID, aBS, err := d.blockByNodeID(a)
	if err != nil {
		return nil, err
	}
	bOpID, bBS, err := d.blockByNodeID(b)
	if err != nil {
		return nil, err
	}

	var ops []crdtop.CrdtOp
	aIDs := aBS.text.IDs()
	after := clock.RootOpId
	if len(aIDs) > 0 {
		after = aIDs[len(aIDs)-1]
	}
	for _, charID := range bBS.text.IDs() {
		ch, _ := bBS.text.Get(charID)
		newID := aBS.text.Insert(after, ch)
		d.charBlock[newID] = aOpID
		ops = append(ops, d.queueAndRecord(crdtop.CrdtOp{
			Kind: crdtop.TextInsert, ID: newID, NodeID: a, ParentOpID: after, Char: ch,
		}))
		after = newID
	}

	d.tree.DeleteBlock(bOpID)
	delID := d.seq.Next()
	ops = append(ops, d.queueAndRecord(crdtop.CrdtOp{Kind: crdtop.BlockDelete, ID: delID, Target: bOpID}))
	return ops, nil
}

// ApplyRemote applies a single remote op, returning whether it took effect
// (false means it was a duplicate already seen by the SyncEngine).
func (d *CollaborativeDocument) ApplyRemote(op crdtop.CrdtOp) bool {
	return d.ApplyRemoteBatch([]crdtop.CrdtOp{op}) == 1
}

// ApplyRemoteBatch applies a batch of remote ops and returns how many took
// effect (weren't duplicates).
func (d *CollaborativeDocument) ApplyRemoteBatch(ops []crdtop.CrdtOp) int {
	survivors := d.sync.ApplyRemote(ops)
	for _, op := range survivors {
		d.applyToState(op)
	}
	return len(survivors)
}

func (d *CollaborativeDocument) applyToState(op crdtop.CrdtOp) {
	switch op.Kind {
	case crdtop.BlockInsert:
		d.tree.ApplyInsertBlock(op.ID, op.ParentOpID, op.AfterSibling, op.NodeID, op.Data)
		if _, ok := d.blocks[op.ID]; !ok {
			d.newBlock(op.ID)
		}

	case crdtop.BlockDelete:
		d.tree.ApplyDeleteBlock(op.Target)

	case crdtop.BlockMove:
		d.tree.ApplyMoveBlock(op.Target, op.NewParent, op.AfterSibling)

	case crdtop.BlockUpdate:
		d.tree.UpdateBlockData(op.Target, op.Data)

	case crdtop.TextInsert:
		blockOpID, bs, err := d.blockByNodeID(op.NodeID)
		if err != nil {
			return
		}
		bs.text.ApplyInsert(op.ID, op.ParentOpID, op.Char)
		d.charBlock[op.ID] = blockOpID
		if buffered := d.pendingCharDeletes[op.ID]; len(buffered) > 0 {
			delete(d.pendingCharDeletes, op.ID)
			for _, del := range buffered {
				bs.text.ApplyDelete(del.TargetID)
			}
		}

	case crdtop.TextDelete:
		blockOpID, ok := d.charBlock[op.TargetID]
		if !ok {
			d.pendingCharDeletes[op.TargetID] = append(d.pendingCharDeletes[op.TargetID], op)
			return
		}
		if bs, ok := d.blocks[blockOpID]; ok {
			bs.text.ApplyDelete(op.TargetID)
		}

	case crdtop.FormatSet:
		d.hlc.Update(op.Timestamp)
		_, bs, err := d.blockByNodeID(op.NodeID)
		if err != nil {
			return
		}
		bs.formatting.Set(formatKey{start: op.StartOpID, attribute: op.Attribute}, formatValue{end: op.EndOpID, value: op.Value}, op.Timestamp)
	}
}

// GetText returns the visible text of blockNodeID.
func (d *CollaborativeDocument) GetText(blockNodeID tree.NodeId) (string, bool) {
	_, bs, err := d.blockByNodeID(blockNodeID)
	if err != nil {
		return "", false
	}
	return string(bs.text.ToSlice()), true
}

// GetFormatting returns the attribute map in effect at offset within
// blockNodeID's visible text, as an independent deep copy (via
// barkimedes/go-deepcopy) so a caller mutating the returned map can never
// reach back into the document's live formatting registers.
func (d *CollaborativeDocument) GetFormatting(blockNodeID tree.NodeId, offset int) (map[string]any, error) {
	_, bs, err := d.blockByNodeID(blockNodeID)
	if err != nil {
		return nil, err
	}
	ids := bs.text.IDs()
	if offset < 0 || offset >= len(ids) {
		return map[string]any{}, nil
	}
	target := ids[offset]

	live := map[string]any{}
	for key, val := range bs.formatting.Snapshot() {
		if spansOffset(ids, key.start, val.end, target) {
			live[key.attribute] = val.value
		}
	}
	return deepCopyAttrs(live)
}

func spansOffset(ids []clock.OpId, start, end, target clock.OpId) bool {
	pos := func(id clock.OpId) int {
		for i, v := range ids {
			if v == id {
				return i
			}
		}
		return -1
	}
	sp, ep, tp := pos(start), pos(end), pos(target)
	if sp == -1 || ep == -1 || tp == -1 {
		return false
	}
	return sp <= tp && tp <= ep
}

// deepCopyAttrs returns an independent copy of a live formatting map via
// barkimedes/go-deepcopy, so GetFormatting never hands out a reference
// into the document's own LwwMap entries.
func deepCopyAttrs(m map[string]any) (map[string]any, error) {
	copied, err := deepcopy.Anything(m)
	if err != nil {
		return nil, err
	}
	return copied.(map[string]any), nil
}

// Snapshot returns a fully independent, detached copy of the document via
// huandu/go-clone, suitable for handing to another goroutine or stashing
// before a risky batch of remote ops.
func (d *CollaborativeDocument) Snapshot() *CollaborativeDocument {
	return clone.Clone(d)
}

// Restore replaces d's entire state with an independent deep copy of
// snapshot, taken via huandu/go-clone so later mutation of either document
// can never reach into the other.
func (d *CollaborativeDocument) Restore(snapshot *CollaborativeDocument) {
	*d = *clone.Clone(snapshot)
}

// PendingCount returns how many locally-produced ops haven't been drained
// by a sync yet, for building connection-status UI.
func (d *CollaborativeDocument) PendingCount() int {
	return d.sync.PendingCount()
}

// LastAppliedVersion returns this client's own vector-clock entry: the
// highest Seq among the ops this replica has logged under its own client
// id. Seqs observed on other clients' ops are not included.
func (d *CollaborativeDocument) LastAppliedVersion() uint64 {
	return d.sync.LastAppliedVersion()
}
