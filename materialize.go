package collabdoc

import (
	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/tree"
)

// MaterializedBlock is the read-only, rendered view of one visible block:
// its data, depth in the tree, resolved text (for text-bearing blocks),
// and the formatting spans in effect over that text.
type MaterializedBlock struct {
	NodeID tree.NodeId
	Depth  int
	Data   tree.BlockData
	Text   string
	Spans  []FormatSpan
}

// FormatSpan is one attributed range of a block's text, [Start, End) in
// character offsets, resolved from the block's LwwMap at materialization
// time.
type FormatSpan struct {
	Start, End int
	Attribute  string
	Value      any
}

// MaterializedTree is the read-only, pre-order-flattened view of a
// document's visible blocks, as produced by Materialize.
type MaterializedTree struct {
	Blocks []MaterializedBlock
}

// Materialize produces a read-only view of the document by pre-order
// traversal of visible blocks, concatenating each text-bearing block's RGA
// characters and attaching formatting spans resolved from its LwwMap.
func (d *CollaborativeDocument) Materialize() MaterializedTree {
	var out MaterializedTree
	d.tree.Traverse(func(node *tree.Node, depth int) {
		if node.ID == d.tree.Root() {
			return
		}
		mb := MaterializedBlock{NodeID: node.NodeID, Depth: depth, Data: node.Data}
		if bs, ok := d.blocks[node.ID]; ok {
			ids := bs.text.IDs()
			mb.Text = string(bs.text.ToSlice())
			mb.Spans = resolveSpans(ids, bs)
		}
		out.Blocks = append(out.Blocks, mb)
	})
	return out
}

func resolveSpans(ids []clock.OpId, bs *blockState) []FormatSpan {
	indexOf := make(map[clock.OpId]int, len(ids))
	for i, id := range ids {
		indexOf[id] = i
	}

	var spans []FormatSpan
	for key, val := range bs.formatting.Snapshot() {
		startIdx, ok1 := indexOf[key.start]
		endIdx, ok2 := indexOf[val.end]
		if !ok1 || !ok2 {
			continue
		}
		spans = append(spans, FormatSpan{Start: startIdx, End: endIdx + 1, Attribute: key.attribute, Value: val.value})
	}
	return spans
}
