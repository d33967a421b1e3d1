package tree

import (
	"github.com/google/uuid"

	"github.com/nullstream/collabdoc/clock"
)

// NodeId is a document-level identifier for a block, stable across moves
// and independent of the OpId that created the node, maintained alongside
// an OpId-keyed node map via a node-id-to-op-id lookup. Generated with
// google/uuid rather than reusing OpId, since a block's identity must
// survive being deleted and recreated under a new OpId by a future undo.
type NodeId string

// NewNodeId returns a fresh, globally unique NodeId.
func NewNodeId() NodeId {
	return NodeId(uuid.NewString())
}

// Node is one block in the tree.
type Node struct {
	ID               clock.OpId
	NodeID           NodeId
	ParentID         clock.OpId
	HasParent        bool
	PositionInParent clock.OpId
	HasPosition      bool // false means "first child"
	Data             BlockData
	Tombstone        bool
}

// childEntry is one (child, after_sibling) pair in a parent's children list.
type childEntry struct {
	id    clock.OpId
	after clock.OpId
	has   bool
}

// childrenList holds the ordered children of one parent, following the
// same (after_sibling, descending OpId) ordering rule as crdt_tree.rs's
// ChildrenList::find_insert_position.
type childrenList struct {
	entries []childEntry
}

func (c *childrenList) findInsertPosition(after clock.OpId, hasAfter bool, newID clock.OpId) int {
	if !hasAfter {
		pos := 0
		for pos < len(c.entries) {
			e := c.entries[pos]
			if !e.has && e.id.After(newID) {
				pos++
				continue
			}
			break
		}
		return pos
	}

	start := 0
	for i, e := range c.entries {
		if e.has && e.id == after {
			start = i + 1
			break
		}
	}

	pos := start
	for pos < len(c.entries) {
		e := c.entries[pos]
		sameAnchor := e.has && e.after == after
		if sameAnchor && e.id.After(newID) {
			pos++
			continue
		}
		break
	}
	return pos
}

func (c *childrenList) insert(childID clock.OpId, after clock.OpId, hasAfter bool) {
	c.remove(childID)
	pos := c.findInsertPosition(after, hasAfter, childID)
	entry := childEntry{id: childID, after: after, has: hasAfter}
	c.entries = append(c.entries, childEntry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = entry
}

func (c *childrenList) remove(childID clock.OpId) bool {
	for i, e := range c.entries {
		if e.id == childID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (c *childrenList) ids() []clock.OpId {
	out := make([]clock.OpId, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.id
	}
	return out
}

// CrdtTree is a CRDT tree of document blocks rooted at clock.RootOpId:
// nodes never disappear (tombstoned instead), children order by
// (after_sibling, descending OpId), and a move relocates the existing node
// (same OpId and NodeId) from its old parent's children list into the new
// parent's.
type CrdtTree struct {
	seq          *clock.Sequence
	nodes        map[clock.OpId]*Node
	children     map[clock.OpId]*childrenList
	root         clock.OpId
	nodeIDToOpID map[NodeId]clock.OpId
}

// New creates a tree with a single root Document node, allocating future
// OpIds from the given shared sequence (see rga.New's doc comment for why
// the sequence is shared rather than owned per structure).
func New(seq *clock.Sequence) *CrdtTree {
	root := clock.RootOpId
	rootNodeID := NewNodeId()

	t := &CrdtTree{
		seq:          seq,
		nodes:        make(map[clock.OpId]*Node),
		children:     make(map[clock.OpId]*childrenList),
		root:         root,
		nodeIDToOpID: make(map[NodeId]clock.OpId),
	}
	t.nodes[root] = &Node{ID: root, NodeID: rootNodeID, Data: NewDocument()}
	t.children[root] = &childrenList{}
	t.nodeIDToOpID[rootNodeID] = root
	return t
}

// Root returns the OpId of the root Document node.
func (t *CrdtTree) Root() clock.OpId { return t.root }

// InsertBlock allocates a new OpId and inserts data as a child of parent,
// positioned immediately after afterSibling (clock.RootOpId for "first
// child").
func (t *CrdtTree) InsertBlock(parent clock.OpId, afterSibling clock.OpId, nodeID NodeId, data BlockData) clock.OpId {
	id := t.seq.Next()
	t.ApplyInsertBlock(id, parent, afterSibling, nodeID, data)
	return id
}

// ApplyInsertBlock applies a (possibly remote) block insert. Idempotent:
// redelivering an already-known id is a no-op, so a redelivered insert
// never clears a tombstone.
func (t *CrdtTree) ApplyInsertBlock(id, parent, afterSibling clock.OpId, nodeID NodeId, data BlockData) {
	t.seq.Observe(id.Seq)
	if _, exists := t.nodes[id]; exists {
		return
	}

	hasAfter := afterSibling != clock.RootOpId
	node := &Node{
		ID:               id,
		NodeID:           nodeID,
		ParentID:         parent,
		HasParent:        true,
		PositionInParent: afterSibling,
		HasPosition:      hasAfter,
		Data:             data,
	}
	t.nodes[id] = node
	t.nodeIDToOpID[nodeID] = id

	if t.children[parent] == nil {
		t.children[parent] = &childrenList{}
	}
	t.children[parent].insert(id, afterSibling, hasAfter)

	if t.children[id] == nil {
		t.children[id] = &childrenList{}
	}
}

// DeleteBlock tombstones id. The node keeps its slot in its parent's
// children list, so later inserts can still anchor on it; Children and
// Traverse skip it. Returns false if id is the root, unknown, or already
// tombstoned.
func (t *CrdtTree) DeleteBlock(id clock.OpId) bool {
	return t.ApplyDeleteBlock(id)
}

// ApplyDeleteBlock is the remote/local-shared implementation of DeleteBlock.
func (t *CrdtTree) ApplyDeleteBlock(id clock.OpId) bool {
	if id == t.root {
		return false
	}
	node, ok := t.nodes[id]
	if !ok || node.Tombstone {
		return false
	}
	node.Tombstone = true
	return true
}

// MoveBlock relocates id to be a child of newParent, immediately after
// afterSibling. Returns the move's OpId and true on success; false if id is
// the root, either endpoint is unknown or tombstoned, or the move would
// create a cycle (moving a node under itself or its own descendant).
func (t *CrdtTree) MoveBlock(id, newParent, afterSibling clock.OpId) (clock.OpId, bool) {
	if id == t.root {
		return clock.OpId{}, false
	}
	node, ok := t.nodes[id]
	if !ok || node.Tombstone {
		return clock.OpId{}, false
	}
	parentNode, ok := t.nodes[newParent]
	if !ok || parentNode.Tombstone {
		return clock.OpId{}, false
	}
	if id == newParent || t.isAncestorOf(id, newParent) {
		return clock.OpId{}, false
	}
	if !node.HasParent {
		return clock.OpId{}, false
	}

	moveID := t.seq.Next()
	t.ApplyMoveBlock(id, newParent, afterSibling)
	return moveID, true
}

// ApplyMoveBlock applies a move without re-validating preconditions,
// matching crdt_tree.rs's apply_move_block (used for both the local path,
// after MoveBlock's checks, and for remote delivery).
func (t *CrdtTree) ApplyMoveBlock(id, newParent, afterSibling clock.OpId) {
	node, ok := t.nodes[id]
	if !ok {
		return
	}
	if node.HasParent {
		if old := t.children[node.ParentID]; old != nil {
			old.remove(id)
		}
	}

	hasAfter := afterSibling != clock.RootOpId
	if t.children[newParent] == nil {
		t.children[newParent] = &childrenList{}
	}
	t.children[newParent].insert(id, afterSibling, hasAfter)

	node.ParentID = newParent
	node.HasParent = true
	node.PositionInParent = afterSibling
	node.HasPosition = hasAfter
}

func (t *CrdtTree) isAncestorOf(potentialAncestor, node clock.OpId) bool {
	current := node
	for {
		n, ok := t.nodes[current]
		if !ok || !n.HasParent {
			return false
		}
		if n.ParentID == potentialAncestor {
			return true
		}
		current = n.ParentID
	}
}

// UpdateBlockData replaces the BlockData payload of a live (non-tombstoned)
// node. Returns false if the node is unknown or tombstoned.
func (t *CrdtTree) UpdateBlockData(id clock.OpId, data BlockData) bool {
	node, ok := t.nodes[id]
	if !ok || node.Tombstone {
		return false
	}
	node.Data = data
	return true
}

// GetNode returns the node for id, including tombstones.
func (t *CrdtTree) GetNode(id clock.OpId) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// GetByNodeID resolves a document-level NodeId to its current node.
func (t *CrdtTree) GetByNodeID(nodeID NodeId) (*Node, bool) {
	id, ok := t.nodeIDToOpID[nodeID]
	if !ok {
		return nil, false
	}
	return t.GetNode(id)
}

// Children returns the live (non-tombstoned) children of id, in order.
func (t *CrdtTree) Children(id clock.OpId) []clock.OpId {
	list := t.children[id]
	if list == nil {
		return nil
	}
	out := make([]clock.OpId, 0, len(list.entries))
	for _, childID := range list.ids() {
		if n := t.nodes[childID]; n != nil && !n.Tombstone {
			out = append(out, childID)
		}
	}
	return out
}

// ChildrenWithTombstones returns every child of id, including tombstoned
// ones, in the tree's internal order.
func (t *CrdtTree) ChildrenWithTombstones(id clock.OpId) []clock.OpId {
	list := t.children[id]
	if list == nil {
		return nil
	}
	return list.ids()
}

// TotalNodes returns the node count including tombstones.
func (t *CrdtTree) TotalNodes() int { return len(t.nodes) }

// VisibleNodes returns the count of non-tombstoned nodes.
func (t *CrdtTree) VisibleNodes() int {
	n := 0
	for _, node := range t.nodes {
		if !node.Tombstone {
			n++
		}
	}
	return n
}

// Traverse walks the tree depth-first pre-order, skipping tombstones,
// calling visit(node, depth) for each live node starting at the root.
func (t *CrdtTree) Traverse(visit func(node *Node, depth int)) {
	t.traverse(t.root, 0, visit)
}

func (t *CrdtTree) traverse(id clock.OpId, depth int, visit func(*Node, int)) {
	node, ok := t.nodes[id]
	if !ok || node.Tombstone {
		return
	}
	visit(node, depth)
	for _, child := range t.Children(id) {
		t.traverse(child, depth+1, visit)
	}
}

// PathToNode returns the OpIds from root to id, inclusive, root first.
func (t *CrdtTree) PathToNode(id clock.OpId) []clock.OpId {
	var path []clock.OpId
	current, ok := id, true
	for ok {
		path = append(path, current)
		var node *Node
		node, ok = t.nodes[current]
		if !ok || !node.HasParent {
			break
		}
		current = node.ParentID
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Parent returns id's parent OpId, if any (the root has none).
func (t *CrdtTree) Parent(id clock.OpId) (clock.OpId, bool) {
	node, ok := t.nodes[id]
	if !ok || !node.HasParent {
		return clock.OpId{}, false
	}
	return node.ParentID, true
}

// Siblings returns id's live siblings (other children of the same parent).
func (t *CrdtTree) Siblings(id clock.OpId) []clock.OpId {
	parent, ok := t.Parent(id)
	if !ok {
		return nil
	}
	var out []clock.OpId
	for _, c := range t.Children(parent) {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

// Depth returns id's distance from the root (root is 0).
func (t *CrdtTree) Depth(id clock.OpId) int {
	depth := 0
	current, ok := t.nodes[id]
	for ok && current.HasParent {
		depth++
		current, ok = t.nodes[current.ParentID]
	}
	return depth
}
