// Package rga implements a Replicated Growable Array: a list CRDT for
// sequences of per-element identity (characters, in collabdoc's use, one per
// text-bearing block). It generalizes the traversal and ordering
// technique in crdt/text.go (getOrdered's descending-ID walk per
// predecessor group) from runs-of-characters back to one element per
// node, so each element keeps its own stable OpId and tombstone identity.
package rga

import "github.com/nullstream/collabdoc/clock"

// element is one node in the logical linked list. Siblings sharing the same
// After predecessor are ordered by descending OpId.
type element[T any] struct {
	id        clock.OpId
	value     T
	tombstone bool
	after     clock.OpId
	hasAfter  bool // false means "after root" (head of list)
	// placeholder marks a tombstone materialized only because some other
	// element referenced it before its own insert arrived. It carries no
	// value.
	placeholder bool
	// deleted records that ApplyDelete has tombstoned this id, so a later
	// insert filling in the placeholder does not make it visible again.
	deleted bool
}

// RGA is a replicated growable array of values of type T, rooted at
// clock.RootOpId. The per-replica sequence counter lives on the owning
// CollaborativeDocument, not on each block's RGA, so that OpIds stay
// unique across the whole document rather than per block; New takes a
// reference to that shared allocator.
type RGA[T any] struct {
	seq   *clock.Sequence
	order []clock.OpId          // logical order, head to tail
	index map[clock.OpId]int    // id -> position in order
	nodes map[clock.OpId]*element[T]
}

// New creates an empty RGA that allocates local-insert OpIds from the given
// shared sequence.
func New[T any](seq *clock.Sequence) *RGA[T] {
	return &RGA[T]{
		seq:   seq,
		order: nil,
		index: make(map[clock.OpId]int),
		nodes: make(map[clock.OpId]*element[T]),
	}
}

func (r *RGA[T]) afterOf(e *element[T]) clock.OpId {
	if !e.hasAfter {
		return clock.RootOpId
	}
	return e.after
}

// insertAt inserts e at position pos in r.order, maintaining r.index.
func (r *RGA[T]) insertAt(pos int, e *element[T]) {
	r.order = append(r.order, clock.OpId{})
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = e.id
	r.nodes[e.id] = e
	for i := pos; i < len(r.order); i++ {
		r.index[r.order[i]] = i
	}
}

// removeFromOrder removes id's current slot from r.order, leaving r.nodes
// untouched. Used when a placeholder needs to move to its correct position
// once its real predecessor is known (see ApplyInsert).
func (r *RGA[T]) removeFromOrder(id clock.OpId) {
	pos, ok := r.index[id]
	if !ok {
		return
	}
	r.order = append(r.order[:pos], r.order[pos+1:]...)
	delete(r.index, id)
	for i := pos; i < len(r.order); i++ {
		r.index[r.order[i]] = i
	}
}

// findInsertPos implements the RGA ordering rule: locate the predecessor
// (or the head, if after is root), then scan forward past
// every element that shares that same predecessor and sorts after the new
// id, inserting immediately before the first element that doesn't.
func (r *RGA[T]) findInsertPos(after clock.OpId, newID clock.OpId) int {
	start := 0
	if after != clock.RootOpId {
		if afterPos, ok := r.index[after]; ok {
			start = afterPos + 1
		}
		// If the predecessor is entirely unknown we fall through with
		// start == 0; the caller (ApplyInsert) is responsible for having
		// already materialized a placeholder for an unseen predecessor, so
		// in practice this branch is only reached transiently.
	}

	pos := start
	for pos < len(r.order) {
		candidate := r.nodes[r.order[pos]]
		if candidate == nil {
			break
		}
		sameAnchor := (candidate.hasAfter && candidate.after == after) ||
			(!candidate.hasAfter && after == clock.RootOpId)
		if !sameAnchor {
			break
		}
		if candidate.id.After(newID) {
			pos++
			continue
		}
		break
	}
	return pos
}

func (r *RGA[T]) insertElement(e *element[T]) {
	pos := r.findInsertPos(r.afterOf(e), e.id)
	r.insertAt(pos, e)
}

// ensurePlaceholder returns the existing element for id, creating a
// tombstoned placeholder if id hasn't been seen yet. Used both when a
// delete arrives for an unknown id and when an insert's After predecessor
// hasn't arrived yet.
func (r *RGA[T]) ensurePlaceholder(id clock.OpId) *element[T] {
	if e, ok := r.nodes[id]; ok {
		return e
	}
	e := &element[T]{id: id, tombstone: true, placeholder: true}
	r.insertElement(e)
	return e
}

// Insert allocates a new OpId and inserts value immediately, after the
// element named by after (clock.RootOpId for "at the head").
func (r *RGA[T]) Insert(after clock.OpId, value T) clock.OpId {
	id := r.seq.Next()
	e := &element[T]{id: id, value: value}
	if after != clock.RootOpId {
		e.after = after
		e.hasAfter = true
	}
	r.insertElement(e)
	return id
}

// Delete tombstones id. Returns false only if id is entirely unknown to
// this replica (no placeholder has ever been created for it); repeat
// deletes are a no-op that still reports true.
func (r *RGA[T]) Delete(id clock.OpId) bool {
	e, ok := r.nodes[id]
	if !ok {
		return false
	}
	e.tombstone = true
	return true
}

// ApplyInsert applies a remote insert. Re-applying an already-known id is a
// no-op (idempotent apply). If id was previously materialized only as a
// placeholder, it is moved under its real predecessor instead of being
// re-inserted; a placeholder created for a predecessor is filled in with
// its real value, while one created by ApplyDelete stays tombstoned and
// valueless.
func (r *RGA[T]) ApplyInsert(id clock.OpId, after clock.OpId, value T) {
	r.seq.Observe(id.Seq)

	if e, ok := r.nodes[id]; ok {
		if e.placeholder {
			// The placeholder was provisionally anchored at root. Now
			// that its real predecessor is known, it may need to move.
			wasAfter, wasHasAfter := e.after, e.hasAfter
			if !e.deleted {
				e.value = value
				e.placeholder = false
				e.tombstone = false
			}
			if after != clock.RootOpId {
				r.ensurePlaceholder(after)
			}
			newAfter, newHasAfter := clock.OpId{}, false
			if after != clock.RootOpId {
				newAfter, newHasAfter = after, true
			}
			if newHasAfter != wasHasAfter || newAfter != wasAfter {
				r.removeFromOrder(id)
				e.after, e.hasAfter = newAfter, newHasAfter
				r.insertElement(e)
			}
		}
		return
	}

	if after != clock.RootOpId {
		// auto-create a tombstoned placeholder for the predecessor if it
		// hasn't arrived yet, so ordering is always well defined.
		r.ensurePlaceholder(after)
	}

	e := &element[T]{id: id, value: value}
	if after != clock.RootOpId {
		e.after = after
		e.hasAfter = true
	}
	r.insertElement(e)
}

// ApplyDelete tombstones id, creating a pure tombstone placeholder if id
// hasn't been seen yet (out-of-order delivery).
func (r *RGA[T]) ApplyDelete(id clock.OpId) {
	r.seq.Observe(id.Seq)
	e := r.ensurePlaceholder(id)
	e.tombstone = true
	e.deleted = true
}

// Get returns the value stored at id, if any is present and not a pure
// placeholder.
func (r *RGA[T]) Get(id clock.OpId) (T, bool) {
	var zero T
	e, ok := r.nodes[id]
	if !ok || e.placeholder {
		return zero, false
	}
	return e.value, true
}

// Len returns the number of non-tombstoned elements.
func (r *RGA[T]) Len() int {
	n := 0
	for _, id := range r.order {
		if e := r.nodes[id]; e != nil && !e.tombstone {
			n++
		}
	}
	return n
}

// ToSlice returns the ordered, non-tombstoned values.
func (r *RGA[T]) ToSlice() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		if e := r.nodes[id]; e != nil && !e.tombstone {
			out = append(out, e.value)
		}
	}
	return out
}

// IDs returns the ordered ids of non-tombstoned elements, parallel to
// ToSlice. Useful for translating a character offset back into an OpId,
// e.g. for InsertText/DeleteText/FormatText's offset arguments.
func (r *RGA[T]) IDs() []clock.OpId {
	out := make([]clock.OpId, 0, len(r.order))
	for _, id := range r.order {
		if e := r.nodes[id]; e != nil && !e.tombstone {
			out = append(out, id)
		}
	}
	return out
}
