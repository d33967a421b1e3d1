// Package clock provides the identity and causality primitives shared by
// every other collabdoc package: client identifiers, operation identifiers,
// hybrid logical timestamps, and vector clocks.
package clock

import "fmt"

// ClientId is an opaque identifier for a replica. It is assigned externally
// (by whatever session layer admits the client) and is never reused.
type ClientId uint64

// OpId identifies a single operation. Operations are totally ordered first
// by Seq, then by ClientId, both ascending: a higher Seq always wins, and
// on a Seq tie the higher ClientId wins.
type OpId struct {
	ClientID ClientId
	Seq      uint64
}

// RootOpId is the sentinel shared by every replica: it names the tree root
// and the RGA "before the beginning" anchor. It is never allocated by
// Sequence.Next and never tombstoned.
var RootOpId = OpId{ClientID: 0, Seq: 0}

// IsRoot reports whether id is the shared root sentinel.
func (id OpId) IsRoot() bool {
	return id == RootOpId
}

// Less reports whether id sorts strictly before other under the total
// order: (Seq, ClientID) both ascending.
func (id OpId) Less(other OpId) bool {
	if id.Seq != other.Seq {
		return id.Seq < other.Seq
	}
	return id.ClientID < other.ClientID
}

// After reports whether id sorts strictly after other. It is the mirror of
// Less and is provided because conflict-resolution code reads more
// naturally asking "did mine happen after" than negating Less.
func (id OpId) After(other OpId) bool {
	return other.Less(id)
}

func (id OpId) String() string {
	return fmt.Sprintf("%d:%d", id.Seq, id.ClientID)
}

// Sequence is a per-replica monotonic allocator for OpIds. A
// CollaborativeDocument creates one and shares it by pointer with its
// CrdtTree, every per-block RGA, and its SyncEngine.
type Sequence struct {
	clientID ClientId
	seq      uint64
}

// NewSequence creates a sequence allocator for the given client.
func NewSequence(clientID ClientId) *Sequence {
	return &Sequence{clientID: clientID}
}

// ClientID returns the client this sequence allocates operations for.
func (s *Sequence) ClientID() ClientId {
	return s.clientID
}

// Next allocates and returns the next OpId for this replica.
func (s *Sequence) Next() OpId {
	s.seq++
	return OpId{ClientID: s.clientID, Seq: s.seq}
}

// Current returns the highest Seq this sequence has allocated or observed.
func (s *Sequence) Current() uint64 {
	return s.seq
}

// Observe bumps the local counter so that no future local allocation
// collides with an already-seen remote Seq: on applying any remote op
// with op.id.seq > self.seq, self.seq advances to op.id.seq.
func (s *Sequence) Observe(seq uint64) {
	if seq > s.seq {
		s.seq = seq
	}
}
