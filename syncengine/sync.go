// Package syncengine tracks the append-only operation log, the pending
// outgoing batch, and the vector clock a CollaborativeDocument needs to
// synchronize with other replicas. It generalizes crdt/crdt.go's CRDT[T]
// wrapper (the Edit/CreateDelta/ApplyDelta/Merge cycle of "make a local
// change, package it, apply someone else's package") from "one value, one
// delta" to "an op log, a batch of ops", and follows offline.rs's
// OfflineManager (queue_operation, get_reconnect_ops,
// handle_sync_response, save_state/load_state) for the pending/offline-
// batch shape.
package syncengine

import (
	"github.com/mitchellh/copystructure"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
)

// OpBatch is a labeled slice of locally-produced ops ready to transmit.
type OpBatch struct {
	ClientID  clock.ClientId
	Ops       []crdtop.CrdtOp
	BaseClock clock.VectorClock
}

// State is the persistable snapshot of a SyncEngine, handed to an external
// store by SaveState and accepted back by RestoreState.
type State struct {
	ClientID     clock.ClientId
	Seq          uint64
	OpLog        []crdtop.CrdtOp
	PendingLocal []crdtop.CrdtOp
	Clock        clock.VectorClock
}

// SyncEngine is the local half of a document's replication contract: every
// locally-produced op passes through QueueLocal, every remote batch passes
// through ApplyRemote, and deduplication here is the authoritative
// defense. RGA and CrdtTree's own idempotence are defense in depth, not
// the primary guarantee.
type SyncEngine struct {
	clientID     clock.ClientId
	seq          *clock.Sequence
	opLog        []crdtop.CrdtOp
	seen         map[clock.OpId]struct{}
	pendingLocal []crdtop.CrdtOp
	vclock       clock.VectorClock
}

// New creates a SyncEngine for clientID that shares the document's
// sequence with its tree and per-block RGAs; ApplyRemote and RestoreState
// advance that sequence past every Seq they see.
func New(clientID clock.ClientId, seq *clock.Sequence) *SyncEngine {
	return &SyncEngine{
		clientID: clientID,
		seq:      seq,
		seen:     make(map[clock.OpId]struct{}),
		vclock:   clock.NewVectorClock(),
	}
}

// QueueLocal records a locally-produced op: appends it to the durable log,
// marks it seen (so a later remote echo of the same op is a no-op), queues
// it for the next outgoing batch, and bumps this client's vector clock
// entry.
func (e *SyncEngine) QueueLocal(op crdtop.CrdtOp) {
	if _, dup := e.seen[op.ID]; dup {
		return
	}
	e.seen[op.ID] = struct{}{}
	e.opLog = append(e.opLog, op)
	e.pendingLocal = append(e.pendingLocal, op)
	e.vclock.Set(e.clientID, max(e.vclock.Get(e.clientID), op.ID.Seq))
}

// GetPendingBatch drains pendingLocal into a batch labeled with this
// client's id and the clock value just before the batch, ready to
// transmit.
func (e *SyncEngine) GetPendingBatch() OpBatch {
	base := e.vclock.Clone()
	if len(e.pendingLocal) > 0 {
		// Rebuild the clock from the log entries that precede the batch's
		// first op.
		base = clock.NewVectorClock()
		first := e.pendingLocal[0].ID
		for _, op := range e.opLog {
			if op.ID == first {
				break
			}
			base.Set(op.ID.ClientID, max(base.Get(op.ID.ClientID), op.ID.Seq))
		}
	}
	batch := OpBatch{
		ClientID:  e.clientID,
		Ops:       e.pendingLocal,
		BaseClock: base,
	}
	e.pendingLocal = nil
	return batch
}

// ApplyRemote filters ops already seen, appends survivors to the op log,
// folds their OpIds into the vector clock, and returns the survivors for
// the document to actually apply to its tree/RGA/formatting state.
func (e *SyncEngine) ApplyRemote(ops []crdtop.CrdtOp) []crdtop.CrdtOp {
	survivors := make([]crdtop.CrdtOp, 0, len(ops))
	for _, op := range ops {
		if _, dup := e.seen[op.ID]; dup {
			continue
		}
		e.seen[op.ID] = struct{}{}
		e.opLog = append(e.opLog, op)
		e.seq.Observe(op.ID.Seq)
		e.vclock.Set(op.ID.ClientID, max(e.vclock.Get(op.ID.ClientID), op.ID.Seq))
		survivors = append(survivors, op)
	}
	return survivors
}

// OpsSince returns every logged op whose seq is strictly greater than the
// counterpart recorded for its client in vc: everything this replica has
// that the caller doesn't.
func (e *SyncEngine) OpsSince(vc clock.VectorClock) []crdtop.CrdtOp {
	var out []crdtop.CrdtOp
	for _, op := range e.opLog {
		if op.ID.Seq > vc.Get(op.ID.ClientID) {
			out = append(out, op)
		}
	}
	return out
}

// Clock returns a copy of this engine's current vector clock.
func (e *SyncEngine) Clock() clock.VectorClock {
	return e.vclock.Clone()
}

// PendingCount returns how many locally-produced ops are queued but not
// yet drained by GetPendingBatch. A caller building connection-status UI
// (online/offline/reconnecting) can surface this without reaching into
// the op log directly.
func (e *SyncEngine) PendingCount() int {
	return len(e.pendingLocal)
}

// LastAppliedVersion returns this client's own highest allocated Seq, the
// local half of "how far has this replica gotten" a reconnect flow needs
// alongside the server's own version counter.
func (e *SyncEngine) LastAppliedVersion() uint64 {
	return e.vclock.Get(e.clientID)
}

// SaveState returns a deep copy of the engine's persistable state via
// mitchellh/copystructure, so a store that mutates what it persists (or
// persists asynchronously, after more local edits have landed) can never
// observe or corrupt the live engine's slices and maps.
func (e *SyncEngine) SaveState() (State, error) {
	raw := State{
		ClientID:     e.clientID,
		Seq:          e.seq.Current(),
		OpLog:        e.opLog,
		PendingLocal: e.pendingLocal,
		Clock:        e.vclock,
	}
	copied, err := copystructure.Copy(raw)
	if err != nil {
		return State{}, err
	}
	return copied.(State), nil
}

// RestoreState replaces the engine's op log, pending batch, and vector
// clock with a deep copy of s (again via copystructure), and fast-forwards
// the shared sequence counter to at least s.Seq.
func (e *SyncEngine) RestoreState(s State) error {
	copied, err := copystructure.Copy(s)
	if err != nil {
		return err
	}
	restored := copied.(State)

	e.clientID = restored.ClientID
	e.opLog = restored.OpLog
	e.pendingLocal = restored.PendingLocal
	e.vclock = restored.Clock
	if e.vclock == nil {
		e.vclock = clock.NewVectorClock()
	}
	e.seen = make(map[clock.OpId]struct{}, len(e.opLog))
	for _, op := range e.opLog {
		e.seen[op.ID] = struct{}{}
	}
	e.seq.Observe(restored.Seq)
	return nil
}
