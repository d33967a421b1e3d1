// Package docstore is an in-memory reference implementation of
// store.OperationStore and store.SnapshotStore, used by the tests. It
// follows file_store.rs's
// FileOperationStore (same operations: per-document append-only log plus
// single-slot snapshot, same per-document locking discipline) with the
// filesystem swapped for an in-memory map, since on-disk persistence
// (file formats, fsync discipline, compaction policy) is an external
// collaborator concern, not something collabdoc's core needs to own.
package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
	"github.com/nullstream/collabdoc/store"
)

// documentState is everything MemoryStore tracks for one DocID, guarded by
// its own mutex so concurrent access to different documents never
// contends, mirroring FileOperationStore's per-document DocumentLock.
type documentState struct {
	mu       sync.Mutex
	ops      []store.StoredOperation
	snapshot *store.Snapshot
}

// MemoryStore is a process-local OperationStore and SnapshotStore. It does
// not survive process restart; it exists for tests and as a template for a
// durable implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[store.DocID]*documentState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[store.DocID]*documentState)}
}

func (m *MemoryStore) getOrCreate(docID store.DocID) *documentState {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		d = &documentState{}
		m.docs[docID] = d
	}
	return d
}

func (m *MemoryStore) get(docID store.DocID) (*documentState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[docID]
	return d, ok
}

// SaveOperation appends op to docID's log and assigns it the next version.
func (m *MemoryStore) SaveOperation(ctx context.Context, docID store.DocID, op crdtop.CrdtOp) (store.Version, error) {
	versions, err := m.SaveOperations(ctx, docID, []crdtop.CrdtOp{op})
	if err != nil {
		return 0, err
	}
	return versions[0], nil
}

// SaveOperations appends every op to docID's log as a single atomic group:
// on error, none of the ops are logged and none of the versions returned
// are valid.
func (m *MemoryStore) SaveOperations(ctx context.Context, docID store.DocID, ops []crdtop.CrdtOp) ([]store.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}

	d := m.getOrCreate(docID)
	d.mu.Lock()
	defer d.mu.Unlock()

	clockSoFar := currentClock(d.ops)
	versions := make([]store.Version, len(ops))
	for i, op := range ops {
		clockSoFar = clockSoFar.Clone()
		if op.ID.Seq > clockSoFar.Get(op.ID.ClientID) {
			clockSoFar.Set(op.ID.ClientID, op.ID.Seq)
		}
		version := store.Version(len(d.ops) + 1)
		d.ops = append(d.ops, store.StoredOperation{Operation: op, Version: version, Clock: clockSoFar})
		versions[i] = version
	}
	return versions, nil
}

// GetOperationsSince returns every operation logged for docID strictly
// after since, sorted ascending by version (the order they were appended
// in, since versions are assigned in append order).
func (m *MemoryStore) GetOperationsSince(ctx context.Context, docID store.DocID, since store.Version) ([]store.StoredOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := m.get(docID)
	if !ok {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []store.StoredOperation
	for _, so := range d.ops {
		if so.Version > since {
			out = append(out, so)
		}
	}
	return out, nil
}

// GetLatestVersion returns docID's highest assigned version, or 0 for an
// unknown or empty document.
func (m *MemoryStore) GetLatestVersion(ctx context.Context, docID store.DocID) (store.Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d, ok := m.get(docID)
	if !ok {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ops) == 0 {
		return 0, nil
	}
	return d.ops[len(d.ops)-1].Version, nil
}

// SaveSnapshot replaces docID's single snapshot slot.
func (m *MemoryStore) SaveSnapshot(ctx context.Context, docID store.DocID, snapshot store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := m.getOrCreate(docID)
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := snapshot
	d.snapshot = &snap
	return nil
}

// GetLatestSnapshot returns docID's snapshot, or ok=false if none has ever
// been saved.
func (m *MemoryStore) GetLatestSnapshot(ctx context.Context, docID store.DocID) (store.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, false, err
	}
	d, ok := m.get(docID)
	if !ok || d.snapshot == nil {
		return store.Snapshot{}, false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.snapshot, true, nil
}

// DeleteDocument drops docID's entire log and snapshot.
func (m *MemoryStore) DeleteDocument(ctx context.Context, docID store.DocID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docID)
	return nil
}

// DocumentExists reports whether docID has ever been written to.
func (m *MemoryStore) DocumentExists(ctx context.Context, docID store.DocID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := m.get(docID)
	return ok, nil
}

// TruncateBefore drops operation log entries strictly before version from
// docID's log. This is deliberately narrower than file_store.rs's
// compact(): it only removes entries a caller asserts are already covered
// by a saved snapshot (version must be <= the snapshot's own version),
// never tombstones, since true causal-stability compaction is out of
// scope here.
func (m *MemoryStore) TruncateBefore(ctx context.Context, docID store.DocID, version store.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := m.get(docID)
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.snapshot == nil || version > d.snapshot.Version {
		return fmt.Errorf("docstore: cannot truncate %s before version %d without a covering snapshot", docID, version)
	}

	kept := d.ops[:0]
	for _, so := range d.ops {
		if so.Version >= version {
			kept = append(kept, so)
		}
	}
	d.ops = kept
	return nil
}

func currentClock(ops []store.StoredOperation) clock.VectorClock {
	if len(ops) == 0 {
		return clock.NewVectorClock()
	}
	return ops[len(ops)-1].Clock
}
