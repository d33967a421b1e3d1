// Package store declares the external persistence contract CollaborativeDocument
// is designed against: an append-only operation log keyed by document id, plus
// periodic full-state snapshots. This is an external collaborator: the
// CRDT packages never call these interfaces; collabdoc's SaveSnapshot and
// LoadDocument helpers and a session or server layer do. Method shapes follow file_store.rs's FileOperationStore
// (save_operation, save_operations, get_operations_since, get_latest_version,
// save_snapshot/get_latest_snapshot, delete_document/document_exists),
// generalized to a Go interface so any backing implementation (file, SQL,
// in-memory) can satisfy it.
package store

import (
	"context"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
)

// DocID identifies a document across every store operation.
type DocID string

// Version is the monotonically increasing position of an operation in a
// document's log. The zero Version names "no operations yet".
type Version uint64

// StoredOperation pairs a logged CrdtOp with the version it was assigned and
// the vector clock value immediately after it was applied.
type StoredOperation struct {
	Operation crdtop.CrdtOp
	Version   Version
	Clock     clock.VectorClock
}

// Snapshot is a document's full-state checkpoint: version and clock are
// structured, Data is an opaque implementer-defined encoding of the rest
// of the document's state.
type Snapshot struct {
	Version     Version           `json:"version"`
	Clock       clock.VectorClock `json:"clock"`
	Data        []byte            `json:"data"`
	Description string            `json:"description,omitempty"`
}

// OperationStore is the durable, append-only operation log a session layer
// persists CrdtOps to. Implementations must be safe for concurrent use
// across distinct DocIDs, and save_operations must be atomic: either every
// operation in the batch is durably logged and assigned a version, or none
// are.
type OperationStore interface {
	SaveOperation(ctx context.Context, docID DocID, op crdtop.CrdtOp) (Version, error)
	SaveOperations(ctx context.Context, docID DocID, ops []crdtop.CrdtOp) ([]Version, error)
	GetOperationsSince(ctx context.Context, docID DocID, since Version) ([]StoredOperation, error)
	GetLatestVersion(ctx context.Context, docID DocID) (Version, error)
	DeleteDocument(ctx context.Context, docID DocID) error
	DocumentExists(ctx context.Context, docID DocID) (bool, error)
}

// SnapshotStore holds the latest full-state checkpoint per document. It is
// deliberately single-slot: only the latest snapshot is required, not a
// history of them.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, docID DocID, snapshot Snapshot) error
	GetLatestSnapshot(ctx context.Context, docID DocID) (Snapshot, bool, error)
}
