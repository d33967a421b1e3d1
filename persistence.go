package collabdoc

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
	"github.com/nullstream/collabdoc/store"
)

func init() {
	gob.Register(bool(false))
	gob.Register(string(""))
	gob.Register(float64(0))
	gob.Register(int(0))
}

// snapshotPayload is the full-state dump collabdoc encodes into a
// store.Snapshot's opaque Data field: the complete op log replayed through
// ApplyRemoteBatch reconstructs every tree, RGA, and LwwMap entry, so the
// log itself (rather than a bespoke tree/RGA wire format) is the encoding,
// the same "replay the log" idea crdt/crdt.go's CRDT[T] type uses for
// ApplyDelta, generalized from one delta to the whole history.
type snapshotPayload struct {
	ClientID clock.ClientId
	Log      []crdtop.CrdtOp
}

// EncodeSnapshotData gob-encodes d's full op log as the snapshot's opaque,
// implementer-defined data payload.
func (d *CollaborativeDocument) EncodeSnapshotData() ([]byte, error) {
	state, err := d.sync.SaveState()
	if err != nil {
		return nil, fmt.Errorf("collabdoc: snapshot op log: %w", err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshotPayload{ClientID: d.clientID, Log: state.OpLog}); err != nil {
		return nil, fmt.Errorf("collabdoc: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshotData rebuilds a document from gob-encoded snapshot data
// produced by EncodeSnapshotData, replaying its op log into a fresh
// CollaborativeDocument for clientID.
func DecodeSnapshotData(clientID clock.ClientId, data []byte) (*CollaborativeDocument, error) {
	var payload snapshotPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("collabdoc: decode snapshot: %w", err)
	}
	doc := New(clientID)
	doc.ApplyRemoteBatch(payload.Log)
	return doc, nil
}

// SaveSnapshot encodes d's current state and writes it to snap under docID,
// labeled with the given version (the store-assigned version through
// which this snapshot's state is complete, ordinarily whatever an
// OperationStore last returned from SaveOperation/SaveOperations) and
// d's current vector clock.
func (d *CollaborativeDocument) SaveSnapshot(ctx context.Context, snap store.SnapshotStore, docID store.DocID, version store.Version) error {
	data, err := d.EncodeSnapshotData()
	if err != nil {
		return err
	}
	return snap.SaveSnapshot(ctx, docID, store.Snapshot{Version: version, Clock: d.sync.Clock(), Data: data})
}

// LoadDocument reconstructs a document for clientID from snap's latest
// snapshot (if any) plus every operation ops has logged since that
// snapshot's version. Loading the snapshot (fetching or decoding it) and
// fetching the later operations can fail independently; failures from
// either are aggregated into an ApplyError
// rather than stopping at the first one, so a caller sees the complete
// picture of what went wrong in one multi-cause failure.
func LoadDocument(ctx context.Context, clientID clock.ClientId, snap store.SnapshotStore, ops store.OperationStore, docID store.DocID) (*CollaborativeDocument, error) {
	var errs []error

	doc := New(clientID)
	baseVersion := store.Version(0)

	if snapshot, ok, err := snap.GetLatestSnapshot(ctx, docID); err != nil {
		errs = append(errs, fmt.Errorf("collabdoc: load snapshot: %w", err))
	} else if ok {
		restored, err := DecodeSnapshotData(clientID, snapshot.Data)
		if err != nil {
			errs = append(errs, err)
		} else {
			doc = restored
			baseVersion = snapshot.Version
		}
	}

	if ops != nil {
		stored, err := ops.GetOperationsSince(ctx, docID, baseVersion)
		if err != nil {
			errs = append(errs, fmt.Errorf("collabdoc: load operations since %d: %w", baseVersion, err))
		} else {
			tail := make([]crdtop.CrdtOp, len(stored))
			for i, so := range stored {
				tail[i] = so.Operation
			}
			doc.ApplyRemoteBatch(tail)
		}
	}

	if len(errs) > 0 {
		return doc, &ApplyError{Errors: errs}
	}
	return doc, nil
}
