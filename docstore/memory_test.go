package docstore

import (
	"context"
	"testing"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
	"github.com/nullstream/collabdoc/store"
)

func textInsert(client clock.ClientId, seq uint64) crdtop.CrdtOp {
	return crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: clock.OpId{ClientID: client, Seq: seq}}
}

func TestSaveOperationAssignsIncrementingVersions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := store.DocID("doc1")

	v1, err := s.SaveOperation(ctx, doc, textInsert(1, 1))
	if err != nil {
		t.Fatalf("SaveOperation failed: %v", err)
	}
	v2, err := s.SaveOperation(ctx, doc, textInsert(1, 2))
	if err != nil {
		t.Fatalf("SaveOperation failed: %v", err)
	}
	if v1 != 1 || v2 != 2 {
		t.Fatalf("expected versions 1, 2; got %d, %d", v1, v2)
	}
}

func TestSaveOperationsIsAtomicGroup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := store.DocID("doc1")

	ops := []crdtop.CrdtOp{textInsert(1, 1), textInsert(1, 2), textInsert(1, 3)}
	versions, err := s.SaveOperations(ctx, doc, ops)
	if err != nil {
		t.Fatalf("SaveOperations failed: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Fatalf("expected versions [1,2,3], got %v", versions)
	}
}

func TestGetOperationsSinceReturnsOnlyNewer(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := store.DocID("doc1")

	s.SaveOperations(ctx, doc, []crdtop.CrdtOp{textInsert(1, 1), textInsert(1, 2), textInsert(1, 3)})

	got, err := s.GetOperationsSince(ctx, doc, 1)
	if err != nil {
		t.Fatalf("GetOperationsSince failed: %v", err)
	}
	if len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Fatalf("expected versions [2,3], got %+v", got)
	}
}

func TestGetLatestVersionForUnknownDocumentIsZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v, err := s.GetLatestVersion(ctx, store.DocID("nope"))
	if err != nil {
		t.Fatalf("GetLatestVersion failed: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected version 0 for an unknown document, got %d", v)
	}
}

func TestSaveAndGetLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := store.DocID("doc1")

	if _, ok, err := s.GetLatestSnapshot(ctx, doc); err != nil || ok {
		t.Fatalf("expected no snapshot initially, got ok=%v err=%v", ok, err)
	}

	snap := store.Snapshot{Version: 5, Clock: clock.NewVectorClock(), Data: []byte("state")}
	if err := s.SaveSnapshot(ctx, doc, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, ok, err := s.GetLatestSnapshot(ctx, doc)
	if err != nil || !ok {
		t.Fatalf("expected a snapshot, got ok=%v err=%v", ok, err)
	}
	if got.Version != 5 || string(got.Data) != "state" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestDeleteDocumentRemovesLogAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := store.DocID("doc1")

	s.SaveOperation(ctx, doc, textInsert(1, 1))
	s.SaveSnapshot(ctx, doc, store.Snapshot{Version: 1})

	if exists, _ := s.DocumentExists(ctx, doc); !exists {
		t.Fatalf("expected the document to exist before deletion")
	}
	if err := s.DeleteDocument(ctx, doc); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if exists, _ := s.DocumentExists(ctx, doc); exists {
		t.Fatalf("expected the document to be gone after deletion")
	}
}

func TestTruncateBeforeRequiresACoveringSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := store.DocID("doc1")

	s.SaveOperations(ctx, doc, []crdtop.CrdtOp{textInsert(1, 1), textInsert(1, 2), textInsert(1, 3)})

	if err := s.TruncateBefore(ctx, doc, 2); err == nil {
		t.Fatalf("expected TruncateBefore to refuse without a covering snapshot")
	}

	if err := s.SaveSnapshot(ctx, doc, store.Snapshot{Version: 2}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := s.TruncateBefore(ctx, doc, 2); err != nil {
		t.Fatalf("TruncateBefore failed: %v", err)
	}

	got, _ := s.GetOperationsSince(ctx, doc, 0)
	if len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Fatalf("expected only versions [2,3] to remain, got %+v", got)
	}
}
